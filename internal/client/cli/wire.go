package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/myid/internal/client/backup"
	"github.com/dmitrijs2005/myid/internal/client/client"
	"github.com/dmitrijs2005/myid/internal/client/config"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/client/services"
	"github.com/dmitrijs2005/myid/internal/filex"
	"github.com/dmitrijs2005/myid/internal/logging"
)

// NewApp opens the profile database under c.DataDir and wires every
// service. The returned close function releases the database.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, func() error, error) {
	dir, err := filex.EnsureDataDir(c.DataDir)
	if err != nil {
		return nil, nil, err
	}
	c.DataDir = dir

	db, err := client.InitDatabase(ctx, c.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing database: %w", err)
	}
	repos := client.NewRepositories(db)

	store := services.NewProfileStore(repos.Metadata, log.With("component", "store"))
	locks := services.NewLockManager(repos.Metadata, log.With("component", "locks"))

	auth := passkey.NewSoftwareAuthenticator(repos.Credentials, newPINVerifier(),
		passkey.WithSoftwareLogger(log.With("component", "authenticator")))
	gateway := passkey.NewGateway(auth,
		passkey.WithKeyRing(auth),
		passkey.WithLogger(log.With("component", "passkey")))

	var remote client.Client
	if c.SyncEnabled() {
		hc, err := client.NewHTTPClient(c.RemoteBaseURL)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		remote = hc
	}

	sync := services.NewSyncService(repos.Queue, remote, store, repos.Metadata, log.With("component", "sync"),
		services.WithSyncIntervals(c.OnlineCheckInterval, c.SyncInterval))

	var sink backupSink
	if c.S3Enabled() {
		s3, err := backup.NewS3Store(ctx, backup.S3Config{
			Endpoint:  c.S3Endpoint,
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
		})
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		sink = s3
	}

	app := NewAppWithDeps(c, Deps{
		Store:       store,
		Locks:       locks,
		Gateway:     gateway,
		Credentials: auth,
		Backup:      services.NewBackupService(store, locks, c.ExportIterations, log.With("component", "backup")),
		Sync:        sync,
		Remote:      remote,
		Sink:        sink,
		Log:         log,
	})
	return app, db.Close, nil
}
