package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/myid/internal/client/client"
	"github.com/dmitrijs2005/myid/internal/client/config"
	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/client/services"
	"github.com/dmitrijs2005/myid/internal/logging"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// credentialStore removes a credential once protection no longer needs it.
type credentialStore interface {
	Delete(ctx context.Context, ref passkey.Ref) error
}

// backupSink stores exports outside the device.
type backupSink interface {
	Put(ctx context.Context, name string, envelope []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	PresignGet(ctx context.Context, name string, ttl time.Duration) (string, error)
}

// Deps are the collaborators of an App. Remote, Credentials and Sink may
// be nil.
type Deps struct {
	Store       services.ProfileStore
	Locks       *services.LockManager
	Gateway     *passkey.Gateway
	Credentials credentialStore
	Backup      services.BackupService
	Sync        services.SyncService
	Remote      client.Client
	Sink        backupSink
	Log         logging.Logger
}

type App struct {
	config  *config.Config
	store   services.ProfileStore
	locks   *services.LockManager
	gateway *passkey.Gateway
	creds   credentialStore
	backup  services.BackupService
	sync    services.SyncService
	remote  client.Client
	sink    backupSink
	log     logging.Logger

	reader *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	schema   models.Schema
	revealed map[string]string

	Mode Mode
}

func newApp(c *config.Config, d Deps, in io.Reader, out io.Writer) *App {
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	a := &App{
		config:   c,
		store:    d.Store,
		locks:    d.Locks,
		gateway:  d.Gateway,
		creds:    d.Credentials,
		backup:   d.Backup,
		sync:     d.Sync,
		remote:   d.Remote,
		sink:     d.Sink,
		log:      d.Log,
		reader:   bufio.NewReader(in),
		out:      out,
		schema:   models.DefaultSchema(),
		revealed: map[string]string{},
		Mode:     ModeDisabled,
	}
	a.locks.OnLock(a.forgetLocked)
	return a
}

// NewAppWithDeps builds an App reading stdin and writing stdout.
func NewAppWithDeps(c *config.Config, d Deps) *App {
	return newApp(c, d, os.Stdin, os.Stdout)
}

// forgetLocked drops revealed values a new lock now covers.
func (a *App) forgetLocked(ev services.LockEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.revealed {
		if ev.Covers(k, a.schema) {
			delete(a.revealed, k)
		}
	}
}

func (a *App) forgetAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.revealed)
}

func (a *App) remember(values map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range values {
		a.revealed[k] = v
	}
}

func (a *App) revealedValue(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.revealed[key]
	return v, ok
}

func (a *App) currentSchema() models.Schema {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.schema
}

// refreshSchema reloads the layout after anything that may replace it.
func (a *App) refreshSchema(ctx context.Context) error {
	s, err := a.store.LoadSchema(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.schema = s
	a.mu.Unlock()
	return nil
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.mu.Unlock()

	if changed {
		a.log.Info(context.Background(), "connectivity changed", "mode", mode)
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

func (a *App) isProtected(ctx context.Context) bool {
	on, err := a.store.IsProtectionEnabled(ctx)
	if err != nil {
		a.log.Error(ctx, "failed to read protection state", "error", err)
		return false
	}
	return on
}

// StartOnlineStatusWatcher probes the remote every interval and flips Mode
// between online and offline. Without a remote it returns at once.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if a.remote == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.remote.Ping(pctx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}
