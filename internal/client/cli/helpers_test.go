package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/myid/internal/client/client"
	"github.com/dmitrijs2005/myid/internal/client/config"
	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/client/services"
	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/cryptox"
	"github.com/stretchr/testify/require"
)

var fastArgon = cryptox.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1}

type fakeRemote struct {
	mu      sync.Mutex
	pingErr error
	upserts []models.RemoteProfile
	deletes []string
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeRemote) Upsert(_ context.Context, p models.RemoteProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, p)
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return nil
}

type fakeSink struct {
	objects map[string][]byte
}

func (f *fakeSink) Put(_ context.Context, name string, data []byte) error {
	f.objects[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeSink) Get(_ context.Context, name string) ([]byte, error) {
	b, ok := f.objects[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return b, nil
}

func (f *fakeSink) PresignGet(_ context.Context, name string, _ time.Duration) (string, error) {
	return "https://bucket.test/exports/" + name + "?sig=1", nil
}

// harness is an App over an in-memory database, a software authenticator
// answering with pin, a fake remote and a fake S3 sink.
type harness struct {
	t      *testing.T
	app    *App
	out    *bytes.Buffer
	repos  *client.Repositories
	remote *fakeRemote
	sink   *fakeSink

	mu  sync.Mutex
	pin string
}

func (h *harness) setPIN(pin string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pin = pin
}

func (h *harness) verifier() passkey.UserVerifier {
	return passkey.UserVerifierFunc(func(context.Context, string, bool) (string, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.pin, nil
	})
}

func newHarness(t *testing.T, input string) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := client.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		t:      t,
		out:    &bytes.Buffer{},
		repos:  client.NewRepositories(db),
		remote: &fakeRemote{},
		sink:   &fakeSink{objects: map[string][]byte{}},
		pin:    "2468",
	}
	h.app = h.build(strings.NewReader(input))
	require.NoError(t, h.app.Start(ctx))
	return h
}

// build wires a fresh App over the harness database.
func (h *harness) build(in io.Reader) *App {
	store := services.NewProfileStore(h.repos.Metadata, nil)
	locks := services.NewLockManager(h.repos.Metadata, nil)
	auth := passkey.NewSoftwareAuthenticator(h.repos.Credentials, h.verifier(), passkey.WithArgon2Params(fastArgon))

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RemoteBaseURL = "http://remote.test"

	return newApp(cfg, Deps{
		Store:       store,
		Locks:       locks,
		Gateway:     passkey.NewGateway(auth, passkey.WithKeyRing(auth)),
		Credentials: auth,
		Backup:      services.NewBackupService(store, locks, cryptox.PBKDF2MinIterations, nil),
		Sync:        services.NewSyncService(h.repos.Queue, h.remote, store, h.repos.Metadata, nil),
		Remote:      h.remote,
		Sink:        h.sink,
	}, in, h.out)
}

func (h *harness) run(cmd func(context.Context, []string) error, args ...string) error {
	h.t.Helper()
	h.out.Reset()
	return cmd(context.Background(), args)
}

func (h *harness) must(cmd func(context.Context, []string) error, args ...string) string {
	h.t.Helper()
	require.NoError(h.t, h.run(cmd, args...))
	return h.out.String()
}

// stubSecrets answers getSecret prompts in order.
func stubSecrets(t *testing.T, answers ...string) {
	t.Helper()
	orig := getSecret
	var mu sync.Mutex
	getSecret = func(io.Writer, string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(answers) == 0 {
			return nil, io.EOF
		}
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
	t.Cleanup(func() { getSecret = orig })
}

func silencePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		parts := make([]string, len(a))
		for i, v := range a {
			parts[i] = toString(v)
		}
		lines = append(lines, strings.Join(parts, " "))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
