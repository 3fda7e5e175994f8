package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/client/repositories/metadata"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// stubAuth is a platform authenticator that approves every ceremony.
type stubAuth struct {
	id []byte
}

func (a stubAuth) Available(context.Context) bool { return true }

func (a stubAuth) Create(context.Context, passkey.CreationOptions) (passkey.Credential, error) {
	return passkey.Credential{ID: a.id}, nil
}

func (a stubAuth) Get(_ context.Context, opts passkey.RequestOptions) (passkey.Assertion, error) {
	return passkey.Assertion{CredentialID: opts.CredentialID}, nil
}

// blockingAuth blocks every ceremony until its context ends.
type blockingAuth struct {
	started chan struct{}
}

func (a blockingAuth) Available(context.Context) bool { return true }

func (a blockingAuth) Create(ctx context.Context, _ passkey.CreationOptions) (passkey.Credential, error) {
	a.started <- struct{}{}
	<-ctx.Done()
	return passkey.Credential{}, ctx.Err()
}

func (a blockingAuth) Get(ctx context.Context, _ passkey.RequestOptions) (passkey.Assertion, error) {
	a.started <- struct{}{}
	<-ctx.Done()
	return passkey.Assertion{}, ctx.Err()
}

// enroll creates a credential through a stub gateway and returns the gateway
// with the reference.
func enroll(t *testing.T, id string) (*passkey.Gateway, passkey.Ref) {
	t.Helper()
	g := passkey.NewGateway(stubAuth{id: []byte(id)})
	ref, err := g.CreateCredential(context.Background(), "Ada")
	require.NoError(t, err)
	return g, ref
}

func proofFor(t *testing.T, g *passkey.Gateway, ref passkey.Ref) passkey.Proof {
	t.Helper()
	p, err := g.RequestAssertion(context.Background(), ref)
	require.NoError(t, err)
	require.True(t, p.Valid())
	return p
}

// faultyRepo fails Set or Delete for chosen keys. It hides the Batcher of
// the wrapped repository so every write goes through the fault checks.
type faultyRepo struct {
	metadata.Repository

	mu         sync.Mutex
	failSet    map[string]bool
	failDelete map[string]bool
}

func newFaultyRepo(inner metadata.Repository) *faultyRepo {
	return &faultyRepo{Repository: inner, failSet: map[string]bool{}, failDelete: map[string]bool{}}
}

func (f *faultyRepo) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failSet[key]
	f.mu.Unlock()
	if fail {
		return errBoom
	}
	return f.Repository.Set(ctx, key, value)
}

func (f *faultyRepo) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := f.failDelete[key]
	f.mu.Unlock()
	if fail {
		return errBoom
	}
	return f.Repository.Delete(ctx, key)
}

func (f *faultyRepo) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.failSet)
	clear(f.failDelete)
}

func stagingLeft(t *testing.T, r metadata.Repository) []string {
	t.Helper()
	all, err := r.List(context.Background())
	require.NoError(t, err)
	var out []string
	for k := range all {
		if strings.HasPrefix(k, stagingPrefix) {
			out = append(out, k)
		}
	}
	return out
}

func rawKeys(t *testing.T, r metadata.Repository) map[string]string {
	t.Helper()
	all, err := r.List(context.Background())
	require.NoError(t, err)
	out := make(map[string]string, len(all))
	for k, v := range all {
		out[k] = string(v)
	}
	return out
}
