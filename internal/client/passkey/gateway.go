package passkey

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/logging"
)

// Gateway runs ceremonies against an Authenticator. It is safe for
// concurrent use; starting a ceremony cancels the one in flight.
type Gateway struct {
	auth    Authenticator
	keys    KeyRing
	log     logging.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc
}

type Option func(*Gateway)

// WithKeyRing sets the source of public keys used to verify assertions.
// Without one the gateway falls back to the authenticator if it implements
// KeyRing, and otherwise trusts the authenticator's answer.
func WithKeyRing(k KeyRing) Option { return func(g *Gateway) { g.keys = k } }

func WithLogger(l logging.Logger) Option { return func(g *Gateway) { g.log = l } }

// WithTimeout overrides CeremonyTimeout.
func WithTimeout(d time.Duration) Option { return func(g *Gateway) { g.timeout = d } }

func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

func NewGateway(auth Authenticator, opts ...Option) *Gateway {
	g := &Gateway{
		auth:    auth,
		log:     logging.Discard(),
		timeout: CeremonyTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	if g.keys == nil {
		if k, ok := auth.(KeyRing); ok {
			g.keys = k
		}
	}
	return g
}

// Available reports whether a platform authenticator can be used.
func (g *Gateway) Available(ctx context.Context) bool {
	return g.auth != nil && g.auth.Available(ctx)
}

// begin registers a new ceremony, cancelling any previous one.
func (g *Gateway) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	g.mu.Lock()
	if g.cancel != nil {
		g.cancel(ErrCancelled)
	}
	g.seq++
	id := g.seq
	g.cancel = cancel
	g.mu.Unlock()

	tctx, tcancel := context.WithTimeout(ctx, g.timeout)
	return tctx, func() {
		tcancel()
		g.mu.Lock()
		if g.seq == id {
			g.cancel = nil
		}
		g.mu.Unlock()
		cancel(nil)
	}
}

// Cancel aborts the ceremony in flight, if any.
func (g *Gateway) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel(ErrCancelled)
		g.cancel = nil
	}
}

// CreateCredential runs a creation ceremony with a fresh challenge and user
// handle and returns the reference to persist.
func (g *Gateway) CreateCredential(ctx context.Context, displayName string) (Ref, error) {
	if !g.Available(ctx) {
		return "", ErrUnsupported
	}

	ctx, done := g.begin(ctx)
	defer done()

	opts := CreationOptions{
		RelyingParty: RelyingParty,
		DisplayName:  displayName,
		UserHandle:   common.GenerateRandByteArray(UserHandleSize),
		Challenge:    common.GenerateRandByteArray(ChallengeSize),
		Timeout:      g.timeout,
	}

	cred, err := g.auth.Create(ctx, opts)
	if err != nil {
		err = classify(ctx, err)
		g.log.Warn(ctx, "passkey creation failed", "error", err)
		return "", err
	}
	if len(cred.ID) == 0 {
		return "", fmt.Errorf("%w: empty credential id", ErrVerificationFailed)
	}
	if len(cred.PublicKey) == ed25519.PublicKeySize && !ed25519.Verify(cred.PublicKey, opts.Challenge, cred.Signature) {
		return "", fmt.Errorf("%w: bad attestation signature", ErrVerificationFailed)
	}

	ref := RefFromID(cred.ID)
	g.log.Info(ctx, "passkey created", "credential", ref)
	return ref, nil
}

// RequestAssertion runs an assertion ceremony for ref and returns a Proof
// on success.
func (g *Gateway) RequestAssertion(ctx context.Context, ref Ref) (Proof, error) {
	if ref == "" {
		return Proof{}, ErrNoCredential
	}
	id, err := ref.ID()
	if err != nil {
		return Proof{}, err
	}
	if !g.Available(ctx) {
		return Proof{}, ErrUnsupported
	}

	ctx, done := g.begin(ctx)
	defer done()

	opts := RequestOptions{
		RelyingParty: RelyingParty,
		CredentialID: id,
		Challenge:    common.GenerateRandByteArray(ChallengeSize),
		Timeout:      g.timeout,
	}

	a, err := g.auth.Get(ctx, opts)
	if err != nil {
		err = classify(ctx, err)
		g.log.Warn(ctx, "passkey assertion failed", "credential", ref, "error", err)
		return Proof{}, err
	}
	if len(a.CredentialID) > 0 && !bytes.Equal(a.CredentialID, id) {
		return Proof{}, fmt.Errorf("%w: assertion for another credential", ErrVerificationFailed)
	}
	if err := g.verify(ctx, id, opts.Challenge, a.Signature); err != nil {
		g.log.Warn(ctx, "passkey assertion rejected", "credential", ref, "error", err)
		return Proof{}, err
	}

	g.log.Debug(ctx, "passkey assertion verified", "credential", ref)
	return Proof{ref: ref, at: g.now()}, nil
}

func (g *Gateway) verify(ctx context.Context, id, challenge, sig []byte) error {
	if g.keys == nil {
		return nil
	}
	pub, err := g.keys.PublicKey(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if len(pub) != ed25519.PublicKeySize || !ed25519.Verify(pub, challenge, sig) {
		return fmt.Errorf("%w: bad signature", ErrVerificationFailed)
	}
	return nil
}

// classify maps an authenticator error onto the gateway taxonomy.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(context.Cause(ctx), ErrCancelled):
		return ErrCancelled
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrNoCredential),
		errors.Is(err, ErrCancelled), errors.Is(err, ErrVerificationFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out", ErrVerificationFailed)
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
}
