package passkey

import (
	"context"
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/cryptox"
	"github.com/dmitrijs2005/myid/internal/logging"
	"golang.org/x/time/rate"
)

// MinPINLength is the shortest PIN accepted when a credential is created.
const MinPINLength = 4

// Wrong PINs are allowed in bursts of MaxPINFailures; afterwards one more
// attempt is earned every PINFailureWindow.
const (
	MaxPINFailures   = 5
	PINFailureWindow = 30 * time.Second
)

var errTooManyFailures = errors.New("too many wrong PINs, try again later")

// UserVerifier performs local user verification and returns the PIN the
// user entered. create is true while a new credential is being set up.
type UserVerifier interface {
	VerifyUser(ctx context.Context, displayName string, create bool) (string, error)
}

// UserVerifierFunc adapts a function to UserVerifier.
type UserVerifierFunc func(ctx context.Context, displayName string, create bool) (string, error)

func (f UserVerifierFunc) VerifyUser(ctx context.Context, displayName string, create bool) (string, error) {
	return f(ctx, displayName, create)
}

// SoftwareAuthenticator emulates a platform authenticator: each credential
// is an ed25519 key pair whose private half is sealed under a PIN-derived
// key and stored in the credentials repository.
type SoftwareAuthenticator struct {
	repo   credentials.Repository
	uv     UserVerifier
	params cryptox.Argon2Params
	now    func() time.Time
	log    logging.Logger

	failures *rate.Limiter
}

type SoftwareOption func(*SoftwareAuthenticator)

// WithArgon2Params overrides the PIN key derivation cost.
func WithArgon2Params(p cryptox.Argon2Params) SoftwareOption {
	return func(a *SoftwareAuthenticator) { a.params = p }
}

func WithSoftwareLogger(l logging.Logger) SoftwareOption {
	return func(a *SoftwareAuthenticator) { a.log = l }
}

// WithPINFailureLimit overrides how many wrong PINs are tolerated and how
// fast the allowance refills.
func WithPINFailureLimit(every time.Duration, burst int) SoftwareOption {
	return func(a *SoftwareAuthenticator) { a.failures = rate.NewLimiter(rate.Every(every), burst) }
}

func WithSoftwareClock(now func() time.Time) SoftwareOption {
	return func(a *SoftwareAuthenticator) { a.now = now }
}

func NewSoftwareAuthenticator(repo credentials.Repository, uv UserVerifier, opts ...SoftwareOption) *SoftwareAuthenticator {
	a := &SoftwareAuthenticator{
		repo:   repo,
		uv:     uv,
		params: cryptox.DefaultArgon2Params,
		now:    time.Now,
		log:    logging.Discard(),

		failures: rate.NewLimiter(rate.Every(PINFailureWindow), MaxPINFailures),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *SoftwareAuthenticator) Available(context.Context) bool {
	return a.repo != nil && a.uv != nil
}

// verifyUser asks for the PIN without outliving ctx or timeout.
func (a *SoftwareAuthenticator) verifyUser(ctx context.Context, timeout time.Duration, displayName string, create bool) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		pin string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pin, err := a.uv.VerifyUser(ctx, displayName, create)
		ch <- result{pin, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.pin, r.err
	}
}

func (a *SoftwareAuthenticator) Create(ctx context.Context, opts CreationOptions) (Credential, error) {
	pin, err := a.verifyUser(ctx, opts.Timeout, opts.DisplayName, true)
	if err != nil {
		return Credential{}, err
	}
	if utf8.RuneCountInString(pin) < MinPINLength {
		return Credential{}, fmt.Errorf("%w: PIN must have at least %d characters", ErrVerificationFailed, MinPINLength)
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Credential{}, err
	}
	seed := priv.Seed()
	defer common.WipeByteArray(seed)

	salt := common.GenerateRandByteArray(16)
	key := cryptox.DeriveArgon2Key([]byte(pin), salt, a.params)
	defer common.WipeByteArray(key)

	sealed, err := cryptox.SealBytes(seed, key)
	if err != nil {
		return Credential{}, fmt.Errorf("seal credential key: %w", err)
	}

	id := common.GenerateRandByteArray(16)
	stored := &models.StoredCredential{
		ID:          string(RefFromID(id)),
		UserHandle:  opts.UserHandle,
		DisplayName: opts.DisplayName,
		PublicKey:   pub,
		SealedKey:   sealed,
		PinSalt:     salt,
		PinParams:   a.params,
		PinVerifier: cryptox.MakeVerifier(key),
		CreatedAt:   a.now().UTC(),
	}
	if err := a.repo.Create(ctx, stored); err != nil {
		return Credential{}, err
	}

	a.log.Info(ctx, "software credential created", "credential", stored.ID)
	return Credential{ID: id, PublicKey: pub, Signature: ed25519.Sign(priv, opts.Challenge)}, nil
}

func (a *SoftwareAuthenticator) load(ctx context.Context, id []byte) (*models.StoredCredential, error) {
	c, err := a.repo.Get(ctx, string(RefFromID(id)))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, ErrNoCredential
	}
	return c, err
}

func (a *SoftwareAuthenticator) Get(ctx context.Context, opts RequestOptions) (Assertion, error) {
	c, err := a.load(ctx, opts.CredentialID)
	if err != nil {
		return Assertion{}, err
	}

	if a.failures.Tokens() < 1 {
		return Assertion{}, fmt.Errorf("%w: %v", ErrVerificationFailed, errTooManyFailures)
	}

	pin, err := a.verifyUser(ctx, opts.Timeout, c.DisplayName, false)
	if err != nil {
		return Assertion{}, err
	}

	key := cryptox.DeriveArgon2Key([]byte(pin), c.PinSalt, c.PinParams)
	defer common.WipeByteArray(key)

	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), c.PinVerifier) != 1 {
		a.failures.Allow()
		a.log.Warn(ctx, "wrong PIN", "credential", c.ID)
		return Assertion{}, fmt.Errorf("%w: wrong PIN", ErrVerificationFailed)
	}

	seed, err := cryptox.OpenBytes(c.SealedKey, key)
	if err != nil || len(seed) != ed25519.SeedSize {
		return Assertion{}, fmt.Errorf("%w: credential key unreadable", ErrVerificationFailed)
	}
	defer common.WipeByteArray(seed)
	priv := ed25519.NewKeyFromSeed(seed)

	count := c.SignCount + 1
	if err := a.repo.UpdateSignCount(ctx, c.ID, count); err != nil {
		return Assertion{}, err
	}

	return Assertion{
		CredentialID: opts.CredentialID,
		UserHandle:   c.UserHandle,
		Signature:    ed25519.Sign(priv, opts.Challenge),
		SignCount:    count,
	}, nil
}

// PublicKey implements KeyRing.
func (a *SoftwareAuthenticator) PublicKey(ctx context.Context, credentialID []byte) (ed25519.PublicKey, error) {
	c, err := a.load(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(c.PublicKey), nil
}

// Delete removes a credential. Unknown ids are ignored.
func (a *SoftwareAuthenticator) Delete(ctx context.Context, ref Ref) error {
	return a.repo.Delete(ctx, string(ref))
}
