// Package passkey is the gateway to the platform authenticator.
//
// The Gateway runs creation and assertion ceremonies against an
// Authenticator, enforces that at most one ceremony is in flight, and maps
// every outcome onto a small set of sentinel errors. A successful assertion
// yields a Proof, which callers hand to operations that require prior user
// authentication. Only the Gateway can mint a valid Proof.
package passkey

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupported means no platform authenticator is available.
	ErrUnsupported = errors.New("passkey: platform authenticator unavailable")
	// ErrNoCredential means the referenced credential does not exist.
	ErrNoCredential = errors.New("passkey: credential not found")
	// ErrCancelled means the user or the application aborted the ceremony.
	ErrCancelled = errors.New("passkey: ceremony cancelled")
	// ErrVerificationFailed covers wrong user verification, bad signatures
	// and ceremony timeouts.
	ErrVerificationFailed = errors.New("passkey: verification failed")
)

const (
	// CeremonyTimeout bounds every creation and assertion ceremony.
	CeremonyTimeout = 60 * time.Second
	// ChallengeSize is the length of the random challenge of each ceremony.
	ChallengeSize = 32
	// UserHandleSize is the length of the random user handle of a new credential.
	UserHandleSize = 16
	// RelyingParty identifies this application to the authenticator.
	RelyingParty = "myid.local"
)

// Ref is the persisted credential reference: the base64url (unpadded)
// encoding of the credential id.
type Ref string

// RefFromID encodes a raw credential id.
func RefFromID(id []byte) Ref {
	return Ref(base64.RawURLEncoding.EncodeToString(id))
}

// ID decodes the raw credential id.
func (r Ref) ID() ([]byte, error) {
	id, err := base64.RawURLEncoding.DecodeString(string(r))
	if err != nil || len(id) == 0 {
		return nil, fmt.Errorf("%w: malformed credential reference", ErrNoCredential)
	}
	return id, nil
}

func (r Ref) String() string { return string(r) }

// Proof records a successful assertion. The zero Proof is invalid.
type Proof struct {
	ref Ref
	at  time.Time
}

// Valid reports whether p came from a successful assertion.
func (p Proof) Valid() bool { return p.ref != "" }

// Ref returns the credential that produced the proof.
func (p Proof) Ref() Ref { return p.ref }

// At returns when the assertion completed.
func (p Proof) At() time.Time { return p.at }

// CreationOptions are handed to Authenticator.Create.
type CreationOptions struct {
	RelyingParty string
	DisplayName  string
	UserHandle   []byte
	Challenge    []byte
	Timeout      time.Duration
}

// Credential is the result of a creation ceremony. Signature is a
// self-attestation over the creation challenge.
type Credential struct {
	ID        []byte
	PublicKey ed25519.PublicKey
	Signature []byte
}

// RequestOptions are handed to Authenticator.Get.
type RequestOptions struct {
	RelyingParty string
	CredentialID []byte
	Challenge    []byte
	Timeout      time.Duration
}

// Assertion is the result of an assertion ceremony: a signature over the
// request challenge with the credential's private key.
type Assertion struct {
	CredentialID []byte
	UserHandle   []byte
	Signature    []byte
	SignCount    uint32
}

// Authenticator is the platform API. Implementations must honour ctx and
// opts.Timeout and return ErrNoCredential for unknown credential ids.
type Authenticator interface {
	Available(ctx context.Context) bool
	Create(ctx context.Context, opts CreationOptions) (Credential, error)
	Get(ctx context.Context, opts RequestOptions) (Assertion, error)
}

// KeyRing resolves the public key of a credential so assertions can be
// verified.
type KeyRing interface {
	PublicKey(ctx context.Context, credentialID []byte) (ed25519.PublicKey, error)
}
