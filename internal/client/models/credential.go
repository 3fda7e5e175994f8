package models

import (
	"time"

	"github.com/dmitrijs2005/myid/internal/cryptox"
)

// StoredCredential is a passkey held by the software authenticator.
//
// The ed25519 private key never touches disk in clear: SealedKey holds it
// encrypted under a key derived from the user's PIN (Argon2id with PinSalt
// and PinParams). PinVerifier lets the authenticator reject a wrong PIN
// before attempting to open the key.
type StoredCredential struct {
	ID          string
	UserHandle  []byte
	DisplayName string
	PublicKey   []byte
	SealedKey   cryptox.Sealed
	PinSalt     []byte
	PinParams   cryptox.Argon2Params
	PinVerifier []byte
	SignCount   uint32
	CreatedAt   time.Time
}
