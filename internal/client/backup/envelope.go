// Package backup encodes the whole profile as a password-protected JSON
// envelope for export, decodes envelopes and legacy plain exports on import,
// and optionally keeps envelopes in an S3 bucket.
package backup

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/cryptox"
)

const (
	EnvelopeVersion = 1

	AlgorithmAESGCM = "AES-GCM"
	KDFPBKDF2       = "PBKDF2"
	KDFArgon2id     = "Argon2id"
	HashSHA256      = "SHA-256"

	SaltSize          = 16
	DefaultIterations = 310_000
)

var (
	// ErrDecryptFailed covers a wrong password and corrupt ciphertext.
	ErrDecryptFailed = errors.New("backup: decryption failed")
	// ErrMalformed means the input is neither an envelope nor a plain export.
	ErrMalformed = errors.New("backup: malformed export")
	// ErrWeakParams rejects key derivation settings below the minimum.
	ErrWeakParams = errors.New("backup: key derivation parameters too weak")
)

// Envelope is the encrypted export file. For Argon2id, Iterations holds the
// time cost and Memory (KiB) and Threads are set as well.
type Envelope struct {
	Version    int    `json:"version"`
	Algorithm  string `json:"algorithm"`
	KDF        string `json:"kdf"`
	Hash       string `json:"hash,omitempty"`
	Iterations int    `json:"iterations"`
	Memory     uint32 `json:"memory,omitempty"`
	Threads    uint8  `json:"threads,omitempty"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// Profile is the exported profile. Categories holds the schema as stored,
// either the object form or a bare section array.
type Profile struct {
	UserData     map[string]string `json:"userData"`
	ProfileImage string            `json:"profileImage,omitempty"`
	PinnedFields []string          `json:"pinnedFields"`
	UpiQrImage   string            `json:"upiQrImage,omitempty"`
	Categories   json.RawMessage   `json:"categories,omitempty"`
}

// Payload is the plaintext of an envelope and the layout of legacy exports.
type Payload struct {
	Profile Profile `json:"profile"`
}

type options struct {
	kdf        string
	iterations int
	argon      cryptox.Argon2Params
}

type Option func(*options)

// WithIterations sets the PBKDF2 iteration count.
func WithIterations(n int) Option {
	return func(o *options) { o.iterations = n }
}

// WithArgon2id switches key derivation to Argon2id.
func WithArgon2id(p cryptox.Argon2Params) Option {
	return func(o *options) {
		o.kdf = KDFArgon2id
		o.argon = p
	}
}

// Encrypt seals p under a key derived from password with a fresh salt.
func Encrypt(p Payload, password string, opts ...Option) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", common.ErrorInvalidArgument)
	}

	o := options{kdf: KDFPBKDF2, iterations: DefaultIterations}
	for _, fn := range opts {
		fn(&o)
	}

	env := Envelope{
		Version:   EnvelopeVersion,
		Algorithm: AlgorithmAESGCM,
		KDF:       o.kdf,
	}
	switch o.kdf {
	case KDFArgon2id:
		if o.argon.Time == 0 || o.argon.Memory == 0 || o.argon.Threads == 0 {
			return nil, ErrWeakParams
		}
		env.Iterations = int(o.argon.Time)
		env.Memory = o.argon.Memory
		env.Threads = o.argon.Threads
	default:
		if o.iterations < cryptox.PBKDF2MinIterations {
			return nil, fmt.Errorf("%w: %d iterations, minimum is %d", ErrWeakParams, o.iterations, cryptox.PBKDF2MinIterations)
		}
		env.Hash = HashSHA256
		env.Iterations = o.iterations
	}

	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	salt := common.GenerateRandByteArray(SaltSize)
	key, err := deriveKey(env, []byte(password), salt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	sealed, err := cryptox.SealBytes(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt export: %w", err)
	}

	env.Salt = base64.StdEncoding.EncodeToString(salt)
	env.IV = sealed.IV
	env.Ciphertext = sealed.Ciphertext

	return json.MarshalIndent(env, "", "  ")
}

func deriveKey(env Envelope, password, salt []byte) ([]byte, error) {
	switch env.KDF {
	case KDFPBKDF2, "":
		if env.Hash != "" && env.Hash != HashSHA256 {
			return nil, fmt.Errorf("%w: unsupported hash %q", ErrMalformed, env.Hash)
		}
		if env.Iterations <= 0 {
			return nil, fmt.Errorf("%w: iterations missing", ErrMalformed)
		}
		return cryptox.DerivePBKDF2Key(password, salt, env.Iterations), nil
	case KDFArgon2id:
		if env.Iterations <= 0 || env.Memory == 0 || env.Threads == 0 {
			return nil, fmt.Errorf("%w: argon2id parameters missing", ErrMalformed)
		}
		p := cryptox.Argon2Params{Time: uint32(env.Iterations), Memory: env.Memory, Threads: env.Threads}
		return cryptox.DeriveArgon2Key(password, salt, p), nil
	default:
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrMalformed, env.KDF)
	}
}

// IsEnvelope reports whether data looks like an encrypted export: a JSON
// object carrying any of ciphertext, salt or iv.
func IsEnvelope(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	for _, k := range []string{"ciphertext", "salt", "iv"} {
		if _, ok := probe[k]; ok {
			return true
		}
	}
	return false
}

// Decrypt opens an envelope, or parses a legacy plain export, in which case
// password is ignored. Nothing is returned unless the whole input is valid.
func Decrypt(data []byte, password string) (Payload, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !IsEnvelope(data) {
		return parsePayload(data, probe)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Salt == "" || env.IV == "" || env.Ciphertext == "" {
		return Payload{}, fmt.Errorf("%w: incomplete envelope", ErrMalformed)
	}
	if env.Algorithm != "" && env.Algorithm != AlgorithmAESGCM {
		return Payload{}, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformed, env.Algorithm)
	}
	if env.Version > EnvelopeVersion {
		return Payload{}, fmt.Errorf("%w: unsupported version %d", ErrMalformed, env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: salt: %v", ErrMalformed, err)
	}

	key, err := deriveKey(env, []byte(password), salt)
	if err != nil {
		return Payload{}, err
	}
	defer common.WipeByteArray(key)

	plaintext, err := cryptox.OpenBytes(cryptox.Sealed{IV: env.IV, Ciphertext: env.Ciphertext}, key)
	if err != nil {
		return Payload{}, ErrDecryptFailed
	}

	var inner map[string]json.RawMessage
	if err := json.Unmarshal(plaintext, &inner); err != nil {
		return Payload{}, fmt.Errorf("%w: decrypted content: %v", ErrMalformed, err)
	}
	return parsePayload(plaintext, inner)
}

func parsePayload(data []byte, probe map[string]json.RawMessage) (Payload, error) {
	if _, ok := probe["profile"]; !ok {
		return Payload{}, fmt.Errorf("%w: profile missing", ErrMalformed)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Profile.UserData == nil {
		p.Profile.UserData = map[string]string{}
	}
	return p, nil
}
