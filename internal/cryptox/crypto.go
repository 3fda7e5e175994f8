// Package cryptox is the symmetric cipher adapter used by the client.
//
// It wraps AES-256-GCM for field-level encryption and key derivation
// functions (PBKDF2-SHA256 for password-protected exports, Argon2id for
// PIN verifiers). All functions are stateless and operate on byte buffers;
// key management lives in the callers.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DataKeySize is the length of generated AES-256 data keys.
	DataKeySize = 32
	// NonceSize is the AES-GCM nonce (IV) length.
	NonceSize = 12
	// PBKDF2MinIterations is the lowest iteration count accepted for
	// password-based export keys.
	PBKDF2MinIterations = 100_000
)

var (
	// ErrDecrypt reports an authentication failure, a wrong key or a
	// malformed sealed value. Callers cannot tell these apart.
	ErrDecrypt = errors.New("decryption failed")
	// ErrInvalidKey reports a key of the wrong size.
	ErrInvalidKey = errors.New("invalid key size")
)

// Sealed is the persisted form of one encrypted value. Both fields are
// standard base64.
type Sealed struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// GenerateDataKey returns a fresh random AES-256 key.
func GenerateDataKey() ([]byte, error) {
	key := make([]byte, DataKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncodeKey encodes raw key material for storage.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey parses key material produced by EncodeKey and checks its size.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != DataKeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-GCM under key using a new random nonce.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. Any failure, including a
// nonce of the wrong length, is reported as ErrDecrypt.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, ErrDecrypt
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// SealString encrypts value and returns its base64 {iv, ciphertext} form.
func SealString(value string, key []byte) (Sealed, error) {
	return SealBytes([]byte(value), key)
}

// SealBytes is SealString for raw bytes.
func SealBytes(plaintext, key []byte) (Sealed, error) {
	ciphertext, nonce, err := Encrypt(plaintext, key)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// OpenString reverses SealString.
func OpenString(s Sealed, key []byte) (string, error) {
	b, err := OpenBytes(s, key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// OpenBytes reverses SealBytes. Invalid base64 is reported as ErrDecrypt.
func OpenBytes(s Sealed, key []byte) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(s.IV)
	if err != nil {
		return nil, ErrDecrypt
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return nil, ErrDecrypt
	}
	return Decrypt(ciphertext, nonce, key)
}

// SealJSON marshals v and seals the result.
func SealJSON(v any, key []byte) (Sealed, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Sealed{}, err
	}
	return SealBytes(b, key)
}

// OpenJSON opens s and unmarshals the plaintext into v.
func OpenJSON(s Sealed, key []byte, v any) error {
	b, err := OpenBytes(s, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// DerivePBKDF2Key derives a 32-byte key from password with PBKDF2-HMAC-SHA256.
func DerivePBKDF2Key(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, DataKeySize, sha256.New)
}

// Argon2Params configures DeriveArgon2Key.
type Argon2Params struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

// DefaultArgon2Params are the parameters used for PIN verifiers.
var DefaultArgon2Params = Argon2Params{Time: 1, Memory: 64 * 1024, Threads: 4}

// DeriveArgon2Key derives a 32-byte key from password with Argon2id.
func DeriveArgon2Key(password, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, DataKeySize)
}

// MakeVerifier hashes derived key material so it can be stored and compared
// without keeping the key itself.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}
