// Package cryptox implements passphrase-based authenticated encryption
// for cloud sync payloads.
//
// Every Encrypt call generates a fresh random salt and IV, derives a
// 256-bit key from the passphrase with PBKDF2-SHA256, and seals the
// plaintext with AES-256-GCM. Nothing derived from the passphrase is
// cached or persisted: the key exists only for the duration of a single
// operation, and two encryptions of identical plaintext never produce
// correlatable ciphertext.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/indigoapp/indigo-sync/internal/errors"
)

const (
	// pbkdf2Iterations is the PBKDF2 iteration count. Deliberately
	// expensive; key derivation dominates the cost of every sync
	// operation.
	pbkdf2Iterations = 100_000

	// keyLen is the derived AES key length in bytes (AES-256).
	keyLen = 32

	// saltLen is the random salt length in bytes.
	saltLen = 16

	// ivLen is the GCM nonce length in bytes.
	ivLen = 12
)

// Payload is an encrypted sync record body. All three fields are
// base64-encoded and safe to store or transmit as text.
type Payload struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
}

// deriveKey stretches a passphrase and salt into an AES-256 key.
// The passphrase is NFKC-normalized first so that visually identical
// input entered on different platforms derives the same key.
func deriveKey(passphrase string, salt []byte) []byte {
	normalized := norm.NFKC.String(passphrase)
	return pbkdf2.Key([]byte(normalized), salt, pbkdf2Iterations, keyLen, sha256.New)
}

// Encrypt seals plaintext under a key derived from the passphrase.
// Salt and IV are freshly random on every call and are returned inside
// the payload; they are required for decryption and carry no secret.
func Encrypt(plaintext, passphrase string) (Payload, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return Payload{}, fmt.Errorf("generating salt: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return Payload{}, fmt.Errorf("generating IV: %w", err)
	}

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return Payload{}, err
	}

	ciphertext := gcm.Seal(nil, iv, []byte(plaintext), nil)

	return Payload{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// Decrypt re-derives the key from the payload's salt and the supplied
// passphrase and opens the ciphertext. A failed authentication tag
// (wrong passphrase or tampered payload) returns ErrDecryptFailed,
// never garbage plaintext.
func Decrypt(p Payload, passphrase string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	iv, err := base64.StdEncoding.DecodeString(p.IV)
	if err != nil {
		return "", fmt.Errorf("decoding IV: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(p.Salt)
	if err != nil {
		return "", fmt.Errorf("decoding salt: %w", err)
	}

	if len(iv) != ivLen {
		return "", fmt.Errorf("invalid IV length %d: expected %d bytes", len(iv), ivLen)
	}

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		// cipher.AEAD deliberately returns an opaque error on tag
		// mismatch; map it to the sentinel callers branch on.
		return "", fmt.Errorf("%w: %v", apperrors.ErrDecryptFailed, err)
	}

	return string(plaintext), nil
}

// HashData returns the hex SHA-256 digest of data. Used only for local
// change detection between two plaintexts, never for authentication or
// access control.
func HashData(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// ValidatePassphrase reports whether the passphrase decrypts the
// payload. The underlying error is swallowed: callers use this to
// verify a passphrase before committing to a sync session.
func ValidatePassphrase(p Payload, passphrase string) bool {
	_, err := Decrypt(p, passphrase)
	return err == nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return gcm, nil
}
