package cryptox

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/indigoapp/indigo-sync/internal/errors"
)

// --- Encrypt / Decrypt round-trip ---

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	plaintexts := []string{
		"",
		"hello",
		`{"messages":[{"id":"1","content":"hi"}]}`,
		"unicode: café 日本語",
	}

	for _, pt := range plaintexts {
		payload, err := Encrypt(pt, "correct horse battery staple")
		require.NoError(t, err)

		got, err := Decrypt(payload, "correct horse battery staple")
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestDecrypt_WrongPassphraseFails(t *testing.T) {
	payload, err := Encrypt("secret journal entry", "passphrase-one")
	require.NoError(t, err)

	_, err = Decrypt(payload, "passphrase-two")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDecryptFailed))
}

func TestDecrypt_TamperedCiphertextFails(t *testing.T) {
	payload, err := Encrypt("some data", "pw")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	require.NoError(t, err)

	raw[0] ^= 0xFF
	payload.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	_, err = Decrypt(payload, "pw")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDecryptFailed))
}

func TestDecrypt_CorruptBase64Fails(t *testing.T) {
	payload, err := Encrypt("some data", "pw")
	require.NoError(t, err)

	payload.Salt = "not base64!!!"

	_, err = Decrypt(payload, "pw")
	require.Error(t, err)
}

// --- freshness and determinism ---

func TestEncrypt_FreshSaltAndIVPerCall(t *testing.T) {
	p1, err := Encrypt("same plaintext", "same passphrase")
	require.NoError(t, err)

	p2, err := Encrypt("same plaintext", "same passphrase")
	require.NoError(t, err)

	assert.NotEqual(t, p1.Ciphertext, p2.Ciphertext)
	assert.NotEqual(t, p1.IV, p2.IV)
	assert.NotEqual(t, p1.Salt, p2.Salt)
}

func TestHashData_Deterministic(t *testing.T) {
	h1 := HashData("some content")
	h2 := HashData("some content")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")

	assert.NotEqual(t, h1, HashData("other content"))
}

func TestEncrypt_NFKCEquivalentPassphrases(t *testing.T) {
	// Fullwidth 'A' (U+FF21) normalizes to ASCII 'A' under NFKC, so a
	// passphrase typed with an IME on one device must decrypt payloads
	// produced on another.
	payload, err := Encrypt("cross-device data", "Ａbc")
	require.NoError(t, err)

	got, err := Decrypt(payload, "Abc")
	require.NoError(t, err)
	assert.Equal(t, "cross-device data", got)
}

// --- ValidatePassphrase ---

func TestValidatePassphrase(t *testing.T) {
	payload, err := Encrypt("probe", "right")
	require.NoError(t, err)

	assert.True(t, ValidatePassphrase(payload, "right"))
	assert.False(t, ValidatePassphrase(payload, "wrong"))
}

func TestValidatePassphrase_GarbagePayload(t *testing.T) {
	assert.False(t, ValidatePassphrase(Payload{
		Ciphertext: "AAAA",
		IV:         "AAAA",
		Salt:       "AAAA",
	}, "pw"))
}
