package errors

import "errors"

// Crypto errors.
var (
	// ErrDecryptFailed means the GCM authentication tag did not verify:
	// wrong passphrase or a tampered payload. Never returned for
	// transport problems.
	ErrDecryptFailed = errors.New("decryption failed: wrong passphrase or corrupted data")
)

// Remote store errors.
var (
	ErrInvalidToken = errors.New("invalid or expired access token")
	ErrAPIRequest   = errors.New("remote store request failed")
	ErrAPIResponse  = errors.New("unexpected remote store response")
)

// Local state errors.
var (
	ErrUnknownCategory = errors.New("unknown data category")
)
