package remote

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/indigoapp/indigo-sync/internal/errors"
)

// UserIDFromToken extracts the user identity (the "sub" claim) from an
// access token. The signature is not verified here: only the backend
// can do that, and it rejects forged tokens on every request. The
// client merely needs the identity to key its own records.
func UserIDFromToken(token string) (string, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing sub claim", apperrors.ErrInvalidToken)
	}

	return sub, nil
}

// CheckTokenExpiry logs a warning when the access token is expired or
// close to expiring. Sync requests would then fail with auth errors
// that are easy to misread as network problems; the warning names the
// real cause up front.
func CheckTokenExpiry(token string, logger *slog.Logger) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}

	until := time.Until(exp.Time)

	switch {
	case until <= 0:
		logger.Warn("access token is expired, sync requests will be rejected",
			slog.Time("expired_at", exp.Time),
		)
	case until < 10*time.Minute:
		logger.Warn("access token expires soon",
			slog.Duration("expires_in", until),
		)
	}
}
