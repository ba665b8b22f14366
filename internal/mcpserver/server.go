package mcpserver

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// APIKeyMiddleware returns HTTP middleware that authenticates requests
// with a static bearer API key. Keys are compared in constant time over
// their SHA-256 digests so neither content nor length leaks through
// timing.
func APIKeyMiddleware(keys []string, logger *slog.Logger) func(http.Handler) http.Handler {
	digests := make([][32]byte, 0, len(keys))
	for _, key := range keys {
		digests = append(digests, sha256.Sum256([]byte(key)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				logger.Debug("mcp: no bearer token",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			presented := sha256.Sum256([]byte(strings.TrimPrefix(authHeader, "Bearer ")))

			for _, digest := range digests {
				if subtle.ConstantTimeCompare(presented[:], digest[:]) == 1 {
					next.ServeHTTP(w, r)

					return
				}
			}

			logger.Debug("mcp: invalid API key",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
}

// NewMux builds the HTTP mux serving the MCP endpoint behind API key
// auth.
func NewMux(mcpHandler http.Handler, apiKeys []string, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/mcp", APIKeyMiddleware(apiKeys, logger)(mcpHandler))

	return mux
}
