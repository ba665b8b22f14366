// Package remote talks to the cloud sync backend: a PostgREST-style
// row store holding one encrypted record per (user, data category),
// authenticated with an API key and a bearer access token. Plaintext
// never reaches this backend; records are sealed by internal/cryptox
// before upload and opened after download.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/indigoapp/indigo-sync/internal/cryptox"
	apperrors "github.com/indigoapp/indigo-sync/internal/errors"
	"github.com/indigoapp/indigo-sync/internal/models"
)

const (
	// syncTable is the REST resource holding sync records.
	syncTable = "/rest/v1/sync_data"

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads. Sync records are small
	// JSON payloads; anything larger indicates a misbehaving server.
	maxResponseBytes = 4 * 1024 * 1024

	// maxRedirects is the maximum number of HTTP redirects to follow.
	maxRedirects = 10
)

// TransientError wraps an error that is likely temporary and safe to
// retry on the next sync run.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Client is the remote store client. One configured Client is shared by
// all sync operations; it is injected into the orchestrator so tests
// can substitute a double.
type Client struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
	token      string
	logger     *slog.Logger

	// now is the clock used for last_modified stamps. Overridable in
	// tests.
	now func() time.Time
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the bearer token never leaks to
// a third-party domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 && req.URL.Host != via[0].URL.Host {
		return fmt.Errorf("redirect to different host blocked: %s -> %s", via[0].URL.Host, req.URL.Host)
	}

	return nil
}

// NewClient creates a remote store client. If httpClient is nil, a
// client with a 30-second timeout and same-host redirect policy is
// used.
func NewClient(baseURL, anonKey, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		anonKey:    anonKey,
		token:      token,
		logger:     logger,
		now:        time.Now,
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages: 256 bytes max, control characters
// replaced, so server output cannot inject into logs.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// do sends one authenticated request and returns the response body.
// Network errors are wrapped as transient; non-2xx statuses become
// errors carrying a sanitized body excerpt.
func (c *Client) do(ctx context.Context, method, path string, prefer string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.token)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts, connection refusals and DNS failures are transient
		// by nature.
		return nil, &TransientError{Err: fmt.Errorf("%w: sending %s %s: %v", apperrors.ErrAPIRequest, method, path, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: %s %s returned status %d: %s",
			apperrors.ErrAPIResponse, method, path, resp.StatusCode, sanitizeResponseBody(respBody))
		if isTransientStatus(resp.StatusCode) {
			return nil, &TransientError{Err: err}
		}

		return nil, err
	}

	return respBody, nil
}

// keyQuery builds the filter query string selecting one (user,
// category) row.
func keyQuery(userID string, category models.Category) string {
	return "user_id=eq." + url.QueryEscape(userID) + "&data_type=eq." + url.QueryEscape(string(category))
}

// Upload encrypts plaintext, computes its content hash, and upserts the
// sync record for (userID, category) with a fresh last_modified stamp.
// Returns the stamp so the caller can record it as the category's local
// sync timestamp.
func (c *Client) Upload(ctx context.Context, userID string, category models.Category, plaintext, passphrase string) (int64, error) {
	payload, err := cryptox.Encrypt(plaintext, passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypting %s: %w", category, err)
	}

	now := c.now()
	rec := record{
		UserID:        userID,
		DataType:      string(category),
		EncryptedData: payload.Ciphertext,
		IV:            payload.IV,
		Salt:          payload.Salt,
		DataHash:      cryptox.HashData(plaintext),
		LastModified:  now.UnixMilli(),
		UpdatedAt:     now.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal([]record{rec})
	if err != nil {
		return 0, fmt.Errorf("marshalling %s record: %w", category, err)
	}

	path := syncTable + "?on_conflict=" + url.QueryEscape("user_id,data_type")
	if _, err := c.do(ctx, http.MethodPost, path, "resolution=merge-duplicates,return=minimal", body); err != nil {
		return 0, fmt.Errorf("uploading %s: %w", category, err)
	}

	return rec.LastModified, nil
}

// Download fetches and decrypts the sync record for (userID, category).
// Returns nil (not an error) when no record exists yet.
func (c *Client) Download(ctx context.Context, userID string, category models.Category, passphrase string) (*Downloaded, error) {
	path := syncTable + "?select=encrypted_data,iv,salt,last_modified&" + keyQuery(userID, category)

	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", category, err)
	}

	rows := gjson.GetBytes(body, "#").Int()
	if rows == 0 {
		return nil, nil
	}

	payload := cryptox.Payload{
		Ciphertext: gjson.GetBytes(body, "0.encrypted_data").Str,
		IV:         gjson.GetBytes(body, "0.iv").Str,
		Salt:       gjson.GetBytes(body, "0.salt").Str,
	}

	plaintext, err := cryptox.Decrypt(payload, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", category, err)
	}

	return &Downloaded{
		Plaintext:    plaintext,
		LastModified: gjson.GetBytes(body, "0.last_modified").Int(),
	}, nil
}

// RemoteTimestamp returns the last_modified stamp of the record for
// (userID, category) without decrypting anything. Returns 0 when the
// record is absent and also on lookup failure: callers treat 0 as "no
// remote data". A transient failure here makes the next sync
// re-bootstrap by push, which last-write-wins tolerates; the failure is
// logged so it is not silent.
func (c *Client) RemoteTimestamp(ctx context.Context, userID string, category models.Category) int64 {
	path := syncTable + "?select=last_modified&" + keyQuery(userID, category)

	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		c.logger.Warn("remote timestamp lookup failed, treating as absent",
			slog.String("category", string(category)),
			slog.String("error", err.Error()),
		)

		return 0
	}

	return gjson.GetBytes(body, "0.last_modified").Int()
}

// DeleteAll removes every sync record for the user. Irreversible.
func (c *Client) DeleteAll(ctx context.Context, userID string) error {
	path := syncTable + "?user_id=eq." + url.QueryEscape(userID)

	if _, err := c.do(ctx, http.MethodDelete, path, "return=minimal", nil); err != nil {
		return fmt.Errorf("deleting cloud data: %w", err)
	}

	return nil
}
