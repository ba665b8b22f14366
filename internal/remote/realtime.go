package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const (
	// heartbeatInterval is how often the phoenix heartbeat is sent.
	// The server drops channels idle for more than a minute.
	heartbeatInterval = 25 * time.Second

	// reconnectMin and reconnectMax bound the exponential backoff
	// between reconnect attempts.
	reconnectMin = 5 * time.Second
	reconnectMax = 5 * time.Minute

	// reconnectBackoffMultiplier is the growth factor applied to the
	// backoff after each consecutive failure.
	reconnectBackoffMultiplier = 2

	// jitterDivisor controls the random jitter added to the backoff:
	// uniform in [0, backoff/jitterDivisor).
	jitterDivisor = 2

	// notifyChanSize buffers change notifications. The watcher only
	// needs an edge signal, so a small buffer suffices; extra
	// notifications while one is pending are dropped.
	notifyChanSize = 1
)

// phoenixMessage is the envelope of the realtime channel protocol.
type phoenixMessage struct {
	Topic   string         `json:"topic"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
	Ref     string         `json:"ref"`
}

// Realtime subscribes to change notifications for one user's sync
// records. It exists purely to nudge the auto-sync watcher when
// another device pushes; sync correctness never depends on it, so
// every failure path here degrades to "no nudge" rather than an error
// surfaced to the user.
type Realtime struct {
	baseURL string
	anonKey string
	token   string
	userID  string
	logger  *slog.Logger

	notify chan struct{}
}

// NewRealtime creates a realtime subscriber for the given user.
func NewRealtime(baseURL, anonKey, token, userID string, logger *slog.Logger) *Realtime {
	return &Realtime{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		anonKey: anonKey,
		token:   token,
		userID:  userID,
		logger:  logger,
		notify:  make(chan struct{}, notifyChanSize),
	}
}

// Notifications returns the channel signalled whenever a remote change
// to this user's sync records is observed.
func (r *Realtime) Notifications() <-chan struct{} {
	return r.notify
}

// topic returns the phoenix channel topic filtered to this user's rows.
func (r *Realtime) topic() string {
	return "realtime:public:sync_data:user_id=eq." + r.userID
}

// wsURL converts the REST base URL into the realtime websocket URL.
func (r *Realtime) wsURL() string {
	ws := strings.Replace(r.baseURL, "https://", "wss://", 1)
	ws = strings.Replace(ws, "http://", "ws://", 1)

	return ws + "/realtime/v1/websocket?vsn=1.0.0&apikey=" + url.QueryEscape(r.anonKey)
}

// Run connects and listens until ctx is cancelled, reconnecting with
// jittered exponential backoff on failure. Always returns ctx.Err().
func (r *Realtime) Run(ctx context.Context) error {
	backoff := reconnectMin

	for {
		err := r.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		jitter := time.Duration(rand.Int64N(int64(backoff) / jitterDivisor)) //nolint:gosec // G404: reconnect jitter has no security impact

		r.logger.Warn("realtime connection lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff+jitter),
		)

		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*reconnectBackoffMultiplier, reconnectMax)
	}
}

// listenOnce dials, joins the channel, and pumps messages until the
// connection drops or ctx is cancelled.
func (r *Realtime) listenOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, r.wsURL(), nil) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return fmt.Errorf("dialing realtime websocket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	join := phoenixMessage{
		Topic: r.topic(),
		Event: "phx_join",
		Payload: map[string]any{
			"user_token": r.token,
		},
		Ref: "1",
	}
	if err := r.writeJSON(ctx, conn, join); err != nil {
		return fmt.Errorf("joining channel: %w", err)
	}

	r.logger.Info("realtime channel joined", slog.String("topic", r.topic()))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	// The read loop feeds frames; heartbeats interleave from this
	// goroutine via the ticker select below.
	frames := make(chan []byte)
	readErr := make(chan error, 1)

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	go func() {
		for {
			_, data, err := conn.Read(readCtx)
			if err != nil {
				readErr <- err
				return
			}

			select {
			case frames <- data:
			case <-readCtx.Done():
				return
			}
		}
	}()

	ref := 2

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return fmt.Errorf("reading realtime frame: %w", err)

		case <-heartbeat.C:
			hb := phoenixMessage{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: map[string]any{},
				Ref:     fmt.Sprint(ref),
			}
			ref++

			if err := r.writeJSON(ctx, conn, hb); err != nil {
				return fmt.Errorf("sending heartbeat: %w", err)
			}

		case data := <-frames:
			r.handleFrame(data)
		}
	}
}

// handleFrame inspects one inbound frame and signals a notification for
// row-change events on our topic.
func (r *Realtime) handleFrame(data []byte) {
	event := gjson.GetBytes(data, "event").Str

	switch event {
	case "INSERT", "UPDATE", "DELETE":
		category := gjson.GetBytes(data, "payload.record.data_type").Str
		r.logger.Debug("remote change observed",
			slog.String("event", event),
			slog.String("category", category),
		)

		select {
		case r.notify <- struct{}{}:
		default:
			// A notification is already pending; the watcher will sync
			// everything anyway.
		}

	case "phx_reply", "phx_close", "presence_state":
		// Channel bookkeeping, nothing to do.

	default:
		r.logger.Debug("unexpected realtime event", slog.String("event", event))
	}
}

func (r *Realtime) writeJSON(ctx context.Context, conn *websocket.Conn, msg phoenixMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}

	return conn.Write(ctx, websocket.MessageText, data)
}
