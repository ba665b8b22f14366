package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealtime_HandleFrame(t *testing.T) {
	r := NewRealtime("https://example.test", "anon", "token", "user-1", testLogger())

	drained := func() bool {
		select {
		case <-r.Notifications():
			return true
		default:
			return false
		}
	}

	r.handleFrame([]byte(`{"topic":"realtime:public:sync_data:user_id=eq.user-1","event":"UPDATE","payload":{"record":{"data_type":"memories"}}}`))
	assert.True(t, drained(), "row change should signal a notification")

	r.handleFrame([]byte(`{"topic":"phoenix","event":"phx_reply","payload":{}}`))
	assert.False(t, drained(), "channel bookkeeping must not signal")

	// Back-to-back changes collapse into at most one pending signal.
	r.handleFrame([]byte(`{"event":"INSERT","payload":{"record":{"data_type":"journal"}}}`))
	r.handleFrame([]byte(`{"event":"DELETE","payload":{"record":{"data_type":"journal"}}}`))
	assert.True(t, drained())
	assert.False(t, drained())
}

func TestRealtime_URLs(t *testing.T) {
	r := NewRealtime("https://proj.supabase.co/", "anon key", "token", "user-1", testLogger())

	assert.Equal(t, "realtime:public:sync_data:user_id=eq.user-1", r.topic())
	assert.Equal(t, "wss://proj.supabase.co/realtime/v1/websocket?vsn=1.0.0&apikey=anon+key", r.wsURL())
}
