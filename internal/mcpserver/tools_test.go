package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indigoapp/indigo-sync/internal/appdata"
	"github.com/indigoapp/indigo-sync/internal/models"
	"github.com/indigoapp/indigo-sync/internal/store"
	"github.com/indigoapp/indigo-sync/internal/sync"
)

// testSetup seeds app data, registers tools on an MCP server, and
// returns a connected client session for calling tools.
func testSetup(t *testing.T, runSync RunSyncFunc) (*mcp.ClientSession, *store.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	data, err := appdata.New(t.TempDir(), logger)
	require.NoError(t, err)

	require.NoError(t, data.SaveMemories([]models.Memory{
		{ID: "m1", Content: "Prefers tea over coffee", Category: "preference", Strength: 3},
		{ID: "m2", Content: "Drinks green tea every morning", Category: "preference", Strength: 5, IsImportant: true},
		{ID: "m3", Content: "Started a pottery class", Category: "event", Strength: 2},
	}))

	require.NoError(t, data.SaveJournal([]models.JournalEntry{
		{ID: "j1", Title: "Monday", Content: "Long day at work.", Mood: "tired", CreatedAt: 100},
		{ID: "j2", Title: "Tuesday", Content: "Pottery class was fun.", Mood: "happy", CreatedAt: 200},
		{ID: "j3", Title: "Wednesday", Content: "Quiet evening.", Mood: "happy", CreatedAt: 300},
	}))

	st, err := store.OpenAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	if runSync == nil {
		runSync = func(context.Context) sync.Result {
			return sync.Result{Status: sync.StatusSuccess, Message: "all data synced"}
		}
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: "indigo-sync-test", Version: "test"},
		nil,
	)
	RegisterTools(server, data, st, runSync)

	ctx := context.Background()
	t1, t2 := mcp.NewInMemoryTransports()
	_, err = server.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := mcp.NewClient(
		&mcp.Implementation{Name: "test-client", Version: "test"},
		nil,
	)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return session, st
}

// callTool is a helper that calls a tool and returns the result.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)

	return result
}

// extractJSON unmarshals the first text content from a CallToolResult.
func extractJSON(t *testing.T, result *mcp.CallToolResult, dest interface{}) {
	t.Helper()

	require.NotEmpty(t, result.Content, "result has no content")
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "first content is not TextContent")
	require.NoError(t, json.Unmarshal([]byte(tc.Text), dest))
}

// --- search_memories ---

func TestSearchMemories(t *testing.T) {
	session, _ := testSetup(t, nil)

	result := callTool(t, session, "search_memories", map[string]interface{}{"query": "tea"})

	var out SearchMemoriesResult
	extractJSON(t, result, &out)

	require.Equal(t, 2, out.Total)
	assert.Equal(t, "m2", out.Memories[0].ID, "important memory ranks first")
	assert.Equal(t, "m1", out.Memories[1].ID)
}

func TestSearchMemories_CategoryFilter(t *testing.T) {
	session, _ := testSetup(t, nil)

	result := callTool(t, session, "search_memories", map[string]interface{}{
		"query":    "pottery",
		"category": "event",
	})

	var out SearchMemoriesResult
	extractJSON(t, result, &out)

	require.Equal(t, 1, out.Total)
	assert.Equal(t, "m3", out.Memories[0].ID)
}

func TestSearchMemories_MaxResults(t *testing.T) {
	session, _ := testSetup(t, nil)

	result := callTool(t, session, "search_memories", map[string]interface{}{
		"query":       "tea",
		"max_results": 1,
	})

	var out SearchMemoriesResult
	extractJSON(t, result, &out)

	assert.Equal(t, 2, out.Total, "total counts all matches")
	assert.Len(t, out.Memories, 1)
}

func TestSearchMemories_EmptyQuery(t *testing.T) {
	session, _ := testSetup(t, nil)

	// Rejected either by schema validation or by the handler; both
	// surface as a failed call.
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_memories",
		Arguments: map[string]interface{}{"query": ""},
	})
	if err == nil {
		assert.True(t, result.IsError)
	}
}

// --- add_memory ---

func TestAddMemory(t *testing.T) {
	session, _ := testSetup(t, nil)

	result := callTool(t, session, "add_memory", map[string]interface{}{
		"content":   "Allergic to peanuts",
		"category":  "personal",
		"important": true,
	})

	var out AddMemoryResult
	extractJSON(t, result, &out)

	assert.NotEmpty(t, out.Memory.ID)
	assert.Equal(t, "Allergic to peanuts", out.Memory.Content)
	assert.Equal(t, "personal", out.Memory.Category)
	assert.Equal(t, 3, out.Memory.Strength, "strength defaults to 3")
	assert.True(t, out.Memory.IsImportant)
	assert.NotZero(t, out.Memory.CreatedAt)
	assert.Equal(t, 4, out.Total, "appended to the three seeded memories")

	// The stored memory is visible to subsequent reads.
	search := callTool(t, session, "search_memories", map[string]interface{}{"query": "peanuts"})

	var found SearchMemoriesResult
	extractJSON(t, search, &found)

	require.Equal(t, 1, found.Total)
	assert.Equal(t, out.Memory.ID, found.Memories[0].ID)
}

func TestAddMemory_RejectsBadInput(t *testing.T) {
	session, _ := testSetup(t, nil)

	for name, args := range map[string]map[string]interface{}{
		"blank content":    {"content": "   "},
		"unknown category": {"content": "x", "category": "gossip"},
		"strength too big": {"content": "x", "strength": 9},
	} {
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "add_memory",
			Arguments: args,
		})
		if err == nil {
			assert.True(t, result.IsError, name)
		}
	}
}

// --- read_journal ---

func TestReadJournal_NewestFirst(t *testing.T) {
	session, _ := testSetup(t, nil)

	result := callTool(t, session, "read_journal", map[string]interface{}{})

	var out ReadJournalResult
	extractJSON(t, result, &out)

	require.Equal(t, 3, out.Total)
	assert.Equal(t, "j3", out.Entries[0].ID)
	assert.Equal(t, "j1", out.Entries[2].ID)
}

func TestReadJournal_MoodFilter(t *testing.T) {
	session, _ := testSetup(t, nil)

	result := callTool(t, session, "read_journal", map[string]interface{}{"mood": "happy"})

	var out ReadJournalResult
	extractJSON(t, result, &out)

	require.Equal(t, 2, out.Total)

	for _, entry := range out.Entries {
		assert.Equal(t, "happy", entry.Mood)
	}
}

// --- get_sync_status ---

func TestGetSyncStatus(t *testing.T) {
	session, st := testSetup(t, nil)

	state, err := st.SyncState()
	require.NoError(t, err)
	state.Enabled = true
	state.AutoSync = true
	state.LastSyncAt = 1700000000000
	require.NoError(t, st.SetSyncState(state))
	require.NoError(t, st.SetSyncTimestamp(models.CategoryMemories, 1700000000000))

	result := callTool(t, session, "get_sync_status", map[string]interface{}{})

	var out SyncStatusResult
	extractJSON(t, result, &out)

	assert.True(t, out.Enabled)
	assert.Equal(t, int64(1700000000000), out.LastSyncAt)
	assert.NotEmpty(t, out.LastSync)
	require.Len(t, out.Categories, len(models.Categories()))

	for _, cs := range out.Categories {
		if cs.Category == string(models.CategoryMemories) {
			assert.Equal(t, int64(1700000000000), cs.LastSyncedAt)
		} else {
			assert.Zero(t, cs.LastSyncedAt)
		}
	}
}

// --- trigger_sync ---

func TestTriggerSync(t *testing.T) {
	var called bool

	session, _ := testSetup(t, func(context.Context) sync.Result {
		called = true

		return sync.Result{
			Status:  sync.StatusError,
			Message: "1 of 6 categories failed",
			Conflicts: []sync.Conflict{
				{Category: models.CategoryJournal, Reason: "server exploded"},
			},
		}
	})

	result := callTool(t, session, "trigger_sync", map[string]interface{}{})

	var out TriggerSyncResult
	extractJSON(t, result, &out)

	assert.True(t, called)
	assert.Equal(t, "error", out.Status)
	require.Len(t, out.Conflicts, 1)
	assert.Contains(t, out.Conflicts[0], "journal")
	assert.Contains(t, out.Conflicts[0], "server exploded")
}
