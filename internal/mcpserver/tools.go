// Package mcpserver registers MCP tools that expose the companion's
// synced data to assistants: read tools over memories and journal
// entries, add_memory for writing a new memory, and trigger_sync,
// which runs the same sync the daemon would.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/indigoapp/indigo-sync/internal/appdata"
	"github.com/indigoapp/indigo-sync/internal/models"
	"github.com/indigoapp/indigo-sync/internal/store"
	"github.com/indigoapp/indigo-sync/internal/sync"
)

// defaultMaxResults caps search results when the caller does not
// specify a limit.
const defaultMaxResults = 20

// RunSyncFunc runs one sync pass and reports its result.
type RunSyncFunc func(ctx context.Context) sync.Result

// RegisterTools adds all companion data tools to the given MCP server.
func RegisterTools(server *mcp.Server, data *appdata.Store, state *store.Store, runSync RunSyncFunc) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_memories",
		Description: "Search the companion's long-term memories. Case-insensitive substring match on memory content, optionally filtered by category (general, personal, preference, event). Results are ordered important-first, then by strength.",
	}, searchMemoriesHandler(data))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_memory",
		Description: "Store a new long-term memory for the companion. The memory gets a fresh ID and timestamp and is picked up by the next sync.",
	}, addMemoryHandler(data))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_journal",
		Description: "Read journal entries, newest first, optionally filtered by mood. Returns titles, moods, and full content.",
	}, readJournalHandler(data))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_sync_status",
		Description: "Report cloud sync state: whether sync is enabled, when the last sync ran, and the per-category sync timestamps.",
	}, syncStatusHandler(state))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trigger_sync",
		Description: "Run a full sync pass now and report the outcome. Categories that fail are listed; the rest still sync.",
	}, triggerSyncHandler(runSync))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// SearchMemoriesInput holds parameters for search_memories.
type SearchMemoriesInput struct {
	Query      string `json:"query" jsonschema:"required,search query"`
	Category   string `json:"category,omitempty" jsonschema:"memory category filter: general, personal, preference, or event"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results, defaults to 20"`
}

// AddMemoryInput holds parameters for add_memory.
type AddMemoryInput struct {
	Content   string `json:"content" jsonschema:"required,memory content"`
	Category  string `json:"category,omitempty" jsonschema:"memory category: general, personal, preference, or event; defaults to general"`
	Strength  int    `json:"strength,omitempty" jsonschema:"memory strength from 1 to 5, defaults to 3"`
	Important bool   `json:"important,omitempty" jsonschema:"mark the memory as important"`
}

// ReadJournalInput holds parameters for read_journal.
type ReadJournalInput struct {
	Mood  string `json:"mood,omitempty" jsonschema:"only return entries with this mood"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of entries, defaults to 20"`
}

// SyncStatusInput has no parameters.
type SyncStatusInput struct{}

// TriggerSyncInput has no parameters.
type TriggerSyncInput struct{}

// --- Result types ---

// SearchMemoriesResult lists the memories matching a query.
type SearchMemoriesResult struct {
	Query    string          `json:"query"`
	Total    int             `json:"total"`
	Memories []models.Memory `json:"memories"`
}

// AddMemoryResult echoes the stored memory.
type AddMemoryResult struct {
	Memory models.Memory `json:"memory"`
	Total  int           `json:"total"`
}

// ReadJournalResult lists journal entries.
type ReadJournalResult struct {
	Total   int                   `json:"total"`
	Entries []models.JournalEntry `json:"entries"`
}

// CategoryStatus is one category's sync timestamp. LastSyncedAt is
// epoch millis; 0 means never synced.
type CategoryStatus struct {
	Category     string `json:"category"`
	LastSyncedAt int64  `json:"last_synced_at"`
}

// SyncStatusResult reports overall sync state.
type SyncStatusResult struct {
	Enabled    bool             `json:"enabled"`
	AutoSync   bool             `json:"auto_sync"`
	LastSyncAt int64            `json:"last_sync_at"`
	LastSync   string           `json:"last_sync,omitempty"`
	Categories []CategoryStatus `json:"categories"`
}

// TriggerSyncResult reports a sync run's outcome.
type TriggerSyncResult struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// --- Handlers ---

func searchMemoriesHandler(data *appdata.Store) mcp.ToolHandlerFor[SearchMemoriesInput, *SearchMemoriesResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SearchMemoriesInput) (*mcp.CallToolResult, *SearchMemoriesResult, error) {
		if input.Query == "" {
			return nil, nil, fmt.Errorf("query is required")
		}

		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}

		query := strings.ToLower(input.Query)

		var matches []models.Memory

		for _, mem := range data.Memories() {
			if input.Category != "" && mem.Category != input.Category {
				continue
			}

			if strings.Contains(strings.ToLower(mem.Content), query) {
				matches = append(matches, mem)
			}
		}

		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].IsImportant != matches[j].IsImportant {
				return matches[i].IsImportant
			}

			return matches[i].Strength > matches[j].Strength
		})

		total := len(matches)
		if len(matches) > maxResults {
			matches = matches[:maxResults]
		}

		result := &SearchMemoriesResult{Query: input.Query, Total: total, Memories: matches}

		return textResult(result), result, nil
	}
}

func addMemoryHandler(data *appdata.Store) mcp.ToolHandlerFor[AddMemoryInput, *AddMemoryResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input AddMemoryInput) (*mcp.CallToolResult, *AddMemoryResult, error) {
		if strings.TrimSpace(input.Content) == "" {
			return nil, nil, fmt.Errorf("content is required")
		}

		category := input.Category
		if category == "" {
			category = "general"
		}

		switch category {
		case "general", "personal", "preference", "event":
		default:
			return nil, nil, fmt.Errorf("unknown memory category %q", category)
		}

		strength := input.Strength
		if strength == 0 {
			strength = 3
		}

		if strength < 1 || strength > 5 {
			return nil, nil, fmt.Errorf("strength must be between 1 and 5, got %d", strength)
		}

		mem := models.NewMemory(input.Content, category, strength, input.Important)

		memories := append(data.Memories(), mem)
		if err := data.SaveMemories(memories); err != nil {
			return nil, nil, fmt.Errorf("saving memories: %w", err)
		}

		result := &AddMemoryResult{Memory: mem, Total: len(memories)}

		return textResult(result), result, nil
	}
}

func readJournalHandler(data *appdata.Store) mcp.ToolHandlerFor[ReadJournalInput, *ReadJournalResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ReadJournalInput) (*mcp.CallToolResult, *ReadJournalResult, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = defaultMaxResults
		}

		var entries []models.JournalEntry

		for _, entry := range data.Journal() {
			if input.Mood != "" && entry.Mood != input.Mood {
				continue
			}

			entries = append(entries, entry)
		}

		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].CreatedAt > entries[j].CreatedAt
		})

		total := len(entries)
		if len(entries) > limit {
			entries = entries[:limit]
		}

		result := &ReadJournalResult{Total: total, Entries: entries}

		return textResult(result), result, nil
	}
}

func syncStatusHandler(state *store.Store) mcp.ToolHandlerFor[SyncStatusInput, *SyncStatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ SyncStatusInput) (*mcp.CallToolResult, *SyncStatusResult, error) {
		st, err := state.SyncState()
		if err != nil {
			return nil, nil, fmt.Errorf("loading sync state: %w", err)
		}

		result := &SyncStatusResult{
			Enabled:    st.Enabled,
			AutoSync:   st.AutoSync,
			LastSyncAt: st.LastSyncAt,
		}

		if st.LastSyncAt > 0 {
			result.LastSync = time.UnixMilli(st.LastSyncAt).UTC().Format(time.RFC3339)
		}

		for _, cat := range models.Categories() {
			result.Categories = append(result.Categories, CategoryStatus{
				Category:     string(cat),
				LastSyncedAt: state.SyncTimestamp(cat),
			})
		}

		return textResult(result), result, nil
	}
}

func triggerSyncHandler(runSync RunSyncFunc) mcp.ToolHandlerFor[TriggerSyncInput, *TriggerSyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ TriggerSyncInput) (*mcp.CallToolResult, *TriggerSyncResult, error) {
		res := runSync(ctx)

		result := &TriggerSyncResult{
			Status:  string(res.Status),
			Message: res.Message,
		}

		for _, conflict := range res.Conflicts {
			result.Conflicts = append(result.Conflicts, fmt.Sprintf("%s: %s", conflict.Category, conflict.Reason))
		}

		return textResult(result), result, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
