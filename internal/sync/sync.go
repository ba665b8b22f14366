// Package sync orchestrates last-write-wins synchronization of the six
// app data categories between the local data directory and the
// encrypted cloud store. Timestamps decide direction, content hashes
// suppress no-op uploads, and every category is handled independently
// so one failure never blocks the rest of a sync run.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/indigoapp/indigo-sync/internal/appdata"
	"github.com/indigoapp/indigo-sync/internal/cryptox"
	"github.com/indigoapp/indigo-sync/internal/models"
	"github.com/indigoapp/indigo-sync/internal/remote"
	"github.com/indigoapp/indigo-sync/internal/store"
)

// DefaultCategoryTimeout bounds the handling of a single category when
// the caller does not configure a timeout.
const DefaultCategoryTimeout = 60 * time.Second

// Status describes the outcome of a sync operation.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"

	// StatusConflict is reserved for a future merge flow. The engine
	// resolves every divergence by last-write-wins today and never
	// produces it.
	StatusConflict Status = "conflict"
)

// Action is what the engine did with one category.
type Action string

const (
	// ActionPush uploaded the local copy over the remote one.
	ActionPush Action = "push"

	// ActionPull replaced the local copy with the remote one.
	ActionPull Action = "pull"

	// ActionSkip left both sides untouched: already in sync.
	ActionSkip Action = "skip"
)

// ProgressFunc is invoked after each successfully handled category.
type ProgressFunc func(category models.Category, action Action)

// Conflict records a category that failed during a sync run. The run
// continues past it; the failure is reported, not fatal.
type Conflict struct {
	Category models.Category
	Reason   string
}

// Result summarizes a sync run.
type Result struct {
	Status    Status
	Message   string
	Conflicts []Conflict
}

// RemoteStore is the remote operations the engine needs. Satisfied by
// *remote.Client; substituted with a generated mock in tests.
type RemoteStore interface {
	Upload(ctx context.Context, userID string, category models.Category, plaintext, passphrase string) (int64, error)
	Download(ctx context.Context, userID string, category models.Category, passphrase string) (*remote.Downloaded, error)
	RemoteTimestamp(ctx context.Context, userID string, category models.Category) int64
	DeleteAll(ctx context.Context, userID string) error
}

// Engine drives sync runs. All collaborators are injected; the engine
// itself holds no credentials and no category state.
type Engine struct {
	remote RemoteStore
	data   *appdata.Store
	state  *store.Store
	logger *slog.Logger

	// timeout bounds each category's handling. Zero means
	// DefaultCategoryTimeout.
	timeout time.Duration

	// now is the clock for lastSyncAt stamps. Overridable in tests.
	now func() time.Time
}

// NewEngine creates a sync engine.
func NewEngine(remoteStore RemoteStore, data *appdata.Store, state *store.Store, timeout time.Duration, logger *slog.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultCategoryTimeout
	}

	return &Engine{
		remote:  remoteStore,
		data:    data,
		state:   state,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// PerformSync runs the full last-write-wins pass over every category in
// order. Categories that fail are collected as conflicts and the run
// continues; cancellation stops the run between categories. lastSyncAt
// is persisted whenever at least one category was attempted.
func (e *Engine) PerformSync(ctx context.Context, userID, passphrase string, onProgress ProgressFunc) Result {
	started := e.now()

	var conflicts []Conflict

	for i, category := range models.Categories() {
		if err := ctx.Err(); err != nil {
			// Only record a sync time when at least one category was
			// actually attempted.
			if i > 0 {
				e.recordSyncTime(started)
			}

			return Result{
				Status:    StatusError,
				Message:   fmt.Sprintf("sync cancelled: %v", err),
				Conflicts: conflicts,
			}
		}

		action, err := e.syncCategory(ctx, userID, passphrase, category)
		if err != nil {
			e.logger.Error("category sync failed",
				slog.String("category", string(category)),
				slog.String("error", err.Error()),
			)

			conflicts = append(conflicts, Conflict{Category: category, Reason: err.Error()})

			continue
		}

		e.logger.Info("category synced",
			slog.String("category", string(category)),
			slog.String("action", string(action)),
		)

		if onProgress != nil {
			onProgress(category, action)
		}
	}

	e.recordSyncTime(started)

	if len(conflicts) > 0 {
		return Result{
			Status:    StatusError,
			Message:   fmt.Sprintf("%d of %d categories failed", len(conflicts), len(models.Categories())),
			Conflicts: conflicts,
		}
	}

	return Result{Status: StatusSuccess, Message: "all data synced"}
}

// syncCategory applies the last-write-wins decision to one category.
func (e *Engine) syncCategory(ctx context.Context, userID, passphrase string, category models.Category) (Action, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	plaintext, err := e.data.SerializeForSync(category)
	if err != nil {
		return "", fmt.Errorf("serializing local data: %w", err)
	}

	localTS := e.state.SyncTimestamp(category)
	remoteTS := e.remote.RemoteTimestamp(ctx, userID, category)

	// No remote record (or the lookup failed, which is treated the
	// same): bootstrap the cloud copy from local.
	if remoteTS == 0 {
		return ActionPush, e.push(ctx, userID, passphrase, category, plaintext)
	}

	// Local copy is at least as recent. Download and decrypt the remote
	// copy and compare content hashes; push only when the content
	// actually differs, so clocks that merely tick forward do not cause
	// re-uploads of identical data. Decrypting before the comparison
	// also means a wrong passphrase surfaces as a per-category error
	// here instead of overwriting remote data it could not read.
	if localTS >= remoteTS {
		down, err := e.remote.Download(ctx, userID, category, passphrase)
		if err != nil {
			return "", err
		}

		if down == nil {
			// The record vanished between the timestamp check and the
			// download. Treat it like a bootstrap.
			return ActionPush, e.push(ctx, userID, passphrase, category, plaintext)
		}

		if cryptox.HashData(plaintext) == cryptox.HashData(down.Plaintext) {
			return ActionSkip, nil
		}

		return ActionPush, e.push(ctx, userID, passphrase, category, plaintext)
	}

	// Remote copy is newer: pull it and adopt its timestamp.
	down, err := e.remote.Download(ctx, userID, category, passphrase)
	if err != nil {
		return "", err
	}

	if down == nil {
		// The record vanished between the timestamp check and the
		// download. Treat it like a bootstrap.
		return ActionPush, e.push(ctx, userID, passphrase, category, plaintext)
	}

	if err := e.data.ApplyFromSync(category, down.Plaintext); err != nil {
		return "", fmt.Errorf("applying remote data: %w", err)
	}

	if err := e.state.SetSyncTimestamp(category, down.LastModified); err != nil {
		return "", fmt.Errorf("recording sync timestamp: %w", err)
	}

	return ActionPull, nil
}

// push uploads one category and records the server-assigned timestamp
// as the category's local sync timestamp.
func (e *Engine) push(ctx context.Context, userID, passphrase string, category models.Category, plaintext string) error {
	ts, err := e.remote.Upload(ctx, userID, category, plaintext, passphrase)
	if err != nil {
		return err
	}

	if err := e.state.SetSyncTimestamp(category, ts); err != nil {
		return fmt.Errorf("recording sync timestamp: %w", err)
	}

	return nil
}

// ForcePush uploads every category unconditionally, ignoring
// timestamps. Unlike PerformSync it fails fast: remote state could
// otherwise end up as an inconsistent mix of old and new categories
// without the caller being told which. lastSyncAt is only advanced
// when every category made it up.
func (e *Engine) ForcePush(ctx context.Context, userID, passphrase string, onProgress ProgressFunc) error {
	started := e.now()

	for _, category := range models.Categories() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("push cancelled: %w", err)
		}

		plaintext, err := e.data.SerializeForSync(category)
		if err != nil {
			return fmt.Errorf("serializing %s: %w", category, err)
		}

		if err := e.pushWithTimeout(ctx, userID, passphrase, category, plaintext); err != nil {
			return fmt.Errorf("pushing %s: %w", category, err)
		}

		if onProgress != nil {
			onProgress(category, ActionPush)
		}
	}

	e.recordSyncTime(started)

	return nil
}

func (e *Engine) pushWithTimeout(ctx context.Context, userID, passphrase string, category models.Category, plaintext string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return e.push(ctx, userID, passphrase, category, plaintext)
}

// ForcePull downloads every category unconditionally, overwriting local
// data. Categories with no remote record are skipped, not errors: a
// fresh account has nothing to pull. Fails fast like ForcePush.
func (e *Engine) ForcePull(ctx context.Context, userID, passphrase string, onProgress ProgressFunc) error {
	started := e.now()

	for _, category := range models.Categories() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pull cancelled: %w", err)
		}

		action, err := e.pullOne(ctx, userID, passphrase, category)
		if err != nil {
			return fmt.Errorf("pulling %s: %w", category, err)
		}

		if onProgress != nil {
			onProgress(category, action)
		}
	}

	e.recordSyncTime(started)

	return nil
}

func (e *Engine) pullOne(ctx context.Context, userID, passphrase string, category models.Category) (Action, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	down, err := e.remote.Download(ctx, userID, category, passphrase)
	if err != nil {
		return "", err
	}

	if down == nil {
		return ActionSkip, nil
	}

	if err := e.data.ApplyFromSync(category, down.Plaintext); err != nil {
		return "", err
	}

	if err := e.state.SetSyncTimestamp(category, down.LastModified); err != nil {
		return "", err
	}

	return ActionPull, nil
}

// DeleteCloudData removes every remote record for the user and clears
// the local sync timestamps, so the next sync bootstraps from local
// data. Local app data is untouched.
func (e *Engine) DeleteCloudData(ctx context.Context, userID string) error {
	if err := e.remote.DeleteAll(ctx, userID); err != nil {
		return err
	}

	if err := e.state.ClearSyncTimestamps(); err != nil {
		return fmt.Errorf("clearing sync timestamps: %w", err)
	}

	e.logger.Info("cloud data deleted", slog.String("user_id", userID))

	return nil
}

// recordSyncTime persists the start of the run as lastSyncAt.
func (e *Engine) recordSyncTime(started time.Time) {
	st, err := e.state.SyncState()
	if err != nil {
		e.logger.Warn("loading sync state failed", slog.String("error", err.Error()))

		return
	}

	st.LastSyncAt = started.UnixMilli()

	if err := e.state.SetSyncState(st); err != nil {
		e.logger.Warn("persisting sync state failed", slog.String("error", err.Error()))
	}
}
