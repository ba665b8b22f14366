package sync

import (
	"context"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/indigoapp/indigo-sync/internal/models"
)

// Diff returns a human-readable comparison of the local copy of one
// category against the remote copy, in the same serialized form sync
// uses. Read-only: it is a preview for deciding between push and pull,
// never an input to merging.
func (e *Engine) Diff(ctx context.Context, userID, passphrase string, category models.Category) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	local, err := e.data.SerializeForSync(category)
	if err != nil {
		return "", fmt.Errorf("serializing local %s: %w", category, err)
	}

	down, err := e.remote.Download(ctx, userID, category, passphrase)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", category, err)
	}

	if down == nil {
		return fmt.Sprintf("%s: no remote copy (next sync will push the local data)\n", category), nil
	}

	if local == down.Plaintext {
		return fmt.Sprintf("%s: local and remote are identical\n", category), nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(down.Plaintext, local, false)
	dmp.DiffCleanupSemantic(diffs)

	return dmp.DiffPrettyText(diffs), nil
}
