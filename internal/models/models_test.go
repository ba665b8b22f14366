package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/indigoapp/indigo-sync/internal/errors"
)

func TestCategories_FixedOrder(t *testing.T) {
	want := []Category{
		CategoryMessages,
		CategoryMemories,
		CategoryJournal,
		CategoryAIProfile,
		CategoryUserProfile,
		CategorySettings,
	}

	assert.Equal(t, want, Categories())
}

func TestParseCategory(t *testing.T) {
	for _, cat := range Categories() {
		got, err := ParseCategory(string(cat))
		require.NoError(t, err)
		assert.Equal(t, cat, got)
	}

	_, err := ParseCategory("images_meta")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownCategory))
}

func TestNewMessage_AssignsIDAndTimestamp(t *testing.T) {
	msg := NewMessage("user", "hello")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "user", msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.NotZero(t, msg.Timestamp)

	other := NewMessage("assistant", "hi")
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestLoadPersona_MissingFileReturnsDefault(t *testing.T) {
	profile, err := LoadPersona(filepath.Join(t.TempDir(), "persona.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAIProfile(), profile)
}

func TestLoadPersona_OverlaysNonZeroFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"name: Juniper\npersonality_traits:\n  - dry\n  - loyal\nresponse_style: formal\n",
	), 0o600))

	profile, err := LoadPersona(path)
	require.NoError(t, err)

	assert.Equal(t, "Juniper", profile.Name)
	assert.Equal(t, []string{"dry", "loyal"}, profile.PersonalityTraits)
	assert.Equal(t, "formal", profile.ResponseStyle)

	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultAIProfile().RelationshipType, profile.RelationshipType)
	assert.Equal(t, DefaultAIProfile().ResponseLength, profile.ResponseLength)
}

func TestLoadPersona_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [unclosed"), 0o600))

	_, err := LoadPersona(path)
	require.Error(t, err)
}
