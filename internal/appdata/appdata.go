// Package appdata reads and writes the companion's local application
// state: one JSON document per data category under the data directory.
// It owns the category-specific serialization used for cloud sync,
// including stripping device-local secrets from settings and heavy
// image data from messages before either leaves the device.
package appdata

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/indigoapp/indigo-sync/internal/errors"
	"github.com/indigoapp/indigo-sync/internal/models"
)

const (
	// dataDirPerm is the permission mode for the data directory.
	dataDirPerm = fs.FileMode(0o700)

	// dataFilePerm is the permission mode for category files.
	dataFilePerm = fs.FileMode(0o600)

	// PersonaFileName is the optional persona override file looked up
	// in the data directory.
	PersonaFileName = "persona.yaml"
)

// Store accesses category documents in a data directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, dataDirPerm); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the data directory path. The auto-sync watcher observes
// this directory for local edits.
func (s *Store) Dir() string {
	return s.dir
}

// FileFor returns the path of a category's document.
func (s *Store) FileFor(category models.Category) string {
	return filepath.Join(s.dir, string(category)+".json")
}

// loadInto reads a category document into v. Missing or unparseable
// files leave v at its caller-provided default: a damaged local file is
// a local data problem, not a reason to abort sync.
func (s *Store) loadInto(category models.Category, v any) {
	data, err := os.ReadFile(s.FileFor(category))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read category file, using default",
				slog.String("category", string(category)),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("unparseable category file, using default",
			slog.String("category", string(category)),
			slog.String("error", err.Error()),
		)
	}
}

// save writes a category document. Failures are returned so the caller
// can log them; they never panic.
func (s *Store) save(category models.Category, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing %s: %w", category, err)
	}

	if err := os.WriteFile(s.FileFor(category), data, dataFilePerm); err != nil {
		return fmt.Errorf("writing %s: %w", category, err)
	}

	return nil
}

// Messages returns the chat history, empty when none exists.
func (s *Store) Messages() []models.Message {
	msgs := []models.Message{}
	s.loadInto(models.CategoryMessages, &msgs)

	return msgs
}

// SaveMessages overwrites the chat history.
func (s *Store) SaveMessages(msgs []models.Message) error {
	return s.save(models.CategoryMessages, msgs)
}

// Memories returns the companion's long-term memories.
func (s *Store) Memories() []models.Memory {
	mems := []models.Memory{}
	s.loadInto(models.CategoryMemories, &mems)

	return mems
}

// SaveMemories overwrites the memories.
func (s *Store) SaveMemories(mems []models.Memory) error {
	return s.save(models.CategoryMemories, mems)
}

// Journal returns the journal entries.
func (s *Store) Journal() []models.JournalEntry {
	entries := []models.JournalEntry{}
	s.loadInto(models.CategoryJournal, &entries)

	return entries
}

// SaveJournal overwrites the journal.
func (s *Store) SaveJournal(entries []models.JournalEntry) error {
	return s.save(models.CategoryJournal, entries)
}

// AIProfile returns the companion persona. When no local profile
// exists, the default is seeded from persona.yaml if present.
func (s *Store) AIProfile() models.AIProfile {
	profile, err := models.LoadPersona(filepath.Join(s.dir, PersonaFileName))
	if err != nil {
		s.logger.Warn("failed to load persona file, using built-in default",
			slog.String("error", err.Error()),
		)
	}

	s.loadInto(models.CategoryAIProfile, &profile)

	return profile
}

// SaveAIProfile overwrites the companion persona.
func (s *Store) SaveAIProfile(p models.AIProfile) error {
	return s.save(models.CategoryAIProfile, p)
}

// UserProfile returns the user profile.
func (s *Store) UserProfile() models.UserProfile {
	profile := models.DefaultUserProfile()
	s.loadInto(models.CategoryUserProfile, &profile)

	return profile
}

// SaveUserProfile overwrites the user profile.
func (s *Store) SaveUserProfile(p models.UserProfile) error {
	return s.save(models.CategoryUserProfile, p)
}

// Settings returns the application settings.
func (s *Store) Settings() models.AppSettings {
	settings := models.DefaultSettings()
	s.loadInto(models.CategorySettings, &settings)

	return settings
}

// SaveSettings overwrites the application settings.
func (s *Store) SaveSettings(settings models.AppSettings) error {
	return s.save(models.CategorySettings, settings)
}

// stripMessages removes image and file payloads from messages before
// sync. Image binary data stays on the device; a placeholder keeps the
// message shape intact on other devices.
func stripMessages(msgs []models.Message) []models.Message {
	stripped := make([]models.Message, len(msgs))

	for i, m := range msgs {
		if m.ImageURL != "" {
			m.ImageURL = models.SyncedImagePlaceholder
		}

		m.FileContent = ""
		stripped[i] = m
	}

	return stripped
}

// SerializeForSync returns the canonical plaintext representation of a
// category for encryption and upload. Settings have their API keys
// blanked first: those secrets never leave the device.
func (s *Store) SerializeForSync(category models.Category) (string, error) {
	var v any

	switch category {
	case models.CategoryMessages:
		v = stripMessages(s.Messages())
	case models.CategoryMemories:
		v = s.Memories()
	case models.CategoryJournal:
		v = s.Journal()
	case models.CategoryAIProfile:
		v = s.AIProfile()
	case models.CategoryUserProfile:
		v = s.UserProfile()
	case models.CategorySettings:
		settings := s.Settings()
		settings.LLMAPIKey = ""
		settings.ImageAPIKey = ""
		v = settings
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownCategory, category)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serializing %s for sync: %w", category, err)
	}

	return string(data), nil
}

// ApplyFromSync overwrites a category's local document with a pulled
// remote plaintext. For settings, the device-local API keys are
// preserved from the pre-existing local copy; the remote record always
// carries them blank and must never erase a locally configured key.
func (s *Store) ApplyFromSync(category models.Category, plaintext string) error {
	switch category {
	case models.CategoryMessages:
		var msgs []models.Message
		if err := json.Unmarshal([]byte(plaintext), &msgs); err != nil {
			return fmt.Errorf("parsing pulled %s: %w", category, err)
		}

		return s.SaveMessages(msgs)

	case models.CategoryMemories:
		var mems []models.Memory
		if err := json.Unmarshal([]byte(plaintext), &mems); err != nil {
			return fmt.Errorf("parsing pulled %s: %w", category, err)
		}

		return s.SaveMemories(mems)

	case models.CategoryJournal:
		var entries []models.JournalEntry
		if err := json.Unmarshal([]byte(plaintext), &entries); err != nil {
			return fmt.Errorf("parsing pulled %s: %w", category, err)
		}

		return s.SaveJournal(entries)

	case models.CategoryAIProfile:
		var profile models.AIProfile
		if err := json.Unmarshal([]byte(plaintext), &profile); err != nil {
			return fmt.Errorf("parsing pulled %s: %w", category, err)
		}

		return s.SaveAIProfile(profile)

	case models.CategoryUserProfile:
		var profile models.UserProfile
		if err := json.Unmarshal([]byte(plaintext), &profile); err != nil {
			return fmt.Errorf("parsing pulled %s: %w", category, err)
		}

		return s.SaveUserProfile(profile)

	case models.CategorySettings:
		var pulled models.AppSettings
		if err := json.Unmarshal([]byte(plaintext), &pulled); err != nil {
			return fmt.Errorf("parsing pulled %s: %w", category, err)
		}

		local := s.Settings()
		pulled.LLMAPIKey = local.LLMAPIKey
		pulled.ImageAPIKey = local.ImageAPIKey

		return s.SaveSettings(pulled)

	default:
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownCategory, category)
	}
}
