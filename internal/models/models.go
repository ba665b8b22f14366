// Package models defines the application data that the sync engine
// moves between devices. Field names mirror the JSON the companion UI
// reads and writes, so a record pushed from any device round-trips
// without loss.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single chat message between the user and the companion.
type Message struct {
	ID          string `json:"id"`
	Role        string `json:"role"` // "user" or "assistant"
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
	ImageURL    string `json:"imageUrl,omitempty"`
	FileContent string `json:"fileContent,omitempty"`
	FileName    string `json:"fileName,omitempty"`
}

// Memory is a long-term fact the companion has retained about the user.
type Memory struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Category    string `json:"category"` // general, personal, preference, event
	Strength    int    `json:"strength"`
	IsImportant bool   `json:"isImportant"`
	CreatedAt   int64  `json:"createdAt"`
}

// JournalEntry is one dated journal page, written by the user or
// generated by the companion.
type JournalEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Mood      string `json:"mood"`
	CreatedAt int64  `json:"createdAt"`
}

// AIProfile describes the companion persona.
type AIProfile struct {
	Name              string   `json:"name"`
	Persona           string   `json:"persona"`
	Backstory         string   `json:"backstory"`
	PersonalityTraits []string `json:"personalityTraits"`
	RelationshipType  string   `json:"relationshipType"`
	ResponseStyle     string   `json:"responseStyle"`
	ResponseLength    string   `json:"responseLength"`
	VoiceGender       string   `json:"voiceGender"`
	Appearance        string   `json:"appearance"`
}

// UserProfile holds what the user has told the companion about
// themselves.
type UserProfile struct {
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	Preferences string `json:"preferences"`
	Info        string `json:"info"`
}

// AppSettings holds user-tunable application settings. LLMAPIKey and
// ImageAPIKey are device-local secrets: they are blanked before the
// settings category leaves the device and preserved from the local copy
// when a pulled record is applied.
type AppSettings struct {
	LLMAPIKey            string  `json:"llmApiKey"`
	LLMAPIURL            string  `json:"llmApiUrl"`
	LLMModel             string  `json:"llmModel"`
	ImageAPIKey          string  `json:"imageApiKey"`
	ImageAPIURL          string  `json:"imageApiUrl"`
	ImageModel           string  `json:"imageModel"`
	ImageStyle           string  `json:"imageStyle"`
	Language             string  `json:"language"`
	ResponseStyle        string  `json:"responseStyle"`
	ResponseLength       string  `json:"responseLength"`
	NotificationsEnabled bool    `json:"notificationsEnabled"`
	TTSEnabled           bool    `json:"ttsEnabled"`
	TTSVoice             string  `json:"ttsVoice"`
	TTSRate              float64 `json:"ttsRate"`
	TTSPitch             float64 `json:"ttsPitch"`
}

// SyncedImagePlaceholder replaces inline image URLs in messages before
// sync. Image binary data never travels through content sync; the
// placeholder keeps message shape intact on other devices.
const SyncedImagePlaceholder = "[synced-image-placeholder]"

// DefaultAIProfile returns the built-in companion persona, used when no
// local profile exists yet.
func DefaultAIProfile() AIProfile {
	return AIProfile{
		Name:              "Indigo",
		Persona:           "a warm, curious companion",
		PersonalityTraits: []string{"empathetic", "playful", "attentive"},
		RelationshipType:  "friend",
		ResponseStyle:     "casual",
		ResponseLength:    "medium",
		VoiceGender:       "neutral",
	}
}

// DefaultUserProfile returns an empty user profile.
func DefaultUserProfile() UserProfile {
	return UserProfile{}
}

// DefaultSettings returns the out-of-the-box application settings.
func DefaultSettings() AppSettings {
	return AppSettings{
		LLMModel:       "gemini-2.0-flash",
		ImageModel:     "flux-schnell",
		ImageStyle:     "photorealistic",
		Language:       "en",
		ResponseStyle:  "casual",
		ResponseLength: "medium",
		TTSRate:        1.0,
		TTSPitch:       1.0,
	}
}

// NewMessage creates a message with a fresh ID and the current time.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewMemory creates a memory with a fresh ID and the current time.
func NewMemory(content, category string, strength int, important bool) Memory {
	return Memory{
		ID:          uuid.NewString(),
		Content:     content,
		Category:    category,
		Strength:    strength,
		IsImportant: important,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

// NewJournalEntry creates a journal entry with a fresh ID and the
// current time.
func NewJournalEntry(title, content, mood string) JournalEntry {
	return JournalEntry{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		Mood:      mood,
		CreatedAt: time.Now().UnixMilli(),
	}
}
