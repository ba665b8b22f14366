package models

import (
	"fmt"

	apperrors "github.com/indigoapp/indigo-sync/internal/errors"
)

// Category identifies one independently synchronized slice of
// application state. Each category maps to exactly one serialized value
// locally and exactly one record remotely.
type Category string

const (
	CategoryMessages    Category = "messages"
	CategoryMemories    Category = "memories"
	CategoryJournal     Category = "journal"
	CategoryAIProfile   Category = "ai_profile"
	CategoryUserProfile Category = "user_profile"
	CategorySettings    Category = "settings"
)

// Categories returns the fixed sync order. The order only determines
// iteration and progress reporting; categories are independent
// documents.
func Categories() []Category {
	return []Category{
		CategoryMessages,
		CategoryMemories,
		CategoryJournal,
		CategoryAIProfile,
		CategoryUserProfile,
		CategorySettings,
	}
}

// ParseCategory converts a user-supplied string into a Category.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownCategory, s)
}
