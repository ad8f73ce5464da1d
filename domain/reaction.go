package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reaction exists or not: there is no count, counts are derived by grouping.
type Reaction struct {
	MessageID uuid.UUID
	UserID    string
	Emoji     string
	CreatedAt time.Time
}

// ReactionEntry is one reaction joined with the reacting user's identity.
type ReactionEntry struct {
	Emoji string  `json:"emoji"`
	User  UserRef `json:"user"`
}
