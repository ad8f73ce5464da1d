package domain

import (
	"time"

	"github.com/google/uuid"
)

type Channel struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

type Invitation struct {
	ID        uuid.UUID
	ChannelID string
	InviterID string
	InviteeID string
	CreatedAt time.Time
}
