package chat

import (
	"time"

	"chat-hub/domain"

	"github.com/google/uuid"
)

// PostMessageCommand is the client-supplied part of a message.
// The sender always comes from the authenticated session.
type PostMessageCommand struct {
	Content     string
	ChannelID   string
	RecipientID string
	ParentID    *uuid.UUID
	Attachment  *domain.Attachment
}

func (p PostMessageCommand) Destination() domain.Destination {
	return domain.Destination{ChannelID: p.ChannelID, RecipientID: p.RecipientID}
}

type GetMessagesCommand struct {
	ChannelID   string
	RecipientID string
	Cursor      *string
}

func (g GetMessagesCommand) Destination() domain.Destination {
	return domain.Destination{ChannelID: g.ChannelID, RecipientID: g.RecipientID}
}

type ToggleReactionCommand struct {
	MessageID uuid.UUID
	Emoji     string `validate:"required,max=64"`
}

type SetStatusCommand struct {
	Status string `validate:"required,oneof=online busy offline"`
	// ConnectionID is the poster's own connection, excluded from the echo.
	ConnectionID string
}

type UpdateProfileCommand struct {
	Username    string `validate:"omitempty,max=64"`
	DisplayName string `validate:"omitempty,max=128"`
	AvatarURL   string `validate:"omitempty,url"`
}

type CreateChannelCommand struct {
	Name string `validate:"required,max=80"`
}

type InviteCommand struct {
	ChannelID string
	InviteeID string `validate:"required"`
}

// Clock lets tests pin timestamps.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }
