// Package domain contains core concepts of the chat system.
// This file defines Message rows and their destination context.
// Messages are immutable once persisted and validated by the services.
package domain

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Destination scopes a message: exactly one of ChannelID or RecipientID is set.
type Destination struct {
	ChannelID   string
	RecipientID string
}

func ChannelDestination(channelID string) Destination {
	return Destination{ChannelID: channelID}
}

func DirectDestination(recipientID string) Destination {
	return Destination{RecipientID: recipientID}
}

func (d Destination) IsChannel() bool { return d.ChannelID != "" && d.RecipientID == "" }

func (d Destination) IsDirect() bool { return d.RecipientID != "" && d.ChannelID == "" }

func (d Destination) IsEmpty() bool { return d.ChannelID == "" && d.RecipientID == "" }

// Valid reports whether exactly one context is set.
func (d Destination) Valid() bool { return d.IsChannel() || d.IsDirect() }

// ConversationKey identifies the timeline a message belongs to.
// A direct conversation between two users has the same key from both sides.
func (d Destination) ConversationKey(senderID string) string {
	if d.IsChannel() {
		return "c:" + d.ChannelID
	}
	pair := []string{senderID, d.RecipientID}
	sort.Strings(pair)
	// The length of the first id keeps "a|b"+"c" apart from "a"+"b|c"
	return "d:" + strconv.Itoa(len(pair[0])) + ":" + pair[0] + "|" + pair[1]
}

// Attachment is stored inline with its message.
type Attachment struct {
	Name     string `validate:"required,max=255"`
	URL      string `validate:"required"`
	Size     int64  `validate:"gte=0"`
	MimeType string `validate:"required"`
}

// Message is one persisted chat row.
type Message struct {
	ID          uuid.UUID
	SenderID    string
	Content     string
	Destination Destination
	ParentID    *uuid.UUID
	Attachment  *Attachment
	CreatedAt   time.Time
}
