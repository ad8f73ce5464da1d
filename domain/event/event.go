// Package event defines the events pushed to live connections.
// The set of events is closed: every variant implements Event through the
// unexported marker, so a new kind of event is a compile-time change.
package event

import (
	"encoding/json"
	"time"

	"chat-hub/domain"

	"github.com/google/uuid"
)

type Tag string

const (
	MessageTag            Tag = "message"
	MessageDeletedTag     Tag = "message_deleted"
	ReactionUpdateTag     Tag = "reaction_update"
	PresenceTag           Tag = "presence"
	ChannelTag            Tag = "channel"
	ConversationUpdateTag Tag = "conversation_update"
	ProfileUpdateTag      Tag = "profile_update"
	ConnectedTag          Tag = "connected"
)

type Event interface {
	Tag() Tag
	isEvent()
}

type AttachmentData struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

type Message struct {
	ID          uuid.UUID       `json:"id"`
	Content     string          `json:"content"`
	ChannelID   string          `json:"channelId,omitempty"`
	RecipientID string          `json:"recipientId,omitempty"`
	ParentID    *uuid.UUID      `json:"parentId,omitempty"`
	Sender      domain.UserRef  `json:"sender"`
	Timestamp   time.Time       `json:"timestamp"`
	Attachment  *AttachmentData `json:"attachment,omitempty"`
}

type MessageDeleted struct {
	MessageID   uuid.UUID `json:"messageId"`
	ChannelID   string    `json:"channelId,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	SenderID    string    `json:"senderId"`
}

// ReactionUpdate always carries the full reaction set of the message, never a delta.
type ReactionUpdate struct {
	MessageID uuid.UUID              `json:"messageId"`
	Reactions []domain.ReactionEntry `json:"reactions"`
}

type Presence struct {
	UserID   string        `json:"userId"`
	Status   domain.Status `json:"status"`
	LastSeen time.Time     `json:"lastSeen"`
}

type ChannelAction string

const (
	ChannelCreated           ChannelAction = "created"
	ChannelDeleted           ChannelAction = "deleted"
	ChannelMemberJoined      ChannelAction = "member_joined"
	ChannelMemberLeft        ChannelAction = "member_left"
	ChannelInvitationCreated ChannelAction = "invitation_created"
)

type ChannelData struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type InvitationData struct {
	ID        uuid.UUID `json:"id"`
	InviterID string    `json:"inviterId"`
	InviteeID string    `json:"inviteeId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Channel payload depends on Action: Channel for created, UserID for
// membership changes, Invitation for invitation_created.
type Channel struct {
	Action     ChannelAction   `json:"action"`
	ChannelID  string          `json:"channelId"`
	Channel    *ChannelData    `json:"channel,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	Invitation *InvitationData `json:"invitation,omitempty"`
}

type ConversationUpdate struct {
	Participants [2]string `json:"participants"`
}

type ProfileData struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type ProfileUpdate struct {
	User ProfileData `json:"user"`
}

type Connected struct {
	UserID string `json:"userId"`
}

func (Message) Tag() Tag            { return MessageTag }
func (MessageDeleted) Tag() Tag     { return MessageDeletedTag }
func (ReactionUpdate) Tag() Tag     { return ReactionUpdateTag }
func (Presence) Tag() Tag           { return PresenceTag }
func (Channel) Tag() Tag            { return ChannelTag }
func (ConversationUpdate) Tag() Tag { return ConversationUpdateTag }
func (ProfileUpdate) Tag() Tag      { return ProfileUpdateTag }
func (Connected) Tag() Tag          { return ConnectedTag }

func (Message) isEvent()            {}
func (MessageDeleted) isEvent()     {}
func (ReactionUpdate) isEvent()     {}
func (Presence) isEvent()           {}
func (Channel) isEvent()            {}
func (ConversationUpdate) isEvent() {}
func (ProfileUpdate) isEvent()      {}
func (Connected) isEvent()          {}

// Envelope is the frame written on every transport.
type Envelope struct {
	Type Tag             `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoing struct {
	Type Tag   `json:"type"`
	Data Event `json:"data"`
}

// Encode serializes an event once; the same bytes go to every transport.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(outgoing{Type: e.Tag(), Data: e})
}

// Decode reads the envelope of a frame, leaving Data for the caller.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(frame, &env)
	return env, err
}

func FromMessage(m domain.Message, sender domain.User) Message {
	evt := Message{
		ID:          m.ID,
		Content:     m.Content,
		ChannelID:   m.Destination.ChannelID,
		RecipientID: m.Destination.RecipientID,
		ParentID:    m.ParentID,
		Sender:      sender.Ref(),
		Timestamp:   m.CreatedAt,
	}
	if a := m.Attachment; a != nil {
		evt.Attachment = &AttachmentData{Name: a.Name, URL: a.URL, Size: a.Size, MimeType: a.MimeType}
	}
	return evt
}

func FromPresence(p domain.Presence) Presence {
	return Presence{UserID: p.UserID, Status: p.Status, LastSeen: p.LastSeen}
}

func FromChannel(c domain.Channel) *ChannelData {
	return &ChannelData{ID: c.ID, Name: c.Name, CreatedBy: c.CreatedBy, CreatedAt: c.CreatedAt}
}

func FromInvitation(i domain.Invitation) *InvitationData {
	return &InvitationData{ID: i.ID, InviterID: i.InviterID, InviteeID: i.InviteeID, CreatedAt: i.CreatedAt}
}

func FromUser(u domain.User) ProfileData {
	return ProfileData{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}
