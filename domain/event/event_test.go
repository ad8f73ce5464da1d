package event

import (
	"encoding/json"
	"testing"
	"time"

	"chat-hub/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEncode_Message_Carries_Tag_And_Required_Fields(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	parent := uuid.New()
	msg := domain.Message{
		ID:          uuid.New(),
		SenderID:    "alice",
		Content:     "hello",
		Destination: domain.ChannelDestination("7"),
		ParentID:    &parent,
		Attachment:  &domain.Attachment{Name: "a.png", URL: "/attachments/x.png", Size: 12, MimeType: "image/png"},
		CreatedAt:   at,
	}

	frame, err := Encode(FromMessage(msg, domain.User{ID: "alice", Username: "alice", DisplayName: "Alice"}))
	req.NoError(err)

	var decoded struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	req.NoError(json.Unmarshal(frame, &decoded))
	req.Equal("message", decoded.Type)
	req.Equal(msg.ID.String(), decoded.Data["id"])
	req.Equal("hello", decoded.Data["content"])
	req.Equal("7", decoded.Data["channelId"])
	req.NotContains(decoded.Data, "recipientId")
	req.Equal(parent.String(), decoded.Data["parentId"])
	req.Equal("2026-03-01T10:00:00Z", decoded.Data["timestamp"])
	req.Equal(map[string]any{"id": "alice", "displayName": "Alice"}, decoded.Data["sender"])
	req.Equal("image/png", decoded.Data["attachment"].(map[string]any)["mimeType"])
}

func TestEncode_ReactionUpdate_Empty_List_Is_An_Array(t *testing.T) {
	req := require.New(t)
	id := uuid.New()

	// Given the last reaction was removed
	frame, err := Encode(ReactionUpdate{MessageID: id, Reactions: []domain.ReactionEntry{}})
	req.NoError(err)

	// Then clients still receive an explicit empty snapshot
	req.JSONEq(`{"type":"reaction_update","data":{"messageId":"`+id.String()+`","reactions":[]}}`, string(frame))
}

func TestEncode_Tags(t *testing.T) {
	tests := []struct {
		evt  Event
		want Tag
	}{
		{Presence{UserID: "bob", Status: domain.Busy}, PresenceTag},
		{Channel{Action: ChannelMemberJoined, ChannelID: "c1", UserID: "bob"}, ChannelTag},
		{ConversationUpdate{Participants: [2]string{"a", "b"}}, ConversationUpdateTag},
		{MessageDeleted{MessageID: uuid.New(), RecipientID: "b", SenderID: "a"}, MessageDeletedTag},
		{ProfileUpdate{User: ProfileData{ID: "a"}}, ProfileUpdateTag},
		{Connected{UserID: "a"}, ConnectedTag},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			req := require.New(t)
			frame, err := Encode(tt.evt)
			req.NoError(err)
			env, err := Decode(frame)
			req.NoError(err)
			req.Equal(tt.want, env.Type)
			req.NotEmpty(env.Data)
		})
	}
}

func TestEncode_Channel_Action_Payload(t *testing.T) {
	req := require.New(t)
	frame, err := Encode(Channel{Action: ChannelMemberLeft, ChannelID: "general", UserID: "carol"})
	req.NoError(err)
	req.JSONEq(`{"type":"channel","data":{"action":"member_left","channelId":"general","userId":"carol"}}`, string(frame))
}

func TestUserRef_Falls_Back_To_Username_Then_ID(t *testing.T) {
	req := require.New(t)
	req.Equal("Alice", domain.User{ID: "1", Username: "alice", DisplayName: "Alice"}.Ref().DisplayName)
	req.Equal("alice", domain.User{ID: "1", Username: "alice"}.Ref().DisplayName)
	req.Equal("1", domain.UnknownUser("1").Ref().DisplayName)
}
