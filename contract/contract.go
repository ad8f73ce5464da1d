//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-hub/domain"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// LiveConnection is one authenticated client's open transport.
// Send and KeepAlive must return instead of blocking past the context deadline.
type LiveConnection interface {
	ID() string
	UserID() string
	Send(ctx context.Context, frame []byte) error
	KeepAlive(ctx context.Context) error
	Close()
}

// ConnectionListener is notified after the registry changed, outside of its lock.
type ConnectionListener interface {
	ConnectionOpened(conn LiveConnection, firstForUser bool)
	ConnectionClosed(conn LiveConnection, lastForUser bool)
}

type Registry interface {
	Register(conn LiveConnection) error
	Unregister(connectionID string) bool
	ForEach(visit func(conn LiveConnection) error) []string
	Snapshot() []LiveConnection
	ConnectionsForUser(userID string) int
}

// Broadcaster is fire-and-forget: per-recipient failures never reach the caller.
type Broadcaster interface {
	Broadcast(ctx context.Context, e event.Event, excludeConnectionID string)
}

// PresenceTracker is what the transports need from presence: explicit posts and the re-fetch snapshot.
type PresenceTracker interface {
	SetStatus(ctx context.Context, userID string, cmd chat.SetStatusCommand) error
	Snapshot() []domain.Presence
}

// Assistant is the best-effort responder invoked by the ingestion pipeline.
type Assistant interface {
	Respond(ctx context.Context, text string, askingUserID string) (string, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, message domain.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
	ListMessages(ctx context.Context, conversationKey string, cursor *string) ([]domain.Message, *string, error)
}

type ReactionRepository interface {
	// ToggleReaction adds the reaction when absent and removes it when present, then
	// returns the full reaction list of the message, all in one transaction.
	ToggleReaction(ctx context.Context, reaction domain.Reaction) (bool, []domain.ReactionEntry, error)
	ListReactions(ctx context.Context, messageID uuid.UUID) ([]domain.ReactionEntry, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	SaveUser(ctx context.Context, user domain.User) error
}

type ChannelRepository interface {
	CreateChannel(ctx context.Context, channel domain.Channel) error
	GetChannel(ctx context.Context, id string) (domain.Channel, error)
	DeleteChannel(ctx context.Context, id string) error
	AddMember(ctx context.Context, channelID, userID string) (bool, error)
	RemoveMember(ctx context.Context, channelID, userID string) (bool, error)
	CreateInvitation(ctx context.Context, invitation domain.Invitation) error
}
