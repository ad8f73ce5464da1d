package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/mention"
	"chat-hub/observability"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type IngestionConfig struct {
	Assistant        domain.User
	AssistantTimeout time.Duration
	MaxContentLength int
}

// trigger is the reason the assistant answers a message. Lower values win.
type trigger int

const (
	noTrigger trigger = iota
	directTrigger
	mentionTrigger
	threadTrigger
)

func (t trigger) String() string {
	switch t {
	case directTrigger:
		return "direct"
	case mentionTrigger:
		return "mention"
	case threadTrigger:
		return "thread"
	default:
		return "none"
	}
}

// IngestionService validates, persists and broadcasts messages, then lets the
// assistant answer when the message is addressed to it.
type IngestionService struct {
	log         *slog.Logger
	messages    contract.MessageRepository
	users       contract.UserRepository
	broadcaster contract.Broadcaster
	assistant   contract.Assistant
	mentions    *mention.Matcher
	metrics     *observability.Metrics
	validate    *validator.Validate
	now         chat.Clock
	cfg         IngestionConfig
}

func NewIngestionService(
	log *slog.Logger,
	messages contract.MessageRepository,
	users contract.UserRepository,
	broadcaster contract.Broadcaster,
	assistant contract.Assistant,
	mentions *mention.Matcher,
	metrics *observability.Metrics,
	now chat.Clock,
	cfg IngestionConfig,
) *IngestionService {
	return &IngestionService{
		log:         log,
		messages:    messages,
		users:       users,
		broadcaster: broadcaster,
		assistant:   assistant,
		mentions:    mentions,
		metrics:     metrics,
		validate:    validator.New(),
		now:         now,
		cfg:         cfg,
	}
}

// Ingest stores a message written by senderID and fans it out.
// Validation and storage errors reach the caller; nothing is broadcast then.
// The assistant's answer, if any, is broadcast strictly after the user's message
// and its failure never fails the call.
func (s *IngestionService) Ingest(ctx context.Context, senderID string, cmd chat.PostMessageCommand) (domain.Message, error) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" && cmd.Attachment == nil {
		return domain.Message{}, errors.ErrEmptyMessage
	}
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return domain.Message{}, errors.ErrContentTooLong
	}
	if cmd.Attachment != nil {
		if err := s.validate.Struct(cmd.Attachment); err != nil {
			return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrInvalidAttachment, err)
		}
	}

	destination, parent, err := s.resolveDestination(ctx, senderID, cmd)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		Content:     content,
		Destination: destination,
		ParentID:    cmd.ParentID,
		Attachment:  cmd.Attachment,
		CreatedAt:   s.now(),
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		s.log.Error("Unable to persist message", "sender_id", senderID, "error", err)
		return domain.Message{}, errors.Persistence(err)
	}
	s.metrics.MessageIngested(kindOf(destination))

	s.broadcaster.Broadcast(ctx, event.FromMessage(msg, s.profile(ctx, senderID)), "")
	if destination.IsDirect() {
		s.broadcaster.Broadcast(ctx, event.ConversationUpdate{Participants: [2]string{senderID, destination.RecipientID}}, "")
	}

	if t := s.classify(msg, parent); t != noTrigger {
		s.respond(ctx, msg, t)
	}
	return msg, nil
}

// resolveDestination denormalizes the parent's context onto a reply.
// A reply may omit its destination but cannot contradict the parent's.
func (s *IngestionService) resolveDestination(ctx context.Context, senderID string,
	cmd chat.PostMessageCommand) (domain.Destination, *domain.Message, error) {
	destination := cmd.Destination()
	if cmd.ParentID == nil {
		if !destination.Valid() {
			return domain.Destination{}, nil, errors.ErrInvalidDestination
		}
		return destination, nil, nil
	}

	parent, err := s.messages.GetMessage(ctx, *cmd.ParentID)
	if err != nil {
		return domain.Destination{}, nil, errors.Persistence(err)
	}
	inherited := parent.Destination
	if parent.Destination.IsDirect() {
		// The parent's recipient is seen from its sender: flip it for the other participant
		switch senderID {
		case parent.SenderID:
			inherited = domain.DirectDestination(parent.Destination.RecipientID)
		case parent.Destination.RecipientID:
			inherited = domain.DirectDestination(parent.SenderID)
		default:
			return domain.Destination{}, nil, errors.ErrForbidden
		}
	}
	if !destination.IsEmpty() && destination != inherited {
		return domain.Destination{}, nil, errors.ErrInvalidDestination
	}
	return inherited, &parent, nil
}

// classify evaluates the rules in priority order, the first match wins.
func (s *IngestionService) classify(msg domain.Message, parent *domain.Message) trigger {
	assistantID := s.cfg.Assistant.ID
	if s.assistant == nil || assistantID == "" || msg.SenderID == assistantID {
		return noTrigger
	}
	switch {
	case msg.Destination.IsDirect() && msg.Destination.RecipientID == assistantID:
		return directTrigger
	case s.mentions != nil && s.mentions.Mentions(msg.Content):
		return mentionTrigger
	case msg.Destination.IsChannel() && parent != nil && parent.SenderID == assistantID:
		return threadTrigger
	default:
		return noTrigger
	}
}

// respond is best-effort: every failure is logged and absorbed.
func (s *IngestionService) respond(ctx context.Context, msg domain.Message, t trigger) {
	log := s.log.With("message_id", msg.ID, "sender_id", msg.SenderID, "trigger", t.String())

	// The user's write is done, its cancellation must not cut the answer short
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AssistantTimeout)
	defer cancel()

	text, err := s.assistant.Respond(ctx, msg.Content, msg.SenderID)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty answer")
	}
	if err != nil {
		s.metrics.AssistantFailed()
		log.Warn("Assistant did not answer", "error", fmt.Errorf("%w: %w", errors.ErrAssistantUnavailable, err))
		return
	}

	reply := domain.Message{
		ID:        uuid.New(),
		SenderID:  s.cfg.Assistant.ID,
		Content:   strings.TrimSpace(text),
		CreatedAt: s.now(),
	}
	switch {
	case msg.Destination.IsChannel():
		reply.Destination = msg.Destination
		reply.ParentID = msg.ParentID
	case t == directTrigger:
		reply.Destination = domain.DirectDestination(msg.SenderID)
		reply.ParentID = msg.ParentID
	default:
		// Mentioned in a conversation between two people: answer the asker privately
		reply.Destination = domain.DirectDestination(msg.SenderID)
	}
	if err := s.messages.CreateMessage(ctx, reply); err != nil {
		s.metrics.AssistantFailed()
		log.Error("Unable to persist assistant answer", "error", err)
		return
	}
	s.metrics.MessageIngested("assistant")
	s.broadcaster.Broadcast(ctx, event.FromMessage(reply, s.profile(ctx, s.cfg.Assistant.ID)), "")
	log.Debug("Assistant answered", "reply_id", reply.ID)
}

// Delete removes a message written by userID, with its reactions, and broadcasts a tombstone.
func (s *IngestionService) Delete(ctx context.Context, userID string, messageID uuid.UUID) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return errors.Persistence(err)
	}
	if msg.SenderID != userID {
		return errors.ErrForbidden
	}
	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		s.log.Error("Unable to delete message", "message_id", messageID, "error", err)
		return errors.Persistence(err)
	}
	s.broadcaster.Broadcast(ctx, event.MessageDeleted{
		MessageID:   msg.ID,
		ChannelID:   msg.Destination.ChannelID,
		RecipientID: msg.Destination.RecipientID,
		SenderID:    msg.SenderID,
	}, "")
	return nil
}

// List returns a newest-first page of a conversation as seen by viewerID,
// in the same shape as the live message events.
func (s *IngestionService) List(ctx context.Context, viewerID string, cmd chat.GetMessagesCommand) ([]event.Message, *string, error) {
	destination := cmd.Destination()
	if !destination.Valid() {
		return nil, nil, errors.ErrInvalidDestination
	}
	messages, cursor, err := s.messages.ListMessages(ctx, destination.ConversationKey(viewerID), cmd.Cursor)
	if err != nil {
		return nil, nil, errors.Persistence(err)
	}

	profiles := make(map[string]domain.User)
	page := make([]event.Message, 0, len(messages))
	for _, msg := range messages {
		sender, ok := profiles[msg.SenderID]
		if !ok {
			sender = s.profile(ctx, msg.SenderID)
			profiles[msg.SenderID] = sender
		}
		page = append(page, event.FromMessage(msg, sender))
	}
	return page, cursor, nil
}

func (s *IngestionService) profile(ctx context.Context, userID string) domain.User {
	user, err := s.users.GetUser(ctx, userID)
	if err == nil {
		return user
	}
	if userID == s.cfg.Assistant.ID {
		return s.cfg.Assistant
	}
	if !errors.Is(err, errors.ErrNotFound) {
		s.log.Warn("Unable to load profile", "user_id", userID, "error", err)
	}
	return domain.UnknownUser(userID)
}

func kindOf(d domain.Destination) string {
	if d.IsDirect() {
		return "direct"
	}
	return "channel"
}
