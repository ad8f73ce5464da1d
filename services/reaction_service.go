package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ReactionService toggles one reaction then broadcasts the full reaction set of the message.
type ReactionService struct {
	log         *slog.Logger
	reactions   contract.ReactionRepository
	broadcaster contract.Broadcaster
	validate    *validator.Validate
	now         chat.Clock
}

func NewReactionService(log *slog.Logger, reactions contract.ReactionRepository,
	broadcaster contract.Broadcaster, now chat.Clock) *ReactionService {
	return &ReactionService{
		log:         log,
		reactions:   reactions,
		broadcaster: broadcaster,
		validate:    validator.New(),
		now:         now,
	}
}

// Toggle adds the reaction when absent, removes it when present.
// The check, the mutation and the re-read happen in one storage transaction, so the
// broadcast snapshot is exactly the committed state. A failed transaction broadcasts nothing.
func (s *ReactionService) Toggle(ctx context.Context, userID string, cmd chat.ToggleReactionCommand) (bool, []domain.ReactionEntry, error) {
	cmd.Emoji = strings.TrimSpace(cmd.Emoji)
	if err := s.validate.Struct(cmd); err != nil {
		return false, nil, fmt.Errorf("%w: %w", errors.ErrInvalidEmoji, err)
	}

	added, entries, err := s.reactions.ToggleReaction(ctx, domain.Reaction{
		MessageID: cmd.MessageID,
		UserID:    userID,
		Emoji:     cmd.Emoji,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.log.Error("Reaction toggle failed", "message_id", cmd.MessageID, "user_id", userID, "error", err)
		return false, nil, errors.Persistence(err)
	}
	if entries == nil {
		entries = []domain.ReactionEntry{}
	}

	s.log.Debug("Reaction toggled", "message_id", cmd.MessageID, "user_id", userID, "added", added)
	s.broadcaster.Broadcast(ctx, event.ReactionUpdate{MessageID: cmd.MessageID, Reactions: entries}, "")
	return added, entries, nil
}

// List re-fetches the reaction set of a message, for clients that missed updates.
func (s *ReactionService) List(ctx context.Context, messageID uuid.UUID) ([]domain.ReactionEntry, error) {
	entries, err := s.reactions.ListReactions(ctx, messageID)
	if err != nil {
		return nil, errors.Persistence(err)
	}
	if entries == nil {
		entries = []domain.ReactionEntry{}
	}
	return entries, nil
}
