package services

import (
	"context"
	"fmt"
	"log/slog"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"

	"github.com/go-playground/validator/v10"
)

type ProfileService struct {
	log         *slog.Logger
	users       contract.UserRepository
	broadcaster contract.Broadcaster
	validate    *validator.Validate
}

func NewProfileService(log *slog.Logger, users contract.UserRepository, broadcaster contract.Broadcaster) *ProfileService {
	return &ProfileService{log: log, users: users, broadcaster: broadcaster, validate: validator.New()}
}

// UpdateProfile merges the non-empty fields into the stored profile, creating it on first use.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, cmd chat.UpdateProfileCommand) (domain.User, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", errors.ErrInvalidProfile, err)
	}
	user, err := s.users.GetUser(ctx, userID)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		user = domain.User{ID: userID}
	case err != nil:
		return domain.User{}, errors.Persistence(err)
	}
	if cmd.Username != "" {
		user.Username = cmd.Username
	}
	if cmd.DisplayName != "" {
		user.DisplayName = cmd.DisplayName
	}
	if cmd.AvatarURL != "" {
		user.AvatarURL = cmd.AvatarURL
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return domain.User{}, errors.Persistence(err)
	}
	s.broadcaster.Broadcast(ctx, event.ProfileUpdate{User: event.FromUser(user)}, "")
	return user, nil
}
