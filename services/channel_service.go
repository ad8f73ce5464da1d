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

// ChannelService persists channel changes then broadcasts a channel event for each of them.
type ChannelService struct {
	log         *slog.Logger
	channels    contract.ChannelRepository
	broadcaster contract.Broadcaster
	validate    *validator.Validate
	now         chat.Clock
}

func NewChannelService(log *slog.Logger, channels contract.ChannelRepository,
	broadcaster contract.Broadcaster, now chat.Clock) *ChannelService {
	return &ChannelService{
		log:         log,
		channels:    channels,
		broadcaster: broadcaster,
		validate:    validator.New(),
		now:         now,
	}
}

// CreateChannel stores a channel whose creator is its first member.
func (s *ChannelService) CreateChannel(ctx context.Context, userID string, cmd chat.CreateChannelCommand) (domain.Channel, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Channel{}, fmt.Errorf("%w: %w", errors.ErrInvalidChannel, err)
	}
	channel := domain.Channel{
		ID:        uuid.NewString(),
		Name:      cmd.Name,
		CreatedBy: userID,
		CreatedAt: s.now(),
	}
	if err := s.channels.CreateChannel(ctx, channel); err != nil {
		return domain.Channel{}, errors.Persistence(err)
	}
	if _, err := s.channels.AddMember(ctx, channel.ID, userID); err != nil {
		return domain.Channel{}, errors.Persistence(err)
	}
	s.log.Info("Channel created", "channel_id", channel.ID, "user_id", userID)
	s.broadcaster.Broadcast(ctx, event.Channel{
		Action:    event.ChannelCreated,
		ChannelID: channel.ID,
		Channel:   event.FromChannel(channel),
		UserID:    userID,
	}, "")
	return channel, nil
}

// DeleteChannel is reserved to the creator of the channel.
func (s *ChannelService) DeleteChannel(ctx context.Context, userID, channelID string) error {
	channel, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return errors.Persistence(err)
	}
	if channel.CreatedBy != userID {
		return errors.ErrForbidden
	}
	if err := s.channels.DeleteChannel(ctx, channelID); err != nil {
		return errors.Persistence(err)
	}
	s.broadcaster.Broadcast(ctx, event.Channel{Action: event.ChannelDeleted, ChannelID: channelID}, "")
	return nil
}

// Join is idempotent: joining twice broadcasts once.
func (s *ChannelService) Join(ctx context.Context, userID, channelID string) error {
	if _, err := s.channels.GetChannel(ctx, channelID); err != nil {
		return errors.Persistence(err)
	}
	added, err := s.channels.AddMember(ctx, channelID, userID)
	if err != nil {
		return errors.Persistence(err)
	}
	if added {
		s.broadcaster.Broadcast(ctx, event.Channel{Action: event.ChannelMemberJoined, ChannelID: channelID, UserID: userID}, "")
	}
	return nil
}

func (s *ChannelService) Leave(ctx context.Context, userID, channelID string) error {
	removed, err := s.channels.RemoveMember(ctx, channelID, userID)
	if err != nil {
		return errors.Persistence(err)
	}
	if removed {
		s.broadcaster.Broadcast(ctx, event.Channel{Action: event.ChannelMemberLeft, ChannelID: channelID, UserID: userID}, "")
	}
	return nil
}

func (s *ChannelService) Invite(ctx context.Context, inviterID string, cmd chat.InviteCommand) (domain.Invitation, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Invitation{}, fmt.Errorf("%w: %w", errors.ErrInvalidChannel, err)
	}
	if _, err := s.channels.GetChannel(ctx, cmd.ChannelID); err != nil {
		return domain.Invitation{}, errors.Persistence(err)
	}
	invitation := domain.Invitation{
		ID:        uuid.New(),
		ChannelID: cmd.ChannelID,
		InviterID: inviterID,
		InviteeID: cmd.InviteeID,
		CreatedAt: s.now(),
	}
	if err := s.channels.CreateInvitation(ctx, invitation); err != nil {
		return domain.Invitation{}, errors.Persistence(err)
	}
	s.broadcaster.Broadcast(ctx, event.Channel{
		Action:     event.ChannelInvitationCreated,
		ChannelID:  cmd.ChannelID,
		Invitation: event.FromInvitation(invitation),
	}, "")
	return invitation, nil
}
