package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newChannelService(t *testing.T) (*ChannelService, *mocks.MockChannelRepository, *mocks.MockBroadcaster) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockChannelRepository(ctrl)
	broadcaster := mocks.NewMockBroadcaster(ctrl)
	service := NewChannelService(logs.GetLoggerFromLevel(slog.LevelDebug), repo, broadcaster, func() time.Time { return now })
	return service, repo, broadcaster
}

func channelEvent(action event.ChannelAction, channelID string) gomock.Matcher {
	return gomock.Cond(func(x any) bool {
		e, ok := x.(event.Channel)
		return ok && e.Action == action && e.ChannelID == channelID
	})
}

func TestChannelService_CreateChannel(t *testing.T) {
	req := require.New(t)
	service, repo, broadcaster := newChannelService(t)

	var created domain.Channel
	repo.EXPECT().CreateChannel(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c domain.Channel) error {
			created = c
			return nil
		})
	repo.EXPECT().AddMember(gomock.Any(), gomock.Any(), "alice").Return(true, nil)
	broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Cond(func(x any) bool {
		e, ok := x.(event.Channel)
		return ok && e.Action == event.ChannelCreated && e.Channel != nil && e.Channel.Name == "general"
	}), "")

	channel, err := service.CreateChannel(context.Background(), "alice", chat.CreateChannelCommand{Name: " general "})

	req.NoError(err)
	req.Equal(created, channel)
	req.Equal("alice", channel.CreatedBy)
	req.Equal(now, channel.CreatedAt)
}

func TestChannelService_CreateChannel_Requires_A_Name(t *testing.T) {
	service, _, _ := newChannelService(t)
	_, err := service.CreateChannel(context.Background(), "alice", chat.CreateChannelCommand{Name: "  "})
	require.ErrorIs(t, err, errors.ErrInvalidChannel)
}

func TestChannelService_DeleteChannel_Creator_Only(t *testing.T) {
	req := require.New(t)
	service, repo, broadcaster := newChannelService(t)
	repo.EXPECT().GetChannel(gomock.Any(), "c1").Return(domain.Channel{ID: "c1", CreatedBy: "alice"}, nil).Times(2)

	req.ErrorIs(service.DeleteChannel(context.Background(), "bob", "c1"), errors.ErrForbidden)

	repo.EXPECT().DeleteChannel(gomock.Any(), "c1").Return(nil)
	broadcaster.EXPECT().Broadcast(gomock.Any(), channelEvent(event.ChannelDeleted, "c1"), "")
	req.NoError(service.DeleteChannel(context.Background(), "alice", "c1"))
}

func TestChannelService_Join_And_Leave_Are_Idempotent(t *testing.T) {
	req := require.New(t)
	service, repo, broadcaster := newChannelService(t)
	repo.EXPECT().GetChannel(gomock.Any(), "c1").Return(domain.Channel{ID: "c1"}, nil).AnyTimes()

	gomock.InOrder(
		repo.EXPECT().AddMember(gomock.Any(), "c1", "bob").Return(true, nil),
		broadcaster.EXPECT().Broadcast(gomock.Any(), channelEvent(event.ChannelMemberJoined, "c1"), ""),
		repo.EXPECT().AddMember(gomock.Any(), "c1", "bob").Return(false, nil),
		repo.EXPECT().RemoveMember(gomock.Any(), "c1", "bob").Return(true, nil),
		broadcaster.EXPECT().Broadcast(gomock.Any(), event.Channel{Action: event.ChannelMemberLeft, ChannelID: "c1", UserID: "bob"}, ""),
		repo.EXPECT().RemoveMember(gomock.Any(), "c1", "bob").Return(false, nil),
	)

	req.NoError(service.Join(context.Background(), "bob", "c1"))
	req.NoError(service.Join(context.Background(), "bob", "c1"))
	req.NoError(service.Leave(context.Background(), "bob", "c1"))
	req.NoError(service.Leave(context.Background(), "bob", "c1"))
}

func TestChannelService_Join_Unknown_Channel(t *testing.T) {
	service, repo, _ := newChannelService(t)
	repo.EXPECT().GetChannel(gomock.Any(), "nope").Return(domain.Channel{}, errors.ErrNotFound)
	require.ErrorIs(t, service.Join(context.Background(), "bob", "nope"), errors.ErrNotFound)
}

func TestChannelService_Invite(t *testing.T) {
	req := require.New(t)
	service, repo, broadcaster := newChannelService(t)
	repo.EXPECT().GetChannel(gomock.Any(), "c1").Return(domain.Channel{ID: "c1"}, nil)
	repo.EXPECT().CreateInvitation(gomock.Any(), gomock.Any()).Return(nil)
	broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Cond(func(x any) bool {
		e, ok := x.(event.Channel)
		return ok && e.Action == event.ChannelInvitationCreated && e.Invitation.InviteeID == "carol"
	}), "")

	invitation, err := service.Invite(context.Background(), "alice", chat.InviteCommand{ChannelID: "c1", InviteeID: "carol"})

	req.NoError(err)
	req.Equal("alice", invitation.InviterID)
}
