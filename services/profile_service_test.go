package services

import (
	"context"
	"log/slog"
	"testing"

	"chat-hub/domain"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestProfileService_UpdateProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	users := mocks.NewMockUserRepository(ctrl)
	broadcaster := mocks.NewMockBroadcaster(ctrl)
	service := NewProfileService(logs.GetLoggerFromLevel(slog.LevelDebug), users, broadcaster)

	t.Run("should merge non empty fields and broadcast", func(t *testing.T) {
		req := require.New(t)
		stored := domain.User{ID: "alice", Username: "alice", AvatarURL: "https://cdn.example.com/a.png"}
		updated := domain.User{ID: "alice", Username: "alice", DisplayName: "Alice", AvatarURL: stored.AvatarURL}

		users.EXPECT().GetUser(gomock.Any(), "alice").Return(stored, nil)
		users.EXPECT().SaveUser(gomock.Any(), updated).Return(nil)
		broadcaster.EXPECT().Broadcast(gomock.Any(), event.ProfileUpdate{User: event.FromUser(updated)}, "")

		user, err := service.UpdateProfile(context.Background(), "alice", chat.UpdateProfileCommand{DisplayName: "Alice"})

		req.NoError(err)
		req.Equal(updated, user)
	})

	t.Run("should create the profile on first update", func(t *testing.T) {
		req := require.New(t)
		users.EXPECT().GetUser(gomock.Any(), "bob").Return(domain.User{}, errors.ErrNotFound)
		users.EXPECT().SaveUser(gomock.Any(), domain.User{ID: "bob", Username: "bobby"}).Return(nil)
		broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.AssignableToTypeOf(event.ProfileUpdate{}), "")

		_, err := service.UpdateProfile(context.Background(), "bob", chat.UpdateProfileCommand{Username: "bobby"})
		req.NoError(err)
	})

	t.Run("should reject an invalid avatar url", func(t *testing.T) {
		req := require.New(t)
		users.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Times(0)

		_, err := service.UpdateProfile(context.Background(), "bob", chat.UpdateProfileCommand{AvatarURL: "not a url"})
		req.ErrorIs(err, errors.ErrInvalidProfile)
	})
}
