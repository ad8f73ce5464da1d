package repositories

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type reactionFixture struct {
	messages  *MessageRepository
	reactions *ReactionRepository
	users     *UserRepository
	message   domain.Message
}

func newReactionFixture(t *testing.T) reactionFixture {
	t.Helper()
	db := openDB(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f := reactionFixture{
		messages:  NewMessageRepository(db, log, nil),
		reactions: NewReactionRepository(db, log),
		users:     NewUserRepository(db),
		message:   channelMessage("alice", "general", "lunch?", 0),
	}
	require.NoError(t, f.messages.CreateMessage(context.Background(), f.message))
	return f
}

func TestReactionRepository_Toggle_Adds_Then_Removes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newReactionFixture(t)
	req.NoError(f.users.SaveUser(ctx, domain.User{ID: "bob", Username: "bob", DisplayName: "Bob"}))
	reaction := domain.Reaction{MessageID: f.message.ID, UserID: "bob", Emoji: "🍕", CreatedAt: at}

	// When bob reacts
	added, entries, err := f.reactions.ToggleReaction(ctx, reaction)

	// Then the snapshot holds exactly his reaction with his display identity
	req.NoError(err)
	req.True(added)
	req.Equal([]domain.ReactionEntry{{Emoji: "🍕", User: domain.UserRef{ID: "bob", DisplayName: "Bob"}}}, entries)

	// When he toggles it again
	added, entries, err = f.reactions.ToggleReaction(ctx, reaction)

	// Then the reaction is gone
	req.NoError(err)
	req.False(added)
	req.Empty(entries)
}

func TestReactionRepository_Toggle_Twice_Restores_Original_State(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newReactionFixture(t)

	// Given a message already carrying reactions from several users
	for i, user := range []string{"bob", "clara"} {
		_, _, err := f.reactions.ToggleReaction(ctx, domain.Reaction{MessageID: f.message.ID, UserID: user,
			Emoji: "👍", CreatedAt: at.Add(time.Duration(i) * time.Second)})
		req.NoError(err)
	}
	before, err := f.reactions.ListReactions(ctx, f.message.ID)
	req.NoError(err)

	for _, emoji := range []string{"👍", "🎉"} {
		for _, user := range []string{"alice", "bob", "clara"} {
			reaction := domain.Reaction{MessageID: f.message.ID, UserID: user, Emoji: emoji, CreatedAt: at.Add(time.Minute)}

			// When the same triple is toggled twice
			first, _, err := f.reactions.ToggleReaction(ctx, reaction)
			req.NoError(err)
			second, _, err := f.reactions.ToggleReaction(ctx, reaction)
			req.NoError(err)

			// Then the state is the one before
			req.NotEqual(first, second)
			after, err := f.reactions.ListReactions(ctx, f.message.ID)
			req.NoError(err)
			req.ElementsMatch(before, after, "%s %s", user, emoji)
		}
	}
}

func TestReactionRepository_Toggle_Unknown_Message(t *testing.T) {
	req := require.New(t)
	f := newReactionFixture(t)

	_, _, err := f.reactions.ToggleReaction(context.Background(),
		domain.Reaction{MessageID: uuid.New(), UserID: "bob", Emoji: "👍", CreatedAt: at})

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestReactionRepository_List_Unknown_Message(t *testing.T) {
	req := require.New(t)
	f := newReactionFixture(t)

	_, err := f.reactions.ListReactions(context.Background(), uuid.New())

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestReactionRepository_Concurrent_Toggles_Are_Serialized(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newReactionFixture(t)
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}

	// When many users react at the same moment
	var wg sync.WaitGroup
	errs := make(chan error, len(users))
	for _, user := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.reactions.ToggleReaction(ctx, domain.Reaction{MessageID: f.message.ID, UserID: user, Emoji: "👀", CreatedAt: at})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Then no reaction is lost
	for err := range errs {
		req.NoError(err)
	}
	entries, err := f.reactions.ListReactions(ctx, f.message.ID)
	req.NoError(err)
	req.Len(entries, len(users))
}

func TestReactionRepository_Same_User_Several_Emojis(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newReactionFixture(t)

	_, _, err := f.reactions.ToggleReaction(ctx, domain.Reaction{MessageID: f.message.ID, UserID: "bob", Emoji: "🎉", CreatedAt: at.Add(time.Second)})
	req.NoError(err)
	_, entries, err := f.reactions.ToggleReaction(ctx, domain.Reaction{MessageID: f.message.ID, UserID: "bob", Emoji: "👍", CreatedAt: at})
	req.NoError(err)

	// Ordered by reaction time, unknown profiles fall back to the id
	req.Equal([]domain.ReactionEntry{
		{Emoji: "👍", User: domain.UnknownUser("bob").Ref()},
		{Emoji: "🎉", User: domain.UnknownUser("bob").Ref()},
	}, entries)
}
