package repositories

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const maxToggleAttempts = 8

type ReactionRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewReactionRepository(db *badger.DB, log *slog.Logger) *ReactionRepository {
	return &ReactionRepository{db: db, log: log}
}

type DiskReaction struct {
	At int64 `cbor:"1,keyasint"`
}

func reactionPrefix(messageID uuid.UUID) []byte {
	return []byte("react:" + messageID.String() + ":")
}

// reactionKey is "react:{message}:{user}\x00{emoji}": the separator cannot appear in a user id.
func reactionKey(messageID uuid.UUID, userID, emoji string) []byte {
	return append(append(reactionPrefix(messageID), []byte(userID+"\x00")...), []byte(emoji)...)
}

// ToggleReaction checks, mutates and re-reads inside one badger transaction.
// Badger transactions are serializable: two concurrent toggles of the same triple
// conflict at commit, and the loser is replayed against the winner's state.
func (r *ReactionRepository) ToggleReaction(ctx context.Context, reaction domain.Reaction) (bool, []domain.ReactionEntry, error) {
	var (
		added   bool
		entries []domain.ReactionEntry
	)
	for attempt := 1; ; attempt++ {
		err := r.db.Update(func(txn *badger.Txn) error {
			added, entries = false, nil
			if _, err := txn.Get(messageKey(reaction.MessageID)); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("message %s: %w", reaction.MessageID, errors.ErrNotFound)
				}
				return err
			}

			key := reactionKey(reaction.MessageID, reaction.UserID, reaction.Emoji)
			_, err := txn.Get(key)
			switch {
			case err == nil:
				if err := txn.Delete(key); err != nil {
					return err
				}
			case errors.Is(err, badger.ErrKeyNotFound):
				value, err := marshal(DiskReaction{At: reaction.CreatedAt.UnixNano()})
				if err != nil {
					return err
				}
				if err := txn.Set(key, value); err != nil {
					return err
				}
				added = true
			default:
				return err
			}

			entries, err = listReactions(txn, reaction.MessageID)
			return err
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxToggleAttempts && ctx.Err() == nil {
			r.log.Debug("Reaction toggle conflict, retrying", "message_id", reaction.MessageID, "attempt", attempt)
			continue
		}
		if err != nil {
			return false, nil, err
		}
		return added, entries, nil
	}
}

func (r *ReactionRepository) ListReactions(_ context.Context, messageID uuid.UUID) ([]domain.ReactionEntry, error) {
	var entries []domain.ReactionEntry
	err := r.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(messageKey(messageID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("message %s: %w", messageID, errors.ErrNotFound)
			}
			return err
		}
		var err error
		entries, err = listReactions(txn, messageID)
		return err
	})
	return entries, err
}

// listReactions sees the pending writes of txn, so a toggle reads its own mutation.
// Entries are ordered by reaction time, then emoji.
func listReactions(txn *badger.Txn, messageID uuid.UUID) ([]domain.ReactionEntry, error) {
	type timed struct {
		entry domain.ReactionEntry
		at    int64
	}
	prefix := reactionPrefix(messageID)
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	var reactions []timed
	profiles := make(map[string]domain.UserRef)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		rest := item.KeyCopy(nil)[len(prefix):]
		sep := bytes.IndexByte(rest, 0)
		if sep < 0 {
			continue
		}
		userID, emoji := string(rest[:sep]), string(rest[sep+1:])

		var disk DiskReaction
		if err := item.Value(func(val []byte) error { return unmarshal(val, &disk) }); err != nil {
			return nil, err
		}
		ref, ok := profiles[userID]
		if !ok {
			user, err := getUser(txn, userID)
			if err != nil && !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
			if err != nil {
				user = domain.UnknownUser(userID)
			}
			ref = user.Ref()
			profiles[userID] = ref
		}
		reactions = append(reactions, timed{entry: domain.ReactionEntry{Emoji: emoji, User: ref}, at: disk.At})
	}

	sort.SliceStable(reactions, func(i, j int) bool {
		if reactions[i].at != reactions[j].at {
			return reactions[i].at < reactions[j].at
		}
		return reactions[i].entry.Emoji < reactions[j].entry.Emoji
	})
	entries := make([]domain.ReactionEntry, 0, len(reactions))
	for _, r := range reactions {
		entries = append(entries, r.entry)
	}
	return entries, nil
}
