package repositories

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskAttachment struct {
	Name     string `cbor:"1,keyasint"`
	URL      string `cbor:"2,keyasint"`
	Size     int64  `cbor:"3,keyasint"`
	MimeType string `cbor:"4,keyasint"`
}

// DiskMessage always carries its destination, replies included.
type DiskMessage struct {
	ID          string          `cbor:"1,keyasint"`
	SenderID    string          `cbor:"2,keyasint"`
	Content     string          `cbor:"3,keyasint,omitempty"`
	ChannelID   string          `cbor:"4,keyasint,omitempty"`
	RecipientID string          `cbor:"5,keyasint,omitempty"`
	ParentID    string          `cbor:"6,keyasint,omitempty"`
	Attachment  *DiskAttachment `cbor:"7,keyasint,omitempty"`
	At          int64           `cbor:"8,keyasint"`
}

func messageKey(id uuid.UUID) []byte {
	return []byte("msg:" + id.String())
}

// timelineKey is formatted as "conv:{base64url(conversation)}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func timelineKey(conversationKey string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", timelinePrefix(conversationKey), at.UnixNano(), id))
}

// timelinePrefix encodes the conversation with an alphabet free of ':', so the
// timeline of "c:general" never shares a prefix with the one of "c:general:ops".
func timelinePrefix(conversationKey string) string {
	return "conv:" + base64.RawURLEncoding.EncodeToString([]byte(conversationKey)) + ":"
}

// CreateMessage writes the row and its timeline entry in one transaction.
func (m *MessageRepository) CreateMessage(_ context.Context, message domain.Message) error {
	bytes, err := marshal(fromMessage(message))
	if err != nil {
		return err
	}
	conversation := message.Destination.ConversationKey(message.SenderID)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message.ID), bytes); err != nil {
			return err
		}
		return txn.Set(timelineKey(conversation, message.CreatedAt, message.ID), []byte(message.ID.String()))
	})
}

func (m *MessageRepository) GetMessage(_ context.Context, id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = getMessage(txn, id)
		return err
	})
	return message, err
}

// DeleteMessage removes the row, its timeline entry and its reactions in one transaction.
func (m *MessageRepository) DeleteMessage(_ context.Context, id uuid.UUID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		message, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		conversation := message.Destination.ConversationKey(message.SenderID)
		if err := txn.Delete(timelineKey(conversation, message.CreatedAt, id)); err != nil {
			return err
		}
		if err := txn.Delete(messageKey(id)); err != nil {
			return err
		}
		for _, key := range collectKeys(txn, reactionPrefix(id)) {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMessages walks a conversation timeline backwards, newest first.
// The cursor is the key suffix of the last message returned; nil starts from the newest.
func (m *MessageRepository) ListMessages(_ context.Context, conversationKey string, cursor *string) ([]domain.Message, *string, error) {
	var messages []domain.Message
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := timelinePrefix(conversationKey)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible key, then walk back
			seekKey = append([]byte(prefixStr), 0xFF)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[prefixLen:]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.KeyCopy(nil)[prefixLen:])
			rawID, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			id, err := uuid.ParseBytes(rawID)
			if err != nil {
				return err
			}
			message, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(messages) == 0 {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

func getMessage(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	item, err := txn.Get(messageKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, err
	}
	var disk DiskMessage
	if err := item.Value(func(val []byte) error { return unmarshal(val, &disk) }); err != nil {
		return domain.Message{}, err
	}
	return toMessage(disk)
}

// collectKeys copies the keys under prefix, so they can be deleted once iteration is done.
func collectKeys(txn *badger.Txn, prefix []byte) [][]byte {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func fromMessage(message domain.Message) DiskMessage {
	disk := DiskMessage{
		ID:          message.ID.String(),
		SenderID:    message.SenderID,
		Content:     message.Content,
		ChannelID:   message.Destination.ChannelID,
		RecipientID: message.Destination.RecipientID,
		At:          message.CreatedAt.UnixNano(),
	}
	if message.ParentID != nil {
		disk.ParentID = message.ParentID.String()
	}
	if a := message.Attachment; a != nil {
		disk.Attachment = &DiskAttachment{Name: a.Name, URL: a.URL, Size: a.Size, MimeType: a.MimeType}
	}
	return disk
}

func toMessage(disk DiskMessage) (domain.Message, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:          id,
		SenderID:    disk.SenderID,
		Content:     disk.Content,
		Destination: domain.Destination{ChannelID: disk.ChannelID, RecipientID: disk.RecipientID},
		CreatedAt:   time.Unix(0, disk.At).UTC(),
	}
	if disk.ParentID != "" {
		parentID, err := uuid.Parse(disk.ParentID)
		if err != nil {
			return domain.Message{}, err
		}
		message.ParentID = &parentID
	}
	if a := disk.Attachment; a != nil {
		message.Attachment = &domain.Attachment{Name: a.Name, URL: a.URL, Size: a.Size, MimeType: a.MimeType}
	}
	return message, nil
}
