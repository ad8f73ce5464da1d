package repositories

import (
	"context"
	"fmt"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
)

type ChannelRepository struct {
	db *badger.DB
}

func NewChannelRepository(db *badger.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

type DiskChannel struct {
	ID        string `cbor:"1,keyasint"`
	Name      string `cbor:"2,keyasint"`
	CreatedBy string `cbor:"3,keyasint"`
	At        int64  `cbor:"4,keyasint"`
}

type DiskInvitation struct {
	ID        string `cbor:"1,keyasint"`
	ChannelID string `cbor:"2,keyasint"`
	InviterID string `cbor:"3,keyasint"`
	InviteeID string `cbor:"4,keyasint"`
	At        int64  `cbor:"5,keyasint"`
}

func channelKey(id string) []byte { return []byte("chan:" + id) }

func memberPrefix(channelID string) []byte { return []byte("member:" + channelID + "\x00") }

func memberKey(channelID, userID string) []byte {
	return append(memberPrefix(channelID), []byte(userID)...)
}

func invitationPrefix(channelID string) []byte { return []byte("invite:" + channelID + "\x00") }

func (c *ChannelRepository) CreateChannel(_ context.Context, channel domain.Channel) error {
	data, err := marshal(DiskChannel{ID: channel.ID, Name: channel.Name, CreatedBy: channel.CreatedBy, At: channel.CreatedAt.UnixNano()})
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(channelKey(channel.ID), data)
	})
}

func (c *ChannelRepository) GetChannel(_ context.Context, id string) (domain.Channel, error) {
	var channel domain.Channel
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(channelKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("channel %s: %w", id, errors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		var disk DiskChannel
		if err := item.Value(func(val []byte) error { return unmarshal(val, &disk) }); err != nil {
			return err
		}
		channel = domain.Channel{ID: disk.ID, Name: disk.Name, CreatedBy: disk.CreatedBy, CreatedAt: time.Unix(0, disk.At).UTC()}
		return nil
	})
	return channel, err
}

// DeleteChannel drops the channel with its members and invitations.
// Its messages stay readable by id; they are no longer reachable from a channel.
func (c *ChannelRepository) DeleteChannel(_ context.Context, id string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(channelKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("channel %s: %w", id, errors.ErrNotFound)
			}
			return err
		}
		keys := append(collectKeys(txn, memberPrefix(id)), collectKeys(txn, invitationPrefix(id))...)
		keys = append(keys, channelKey(id))
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddMember reports false when the user already was a member.
func (c *ChannelRepository) AddMember(_ context.Context, channelID, userID string) (bool, error) {
	added := false
	err := c.db.Update(func(txn *badger.Txn) error {
		key := memberKey(channelID, userID)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		added = true
		return txn.Set(key, nil)
	})
	return added, err
}

// RemoveMember reports false when the user was not a member.
func (c *ChannelRepository) RemoveMember(_ context.Context, channelID, userID string) (bool, error) {
	removed := false
	err := c.db.Update(func(txn *badger.Txn) error {
		key := memberKey(channelID, userID)
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		removed = true
		return txn.Delete(key)
	})
	return removed, err
}

func (c *ChannelRepository) Members(_ context.Context, channelID string) ([]string, error) {
	var members []string
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(channelID)
		for _, key := range collectKeys(txn, prefix) {
			members = append(members, string(key[len(prefix):]))
		}
		return nil
	})
	return members, err
}

func (c *ChannelRepository) CreateInvitation(_ context.Context, invitation domain.Invitation) error {
	data, err := marshal(DiskInvitation{
		ID:        invitation.ID.String(),
		ChannelID: invitation.ChannelID,
		InviterID: invitation.InviterID,
		InviteeID: invitation.InviteeID,
		At:        invitation.CreatedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(invitationPrefix(invitation.ChannelID), []byte(invitation.ID.String())...), data)
	})
}
