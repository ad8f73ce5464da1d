package repositories

import (
	"context"
	"fmt"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
)

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

type DiskUser struct {
	ID          string `cbor:"1,keyasint"`
	Username    string `cbor:"2,keyasint,omitempty"`
	DisplayName string `cbor:"3,keyasint,omitempty"`
	AvatarURL   string `cbor:"4,keyasint,omitempty"`
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func (u *UserRepository) GetUser(_ context.Context, id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

// SaveUser creates or replaces the profile.
func (u *UserRepository) SaveUser(_ context.Context, user domain.User) error {
	data, err := marshal(DiskUser{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	})
}

func getUser(txn *badger.Txn, id string) (domain.User, error) {
	item, err := txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	var disk DiskUser
	if err := item.Value(func(val []byte) error { return unmarshal(val, &disk) }); err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: disk.ID, Username: disk.Username, DisplayName: disk.DisplayName, AvatarURL: disk.AvatarURL}, nil
}
