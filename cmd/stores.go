package main

import (
	"context"
	"fmt"
	"log/slog"

	"chat-hub/contract"
	"chat-hub/repositories"
	"chat-hub/repositories/postgres"

	"github.com/dgraph-io/badger/v4"
)

type stores struct {
	messages  contract.MessageRepository
	reactions contract.ReactionRepository
	users     contract.UserRepository
	channels  contract.ChannelRepository
	close     func() error
}

func openStores(ctx context.Context, log *slog.Logger, config Config) (stores, error) {
	switch config.StoreDriver {
	case "badger":
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return stores{}, fmt.Errorf("database opening failed: %w", err)
		}
		return stores{
			messages:  repositories.NewMessageRepository(db, log, &config.LimitMessages),
			reactions: repositories.NewReactionRepository(db, log),
			users:     repositories.NewUserRepository(db),
			channels:  repositories.NewChannelRepository(db),
			close:     db.Close,
		}, nil
	case "postgres":
		store, err := postgres.Open(ctx, log, config.PostgresDSN, config.LimitMessages)
		if err != nil {
			return stores{}, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return stores{}, fmt.Errorf("schema migration failed: %w", err)
		}
		return stores{messages: store, reactions: store, users: store, channels: store, close: store.Close}, nil
	default:
		return stores{}, fmt.Errorf("unknown STORE_DRIVER %q", config.StoreDriver)
	}
}
