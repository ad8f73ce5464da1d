// Package postgres is the relational storage backend, selected with STORE_DRIVER=postgres.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

const (
	serializationFailure = "40001"
	maxToggleAttempts    = 8
)

// Store implements every repository contract on one connection pool.
type Store struct {
	db            *sql.DB
	log           *slog.Logger
	limitMessages int
}

func Open(ctx context.Context, log *slog.Logger, dsn string, limitMessages int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	return &Store{db: db, log: log, limitMessages: limitMessages}, nil
}

// Migrate creates the schema when missing. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateMessage(ctx context.Context, m domain.Message) error {
	var name, url, mimeType sql.NullString
	var size sql.NullInt64
	if a := m.Attachment; a != nil {
		name = sql.NullString{String: a.Name, Valid: true}
		url = sql.NullString{String: a.URL, Valid: true}
		mimeType = sql.NullString{String: a.MimeType, Valid: true}
		size = sql.NullInt64{Int64: a.Size, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, content, channel_id, recipient_id, conversation, parent_id,
			attachment_name, attachment_url, attachment_size, attachment_mimetype, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID, m.SenderID, m.Content, nullable(m.Destination.ChannelID), nullable(m.Destination.RecipientID),
		m.Destination.ConversationKey(m.SenderID), m.ParentID, name, url, size, mimeType, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

const selectMessage = `
	SELECT id, sender_id, content, channel_id, recipient_id, parent_id,
		attachment_name, attachment_url, attachment_size, attachment_mimetype, created_at
	FROM messages`

func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, selectMessage+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, errors.ErrNotFound)
	}
	return m, err
}

// DeleteMessage relies on ON DELETE CASCADE for the reactions.
func (s *Store) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("message %s: %w", id, errors.ErrNotFound)
	}
	return nil
}

// ListMessages pages newest first. Cursors have the same shape as the badger
// backend ones, "{unix_nanos}:{id}", so clients cannot tell the backends apart.
func (s *Store) ListMessages(ctx context.Context, conversationKey string, cursor *string) ([]domain.Message, *string, error) {
	query := selectMessage + ` WHERE conversation = $1`
	args := []any{conversationKey}
	if cursor != nil {
		at, id, err := parseCursor(*cursor)
		if err != nil {
			return nil, nil, err
		}
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, at, id)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if s.limitMessages > 0 {
		query += ` LIMIT ` + strconv.Itoa(s.limitMessages)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	var messages []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(messages) == 0 {
		return messages, nil, nil
	}
	last := messages[len(messages)-1]
	next := fmt.Sprintf("%019d:%s", last.CreatedAt.UnixNano(), last.ID)
	return messages, &next, nil
}

// ToggleReaction runs check, mutation and re-read in one SERIALIZABLE transaction,
// replayed when postgres reports a serialization failure.
func (s *Store) ToggleReaction(ctx context.Context, r domain.Reaction) (bool, []domain.ReactionEntry, error) {
	for attempt := 1; ; attempt++ {
		added, entries, err := s.toggleOnce(ctx, r)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == serializationFailure && attempt < maxToggleAttempts {
			s.log.Debug("Reaction toggle conflict, retrying", "message_id", r.MessageID, "attempt", attempt)
			continue
		}
		return added, entries, err
	}
}

func (s *Store) toggleOnce(ctx context.Context, r domain.Reaction) (bool, []domain.ReactionEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, r.MessageID).Scan(&exists); err != nil {
		return false, nil, err
	}
	if !exists {
		return false, nil, fmt.Errorf("message %s: %w", r.MessageID, errors.ErrNotFound)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		r.MessageID, r.UserID, r.Emoji)
	if err != nil {
		return false, nil, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	added := removed == 0
	if added {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reactions (message_id, user_id, emoji, created_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, r.MessageID, r.UserID, r.Emoji, r.CreatedAt); err != nil {
			return false, nil, err
		}
	}

	entries, err := listReactions(ctx, tx, r.MessageID)
	if err != nil {
		return false, nil, err
	}
	if err := tx.Commit(); err != nil {
		return false, nil, err
	}
	return added, entries, nil
}

func (s *Store) ListReactions(ctx context.Context, messageID uuid.UUID) ([]domain.ReactionEntry, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("message %s: %w", messageID, errors.ErrNotFound)
	}
	return listReactions(ctx, s.db, messageID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listReactions(ctx context.Context, q querier, messageID uuid.UUID) ([]domain.ReactionEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.emoji, r.user_id, COALESCE(u.username, ''), COALESCE(u.display_name, ''), COALESCE(u.avatar_url, '')
		FROM reactions r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.message_id = $1
		ORDER BY r.created_at, r.emoji
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []domain.ReactionEntry{}
	for rows.Next() {
		var emoji string
		var user domain.User
		if err := rows.Scan(&emoji, &user.ID, &user.Username, &user.DisplayName, &user.AvatarURL); err != nil {
			return nil, err
		}
		entries = append(entries, domain.ReactionEntry{Emoji: emoji, User: user.Ref()})
	}
	return entries, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT username, display_name, avatar_url FROM users WHERE id = $1`, id).
		Scan(&user.Username, &user.DisplayName, &user.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, errors.ErrNotFound)
	}
	return user, err
}

func (s *Store) SaveUser(ctx context.Context, user domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, avatar_url) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET username = $2, display_name = $3, avatar_url = $4
	`, user.ID, user.Username, user.DisplayName, user.AvatarURL)
	return err
}

func (s *Store) CreateChannel(ctx context.Context, c domain.Channel) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO channels (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.CreatedBy, c.CreatedAt)
	return err
}

func (s *Store) GetChannel(ctx context.Context, id string) (domain.Channel, error) {
	c := domain.Channel{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT name, created_by, created_at FROM channels WHERE id = $1`, id).
		Scan(&c.Name, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Channel{}, fmt.Errorf("channel %s: %w", id, errors.ErrNotFound)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("channel %s: %w", id, errors.ErrNotFound)
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, channelID, userID string) (bool, error) {
	return s.changed(ctx, `INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		channelID, userID)
}

func (s *Store) RemoveMember(ctx context.Context, channelID, userID string) (bool, error) {
	return s.changed(ctx, `DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
}

func (s *Store) Members(ctx context.Context, channelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM channel_members WHERE channel_id = $1 ORDER BY user_id`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		members = append(members, userID)
	}
	return members, rows.Err()
}

func (s *Store) CreateInvitation(ctx context.Context, i domain.Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_invitations (id, channel_id, inviter_id, invitee_id, created_at) VALUES ($1, $2, $3, $4, $5)
	`, i.ID, i.ChannelID, i.InviterID, i.InviteeID, i.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
		return fmt.Errorf("channel %s: %w", i.ChannelID, errors.ErrNotFound)
	}
	return err
}

func (s *Store) changed(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return false, fmt.Errorf("channel %v: %w", args[0], errors.ErrNotFound)
		}
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (domain.Message, error) {
	var (
		m                    domain.Message
		channelID, recipient sql.NullString
		parentID             uuid.NullUUID
		name, url, mimeType  sql.NullString
		size                 sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.SenderID, &m.Content, &channelID, &recipient, &parentID,
		&name, &url, &size, &mimeType, &m.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	m.Destination = domain.Destination{ChannelID: channelID.String, RecipientID: recipient.String}
	if parentID.Valid {
		m.ParentID = &parentID.UUID
	}
	if name.Valid {
		m.Attachment = &domain.Attachment{Name: name.String, URL: url.String, Size: size.Int64, MimeType: mimeType.String}
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func parseCursor(cursor string) (time.Time, uuid.UUID, error) {
	nanos, rawID, ok := strings.Cut(cursor, ":")
	if !ok {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor %q", cursor)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor %q: %w", cursor, err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor %q: %w", cursor, err)
	}
	return time.Unix(0, n).UTC(), id, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
