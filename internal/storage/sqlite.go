package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parleybot/parley/pkg/models"

	_ "modernc.org/sqlite" // cgo-free SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS channels (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	contact     TEXT NOT NULL,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	bot_id      TEXT NOT NULL,
	session_id  TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_channels_type ON channels(type);
CREATE INDEX IF NOT EXISTS idx_channels_session ON channels(session_id);

CREATE TABLE IF NOT EXISTS chats (
	id                  TEXT PRIMARY KEY,
	channel_id          TEXT NOT NULL,
	internal_identifier TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL,
	contact             TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_channel ON chats(channel_id);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	chat_id    TEXT NOT NULL,
	sender     TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON chat_messages(chat_id);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bots (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// NewSQLiteStores opens (creating if needed) a SQLite-backed StoreSet.
func NewSQLiteStores(path string) (StoreSet, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return StoreSet{}, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return StoreSet{}, fmt.Errorf("apply schema: %w", err)
	}
	return StoreSet{
		Channels: &sqliteChannelStore{db: db},
		Chats:    &sqliteChatStore{db: db},
		Messages: &sqliteMessageStore{db: db},
		Users:    &sqliteUserStore{db: db},
		Bots:     &sqliteBotStore{db: db},
		closer:   db.Close,
	}, nil
}

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- channels ---

type sqliteChannelStore struct {
	db *sql.DB
}

func (s *sqliteChannelStore) Create(ctx context.Context, ch *models.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, name, contact, type, status, user_id, bot_id, session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.Name, ch.Contact, ch.Type, string(ch.Status), ch.UserID, ch.BotID,
		nullString(ch.SessionID), encodeTime(ch.CreatedAt), encodeTime(ch.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *sqliteChannelStore) Get(ctx context.Context, id string) (*models.Channel, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, name, contact, type, status, user_id, bot_id, session_id, created_at, updated_at
		 FROM channels WHERE id = ?`, id))
}

func (s *sqliteChannelStore) GetBySessionID(ctx context.Context, sessionID string) (*models.Channel, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, name, contact, type, status, user_id, bot_id, session_id, created_at, updated_at
		 FROM channels WHERE session_id = ?`, sessionID))
}

func (s *sqliteChannelStore) List(ctx context.Context) ([]*models.Channel, error) {
	return s.list(ctx,
		`SELECT id, name, contact, type, status, user_id, bot_id, session_id, created_at, updated_at
		 FROM channels ORDER BY created_at`)
}

func (s *sqliteChannelStore) ListByType(ctx context.Context, channelType string) ([]*models.Channel, error) {
	return s.list(ctx,
		`SELECT id, name, contact, type, status, user_id, bot_id, session_id, created_at, updated_at
		 FROM channels WHERE type = ? ORDER BY created_at`, channelType)
}

func (s *sqliteChannelStore) ListByUser(ctx context.Context, userID string) ([]*models.Channel, error) {
	return s.list(ctx,
		`SELECT id, name, contact, type, status, user_id, bot_id, session_id, created_at, updated_at
		 FROM channels WHERE user_id = ? ORDER BY created_at`, userID)
}

func (s *sqliteChannelStore) Update(ctx context.Context, ch *models.Channel) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE channels SET name = ?, contact = ?, type = ?, status = ?, user_id = ?, bot_id = ?,
			session_id = ?, updated_at = ?
		WHERE id = ?`,
		ch.Name, ch.Contact, ch.Type, string(ch.Status), ch.UserID, ch.BotID,
		nullString(ch.SessionID), encodeTime(time.Now()), ch.ID)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteChannelStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteChannelStore) list(ctx context.Context, query string, args ...any) ([]*models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var out []*models.Channel
	for rows.Next() {
		ch, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqliteChannelStore) scanOne(row rowScanner) (*models.Channel, error) {
	var (
		ch                   models.Channel
		status               string
		sessionID            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&ch.ID, &ch.Name, &ch.Contact, &ch.Type, &status, &ch.UserID, &ch.BotID,
		&sessionID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	ch.Status = models.ChannelStatus(status)
	if sessionID.Valid {
		ch.SessionID = &sessionID.String
	}
	ch.CreatedAt = decodeTime(createdAt)
	ch.UpdatedAt = decodeTime(updatedAt)
	return &ch, nil
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- chats ---

type sqliteChatStore struct {
	db *sql.DB
}

func (s *sqliteChatStore) Create(ctx context.Context, chat *models.Chat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, channel_id, internal_identifier, name, contact, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.ChannelID, chat.InternalIdentifier, chat.Name, chat.Contact,
		encodeTime(chat.CreatedAt), encodeTime(chat.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (s *sqliteChatStore) Get(ctx context.Context, id string) (*models.Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, internal_identifier, name, contact, created_at, updated_at
		 FROM chats WHERE id = ?`, id))
}

func (s *sqliteChatStore) GetByInternalIdentifier(ctx context.Context, identifier string) (*models.Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, internal_identifier, name, contact, created_at, updated_at
		 FROM chats WHERE internal_identifier = ?`, identifier))
}

func (s *sqliteChatStore) ListByChannel(ctx context.Context, channelID string) ([]*models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, internal_identifier, name, contact, created_at, updated_at
		 FROM chats WHERE channel_id = ? ORDER BY created_at`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var out []*models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, chat)
	}
	return out, rows.Err()
}

func (s *sqliteChatStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return requireRow(res)
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var (
		chat                 models.Chat
		createdAt, updatedAt string
	)
	err := row.Scan(&chat.ID, &chat.ChannelID, &chat.InternalIdentifier, &chat.Name, &chat.Contact,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	chat.CreatedAt = decodeTime(createdAt)
	chat.UpdatedAt = decodeTime(updatedAt)
	return &chat, nil
}

// --- messages ---

type sqliteMessageStore struct {
	db *sql.DB
}

func (s *sqliteMessageStore) Create(ctx context.Context, msg *models.ChatMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, chat_id, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, string(msg.Sender), msg.Content, encodeTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *sqliteMessageStore) ListByChat(ctx context.Context, chatID string) ([]*models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, sender, content, created_at
		 FROM chat_messages WHERE chat_id = ? ORDER BY created_at`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatMessage
	for rows.Next() {
		var (
			msg       models.ChatMessage
			sender    string
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &sender, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Sender = models.ChatSender(sender)
		msg.CreatedAt = decodeTime(createdAt)
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// --- users ---

type sqliteUserStore struct {
	db *sql.DB
}

func (s *sqliteUserStore) Create(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, encodeTime(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *sqliteUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	var (
		user      models.User
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Name, &user.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.CreatedAt = decodeTime(createdAt)
	return &user, nil
}

// --- bots ---

type sqliteBotStore struct {
	db *sql.DB
}

func (s *sqliteBotStore) Create(ctx context.Context, bot *models.Bot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bots (id, name, user_id, created_at) VALUES (?, ?, ?, ?)`,
		bot.ID, bot.Name, bot.UserID, encodeTime(bot.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert bot: %w", err)
	}
	return nil
}

func (s *sqliteBotStore) Get(ctx context.Context, id string) (*models.Bot, error) {
	var (
		bot       models.Bot
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, user_id, created_at FROM bots WHERE id = ?`, id).
		Scan(&bot.ID, &bot.Name, &bot.UserID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan bot: %w", err)
	}
	bot.CreatedAt = decodeTime(createdAt)
	return &bot, nil
}
