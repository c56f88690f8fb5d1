package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/ambrose/internal/model"
)

const messageColumns = "id, user_id, kind, nickname, text, dateformat, timezone, task_id, choices, created_at"

// CreateMessage inserts a message.
func (s *SQLStore) CreateMessage(ctx context.Context, m model.Message) (*model.Message, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Choices == nil {
		m.Choices = model.StringList{}
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO messages ("+messageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		m.ID, m.UserID, string(m.Kind), m.Nickname, m.Text, m.DateFormat, m.Timezone,
		m.TaskID, m.Choices, m.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("creating message: %w", classify(err))
	}
	return &m, nil
}

// UpdateMessage rewrites the editable fields of a message.
func (s *SQLStore) UpdateMessage(ctx context.Context, m model.Message) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE messages SET
			kind = ?, nickname = ?, text = ?, dateformat = ?, timezone = ?, task_id = ?, choices = ?
		WHERE id = ?`),
		string(m.Kind), m.Nickname, m.Text, m.DateFormat, m.Timezone, m.TaskID, m.Choices, m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	return expectOne(res, "message", m.ID)
}

// DeleteMessage removes a message.
func (s *SQLStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM messages WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return expectOne(res, "message", id)
}

// GetMessage returns a message by ID.
func (s *SQLStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.db.GetContext(ctx, &m, s.rebind(
		"SELECT "+messageColumns+" FROM messages WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return &m, nil
}

// ListMessages returns a user's messages in creation order.
func (s *SQLStore) ListMessages(ctx context.Context, userID string) ([]model.Message, error) {
	var msgs []model.Message
	if err := s.db.SelectContext(ctx, &msgs, s.rebind(
		"SELECT "+messageColumns+" FROM messages WHERE user_id = ? ORDER BY created_at, id"),
		userID); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}
