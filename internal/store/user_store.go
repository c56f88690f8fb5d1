package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/ambrose/internal/model"
)

// CreateUser inserts a user. Generates a UUID if ID is empty.
func (s *SQLStore) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	if strings.TrimSpace(user.Username) == "" {
		return nil, fmt.Errorf("username must not be empty")
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)"),
		user.ID, user.Username, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", classify(err))
	}
	return &user, nil
}

// GetUser returns a single user by ID.
func (s *SQLStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.rebind(
		"SELECT id, username, created_at FROM users WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

// GetUserByUsername returns a single user by username.
func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.rebind(
		"SELECT id, username, created_at FROM users WHERE username = ?"), username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}
