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

const accountColumns = `id, user_id, provider, nickname, username, organization,
	application_id, base_url, credential, created_at`

// CreateAccount inserts a new account. Generates a UUID if ID is empty.
func (s *SQLStore) CreateAccount(ctx context.Context, a model.Account) (*model.Account, error) {
	if !a.Provider.Valid() {
		return nil, fmt.Errorf("unknown provider %q", a.Provider)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, string(a.Provider), a.Nickname, a.Username, a.Organization,
		a.ApplicationID, a.BaseURL, a.Credential, a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", classify(err))
	}
	return &a, nil
}

// UpdateAccount rewrites the editable fields of an account.
func (s *SQLStore) UpdateAccount(ctx context.Context, a model.Account) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE accounts SET
			nickname = ?, username = ?, organization = ?,
			application_id = ?, base_url = ?, credential = ?
		WHERE id = ?`),
		a.Nickname, a.Username, a.Organization,
		a.ApplicationID, a.BaseURL, a.Credential, a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	return expectOne(res, "account", a.ID)
}

// DeleteAccount removes an account. Its tasks are removed by cascade.
func (s *SQLStore) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM accounts WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return expectOne(res, "account", id)
}

// GetAccount returns a single account by ID.
func (s *SQLStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	err := s.db.GetContext(ctx, &a, s.rebind(
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return &a, nil
}

// ListAccounts returns every account, oldest first.
func (s *SQLStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := s.db.SelectContext(ctx, &accounts,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

// ListAccountsForUser returns the accounts owned by a user.
func (s *SQLStore) ListAccountsForUser(ctx context.Context, userID string) ([]model.Account, error) {
	var accounts []model.Account
	if err := s.db.SelectContext(ctx, &accounts, s.rebind(
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = ? ORDER BY created_at, id"), userID); err != nil {
		return nil, fmt.Errorf("listing accounts for user: %w", err)
	}
	return accounts, nil
}
