package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// ActivationIDsRepository stores the single activation id a user may hold.
type ActivationIDsRepository struct {
	db *sql.DB
}

// NewActivationIDsRepository creates a new activation ids repository.
func NewActivationIDsRepository(db *sql.DB) *ActivationIDsRepository {
	return &ActivationIDsRepository{db: db}
}

// Upsert creates the user's activation id or refreshes its value and timestamp.
// The returned record carries the persisted row id.
func (r *ActivationIDsRepository) Upsert(ctx context.Context, a *domain.ActivationID) error {
	return upsertActivationID(ctx, r.db, a)
}

func upsertActivationID(ctx context.Context, q Querier, a *domain.ActivationID) error {
	query := `
		INSERT INTO activation_ids (id, user_id, value, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET value = EXCLUDED.value, created_at = EXCLUDED.created_at
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query, a.ID, a.UserID, a.Value, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert activation id: %w", err)
	}
	return nil
}

const selectActivationID = `
	SELECT id, user_id, value, created_at
	FROM activation_ids
`

// GetByValue looks up an activation id by its opaque value.
func (r *ActivationIDsRepository) GetByValue(ctx context.Context, value string) (*domain.ActivationID, error) {
	return r.scan(r.db.QueryRowContext(ctx, selectActivationID+`WHERE value = $1`, value))
}

// GetByUserID looks up the activation id held by a user.
func (r *ActivationIDsRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.ActivationID, error) {
	return r.scan(r.db.QueryRowContext(ctx, selectActivationID+`WHERE user_id = $1`, userID))
}

func (r *ActivationIDsRepository) scan(row *sql.Row) (*domain.ActivationID, error) {
	a := &domain.ActivationID{}
	err := row.Scan(&a.ID, &a.UserID, &a.Value, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrActivationIDNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activation id: %w", err)
	}
	return a, nil
}

// Delete removes an activation id. Deleting a missing row is not an error.
func (r *ActivationIDsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM activation_ids WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete activation id: %w", err)
	}
	return nil
}
