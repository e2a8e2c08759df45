package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// MFARecordsRepository handles database operations for TOTP records.
type MFARecordsRepository struct {
	db *sql.DB
}

// NewMFARecordsRepository creates a new MFA records repository.
func NewMFARecordsRepository(db *sql.DB) *MFARecordsRepository {
	return &MFARecordsRepository{db: db}
}

// Create inserts a new MFA record. A second record for the same user is
// rejected with domain.ErrMFAAlreadyEnabled.
func (r *MFARecordsRepository) Create(ctx context.Context, rec *domain.MFARecord) error {
	query := `
		INSERT INTO mfa_records (id, user_id, secret, last_consumed_token, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.Secret, rec.LastConsumedToken, rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrMFAAlreadyEnabled
		}
		return fmt.Errorf("failed to create MFA record: %w", err)
	}
	return nil
}

// GetByUserID retrieves the user's MFA record.
func (r *MFARecordsRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.MFARecord, error) {
	query := `
		SELECT id, user_id, secret, last_consumed_token, created_at
		FROM mfa_records
		WHERE user_id = $1
	`
	rec := &domain.MFARecord{}
	var last sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.ID, &rec.UserID, &rec.Secret, &last, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMFARecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get MFA record: %w", err)
	}
	if last.Valid {
		rec.LastConsumedToken = &last.String
	}
	return rec, nil
}

// UpdateLastConsumedToken records the most recently accepted code. The write
// only succeeds when token differs from the stored value, so of two requests
// racing with the same code only one is accepted.
func (r *MFARecordsRepository) UpdateLastConsumedToken(ctx context.Context, id uuid.UUID, token string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mfa_records SET last_consumed_token = $2
		WHERE id = $1 AND last_consumed_token IS DISTINCT FROM $2
	`, id, token)
	if err != nil {
		return fmt.Errorf("failed to update MFA record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrMFATokenConsumed
	}
	return nil
}

// DeleteByUserID removes the user's MFA record, disabling MFA.
func (r *MFARecordsRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM mfa_records WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete MFA record: %w", err)
	}
	return nil
}
