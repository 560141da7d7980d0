package auth

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebay/backend/internal/models"
)

// ResetRepository handles password reset code persistence.
type ResetRepository struct {
	pool *pgxpool.Pool
}

// NewResetRepository creates a password reset repository.
func NewResetRepository(pool *pgxpool.Pool) *ResetRepository {
	return &ResetRepository{pool: pool}
}

// Create inserts a reset code for an email.
func (r *ResetRepository) Create(ctx context.Context, rec *models.PasswordReset) error {
	const q = `INSERT INTO password_resets (id, email, code, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, used_at, created_at`
	return r.pool.QueryRow(ctx, q, rec.Email, rec.Code, rec.ExpiresAt).
		Scan(&rec.ID, &rec.UsedAt, &rec.CreatedAt)
}

// GetByEmailAndCode returns the matching unused reset record, if any.
func (r *ResetRepository) GetByEmailAndCode(ctx context.Context, email, code string) (*models.PasswordReset, error) {
	const q = `SELECT id, email, code, expires_at, used_at, created_at
		FROM password_resets WHERE email = $1 AND code = $2 AND used_at IS NULL`
	var rec models.PasswordReset
	err := r.pool.QueryRow(ctx, q, email, code).
		Scan(&rec.ID, &rec.Email, &rec.Code, &rec.ExpiresAt, &rec.UsedAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkUsed sets used_at for a record.
func (r *ResetRepository) MarkUsed(ctx context.Context, rec *models.PasswordReset) error {
	const q = `UPDATE password_resets SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`
	_, err := r.pool.Exec(ctx, q, rec.ID)
	return err
}

// PurgeByEmail deletes all reset records for an email. Called before issuing
// a new code (so only the latest validates) and after a successful reset.
func (r *ResetRepository) PurgeByEmail(ctx context.Context, email string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE email = $1`, email)
	return err
}

// PurgeExpired deletes expired records; run periodically by the worker.
func (r *ResetRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
