package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebay/backend/internal/models"
)

var (
	ErrNotFound      = errors.New("coupon not found")
	ErrDuplicateCode = errors.New("coupon code already exists")
	ErrExhausted     = errors.New("coupon usage limit reached")
)

const couponColumns = `id, course_id, code, discount_type, discount_value, max_uses, used_count, valid_from, valid_until, is_active, created_by, created_at, updated_at`

// Repository provides coupon persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, coupon *models.Coupon) error {
	const q = `
		INSERT INTO coupons (course_id, code, discount_type, discount_value, max_uses, valid_from, valid_until, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7, $8, $9)
		RETURNING id, used_count, valid_from, created_at, updated_at`
	var validFrom *time.Time
	if !coupon.ValidFrom.IsZero() {
		validFrom = &coupon.ValidFrom
	}
	err := r.pool.QueryRow(ctx, q,
		coupon.CourseID, strings.ToUpper(coupon.Code), coupon.DiscountType, coupon.DiscountValue,
		coupon.MaxUses, validFrom, coupon.ValidUntil, coupon.IsActive, coupon.CreatedBy).
		Scan(&coupon.ID, &coupon.UsedCount, &coupon.ValidFrom, &coupon.CreatedAt, &coupon.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("create coupon: %w", err)
	}
	coupon.Code = strings.ToUpper(coupon.Code)
	return nil
}

// GetByCode looks a coupon up by its code, case-insensitively.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	const q = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	return scanOne(r.pool.QueryRow(ctx, q, strings.ToUpper(code)))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	const q = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	return scanOne(r.pool.QueryRow(ctx, q, id))
}

// ListByCreator returns the coupons an instructor created, newest first.
func (r *Repository) ListByCreator(ctx context.Context, createdBy uuid.UUID) ([]models.Coupon, error) {
	const q = `SELECT ` + couponColumns + ` FROM coupons WHERE created_by = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, createdBy)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var list []models.Coupon
	for rows.Next() {
		co, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *co)
	}
	return list, rows.Err()
}

// Redeem increments used_count if and only if the limit has not been reached.
// The conditional update makes concurrent redemptions of the last slot race
// safely: exactly one wins, the rest get ErrExhausted.
func (r *Repository) Redeem(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	const q = `
		UPDATE coupons SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1 AND (max_uses IS NULL OR used_count < max_uses)
		RETURNING ` + couponColumns
	co, err := scanOne(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, ErrNotFound) {
		// Distinguish missing from exhausted.
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, ErrExhausted
		}
		return nil, ErrNotFound
	}
	return co, err
}

// SetActive flips a coupon on or off without deleting its usage history.
func (r *Repository) SetActive(ctx context.Context, id, createdBy uuid.UUID, active bool) error {
	const q = `UPDATE coupons SET is_active = $3, updated_at = NOW() WHERE id = $1 AND created_by = $2`
	tag, err := r.pool.Exec(ctx, q, id, createdBy, active)
	if err != nil {
		return fmt.Errorf("set coupon active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id, createdBy uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1 AND created_by = $2`, id, createdBy)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUsage records who redeemed a coupon on which payment.
func (r *Repository) CreateUsage(ctx context.Context, usage *models.CouponUsage) error {
	const q = `
		INSERT INTO coupon_usages (coupon_id, user_id, payment_id, discount_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING id, used_at`
	err := r.pool.QueryRow(ctx, q, usage.CouponID, usage.UserID, usage.PaymentID, usage.DiscountCents).
		Scan(&usage.ID, &usage.UsedAt)
	if err != nil {
		return fmt.Errorf("create coupon usage: %w", err)
	}
	return nil
}

func (r *Repository) ListUsages(ctx context.Context, couponID uuid.UUID) ([]models.CouponUsage, error) {
	const q = `
		SELECT id, coupon_id, user_id, payment_id, discount_cents, used_at
		FROM coupon_usages WHERE coupon_id = $1 ORDER BY used_at DESC`
	rows, err := r.pool.Query(ctx, q, couponID)
	if err != nil {
		return nil, fmt.Errorf("list coupon usages: %w", err)
	}
	defer rows.Close()

	var list []models.CouponUsage
	for rows.Next() {
		var u models.CouponUsage
		if err := rows.Scan(&u.ID, &u.CouponID, &u.UserID, &u.PaymentID, &u.DiscountCents, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scan coupon usage: %w", err)
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row pgx.Row) (*models.Coupon, error) {
	co, err := scanRow(row)
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return co, err
}

func scanRow(row rowScanner) (*models.Coupon, error) {
	var co models.Coupon
	err := row.Scan(
		&co.ID, &co.CourseID, &co.Code, &co.DiscountType, &co.DiscountValue,
		&co.MaxUses, &co.UsedCount, &co.ValidFrom, &co.ValidUntil, &co.IsActive,
		&co.CreatedBy, &co.CreatedAt, &co.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	return &co, nil
}
