package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebay/backend/internal/models"
)

var (
	ErrNotFound          = errors.New("payment not found")
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

const paymentColumns = `id, user_id, course_id, provider, provider_payment_id, provider_customer_id,
	amount_cents, discount_cents, coupon_id, currency, status, payment_type, refunded_at, metadata, created_at, updated_at`

// Repository provides payment and saved-card persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p *models.Payment) error {
	const q = `
		INSERT INTO payments (user_id, course_id, provider, provider_payment_id, provider_customer_id,
			amount_cents, discount_cents, coupon_id, currency, status, payment_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q,
		p.UserID, p.CourseID, p.Provider, nullIfEmpty(p.ProviderPaymentID), nullIfEmpty(p.ProviderCustomerID),
		p.AmountCents, p.DiscountCents, p.CouponID, p.Currency, p.Status, p.PaymentType, p.Metadata).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.pool.QueryRow(ctx, q, id))
}

func (r *Repository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE provider_payment_id = $1`
	return scanPayment(r.pool.QueryRow(ctx, q, providerPaymentID))
}

// HasCompletedByUserAndCourse reports whether the user already paid for the
// course. Checked before any gateway call is made.
func (r *Repository) HasCompletedByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM payments
			WHERE user_id = $1 AND course_id = $2 AND status = $3
		)`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, userID, courseID, models.PaymentStatusCompleted).Scan(&exists); err != nil {
		return false, fmt.Errorf("check completed payment: %w", err)
	}
	return exists, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var list []models.Payment
	for rows.Next() {
		p, err := scanPaymentRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// UpdateStatus moves a payment to the next status. The transition rules live
// on the model; an out-of-order webhook gets ErrInvalidTransition.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, next string) (*models.Payment, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	q := `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + paymentColumns
	if next == models.PaymentStatusRefunded {
		q = `UPDATE payments SET status = $2, refunded_at = NOW(), updated_at = NOW() WHERE id = $1 RETURNING ` + paymentColumns
	}
	return scanPayment(r.pool.QueryRow(ctx, q, id, next))
}

// --- saved cards ---

func (r *Repository) UpsertSavedCard(ctx context.Context, card *models.SavedCard) error {
	const q = `
		INSERT INTO saved_cards (user_id, provider_payment_method_id, brand, last4, exp_month, exp_year, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, provider_payment_method_id)
		DO UPDATE SET brand = EXCLUDED.brand, last4 = EXCLUDED.last4,
			exp_month = EXCLUDED.exp_month, exp_year = EXCLUDED.exp_year
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q,
		card.UserID, card.ProviderPaymentMethodID, card.Brand, card.Last4, card.ExpMonth, card.ExpYear, card.IsDefault).
		Scan(&card.ID, &card.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert saved card: %w", err)
	}
	return nil
}

func (r *Repository) ListSavedCards(ctx context.Context, userID uuid.UUID) ([]models.SavedCard, error) {
	const q = `
		SELECT id, user_id, provider_payment_method_id, brand, last4, exp_month, exp_year, is_default, created_at
		FROM saved_cards WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list saved cards: %w", err)
	}
	defer rows.Close()

	var list []models.SavedCard
	for rows.Next() {
		var c models.SavedCard
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProviderPaymentMethodID, &c.Brand, &c.Last4,
			&c.ExpMonth, &c.ExpYear, &c.IsDefault, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan saved card: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *Repository) GetSavedCard(ctx context.Context, userID, cardID uuid.UUID) (*models.SavedCard, error) {
	const q = `
		SELECT id, user_id, provider_payment_method_id, brand, last4, exp_month, exp_year, is_default, created_at
		FROM saved_cards WHERE id = $1 AND user_id = $2`
	var c models.SavedCard
	err := r.pool.QueryRow(ctx, q, cardID, userID).Scan(
		&c.ID, &c.UserID, &c.ProviderPaymentMethodID, &c.Brand, &c.Last4,
		&c.ExpMonth, &c.ExpYear, &c.IsDefault, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get saved card: %w", err)
	}
	return &c, nil
}

func (r *Repository) DeleteSavedCard(ctx context.Context, userID, cardID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM saved_cards WHERE id = $1 AND user_id = $2`, cardID, userID)
	if err != nil {
		return fmt.Errorf("delete saved card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	p, err := scanPaymentRow(row)
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaymentRow(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var providerPaymentID, providerCustomerID *string
	err := row.Scan(
		&p.ID, &p.UserID, &p.CourseID, &p.Provider, &providerPaymentID, &providerCustomerID,
		&p.AmountCents, &p.DiscountCents, &p.CouponID, &p.Currency, &p.Status, &p.PaymentType,
		&p.RefundedAt, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	if providerPaymentID != nil {
		p.ProviderPaymentID = *providerPaymentID
	}
	if providerCustomerID != nil {
		p.ProviderCustomerID = *providerCustomerID
	}
	return &p, nil
}
