package repository

import (
	"context"
	"errors"
	"fmt"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	FindByCode(ctx context.Context, code string) (*entity.Payment, error)
	FindLatestPending(ctx context.Context, bookingID int64) (*entity.Payment, error)
	FindLatestPaid(ctx context.Context, bookingID int64, forUpdate bool) (*entity.Payment, error)

	// State changes
	MarkPaid(ctx context.Context, payment *entity.Payment) error
	RefreshPending(ctx context.Context, payment *entity.Payment) error
	TransitionStatus(ctx context.Context, id int64, from, to entity.PaymentStatus) error
	CancelPendingByBooking(ctx context.Context, bookingID int64) (int64, error)
	ExpireLapsedPending(ctx context.Context) (int64, error)
}

type paymentRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewPaymentRepository(db database.PgxIface, log *zap.Logger) PaymentRepository {
	return &paymentRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment")),
	}
}

const paymentColumns = `id, booking_id, method, payment_code, amount, status, provider_ref,
		response_code, checkout_ref, note, expire_at, created_at, updated_at`

func scanPayment(row pgx.Row, extra ...any) (*entity.Payment, error) {
	var p entity.Payment
	dest := []any{
		&p.ID,
		&p.BookingID,
		&p.Method,
		&p.PaymentCode,
		&p.Amount,
		&p.Status,
		&p.ProviderRef,
		&p.ResponseCode,
		&p.CheckoutRef,
		&p.Note,
		&p.ExpireAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (booking_id, method, payment_code, amount, status, provider_ref,
			response_code, checkout_ref, note, expire_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := database.Conn(ctx, r.db).QueryRow(ctx, query,
		payment.BookingID,
		payment.Method,
		payment.PaymentCode,
		payment.Amount,
		payment.Status,
		payment.ProviderRef,
		payment.ResponseCode,
		payment.CheckoutRef,
		payment.Note,
		payment.ExpireAt,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)

	if err != nil {
		r.log.Error("Failed to create payment",
			zap.Error(err),
			zap.Int64("booking_id", payment.BookingID),
			zap.String("payment_code", payment.PaymentCode),
			zap.String("status", string(payment.Status)),
		)
		return fmt.Errorf("create payment for booking %d: %w", payment.BookingID, err)
	}

	return nil
}

func (r *paymentRepository) FindByCode(ctx context.Context, code string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_code = $1`

	payment, err := scanPayment(database.Conn(ctx, r.db).QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment by code", zap.Error(err), zap.String("payment_code", code))
		return nil, fmt.Errorf("find payment by code %s: %w", code, err)
	}

	return payment, nil
}

// FindLatestPending locks the booking's pending payment row, if any.
func (r *paymentRepository) FindLatestPending(ctx context.Context, bookingID int64) (*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `,
			COALESCE(expire_at <= ` + dbNow + `, false) AS lapsed
		FROM payments
		WHERE booking_id = $1 AND status = 'pending'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`

	var lapsed bool
	payment, err := scanPayment(database.Conn(ctx, r.db).QueryRow(ctx, query, bookingID), &lapsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find pending payment", zap.Error(err), zap.Int64("booking_id", bookingID))
		return nil, fmt.Errorf("find pending payment for booking %d: %w", bookingID, err)
	}

	payment.Lapsed = lapsed
	return payment, nil
}

func (r *paymentRepository) FindLatestPaid(ctx context.Context, bookingID int64, forUpdate bool) (*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1 AND status = 'paid'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	payment, err := scanPayment(database.Conn(ctx, r.db).QueryRow(ctx, query, bookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find paid payment", zap.Error(err), zap.Int64("booking_id", bookingID))
		return nil, fmt.Errorf("find paid payment for booking %d: %w", bookingID, err)
	}

	return payment, nil
}

// MarkPaid settles a pending row in place with the provider's details.
func (r *paymentRepository) MarkPaid(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments
		SET status = 'paid', method = $2, amount = $3, provider_ref = $4, response_code = $5,
			expire_at = NULL, updated_at = ` + dbNow + `
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at
	`

	err := database.Conn(ctx, r.db).QueryRow(ctx, query,
		payment.ID,
		payment.Method,
		payment.Amount,
		payment.ProviderRef,
		payment.ResponseCode,
	).Scan(&payment.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("payment %d not pending: %w", payment.ID, ErrStaleStatus)
	}
	if err != nil {
		r.log.Error("Failed to mark payment paid", zap.Error(err), zap.Int64("payment_id", payment.ID))
		return fmt.Errorf("mark payment %d paid: %w", payment.ID, err)
	}

	payment.Status = entity.PaymentStatusPaid
	payment.ExpireAt = nil
	return nil
}

// RefreshPending re-arms a lapsed pending row with a new provider charge.
func (r *paymentRepository) RefreshPending(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments
		SET method = $2, payment_code = $3, amount = $4, checkout_ref = $5, expire_at = $6,
			updated_at = ` + dbNow + `
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at
	`

	err := database.Conn(ctx, r.db).QueryRow(ctx, query,
		payment.ID,
		payment.Method,
		payment.PaymentCode,
		payment.Amount,
		payment.CheckoutRef,
		payment.ExpireAt,
	).Scan(&payment.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("payment %d not pending: %w", payment.ID, ErrStaleStatus)
	}
	if err != nil {
		r.log.Error("Failed to refresh pending payment", zap.Error(err), zap.Int64("payment_id", payment.ID))
		return fmt.Errorf("refresh payment %d: %w", payment.ID, err)
	}

	payment.Lapsed = false
	return nil
}

func (r *paymentRepository) TransitionStatus(ctx context.Context, id int64, from, to entity.PaymentStatus) error {
	query := `
		UPDATE payments
		SET status = $3, updated_at = ` + dbNow + `
		WHERE id = $1 AND status = $2
	`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, id, from, to)
	if err != nil {
		r.log.Error("Failed to update payment status",
			zap.Error(err),
			zap.Int64("payment_id", id),
			zap.String("to", string(to)),
		)
		return fmt.Errorf("update payment %d status: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment %d not %s: %w", id, from, ErrStaleStatus)
	}

	return nil
}

func (r *paymentRepository) CancelPendingByBooking(ctx context.Context, bookingID int64) (int64, error) {
	query := `
		UPDATE payments
		SET status = 'cancelled', updated_at = ` + dbNow + `
		WHERE booking_id = $1 AND status = 'pending'
	`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to cancel pending payments", zap.Error(err), zap.Int64("booking_id", bookingID))
		return 0, fmt.Errorf("cancel pending payments of booking %d: %w", bookingID, err)
	}

	return result.RowsAffected(), nil
}

// ExpireLapsedPending marks pending charges past their own deadline as expired.
func (r *paymentRepository) ExpireLapsedPending(ctx context.Context) (int64, error) {
	query := `
		UPDATE payments
		SET status = 'expired', updated_at = ` + dbNow + `
		WHERE status = 'pending' AND expire_at IS NOT NULL AND expire_at <= ` + dbNow

	result, err := database.Conn(ctx, r.db).Exec(ctx, query)
	if err != nil {
		r.log.Error("Failed to expire lapsed pending payments", zap.Error(err))
		return 0, fmt.Errorf("expire lapsed pending payments: %w", err)
	}

	return result.RowsAffected(), nil
}
