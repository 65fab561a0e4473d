package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/claimdesk/internal/domain"
)

// Payments persists provider payouts.
type Payments struct {
	db *sqlx.DB
}

const insertPaymentSQL = `
	INSERT INTO konsol_payments (payment_id, contractor_id, claim_id, payment_number, amount, status,
		bank_details_kind, purpose, first_name, last_name, phone, card, bank_member_id, created_by)
	VALUES (:payment_id, :contractor_id, :claim_id, :payment_number, :amount, :status,
		:bank_details_kind, :purpose, :first_name, :last_name, :phone, :card, :bank_member_id, :created_by)
	RETURNING *`

func insertPayment(ctx context.Context, tx *sqlx.Tx, p domain.KonsolPayment, out *domain.KonsolPayment) error {
	query, args, err := tx.BindNamed(insertPaymentSQL, p)
	if err != nil {
		return err
	}
	return tx.GetContext(ctx, out, query, args...)
}

// Insert stores a payout that is not bound to a claim status change.
func (r *Payments) Insert(ctx context.Context, p domain.KonsolPayment) (domain.KonsolPayment, error) {
	var out domain.KonsolPayment
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return insertPayment(ctx, tx, p, &out)
	})
	return out, wrap(ctx, "payments.insert", err)
}

// Recent lists the latest payouts.
func (r *Payments) Recent(ctx context.Context, limit int) ([]domain.KonsolPayment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []domain.KonsolPayment{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM konsol_payments ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	return out, wrap(ctx, "payments.recent", err)
}

// ByClaim lists payouts created for a claim.
func (r *Payments) ByClaim(ctx context.Context, claimID string) ([]domain.KonsolPayment, error) {
	out := []domain.KonsolPayment{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM konsol_payments WHERE claim_id = $1 ORDER BY created_at DESC`, claimID)
	return out, wrap(ctx, "payments.by_claim", err)
}
