package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/claimdesk/internal/domain"
)

// Claims persists claims and their payout bookkeeping.
type Claims struct {
	db *sqlx.DB
}

// NextClaimID draws the next number from claim_number_seq.
func (r *Claims) NextClaimID(ctx context.Context) (string, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT nextval('claim_number_seq')`); err != nil {
		return "", wrap(ctx, "claims.next_id", err)
	}
	return domain.FormatClaimID(n), nil
}

// Create inserts a fresh claim.
func (r *Claims) Create(ctx context.Context, c domain.Claim) (domain.Claim, error) {
	var out domain.Claim
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO claims (claim_id, user_id, code, code_status, process_status, claim_status,
			payment_method, review_text, photo_file_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *`,
		c.ClaimID, c.UserID, c.Code, c.CodeStatus, c.ProcessStatus, c.ClaimStatus,
		c.PaymentMethod, c.ReviewText, stringArray(c.PhotoFileIDs),
	)
	if isUniqueViolation(err) {
		return out, domain.Conflict("claim " + c.ClaimID + " already exists")
	}
	return out, wrap(ctx, "claims.create", err)
}

// Get loads a claim.
func (r *Claims) Get(ctx context.Context, claimID string) (domain.Claim, error) {
	var out domain.Claim
	err := r.db.GetContext(ctx, &out, `SELECT * FROM claims WHERE claim_id = $1`, claimID)
	return out, wrap(ctx, "claims.get", err)
}

// Finalize stores the collected payment data. Exactly one of phone and card is kept.
func (r *Claims) Finalize(ctx context.Context, s domain.Submission) (domain.Claim, error) {
	var phone, card, bank *string
	if s.Method() == domain.PaymentPhone {
		phone = &s.Phone
	} else {
		card = &s.Card
	}
	if s.Bank != "" {
		bank = &s.Bank
	}
	var out domain.Claim
	err := r.db.GetContext(ctx, &out, `
		UPDATE claims SET
			process_status = $2,
			claim_status   = $3,
			payment_method = $4,
			phone          = $5,
			card           = $6,
			bank           = $7,
			review_text    = $8,
			photo_file_ids = $9,
			updated_at     = now()
		WHERE claim_id = $1
		RETURNING *`,
		s.ClaimID, domain.ProcessComplete, domain.ClaimProcess, s.Method(),
		phone, card, bank, s.ReviewText, stringArray(s.PhotoFileIDs),
	)
	return out, wrap(ctx, "claims.finalize", err)
}

// List returns one page of claims matching f.
func (r *Claims) List(ctx context.Context, f domain.ClaimFilter) ([]domain.ClaimRow, error) {
	sql, args := NewClaimQuery(f).ListSQL()
	rows := []domain.ClaimRow{}
	if err := r.db.SelectContext(ctx, &rows, sql, args...); err != nil {
		return nil, wrap(ctx, "claims.list", err)
	}
	return rows, nil
}

// Count returns how many claims match f, ignoring paging.
func (r *Claims) Count(ctx context.Context, f domain.ClaimFilter) (int, error) {
	sql, args := NewClaimQuery(f).CountSQL()
	var n int
	err := r.db.GetContext(ctx, &n, sql, args...)
	return n, wrap(ctx, "claims.count", err)
}

// Transition moves the claim to st only while it still sits in from.
// A claim changed by someone else in the meantime is a conflict.
func (r *Claims) Transition(ctx context.Context, claimID string, from, st domain.ClaimStatus, ps domain.ProcessStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE claims SET claim_status = $2, process_status = $3, updated_at = now()
		WHERE claim_id = $1 AND claim_status = $4`, claimID, st, ps, from)
	if err != nil {
		return wrap(ctx, "claims.transition", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(ctx, "claims.transition", err)
	}
	if n == 0 {
		return domain.Conflict(fmt.Sprintf("claim %s is no longer %s", claimID, from))
	}
	return nil
}

// SetContractor remembers the provider contractor created for the claim.
func (r *Claims) SetContractor(ctx context.Context, claimID, contractorID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE claims SET contractor_id = $2, updated_at = now() WHERE claim_id = $1`,
		claimID, contractorID)
	if err != nil {
		return wrap(ctx, "claims.set_contractor", err)
	}
	return affected(ctx, "claims.set_contractor", res)
}

// SetBankMember stores the FPS bank chosen by an operator for the claim payout.
func (r *Claims) SetBankMember(ctx context.Context, claimID, bankMemberID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE claims SET bank_member_id = $2, updated_at = now() WHERE claim_id = $1`,
		claimID, bankMemberID)
	if err != nil {
		return wrap(ctx, "claims.set_bank_member", err)
	}
	return affected(ctx, "claims.set_bank_member", res)
}

// RecordPayout stores the provider payment and links it to its claim in one transaction.
func (r *Claims) RecordPayout(ctx context.Context, p domain.KonsolPayment) (domain.KonsolPayment, error) {
	var out domain.KonsolPayment
	if p.ClaimID == nil {
		return out, domain.Invalid("payout without claim id")
	}
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertPayment(ctx, tx, p, &out); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE claims SET konsol_payment_id = $2, updated_at = now() WHERE claim_id = $1`,
			*p.ClaimID, p.PaymentID)
		if err != nil {
			return err
		}
		return affected(ctx, "claims.record_payout", res)
	})
	return out, wrap(ctx, "claims.record_payout", err)
}

func stringArray(v []string) pq.StringArray {
	if v == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(v)
}
