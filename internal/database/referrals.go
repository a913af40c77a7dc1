package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EarningRecord is a row of referral_earnings.
type EarningRecord struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	ReferralID  string    `db:"referral_id"`
	Amount      float64   `db:"amount"`
	Source      string    `db:"source"`
	Description string    `db:"description"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ReferralCompletion describes the two writes that complete a referral.
type ReferralCompletion struct {
	ReferralID       string
	CommissionEarned float64
	Earning          EarningRecord
}

const completeReferralSQL = `
	UPDATE referrals
	SET status = 'completed', commission_earned = $2, updated_at = $3
	WHERE id = $1`

const insertEarningSQL = `
	INSERT INTO referral_earnings (id, user_id, referral_id, amount, source, description, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	RETURNING id, user_id, referral_id, amount, source, description, status, created_at, updated_at`

// CompleteReferral marks the referral completed and records the earning
// atomically. A missing referral yields sql.ErrNoRows.
func (s *Store) CompleteReferral(ctx context.Context, c ReferralCompletion) (*EarningRecord, error) {
	e := c.Earning
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()

	var created EarningRecord
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, completeReferralSQL, c.ReferralID, c.CommissionEarned, now)
		if err != nil {
			return fmt.Errorf("update referral: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update referral %s: %w", c.ReferralID, sql.ErrNoRows)
		}

		if err := tx.QueryRowxContext(ctx, insertEarningSQL,
			e.ID, e.UserID, c.ReferralID, e.Amount, e.Source, e.Description, e.Status, now,
		).StructScan(&created); err != nil {
			return fmt.Errorf("insert earning: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}
