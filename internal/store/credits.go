package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CreditReferral adds referral earnings to a profile. Events are deduplicated
// by EventID: a repeated event returns the stored credit with applied=false and
// leaves the balance untouched.
func (s *Store) CreditReferral(ctx context.Context, input CreditInput) (Credit, bool, error) {
	ctx, span := tracer.Start(ctx, "store.CreditReferral", trace.WithAttributes(
		attribute.String("credit.event_id", input.EventID),
		attribute.String("user.id", input.UserID.String()),
	))
	defer span.End()

	if !ValidAmount(input.Amount) {
		return Credit{}, false, ErrInvalidAmount
	}

	var (
		credit  Credit
		applied bool
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO referral_credits (event_id, user_id, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (event_id) DO NOTHING
			RETURNING event_id, user_id, amount, created_at
		`, input.EventID, input.UserID, input.Amount).Scan(
			&credit.EventID,
			&credit.UserID,
			&credit.Amount,
			&credit.CreatedAt,
		)
		if err != nil {
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				credit, err = getCredit(ctx, tx, input.EventID)
				return err
			case isForeignKeyViolation(err):
				return ErrProfileNotFound
			case isCheckViolation(err), isNumericOutOfRange(err):
				return ErrInvalidAmount
			}
			return errors.Wrap(err, "insert credit")
		}

		tag, err := tx.Exec(ctx, `
			UPDATE profiles
			SET total_earnings = total_earnings + $1,
				referral_count = referral_count + 1,
				updated_at = now()
			WHERE user_id = $2
		`, input.Amount, input.UserID)
		if err != nil {
			if isNumericOutOfRange(err) {
				return ErrInvalidAmount
			}
			return errors.Wrap(err, "credit balance")
		}
		if tag.RowsAffected() == 0 {
			return ErrProfileNotFound
		}

		eventID := input.EventID
		if err := insertLedgerEntry(ctx, tx, LedgerEntry{
			UserID:        input.UserID,
			CreditEventID: &eventID,
			Amount:        input.Amount,
			Direction:     DirectionCredit,
			Reason:        ReasonReferral,
		}); err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Credit{}, false, err
	}
	return credit, applied, nil
}

func getCredit(ctx context.Context, q queryer, eventID string) (Credit, error) {
	var c Credit
	err := q.QueryRow(ctx, `
		SELECT event_id, user_id, amount, created_at
		FROM referral_credits
		WHERE event_id = $1
	`, eventID).Scan(&c.EventID, &c.UserID, &c.Amount, &c.CreatedAt)
	if err != nil {
		return Credit{}, errors.Wrap(err, "get credit")
	}
	return c, nil
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, e LedgerEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (user_id, redemption_id, credit_event_id, amount, direction, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.UserID, e.RedemptionID, e.CreditEventID, e.Amount, e.Direction, e.Reason)
	return errors.Wrap(err, "insert ledger entry")
}

// LedgerEntries returns a user's balance movements, oldest first.
func (s *Store) LedgerEntries(ctx context.Context, userID uuid.UUID, limit int) ([]LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, redemption_id, credit_event_id, amount, direction, reason, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY id ASC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger entries")
	}
	defer rows.Close()

	entries := make([]LedgerEntry, 0)
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.RedemptionID,
			&e.CreditEventID,
			&e.Amount,
			&e.Direction,
			&e.Reason,
			&e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "list ledger entries")
}
