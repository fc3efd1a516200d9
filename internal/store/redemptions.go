package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const redemptionSelect = `
	SELECT r.id, r.user_id, r.reward_id, rw.title, r.price_paid, r.status, r.reward_data,
		r.request_token, r.refunded, r.created_at, r.updated_at
	FROM reward_redemptions r
	LEFT JOIN rewards rw ON rw.id = r.reward_id`

func scanRedemption(row pgx.Row) (Redemption, error) {
	var r Redemption
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.RewardID,
		&r.RewardTitle,
		&r.PricePaid,
		&r.Status,
		&r.RewardData,
		&r.RequestToken,
		&r.Refunded,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

// Redeem exchanges a user's earnings for one unit of a reward. Stock, balance,
// redemption record and ledger entry are written in one transaction, and both
// counters are decremented with conditional updates so concurrent redemptions
// cannot overdraw either. The bool result reports an idempotent replay of an
// earlier request with the same token.
func (s *Store) Redeem(ctx context.Context, input RedeemInput) (Redemption, bool, error) {
	ctx, span := tracer.Start(ctx, "store.Redeem", trace.WithAttributes(
		attribute.String("user.id", input.UserID.String()),
		attribute.String("reward.id", input.RewardID.String()),
	))
	defer span.End()

	redemption, replayed, err := s.redeem(ctx, input)
	if err != nil && isUniqueViolation(err) {
		// A concurrent request with the same token committed first.
		redemption, replayed, err = s.replay(ctx, input)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Redemption{}, false, err
	}
	span.SetAttributes(attribute.Bool("redemption.replayed", replayed))
	return redemption, replayed, nil
}

func (s *Store) redeem(ctx context.Context, input RedeemInput) (Redemption, bool, error) {
	var (
		result   Redemption
		replayed bool
	)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		// The profile row lock serializes a user's redemptions, so a retry of
		// an in-flight token waits here and then sees the committed record.
		// Lock order is profile, then reward, here and in refundRedemption.
		var banned bool
		err := tx.QueryRow(ctx, "SELECT is_banned FROM profiles WHERE user_id = $1 FOR UPDATE", input.UserID).Scan(&banned)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrProfileNotFound
			}
			return errors.Wrap(err, "lock profile")
		}

		existing, err := redemptionByToken(ctx, tx, input.UserID, input.RequestToken)
		if err == nil {
			if !sameRequest(existing, input) {
				return ErrIdempotencyConflict
			}
			result, replayed = existing, true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrap(err, "lookup request token")
		}

		if banned {
			return ErrProfileBanned
		}

		// Untracked stock is NULL and stays NULL.
		var price decimal.Decimal
		err = tx.QueryRow(ctx, `
			UPDATE rewards
			SET stock = stock - 1, updated_at = now()
			WHERE id = $1 AND is_active AND (stock IS NULL OR stock > 0)
			RETURNING price
		`, input.RewardID).Scan(&price)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return unavailableReason(ctx, tx, input.RewardID)
			}
			return errors.Wrap(err, "decrement stock")
		}

		if input.ExpectedPrice != nil && !input.ExpectedPrice.Equal(price) {
			return ErrPriceChanged
		}

		tag, err := tx.Exec(ctx, `
			UPDATE profiles
			SET total_earnings = total_earnings - $1, updated_at = now()
			WHERE user_id = $2 AND total_earnings >= $1
		`, price, input.UserID)
		if err != nil {
			if isCheckViolation(err) {
				return ErrInsufficientBalance
			}
			return errors.Wrap(err, "debit balance")
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientBalance
		}

		id := uuid.New()
		_, err = tx.Exec(ctx, `
			INSERT INTO reward_redemptions (id, user_id, reward_id, price_paid, status, request_token)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, input.UserID, input.RewardID, price, StatusPending, input.RequestToken)
		if err != nil {
			return errors.Wrap(err, "insert redemption")
		}

		if err := insertLedgerEntry(ctx, tx, LedgerEntry{
			UserID:       input.UserID,
			RedemptionID: &id,
			Amount:       price,
			Direction:    DirectionDebit,
			Reason:       ReasonRedemption,
		}); err != nil {
			return err
		}

		result, err = getRedemption(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return Redemption{}, false, err
	}
	return result, replayed, nil
}

func (s *Store) replay(ctx context.Context, input RedeemInput) (Redemption, bool, error) {
	existing, err := redemptionByToken(ctx, s.pool, input.UserID, input.RequestToken)
	if err != nil {
		return Redemption{}, false, errors.Wrap(err, "lookup request token")
	}
	if !sameRequest(existing, input) {
		return Redemption{}, false, ErrIdempotencyConflict
	}
	return existing, true, nil
}

// unavailableReason explains why the conditional stock update matched no row.
func unavailableReason(ctx context.Context, q queryer, rewardID uuid.UUID) error {
	reward, err := getReward(ctx, q, rewardID)
	if err != nil {
		return err
	}
	if !reward.IsActive {
		return ErrRewardUnavailable
	}
	return ErrOutOfStock
}

func sameRequest(r Redemption, input RedeemInput) bool {
	return r.RewardID != nil && *r.RewardID == input.RewardID
}

func (s *Store) GetRedemption(ctx context.Context, id uuid.UUID) (Redemption, error) {
	return getRedemption(ctx, s.pool, id, false)
}

func (s *Store) ListRedemptions(ctx context.Context, filter RedemptionFilter) ([]Redemption, error) {
	query := redemptionSelect + `
		WHERE ($1::uuid IS NULL OR r.user_id = $1)
		AND ($2 = '' OR r.status = $2)
		ORDER BY r.created_at DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, filter.UserID, filter.Status, filter.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "list redemptions")
	}
	defer rows.Close()

	redemptions := make([]Redemption, 0)
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan redemption")
		}
		redemptions = append(redemptions, r)
	}
	return redemptions, errors.Wrap(rows.Err(), "list redemptions")
}

// CompleteRedemption marks a pending redemption fulfilled, optionally storing
// the delivered goods (account credentials, codes). Completing an already
// completed redemption returns it unchanged with changed=false.
func (s *Store) CompleteRedemption(ctx context.Context, id uuid.UUID, rewardData *string) (Redemption, bool, error) {
	var (
		result  Redemption
		changed bool
	)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := getRedemption(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if current.Status == StatusCompleted {
			result = current
			return nil
		}
		if current.Status != StatusPending {
			return ErrInvalidStatus
		}

		_, err = tx.Exec(ctx, `
			UPDATE reward_redemptions
			SET status = $2, reward_data = $3, updated_at = now()
			WHERE id = $1
		`, id, StatusCompleted, rewardData)
		if err != nil {
			return errors.Wrap(err, "complete redemption")
		}

		result, err = getRedemption(ctx, tx, id, false)
		changed = true
		return err
	})
	if err != nil {
		return Redemption{}, false, err
	}
	return result, changed, nil
}

// RejectRedemption marks a pending redemption rejected. Balance and stock are
// left as they are unless refund is set, in which case price_paid is credited
// back and one unit of tracked stock is restored in the same transaction.
func (s *Store) RejectRedemption(ctx context.Context, id uuid.UUID, refund bool) (Redemption, bool, error) {
	var (
		result  Redemption
		changed bool
	)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := getRedemption(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if current.Status == StatusRejected {
			result = current
			return nil
		}
		if current.Status != StatusPending {
			return ErrInvalidStatus
		}

		_, err = tx.Exec(ctx, `
			UPDATE reward_redemptions
			SET status = $2, refunded = $3, updated_at = now()
			WHERE id = $1
		`, id, StatusRejected, refund)
		if err != nil {
			return errors.Wrap(err, "reject redemption")
		}

		if refund {
			if err := refundRedemption(ctx, tx, current); err != nil {
				return err
			}
		}

		result, err = getRedemption(ctx, tx, id, false)
		changed = true
		return err
	})
	if err != nil {
		return Redemption{}, false, err
	}
	return result, changed, nil
}

// refundRedemption credits the profile before restocking, matching the lock
// order of redeem.
func refundRedemption(ctx context.Context, tx pgx.Tx, r Redemption) error {
	_, err := tx.Exec(ctx, `
		UPDATE profiles
		SET total_earnings = total_earnings + $1, updated_at = now()
		WHERE user_id = $2
	`, r.PricePaid, r.UserID)
	if err != nil {
		return errors.Wrap(err, "refund balance")
	}

	if r.RewardID != nil {
		_, err = tx.Exec(ctx, `
			UPDATE rewards
			SET stock = stock + 1, updated_at = now()
			WHERE id = $1 AND stock IS NOT NULL
		`, *r.RewardID)
		if err != nil {
			return errors.Wrap(err, "restock reward")
		}
	}

	return insertLedgerEntry(ctx, tx, LedgerEntry{
		UserID:       r.UserID,
		RedemptionID: &r.ID,
		Amount:       r.PricePaid,
		Direction:    DirectionCredit,
		Reason:       ReasonRefund,
	})
}

func getRedemption(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (Redemption, error) {
	query := redemptionSelect + ` WHERE r.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF r`
	}

	r, err := scanRedemption(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Redemption{}, ErrNotFound
		}
		return Redemption{}, errors.Wrap(err, "get redemption")
	}
	return r, nil
}

func redemptionByToken(ctx context.Context, q queryer, userID uuid.UUID, token string) (Redemption, error) {
	return scanRedemption(q.QueryRow(ctx, redemptionSelect+`
		WHERE r.user_id = $1 AND r.request_token = $2
	`, userID, token))
}
