package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const rewardColumns = `id, title, description, image_url, reward_type, price, stock,
	is_active, created_at, updated_at`

func scanReward(row pgx.Row) (Reward, error) {
	var r Reward
	err := row.Scan(
		&r.ID,
		&r.Title,
		&r.Description,
		&r.ImageURL,
		&r.RewardType,
		&r.Price,
		&r.Stock,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func validateRewardInput(input RewardInput) error {
	if !input.Price.IsPositive() {
		return ErrInvalidAmount
	}
	if input.Stock != nil && *input.Stock < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (s *Store) CreateReward(ctx context.Context, input RewardInput) (Reward, error) {
	if err := validateRewardInput(input); err != nil {
		return Reward{}, err
	}
	if input.RewardType == "" {
		input.RewardType = DefaultRewardType
	}

	r, err := scanReward(s.pool.QueryRow(ctx, `
		INSERT INTO rewards (id, title, description, image_url, reward_type, price, stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+rewardColumns,
		uuid.New(),
		input.Title,
		input.Description,
		input.ImageURL,
		input.RewardType,
		input.Price,
		input.Stock,
		input.IsActive,
	))
	if err != nil {
		return Reward{}, errors.Wrap(err, "insert reward")
	}
	return r, nil
}

// UpdateReward replaces every editable field. Existing redemptions keep the
// price they paid.
func (s *Store) UpdateReward(ctx context.Context, id uuid.UUID, input RewardInput) (Reward, error) {
	if err := validateRewardInput(input); err != nil {
		return Reward{}, err
	}
	if input.RewardType == "" {
		input.RewardType = DefaultRewardType
	}

	r, err := scanReward(s.pool.QueryRow(ctx, `
		UPDATE rewards
		SET title = $2, description = $3, image_url = $4, reward_type = $5,
			price = $6, stock = $7, is_active = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+rewardColumns,
		id,
		input.Title,
		input.Description,
		input.ImageURL,
		input.RewardType,
		input.Price,
		input.Stock,
		input.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reward{}, ErrRewardNotFound
		}
		return Reward{}, errors.Wrap(err, "update reward")
	}
	return r, nil
}

func (s *Store) DeleteReward(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM rewards WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "delete reward")
	}
	if tag.RowsAffected() == 0 {
		return ErrRewardNotFound
	}
	return nil
}

func (s *Store) GetReward(ctx context.Context, id uuid.UUID) (Reward, error) {
	return getReward(ctx, s.pool, id)
}

// ListRewards returns the shop catalog (active only, cheapest first) or the
// full admin list (newest first).
func (s *Store) ListRewards(ctx context.Context, activeOnly bool) ([]Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT ` + rewardColumns + ` FROM rewards WHERE is_active ORDER BY price ASC, created_at ASC`
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list rewards")
	}
	defer rows.Close()

	rewards := make([]Reward, 0)
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan reward")
		}
		rewards = append(rewards, r)
	}
	return rewards, errors.Wrap(rows.Err(), "list rewards")
}

func getReward(ctx context.Context, q queryer, id uuid.UUID) (Reward, error) {
	r, err := scanReward(q.QueryRow(ctx, `
		SELECT `+rewardColumns+`
		FROM rewards
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reward{}, ErrRewardNotFound
		}
		return Reward{}, errors.Wrap(err, "get reward")
	}
	return r, nil
}
