package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const profileColumns = `user_id, display_name, referral_code, referred_by, total_earnings,
	referral_count, is_banned, created_at, updated_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.UserID,
		&p.DisplayName,
		&p.ReferralCode,
		&p.ReferredBy,
		&p.TotalEarnings,
		&p.ReferralCount,
		&p.IsBanned,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

// newReferralCode derives a short shareable code from a random UUID.
func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
}

func (s *Store) CreateProfile(ctx context.Context, input CreateProfileInput) (Profile, error) {
	if input.Balance.IsNegative() {
		return Profile{}, ErrInvalidAmount
	}
	if input.ReferralCode != "" {
		referrer, err := s.referrerByCode(ctx, input.ReferralCode)
		if err != nil {
			return Profile{}, err
		}
		input.ReferredBy = &referrer
	}

	p, err := scanProfile(s.pool.QueryRow(ctx, `
		INSERT INTO profiles (user_id, display_name, referral_code, referred_by, total_earnings)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+profileColumns,
		input.UserID,
		input.DisplayName,
		newReferralCode(),
		input.ReferredBy,
		input.Balance,
	))
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return Profile{}, ErrProfileExists
		case isForeignKeyViolation(err):
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, errors.Wrap(err, "insert profile")
	}
	return p, nil
}

func (s *Store) referrerByCode(ctx context.Context, code string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT user_id FROM profiles WHERE referral_code = $1
	`, strings.ToUpper(strings.TrimSpace(code))).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrProfileNotFound
		}
		return uuid.Nil, errors.Wrap(err, "resolve referral code")
	}
	return userID, nil
}

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE user_id = $1
	`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, errors.Wrap(err, "get profile")
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context, limit int) ([]Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list profiles")
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan profile")
		}
		profiles = append(profiles, p)
	}
	return profiles, errors.Wrap(rows.Err(), "list profiles")
}

// SetBanned flips the ban flag. Banned profiles cannot redeem and are hidden
// from the leaderboard.
func (s *Store) SetBanned(ctx context.Context, userID uuid.UUID, banned bool) (Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `
		UPDATE profiles
		SET is_banned = $2, updated_at = now()
		WHERE user_id = $1
		RETURNING `+profileColumns,
		userID, banned,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, errors.Wrap(err, "set banned")
	}
	return p, nil
}
