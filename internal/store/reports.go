package store

import (
	"context"

	"github.com/pkg/errors"
)

// Leaderboard ranks non-banned profiles by accumulated earnings.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, display_name, referral_count, total_earnings
		FROM profiles
		WHERE NOT is_banned
		ORDER BY total_earnings DESC, referral_count DESC, created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "leaderboard")
	}
	defer rows.Close()

	entries := make([]LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.ReferralCount, &e.TotalEarnings); err != nil {
			return nil, errors.Wrap(err, "scan leaderboard entry")
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "leaderboard")
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM profiles WHERE is_banned),
			(SELECT COUNT(*) FROM rewards WHERE is_active),
			(SELECT COUNT(*) FROM reward_redemptions WHERE status = $1),
			(SELECT COUNT(*) FROM reward_redemptions WHERE status = $2),
			(SELECT COUNT(*) FROM reward_redemptions WHERE status = $3),
			(SELECT COALESCE(SUM(price_paid), 0) FROM reward_redemptions WHERE NOT refunded),
			(SELECT COALESCE(SUM(total_earnings), 0) FROM profiles)
	`, StatusPending, StatusCompleted, StatusRejected).Scan(
		&st.Profiles,
		&st.BannedProfiles,
		&st.ActiveRewards,
		&st.PendingRedemptions,
		&st.CompletedRedemptions,
		&st.RejectedRedemptions,
		&st.RedeemedTotal,
		&st.OutstandingEarnings,
	)
	if err != nil {
		return Stats{}, errors.Wrap(err, "stats")
	}
	return st, nil
}
