package api

import (
	"context"
	"net/http"
	"time"

	"rewards.ledger/internal/store"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.loggerFrom(ctx).Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 10, 100)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	entries, err := s.leaderboardEntries(r.Context(), limit)
	if err != nil {
		s.fail(w, r, "leaderboard_failed", err, nil)
		return
	}

	resp := make([]leaderboardEntryResponse, 0, len(entries))
	for i, e := range entries {
		resp = append(resp, leaderboardEntryResponse{
			Rank:          i + 1,
			UserID:        e.UserID.String(),
			DisplayName:   e.DisplayName,
			ReferralCount: e.ReferralCount,
			TotalEarnings: money(e.TotalEarnings),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// leaderboardEntries reads through the cache when one is configured. Cache
// errors fall back to the database.
func (s *Server) leaderboardEntries(ctx context.Context, limit int) ([]store.LeaderboardEntry, error) {
	if s.leaderboard != nil {
		entries, hit, err := s.leaderboard.Get(ctx, limit)
		if err != nil {
			sideEffectFailures.WithLabelValues("cache").Inc()
			s.loggerFrom(ctx).Warn().Err(err).Msg("leaderboard cache read failed")
		}
		if hit {
			return entries, nil
		}
	}

	entries, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.leaderboard != nil {
		if err := s.leaderboard.Set(ctx, limit, entries); err != nil {
			sideEffectFailures.WithLabelValues("cache").Inc()
			s.loggerFrom(ctx).Warn().Err(err).Msg("leaderboard cache write failed")
		}
	}
	return entries, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.fail(w, r, "stats_failed", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Profiles:             st.Profiles,
		BannedProfiles:       st.BannedProfiles,
		ActiveRewards:        st.ActiveRewards,
		PendingRedemptions:   st.PendingRedemptions,
		CompletedRedemptions: st.CompletedRedemptions,
		RejectedRedemptions:  st.RejectedRedemptions,
		RedeemedTotal:        money(st.RedeemedTotal),
		OutstandingEarnings:  money(st.OutstandingEarnings),
	})
}
