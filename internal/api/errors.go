package api

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"rewards.ledger/internal/events"
	"rewards.ledger/internal/store"
)

const sideEffectTimeout = 5 * time.Second

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errInvalidBody), errors.Is(err, store.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, store.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, store.ErrOutOfStock):
		return http.StatusConflict, "out_of_stock"
	case errors.Is(err, store.ErrRewardUnavailable):
		return http.StatusConflict, "reward_unavailable"
	case errors.Is(err, store.ErrPriceChanged):
		return http.StatusConflict, "price_changed"
	case errors.Is(err, store.ErrInvalidStatus):
		return http.StatusConflict, "invalid_status"
	case errors.Is(err, store.ErrProfileExists):
		return http.StatusConflict, "profile_exists"
	case errors.Is(err, store.ErrIdempotencyConflict):
		return http.StatusUnprocessableEntity, "idempotency_conflict"
	case errors.Is(err, store.ErrProfileBanned):
		return http.StatusForbidden, "profile_banned"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrProfileNotFound):
		return http.StatusNotFound, "profile_not_found"
	case errors.Is(err, store.ErrRewardNotFound):
		return http.StatusNotFound, "reward_not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes the mapped error response and logs the failure event. The
// returned code is the reason reported to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, event string, err error, fields map[string]any) string {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.loggerFrom(r.Context()).Error().Err(err).Str("event", event).Msg("unexpected error")
	}

	if fields == nil {
		fields = map[string]any{}
	}
	fields["reason"] = code
	s.logEvent(r.Context(), event, fields)
	writeError(w, status, code)
	return code
}

// afterCommit publishes e and drops cached leaderboards. Failures are logged
// and counted; the committed ledger stays authoritative.
func (s *Server) afterCommit(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.events.Publish(ctx, e); err != nil {
		sideEffectFailures.WithLabelValues("publish").Inc()
		s.loggerFrom(ctx).Warn().Err(err).Str("event_type", e.Type).Msg("event publish failed")
	}
	s.invalidateLeaderboard(ctx)
}

func (s *Server) invalidateLeaderboard(ctx context.Context) {
	if s.leaderboard == nil {
		return
	}
	if err := s.leaderboard.Invalidate(ctx); err != nil {
		sideEffectFailures.WithLabelValues("cache").Inc()
		s.loggerFrom(ctx).Warn().Err(err).Msg("leaderboard invalidation failed")
	}
}
