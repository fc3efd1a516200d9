package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rewards.ledger/internal/events"
	"rewards.ledger/internal/store"
)

// LeaderboardCache is a read-through cache in front of store.Leaderboard.
type LeaderboardCache interface {
	Get(ctx context.Context, limit int) ([]store.LeaderboardEntry, bool, error)
	Set(ctx context.Context, limit int, entries []store.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

type Server struct {
	store       *store.Store
	auth        *authenticator
	logger      zerolog.Logger
	events      events.Publisher
	leaderboard LeaderboardCache
}

type Option func(*Server)

func WithEvents(p events.Publisher) Option {
	return func(s *Server) {
		if p != nil {
			s.events = p
		}
	}
}

func WithLeaderboardCache(c LeaderboardCache) Option {
	return func(s *Server) {
		s.leaderboard = c
	}
}

func NewServer(st *store.Store, authSecret string, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		store:  st,
		auth:   newAuthenticator(authSecret),
		logger: logger,
		events: events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	user := func(h http.HandlerFunc) http.Handler {
		return s.authMiddleware(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return s.authMiddleware(requireAdmin(h))
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /v1/profile", user(s.handleGetProfile))
	mux.Handle("GET /v1/ledger", user(s.handleListLedger))
	mux.Handle("GET /v1/rewards", user(s.handleListActiveRewards))
	mux.Handle("GET /v1/leaderboard", user(s.handleLeaderboard))
	mux.Handle("POST /v1/redemptions", user(s.handleCreateRedemption))
	mux.Handle("GET /v1/redemptions", user(s.handleListOwnRedemptions))
	mux.Handle("GET /v1/redemptions/{id}", user(s.handleGetRedemption))

	mux.Handle("POST /v1/admin/profiles", admin(s.handleCreateProfile))
	mux.Handle("GET /v1/admin/profiles", admin(s.handleListProfiles))
	mux.Handle("POST /v1/admin/profiles/{user_id}/ban", admin(s.handleBan(true)))
	mux.Handle("POST /v1/admin/profiles/{user_id}/unban", admin(s.handleBan(false)))
	mux.Handle("POST /v1/admin/credits", admin(s.handleCreateCredit))
	mux.Handle("GET /v1/admin/rewards", admin(s.handleListAllRewards))
	mux.Handle("POST /v1/admin/rewards", admin(s.handleCreateReward))
	mux.Handle("PUT /v1/admin/rewards/{id}", admin(s.handleUpdateReward))
	mux.Handle("DELETE /v1/admin/rewards/{id}", admin(s.handleDeleteReward))
	mux.Handle("GET /v1/admin/redemptions", admin(s.handleListAllRedemptions))
	mux.Handle("POST /v1/admin/redemptions/{id}/complete", admin(s.handleCompleteRedemption))
	mux.Handle("POST /v1/admin/redemptions/{id}/reject", admin(s.handleRejectRedemption))
	mux.Handle("GET /v1/admin/stats", admin(s.handleStats))

	return s.requestMiddleware(mux)
}
