package api

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rewards.ledger/internal/store"
)

const (
	maxDisplayNameLength  = 100
	maxReferralCodeLength = 32
)

type createProfileRequest struct {
	UserID       string          `json:"user_id"`
	DisplayName  string          `json:"display_name"`
	Balance      decimal.Decimal `json:"balance"`
	ReferredBy   *string         `json:"referred_by"`
	ReferralCode string          `json:"referral_code"`
}

func validateCreateProfile(req createProfileRequest) (store.CreateProfileInput, bool) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil || userID == uuid.Nil {
		return store.CreateProfileInput{}, false
	}
	name := strings.TrimSpace(req.DisplayName)
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return store.CreateProfileInput{}, false
	}
	if req.Balance.IsNegative() || req.Balance.Exponent() < -2 {
		return store.CreateProfileInput{}, false
	}

	input := store.CreateProfileInput{
		UserID:      userID,
		DisplayName: name,
		Balance:     req.Balance,
	}
	if req.ReferredBy != nil {
		ref, err := uuid.Parse(*req.ReferredBy)
		if err != nil || ref == uuid.Nil || ref == userID {
			return store.CreateProfileInput{}, false
		}
		input.ReferredBy = &ref
	}
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		if input.ReferredBy != nil || len(code) > maxReferralCodeLength {
			return store.CreateProfileInput{}, false
		}
		input.ReferralCode = code
	}
	return input, true
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.fail(w, r, "profile_create_failed", err, nil)
		return
	}
	input, ok := validateCreateProfile(req)
	if !ok {
		s.fail(w, r, "profile_create_failed", errInvalidBody, map[string]any{"user_id": req.UserID})
		return
	}

	profile, err := s.store.CreateProfile(r.Context(), input)
	if err != nil {
		s.fail(w, r, "profile_create_failed", err, map[string]any{"user_id": req.UserID})
		return
	}

	s.invalidateLeaderboard(r.Context())
	s.logEvent(r.Context(), "profile_created", map[string]any{
		"user_id": profile.UserID.String(),
		"balance": money(profile.TotalEarnings),
	})
	writeJSON(w, http.StatusCreated, toProfileResponse(profile))
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	profile, err := s.store.GetProfile(r.Context(), p.UserID)
	if err != nil {
		s.fail(w, r, "profile_get_failed", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 100, 1000)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	profiles, err := s.store.ListProfiles(r.Context(), limit)
	if err != nil {
		s.fail(w, r, "profile_list_failed", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(profiles, toProfileResponse))
}

func (s *Server) handleBan(banned bool) http.HandlerFunc {
	event := "profile_banned"
	if !banned {
		event = "profile_unbanned"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUUID(r, "user_id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_id")
			return
		}

		profile, err := s.store.SetBanned(r.Context(), userID, banned)
		if err != nil {
			s.fail(w, r, event+"_failed", err, map[string]any{"user_id": userID.String()})
			return
		}

		s.invalidateLeaderboard(r.Context())
		s.logEvent(r.Context(), event, map[string]any{"user_id": userID.String()})
		writeJSON(w, http.StatusOK, toProfileResponse(profile))
	}
}

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 100, 1000)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	p := principalFrom(r.Context())
	entries, err := s.store.LedgerEntries(r.Context(), p.UserID, limit)
	if err != nil {
		s.fail(w, r, "ledger_list_failed", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(entries, toLedgerEntryResponse))
}
