package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rewards.ledger/internal/events"
	"rewards.ledger/internal/store"
)

const maxRequestTokenLength = 128

type createRedemptionRequest struct {
	RewardID      string           `json:"reward_id"`
	RequestToken  string           `json:"request_token"`
	ExpectedPrice *decimal.Decimal `json:"expected_price"`
}

type completeRedemptionRequest struct {
	RewardData *string `json:"reward_data"`
}

type rejectRedemptionRequest struct {
	Refund bool `json:"refund"`
}

func validateCreateRedemption(req createRedemptionRequest, userID uuid.UUID) (store.RedeemInput, bool) {
	rewardID, err := uuid.Parse(req.RewardID)
	if err != nil || rewardID == uuid.Nil {
		return store.RedeemInput{}, false
	}
	token := strings.TrimSpace(req.RequestToken)
	if token == "" || len(token) > maxRequestTokenLength {
		return store.RedeemInput{}, false
	}
	if req.ExpectedPrice != nil && !store.ValidAmount(*req.ExpectedPrice) {
		return store.RedeemInput{}, false
	}
	return store.RedeemInput{
		UserID:        userID,
		RewardID:      rewardID,
		RequestToken:  token,
		ExpectedPrice: req.ExpectedPrice,
	}, true
}

func validStatus(status string) bool {
	switch status {
	case store.StatusPending, store.StatusCompleted, store.StatusRejected:
		return true
	}
	return false
}

func (s *Server) handleCreateRedemption(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	var req createRedemptionRequest
	if err := decodeBody(r, &req, false); err != nil {
		redemptionsTotal.WithLabelValues("invalid_request").Inc()
		s.fail(w, r, "redemption_create_failed", err, nil)
		return
	}
	input, ok := validateCreateRedemption(req, p.UserID)
	if !ok {
		redemptionsTotal.WithLabelValues("invalid_request").Inc()
		s.fail(w, r, "redemption_create_failed", errInvalidBody, map[string]any{
			"reward_id": req.RewardID,
		})
		return
	}

	redemption, replayed, err := s.store.Redeem(r.Context(), input)
	if err != nil {
		code := s.fail(w, r, "redemption_create_failed", err, map[string]any{
			"reward_id":     input.RewardID.String(),
			"request_token": input.RequestToken,
		})
		redemptionsTotal.WithLabelValues(code).Inc()
		return
	}

	if replayed {
		redemptionsTotal.WithLabelValues("replayed").Inc()
		s.logEvent(r.Context(), "redemption_replayed", map[string]any{
			"redemption_id": redemption.ID.String(),
			"request_token": redemption.RequestToken,
		})
		writeJSON(w, http.StatusCreated, toRedemptionResponse(redemption))
		return
	}

	redemptionsTotal.WithLabelValues("created").Inc()
	s.afterCommit(r.Context(), events.RedemptionEvent(events.TypeRedemptionCreated, redemption))
	s.logEvent(r.Context(), "redemption_created", map[string]any{
		"redemption_id": redemption.ID.String(),
		"reward_id":     input.RewardID.String(),
		"price_paid":    money(redemption.PricePaid),
	})
	writeJSON(w, http.StatusCreated, toRedemptionResponse(redemption))
}

func (s *Server) handleListOwnRedemptions(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	s.listRedemptions(w, r, &p.UserID)
}

func (s *Server) handleListAllRedemptions(w http.ResponseWriter, r *http.Request) {
	s.listRedemptions(w, r, nil)
}

func (s *Server) listRedemptions(w http.ResponseWriter, r *http.Request, userID *uuid.UUID) {
	limit, ok := queryLimit(r, 100, 500)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	status := r.URL.Query().Get("status")
	if status != "" && !validStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	redemptions, err := s.store.ListRedemptions(r.Context(), store.RedemptionFilter{
		UserID: userID,
		Status: status,
		Limit:  limit,
	})
	if err != nil {
		s.fail(w, r, "redemption_list_failed", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(redemptions, toRedemptionResponse))
}

// handleGetRedemption hides other users' redemptions behind not_found.
func (s *Server) handleGetRedemption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	redemption, err := s.store.GetRedemption(r.Context(), id)
	if err == nil {
		p := principalFrom(r.Context())
		if !p.isAdmin() && redemption.UserID != p.UserID {
			err = store.ErrNotFound
		}
	}
	if err != nil {
		s.fail(w, r, "redemption_get_failed", err, map[string]any{"redemption_id": id.String()})
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionResponse(redemption))
}

func (s *Server) handleCompleteRedemption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	var req completeRedemptionRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.fail(w, r, "redemption_complete_failed", err, map[string]any{"redemption_id": id.String()})
		return
	}

	redemption, changed, err := s.store.CompleteRedemption(r.Context(), id, req.RewardData)
	if err != nil {
		s.fail(w, r, "redemption_complete_failed", err, map[string]any{"redemption_id": id.String()})
		return
	}

	if changed {
		s.afterCommit(r.Context(), events.RedemptionEvent(events.TypeRedemptionStatusChanged, redemption))
		s.logEvent(r.Context(), "redemption_completed", map[string]any{"redemption_id": id.String()})
	}
	writeJSON(w, http.StatusOK, toRedemptionResponse(redemption))
}

func (s *Server) handleRejectRedemption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	var req rejectRedemptionRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.fail(w, r, "redemption_reject_failed", err, map[string]any{"redemption_id": id.String()})
		return
	}

	redemption, changed, err := s.store.RejectRedemption(r.Context(), id, req.Refund)
	if err != nil {
		s.fail(w, r, "redemption_reject_failed", err, map[string]any{"redemption_id": id.String()})
		return
	}

	if changed {
		s.afterCommit(r.Context(), events.RedemptionEvent(events.TypeRedemptionStatusChanged, redemption))
		s.logEvent(r.Context(), "redemption_rejected", map[string]any{
			"redemption_id": id.String(),
			"refunded":      redemption.Refunded,
		})
	}
	writeJSON(w, http.StatusOK, toRedemptionResponse(redemption))
}
