package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"rewards.ledger/internal/store"
)

const maxTitleLength = 200

type rewardRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	RewardType  string          `json:"reward_type"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock"`
	IsActive    *bool           `json:"is_active"`
}

func validateReward(req rewardRequest) (store.RewardInput, bool) {
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > maxTitleLength {
		return store.RewardInput{}, false
	}
	if !store.ValidAmount(req.Price) {
		return store.RewardInput{}, false
	}
	if req.Stock != nil && *req.Stock < 0 {
		return store.RewardInput{}, false
	}

	rewardType := strings.TrimSpace(req.RewardType)
	if rewardType == "" {
		rewardType = store.DefaultRewardType
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	return store.RewardInput{
		Title:       title,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		RewardType:  rewardType,
		Price:       req.Price,
		Stock:       req.Stock,
		IsActive:    active,
	}, true
}

func (s *Server) handleListActiveRewards(w http.ResponseWriter, r *http.Request) {
	s.listRewards(w, r, true)
}

func (s *Server) handleListAllRewards(w http.ResponseWriter, r *http.Request) {
	s.listRewards(w, r, false)
}

func (s *Server) listRewards(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	rewards, err := s.store.ListRewards(r.Context(), activeOnly)
	if err != nil {
		s.fail(w, r, "reward_list_failed", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(rewards, toRewardResponse))
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.fail(w, r, "reward_create_failed", err, nil)
		return
	}
	input, ok := validateReward(req)
	if !ok {
		s.fail(w, r, "reward_create_failed", errInvalidBody, nil)
		return
	}

	reward, err := s.store.CreateReward(r.Context(), input)
	if err != nil {
		s.fail(w, r, "reward_create_failed", err, nil)
		return
	}

	s.logEvent(r.Context(), "reward_created", map[string]any{
		"reward_id": reward.ID.String(),
		"price":     money(reward.Price),
	})
	writeJSON(w, http.StatusCreated, toRewardResponse(reward))
}

func (s *Server) handleUpdateReward(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	var req rewardRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.fail(w, r, "reward_update_failed", err, map[string]any{"reward_id": id.String()})
		return
	}
	input, ok := validateReward(req)
	if !ok {
		s.fail(w, r, "reward_update_failed", errInvalidBody, map[string]any{"reward_id": id.String()})
		return
	}

	reward, err := s.store.UpdateReward(r.Context(), id, input)
	if err != nil {
		s.fail(w, r, "reward_update_failed", err, map[string]any{"reward_id": id.String()})
		return
	}

	s.logEvent(r.Context(), "reward_updated", map[string]any{"reward_id": id.String()})
	writeJSON(w, http.StatusOK, toRewardResponse(reward))
}

// handleDeleteReward removes a catalog item. Past redemptions keep their
// price_paid and lose only the reward link.
func (s *Server) handleDeleteReward(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	if err := s.store.DeleteReward(r.Context(), id); err != nil {
		s.fail(w, r, "reward_delete_failed", err, map[string]any{"reward_id": id.String()})
		return
	}

	s.logEvent(r.Context(), "reward_deleted", map[string]any{"reward_id": id.String()})
	w.WriteHeader(http.StatusNoContent)
}
