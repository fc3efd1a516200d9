package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rewards.ledger/internal/events"
	"rewards.ledger/internal/store"
)

const maxEventIDLength = 128

type createCreditRequest struct {
	EventID string          `json:"event_id"`
	UserID  string          `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func validateCreateCredit(req createCreditRequest) (store.CreditInput, bool) {
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" || len(eventID) > maxEventIDLength {
		return store.CreditInput{}, false
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil || userID == uuid.Nil {
		return store.CreditInput{}, false
	}
	if !store.ValidAmount(req.Amount) {
		return store.CreditInput{}, false
	}
	return store.CreditInput{EventID: eventID, UserID: userID, Amount: req.Amount}, true
}

func (s *Server) handleCreateCredit(w http.ResponseWriter, r *http.Request) {
	var req createCreditRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.fail(w, r, "credit_create_failed", err, nil)
		return
	}
	input, ok := validateCreateCredit(req)
	if !ok {
		s.fail(w, r, "credit_create_failed", errInvalidBody, map[string]any{"event_id": req.EventID})
		return
	}

	credit, applied, err := s.store.CreditReferral(r.Context(), input)
	if err != nil {
		s.fail(w, r, "credit_create_failed", err, map[string]any{"event_id": input.EventID})
		return
	}

	if !applied {
		s.logEvent(r.Context(), "credit_duplicate", map[string]any{"event_id": credit.EventID})
		writeJSON(w, http.StatusOK, toCreditResponse(credit, false))
		return
	}

	s.CreditApplied(r.Context(), credit)
	writeJSON(w, http.StatusCreated, toCreditResponse(credit, true))
}

// CreditApplied runs the post-commit side effects of a newly applied referral
// credit. The queue consumer calls it for credits it applies.
func (s *Server) CreditApplied(ctx context.Context, c store.Credit) {
	s.afterCommit(ctx, events.CreditEvent(c))
	s.logEvent(ctx, "credit_applied", map[string]any{
		"event_id": c.EventID,
		"user_id":  c.UserID.String(),
		"amount":   money(c.Amount),
	})
}
