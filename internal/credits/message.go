package credits

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"rewards.ledger/internal/store"
)

var errInvalidMessage = errors.New("invalid credit message")

// message is the body published by the referral tracker when a referred user
// completes the qualifying action.
type message struct {
	EventID string          `json:"event_id"`
	UserID  string          `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func decodeMessage(body []byte) (store.CreditInput, error) {
	var m message
	if err := json.Unmarshal(body, &m); err != nil {
		return store.CreditInput{}, errors.Wrap(errInvalidMessage, err.Error())
	}

	eventID := strings.TrimSpace(m.EventID)
	if eventID == "" {
		return store.CreditInput{}, errors.Wrap(errInvalidMessage, "missing event_id")
	}
	userID, err := uuid.Parse(strings.TrimSpace(m.UserID))
	if err != nil || userID == uuid.Nil {
		return store.CreditInput{}, errors.Wrap(errInvalidMessage, "invalid user_id")
	}
	if !store.ValidAmount(m.Amount) {
		return store.CreditInput{}, errors.Wrap(errInvalidMessage, "amount must be positive with at most two decimals")
	}

	return store.CreditInput{
		EventID: eventID,
		UserID:  userID,
		Amount:  m.Amount,
	}, nil
}
