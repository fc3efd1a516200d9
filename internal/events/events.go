package events

import (
	"context"
	"time"

	"rewards.ledger/internal/store"
)

const (
	TypeRedemptionCreated       = "redemption.created"
	TypeRedemptionStatusChanged = "redemption.status_changed"
	TypeReferralCredited        = "referral.credited"
)

// Event is the JSON payload written to the events topic.
type Event struct {
	Type         string    `json:"type"`
	UserID       string    `json:"user_id"`
	RedemptionID string    `json:"redemption_id,omitempty"`
	RewardID     string    `json:"reward_id,omitempty"`
	CreditID     string    `json:"credit_event_id,omitempty"`
	Amount       string    `json:"amount"`
	Status       string    `json:"status,omitempty"`
	Refunded     bool      `json:"refunded,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

func RedemptionEvent(eventType string, r store.Redemption) Event {
	e := Event{
		Type:         eventType,
		UserID:       r.UserID.String(),
		RedemptionID: r.ID.String(),
		Amount:       r.PricePaid.StringFixed(2),
		Status:       r.Status,
		Refunded:     r.Refunded,
		OccurredAt:   time.Now().UTC(),
	}
	if r.RewardID != nil {
		e.RewardID = r.RewardID.String()
	}
	return e
}

func CreditEvent(c store.Credit) Event {
	return Event{
		Type:       TypeReferralCredited,
		UserID:     c.UserID.String(),
		CreditID:   c.EventID,
		Amount:     c.Amount.StringFixed(2),
		OccurredAt: time.Now().UTC(),
	}
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
