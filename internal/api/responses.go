package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rewards.ledger/internal/store"
)

type profileResponse struct {
	UserID        string    `json:"user_id"`
	DisplayName   string    `json:"display_name"`
	ReferralCode  string    `json:"referral_code"`
	ReferredBy    *string   `json:"referred_by"`
	TotalEarnings string    `json:"total_earnings"`
	ReferralCount int       `json:"referral_count"`
	IsBanned      bool      `json:"is_banned"`
	CreatedAt     time.Time `json:"created_at"`
}

type rewardResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	RewardType  string    `json:"reward_type"`
	Price       string    `json:"price"`
	Stock       *int      `json:"stock"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type redemptionResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	RewardID     *string   `json:"reward_id"`
	RewardTitle  *string   `json:"reward_title"`
	PricePaid    string    `json:"price_paid"`
	Status       string    `json:"status"`
	RewardData   *string   `json:"reward_data"`
	RequestToken string    `json:"request_token"`
	Refunded     bool      `json:"refunded"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ledgerEntryResponse struct {
	ID            int64     `json:"id"`
	RedemptionID  *string   `json:"redemption_id"`
	CreditEventID *string   `json:"credit_event_id"`
	Amount        string    `json:"amount"`
	Direction     string    `json:"direction"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

type leaderboardEntryResponse struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name"`
	ReferralCount int    `json:"referral_count"`
	TotalEarnings string `json:"total_earnings"`
}

type creditResponse struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Amount    string    `json:"amount"`
	Applied   bool      `json:"applied"`
	CreatedAt time.Time `json:"created_at"`
}

type statsResponse struct {
	Profiles             int64  `json:"profiles"`
	BannedProfiles       int64  `json:"banned_profiles"`
	ActiveRewards        int64  `json:"active_rewards"`
	PendingRedemptions   int64  `json:"pending_redemptions"`
	CompletedRedemptions int64  `json:"completed_redemptions"`
	RejectedRedemptions  int64  `json:"rejected_redemptions"`
	RedeemedTotal        string `json:"redeemed_total"`
	OutstandingEarnings  string `json:"outstanding_earnings"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toProfileResponse(p store.Profile) profileResponse {
	return profileResponse{
		UserID:        p.UserID.String(),
		DisplayName:   p.DisplayName,
		ReferralCode:  p.ReferralCode,
		ReferredBy:    optionalID(p.ReferredBy),
		TotalEarnings: money(p.TotalEarnings),
		ReferralCount: p.ReferralCount,
		IsBanned:      p.IsBanned,
		CreatedAt:     p.CreatedAt,
	}
}

func toRewardResponse(r store.Reward) rewardResponse {
	return rewardResponse{
		ID:          r.ID.String(),
		Title:       r.Title,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		RewardType:  r.RewardType,
		Price:       money(r.Price),
		Stock:       r.Stock,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
	}
}

func toRedemptionResponse(r store.Redemption) redemptionResponse {
	return redemptionResponse{
		ID:           r.ID.String(),
		UserID:       r.UserID.String(),
		RewardID:     optionalID(r.RewardID),
		RewardTitle:  r.RewardTitle,
		PricePaid:    money(r.PricePaid),
		Status:       r.Status,
		RewardData:   r.RewardData,
		RequestToken: r.RequestToken,
		Refunded:     r.Refunded,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toLedgerEntryResponse(e store.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:            e.ID,
		RedemptionID:  optionalID(e.RedemptionID),
		CreditEventID: e.CreditEventID,
		Amount:        money(e.Amount),
		Direction:     e.Direction,
		Reason:        e.Reason,
		CreatedAt:     e.CreatedAt,
	}
}

func toCreditResponse(c store.Credit, applied bool) creditResponse {
	return creditResponse{
		EventID:   c.EventID,
		UserID:    c.UserID.String(),
		Amount:    money(c.Amount),
		Applied:   applied,
		CreatedAt: c.CreatedAt,
	}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
