package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

const (
	ReasonRedemption = "redemption"
	ReasonReferral   = "referral"
	ReasonRefund     = "refund"
)

const DefaultRewardType = "steam_account"

// maxAmount is the first value that no longer fits NUMERIC(12,2).
var maxAmount = decimal.New(1, 10)

// ValidAmount reports whether d is positive and stored by NUMERIC(12,2)
// without rounding.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Exponent() >= -2 && d.LessThan(maxAmount)
}

type Profile struct {
	UserID        uuid.UUID
	DisplayName   string
	ReferralCode  string
	ReferredBy    *uuid.UUID
	TotalEarnings decimal.Decimal
	ReferralCount int
	IsBanned      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CreateProfileInput struct {
	UserID      uuid.UUID
	DisplayName string
	Balance     decimal.Decimal
	ReferredBy  *uuid.UUID
	// ReferralCode, when set, is resolved to the referrer's user id.
	ReferralCode string
}

// Reward is a catalog item. A nil Stock means the reward is not stock-tracked.
type Reward struct {
	ID          uuid.UUID
	Title       string
	Description string
	ImageURL    string
	RewardType  string
	Price       decimal.Decimal
	Stock       *int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RewardInput struct {
	Title       string
	Description string
	ImageURL    string
	RewardType  string
	Price       decimal.Decimal
	Stock       *int
	IsActive    bool
}

type Redemption struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	RewardID     *uuid.UUID
	RewardTitle  *string
	PricePaid    decimal.Decimal
	Status       string
	RewardData   *string
	RequestToken string
	Refunded     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RedeemInput struct {
	UserID       uuid.UUID
	RewardID     uuid.UUID
	RequestToken string
	// ExpectedPrice, when set, must match the price read inside the transaction.
	ExpectedPrice *decimal.Decimal
}

type RedemptionFilter struct {
	UserID *uuid.UUID
	Status string
	Limit  int
}

type Credit struct {
	EventID   string
	UserID    uuid.UUID
	Amount    decimal.Decimal
	CreatedAt time.Time
}

type CreditInput struct {
	EventID string
	UserID  uuid.UUID
	Amount  decimal.Decimal
}

type LedgerEntry struct {
	ID            int64
	UserID        uuid.UUID
	RedemptionID  *uuid.UUID
	CreditEventID *string
	Amount        decimal.Decimal
	Direction     string
	Reason        string
	CreatedAt     time.Time
}

type LeaderboardEntry struct {
	UserID        uuid.UUID       `json:"user_id"`
	DisplayName   string          `json:"display_name"`
	ReferralCount int             `json:"referral_count"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
}

type Stats struct {
	Profiles             int64
	BannedProfiles       int64
	ActiveRewards        int64
	PendingRedemptions   int64
	CompletedRedemptions int64
	RejectedRedemptions  int64
	RedeemedTotal        decimal.Decimal
	OutstandingEarnings  decimal.Decimal
}
