package store

import "github.com/pkg/errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrNotFound            = errors.New("not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrProfileExists       = errors.New("profile exists")
	ErrProfileBanned       = errors.New("profile banned")
	ErrRewardNotFound      = errors.New("reward not found")
	ErrRewardUnavailable   = errors.New("reward unavailable")
	ErrOutOfStock          = errors.New("out of stock")
	ErrPriceChanged        = errors.New("price changed")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidAmount       = errors.New("invalid amount")
)
