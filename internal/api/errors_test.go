package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"rewards.ledger/internal/store"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errInvalidBody, http.StatusBadRequest, "invalid_request"},
		{store.ErrInvalidAmount, http.StatusBadRequest, "invalid_request"},
		{store.ErrProfileBanned, http.StatusForbidden, "profile_banned"},
		{store.ErrNotFound, http.StatusNotFound, "not_found"},
		{store.ErrProfileNotFound, http.StatusNotFound, "profile_not_found"},
		{store.ErrRewardNotFound, http.StatusNotFound, "reward_not_found"},
		{store.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
		{store.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
		{store.ErrRewardUnavailable, http.StatusConflict, "reward_unavailable"},
		{store.ErrPriceChanged, http.StatusConflict, "price_changed"},
		{store.ErrInvalidStatus, http.StatusConflict, "invalid_status"},
		{store.ErrProfileExists, http.StatusConflict, "profile_exists"},
		{store.ErrIdempotencyConflict, http.StatusUnprocessableEntity, "idempotency_conflict"},
		{errors.Wrap(store.ErrOutOfStock, "redeem"), http.StatusConflict, "out_of_stock"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("errorStatus(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestDecodeBody(t *testing.T) {
	type payload struct {
		Refund bool `json:"refund"`
	}

	cases := []struct {
		body       string
		allowEmpty bool
		wantErr    bool
	}{
		{`{"refund":true}`, false, false},
		{``, true, false},
		{``, false, true},
		{`{"refund":true}{}`, false, true},
		{`{"refund":true,"x":1}`, false, true},
		{`[1]`, false, true},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		var p payload
		err := decodeBody(req, &p, tc.allowEmpty)
		if (err != nil) != tc.wantErr {
			t.Fatalf("decodeBody(%q, %v) error = %v, wantErr %v", tc.body, tc.allowEmpty, err, tc.wantErr)
		}
	}
}

func TestQueryLimit(t *testing.T) {
	cases := []struct {
		query string
		want  int
		ok    bool
	}{
		{"", 10, true},
		{"?limit=5", 5, true},
		{"?limit=1000", 100, true},
		{"?limit=0", 0, false},
		{"?limit=-3", 0, false},
		{"?limit=ten", 0, false},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/leaderboard"+tc.query, nil)
		got, ok := queryLimit(req, 10, 100)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("queryLimit(%q) = %d %v, want %d %v", tc.query, got, ok, tc.want, tc.ok)
		}
	}
}
