package api_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

func TestCreateProfileSuccess(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	body := fmt.Sprintf(`{"user_id":%q,"display_name":" Alice ","balance":"12.5"}`, userA)
	var got profileBody
	if status := env.asAdmin(t, http.MethodPost, "/v1/admin/profiles", body, &got); status != http.StatusCreated {
		t.Fatalf("expected %d, got %d", http.StatusCreated, status)
	}

	if got.UserID != userA.String() || got.DisplayName != "Alice" || got.TotalEarnings != "12.50" {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if len(got.ReferralCode) != 10 {
		t.Fatalf("expected 10 character referral code, got %q", got.ReferralCode)
	}
	if balance := getBalance(t, env.pool, userA); balance != "12.50" {
		t.Fatalf("expected balance 12.50, got %s", balance)
	}
}

func TestCreateProfileConflict(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	seedProfile(t, env.pool, userA, "1.00")

	body := fmt.Sprintf(`{"user_id":%q,"balance":"50.00"}`, userA)
	var got errorBody
	status := env.asAdmin(t, http.MethodPost, "/v1/admin/profiles", body, &got)
	if status != http.StatusConflict || got.Error != "profile_exists" {
		t.Fatalf("expected 409 profile_exists, got %d %s", status, got.Error)
	}
	if balance := getBalance(t, env.pool, userA); balance != "1.00" {
		t.Fatalf("expected balance 1.00, got %s", balance)
	}
}

func TestCreateProfileInvalid(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	bodies := []string{
		`{"user_id":"nope"}`,
		fmt.Sprintf(`{"user_id":%q,"balance":"-1"}`, userA),
		fmt.Sprintf(`{"user_id":%q,"balance":"1.005"}`, userA),
		fmt.Sprintf(`{"user_id":%q,"referred_by":%q}`, userA, userA),
	}
	for _, body := range bodies {
		var got errorBody
		status := env.asAdmin(t, http.MethodPost, "/v1/admin/profiles", body, &got)
		if status != http.StatusBadRequest || got.Error != "invalid_request" {
			t.Fatalf("body %q: expected 400 invalid_request, got %d %s", body, status, got.Error)
		}
	}

	body := fmt.Sprintf(`{"user_id":%q,"referred_by":%q}`, userA, userB)
	var got errorBody
	status := env.asAdmin(t, http.MethodPost, "/v1/admin/profiles", body, &got)
	if status != http.StatusNotFound || got.Error != "profile_not_found" {
		t.Fatalf("unknown referrer: expected 404 profile_not_found, got %d %s", status, got.Error)
	}
}

func TestBannedProfileCannotRedeem(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	seedProfile(t, env.pool, userA, "10.00")
	rewardID := seedReward(t, env.pool, "5.00", 3)

	var banned profileBody
	if status := env.asAdmin(t, http.MethodPost, "/v1/admin/profiles/"+userA.String()+"/ban", "", &banned); status != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, status)
	}
	if !banned.IsBanned {
		t.Fatalf("expected banned profile")
	}

	var got errorBody
	status := env.asUser(t, userA, http.MethodPost, "/v1/redemptions", redeemBody(rewardID, "t1"), &got)
	if status != http.StatusForbidden || got.Error != "profile_banned" {
		t.Fatalf("expected 403 profile_banned, got %d %s", status, got.Error)
	}
	if stock := getStock(t, env.pool, rewardID); stock == nil || *stock != 3 {
		t.Fatalf("expected stock 3, got %v", stock)
	}

	env.asAdmin(t, http.MethodPost, "/v1/admin/profiles/"+userA.String()+"/unban", "", nil)
	if status := env.asUser(t, userA, http.MethodPost, "/v1/redemptions", redeemBody(rewardID, "t1"), nil); status != http.StatusCreated {
		t.Fatalf("after unban: expected %d, got %d", http.StatusCreated, status)
	}

	status = env.asAdmin(t, http.MethodPost, "/v1/admin/profiles/"+uuid.NewString()+"/ban", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown profile: expected %d, got %d", http.StatusNotFound, status)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	cases := []struct {
		name   string
		token  string
		path   string
		status int
	}{
		{"missing token", "", "/v1/profile", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", "/v1/profile", http.StatusUnauthorized},
		{"wrong secret", foreignToken(t), "/v1/profile", http.StatusUnauthorized},
		{"bad role", signToken(t, userA, "owner"), "/v1/profile", http.StatusUnauthorized},
		{"user on admin route", signToken(t, userA, ""), "/v1/admin/stats", http.StatusForbidden},
		{"admin on admin route", signToken(t, admin, "admin"), "/v1/admin/stats", http.StatusOK},
	}
	for _, tc := range cases {
		var got errorBody
		status := env.call(t, tc.token, http.MethodGet, tc.path, "", &got)
		if status != tc.status {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.status, status, got.Error)
		}
	}

	if status := env.call(t, "", http.MethodGet, "/healthz", "", nil); status != http.StatusOK {
		t.Fatalf("healthz: expected %d, got %d", http.StatusOK, status)
	}
}

func foreignToken(t *testing.T) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userA.String(),
	}).SignedString([]byte("another-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestLedgerMatchesBalance(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	seedProfile(t, env.pool, userA, "0.00")
	rewardID := seedReward(t, env.pool, "4.00", 5)

	credit := fmt.Sprintf(`{"event_id":"ref-1","user_id":%q,"amount":"7.50"}`, userA)
	if status := env.asAdmin(t, http.MethodPost, "/v1/admin/credits", credit, nil); status != http.StatusCreated {
		t.Fatalf("credit: expected %d, got %d", http.StatusCreated, status)
	}
	if status := env.asUser(t, userA, http.MethodPost, "/v1/redemptions", redeemBody(rewardID, "t1"), nil); status != http.StatusCreated {
		t.Fatalf("redeem: expected %d, got %d", http.StatusCreated, status)
	}

	var entries []struct {
		Amount    string `json:"amount"`
		Direction string `json:"direction"`
		Reason    string `json:"reason"`
	}
	if status := env.asUser(t, userA, http.MethodGet, "/v1/ledger", "", &entries); status != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, status)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	if entries[0].Reason != "referral" || entries[0].Direction != "credit" || entries[0].Amount != "7.50" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Reason != "redemption" || entries[1].Direction != "debit" || entries[1].Amount != "4.00" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}

	_, net := getLedgerSummary(t, env.pool, userA)
	if balance := getBalance(t, env.pool, userA); balance != net || balance != "3.50" {
		t.Fatalf("expected balance and ledger net 3.50, got %s and %s", balance, net)
	}
}

func TestLeaderboard(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	userC := uuid.MustParse("33333333-3333-4333-8333-333333333333")
	seedProfile(t, env.pool, userA, "5.00")
	seedProfile(t, env.pool, userB, "20.00")
	seedProfile(t, env.pool, userC, "50.00")
	env.asAdmin(t, http.MethodPost, "/v1/admin/profiles/"+userC.String()+"/ban", "", nil)

	var board []struct {
		Rank          int    `json:"rank"`
		UserID        string `json:"user_id"`
		TotalEarnings string `json:"total_earnings"`
	}
	if status := env.asUser(t, userA, http.MethodGet, "/v1/leaderboard?limit=5", "", &board); status != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, status)
	}
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board))
	}
	if board[0].UserID != userB.String() || board[0].Rank != 1 || board[0].TotalEarnings != "20.00" {
		t.Fatalf("unexpected leader: %+v", board[0])
	}
	if board[1].UserID != userA.String() || board[1].Rank != 2 {
		t.Fatalf("unexpected runner-up: %+v", board[1])
	}

	if status := env.asUser(t, userA, http.MethodGet, "/v1/leaderboard?limit=0", "", nil); status != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, status)
	}
}

func TestCreateProfileWithReferralCode(t *testing.T) {
	env := setupTest(t)
	defer env.close()

	var referrer profileBody
	body := fmt.Sprintf(`{"user_id":%q,"display_name":"Referrer"}`, userA)
	if status := env.asAdmin(t, http.MethodPost, "/v1/admin/profiles", body, &referrer); status != http.StatusCreated {
		t.Fatalf("expected %d, got %d", http.StatusCreated, status)
	}

	var referred profileBody
	body = fmt.Sprintf(`{"user_id":%q,"referral_code":" %s "}`, userB, strings.ToLower(referrer.ReferralCode))
	if status := env.asAdmin(t, http.MethodPost, "/v1/admin/profiles", body, &referred); status != http.StatusCreated {
		t.Fatalf("expected %d, got %d", http.StatusCreated, status)
	}
	if referred.ReferredBy == nil || *referred.ReferredBy != userA.String() {
		t.Fatalf("expected referred_by %s, got %v", userA, referred.ReferredBy)
	}

	userC := uuid.MustParse("33333333-3333-4333-8333-333333333333")
	var got errorBody
	body = fmt.Sprintf(`{"user_id":%q,"referral_code":"NOSUCHCODE"}`, userC)
	status := env.asAdmin(t, http.MethodPost, "/v1/admin/profiles", body, &got)
	if status != http.StatusNotFound || got.Error != "profile_not_found" {
		t.Fatalf("unknown code: expected 404 profile_not_found, got %d %s", status, got.Error)
	}

	got = errorBody{}
	body = fmt.Sprintf(`{"user_id":%q,"referral_code":%q,"referred_by":%q}`, userC, referrer.ReferralCode, userA)
	status = env.asAdmin(t, http.MethodPost, "/v1/admin/profiles", body, &got)
	if status != http.StatusBadRequest || got.Error != "invalid_request" {
		t.Fatalf("code and referred_by: expected 400 invalid_request, got %d %s", status, got.Error)
	}
}
