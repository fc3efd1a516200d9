package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"rewards.ledger/internal/api"
	"rewards.ledger/internal/store"
)

const testSecret = "test-secret"

var (
	userA = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	userB = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	admin = uuid.MustParse("99999999-9999-4999-8999-999999999999")
)

type testEnv struct {
	pool   *pgxpool.Pool
	server *httptest.Server
	client *http.Client
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}

	applySchema(t, pool)
	resetDB(t, pool)

	srv := api.NewServer(store.New(pool), testSecret, zerolog.Nop())
	ts := httptest.NewServer(srv.Routes())

	return &testEnv{
		pool:   pool,
		server: ts,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (e *testEnv) close() {
	e.server.Close()
	e.pool.Close()
}

func signToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) newRequest(t *testing.T, token, method, path, body string) *http.Request {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (e *testEnv) doRequest(t *testing.T, token, method, path, body string) *http.Response {
	t.Helper()

	resp, err := e.client.Do(e.newRequest(t, token, method, path, body))
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

// asUser and asAdmin issue a request and decode the JSON body into dst when
// dst is non-nil. The response status is returned.
func (e *testEnv) asUser(t *testing.T, userID uuid.UUID, method, path, body string, dst any) int {
	t.Helper()
	return e.call(t, signToken(t, userID, api.RoleUser), method, path, body, dst)
}

func (e *testEnv) asAdmin(t *testing.T, method, path, body string, dst any) int {
	t.Helper()
	return e.call(t, signToken(t, admin, api.RoleAdmin), method, path, body, dst)
}

func (e *testEnv) call(t *testing.T, token, method, path, body string, dst any) int {
	t.Helper()

	resp := e.doRequest(t, token, method, path, body)
	defer resp.Body.Close()

	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode response (status %d): %v", resp.StatusCode, err)
		}
	}
	return resp.StatusCode
}

func decodeInto(resp *http.Response, dst any) error {
	return json.NewDecoder(resp.Body).Decode(dst)
}

type errorBody struct {
	Error string `json:"error"`
}

type profileBody struct {
	UserID        string  `json:"user_id"`
	DisplayName   string  `json:"display_name"`
	ReferralCode  string  `json:"referral_code"`
	ReferredBy    *string `json:"referred_by"`
	TotalEarnings string  `json:"total_earnings"`
	ReferralCount int     `json:"referral_count"`
	IsBanned      bool    `json:"is_banned"`
}

type rewardBody struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	Stock    *int   `json:"stock"`
	IsActive bool   `json:"is_active"`
}

type redemptionBody struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	RewardID     *string `json:"reward_id"`
	RewardTitle  *string `json:"reward_title"`
	PricePaid    string  `json:"price_paid"`
	Status       string  `json:"status"`
	RewardData   *string `json:"reward_data"`
	RequestToken string  `json:"request_token"`
	Refunded     bool    `json:"refunded"`
}

func seedProfile(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID, balance string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, `
		INSERT INTO profiles (user_id, display_name, referral_code, total_earnings)
		VALUES ($1, $2, $3, $4::numeric)
	`, userID, "player-"+userID.String()[:4], strings.ToUpper(userID.String()[:10]), balance)
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

// seedReward inserts an active reward. A negative stock seeds an untracked one.
func seedReward(t *testing.T, pool *pgxpool.Pool, price string, stock int) uuid.UUID {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var s *int
	if stock >= 0 {
		s = &stock
	}
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO rewards (id, title, price, stock)
		VALUES ($1, $2, $3::numeric, $4)
	`, id, "Steam account "+price, price, s)
	if err != nil {
		t.Fatalf("seed reward: %v", err)
	}
	return id
}

func getBalance(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var balance string
	err := pool.QueryRow(ctx, "SELECT total_earnings::text FROM profiles WHERE user_id = $1", userID).Scan(&balance)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return balance
}

func getStock(t *testing.T, pool *pgxpool.Pool, rewardID uuid.UUID) *int {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var stock *int
	err := pool.QueryRow(ctx, "SELECT stock FROM rewards WHERE id = $1", rewardID).Scan(&stock)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	return stock
}

func getRedemptionCount(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) int {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM reward_redemptions WHERE user_id = $1", userID).Scan(&count)
	if err != nil {
		t.Fatalf("get redemption count: %v", err)
	}
	return count
}

// getLedgerSummary returns the entry count and the net movement (credits
// minus debits) as text.
func getLedgerSummary(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) (int, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		count int
		net   string
	)
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)::numeric(12, 2)::text
		FROM ledger_entries
		WHERE user_id = $1
	`, userID).Scan(&count, &net)
	if err != nil {
		t.Fatalf("get ledger summary: %v", err)
	}
	return count, net
}

func applySchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	schema := loadSchema(t)
	statements := strings.Split(schema, ";")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, stmt := range statements {
		s := strings.TrimSpace(stmt)
		if s == "" {
			continue
		}
		if _, err := pool.Exec(ctx, s); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, `
		TRUNCATE ledger_entries, referral_credits, reward_redemptions, rewards, profiles RESTART IDENTITY
	`)
	if err != nil {
		t.Fatalf("reset db: %v", err)
	}
}

func loadSchema(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	dir := wd
	for i := 0; i < 6; i++ {
		path := filepath.Join(dir, "schema.sql")
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read schema: %v", err)
			}
			return string(data)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatalf("schema.sql not found from %s", wd)
	return ""
}
