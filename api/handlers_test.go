package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wager-engine/api"
	"github.com/warp/wager-engine/audit"
	"github.com/warp/wager-engine/engine"
	"github.com/warp/wager-engine/engine/store"
	"github.com/warp/wager-engine/gate"
	"github.com/warp/wager-engine/match"
	"github.com/warp/wager-engine/request"
	"github.com/warp/wager-engine/wallet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testSecret = []byte("test-secret")

type env struct {
	router  http.Handler
	store   *store.Memory
	coord   *engine.Coordinator
	wallets *wallet.Ledger
	clock   *engine.ManualClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := engine.NewManualClock(time.Date(2026, time.May, 1, 8, 0, 0, 0, time.UTC))
	mem := store.NewMemoryWithClock(clock)
	coord := &engine.Coordinator{Store: mem, Attempts: 50, BaseBackoff: time.Millisecond}
	wallets := wallet.NewLedger(mem)
	g := gate.New(mem, clock, testSecret)
	matches := match.NewService(coord, wallets, clock, match.DefaultConfig())
	requests := request.NewService(coord, wallets, audit.NewLog(), clock)
	h := api.NewHandler(g, coord, wallets, matches, requests)
	return &env{
		router:  api.NewRouter(h),
		store:   mem,
		coord:   coord,
		wallets: wallets,
		clock:   clock,
	}
}

func (e *env) token(t *testing.T, principalID string, role gate.Role) string {
	t.Helper()
	tok, err := gate.Mint(testSecret, principalID, role, e.clock.Now(), time.Hour)
	require.NoError(t, err)
	return tok
}

// seedAdminRole writes the authoritative role record; used to exercise
// the gate's store-read path for tokens minted without a role claim.
func (e *env) seedAdminRole(t *testing.T, adminID string) {
	t.Helper()
	err := e.coord.Run(context.Background(), func(u *engine.Unit) error {
		return u.Create(gate.ColAdmins, engine.DocID(adminID), &gate.RoleRecord{
			AdminID: adminID,
			Role:    gate.RoleWorker,
		})
	})
	require.NoError(t, err)
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.1.2.3:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// =============================================================================
// AUTH
// =============================================================================

func TestAPI_MissingToken_Unauthorized(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/wallet", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, string(engine.Unauthenticated), body["kind"])
}

func TestAPI_AdminRoute_RejectsPlainUser(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/requests/deposits/pending", e.token(t, "user-1", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_AdminRoute_RoleClaimFastPath(t *testing.T) {
	// No role record seeded; the worker claim in the token is enough.
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/requests/deposits/pending", e.token(t, "admin-1", gate.RoleWorker), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_AdminRoute_StoreRole(t *testing.T) {
	e := newEnv(t)
	e.seedAdminRole(t, "admin-1")
	rec := e.do(t, http.MethodGet, "/api/requests/withdrawals/pending", e.token(t, "admin-1", ""), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// ACCOUNTS AND WALLET
// =============================================================================

func TestAPI_CreateAccount_ThenReadWallet(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "user-1", "")

	rec := e.do(t, http.MethodPost, "/api/accounts", tok, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", decode(t, rec)["user_id"])

	rec = e.do(t, http.MethodPost, "/api/accounts", tok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "second create is already_exists")

	rec = e.do(t, http.MethodGet, "/api/wallet", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	w := decode(t, rec)["wallet"].(map[string]any)
	assert.Equal(t, "user-1", w["user_id"])
	assert.Equal(t, "0.00", w["deposit"])
	assert.Equal(t, "0.00", w["winning"])
	assert.Equal(t, "0.00", w["bonus"])
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorMapping(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "user-1", "")
	e.do(t, http.MethodPost, "/api/accounts", tok, nil)

	// Unknown match.
	rec := e.do(t, http.MethodPost, "/api/matches/nope/join", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unparseable fee.
	rec = e.do(t, http.MethodPost, "/api/matches", tok, api.CreateMatchRequest{Fee: "lots"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Empty wallet cannot cover the fee.
	rec = e.do(t, http.MethodPost, "/api/matches", tok, api.CreateMatchRequest{Fee: "100.00"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// FULL FLOW
// =============================================================================

func TestAPI_DepositMatchWithdrawFlow(t *testing.T) {
	// GIVEN: Two users and a floated admin
	// WHEN: Deposits are approved, a fee-100 match runs to completion,
	//       and the winner withdraws 150
	// THEN: Every envelope is success-shaped and the final wallet shows
	//       deposit 100 (200 - 100 fee) and winning 30 (180 - 150)

	e := newEnv(t)
	alice := e.token(t, "alice", "")
	bob := e.token(t, "bob", "")
	admin := e.token(t, "admin-1", gate.RoleWorker)

	for _, tok := range []string{alice, bob} {
		rec := e.do(t, http.MethodPost, "/api/accounts", tok, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// Fund both through the deposit workflow.
	for _, tok := range []string{alice, bob} {
		rec := e.do(t, http.MethodPost, "/api/requests/deposits", tok, api.SubmitDepositRequest{
			Amount:               "200.00",
			TransactionReference: "utr-1",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		reqID := decode(t, rec)["request_id"].(string)

		rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/requests/deposits/%s/resolve", reqID), admin,
			api.ResolveDecisionRequest{Decision: "approve"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Match: alice hosts, bob joins and wins.
	rec := e.do(t, http.MethodPost, "/api/matches", alice, api.CreateMatchRequest{Fee: "100.00"})
	require.Equal(t, http.StatusCreated, rec.Code)
	matchID := decode(t, rec)["match_id"].(string)

	rec = e.do(t, http.MethodPost, "/api/matches/"+matchID+"/join", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/matches/"+matchID+"/result", alice,
		api.SubmitResultRequest{WinnerID: "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/matches/"+matchID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)["match"].(map[string]any)
	assert.Equal(t, "completed", m["status"])
	assert.Equal(t, "bob", m["winner_id"])

	// Withdrawal out of bob's winnings, paid from the admin float.
	rec = e.do(t, http.MethodPost, "/api/admin/float/topup", admin, api.TopUpFloatRequest{Amount: "500.00"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/requests/withdrawals", bob, api.SubmitWithdrawalRequest{
		Amount:       "150.00",
		PayoutTarget: "upi:bob@bank",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	wdID := decode(t, rec)["request_id"].(string)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/requests/withdrawals/%s/resolve", wdID), admin,
		api.ResolveDecisionRequest{Decision: "approve"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/wallet", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	w := decode(t, rec)["wallet"].(map[string]any)
	assert.Equal(t, "100.00", w["deposit"])
	assert.Equal(t, "30.00", w["winning"])

	rec = e.do(t, http.MethodGet, "/api/admin/float", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f := decode(t, rec)["float"].(map[string]any)
	assert.Equal(t, "350.00", f["current"])
	assert.Equal(t, "150.00", f["total_used"])
}

// =============================================================================
// RATE LIMITING
// =============================================================================

func TestAPI_RateLimit_PerIP(t *testing.T) {
	// The bucket allows a burst of 20 per IP; a tight loop of 30
	// requests must trip at least one 429.

	e := newEnv(t)
	limited := 0
	for i := 0; i < 30; i++ {
		rec := e.do(t, http.MethodGet, "/api/wallet", "", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Greater(t, limited, 0)
}
