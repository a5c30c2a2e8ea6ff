/*
handlers.go - HTTP API handlers for the wagering engine

PURPOSE:
  Exposes the engine's operation families via REST. Handles HTTP
  request/response, JSON serialization, bearer-token extraction, and
  delegates everything else to the domain services.

ENDPOINTS:
  Accounts/wallets:
    POST /api/accounts                     Provision the caller's wallet
    GET  /api/wallet                       Caller's balances

  Matches:
    POST /api/matches                      Create (escrows host fee)
    GET  /api/matches/{id}
    POST /api/matches/{id}/join
    POST /api/matches/{id}/result
    POST /api/matches/{id}/cancel

  Requests:
    POST /api/requests/deposits            Submit deposit claim
    POST /api/requests/withdrawals         Submit payout request

  Admin:
    GET  /api/requests/deposits/pending
    GET  /api/requests/withdrawals/pending
    POST /api/requests/deposits/{id}/resolve
    POST /api/requests/withdrawals/{id}/resolve
    POST /api/admin/float/topup
    GET  /api/admin/float

RESPONSE ENVELOPE:
  Success: {"status":"success", ...payload fields...}
  Failure: {"status":"error","kind":"<taxonomy kind>","message":"..."}
  A caller receiving an error may assume zero state change occurred.

ERROR MAPPING:
  invalid_argument 400, unauthenticated 401, permission_denied 403,
  not_found 404, already_exists/failed_precondition 409, aborted 503,
  internal 500 (detail logged server-side, never leaked).

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/wager-engine/engine"
	"github.com/warp/wager-engine/gate"
	"github.com/warp/wager-engine/match"
	"github.com/warp/wager-engine/request"
	"github.com/warp/wager-engine/wallet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Gate     *gate.Gate
	Wallets  *wallet.Ledger
	Coord    *engine.Coordinator
	Matches  *match.Service
	Requests *request.Service
}

func NewHandler(g *gate.Gate, coord *engine.Coordinator, wallets *wallet.Ledger, matches *match.Service, requests *request.Service) *Handler {
	return &Handler{Gate: g, Coord: coord, Wallets: wallets, Matches: matches, Requests: requests}
}

// =============================================================================
// ACCOUNT / WALLET HANDLERS
// =============================================================================

// CreateAccount provisions the caller's zero-balance wallet.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Gate.ResolvePrincipal(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Wallets.Provision(r.Context(), h.Coord, userID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"user_id": userID})
}

// GetWallet returns the caller's balances.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Gate.ResolvePrincipal(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	wl, err := h.Wallets.UserWallet(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"wallet": WalletResponse{
		UserID:  wl.UserID,
		Deposit: wl.Deposit.String(),
		Winning: wl.Winning.String(),
		Bonus:   wl.Bonus.String(),
	}})
}

// =============================================================================
// MATCH HANDLERS
// =============================================================================

func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	hostID, err := h.Gate.ResolvePrincipal(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var req CreateMatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fee, err := engine.ParseMoney(req.Fee)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	id, err := h.Matches.Create(r.Context(), hostID, fee, req.MaxPlayers)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"match_id": id})
}

func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Gate.ResolvePrincipal(r.Context(), bearerToken(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	m, err := h.Matches.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"match": matchDTO(m)})
}

func (h *Handler) JoinMatch(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Gate.ResolvePrincipal(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Matches.Join(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (h *Handler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Gate.ResolvePrincipal(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var req SubmitResultRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.Matches.SubmitResult(r.Context(), userID, chi.URLParam(r, "id"), req.WinnerID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (h *Handler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Gate.ResolvePrincipal(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Matches.Cancel(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

// =============================================================================
// REQUEST SUBMISSION HANDLERS
// =============================================================================

func (h *Handler) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Gate.ResolvePrincipal(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var req SubmitDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := engine.ParseMoney(req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	id, err := h.Requests.SubmitDeposit(r.Context(), userID, amount, req.TransactionReference)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"request_id": id})
}

func (h *Handler) SubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Gate.ResolvePrincipal(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var req SubmitWithdrawalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := engine.ParseMoney(req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	id, err := h.Requests.SubmitWithdrawal(r.Context(), userID, amount, req.PayoutTarget)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"request_id": id})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) ListPendingDeposits(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Gate.RequireAdmin(r.Context(), bearerToken(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	pending, err := h.Requests.PendingDeposits(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]DepositResponse, len(pending))
	for i, d := range pending {
		dtos[i] = DepositResponse{
			ID:                   d.ID,
			UserID:               d.UserID,
			Amount:               d.Amount.String(),
			TransactionReference: d.TransactionReference,
			Status:               string(d.Status),
			CreatedAt:            d.CreatedAt.Format(time.RFC3339),
		}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"requests": dtos})
}

func (h *Handler) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Gate.RequireAdmin(r.Context(), bearerToken(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	pending, err := h.Requests.PendingWithdrawals(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]WithdrawalResponse, len(pending))
	for i, wd := range pending {
		dtos[i] = WithdrawalResponse{
			ID:           wd.ID,
			UserID:       wd.UserID,
			Amount:       wd.Amount.String(),
			PayoutTarget: wd.PayoutTarget,
			Status:       string(wd.Status),
			CreatedAt:    wd.CreatedAt.Format(time.RFC3339),
		}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"requests": dtos})
}

func (h *Handler) ResolveDeposit(w http.ResponseWriter, r *http.Request) {
	adminID, err := h.Gate.RequireAdmin(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	approve, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	if err := h.Requests.ResolveDeposit(r.Context(), adminID, chi.URLParam(r, "id"), approve); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (h *Handler) ResolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, err := h.Gate.RequireAdmin(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	approve, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	if err := h.Requests.ResolveWithdrawal(r.Context(), adminID, chi.URLParam(r, "id"), approve); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (h *Handler) TopUpFloat(w http.ResponseWriter, r *http.Request) {
	adminID, err := h.Gate.RequireAdmin(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var req TopUpFloatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := engine.ParseMoney(req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Requests.TopUpFloat(r.Context(), adminID, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (h *Handler) GetAdminFloat(w http.ResponseWriter, r *http.Request) {
	adminID, err := h.Gate.RequireAdmin(r.Context(), bearerToken(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	aw, err := h.Wallets.AdminWalletRead(r.Context(), adminID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"float": AdminFloatResponse{
		AdminID:    aw.AdminID,
		Current:    aw.Current.String(),
		TotalAdded: aw.TotalAdded.String(),
		TotalUsed:  aw.TotalUsed.String(),
	}})
}

// =============================================================================
// HELPERS
// =============================================================================

func matchDTO(m *match.Match) MatchResponse {
	return MatchResponse{
		ID:          m.ID,
		HostID:      m.HostID,
		Fee:         m.Fee.String(),
		MaxPlayers:  m.MaxPlayers,
		Players:     m.Players,
		PlayerCount: m.PlayerCount,
		Status:      string(m.Status),
		WinnerID:    m.WinnerID,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeEngineError(w, engine.Errorf(engine.InvalidArgument, "malformed request body"))
		return false
	}
	return true
}

func decodeDecision(w http.ResponseWriter, r *http.Request) (approve bool, ok bool) {
	var req ResolveDecisionRequest
	if !decodeBody(w, r, &req) {
		return false, false
	}
	switch req.Decision {
	case "approve":
		return true, true
	case "reject":
		return false, true
	default:
		writeEngineError(w, engine.Errorf(engine.InvalidArgument, "decision must be approve or reject"))
		return false, false
	}
}

func writeSuccess(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"status": "success"}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeEngineError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	msg := "internal error"
	if kind != engine.Internal {
		var e *engine.Error
		if errors.As(err, &e) {
			msg = e.Msg
		} else {
			msg = err.Error()
		}
	} else {
		log.Printf("api: internal error: %v", err)
	}
	writeJSON(w, kindStatus(kind), map[string]any{
		"status":  "error",
		"kind":    string(kind),
		"message": msg,
	})
}

func kindStatus(kind engine.Kind) int {
	switch kind {
	case engine.InvalidArgument:
		return http.StatusBadRequest
	case engine.Unauthenticated:
		return http.StatusUnauthorized
	case engine.PermissionDenied:
		return http.StatusForbidden
	case engine.NotFound:
		return http.StatusNotFound
	case engine.AlreadyExists, engine.FailedPrecondition:
		return http.StatusConflict
	case engine.Aborted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
