/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes crossing the API boundary. Amounts travel as decimal
  strings and are parsed into engine.Money at the edge; no float ever
  touches a balance.

SEE ALSO:
  - handlers.go: Parsing and validation
*/
package api

// =============================================================================
// REQUESTS
// =============================================================================

type CreateMatchRequest struct {
	Fee        string `json:"fee"`
	MaxPlayers int    `json:"max_players,omitempty"`
}

type SubmitResultRequest struct {
	WinnerID string `json:"winner_id"`
}

type SubmitDepositRequest struct {
	Amount               string `json:"amount"`
	TransactionReference string `json:"transaction_reference"`
}

type SubmitWithdrawalRequest struct {
	Amount       string `json:"amount"`
	PayoutTarget string `json:"payout_target"`
}

type ResolveDecisionRequest struct {
	Decision string `json:"decision"` // "approve" | "reject"
}

type TopUpFloatRequest struct {
	Amount string `json:"amount"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type WalletResponse struct {
	UserID  string `json:"user_id"`
	Deposit string `json:"deposit"`
	Winning string `json:"winning"`
	Bonus   string `json:"bonus"`
}

type AdminFloatResponse struct {
	AdminID    string `json:"admin_id"`
	Current    string `json:"current"`
	TotalAdded string `json:"total_added"`
	TotalUsed  string `json:"total_used"`
}

type MatchResponse struct {
	ID          string   `json:"id"`
	HostID      string   `json:"host_id"`
	Fee         string   `json:"fee"`
	MaxPlayers  int      `json:"max_players"`
	Players     []string `json:"players"`
	PlayerCount int      `json:"player_count"`
	Status      string   `json:"status"`
	WinnerID    string   `json:"winner_id,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

type DepositResponse struct {
	ID                   string `json:"id"`
	UserID               string `json:"user_id"`
	Amount               string `json:"amount"`
	TransactionReference string `json:"transaction_reference"`
	Status               string `json:"status"`
	CreatedAt            string `json:"created_at"`
}

type WithdrawalResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Amount       string `json:"amount"`
	PayoutTarget string `json:"payout_target"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}
