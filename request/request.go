/*
Package request runs the deposit and withdrawal approval workflows.

PURPOSE:
  Users file requests; admins resolve them exactly once. Deposits credit
  the user's deposit bucket on approval. Withdrawals pay out of the
  RESOLVING ADMIN's working-capital float, never a system-wide pool, so
  each admin's payout exposure is bounded by their own balance — and the
  float sufficiency check runs inside the same unit of work as the
  status transition, so two admins cannot race past an insufficient
  float together.

IDEMPOTENCY:
  A request leaves pending exactly once. The status guard and the
  balance mutation share one unit of work; a second resolution attempt
  reads a non-pending request and fails as not found (status-based on
  purpose, to avoid leaking resolution state).

SEE ALSO:
  - service.go: Submit/resolve operations
  - audit: Entries written inside the resolving unit
*/
package request

import (
	"time"

	"github.com/warp/wager-engine/engine"
)

const (
	ColDeposits    engine.Collection = "deposit_requests"
	ColWithdrawals engine.Collection = "withdrawal_requests"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Deposit is a user's claim of an external payment. TransactionReference
// is the opaque proof handle (receipt URL, bank reference); this engine
// never validates or fetches it.
type Deposit struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"user_id"`
	Amount               engine.Money `json:"amount"`
	TransactionReference string       `json:"transaction_reference"`
	Status               Status       `json:"status"`
	AdminID              string       `json:"admin_id,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	ProcessedAt          *time.Time   `json:"processed_at,omitempty"`
}

// Withdrawal is a user's payout request against their winning bucket.
// PayoutTarget is an opaque destination (UPI handle, account number).
type Withdrawal struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Amount       engine.Money `json:"amount"`
	PayoutTarget string       `json:"payout_target"`
	Status       Status       `json:"status"`
	AdminID      string       `json:"admin_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ProcessedAt  *time.Time   `json:"processed_at,omitempty"`
}
