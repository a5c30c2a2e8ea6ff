/*
Package audit records every balance-affecting admin action.

PURPOSE:
  Append-only log entries written inside the SAME unit of work as the
  financial mutation they document: if the mutation retries or aborts,
  so does its audit entry, and a committed mutation always has its
  entry alongside it.

TIMESTAMPS:
  The entry's timestamp field is store-assigned at commit time (see
  engine.StampTimestamp); whatever a caller supplies is discarded.
  Admins cannot backdate their own trail.

This engine needs no read or query contract over the log; reporting is
an external concern.
*/
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/warp/wager-engine/engine"
)

const ColAudit engine.Collection = "audit_log"

// =============================================================================
// ENTRIES
// =============================================================================

type ActionType string

const (
	ActionDepositApproved     ActionType = "deposit_approved"
	ActionDepositRejected     ActionType = "deposit_rejected"
	ActionWithdrawalCompleted ActionType = "withdrawal_completed"
	ActionWithdrawalRejected  ActionType = "withdrawal_rejected"
	ActionFloatTopUp          ActionType = "float_topup"
)

type Entry struct {
	ID               string       `json:"id"`
	AdminID          string       `json:"admin_id"`
	Type             ActionType   `json:"type"`
	Amount           engine.Money `json:"amount"`
	UserID           string       `json:"user_id,omitempty"`
	RelatedRequestID string       `json:"related_request_id,omitempty"`
	Timestamp        time.Time    `json:"timestamp"` // store-assigned
}

// =============================================================================
// LOG
// =============================================================================

// Log appends entries into an active unit of work.
type Log struct{}

func NewLog() *Log { return &Log{} }

// Append buffers the entry. The id is generated when absent; the
// timestamp is always the store's commit time.
func (l *Log) Append(u *engine.Unit, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return u.CreateStamped(ColAudit, engine.DocID(e.ID), e, "timestamp")
}
