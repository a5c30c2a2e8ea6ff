/*
Package match runs the escrow lifecycle of peer-to-peer wagered matches.

PURPOSE:
  A match escrows each player's entry fee from the moment they enter:
  create debits the host, join debits the joiner, and the pot is only
  released by a result (winner's winning bucket, minus the rake) or a
  solo cancellation (host refund). Every lifecycle transition and its
  balance movement commit in one unit of work: a crash can never leave
  a player debited without recorded membership, or a cancelled match
  holding an un-refunded fee.

STATE MACHINE:
  pending -> inprogress -> completed
  pending -> cancelled            (host only, while solo)
  pending -> completed            (result on a part-filled match)

  The join that fills the match flips it to inprogress; a later join
  finds it non-pending and fails the precondition.

SEE ALSO:
  - service.go: The four operations
  - wallet/ledger.go: The debit/credit primitives
*/
package match

import (
	"time"

	"github.com/warp/wager-engine/engine"
)

const ColMatches engine.Collection = "matches"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "inprogress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Match is the escrow document. Immutable once completed or cancelled.
type Match struct {
	ID          string       `json:"id"`
	HostID      string       `json:"host_id"`
	Fee         engine.Money `json:"fee"`
	MaxPlayers  int          `json:"max_players"`
	Players     []string     `json:"players"`
	PlayerCount int          `json:"player_count"`
	Status      Status       `json:"status"`
	WinnerID    string       `json:"winner_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (m *Match) HasPlayer(id string) bool {
	for _, p := range m.Players {
		if p == id {
			return true
		}
	}
	return false
}

// Open reports whether a result may still be submitted.
func (m *Match) Open() bool {
	return m.Status == StatusPending || m.Status == StatusInProgress
}
