/*
Package wallet owns the balance documents of the wagering platform.

PURPOSE:
  One wallet document per user with three buckets (deposit, winning,
  bonus) and one float document per admin (current, total added, total
  used). All mutation goes through increment primitives that take an
  active unit of work; callers never read-modify-write a balance field.

MUTATION CONTRACT:
  AdjustUser / AdjustAdmin buffer commutative increment writes, so two
  concurrent adjustments to the same bucket both commit without fighting
  the optimistic-conflict path. No validation happens here: balance
  sufficiency is the caller's job, checked inside the same unit before
  the adjustment is buffered.

INVARIANT:
  Admin float: current == total_added - total_used. AdjustAdmin moves
  both legs of the equation in one write, so the invariant holds by
  construction.

SEE ALSO:
  - match/service.go: Debits/credits tied to match lifecycle
  - request/service.go: Deposit credits and withdrawal float debits
*/
package wallet

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/warp/wager-engine/engine"
)

const (
	ColWallets      engine.Collection = "wallets"
	ColAdminWallets engine.Collection = "admin_wallets"
)

// =============================================================================
// DOCUMENTS
// =============================================================================

// Bucket names a user balance bucket. The JSON field names below are the
// increment targets the store mutates.
type Bucket string

const (
	BucketDeposit Bucket = "deposit"
	BucketWinning Bucket = "winning"
	BucketBonus   Bucket = "bonus"
)

// Wallet is a user's balance document. Created at account creation with
// zero balances, never deleted.
type Wallet struct {
	UserID  string       `json:"user_id"`
	Deposit engine.Money `json:"deposit"`
	Winning engine.Money `json:"winning"`
	Bonus   engine.Money `json:"bonus"`
}

func (w *Wallet) Balance(b Bucket) engine.Money {
	switch b {
	case BucketDeposit:
		return w.Deposit
	case BucketWinning:
		return w.Winning
	case BucketBonus:
		return w.Bonus
	}
	return engine.Zero()
}

// AdminWallet is an admin's working-capital float document.
type AdminWallet struct {
	AdminID    string       `json:"admin_id"`
	Current    engine.Money `json:"current"`
	TotalAdded engine.Money `json:"total_added"`
	TotalUsed  engine.Money `json:"total_used"`
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger exposes wallet reads and the increment primitives. The store is
// used for read-only lookups outside a unit of work; every mutation takes
// an active *engine.Unit.
type Ledger struct {
	Store engine.Store
}

func NewLedger(store engine.Store) *Ledger {
	return &Ledger{Store: store}
}

// CreateUserWallet buffers a zero-balance wallet for a new account.
func (l *Ledger) CreateUserWallet(u *engine.Unit, userID string) error {
	return u.Create(ColWallets, engine.DocID(userID), &Wallet{UserID: userID})
}

// CreateAdminWallet buffers a zero float for a new admin principal.
func (l *Ledger) CreateAdminWallet(u *engine.Unit, adminID string) error {
	return u.Create(ColAdminWallets, engine.DocID(adminID), &AdminWallet{AdminID: adminID})
}

// Provision creates a user's zero-balance wallet as its own unit of work.
// A second provisioning of the same account fails with AlreadyExists.
func (l *Ledger) Provision(ctx context.Context, coord *engine.Coordinator, userID string) error {
	if userID == "" {
		return engine.Errorf(engine.InvalidArgument, "user id is required")
	}
	return coord.Run(ctx, func(u *engine.Unit) error {
		return l.CreateUserWallet(u, userID)
	})
}

// AdjustUser buffers an increment of one user bucket by delta (which may
// be negative). Only the deposit and winning buckets are adjustable by
// the engine's flows.
func (l *Ledger) AdjustUser(u *engine.Unit, userID string, bucket Bucket, delta engine.Money) error {
	if bucket != BucketDeposit && bucket != BucketWinning {
		return engine.Errorf(engine.InvalidArgument, "bucket %q is not adjustable", bucket)
	}
	u.Increment(ColWallets, engine.DocID(userID), map[string]decimal.Decimal{
		string(bucket): delta.Value,
	})
	return nil
}

// AdjustAdmin moves an admin's float. delta > 0 is a payout spend
// (current down, total_used up); delta < 0 is a top-up (current up,
// total_added up). Both legs land in one increment write.
func (l *Ledger) AdjustAdmin(u *engine.Unit, adminID string, delta engine.Money) {
	deltas := map[string]decimal.Decimal{
		"current": delta.Neg().Value,
	}
	if delta.IsNegative() {
		deltas["total_added"] = delta.Neg().Value
	} else {
		deltas["total_used"] = delta.Value
	}
	u.Increment(ColAdminWallets, engine.DocID(adminID), deltas)
}

// =============================================================================
// READS
// =============================================================================

// UserWallet reads a wallet outside any unit of work (API lookups).
func (l *Ledger) UserWallet(ctx context.Context, userID string) (*Wallet, error) {
	rec, err := l.Store.Get(ctx, engine.NewRef(ColWallets, engine.DocID(userID)))
	if err != nil {
		if err == engine.ErrDocMissing {
			return nil, engine.Wrap(engine.NotFound, err, "wallet %s", userID)
		}
		return nil, engine.Wrap(engine.Internal, err, "read wallet %s", userID)
	}
	return decodeWallet(rec.Data, userID)
}

// UserWalletTx reads a wallet inside a unit, stamping it into the unit's
// read set so balance checks are revalidated at commit.
func (l *Ledger) UserWalletTx(ctx context.Context, u *engine.Unit, userID string) (*Wallet, error) {
	var w Wallet
	if err := u.Get(ctx, ColWallets, engine.DocID(userID), &w); err != nil {
		return nil, err
	}
	if w.UserID == "" {
		w.UserID = userID
	}
	return &w, nil
}

// AdminWalletTx reads an admin float inside a unit.
func (l *Ledger) AdminWalletTx(ctx context.Context, u *engine.Unit, adminID string) (*AdminWallet, error) {
	var w AdminWallet
	if err := u.Get(ctx, ColAdminWallets, engine.DocID(adminID), &w); err != nil {
		return nil, err
	}
	if w.AdminID == "" {
		w.AdminID = adminID
	}
	return &w, nil
}

// AdminWalletRead reads an admin float outside any unit of work.
func (l *Ledger) AdminWalletRead(ctx context.Context, adminID string) (*AdminWallet, error) {
	rec, err := l.Store.Get(ctx, engine.NewRef(ColAdminWallets, engine.DocID(adminID)))
	if err != nil {
		if err == engine.ErrDocMissing {
			return nil, engine.Wrap(engine.NotFound, err, "admin wallet %s", adminID)
		}
		return nil, engine.Wrap(engine.Internal, err, "read admin wallet %s", adminID)
	}
	var w AdminWallet
	if err := json.Unmarshal(rec.Data, &w); err != nil {
		return nil, engine.Wrap(engine.Internal, err, "decode admin wallet %s", adminID)
	}
	if w.AdminID == "" {
		w.AdminID = adminID
	}
	return &w, nil
}

func decodeWallet(data []byte, userID string) (*Wallet, error) {
	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, engine.Wrap(engine.Internal, err, "decode wallet %s", userID)
	}
	if w.UserID == "" {
		w.UserID = userID
	}
	return &w, nil
}
