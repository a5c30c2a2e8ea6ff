package request

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/warp/wager-engine/audit"
	"github.com/warp/wager-engine/engine"
	"github.com/warp/wager-engine/wallet"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the request workflow engine: one instance drives both the
// deposit and the withdrawal shapes.
type Service struct {
	Coord   *engine.Coordinator
	Wallets *wallet.Ledger
	Audit   *audit.Log
	Clock   engine.Clock
}

func NewService(coord *engine.Coordinator, wallets *wallet.Ledger, log *audit.Log, clock engine.Clock) *Service {
	return &Service{Coord: coord, Wallets: wallets, Audit: log, Clock: clock}
}

// =============================================================================
// SUBMISSION - User-initiated, not admin-gated
// =============================================================================

// SubmitDeposit files a pending deposit claim. No balance moves until an
// admin approves it.
func (s *Service) SubmitDeposit(ctx context.Context, userID string, amount engine.Money, txRef string) (string, error) {
	if !amount.IsPositive() {
		return "", engine.Errorf(engine.InvalidArgument, "amount must be positive, got %s", amount)
	}
	if txRef == "" {
		return "", engine.Errorf(engine.InvalidArgument, "transaction reference is required")
	}

	id := uuid.NewString()
	err := s.Coord.Run(ctx, func(u *engine.Unit) error {
		// The wallet must exist; its stamp also guards against the
		// account being created concurrently with its first deposit.
		if _, err := s.Wallets.UserWalletTx(ctx, u, userID); err != nil {
			return err
		}
		return u.Create(ColDeposits, engine.DocID(id), &Deposit{
			ID:                   id,
			UserID:               userID,
			Amount:               amount,
			TransactionReference: txRef,
			Status:               StatusPending,
			CreatedAt:            s.Clock.Now(),
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SubmitWithdrawal files a pending payout request against the user's
// winning bucket. The submission-time balance check is a fast-fail
// courtesy; the authoritative check and the single user-side debit happen
// at approval, in the resolving unit.
func (s *Service) SubmitWithdrawal(ctx context.Context, userID string, amount engine.Money, payoutTarget string) (string, error) {
	if !amount.IsPositive() {
		return "", engine.Errorf(engine.InvalidArgument, "amount must be positive, got %s", amount)
	}
	if payoutTarget == "" {
		return "", engine.Errorf(engine.InvalidArgument, "payout target is required")
	}

	id := uuid.NewString()
	err := s.Coord.Run(ctx, func(u *engine.Unit) error {
		w, err := s.Wallets.UserWalletTx(ctx, u, userID)
		if err != nil {
			return err
		}
		if w.Winning.LessThan(amount) {
			return engine.Errorf(engine.FailedPrecondition,
				"insufficient winning balance: have %s, need %s", w.Winning, amount)
		}
		return u.Create(ColWithdrawals, engine.DocID(id), &Withdrawal{
			ID:           id,
			UserID:       userID,
			Amount:       amount,
			PayoutTarget: payoutTarget,
			Status:       StatusPending,
			CreatedAt:    s.Clock.Now(),
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// =============================================================================
// RESOLUTION - Admin-gated, exactly once
// =============================================================================

// ResolveDeposit approves or rejects a pending deposit. Approval credits
// the user's deposit bucket; both outcomes write an audit entry in the
// same unit.
func (s *Service) ResolveDeposit(ctx context.Context, adminID, requestID string, approve bool) error {
	return s.Coord.Run(ctx, func(u *engine.Unit) error {
		var req Deposit
		if err := u.Get(ctx, ColDeposits, engine.DocID(requestID), &req); err != nil {
			if engine.IsKind(err, engine.NotFound) {
				return engine.Errorf(engine.NotFound, "request %s does not exist", requestID)
			}
			return err
		}
		if req.Status != StatusPending {
			// Intentionally indistinguishable from an absent request.
			return engine.Errorf(engine.NotFound, "request %s does not exist", requestID)
		}

		now := s.Clock.Now()
		req.AdminID = adminID
		req.ProcessedAt = &now
		action := audit.ActionDepositRejected
		if approve {
			req.Status = StatusApproved
			action = audit.ActionDepositApproved
			if err := s.Wallets.AdjustUser(u, req.UserID, wallet.BucketDeposit, req.Amount); err != nil {
				return err
			}
		} else {
			req.Status = StatusRejected
		}

		if err := u.Put(ColDeposits, engine.DocID(requestID), &req); err != nil {
			return err
		}
		return s.Audit.Append(u, audit.Entry{
			AdminID:          adminID,
			Type:             action,
			Amount:           req.Amount,
			UserID:           req.UserID,
			RelatedRequestID: req.ID,
		})
	})
}

// ResolveWithdrawal approves or rejects a pending withdrawal. Approval
// pays out of the resolving admin's float: the sufficiency check, the
// float debit, the user's winning debit, the status transition and the
// audit entry all commit together.
func (s *Service) ResolveWithdrawal(ctx context.Context, adminID, requestID string, approve bool) error {
	return s.Coord.Run(ctx, func(u *engine.Unit) error {
		var req Withdrawal
		if err := u.Get(ctx, ColWithdrawals, engine.DocID(requestID), &req); err != nil {
			if engine.IsKind(err, engine.NotFound) {
				return engine.Errorf(engine.NotFound, "request %s does not exist", requestID)
			}
			return err
		}
		if req.Status != StatusPending {
			return engine.Errorf(engine.NotFound, "request %s does not exist", requestID)
		}

		now := s.Clock.Now()
		req.AdminID = adminID
		req.ProcessedAt = &now
		action := audit.ActionWithdrawalRejected
		if approve {
			aw, err := s.Wallets.AdminWalletTx(ctx, u, adminID)
			if err != nil {
				if engine.IsKind(err, engine.NotFound) {
					return engine.Errorf(engine.FailedPrecondition, "admin %s holds no float", adminID)
				}
				return err
			}
			if aw.Current.LessThan(req.Amount) {
				return engine.Errorf(engine.FailedPrecondition,
					"insufficient admin float: have %s, need %s", aw.Current, req.Amount)
			}

			uw, err := s.Wallets.UserWalletTx(ctx, u, req.UserID)
			if err != nil {
				return err
			}
			if uw.Winning.LessThan(req.Amount) {
				return engine.Errorf(engine.FailedPrecondition,
					"insufficient winning balance: have %s, need %s", uw.Winning, req.Amount)
			}

			req.Status = StatusCompleted
			action = audit.ActionWithdrawalCompleted
			if err := s.Wallets.AdjustUser(u, req.UserID, wallet.BucketWinning, req.Amount.Neg()); err != nil {
				return err
			}
			s.Wallets.AdjustAdmin(u, adminID, req.Amount)
		} else {
			req.Status = StatusRejected
		}

		if err := u.Put(ColWithdrawals, engine.DocID(requestID), &req); err != nil {
			return err
		}
		return s.Audit.Append(u, audit.Entry{
			AdminID:          adminID,
			Type:             action,
			Amount:           req.Amount,
			UserID:           req.UserID,
			RelatedRequestID: req.ID,
		})
	})
}

// TopUpFloat adds working capital to an admin's own float, creating the
// float document on first use. Audited like every other admin balance
// action.
func (s *Service) TopUpFloat(ctx context.Context, adminID string, amount engine.Money) error {
	if !amount.IsPositive() {
		return engine.Errorf(engine.InvalidArgument, "amount must be positive, got %s", amount)
	}
	return s.Coord.Run(ctx, func(u *engine.Unit) error {
		if _, err := s.Wallets.AdminWalletTx(ctx, u, adminID); err != nil {
			if !engine.IsKind(err, engine.NotFound) {
				return err
			}
			if err := s.Wallets.CreateAdminWallet(u, adminID); err != nil {
				return err
			}
		}
		s.Wallets.AdjustAdmin(u, adminID, amount.Neg())
		return s.Audit.Append(u, audit.Entry{
			AdminID: adminID,
			Type:    audit.ActionFloatTopUp,
			Amount:  amount,
		})
	})
}

// =============================================================================
// QUEUES
// =============================================================================

// PendingDeposits lists unresolved deposit requests for the admin queue.
func (s *Service) PendingDeposits(ctx context.Context) ([]Deposit, error) {
	recs, err := s.Coord.Store.List(ctx, ColDeposits)
	if err != nil {
		return nil, engine.Wrap(engine.Internal, err, "list deposit requests")
	}
	var out []Deposit
	for _, rec := range recs {
		var d Deposit
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			return nil, engine.Wrap(engine.Internal, err, "decode deposit request %s", rec.Ref.ID)
		}
		if d.Status == StatusPending {
			out = append(out, d)
		}
	}
	return out, nil
}

// PendingWithdrawals lists unresolved withdrawal requests.
func (s *Service) PendingWithdrawals(ctx context.Context) ([]Withdrawal, error) {
	recs, err := s.Coord.Store.List(ctx, ColWithdrawals)
	if err != nil {
		return nil, engine.Wrap(engine.Internal, err, "list withdrawal requests")
	}
	var out []Withdrawal
	for _, rec := range recs {
		var w Withdrawal
		if err := json.Unmarshal(rec.Data, &w); err != nil {
			return nil, engine.Wrap(engine.Internal, err, "decode withdrawal request %s", rec.Ref.ID)
		}
		if w.Status == StatusPending {
			out = append(out, w)
		}
	}
	return out, nil
}
