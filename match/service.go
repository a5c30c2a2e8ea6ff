package match

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/wager-engine/engine"
	"github.com/warp/wager-engine/wallet"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config carries the tunables of the escrow flow. The rake is a global
// runtime constant, not per-match.
type Config struct {
	// Rake is the platform's cut of the pot, in [0, 1). Default 0.10.
	Rake decimal.Decimal

	// DefaultMaxPlayers applies when a host does not choose a pool size.
	DefaultMaxPlayers int
}

func DefaultConfig() Config {
	return Config{
		Rake:              decimal.NewFromFloat(0.10),
		DefaultMaxPlayers: 2,
	}
}

const (
	minPlayers = 2
	maxPlayers = 4
)

// =============================================================================
// SERVICE
// =============================================================================

// Service drives the match state machine. Every operation is one unit of
// work: state transition and balance movement commit together or not at all.
type Service struct {
	Coord   *engine.Coordinator
	Wallets *wallet.Ledger
	Clock   engine.Clock
	Config  Config
}

func NewService(coord *engine.Coordinator, wallets *wallet.Ledger, clock engine.Clock, cfg Config) *Service {
	defaults := DefaultConfig()
	if cfg.Rake.IsZero() {
		cfg.Rake = defaults.Rake
	}
	if cfg.DefaultMaxPlayers == 0 {
		cfg.DefaultMaxPlayers = defaults.DefaultMaxPlayers
	}
	return &Service{Coord: coord, Wallets: wallets, Clock: clock, Config: cfg}
}

// Create opens a match hosted by hostID and escrows the host's fee.
// poolSize 0 means the configured default.
func (s *Service) Create(ctx context.Context, hostID string, fee engine.Money, poolSize int) (string, error) {
	if !fee.IsPositive() {
		return "", engine.Errorf(engine.InvalidArgument, "fee must be positive, got %s", fee)
	}
	if poolSize == 0 {
		poolSize = s.Config.DefaultMaxPlayers
	}
	if poolSize < minPlayers || poolSize > maxPlayers {
		return "", engine.Errorf(engine.InvalidArgument, "pool size must be between %d and %d, got %d", minPlayers, maxPlayers, poolSize)
	}

	// Generated once so retried units reuse the same id.
	id := uuid.NewString()

	err := s.Coord.Run(ctx, func(u *engine.Unit) error {
		w, err := s.Wallets.UserWalletTx(ctx, u, hostID)
		if err != nil {
			return err
		}
		if w.Deposit.LessThan(fee) {
			return engine.Errorf(engine.FailedPrecondition,
				"insufficient deposit balance: have %s, need %s", w.Deposit, fee)
		}

		m := &Match{
			ID:          id,
			HostID:      hostID,
			Fee:         fee,
			MaxPlayers:  poolSize,
			Players:     []string{hostID},
			PlayerCount: 1,
			Status:      StatusPending,
			CreatedAt:   s.Clock.Now(),
		}
		if err := u.Create(ColMatches, engine.DocID(id), m); err != nil {
			return err
		}
		return s.Wallets.AdjustUser(u, hostID, wallet.BucketDeposit, fee.Neg())
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Join adds userID to a pending match and escrows their fee. The join
// that fills the pool flips the match to inprogress, so a racing join
// retries into a non-pending match and fails the precondition.
func (s *Service) Join(ctx context.Context, userID, matchID string) error {
	return s.Coord.Run(ctx, func(u *engine.Unit) error {
		m, err := s.load(ctx, u, matchID)
		if err != nil {
			return err
		}
		if m.HasPlayer(userID) {
			return engine.Errorf(engine.AlreadyExists, "already joined match %s", matchID)
		}
		if m.Status != StatusPending {
			return engine.Errorf(engine.FailedPrecondition, "match %s is not open for joining", matchID)
		}

		w, err := s.Wallets.UserWalletTx(ctx, u, userID)
		if err != nil {
			return err
		}
		if w.Deposit.LessThan(m.Fee) {
			return engine.Errorf(engine.FailedPrecondition,
				"insufficient deposit balance: have %s, need %s", w.Deposit, m.Fee)
		}

		m.Players = append(m.Players, userID)
		m.PlayerCount++
		if m.PlayerCount >= m.MaxPlayers {
			m.Status = StatusInProgress
		}
		if err := u.Put(ColMatches, engine.DocID(matchID), m); err != nil {
			return err
		}
		return s.Wallets.AdjustUser(u, userID, wallet.BucketDeposit, m.Fee.Neg())
	})
}

// SubmitResult completes the match and pays the pot, minus the rake, into
// the winner's winning bucket.
func (s *Service) SubmitResult(ctx context.Context, callerID, matchID, winnerID string) error {
	return s.Coord.Run(ctx, func(u *engine.Unit) error {
		m, err := s.load(ctx, u, matchID)
		if err != nil {
			return err
		}
		if !m.Open() {
			return engine.Errorf(engine.FailedPrecondition, "match %s is already %s", matchID, m.Status)
		}
		if !m.HasPlayer(callerID) {
			return engine.Errorf(engine.PermissionDenied, "only players may submit a result")
		}
		if !m.HasPlayer(winnerID) {
			return engine.Errorf(engine.InvalidArgument, "winner %s is not a player", winnerID)
		}

		prize := s.prize(m)
		m.Status = StatusCompleted
		m.WinnerID = winnerID
		if err := u.Put(ColMatches, engine.DocID(matchID), m); err != nil {
			return err
		}
		return s.Wallets.AdjustUser(u, winnerID, wallet.BucketWinning, prize)
	})
}

// Cancel refunds the host's fee and closes a match nobody else joined.
func (s *Service) Cancel(ctx context.Context, callerID, matchID string) error {
	return s.Coord.Run(ctx, func(u *engine.Unit) error {
		m, err := s.load(ctx, u, matchID)
		if err != nil {
			return err
		}
		if callerID != m.HostID {
			return engine.Errorf(engine.PermissionDenied, "only the host may cancel")
		}
		if m.Status != StatusPending || m.PlayerCount > 1 {
			return engine.Errorf(engine.FailedPrecondition, "match %s can no longer be cancelled", matchID)
		}

		m.Status = StatusCancelled
		if err := u.Put(ColMatches, engine.DocID(matchID), m); err != nil {
			return err
		}
		return s.Wallets.AdjustUser(u, m.HostID, wallet.BucketDeposit, m.Fee)
	})
}

// Get reads a match outside any unit of work.
func (s *Service) Get(ctx context.Context, matchID string) (*Match, error) {
	rec, err := s.Coord.Store.Get(ctx, engine.NewRef(ColMatches, engine.DocID(matchID)))
	if err != nil {
		if err == engine.ErrDocMissing {
			return nil, engine.Wrap(engine.NotFound, err, "match %s", matchID)
		}
		return nil, engine.Wrap(engine.Internal, err, "read match %s", matchID)
	}
	var m Match
	if err := json.Unmarshal(rec.Data, &m); err != nil {
		return nil, engine.Wrap(engine.Internal, err, "decode match %s", matchID)
	}
	return &m, nil
}

// prize is the pot net of rake: fee x playerCount x (1 - rake). One rule
// for every pool size.
func (s *Service) prize(m *Match) engine.Money {
	pot := m.Fee.Mul(decimal.NewFromInt(int64(m.PlayerCount)))
	return pot.Mul(decimal.NewFromInt(1).Sub(s.Config.Rake))
}

func (s *Service) load(ctx context.Context, u *engine.Unit, matchID string) (*Match, error) {
	var m Match
	if err := u.Get(ctx, ColMatches, engine.DocID(matchID), &m); err != nil {
		if engine.IsKind(err, engine.NotFound) {
			return nil, engine.Errorf(engine.NotFound, "match %s does not exist", matchID)
		}
		return nil, err
	}
	return &m, nil
}
