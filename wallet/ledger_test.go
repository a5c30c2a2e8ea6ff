package wallet_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wager-engine/engine"
	"github.com/warp/wager-engine/engine/store"
	"github.com/warp/wager-engine/wallet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() (*wallet.Ledger, *engine.Coordinator) {
	mem := store.NewMemory()
	coord := &engine.Coordinator{Store: mem, BaseBackoff: time.Millisecond}
	return wallet.NewLedger(mem), coord
}

func money(v float64) engine.Money { return engine.NewMoney(v) }

// =============================================================================
// PROVISIONING
// =============================================================================

func TestProvision_CreatesZeroBalances(t *testing.T) {
	ledger, coord := newTestLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Provision(ctx, coord, "user-1"))

	w, err := ledger.UserWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", w.UserID)
	assert.True(t, w.Deposit.IsZero())
	assert.True(t, w.Winning.IsZero())
	assert.True(t, w.Bonus.IsZero())
}

func TestProvision_Twice_AlreadyExists(t *testing.T) {
	ledger, coord := newTestLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Provision(ctx, coord, "user-1"))
	err := ledger.Provision(ctx, coord, "user-1")

	assert.True(t, engine.IsKind(err, engine.AlreadyExists))
}

// =============================================================================
// USER ADJUSTMENTS
// =============================================================================

func TestAdjustUser_DepositAndWinning(t *testing.T) {
	// GIVEN: A provisioned wallet
	// WHEN: Deposit is credited and winning debited inside units of work
	// THEN: Buckets move independently

	ledger, coord := newTestLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Provision(ctx, coord, "user-1"))

	require.NoError(t, coord.Run(ctx, func(u *engine.Unit) error {
		if err := ledger.AdjustUser(u, "user-1", wallet.BucketDeposit, money(100.50)); err != nil {
			return err
		}
		return ledger.AdjustUser(u, "user-1", wallet.BucketWinning, money(20))
	}))
	require.NoError(t, coord.Run(ctx, func(u *engine.Unit) error {
		return ledger.AdjustUser(u, "user-1", wallet.BucketWinning, money(5).Neg())
	}))

	w, err := ledger.UserWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, w.Deposit.Equal(money(100.50)), "deposit = %s", w.Deposit)
	assert.True(t, w.Winning.Equal(money(15)), "winning = %s", w.Winning)
}

func TestAdjustUser_BonusBucket_Rejected(t *testing.T) {
	ledger, coord := newTestLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Provision(ctx, coord, "user-1"))

	err := coord.Run(ctx, func(u *engine.Unit) error {
		return ledger.AdjustUser(u, "user-1", wallet.BucketBonus, money(10))
	})
	assert.True(t, engine.IsKind(err, engine.InvalidArgument))
}

func TestAdjustUser_ConcurrentSameBucket_BothLand(t *testing.T) {
	// GIVEN: Many concurrent credits to one bucket
	// WHEN: Each runs as its own unit with no wallet read
	// THEN: All land without conflict retries fighting each other

	ledger, coord := newTestLedger()
	ctx := context.Background()
	require.NoError(t, ledger.Provision(ctx, coord, "user-1"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := coord.Run(ctx, func(u *engine.Unit) error {
				return ledger.AdjustUser(u, "user-1", wallet.BucketDeposit, money(1))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := ledger.UserWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, w.Deposit.Equal(money(20)), "deposit = %s", w.Deposit)
}

// =============================================================================
// ADMIN FLOAT
// =============================================================================

func TestAdjustAdmin_InvariantHolds(t *testing.T) {
	// GIVEN: An admin float topped up and spent in mixed order
	// WHEN: All units commit
	// THEN: current == total_added - total_used

	ledger, coord := newTestLedger()
	ctx := context.Background()

	require.NoError(t, coord.Run(ctx, func(u *engine.Unit) error {
		return ledger.CreateAdminWallet(u, "admin-1")
	}))

	steps := []engine.Money{
		money(500).Neg(), // top-up 500
		money(120),       // spend 120
		money(200).Neg(), // top-up 200
		money(80),        // spend 80
	}
	for _, delta := range steps {
		d := delta
		require.NoError(t, coord.Run(ctx, func(u *engine.Unit) error {
			ledger.AdjustAdmin(u, "admin-1", d)
			return nil
		}))
	}

	aw, err := ledger.AdminWalletRead(ctx, "admin-1")
	require.NoError(t, err)
	assert.True(t, aw.Current.Equal(money(500)), "current = %s", aw.Current)
	assert.True(t, aw.TotalAdded.Equal(money(700)), "total_added = %s", aw.TotalAdded)
	assert.True(t, aw.TotalUsed.Equal(money(200)), "total_used = %s", aw.TotalUsed)
	assert.True(t, aw.Current.Equal(aw.TotalAdded.Sub(aw.TotalUsed)))
}
