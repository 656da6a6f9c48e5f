package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithdrawalLifecycle(t *testing.T) {
	ledger := newMemLedger()
	e, now := newTestEngine(t, ledger)
	requester := Address{0xf1}
	depositPoints(t, e, now, requester, ledger, []Hash{{1}, {2}})
	// Deposits fund the treasury net of the deposit fee, so give it float to
	// cover gross-based payouts.
	ledger.credit(testTreasury, PointSize)
	treasuryBefore := ledger.balances[testTreasury]

	key, err := e.RequestWithdrawal(requester, 0, []Hash{{1}, {2}}, []Hash{{0x10}, {0x11}})
	require.NoError(t, err)
	require.Equal(t, WithdrawalKey(requester, 0), key)

	w, ok, err := e.Withdrawal(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2*PointSize, w.Amount)
	require.Equal(t, *now+WithdrawalCooldown, w.UnlockTime)
	require.False(t, w.Terminal())

	// Points consumed immediately, nullifiers not yet burned.
	point, _, err := e.Point(Hash{1})
	require.NoError(t, err)
	require.False(t, point.Active)
	used, err := e.NullifierUsed(Hash{0x10})
	require.NoError(t, err)
	require.False(t, used)

	// One second before the unlock: not ready.
	*now = w.UnlockTime - 1
	require.ErrorIs(t, e.CompleteWithdrawal(requester, key), ErrWithdrawalNotReady)

	// Exactly at the unlock: ready. 20_000_000 at 50 bps -> fee 100_000.
	*now = w.UnlockTime
	require.NoError(t, e.CompleteWithdrawal(requester, key))
	require.Equal(t, treasuryBefore-19_900_000, ledger.balances[testTreasury])
	require.Equal(t, uint64(19_900_000), ledger.balances[requester])

	ps, err := e.Protocol()
	require.NoError(t, err)
	require.Equal(t, 2*PointSize, ps.TotalWithdrawn)
	// The withdrawal fee stays in the treasury; it is not added to TotalFees.
	require.Equal(t, uint64(200_000), ps.TotalFees)

	used, err = e.NullifierUsed(Hash{0x10})
	require.NoError(t, err)
	require.True(t, used)

	// Terminal requests reject further transitions.
	require.ErrorIs(t, e.CompleteWithdrawal(requester, key), ErrUnauthorized)
	require.ErrorIs(t, e.CancelWithdrawal(requester, key, false), ErrUnauthorized)
}

func TestRequestWithdrawalValidation(t *testing.T) {
	ledger := newMemLedger()
	e, now := newTestEngine(t, ledger)
	requester := Address{0xf2}
	depositPoints(t, e, now, requester, ledger, []Hash{{1}, {2}})

	_, err := e.RequestWithdrawal(requester, 0, nil, nil)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = e.RequestWithdrawal(requester, 0, []Hash{{1}, {2}}, []Hash{{0x10}})
	require.ErrorIs(t, err, ErrInvalidCommitment)

	_, err = e.RequestWithdrawal(requester, 0, []Hash{{1}, {1}}, []Hash{{0x10}, {0x11}})
	require.ErrorIs(t, err, ErrInvalidCommitment)

	_, err = e.RequestWithdrawal(requester, 0, []Hash{{0x99}}, []Hash{{0x10}})
	require.ErrorIs(t, err, ErrInvalidAccount)

	// Key collision: same requester and nonce twice.
	_, err = e.RequestWithdrawal(requester, 7, []Hash{{1}}, []Hash{{0x10}})
	require.NoError(t, err)
	_, err = e.RequestWithdrawal(requester, 7, []Hash{{2}}, []Hash{{0x11}})
	require.ErrorIs(t, err, ErrAccountAlreadyInitialized)
}

func TestRequestWithdrawalPointCap(t *testing.T) {
	e, _ := newTestEngine(t, newMemLedger())
	requester := Address{0xf7}

	// One past the cap must be rejected before any point is consumed; the
	// record format cannot express a longer list.
	points := make([]Hash, MaxWithdrawalPoints+1)
	nullifiers := make([]Hash, MaxWithdrawalPoints+1)
	for i := range points {
		binary.LittleEndian.PutUint64(points[i][:], uint64(i))
		binary.LittleEndian.PutUint64(nullifiers[i][:], uint64(i))
		nullifiers[i][31] = 0xff
	}
	_, err := e.RequestWithdrawal(requester, 0, points, nullifiers)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRequestWithdrawalImmaturePoint(t *testing.T) {
	ledger := newMemLedger()
	e, _ := newTestEngine(t, ledger)
	requester := Address{0xf3}
	ledger.credit(requester, PointSize)
	require.NoError(t, e.Deposit(requester, PointSize, []Hash{{1}}))

	_, err := e.RequestWithdrawal(requester, 0, []Hash{{1}}, []Hash{{0x10}})
	require.ErrorIs(t, err, ErrPointLocked)
}

func TestCompleteWithdrawalAuthorization(t *testing.T) {
	ledger := newMemLedger()
	e, now := newTestEngine(t, ledger)
	requester := Address{0xf4}
	depositPoints(t, e, now, requester, ledger, []Hash{{1}})
	ledger.credit(testTreasury, PointSize)

	key, err := e.RequestWithdrawal(requester, 0, []Hash{{1}}, []Hash{{0x10}})
	require.NoError(t, err)
	*now += WithdrawalCooldown

	require.ErrorIs(t, e.CompleteWithdrawal(Address{0xff}, key), ErrUnauthorized)
	require.ErrorIs(t, e.CompleteWithdrawal(requester, Hash{0x77}), ErrAccountNotInitialized)
	require.NoError(t, e.CompleteWithdrawal(requester, key))
}

func TestCancelWithdrawalReactivatesPoints(t *testing.T) {
	ledger := newMemLedger()
	e, now := newTestEngine(t, ledger)
	requester := Address{0xf5}
	depositPoints(t, e, now, requester, ledger, []Hash{{1}, {2}})

	key, err := e.RequestWithdrawal(requester, 0, []Hash{{1}, {2}}, []Hash{{0x10}, {0x11}})
	require.NoError(t, err)

	require.NoError(t, e.CancelWithdrawal(requester, key, false))

	// Points return active under a fresh maturity lock.
	for _, id := range []Hash{{1}, {2}} {
		point, _, err := e.Point(id)
		require.NoError(t, err)
		require.True(t, point.Active)
		require.Equal(t, *now+MaturityDelay, point.LockedUntil)
	}
	// Nullifiers never burned: the points can be spent once matured.
	used, err := e.NullifierUsed(Hash{0x10})
	require.NoError(t, err)
	require.False(t, used)

	*now += MaturityDelay
	p := basicPayment(requester, []Hash{{1}, {2}}, []Hash{{0x10}, {0x11}}, []Hash{{0x20}, {0x21}})
	require.NoError(t, e.PrivacyPayment(p))
}

func TestCancelWithdrawalPermanent(t *testing.T) {
	ledger := newMemLedger()
	e, now := newTestEngine(t, ledger)
	requester := Address{0xf6}
	depositPoints(t, e, now, requester, ledger, []Hash{{1}})

	key, err := e.RequestWithdrawal(requester, 0, []Hash{{1}}, []Hash{{0x10}})
	require.NoError(t, err)

	require.NoError(t, e.CancelWithdrawal(requester, key, true))

	// Point stays inactive forever; nullifier burned.
	point, _, err := e.Point(Hash{1})
	require.NoError(t, err)
	require.False(t, point.Active)
	used, err := e.NullifierUsed(Hash{0x10})
	require.NoError(t, err)
	require.True(t, used)

	// No token movement and no counter change.
	require.Zero(t, ledger.balances[requester])
	ps, err := e.Protocol()
	require.NoError(t, err)
	require.Zero(t, ps.TotalWithdrawn)
}

func TestCompleteWithdrawalAtomicOnTransferFailure(t *testing.T) {
	ledger := newMemLedger()
	e, now := newTestEngine(t, ledger)
	requester := Address{0xf7}
	depositPoints(t, e, now, requester, ledger, []Hash{{1}})

	key, err := e.RequestWithdrawal(requester, 0, []Hash{{1}}, []Hash{{0x10}})
	require.NoError(t, err)
	*now += WithdrawalCooldown

	// Drain the treasury so the payout transfer fails.
	treasury := ledger.balances[testTreasury]
	require.NoError(t, ledger.Transfer(testTreasury, Address{0xee}, treasury))

	require.ErrorIs(t, e.CompleteWithdrawal(requester, key), ErrInsufficientBalance)

	// Request still pending, nullifier still unused.
	w, _, err := e.Withdrawal(key)
	require.NoError(t, err)
	require.False(t, w.Terminal())
	used, err := e.NullifierUsed(Hash{0x10})
	require.NoError(t, err)
	require.False(t, used)
}

func TestRequestWithdrawalPausedAndGuarded(t *testing.T) {
	ledger := newMemLedger()
	e, now := newTestEngine(t, ledger)
	requester := Address{0xf8}
	depositPoints(t, e, now, requester, ledger, []Hash{{1}})

	require.NoError(t, e.SetPaused(testAuthority, true))
	_, err := e.RequestWithdrawal(requester, 0, []Hash{{1}}, []Hash{{0x10}})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.NoError(t, e.SetPaused(testAuthority, false))

	e.SetGuard(denyGuard{})
	_, err = e.RequestWithdrawal(requester, 0, []Hash{{1}}, []Hash{{0x10}})
	require.ErrorIs(t, err, ErrFlashLoanDetected)

	e.SetGuard(nil)
	_, err = e.RequestWithdrawal(requester, 0, []Hash{{1}}, []Hash{{0x10}})
	require.NoError(t, err)
}

// denyGuard rejects every withdrawal request.
type denyGuard struct{}

func (denyGuard) NoteDeposit(Address, int64) {}

func (denyGuard) CheckWithdrawal(Address, int64) error { return ErrFlashLoanDetected }
