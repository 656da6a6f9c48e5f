package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"fpp/internal/storage"
)

var (
	testAuthority = Address{0xa1}
	testTreasury  = Address{0xb2}
	testAsset     = Address{0xc3}
)

// memLedger mirrors the token package's in-memory ledger. The protocol
// package cannot import it without a cycle in tests, so the few lines live
// here too.
type memLedger struct {
	balances map[Address]uint64
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[Address]uint64)}
}

func (l *memLedger) credit(a Address, amount uint64) { l.balances[a] += amount }

func (l *memLedger) Transfer(from, to Address, amount uint64) error {
	if l.balances[from] < amount {
		return ErrInsufficientBalance
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// failingLedger aborts every transfer, for atomicity tests.
type failingLedger struct{}

func (failingLedger) Transfer(Address, Address, uint64) error {
	return errors.New("settlement rail down")
}

// acceptProofs and acceptRings are permissive oracles for tests that
// exercise ledger semantics rather than cryptography.
type acceptProofs struct{}

func (acceptProofs) VerifyTransfer([]byte, []Hash, []Hash, []Hash) error { return nil }

type rejectProofs struct{}

func (rejectProofs) VerifyTransfer([]byte, []Hash, []Hash, []Hash) error {
	return errors.New("bad proof")
}

type acceptRings struct{}

func (acceptRings) VerifySignature([]byte, []byte, [][]byte) error { return nil }

type rejectRings struct{}

func (rejectRings) VerifySignature([]byte, []byte, [][]byte) error {
	return errors.New("bad ring signature")
}

// newTestEngine builds an initialized engine over a fresh MemDB with a fixed
// clock starting at now=1000 and 100 bps / 50 bps fees.
func newTestEngine(t *testing.T, tokens TokenLedger) (*Engine, *int64) {
	t.Helper()
	e := NewEngine(NewState(storage.NewMemDB()), tokens)
	now := int64(1000)
	e.SetNowFunc(func() int64 { return now })
	e.SetProofVerifier(acceptProofs{})
	e.SetRingVerifier(acceptRings{})
	require.NoError(t, e.Initialize(testAuthority, testTreasury, testAsset, 100, 50))
	return e, &now
}

func TestInitialize(t *testing.T) {
	e := NewEngine(NewState(storage.NewMemDB()), newMemLedger())

	_, err := e.Protocol()
	require.ErrorIs(t, err, ErrAccountNotInitialized)

	require.NoError(t, e.Initialize(testAuthority, testTreasury, testAsset, 100, 50))
	ps, err := e.Protocol()
	require.NoError(t, err)
	require.True(t, ps.Initialized)
	require.Equal(t, testAuthority, ps.Authority)
	require.Equal(t, uint16(100), ps.DepositFeeRate)
	require.False(t, ps.Paused)

	require.ErrorIs(t, e.Initialize(testAuthority, testTreasury, testAsset, 100, 50), ErrAccountAlreadyInitialized)
}

func TestInitializeRejectsExcessiveFees(t *testing.T) {
	e := NewEngine(NewState(storage.NewMemDB()), newMemLedger())
	require.ErrorIs(t, e.Initialize(testAuthority, testTreasury, testAsset, 501, 0), ErrInvalidAmount)
	require.ErrorIs(t, e.Initialize(testAuthority, testTreasury, testAsset, 0, 501), ErrInvalidAmount)
}

func TestUpdateFees(t *testing.T) {
	e, _ := newTestEngine(t, newMemLedger())

	require.ErrorIs(t, e.UpdateFees(Address{0xff}, 10, 10), ErrUnauthorized)
	require.ErrorIs(t, e.UpdateFees(testAuthority, 501, 10), ErrInvalidAmount)

	require.NoError(t, e.UpdateFees(testAuthority, 10, 20))
	ps, err := e.Protocol()
	require.NoError(t, err)
	require.Equal(t, uint16(10), ps.DepositFeeRate)
	require.Equal(t, uint16(20), ps.WithdrawalFeeRate)
}

func TestSetPaused(t *testing.T) {
	e, _ := newTestEngine(t, newMemLedger())

	require.ErrorIs(t, e.SetPaused(Address{0xff}, true), ErrUnauthorized)
	require.NoError(t, e.SetPaused(testAuthority, true))
	ps, err := e.Protocol()
	require.NoError(t, err)
	require.True(t, ps.Paused)

	// Administration stays available while paused.
	require.NoError(t, e.UpdateFees(testAuthority, 0, 0))
	require.NoError(t, e.SetPaused(testAuthority, false))
}

func TestErrCodeOrdering(t *testing.T) {
	require.Equal(t, 0, ErrCode(ErrInvalidInstruction))
	require.Equal(t, 4, ErrCode(ErrNullifierAlreadyUsed))
	require.Equal(t, -1, ErrCode(errors.New("unrelated")))
	// Wrapped sentinels still map.
	require.Equal(t, 4, ErrCode(errWrap(ErrNullifierAlreadyUsed)))
}

func errWrap(err error) error { return errors.Join(errors.New("context"), err) }

func TestCheckedAdd(t *testing.T) {
	sum, err := checkedAdd(1, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), sum)
	_, err = checkedAdd(^uint64(0), 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
}
