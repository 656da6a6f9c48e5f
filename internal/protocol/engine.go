// engine.go - The protocol engine and its administration operations.
//
// The engine is the single entry point for every state transition. It is
// invoked synchronously by the host, runs each operation to completion, and
// never mutates a record unless the whole operation succeeds. The host is
// responsible for authenticating signers and for record-level exclusivity;
// the engine enforces everything else.

package protocol

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/rs/zerolog"
)

// ProofVerifier is the zero-knowledge proof oracle. Given opaque proof bytes
// and the public inputs of a transfer, it accepts or rejects.
type ProofVerifier interface {
	VerifyTransfer(proof []byte, inputCommitments, inputNullifiers, outputCommitments []Hash) error
}

// RingVerifier is the ring-signature oracle. The message is the transaction
// digest; the ring is the eligible signer set.
type RingVerifier interface {
	VerifySignature(sig, msg []byte, ring [][]byte) error
}

// Guard is an optional withdrawal-pattern monitor consulted before deposits
// and withdrawal requests are admitted.
type Guard interface {
	NoteDeposit(id Address, now int64)
	CheckWithdrawal(id Address, now int64) error
}

// TokenLedger moves the base asset between custodial accounts. A transfer is
// a single atomic external call: if it fails the whole operation aborts.
type TokenLedger interface {
	Transfer(from, to Address, amount uint64) error
}

// Engine applies protocol operations against a record store.
type Engine struct {
	state  *State
	tokens TokenLedger
	proofs ProofVerifier
	rings  RingVerifier
	guard  Guard
	nowFn  func() int64
	log    zerolog.Logger
}

// NewEngine creates an engine over the given store and token ledger. Proof
// and ring oracles default to rejecting everything; wire real verifiers with
// SetProofVerifier and SetRingVerifier.
func NewEngine(state *State, tokens TokenLedger) *Engine {
	return &Engine{
		state:  state,
		tokens: tokens,
		nowFn:  func() int64 { return time.Now().Unix() },
		log:    zerolog.Nop(),
	}
}

// SetProofVerifier configures the proof oracle.
func (e *Engine) SetProofVerifier(v ProofVerifier) { e.proofs = v }

// SetRingVerifier configures the ring-signature oracle.
func (e *Engine) SetRingVerifier(v RingVerifier) { e.rings = v }

// SetGuard configures the optional withdrawal-pattern monitor.
func (e *Engine) SetGuard(g Guard) { e.guard = g }

// SetLogger configures structured logging. The default logger is a no-op.
func (e *Engine) SetLogger(log zerolog.Logger) { e.log = log }

// SetNowFunc overrides the time source. Primarily intended for tests to
// provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

// Protocol returns a copy of the singleton state for read-only callers.
func (e *Engine) Protocol() (*ProtocolState, error) {
	return e.state.Protocol()
}

// Point returns a point record for read-only callers.
func (e *Engine) Point(id Hash) (*FloatingPoint, bool, error) {
	return e.state.Point(id)
}

// NullifierUsed reports whether a nullifier has been consumed.
func (e *Engine) NullifierUsed(n Hash) (bool, error) {
	rec, ok, err := e.state.Nullifier(n)
	if err != nil {
		return false, err
	}
	return ok && rec.Used, nil
}

// Withdrawal returns a withdrawal request for read-only callers.
func (e *Engine) Withdrawal(id Hash) (*WithdrawalRequest, bool, error) {
	return e.state.Withdrawal(id)
}

// Initialize creates the protocol singleton. One-time; the authority signs.
func (e *Engine) Initialize(authority, treasury, assetID Address, depositFeeRate, withdrawalFeeRate uint16) error {
	exists, err := e.state.HasProtocol()
	if err != nil {
		return err
	}
	if exists {
		return ErrAccountAlreadyInitialized
	}
	if depositFeeRate > MaxFeeRateBps || withdrawalFeeRate > MaxFeeRateBps {
		return fmt.Errorf("%w: fee rate above %d bps", ErrInvalidAmount, MaxFeeRateBps)
	}

	st := newStage(e.state)
	st.putProtocol(&ProtocolState{
		Initialized:       true,
		Authority:         authority,
		Treasury:          treasury,
		AssetID:           assetID,
		DepositFeeRate:    depositFeeRate,
		WithdrawalFeeRate: withdrawalFeeRate,
	})
	if err := st.commit(); err != nil {
		return err
	}
	e.log.Info().
		Uint16("deposit_fee_bps", depositFeeRate).
		Uint16("withdrawal_fee_bps", withdrawalFeeRate).
		Msg("protocol initialized")
	return nil
}

// UpdateFees changes the fee rates. Authority only.
func (e *Engine) UpdateFees(signer Address, depositFeeRate, withdrawalFeeRate uint16) error {
	ps, err := e.state.Protocol()
	if err != nil {
		return err
	}
	if signer != ps.Authority {
		return ErrUnauthorized
	}
	if depositFeeRate > MaxFeeRateBps || withdrawalFeeRate > MaxFeeRateBps {
		return fmt.Errorf("%w: fee rate above %d bps", ErrInvalidAmount, MaxFeeRateBps)
	}

	ps.DepositFeeRate = depositFeeRate
	ps.WithdrawalFeeRate = withdrawalFeeRate
	st := newStage(e.state)
	st.putProtocol(ps)
	if err := st.commit(); err != nil {
		return err
	}
	e.log.Info().
		Uint16("deposit_fee_bps", depositFeeRate).
		Uint16("withdrawal_fee_bps", withdrawalFeeRate).
		Msg("fees updated")
	return nil
}

// SetPaused toggles the pause flag. Authority only. While paused, every
// value-moving operation is rejected; administration stays available.
func (e *Engine) SetPaused(signer Address, paused bool) error {
	ps, err := e.state.Protocol()
	if err != nil {
		return err
	}
	if signer != ps.Authority {
		return ErrUnauthorized
	}

	ps.Paused = paused
	st := newStage(e.state)
	st.putProtocol(ps)
	if err := st.commit(); err != nil {
		return err
	}
	e.log.Info().Bool("paused", paused).Msg("pause flag set")
	return nil
}

// feeFor computes floor(amount * rateBps / 10000) in 128-bit intermediate
// precision so the product cannot overflow.
func feeFor(amount uint64, rateBps uint16) uint64 {
	hi, lo := bits.Mul64(amount, uint64(rateBps))
	fee, _ := bits.Div64(hi, lo, FeeDenominator)
	return fee
}

// checkedAdd adds two counters and fails with ErrInvalidAmount on overflow.
// Counters never wrap.
func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: counter overflow", ErrInvalidAmount)
	}
	return sum, nil
}
