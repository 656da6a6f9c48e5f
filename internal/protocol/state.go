// state.go - Persisted record types for the floating-point protocol.
//
// Layouts are fixed-width, versionless binary structures: booleans as one
// byte, 32-byte keys, little-endian u64 amounts, little-endian i64 timestamps
// and little-endian u16 basis-point rates. Field order and widths match the
// previously persisted state and must not change.

package protocol

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"
)

// Protocol parameters.
const (
	// PointSize is the base-asset value one unit of mass represents.
	PointSize uint64 = 10_000_000

	// MinDeposit and MaxDeposit bound a single deposit, in base-asset units.
	MinDeposit uint64 = 10_000_000
	MaxDeposit uint64 = 100_000_000_000

	// MaturityDelay is the number of seconds a freshly created point stays
	// locked before it can be spent or withdrawn.
	MaturityDelay int64 = 12

	// WithdrawalCooldown is the number of seconds between a withdrawal
	// request and the earliest completion.
	WithdrawalCooldown int64 = 86_400

	// MaxFeeRateBps caps both fee rates at 5%.
	MaxFeeRateBps uint16 = 500

	// FeeDenominator converts basis points to a fraction.
	FeeDenominator uint64 = 10_000
)

// Hash is a 32-byte commitment, nullifier, or record key.
type Hash [32]byte

// Address identifies a signer or custodial account.
type Address [32]byte

func (h Hash) String() string    { return fmt.Sprintf("%x", h[:]) }
func (a Address) String() string { return fmt.Sprintf("%x", a[:]) }

// ProtocolState is the process-wide singleton holding parameters and running
// totals. It is created once by Initialize and mutated by every value-moving
// operation.
type ProtocolState struct {
	Initialized       bool
	Authority         Address
	Treasury          Address
	AssetID           Address
	TotalDeposited    uint64
	TotalWithdrawn    uint64
	TotalFees         uint64
	TotalPoints       uint64
	DepositFeeRate    uint16 // basis points (100 = 1%)
	WithdrawalFeeRate uint16
	Paused            bool
}

const protocolStateLen = 1 + 32 + 32 + 32 + 8 + 8 + 8 + 8 + 2 + 2 + 1

// FloatingPoint is one shielded value unit. It is created active and locked,
// and turns inactive exactly once: consumed by a privacy payment or exited
// through a withdrawal request.
type FloatingPoint struct {
	Initialized bool
	Commitment  Hash
	CreatedAt   int64
	Mass        uint64
	Active      bool
	Creator     Address
	LockedUntil int64
}

const floatingPointLen = 1 + 32 + 8 + 8 + 1 + 32 + 8

// NullifierRecord marks a spend-proof token as consumed. Used transitions
// false to true at most once and never resets.
type NullifierRecord struct {
	Initialized bool
	Nullifier   Hash
	Used        bool
	Timestamp   int64
}

const nullifierRecordLen = 1 + 32 + 1 + 8

// WithdrawalRequest is the pending exit of a set of points. After the fixed
// prefix it carries count-prefixed lists of the point ids and nullifiers it
// references, so completion and cancellation do not trust caller-supplied
// account lists.
type WithdrawalRequest struct {
	Initialized bool
	Requester   Address
	Amount      uint64
	RequestTime int64
	UnlockTime  int64
	Completed   bool
	Cancelled   bool
	Points      []Hash
	Nullifiers  []Hash
}

const withdrawalRequestPrefixLen = 1 + 32 + 8 + 8 + 8 + 1 + 1

// MaxWithdrawalPoints caps the point list of a single request. The record
// encodes list lengths with a u16 prefix, so anything larger could not round
// trip through the store.
const MaxWithdrawalPoints = 65_535

// Terminal reports whether the request has reached a terminal state.
func (w *WithdrawalRequest) Terminal() bool {
	return w.Completed || w.Cancelled
}

// WithdrawalKey derives the record key for a withdrawal request from the
// requester identity and a caller-chosen nonce.
func WithdrawalKey(requester Address, nonce uint64) Hash {
	var buf [40]byte
	copy(buf[:32], requester[:])
	binary.LittleEndian.PutUint64(buf[32:], nonce)
	return Hash(blake3.Sum256(buf[:]))
}

// TransferDigest is the message a privacy payment's ring signature covers.
func TransferDigest(inputNullifiers, outputCommitments []Hash, proof []byte) []byte {
	h := blake3.New(32, nil)
	for _, n := range inputNullifiers {
		h.Write(n[:])
	}
	for _, c := range outputCommitments {
		h.Write(c[:])
	}
	h.Write(proof)
	return h.Sum(nil)
}

func putBool(buf []byte, v bool) {
	if v {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
}

func readBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: invalid boolean byte %d", ErrInvalidAccount, b)
}

// Marshal encodes the protocol state into its fixed-width layout.
func (s *ProtocolState) Marshal() []byte {
	buf := make([]byte, protocolStateLen)
	putBool(buf[0:], s.Initialized)
	copy(buf[1:33], s.Authority[:])
	copy(buf[33:65], s.Treasury[:])
	copy(buf[65:97], s.AssetID[:])
	binary.LittleEndian.PutUint64(buf[97:], s.TotalDeposited)
	binary.LittleEndian.PutUint64(buf[105:], s.TotalWithdrawn)
	binary.LittleEndian.PutUint64(buf[113:], s.TotalFees)
	binary.LittleEndian.PutUint64(buf[121:], s.TotalPoints)
	binary.LittleEndian.PutUint16(buf[129:], s.DepositFeeRate)
	binary.LittleEndian.PutUint16(buf[131:], s.WithdrawalFeeRate)
	putBool(buf[133:], s.Paused)
	return buf
}

// UnmarshalProtocolState decodes a protocol state record.
func UnmarshalProtocolState(data []byte) (*ProtocolState, error) {
	if len(data) != protocolStateLen {
		return nil, fmt.Errorf("%w: protocol state is %d bytes, want %d", ErrInvalidAccount, len(data), protocolStateLen)
	}
	var s ProtocolState
	var err error
	if s.Initialized, err = readBool(data[0]); err != nil {
		return nil, err
	}
	copy(s.Authority[:], data[1:33])
	copy(s.Treasury[:], data[33:65])
	copy(s.AssetID[:], data[65:97])
	s.TotalDeposited = binary.LittleEndian.Uint64(data[97:])
	s.TotalWithdrawn = binary.LittleEndian.Uint64(data[105:])
	s.TotalFees = binary.LittleEndian.Uint64(data[113:])
	s.TotalPoints = binary.LittleEndian.Uint64(data[121:])
	s.DepositFeeRate = binary.LittleEndian.Uint16(data[129:])
	s.WithdrawalFeeRate = binary.LittleEndian.Uint16(data[131:])
	if s.Paused, err = readBool(data[133]); err != nil {
		return nil, err
	}
	return &s, nil
}

// Marshal encodes the point into its fixed-width layout.
func (p *FloatingPoint) Marshal() []byte {
	buf := make([]byte, floatingPointLen)
	putBool(buf[0:], p.Initialized)
	copy(buf[1:33], p.Commitment[:])
	binary.LittleEndian.PutUint64(buf[33:], uint64(p.CreatedAt))
	binary.LittleEndian.PutUint64(buf[41:], p.Mass)
	putBool(buf[49:], p.Active)
	copy(buf[50:82], p.Creator[:])
	binary.LittleEndian.PutUint64(buf[82:], uint64(p.LockedUntil))
	return buf
}

// UnmarshalFloatingPoint decodes a floating point record.
func UnmarshalFloatingPoint(data []byte) (*FloatingPoint, error) {
	if len(data) != floatingPointLen {
		return nil, fmt.Errorf("%w: point is %d bytes, want %d", ErrInvalidAccount, len(data), floatingPointLen)
	}
	var p FloatingPoint
	var err error
	if p.Initialized, err = readBool(data[0]); err != nil {
		return nil, err
	}
	copy(p.Commitment[:], data[1:33])
	p.CreatedAt = int64(binary.LittleEndian.Uint64(data[33:]))
	p.Mass = binary.LittleEndian.Uint64(data[41:])
	if p.Active, err = readBool(data[49]); err != nil {
		return nil, err
	}
	copy(p.Creator[:], data[50:82])
	p.LockedUntil = int64(binary.LittleEndian.Uint64(data[82:]))
	return &p, nil
}

// Marshal encodes the nullifier record into its fixed-width layout.
func (n *NullifierRecord) Marshal() []byte {
	buf := make([]byte, nullifierRecordLen)
	putBool(buf[0:], n.Initialized)
	copy(buf[1:33], n.Nullifier[:])
	putBool(buf[33:], n.Used)
	binary.LittleEndian.PutUint64(buf[34:], uint64(n.Timestamp))
	return buf
}

// UnmarshalNullifierRecord decodes a nullifier record.
func UnmarshalNullifierRecord(data []byte) (*NullifierRecord, error) {
	if len(data) != nullifierRecordLen {
		return nil, fmt.Errorf("%w: nullifier record is %d bytes, want %d", ErrInvalidAccount, len(data), nullifierRecordLen)
	}
	var n NullifierRecord
	var err error
	if n.Initialized, err = readBool(data[0]); err != nil {
		return nil, err
	}
	copy(n.Nullifier[:], data[1:33])
	if n.Used, err = readBool(data[33]); err != nil {
		return nil, err
	}
	n.Timestamp = int64(binary.LittleEndian.Uint64(data[34:]))
	return &n, nil
}

// Marshal encodes the request: fixed prefix, then u16-count-prefixed point
// and nullifier lists. Lists longer than MaxWithdrawalPoints cannot be
// expressed in the count prefix; the engine enforces the cap before a request
// is ever staged, so exceeding it here is a programming error.
func (w *WithdrawalRequest) Marshal() []byte {
	if len(w.Points) > MaxWithdrawalPoints || len(w.Nullifiers) > MaxWithdrawalPoints {
		panic("protocol: withdrawal request list exceeds u16 count prefix")
	}
	buf := make([]byte, withdrawalRequestPrefixLen+2+32*len(w.Points)+2+32*len(w.Nullifiers))
	putBool(buf[0:], w.Initialized)
	copy(buf[1:33], w.Requester[:])
	binary.LittleEndian.PutUint64(buf[33:], w.Amount)
	binary.LittleEndian.PutUint64(buf[41:], uint64(w.RequestTime))
	binary.LittleEndian.PutUint64(buf[49:], uint64(w.UnlockTime))
	putBool(buf[57:], w.Completed)
	putBool(buf[58:], w.Cancelled)
	off := withdrawalRequestPrefixLen
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(w.Points)))
	off += 2
	for _, p := range w.Points {
		copy(buf[off:], p[:])
		off += 32
	}
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(w.Nullifiers)))
	off += 2
	for _, n := range w.Nullifiers {
		copy(buf[off:], n[:])
		off += 32
	}
	return buf
}

// UnmarshalWithdrawalRequest decodes a withdrawal request record.
func UnmarshalWithdrawalRequest(data []byte) (*WithdrawalRequest, error) {
	if len(data) < withdrawalRequestPrefixLen+4 {
		return nil, fmt.Errorf("%w: withdrawal request is %d bytes", ErrInvalidAccount, len(data))
	}
	var w WithdrawalRequest
	var err error
	if w.Initialized, err = readBool(data[0]); err != nil {
		return nil, err
	}
	copy(w.Requester[:], data[1:33])
	w.Amount = binary.LittleEndian.Uint64(data[33:])
	w.RequestTime = int64(binary.LittleEndian.Uint64(data[41:]))
	w.UnlockTime = int64(binary.LittleEndian.Uint64(data[49:]))
	if w.Completed, err = readBool(data[57]); err != nil {
		return nil, err
	}
	if w.Cancelled, err = readBool(data[58]); err != nil {
		return nil, err
	}
	off := withdrawalRequestPrefixLen
	points, off, err := readHashList(data, off)
	if err != nil {
		return nil, err
	}
	nullifiers, off, err := readHashList(data, off)
	if err != nil {
		return nil, err
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes in withdrawal request", ErrInvalidAccount, len(data)-off)
	}
	w.Points = points
	w.Nullifiers = nullifiers
	return &w, nil
}

func readHashList(data []byte, off int) ([]Hash, int, error) {
	if len(data) < off+2 {
		return nil, 0, fmt.Errorf("%w: truncated list header", ErrInvalidAccount)
	}
	count := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	if len(data) < off+32*count {
		return nil, 0, fmt.Errorf("%w: truncated list body", ErrInvalidAccount)
	}
	list := make([]Hash, count)
	for i := range list {
		copy(list[i][:], data[off:off+32])
		off += 32
	}
	return list, off, nil
}
