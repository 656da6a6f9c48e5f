// store.go - Record lookup and the staged write set.
//
// All cross-references between records go through 32-byte keys; nothing holds
// a live pointer into another record. Each operation validates against a
// read-through stage, accumulates its intended writes there, and flushes them
// in a single atomic batch only after every check has passed.

package protocol

import (
	"errors"
	"fmt"

	"fpp/internal/storage"
)

var (
	keyProtocolState = []byte("fpp/state")

	prefixPoint      = []byte("fpp/point/")
	prefixNullifier  = []byte("fpp/null/")
	prefixWithdrawal = []byte("fpp/wd/")
)

func pointKey(id Hash) []byte      { return append(append([]byte{}, prefixPoint...), id[:]...) }
func nullifierKey(n Hash) []byte   { return append(append([]byte{}, prefixNullifier...), n[:]...) }
func withdrawalKey(id Hash) []byte { return append(append([]byte{}, prefixWithdrawal...), id[:]...) }

// State reads and writes protocol records on a Database.
type State struct {
	db storage.Database
}

// NewState wraps a key-value database as the protocol record store.
func NewState(db storage.Database) *State {
	return &State{db: db}
}

// Protocol loads the singleton state record. Returns ErrAccountNotInitialized
// when the protocol has not been initialized.
func (s *State) Protocol() (*ProtocolState, error) {
	data, err := s.db.Get(keyProtocolState)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAccountNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("load protocol state: %w", err)
	}
	return UnmarshalProtocolState(data)
}

// HasProtocol reports whether the singleton exists.
func (s *State) HasProtocol() (bool, error) {
	return s.db.Has(keyProtocolState)
}

// Point loads a floating point record by its id.
func (s *State) Point(id Hash) (*FloatingPoint, bool, error) {
	data, err := s.db.Get(pointKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load point %s: %w", id, err)
	}
	p, err := UnmarshalFloatingPoint(data)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Nullifier loads a nullifier record by value.
func (s *State) Nullifier(n Hash) (*NullifierRecord, bool, error) {
	data, err := s.db.Get(nullifierKey(n))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load nullifier %s: %w", n, err)
	}
	rec, err := UnmarshalNullifierRecord(data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Withdrawal loads a withdrawal request by key.
func (s *State) Withdrawal(id Hash) (*WithdrawalRequest, bool, error) {
	data, err := s.db.Get(withdrawalKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load withdrawal %s: %w", id, err)
	}
	w, err := UnmarshalWithdrawalRequest(data)
	if err != nil {
		return nil, false, err
	}
	return w, true, nil
}

// stage is the staged write set for one operation. Reads fall through to the
// store unless the record was already staged, so an operation observes its
// own pending writes. Nothing reaches the database until commit.
type stage struct {
	state       *State
	protocol    *ProtocolState
	points      map[Hash]*FloatingPoint
	nullifiers  map[Hash]*NullifierRecord
	withdrawals map[Hash]*WithdrawalRequest
}

func newStage(state *State) *stage {
	return &stage{
		state:       state,
		points:      make(map[Hash]*FloatingPoint),
		nullifiers:  make(map[Hash]*NullifierRecord),
		withdrawals: make(map[Hash]*WithdrawalRequest),
	}
}

func (st *stage) point(id Hash) (*FloatingPoint, bool, error) {
	if p, ok := st.points[id]; ok {
		return p, true, nil
	}
	return st.state.Point(id)
}

func (st *stage) nullifier(n Hash) (*NullifierRecord, bool, error) {
	if rec, ok := st.nullifiers[n]; ok {
		return rec, true, nil
	}
	return st.state.Nullifier(n)
}

func (st *stage) withdrawal(id Hash) (*WithdrawalRequest, bool, error) {
	if w, ok := st.withdrawals[id]; ok {
		return w, true, nil
	}
	return st.state.Withdrawal(id)
}

func (st *stage) putProtocol(p *ProtocolState)                { st.protocol = p }
func (st *stage) putPoint(id Hash, p *FloatingPoint)          { st.points[id] = p }
func (st *stage) putNullifier(rec *NullifierRecord)           { st.nullifiers[rec.Nullifier] = rec }
func (st *stage) putWithdrawal(id Hash, w *WithdrawalRequest) { st.withdrawals[id] = w }

// commit flushes every staged record in one atomic batch.
func (st *stage) commit() error {
	entries := make([]storage.KV, 0, 1+len(st.points)+len(st.nullifiers)+len(st.withdrawals))
	if st.protocol != nil {
		entries = append(entries, storage.KV{Key: keyProtocolState, Value: st.protocol.Marshal()})
	}
	for id, p := range st.points {
		entries = append(entries, storage.KV{Key: pointKey(id), Value: p.Marshal()})
	}
	for n, rec := range st.nullifiers {
		entries = append(entries, storage.KV{Key: nullifierKey(n), Value: rec.Marshal()})
	}
	for id, w := range st.withdrawals {
		entries = append(entries, storage.KV{Key: withdrawalKey(id), Value: w.Marshal()})
	}
	return st.state.db.WriteBatch(entries)
}
