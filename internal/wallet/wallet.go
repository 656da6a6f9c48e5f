// wallet.go - holder-side key and note management.
//
// A wallet keeps the secret key its notes are committed to, the ring
// signature key pair used to authorize payments, and the openings of every
// commitment it owns. The ledger never sees any of this; the wallet file is
// the only place a point can be spent from.

package wallet

import (
	"encoding/json"
	"fmt"
	"os"

	"fpp/internal/protocol"
	"fpp/internal/ring"
	"fpp/internal/zk"
)

// NullifierRegistry is the ledger view a wallet syncs against.
type NullifierRegistry interface {
	NullifierUsed(sn protocol.Hash) (bool, error)
}

// Wallet stores a participant's private keys and recognized notes.
type Wallet struct {
	Name   string     `json:"name"`
	Sk     []byte     `json:"sk"`
	RingSk []byte     `json:"ring_sk"`
	RingPk []byte     `json:"ring_pk"`
	Notes  []*zk.Note `json:"notes"`
	Spent  []bool     `json:"spent"`
}

// New creates a wallet with fresh note and ring keys.
func New(name string) (*Wallet, error) {
	sk, err := zk.RandomScalar()
	if err != nil {
		return nil, fmt.Errorf("wallet key: %w", err)
	}
	ringSk, ringPk, err := ring.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("ring key: %w", err)
	}
	return &Wallet{
		Name:   name,
		Sk:     sk,
		RingSk: ringSk,
		RingPk: ringPk,
		Notes:  []*zk.Note{},
		Spent:  []bool{},
	}, nil
}

// Load loads a wallet from a JSON file.
func Load(path string) (*Wallet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var w Wallet
	if err := json.NewDecoder(f).Decode(&w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Save saves the wallet to a JSON file.
func (w *Wallet) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(w)
}

// MintDepositNotes mints one unit-mass note per point the deposit buys and
// returns their commitments in ledger order. The notes are recorded in the
// wallet immediately; they become spendable once the ledger matures them.
func (w *Wallet) MintDepositNotes(amount uint64) ([]protocol.Hash, error) {
	if amount%protocol.PointSize != 0 {
		return nil, fmt.Errorf("deposit of %d is not a whole number of points", amount)
	}
	n := amount / protocol.PointSize
	commitments := make([]protocol.Hash, 0, n)
	for i := uint64(0); i < n; i++ {
		note, err := zk.NewNote(1, w.Sk)
		if err != nil {
			return nil, err
		}
		w.AddNote(note)
		commitments = append(commitments, zk.ToHash(note.Cm))
	}
	return commitments, nil
}

// AddNote records a recognized note as unspent.
func (w *Wallet) AddNote(note *zk.Note) {
	w.Notes = append(w.Notes, note)
	w.Spent = append(w.Spent, false)
}

// MarkSpent marks a note as spent by its index.
func (w *Wallet) MarkSpent(i int) error {
	if i < 0 || i >= len(w.Spent) {
		return fmt.Errorf("invalid note index: %d", i)
	}
	w.Spent[i] = true
	return nil
}

// Unspent returns the indices of notes that have not been spent.
func (w *Wallet) Unspent() []int {
	var idx []int
	for i, spent := range w.Spent {
		if !spent {
			idx = append(idx, i)
		}
	}
	return idx
}

// Balance is the total mass of unspent notes.
func (w *Wallet) Balance() uint64 {
	var total uint64
	for _, i := range w.Unspent() {
		total += w.Notes[i].Mass
	}
	return total
}

// NullifierOf derives the serial number that spends the i-th note.
func (w *Wallet) NullifierOf(i int) protocol.Hash {
	return zk.ToHash(w.Notes[i].NullifierFor(w.Sk))
}

// Sync checks every unspent note's serial number against the ledger and
// marks notes spent elsewhere. Useful after a crash or when several devices
// share a wallet file.
func (w *Wallet) Sync(reg NullifierRegistry) error {
	for _, i := range w.Unspent() {
		used, err := reg.NullifierUsed(w.NullifierOf(i))
		if err != nil {
			return fmt.Errorf("checking note %d: %w", i, err)
		}
		if used {
			w.Spent[i] = true
		}
	}
	return nil
}

// SignPayment produces the ring signature over a payment digest, hiding the
// wallet's ring key among the given ring. The wallet's own public key must
// be at position signerIdx.
func (w *Wallet) SignPayment(digest []byte, ringKeys [][]byte, signerIdx int) ([]byte, error) {
	return ring.Sign(digest, ringKeys, signerIdx, w.RingSk)
}
