// ledger.go - External base-asset ledger boundary.
//
// The protocol never holds balances itself; it instructs this ledger to move
// the base asset between custodial accounts. The in-memory implementation
// backs tests and the daemon; a deployment would adapt the interface to the
// real settlement rail.

package token

import (
	"sync"

	"fpp/internal/protocol"
)

// Ledger moves the base asset between accounts. Transfer is atomic: it either
// debits and credits in full or fails with protocol.ErrInsufficientBalance.
type Ledger interface {
	Transfer(from, to protocol.Address, amount uint64) error
}

// MemLedger is an in-memory asset ledger.
type MemLedger struct {
	mu       sync.Mutex
	balances map[protocol.Address]uint64
}

// NewMemLedger creates an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{balances: make(map[protocol.Address]uint64)}
}

// Credit mints balance for an account. Test and faucet use only.
func (l *MemLedger) Credit(account protocol.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Balance returns the current balance of an account.
func (l *MemLedger) Balance(account protocol.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Transfer moves amount from one account to another.
func (l *MemLedger) Transfer(from, to protocol.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return protocol.ErrInsufficientBalance
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}
