package token

import (
	"errors"
	"testing"

	"fpp/internal/protocol"
)

func TestMemLedgerTransfer(t *testing.T) {
	l := NewMemLedger()
	var alice, bob protocol.Address
	alice[0] = 1
	bob[0] = 2

	l.Credit(alice, 100)
	if err := l.Transfer(alice, bob, 60); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if l.Balance(alice) != 40 || l.Balance(bob) != 60 {
		t.Errorf("balances after transfer: %d %d", l.Balance(alice), l.Balance(bob))
	}
}

func TestMemLedgerInsufficient(t *testing.T) {
	l := NewMemLedger()
	var alice, bob protocol.Address
	alice[0] = 1
	bob[0] = 2

	l.Credit(alice, 10)
	err := l.Transfer(alice, bob, 11)
	if !errors.Is(err, protocol.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if l.Balance(alice) != 10 || l.Balance(bob) != 0 {
		t.Errorf("failed transfer must not move funds: %d %d", l.Balance(alice), l.Balance(bob))
	}
}
