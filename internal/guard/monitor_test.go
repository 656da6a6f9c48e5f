package guard

import (
	"errors"
	"testing"

	"fpp/internal/protocol"
)

func TestFlashLoanWindow(t *testing.T) {
	m := NewMonitor(Config{MaxRequests: 5, RefillPeriod: 60, FlashLoanWindow: 600})
	id := protocol.Address{1}

	m.NoteDeposit(id, 1000)
	if err := m.CheckWithdrawal(id, 1599); !errors.Is(err, protocol.ErrFlashLoanDetected) {
		t.Fatalf("expected ErrFlashLoanDetected inside window, got %v", err)
	}
	if err := m.CheckWithdrawal(id, 1600); err != nil {
		t.Fatalf("expected admission at window edge, got %v", err)
	}
}

func TestRateLimitAndRefill(t *testing.T) {
	m := NewMonitor(Config{MaxRequests: 2, RefillPeriod: 60, FlashLoanWindow: 0})
	id := protocol.Address{2}

	if err := m.CheckWithdrawal(id, 100); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if err := m.CheckWithdrawal(id, 101); err != nil {
		t.Fatalf("second request should pass: %v", err)
	}
	if err := m.CheckWithdrawal(id, 102); !errors.Is(err, protocol.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	// One refill period restores one token.
	if err := m.CheckWithdrawal(id, 161); err != nil {
		t.Fatalf("expected admission after refill, got %v", err)
	}
	if err := m.CheckWithdrawal(id, 162); !errors.Is(err, protocol.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded after consuming refill, got %v", err)
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	m := NewMonitor(Config{MaxRequests: 1, RefillPeriod: 60, FlashLoanWindow: 600})
	a := protocol.Address{3}
	b := protocol.Address{4}

	m.NoteDeposit(a, 1000)
	if err := m.CheckWithdrawal(a, 1001); !errors.Is(err, protocol.ErrFlashLoanDetected) {
		t.Fatalf("expected ErrFlashLoanDetected for depositor, got %v", err)
	}
	if err := m.CheckWithdrawal(b, 1001); err != nil {
		t.Fatalf("other identity should be unaffected: %v", err)
	}
}

func TestReset(t *testing.T) {
	m := NewMonitor(Config{MaxRequests: 1, RefillPeriod: 60, FlashLoanWindow: 600})
	id := protocol.Address{5}

	if err := m.CheckWithdrawal(id, 100); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if m.Tokens(id) != 0 {
		t.Fatalf("expected empty bucket, got %d", m.Tokens(id))
	}
	m.Reset(id)
	if m.Tokens(id) != 1 {
		t.Fatalf("expected full bucket after reset, got %d", m.Tokens(id))
	}
}
