// monitor.go - per-identity abuse detection for withdrawal requests.
//
// The monitor combines a token-bucket rate limiter with a flash-loan
// detector: an identity that deposited very recently cannot open a
// withdrawal until the window passes. Time is passed in explicitly as unix
// seconds so the engine's clock drives both checks.

package guard

import (
	"sync"

	"fpp/internal/protocol"
)

// Config tunes the monitor.
type Config struct {
	// MaxRequests is the bucket capacity per identity.
	MaxRequests int
	// RefillPeriod is how many seconds restore one token.
	RefillPeriod int64
	// FlashLoanWindow is the minimum seconds between an identity's last
	// deposit and its next withdrawal request.
	FlashLoanWindow int64
}

// DefaultConfig allows 5 withdrawal requests per identity with a one-minute
// refill and a ten-minute flash-loan window.
func DefaultConfig() Config {
	return Config{
		MaxRequests:     5,
		RefillPeriod:    60,
		FlashLoanWindow: 600,
	}
}

type bucket struct {
	tokens     int
	lastRefill int64
}

// Monitor tracks deposits and withdrawal requests per identity. It
// implements the protocol engine's Guard interface.
type Monitor struct {
	mu          sync.Mutex
	cfg         Config
	buckets     map[protocol.Address]*bucket
	lastDeposit map[protocol.Address]int64
}

// NewMonitor builds a monitor with the given limits.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{
		cfg:         cfg,
		buckets:     make(map[protocol.Address]*bucket),
		lastDeposit: make(map[protocol.Address]int64),
	}
}

// NoteDeposit records that id deposited at the given time.
func (m *Monitor) NoteDeposit(id protocol.Address, now int64) {
	m.mu.Lock()
	m.lastDeposit[id] = now
	m.mu.Unlock()
}

// CheckWithdrawal admits or rejects a withdrawal request from id. A request
// inside the flash-loan window fails with ErrFlashLoanDetected; one that
// exhausts the identity's bucket fails with ErrRateLimitExceeded. Admitted
// requests consume a token.
func (m *Monitor) CheckWithdrawal(id protocol.Address, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastDeposit[id]; ok && now-last < m.cfg.FlashLoanWindow {
		return protocol.ErrFlashLoanDetected
	}

	b, ok := m.buckets[id]
	if !ok {
		b = &bucket{tokens: m.cfg.MaxRequests, lastRefill: now}
		m.buckets[id] = b
	}

	if m.cfg.RefillPeriod > 0 {
		refill := (now - b.lastRefill) / m.cfg.RefillPeriod
		if refill > 0 {
			b.tokens += int(refill)
			if b.tokens > m.cfg.MaxRequests {
				b.tokens = m.cfg.MaxRequests
			}
			b.lastRefill = now
		}
	}

	if b.tokens <= 0 {
		return protocol.ErrRateLimitExceeded
	}
	b.tokens--
	return nil
}

// Tokens reports the remaining bucket capacity for id without consuming.
func (m *Monitor) Tokens(id protocol.Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[id]; ok {
		return b.tokens
	}
	return m.cfg.MaxRequests
}

// Reset clears all tracked state for id.
func (m *Monitor) Reset(id protocol.Address) {
	m.mu.Lock()
	delete(m.buckets, id)
	delete(m.lastDeposit, id)
	m.mu.Unlock()
}
