// Package protocol implements the accounting core of the floating-point
// privacy protocol.
//
// Overview:
//   - Deposits convert the base asset into shielded points (commitments with
//     mass), applying the deposit fee and a maturity lock
//   - Privacy payments consume points via nullifiers, gated by zero-knowledge
//     proof and ring-signature oracles, and mint output points under mass
//     conservation
//   - Withdrawals move through an explicit Requested -> Completed | Cancelled
//     state machine with a 24-hour cooldown
//   - A process-wide ProtocolState singleton carries fee rates, the pause
//     flag, and checked running totals
//
// Invariants:
//   - A nullifier transitions unused -> used at most once and never resets
//   - Every operation is all-or-nothing: validation happens against a staged
//     write set that flushes in one atomic batch only after every check passes
//   - Aggregate counters use checked addition; overflow aborts the operation
//
// The host environment authenticates signers, provides record-level
// exclusivity, and supplies the clock indirectly through the engine's
// injectable time source. Proof and ring-signature verification are pluggable
// oracles; see the zk and ring packages for the shipped implementations.
package protocol
