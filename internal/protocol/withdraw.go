// withdraw.go - The withdrawal state machine: Requested -> Completed | Cancelled.
//
// A request consumes points immediately (they turn inactive) but burns their
// nullifiers into the registry only on completion or permanent cancellation,
// so a non-permanent cancellation can reactivate the points without ever
// resetting a used nullifier.

package protocol

import (
	"fmt"
	"math/bits"
)

// RequestWithdrawal deactivates the referenced points and opens a withdrawal
// request for their combined mass, unlockable after WithdrawalCooldown. The
// request key is derived from the requester and nonce; it is returned for use
// with CompleteWithdrawal and CancelWithdrawal.
func (e *Engine) RequestWithdrawal(requester Address, nonce uint64, points, nullifiers []Hash) (Hash, error) {
	var zero Hash
	ps, err := e.state.Protocol()
	if err != nil {
		return zero, err
	}
	if ps.Paused {
		return zero, ErrUnauthorized
	}
	if len(points) == 0 {
		return zero, fmt.Errorf("%w: withdrawal of zero points", ErrInvalidAmount)
	}
	if len(points) > MaxWithdrawalPoints {
		return zero, fmt.Errorf("%w: %d points exceeds the per-request limit of %d", ErrInvalidAmount, len(points), MaxWithdrawalPoints)
	}
	if len(nullifiers) != len(points) {
		return zero, fmt.Errorf("%w: %d nullifiers for %d points", ErrInvalidCommitment, len(nullifiers), len(points))
	}

	now := e.now()
	if e.guard != nil {
		if err := e.guard.CheckWithdrawal(requester, now); err != nil {
			return zero, err
		}
	}

	st := newStage(e.state)
	key := WithdrawalKey(requester, nonce)
	if _, exists, err := st.withdrawal(key); err != nil {
		return zero, err
	} else if exists {
		return zero, fmt.Errorf("%w: withdrawal %s", ErrAccountAlreadyInitialized, key)
	}

	var totalMass uint64
	seen := make(map[Hash]struct{}, len(points))
	for _, id := range points {
		if _, dup := seen[id]; dup {
			return zero, fmt.Errorf("%w: point %s repeated", ErrInvalidCommitment, id)
		}
		seen[id] = struct{}{}
		point, ok, err := st.point(id)
		if err != nil {
			return zero, err
		}
		if !ok || !point.Initialized {
			return zero, fmt.Errorf("%w: unknown point %s", ErrInvalidAccount, id)
		}
		if now < point.LockedUntil {
			return zero, fmt.Errorf("%w: point %s locked until %d", ErrPointLocked, id, point.LockedUntil)
		}
		if !point.Active {
			return zero, fmt.Errorf("%w: %s", ErrPointNotActive, id)
		}
		if totalMass, err = checkedAdd(totalMass, point.Mass); err != nil {
			return zero, err
		}
		point.Active = false
		st.putPoint(id, point)
	}

	seenNull := make(map[Hash]struct{}, len(nullifiers))
	for _, n := range nullifiers {
		if _, dup := seenNull[n]; dup {
			return zero, fmt.Errorf("%w: nullifier %s repeated", ErrNullifierAlreadyUsed, n)
		}
		seenNull[n] = struct{}{}
		rec, ok, err := st.nullifier(n)
		if err != nil {
			return zero, err
		}
		if ok && rec.Used {
			return zero, fmt.Errorf("%w: %s", ErrNullifierAlreadyUsed, n)
		}
	}

	hi, amount := bits.Mul64(totalMass, PointSize)
	if hi != 0 {
		return zero, fmt.Errorf("%w: withdrawal amount overflow", ErrInvalidAmount)
	}

	st.putWithdrawal(key, &WithdrawalRequest{
		Initialized: true,
		Requester:   requester,
		Amount:      amount,
		RequestTime: now,
		UnlockTime:  now + WithdrawalCooldown,
		Points:      points,
		Nullifiers:  nullifiers,
	})
	if err := st.commit(); err != nil {
		return zero, err
	}

	e.log.Info().
		Stringer("requester", requester).
		Uint64("amount", amount).
		Int64("unlock_time", now+WithdrawalCooldown).
		Msg("withdrawal requested")
	return key, nil
}

// CompleteWithdrawal settles a matured request: the net amount (after the
// withdrawal fee) moves from the treasury to the requester and the request's
// nullifiers are burned. The unlock boundary is inclusive: completion at
// exactly UnlockTime succeeds.
func (e *Engine) CompleteWithdrawal(requester Address, request Hash) error {
	ps, err := e.state.Protocol()
	if err != nil {
		return err
	}
	st := newStage(e.state)
	w, ok, err := st.withdrawal(request)
	if err != nil {
		return err
	}
	if !ok || !w.Initialized {
		return fmt.Errorf("%w: unknown withdrawal %s", ErrAccountNotInitialized, request)
	}
	if requester != w.Requester {
		return ErrUnauthorized
	}
	if w.Terminal() {
		return ErrUnauthorized
	}
	now := e.now()
	if now < w.UnlockTime {
		return fmt.Errorf("%w: unlocks at %d, now %d", ErrWithdrawalNotReady, w.UnlockTime, now)
	}

	fee := feeFor(w.Amount, ps.WithdrawalFeeRate)
	if fee > w.Amount {
		return fmt.Errorf("%w: fee %d exceeds amount %d", ErrInvalidAmount, fee, w.Amount)
	}
	net := w.Amount - fee

	for _, n := range w.Nullifiers {
		rec, ok, err := st.nullifier(n)
		if err != nil {
			return err
		}
		if ok && rec.Used {
			return fmt.Errorf("%w: %s", ErrNullifierAlreadyUsed, n)
		}
		st.putNullifier(&NullifierRecord{
			Initialized: true,
			Nullifier:   n,
			Used:        true,
			Timestamp:   now,
		})
	}

	if ps.TotalWithdrawn, err = checkedAdd(ps.TotalWithdrawn, w.Amount); err != nil {
		return err
	}
	st.putProtocol(ps)
	w.Completed = true
	st.putWithdrawal(request, w)

	// Single atomic external call; a failure leaves the request untouched.
	if err := e.tokens.Transfer(ps.Treasury, w.Requester, net); err != nil {
		return err
	}
	if err := st.commit(); err != nil {
		return err
	}

	e.log.Info().
		Stringer("requester", requester).
		Uint64("amount", w.Amount).
		Uint64("fee", fee).
		Msg("withdrawal completed")
	return nil
}

// CancelWithdrawal closes a pending request without paying out. With
// permanent=false the points reactivate under a fresh maturity lock; with
// permanent=true the points stay inactive forever and their nullifiers burn
// (value forfeited from the shielded pool, never a token movement).
func (e *Engine) CancelWithdrawal(requester Address, request Hash, permanent bool) error {
	st := newStage(e.state)
	w, ok, err := st.withdrawal(request)
	if err != nil {
		return err
	}
	if !ok || !w.Initialized {
		return fmt.Errorf("%w: unknown withdrawal %s", ErrAccountNotInitialized, request)
	}
	if requester != w.Requester {
		return ErrUnauthorized
	}
	if w.Terminal() {
		return ErrUnauthorized
	}

	now := e.now()
	if permanent {
		for _, n := range w.Nullifiers {
			rec, ok, err := st.nullifier(n)
			if err != nil {
				return err
			}
			if ok && rec.Used {
				return fmt.Errorf("%w: %s", ErrNullifierAlreadyUsed, n)
			}
			st.putNullifier(&NullifierRecord{
				Initialized: true,
				Nullifier:   n,
				Used:        true,
				Timestamp:   now,
			})
		}
	} else {
		for _, id := range w.Points {
			point, ok, err := st.point(id)
			if err != nil {
				return err
			}
			if !ok || !point.Initialized {
				return fmt.Errorf("%w: unknown point %s", ErrInvalidAccount, id)
			}
			point.Active = true
			point.LockedUntil = now + MaturityDelay
			st.putPoint(id, point)
		}
	}

	w.Cancelled = true
	st.putWithdrawal(request, w)
	if err := st.commit(); err != nil {
		return err
	}

	e.log.Info().
		Stringer("requester", requester).
		Bool("permanent", permanent).
		Msg("withdrawal cancelled")
	return nil
}
