// deposit.go - Deposit accounting: external asset in, floating points out.

package protocol

import "fmt"

// Deposit converts a base-asset deposit into freshly minted points. The net
// amount (after the deposit fee) moves from the depositor to the treasury;
// one point of mass 1 is created per supplied commitment, locked for
// MaturityDelay seconds. Exactly amount/PointSize commitments must be
// supplied so no excess mass is minted.
func (e *Engine) Deposit(depositor Address, amount uint64, commitments []Hash) error {
	ps, err := e.state.Protocol()
	if err != nil {
		return err
	}
	if ps.Paused {
		return ErrUnauthorized
	}
	if amount < MinDeposit || amount > MaxDeposit {
		return fmt.Errorf("%w: deposit of %d outside [%d, %d]", ErrInvalidAmount, amount, MinDeposit, MaxDeposit)
	}

	fee := feeFor(amount, ps.DepositFeeRate)
	if fee > amount {
		return fmt.Errorf("%w: fee %d exceeds amount %d", ErrInvalidAmount, fee, amount)
	}
	net := amount - fee

	numPoints := amount / PointSize
	if uint64(len(commitments)) != numPoints {
		return fmt.Errorf("%w: %d commitments for %d points", ErrInvalidCommitment, len(commitments), numPoints)
	}

	now := e.now()
	st := newStage(e.state)
	seen := make(map[Hash]struct{}, len(commitments))
	for _, cm := range commitments {
		if _, dup := seen[cm]; dup {
			return fmt.Errorf("%w: duplicate commitment %s", ErrInvalidCommitment, cm)
		}
		seen[cm] = struct{}{}
		if _, exists, err := st.point(cm); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: commitment %s already exists", ErrInvalidCommitment, cm)
		}
		st.putPoint(cm, &FloatingPoint{
			Initialized: true,
			Commitment:  cm,
			CreatedAt:   now,
			Mass:        1,
			Active:      true,
			Creator:     depositor,
			LockedUntil: now + MaturityDelay,
		})
	}

	if ps.TotalDeposited, err = checkedAdd(ps.TotalDeposited, amount); err != nil {
		return err
	}
	if ps.TotalPoints, err = checkedAdd(ps.TotalPoints, numPoints); err != nil {
		return err
	}
	if ps.TotalFees, err = checkedAdd(ps.TotalFees, fee); err != nil {
		return err
	}
	st.putProtocol(ps)

	// Single atomic external call; a failure here aborts with no state change.
	if err := e.tokens.Transfer(depositor, ps.Treasury, net); err != nil {
		return err
	}
	if err := st.commit(); err != nil {
		return err
	}

	if e.guard != nil {
		e.guard.NoteDeposit(depositor, now)
	}
	e.log.Info().
		Stringer("depositor", depositor).
		Uint64("amount", amount).
		Uint64("fee", fee).
		Uint64("points", numPoints).
		Msg("deposit accepted")
	return nil
}
