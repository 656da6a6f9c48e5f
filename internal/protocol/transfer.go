// transfer.go - The privacy payment: consume input points, mint outputs.

package protocol

import "fmt"

// PrivacyPayment carries everything a shielded transfer needs. InputPoints
// are the record ids of the points being consumed; InputNullifiers are their
// spend proofs, pairwise. Ring is the eligible signer set handed to the
// ring-signature oracle.
type PrivacyPayment struct {
	Sender            Address
	InputPoints       []Hash
	InputNullifiers   []Hash
	OutputCommitments []Hash
	Proof             []byte
	RingSignature     []byte
	Ring              [][]byte
}

// PrivacyPayment validates and applies a shielded transfer. Value moves
// within the shielded pool, so the ledger's aggregate counters are untouched.
// Any failing check leaves every record unchanged; in particular no nullifier
// is marked used unless the whole transfer commits.
func (e *Engine) PrivacyPayment(p PrivacyPayment) error {
	ps, err := e.state.Protocol()
	if err != nil {
		return err
	}
	if ps.Paused {
		return ErrUnauthorized
	}

	if len(p.InputPoints) == 0 || len(p.OutputCommitments) == 0 {
		return fmt.Errorf("%w: transfer needs inputs and outputs", ErrInvalidCommitment)
	}
	if len(p.InputNullifiers) != len(p.InputPoints) {
		return fmt.Errorf("%w: %d nullifiers for %d inputs", ErrInvalidCommitment, len(p.InputNullifiers), len(p.InputPoints))
	}

	now := e.now()
	st := newStage(e.state)

	// Nullifiers: unused in the registry and distinct within the transfer.
	seenNull := make(map[Hash]struct{}, len(p.InputNullifiers))
	for _, n := range p.InputNullifiers {
		if _, dup := seenNull[n]; dup {
			return fmt.Errorf("%w: nullifier %s repeated in transfer", ErrNullifierAlreadyUsed, n)
		}
		seenNull[n] = struct{}{}
		rec, ok, err := st.nullifier(n)
		if err != nil {
			return err
		}
		if ok && rec.Used {
			return fmt.Errorf("%w: %s", ErrNullifierAlreadyUsed, n)
		}
	}

	// Inputs: present, matured, still active, distinct.
	var massIn uint64
	inputs := make([]*FloatingPoint, 0, len(p.InputPoints))
	seenIn := make(map[Hash]struct{}, len(p.InputPoints))
	for _, id := range p.InputPoints {
		if _, dup := seenIn[id]; dup {
			return fmt.Errorf("%w: input point %s repeated", ErrInvalidCommitment, id)
		}
		seenIn[id] = struct{}{}
		point, ok, err := st.point(id)
		if err != nil {
			return err
		}
		if !ok || !point.Initialized {
			return fmt.Errorf("%w: unknown point %s", ErrInvalidAccount, id)
		}
		if now < point.LockedUntil {
			return fmt.Errorf("%w: point %s locked until %d", ErrPointLocked, id, point.LockedUntil)
		}
		if !point.Active {
			return fmt.Errorf("%w: %s", ErrPointNotActive, id)
		}
		if massIn, err = checkedAdd(massIn, point.Mass); err != nil {
			return err
		}
		inputs = append(inputs, point)
	}

	// Outputs: fresh and distinct. Each output carries mass 1.
	seenOut := make(map[Hash]struct{}, len(p.OutputCommitments))
	for _, cm := range p.OutputCommitments {
		if _, dup := seenOut[cm]; dup {
			return fmt.Errorf("%w: output commitment %s repeated", ErrInvalidCommitment, cm)
		}
		seenOut[cm] = struct{}{}
		if _, exists, err := st.point(cm); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: output %s already exists", ErrInvalidCommitment, cm)
		}
	}

	// Proof and ring-signature oracles.
	if e.proofs == nil {
		return ErrInvalidProof
	}
	if err := e.proofs.VerifyTransfer(p.Proof, p.InputPoints, p.InputNullifiers, p.OutputCommitments); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if e.rings == nil {
		return ErrInvalidRingSignature
	}
	digest := TransferDigest(p.InputNullifiers, p.OutputCommitments, p.Proof)
	if err := e.rings.VerifySignature(p.RingSignature, digest, p.Ring); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRingSignature, err)
	}

	// Mass conservation, checked against the externally observable mass
	// fields in addition to whatever the proof attests algebraically.
	if massIn != uint64(len(p.OutputCommitments)) {
		return fmt.Errorf("%w: input mass %d, output mass %d", ErrInvalidAmount, massIn, len(p.OutputCommitments))
	}

	for i, id := range p.InputPoints {
		point := inputs[i]
		point.Active = false
		st.putPoint(id, point)
	}
	for _, n := range p.InputNullifiers {
		st.putNullifier(&NullifierRecord{
			Initialized: true,
			Nullifier:   n,
			Used:        true,
			Timestamp:   now,
		})
	}
	for _, cm := range p.OutputCommitments {
		st.putPoint(cm, &FloatingPoint{
			Initialized: true,
			Commitment:  cm,
			CreatedAt:   now,
			Mass:        1,
			Active:      true,
			Creator:     p.Sender,
			LockedUntil: now + MaturityDelay,
		})
	}
	if err := st.commit(); err != nil {
		return err
	}

	e.log.Info().
		Int("inputs", len(p.InputPoints)).
		Int("outputs", len(p.OutputCommitments)).
		Msg("privacy payment applied")
	return nil
}
