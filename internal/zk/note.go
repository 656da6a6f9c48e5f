// note.go - wallet-side representation of a shielded floating point.

package zk

import "fmt"

// Note is the opening of a point commitment: the holder-side data needed to
// later spend the point. The on-chain ledger only ever sees Cm.
type Note struct {
	Mass uint64 `json:"mass"`
	Pk   []byte `json:"pk"`
	Rho  []byte `json:"rho"`
	Rand []byte `json:"rand"`
	Cm   []byte `json:"cm"`
}

// NewNote mints a fresh note of the given mass owned by sk, sampling a new
// trapdoor and commitment randomness.
func NewNote(mass uint64, sk []byte) (*Note, error) {
	rho, err := RandomScalar()
	if err != nil {
		return nil, fmt.Errorf("note trapdoor: %w", err)
	}
	r, err := RandomScalar()
	if err != nil {
		return nil, fmt.Errorf("note randomness: %w", err)
	}
	pk := OwnerKey(sk)
	return &Note{
		Mass: mass,
		Pk:   pk,
		Rho:  rho,
		Rand: r,
		Cm:   Commit(mass, pk, rho, r),
	}, nil
}

// NullifierFor derives the serial number that spends this note under sk.
// It does not check that sk actually owns the note.
func (n *Note) NullifierFor(sk []byte) []byte {
	return Nullifier(sk, n.Rho)
}
