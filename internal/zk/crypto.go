// crypto.go - MiMC commitments, nullifier PRF, and field-level randomness.

package zk

import (
	"fmt"

	fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bls12-377/fr/mimc"

	"fpp/internal/protocol"
)

// DigestSize is the byte length of every commitment and nullifier.
const DigestSize = 32

// mimcHash hashes the given 32-byte field-element blocks with MiMC over the
// BLS12-377 scalar field. Every block must be a canonical field element;
// values produced by this package always are.
func mimcHash(blocks ...[]byte) []byte {
	h := mimcNative.NewMiMC()
	for _, b := range blocks {
		if _, err := h.Write(b); err != nil {
			// Only reachable with a non-canonical block, which this
			// package never produces.
			panic(fmt.Sprintf("mimc write: %v", err))
		}
	}
	return h.Sum(nil)
}

// RandomScalar returns a uniformly random field element encoded as a
// canonical 32-byte big-endian value. Used for note trapdoors (rho) and
// commitment randomness.
func RandomScalar() ([]byte, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return nil, fmt.Errorf("sampling scalar: %w", err)
	}
	b := e.Bytes()
	return b[:], nil
}

// scalarFromUint64 encodes v as a 32-byte big-endian field element.
func scalarFromUint64(v uint64) []byte {
	var e fr.Element
	e.SetUint64(v)
	b := e.Bytes()
	return b[:]
}

// OwnerKey derives the public owner key bound into a commitment from the
// holder's secret key: pk = MiMC(sk).
func OwnerKey(sk []byte) []byte {
	return mimcHash(sk)
}

// Commit computes the point commitment cm = MiMC(mass, pk, rho, r).
func Commit(mass uint64, pk, rho, r []byte) []byte {
	return mimcHash(scalarFromUint64(mass), pk, rho, r)
}

// Nullifier computes the serial number sn = MiMC(sk, rho). Publishing it
// spends the note carrying rho without revealing which commitment it was.
func Nullifier(sk, rho []byte) []byte {
	return mimcHash(sk, rho)
}

// ToHash converts a 32-byte digest into the ledger's fixed-width hash type.
func ToHash(b []byte) protocol.Hash {
	var h protocol.Hash
	copy(h[:], b)
	return h
}
