// ring.go - AOS ring signatures binding a payment to one of a set of keys.
//
// A ring signature proves the signer holds the secret key of one ring member
// without revealing which. Keys live on BLS12-377 G1 and the challenge chain
// runs through MiMC over the scalar field, the same hash the rest of the
// protocol uses.

package ring

import (
	"errors"
	"fmt"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bls12-377/fr/mimc"
)

// PublicKeySize is the compressed encoding length of a ring member key.
const PublicKeySize = bls12377.SizeOfG1AffineCompressed

// scalarSize is the canonical encoding length of a challenge or response.
const scalarSize = fr.Bytes

var (
	ErrRingTooSmall    = errors.New("ring: need at least two members")
	ErrSignerNotInRing = errors.New("ring: signer index out of range")
	ErrBadSignature    = errors.New("ring: malformed signature")
	ErrBadPublicKey    = errors.New("ring: malformed public key")
	ErrVerifyFailed    = errors.New("ring: signature does not verify")
)

// GenerateKey samples a key pair. The secret key is a canonical 32-byte
// scalar, the public key the compressed point g^sk.
func GenerateKey() (sk []byte, pk []byte, err error) {
	var s fr.Element
	if _, err := s.SetRandom(); err != nil {
		return nil, nil, fmt.Errorf("sampling key: %w", err)
	}
	var p bls12377.G1Affine
	p.ScalarMultiplication(&g1Gen, s.BigInt(new(big.Int)))
	sb := s.Bytes()
	pb := p.Bytes()
	return sb[:], pb[:], nil
}

// PublicKeyFor derives the compressed public key for a secret key.
func PublicKeyFor(sk []byte) []byte {
	var p bls12377.G1Affine
	p.ScalarMultiplication(&g1Gen, new(big.Int).SetBytes(sk))
	pb := p.Bytes()
	return pb[:]
}

// Sign produces an AOS signature on msg by the ring member at signerIdx.
// The signature is e0 followed by one response scalar per ring member.
func Sign(msg []byte, ringKeys [][]byte, signerIdx int, sk []byte) ([]byte, error) {
	n := len(ringKeys)
	if n < 2 {
		return nil, ErrRingTooSmall
	}
	if signerIdx < 0 || signerIdx >= n {
		return nil, ErrSignerNotInRing
	}
	points, err := decodeRing(ringKeys)
	if err != nil {
		return nil, err
	}

	var skFr fr.Element
	skFr.SetBigInt(new(big.Int).SetBytes(sk))

	// Commitment: e_{i+1} = H(msg, g^alpha)
	var alpha fr.Element
	if _, err := alpha.SetRandom(); err != nil {
		return nil, fmt.Errorf("sampling nonce: %w", err)
	}
	var commit bls12377.G1Affine
	commit.ScalarMultiplication(&g1Gen, alpha.BigInt(new(big.Int)))

	challenges := make([]fr.Element, n)
	responses := make([]fr.Element, n)
	challenges[(signerIdx+1)%n] = challenge(msg, commit)

	// Walk the ring with random responses until we return to the signer.
	for k := 1; k < n; k++ {
		j := (signerIdx + k) % n
		if _, err := responses[j].SetRandom(); err != nil {
			return nil, fmt.Errorf("sampling response: %w", err)
		}
		challenges[(j+1)%n] = challenge(msg, chainPoint(responses[j], challenges[j], points[j]))
	}

	// Close the ring: s_i = alpha - e_i * sk
	var closing fr.Element
	closing.Mul(&challenges[signerIdx], &skFr)
	responses[signerIdx].Sub(&alpha, &closing)

	sig := make([]byte, 0, scalarSize*(n+1))
	e0 := challenges[0].Bytes()
	sig = append(sig, e0[:]...)
	for j := 0; j < n; j++ {
		sj := responses[j].Bytes()
		sig = append(sig, sj[:]...)
	}
	return sig, nil
}

// Verify checks an AOS signature against the ring. It recomputes the
// challenge chain from e0 and accepts only if the chain closes.
func Verify(msg, sig []byte, ringKeys [][]byte) error {
	n := len(ringKeys)
	if n < 2 {
		return ErrRingTooSmall
	}
	if len(sig) != scalarSize*(n+1) {
		return ErrBadSignature
	}
	points, err := decodeRing(ringKeys)
	if err != nil {
		return err
	}

	var e0, e fr.Element
	if err := e0.SetBytesCanonical(sig[:scalarSize]); err != nil {
		return ErrBadSignature
	}
	e = e0
	for j := 0; j < n; j++ {
		var s fr.Element
		off := scalarSize * (j + 1)
		if err := s.SetBytesCanonical(sig[off : off+scalarSize]); err != nil {
			return ErrBadSignature
		}
		e = challenge(msg, chainPoint(s, e, points[j]))
	}
	if !e.Equal(&e0) {
		return ErrVerifyFailed
	}
	return nil
}

// chainPoint computes g^s * pk^e, the ring-walk point fed into the next
// challenge.
func chainPoint(s, e fr.Element, pk bls12377.G1Affine) bls12377.G1Affine {
	var gs, pke, sum bls12377.G1Affine
	gs.ScalarMultiplication(&g1Gen, s.BigInt(new(big.Int)))
	pke.ScalarMultiplication(&pk, e.BigInt(new(big.Int)))
	sum.Add(&gs, &pke)
	return sum
}

// challenge hashes the message and a curve point into a scalar with MiMC.
// Coordinates are reduced into the scalar field before hashing so every
// block is canonical.
func challenge(msg []byte, p bls12377.G1Affine) fr.Element {
	h := mimcNative.NewMiMC()
	writeReduced(h, msg)
	x := p.X.Bytes()
	writeReduced(h, x[:])
	y := p.Y.Bytes()
	writeReduced(h, y[:])
	var e fr.Element
	e.SetBytes(h.Sum(nil))
	return e
}

func writeReduced(h interface{ Write([]byte) (int, error) }, data []byte) {
	v := new(big.Int).SetBytes(data)
	v.Mod(v, fr.Modulus())
	var e fr.Element
	e.SetBigInt(v)
	b := e.Bytes()
	h.Write(b[:])
}

func decodeRing(ringKeys [][]byte) ([]bls12377.G1Affine, error) {
	points := make([]bls12377.G1Affine, len(ringKeys))
	for i, raw := range ringKeys {
		if len(raw) != PublicKeySize {
			return nil, ErrBadPublicKey
		}
		if _, err := points[i].SetBytes(raw); err != nil {
			return nil, fmt.Errorf("%w: member %d: %v", ErrBadPublicKey, i, err)
		}
	}
	return points, nil
}

var g1Gen bls12377.G1Affine

func init() {
	g1Jac, _, _, _ := bls12377.Generators()
	g1Gen.FromJacobian(&g1Jac)
}
