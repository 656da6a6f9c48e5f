// verifier.go - adapter exposing ring verification to the protocol engine.

package ring

// Verifier implements the engine's ring-signature oracle.
type Verifier struct{}

// NewVerifier returns a stateless ring verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifySignature implements protocol.RingVerifier.
func (*Verifier) VerifySignature(sig, msg []byte, ringKeys [][]byte) error {
	return Verify(msg, sig, ringKeys)
}
