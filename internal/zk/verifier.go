// verifier.go - adapter exposing Groth16 verification to the protocol engine.

package zk

import (
	"fmt"

	"github.com/consensys/gnark/backend/groth16"

	"fpp/internal/protocol"
)

// Groth16Verifier wraps a verifying key behind the engine's proof oracle
// interface. It only accepts the circuit's fixed two-in/two-out shape.
type Groth16Verifier struct {
	vk groth16.VerifyingKey
}

// NewGroth16Verifier builds a verifier around a previously set-up key.
func NewGroth16Verifier(vk groth16.VerifyingKey) *Groth16Verifier {
	return &Groth16Verifier{vk: vk}
}

// VerifyTransfer implements protocol.ProofVerifier.
func (v *Groth16Verifier) VerifyTransfer(proof []byte, inputCommitments, inputNullifiers, outputCommitments []protocol.Hash) error {
	if len(inputCommitments) != TransferArity ||
		len(inputNullifiers) != TransferArity ||
		len(outputCommitments) != TransferArity {
		return fmt.Errorf("transfer must have exactly %d inputs and %d outputs", TransferArity, TransferArity)
	}
	var cm, sn, out [TransferArity][]byte
	for i := 0; i < TransferArity; i++ {
		cm[i] = inputCommitments[i][:]
		sn[i] = inputNullifiers[i][:]
		out[i] = outputCommitments[i][:]
	}
	return VerifyTransferProof(proof, cm, sn, out, v.vk)
}
