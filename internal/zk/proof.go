// proof.go - Groth16 proof generation and key management for shielded transfers.

package zk

import (
	"bytes"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// TransferInput pairs a note being spent with the secret key that owns it.
type TransferInput struct {
	Note *Note
	Sk   []byte
}

// Transfer is a proven shielded transfer: the opaque Groth16 proof plus the
// public values the ledger records.
type Transfer struct {
	Proof       []byte
	Commitments [TransferArity][]byte
	Nullifiers  [TransferArity][]byte
	Outputs     [TransferArity][]byte
}

// CompileTransferCircuit compiles the transfer circuit over the BLS12-377
// scalar field. The result is deterministic and can be reused across proofs.
func CompileTransferCircuit() (constraint.ConstraintSystem, error) {
	var circuit TransferCircuit
	ccs, err := frontend.Compile(ecc.BLS12_377.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	return ccs, nil
}

// ProveTransfer spends the two inputs into the two outputs and produces the
// Groth16 proof the ledger verifies. The caller supplies freshly minted
// output notes; their commitments and the inputs' serial numbers become the
// public inputs.
func ProveTransfer(inputs [TransferArity]TransferInput, outputs [TransferArity]*Note, ccs constraint.ConstraintSystem, pk groth16.ProvingKey) (*Transfer, error) {
	witness := &TransferCircuit{}
	var t Transfer
	for i := 0; i < TransferArity; i++ {
		in := inputs[i]
		if in.Note == nil || outputs[i] == nil {
			return nil, fmt.Errorf("transfer slot %d is missing a note", i)
		}
		sn := Nullifier(in.Sk, in.Note.Rho)

		witness.CmIn[i] = new(big.Int).SetBytes(in.Note.Cm)
		witness.SnIn[i] = new(big.Int).SetBytes(sn)
		witness.CmOut[i] = new(big.Int).SetBytes(outputs[i].Cm)
		witness.SkIn[i] = new(big.Int).SetBytes(in.Sk)
		witness.RhoIn[i] = new(big.Int).SetBytes(in.Note.Rho)
		witness.RandIn[i] = new(big.Int).SetBytes(in.Note.Rand)
		witness.MassIn[i] = in.Note.Mass
		witness.PkOut[i] = new(big.Int).SetBytes(outputs[i].Pk)
		witness.RhoOut[i] = new(big.Int).SetBytes(outputs[i].Rho)
		witness.RandOut[i] = new(big.Int).SetBytes(outputs[i].Rand)
		witness.MassOut[i] = outputs[i].Mass

		t.Commitments[i] = in.Note.Cm
		t.Nullifiers[i] = sn
		t.Outputs[i] = outputs[i].Cm
	}

	w, err := frontend.NewWitness(witness, ecc.BLS12_377.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	t.Proof = buf.Bytes()
	return &t, nil
}

// VerifyTransferProof checks an opaque proof against the public values.
func VerifyTransferProof(proofBytes []byte, commitments, nullifiers, outputs [TransferArity][]byte, vk groth16.VerifyingKey) error {
	witness := &TransferCircuit{}
	for i := 0; i < TransferArity; i++ {
		witness.CmIn[i] = new(big.Int).SetBytes(commitments[i])
		witness.SnIn[i] = new(big.Int).SetBytes(nullifiers[i])
		witness.CmOut[i] = new(big.Int).SetBytes(outputs[i])
	}
	w, err := frontend.NewWitness(witness, ecc.BLS12_377.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	proof := groth16.NewProof(ecc.BLS12_377)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("proof unmarshaling failed: %w", err)
	}
	if err := groth16.Verify(proof, vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BLS12_377)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey loads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BLS12_377)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// SetupOrLoadKeys generates or loads Groth16 keys for the circuit.
// If keys exist on disk, loads them; otherwise, generates and saves new keys.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}
