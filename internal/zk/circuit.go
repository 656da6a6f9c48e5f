// circuit.go - Groth16 circuit for the two-in/two-out shielded transfer.

package zk

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// TransferArity is the fixed fan-in and fan-out of a shielded transfer.
// Callers with a single input pad with a second real note of their own.
const TransferArity = 2

// TransferCircuit proves that a privacy payment is well formed: the prover
// owns every input commitment, the published serial numbers are the unique
// spend tags of those inputs, the output commitments open to the claimed
// masses, and total mass is conserved.
type TransferCircuit struct {
	// Public inputs
	CmIn  [TransferArity]frontend.Variable `gnark:",public"`
	SnIn  [TransferArity]frontend.Variable `gnark:",public"`
	CmOut [TransferArity]frontend.Variable `gnark:",public"`

	// Private inputs
	SkIn    [TransferArity]frontend.Variable
	RhoIn   [TransferArity]frontend.Variable
	RandIn  [TransferArity]frontend.Variable
	MassIn  [TransferArity]frontend.Variable
	PkOut   [TransferArity]frontend.Variable
	RhoOut  [TransferArity]frontend.Variable
	RandOut [TransferArity]frontend.Variable
	MassOut [TransferArity]frontend.Variable
}

func (c *TransferCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	for i := 0; i < TransferArity; i++ {
		// Ownership: pkIn = H(skIn)
		hasher.Reset()
		hasher.Write(c.SkIn[i])
		pkIn := hasher.Sum()

		// Input opening: cmIn = Com(mass, pk, rho, rand)
		hasher.Reset()
		hasher.Write(c.MassIn[i])
		hasher.Write(pkIn)
		hasher.Write(c.RhoIn[i])
		hasher.Write(c.RandIn[i])
		api.AssertIsEqual(c.CmIn[i], hasher.Sum())

		// Serial number: snIn = PRF(skIn, rhoIn)
		api.AssertIsEqual(c.SnIn[i], PRF(api, c.SkIn[i], c.RhoIn[i]))

		// Output opening: cmOut = Com(mass, pk, rho, rand)
		hasher.Reset()
		hasher.Write(c.MassOut[i])
		hasher.Write(c.PkOut[i])
		hasher.Write(c.RhoOut[i])
		hasher.Write(c.RandOut[i])
		api.AssertIsEqual(c.CmOut[i], hasher.Sum())
	}

	// Mass conservation
	api.AssertIsEqual(
		api.Add(c.MassIn[0], c.MassIn[1]),
		api.Add(c.MassOut[0], c.MassOut[1]),
	)

	return nil
}

// PRF implements the serial-number pseudo-random function with MiMC in the
// circuit. Matches the native Nullifier computation.
func PRF(api frontend.API, sk, rho frontend.Variable) frontend.Variable {
	hasher, _ := mimc.NewMiMC(api)
	hasher.Write(sk)
	hasher.Write(rho)
	return hasher.Sum()
}
