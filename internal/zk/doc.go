// Package zk implements the cryptographic layer of the floating-point
// protocol: MiMC commitments and nullifier PRFs, wallet-side notes, and the
// Groth16 transfer proof the protocol engine consumes through its
// ProofVerifier oracle.
//
// All hashing runs over the BLS12-377 scalar field so commitments and
// nullifiers are canonical 32-byte values; the transfer circuit is compiled
// and proven over the same field. Every value written into a hash is a
// canonical field element, padded to 32 bytes big-endian, so the native and
// in-circuit MiMC transcripts agree block for block.
package zk
