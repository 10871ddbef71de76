// Package treasury implements a privacy-preserving pooled-deposit ledger.
//
// Overview:
//   - Contributors deposit value bound to a blinded Diffie-Hellman key pair
//     (P, Q) on Baby Jubjub; deposits are hashed into an append-only
//     incremental Merkle accumulator
//   - The treasury manager withdraws batches by presenting a zero-knowledge
//     proof of ownership and inclusion, checked against the current root
//   - A non-idempotent spent set prevents double spends; unspent remainder
//     of a batch is recycled into the accumulator as a fresh "change" leaf
//
// Security Model:
//   - Uses MiMC over the BN254 scalar field for leaf and interior hashing
//   - Uses BN254 twisted Edwards (Baby Jubjub) for DH-derived deposit keys
//   - Proof verification is an injected capability (Groth16 in production,
//     stubs in tests); the ledger never inspects proof internals
//   - All randomness is generated using crypto/rand
//
// Usage:
//   - Construct a Ledger with NewLedger and drive it through Deposit,
//     Withdraw and Register; every ledger-side failure leaves state
//     byte-identical to before the call
//
// WARNING: This package is for research and educational purposes. Use with
// caution in production environments.
package treasury
