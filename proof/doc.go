// Package proof defines the gate that round-2 contributions must pass.
//
// A producer's round-2 submission carries a compressed zero-knowledge proof
// that its ciphertexts and share commitments are consistent with its round-1
// commitments. The coordinator treats the proof system as an oracle: it
// encodes a fixed public-input vector with [NewInputs] and asks a
// [Verifier] to accept or reject.
//
// # Public-input layout
//
// Layout version 1 for a roster of n peers is the following sequence of
// BN254 scalar field elements:
//
//	ephPk.x, ephPk.y             submitter ephemeral public key
//	commShare.x, commShare.y     submitter round-1 share commitment
//	commCoeffs                   submitter round-1 coefficient commitment
//	cipher[0..n)                 ciphertexts addressed to every peer
//	commitment[0..n).x, .y       per-recipient share commitments
//	peerEphPk[0..n).x, .y        every peer's ephemeral public key
//	degree                       threshold - 1
//	nonce[0..n)                  encryption nonces
//
// for a total of 6 + 6n elements.
//
// # Verifiers
//
// Verifiers are registered per (threshold, numPeers) shape in a [Set]. An
// [HTTPVerifier] forwards to an external verification service; [AcceptAll]
// exists for local development only.
package proof
