// Package keygen implements the per-key state machine that coordinates a
// threshold key generation or reshare of an OPRF key.
//
// The coordinator never sees secret material. Peers submit commitments,
// ephemeral public keys and encrypted shares; a [Session] checks that each
// submission is well formed and arrives in the right round, aggregates the
// public parts and tells its caller, through the returned events, what
// happened.
//
// # Key generation
//
// Every party in the roster is a producer:
//
//	s := keygen.NewSession(id)
//	events, err := s.InitKeyGen(keygen.Params{NumPeers: 3, Threshold: 2}, false)
//
//	// round 1: every party submits commitments and an ephemeral key
//	events, err = s.AddRound1KeyGen(party, &r1)
//
//	// round 2: every party submits ciphertexts and a proof
//	events, err = s.AddRound2(ctx, party, &r2, verifier)
//
//	// round 3: every party acknowledges; the last one finalizes
//	events, fin, err := s.AddRound3(party)
//
// The registered key is the sum of the round-1 share commitments.
//
// # Reshare
//
// A reshare keeps the key and moves it to the next epoch. In round 1 each
// party declares itself a producer, by committing to its current share, or a
// consumer, by submitting an empty contribution. The first threshold
// producers are kept; their Lagrange coefficients weight the round-2 share
// commitments so that the new shares interpolate to the same key. If fewer
// than threshold producers come forward the session becomes [RoundStuck] and
// can only be aborted.
//
// # Atomicity
//
// Every method either applies completely or returns an error and leaves the
// session as it was. Callers that need to persist side effects before
// committing work on a [Session.Clone].
package keygen
