package keygen

import (
	"context"
	"fmt"
	"math/big"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/proof"
)

func (s *Session) checkParty(party int) error {
	if party < 0 || party >= s.params.NumPeers {
		return ErrNotParticipant
	}
	return nil
}

func checkFieldElement(field string, v *big.Int) error {
	if v == nil || v.Sign() < 0 || v.Cmp(bjj.FieldModulus()) >= 0 {
		return fmt.Errorf("%s: %w", field, ErrFieldElement)
	}
	return nil
}

func allDone(done []bool) bool {
	for _, d := range done {
		if !d {
			return false
		}
	}
	return true
}

func countDone(done []bool) int {
	n := 0
	for _, d := range done {
		if d {
			n++
		}
	}
	return n
}

// AddRound1KeyGen records party's round-1 key-generation contribution.
// Every party is a producer. When the last party has submitted, the session
// moves to round 2.
func (s *Session) AddRound1KeyGen(party int, c *Round1Contribution) ([]Event, error) {
	if s.round != RoundOne {
		return nil, wrongRound("round 1 contribution", s.round)
	}
	if s.IsReshare() {
		return nil, ErrWrongSessionKind
	}
	if err := s.checkParty(party); err != nil {
		return nil, err
	}
	if s.round1Done[party] {
		return nil, ErrAlreadySubmitted
	}
	if err := c.EphPubKey.Validate(); err != nil {
		return nil, invalidPoint("ephemeral public key", err)
	}
	if err := c.CommShare.Validate(); err != nil {
		return nil, invalidPoint("share commitment", err)
	}
	if err := checkFieldElement("coefficient commitment", c.CommCoeffs); err != nil {
		return nil, err
	}
	if c.CommCoeffs.Sign() == 0 {
		return nil, ErrZeroCoefficients
	}

	last := countDone(s.round1Done) == s.params.NumPeers-1
	if last && s.numProducers+1 != s.params.NumPeers {
		return nil, fmt.Errorf("%w: %d producers after round 1 of key generation", ErrInvariant, s.numProducers+1)
	}

	s.roles[party] = RoleProducer
	s.round1[party] = c.clone()
	s.round1Done[party] = true
	s.keyAggregate.Add(&s.keyAggregate, &c.CommShare)
	s.numProducers++

	if !last {
		return nil, nil
	}
	s.round = RoundTwo
	s.shareCommitments = identities(s.params.NumPeers)
	return []Event{s.event(EventSecretGenRound2)}, nil
}

// AddRound1Reshare records party's round-1 reshare contribution.
//
// An empty pair (identity share commitment, zero coefficient commitment)
// declares the party a consumer. A non-empty pair offers the party as a
// producer; its share commitment must equal the party's previous share
// commitment. Once threshold producers are registered, later parties become
// consumers regardless of what they submit, and the Lagrange coefficients of
// the producer set are fixed.
//
// When all parties have submitted the session moves to round 2, or to
// RoundStuck if fewer than threshold producers came forward.
func (s *Session) AddRound1Reshare(party int, c *Round1Contribution) ([]Event, error) {
	if s.round != RoundOne {
		return nil, wrongRound("round 1 contribution", s.round)
	}
	if !s.IsReshare() {
		return nil, ErrWrongSessionKind
	}
	if err := s.checkParty(party); err != nil {
		return nil, err
	}
	if s.round1Done[party] {
		return nil, ErrAlreadySubmitted
	}
	if err := c.EphPubKey.Validate(); err != nil {
		return nil, invalidPoint("ephemeral public key", err)
	}

	emptyShare := c.CommShare.IsIdentity()
	emptyCoeffs := c.CommCoeffs == nil || c.CommCoeffs.Sign() == 0
	if emptyShare != emptyCoeffs {
		return nil, ErrUnpairedContribution
	}

	role := RoleConsumer
	if !emptyShare {
		if err := c.CommShare.Validate(); err != nil {
			return nil, invalidPoint("share commitment", err)
		}
		if err := checkFieldElement("coefficient commitment", c.CommCoeffs); err != nil {
			return nil, err
		}
		if s.numProducers < s.params.Threshold {
			if !c.CommShare.Equal(&s.prevShareCommitments[party]) {
				return nil, ErrShareMismatch
			}
			role = RoleProducer
		}
	}

	stored := Round1Contribution{CommShare: bjj.Identity(), EphPubKey: c.EphPubKey}
	if role == RoleProducer {
		stored = c.clone()
	}
	s.roles[party] = role
	s.round1[party] = stored
	s.round1Done[party] = true

	var events []Event
	if role == RoleProducer {
		s.numProducers++
		if s.numProducers == s.params.Threshold {
			s.computeLagrange()
		}
	}

	if !allDone(s.round1Done) {
		return events, nil
	}
	if s.numProducers < s.params.Threshold {
		s.round = RoundStuck
		return append(events, s.event(EventNotEnoughProducers)), nil
	}
	s.round = RoundTwo
	s.shareCommitments = identities(s.params.NumPeers)
	return append(events, s.event(EventSecretGenRound2)), nil
}

// AddRound2 records a producer's round-2 contribution. The ciphertext
// commitments are validated and the proof is checked by v before anything
// is stored. Commitments are accumulated per recipient: summed for key
// generation, weighted by the producer's Lagrange coefficient for a reshare.
func (s *Session) AddRound2(ctx context.Context, party int, c *Round2Contribution, v proof.Verifier) ([]Event, error) {
	if s.round != RoundTwo {
		return nil, wrongRound("round 2 contribution", s.round)
	}
	if err := s.checkParty(party); err != nil {
		return nil, err
	}
	if s.roles[party] != RoleProducer {
		return nil, ErrNotProducer
	}
	if s.round2Done[party] {
		return nil, ErrAlreadySubmitted
	}
	n := s.params.NumPeers
	if len(c.Ciphers) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCiphertextCount, len(c.Ciphers), n)
	}

	var lambda *big.Int
	if s.IsReshare() {
		if s.lagrange == nil {
			return nil, fmt.Errorf("%w: reshare round 2 without lagrange coefficients", ErrInvariant)
		}
		lambda = s.lagrange[party].BigInt()
	}

	st := &proof.Statement{
		EphPubKey:      s.round1[party].EphPubKey,
		CommShare:      s.round1[party].CommShare,
		CommCoeffs:     s.round1[party].CommCoeffs,
		Ciphers:        make([]*big.Int, n),
		Commitments:    make([]bjj.Point, n),
		Nonces:         make([]*big.Int, n),
		PeerEphPubKeys: make([]bjj.Point, n),
		Threshold:      s.params.Threshold,
	}
	next := make([]bjj.Point, n)
	for j := range c.Ciphers {
		ct := &c.Ciphers[j]
		if err := ct.Commitment.Validate(); err != nil {
			return nil, invalidPoint(fmt.Sprintf("commitment for party %d", j), err)
		}
		if err := checkFieldElement(fmt.Sprintf("nonce for party %d", j), ct.Nonce); err != nil {
			return nil, err
		}
		if err := checkFieldElement(fmt.Sprintf("cipher for party %d", j), ct.Cipher); err != nil {
			return nil, err
		}

		contribution := ct.Commitment
		if lambda != nil {
			if _, err := contribution.ScalarMul(lambda, &ct.Commitment); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
			}
		}
		next[j].Add(&s.shareCommitments[j], &contribution)

		st.Ciphers[j] = ct.Cipher
		st.Commitments[j] = ct.Commitment
		st.Nonces[j] = ct.Nonce
		st.PeerEphPubKeys[j] = s.round1[j].EphPubKey
	}

	inputs, err := proof.NewInputs(st)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadContribution, err)
	}
	if err := v.Verify(ctx, c.Proof, inputs); err != nil {
		return nil, err
	}

	row := make([]Ciphertext, n)
	for j := range c.Ciphers {
		row[j] = c.Ciphers[j].clone()
	}
	s.round2[party] = row
	s.round2Done[party] = true
	s.shareCommitments = next

	needed := n
	if s.IsReshare() {
		needed = s.params.Threshold
	}
	if countDone(s.round2Done) < needed {
		return nil, nil
	}

	s.round = RoundThree
	if !s.IsReshare() {
		return []Event{s.event(EventSecretGenRound3)}, nil
	}
	ev := s.event(EventReshareRound3)
	ev.LagrangeCoefficients = cloneScalars(s.lagrange)
	return []Event{ev}, nil
}

// AddRound3 records party's acknowledgement. Every party acknowledges once.
// When all have, the session finalizes: the returned [Finalization] tells
// the registry what to persist, the share commitments become the previous
// share commitments, and the session returns to RoundNotStarted.
func (s *Session) AddRound3(party int) ([]Event, *Finalization, error) {
	if s.round != RoundThree {
		return nil, nil, wrongRound("round 3 contribution", s.round)
	}
	if err := s.checkParty(party); err != nil {
		return nil, nil, err
	}
	if s.round3Done[party] {
		return nil, nil, ErrAlreadySubmitted
	}

	s.round3Done[party] = true
	if !allDone(s.round3Done) {
		return nil, nil, nil
	}

	fin := &Finalization{
		KeyGen:           !s.IsReshare(),
		Key:              s.keyAggregate,
		Epoch:            s.generatedEpoch,
		ShareCommitments: append([]bjj.Point(nil), s.shareCommitments...),
	}
	ev := s.event(EventSecretGenFinalize)
	s.prevShareCommitments = append([]bjj.Point(nil), s.shareCommitments...)
	s.reset()
	return []Event{ev}, fin, nil
}
