package keygen

import (
	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/shamir"
)

// Session tracks the key-generation or reshare state of a single key id.
//
// A Session is not safe for concurrent use. The registry applies operations
// one at a time on a [Session.Clone] and keeps the clone only on success, but
// every method also guarantees that a returned error leaves the receiver
// untouched.
type Session struct {
	id     KeyID
	params Params
	round  Round

	roles      []Role
	lagrange   []bjj.Scalar
	round1     []Round1Contribution
	round1Done []bool
	// round2[i][j] is the ciphertext producer i sent to party j.
	round2     [][]Ciphertext
	round2Done []bool
	round3Done []bool

	shareCommitments     []bjj.Point
	prevShareCommitments []bjj.Point
	keyAggregate         bjj.Point

	numProducers   int
	generatedEpoch uint64
}

// NewSession returns a fresh session in RoundNotStarted.
func NewSession(id KeyID) *Session {
	return &Session{id: id, round: RoundNotStarted, keyAggregate: bjj.Identity()}
}

// RestoreSession rebuilds an idle session from durable state: the share
// commitments of the last finalized session, or a deletion tombstone.
func RestoreSession(id KeyID, prevShareCommitments []bjj.Point, deleted bool) *Session {
	s := NewSession(id)
	if deleted {
		s.round = RoundDeleted
		return s
	}
	s.prevShareCommitments = append([]bjj.Point(nil), prevShareCommitments...)
	return s
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	c := *s
	c.roles = append([]Role(nil), s.roles...)
	c.lagrange = cloneScalars(s.lagrange)
	c.round1Done = append([]bool(nil), s.round1Done...)
	c.round2Done = append([]bool(nil), s.round2Done...)
	c.round3Done = append([]bool(nil), s.round3Done...)
	c.shareCommitments = append([]bjj.Point(nil), s.shareCommitments...)
	c.prevShareCommitments = append([]bjj.Point(nil), s.prevShareCommitments...)

	if s.round1 != nil {
		c.round1 = make([]Round1Contribution, len(s.round1))
		for i := range s.round1 {
			c.round1[i] = s.round1[i].clone()
		}
	}
	// Rows are never mutated after they are written.
	c.round2 = append([][]Ciphertext(nil), s.round2...)
	return &c
}

func cloneScalars(in []bjj.Scalar) []bjj.Scalar {
	if in == nil {
		return nil
	}
	out := make([]bjj.Scalar, len(in))
	for i := range in {
		out[i].Set(&in[i])
	}
	return out
}

// start allocates round storage for a new session. The previous share
// commitments survive.
func (s *Session) start(p Params, epoch uint64) {
	n := p.NumPeers
	s.params = p
	s.generatedEpoch = epoch
	s.roles = make([]Role, n)
	s.lagrange = nil
	s.round1 = make([]Round1Contribution, n)
	for i := range s.round1 {
		s.round1[i] = Round1Contribution{CommShare: bjj.Identity(), EphPubKey: bjj.Identity()}
	}
	s.round1Done = make([]bool, n)
	s.round2 = make([][]Ciphertext, n)
	s.round2Done = make([]bool, n)
	s.round3Done = make([]bool, n)
	s.shareCommitments = identities(n)
	s.keyAggregate = bjj.Identity()
	s.numProducers = 0
	s.round = RoundOne
}

// reset drops all round-local storage and returns to RoundNotStarted.
func (s *Session) reset() {
	s.params = Params{}
	s.roles = nil
	s.lagrange = nil
	s.round1 = nil
	s.round1Done = nil
	s.round2 = nil
	s.round2Done = nil
	s.round3Done = nil
	s.shareCommitments = nil
	s.keyAggregate = bjj.Identity()
	s.numProducers = 0
	s.generatedEpoch = 0
	s.round = RoundNotStarted
}

func identities(n int) []bjj.Point {
	out := make([]bjj.Point, n)
	for i := range out {
		out[i].SetIdentity()
	}
	return out
}

// InitKeyGen starts a key generation. It requires RoundNotStarted and no
// registered key for the id.
func (s *Session) InitKeyGen(p Params, registered bool) ([]Event, error) {
	switch s.round {
	case RoundNotStarted:
	case RoundDeleted:
		return nil, ErrDeletedKeyID
	default:
		return nil, wrongRound("init key generation", s.round)
	}
	if registered {
		return nil, ErrKeyAlreadyRegistered
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.start(p, 0)
	ev := s.event(EventSecretGenRound1)
	ev.Threshold = p.Threshold
	return []Event{ev}, nil
}

// InitReshare starts a reshare of key. The session targets epoch
// key.Epoch+1; the registered epoch itself only moves on finalization.
func (s *Session) InitReshare(p Params, key *RegisteredKey) ([]Event, error) {
	switch s.round {
	case RoundNotStarted:
	case RoundDeleted:
		return nil, ErrDeletedKeyID
	default:
		return nil, wrongRound("init reshare", s.round)
	}
	if key == nil {
		return nil, ErrUnknownKeyID
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(s.prevShareCommitments) != p.NumPeers {
		return nil, ErrInvariant
	}

	s.start(p, key.Epoch+1)
	ev := s.event(EventReshareRound1)
	ev.Threshold = p.Threshold
	return []Event{ev}, nil
}

// Abort cancels a running session. Round data is dropped; the registered key
// and the previous share commitments are kept. Aborting an idle session is
// an error.
func (s *Session) Abort() ([]Event, error) {
	switch s.round {
	case RoundOne, RoundTwo, RoundThree, RoundStuck:
	case RoundDeleted:
		return nil, ErrDeletedKeyID
	case RoundNotStarted:
		return nil, ErrUnknownKeyID
	default:
		return nil, ErrInvariant
	}
	ev := s.event(EventAbort)
	s.reset()
	return []Event{ev}, nil
}

// Delete marks the id as deleted. It requires RoundNotStarted and a
// registered key. A deleted id can never be initialized again.
func (s *Session) Delete(registered bool) ([]Event, error) {
	switch s.round {
	case RoundNotStarted:
	case RoundDeleted:
		return nil, ErrDeletedKeyID
	default:
		return nil, wrongRound("delete", s.round)
	}
	if !registered {
		return nil, ErrUnknownKeyID
	}
	s.reset()
	s.prevShareCommitments = nil
	s.round = RoundDeleted
	return []Event{{Kind: EventDeletion, KeyID: s.id}}, nil
}

// ID returns the key id.
func (s *Session) ID() KeyID { return s.id }

// Round returns the current round.
func (s *Session) Round() Round { return s.round }

// Params returns the roster shape of the running session.
func (s *Session) Params() Params { return s.params }

// GeneratedEpoch returns 0 for a key generation and the target epoch for a
// reshare.
func (s *Session) GeneratedEpoch() uint64 { return s.generatedEpoch }

// IsReshare reports whether the running session is a reshare.
func (s *Session) IsReshare() bool { return s.generatedEpoch > 0 }

// Active reports whether a session is running, including RoundStuck.
func (s *Session) Active() bool {
	switch s.round {
	case RoundOne, RoundTwo, RoundThree, RoundStuck:
		return true
	default:
		return false
	}
}

// Roles returns a copy of the party roles.
func (s *Session) Roles() []Role {
	return append([]Role(nil), s.roles...)
}

// Producers returns the producer party ids in ascending order.
func (s *Session) Producers() []int {
	var ids []int
	for id, r := range s.roles {
		if r == RoleProducer {
			ids = append(ids, id)
		}
	}
	return ids
}

// LagrangeCoefficients returns the reshare weights, or nil before the
// producer set is complete.
func (s *Session) LagrangeCoefficients() []bjj.Scalar {
	return cloneScalars(s.lagrange)
}

// ShareCommitments returns the share commitments accumulated in round 2.
func (s *Session) ShareCommitments() []bjj.Point {
	return append([]bjj.Point(nil), s.shareCommitments...)
}

// PrevShareCommitments returns the share commitments of the last finalized
// session.
func (s *Session) PrevShareCommitments() []bjj.Point {
	return append([]bjj.Point(nil), s.prevShareCommitments...)
}

// KeyAggregate returns the running sum of round-1 share commitments.
func (s *Session) KeyAggregate() bjj.Point { return s.keyAggregate }

// EphemeralPublicKeys returns every party's round-1 ephemeral key. Producers
// need them to encrypt in round 2, so they are only served from round 2 on.
func (s *Session) EphemeralPublicKeys() ([]bjj.Point, error) {
	switch s.round {
	case RoundTwo, RoundThree:
	default:
		return nil, wrongRound("read ephemeral keys", s.round)
	}
	keys := make([]bjj.Point, len(s.round1))
	for i := range s.round1 {
		keys[i] = s.round1[i].EphPubKey
	}
	return keys, nil
}

// Round1 returns a copy of the round-1 contributions indexed by party.
// Entries of parties that have not submitted hold identity points.
func (s *Session) Round1() []Round1Contribution {
	if s.round1 == nil {
		return nil
	}
	out := make([]Round1Contribution, len(s.round1))
	for i := range s.round1 {
		out[i] = s.round1[i].clone()
	}
	return out
}

// Submitted reports which parties have submitted in the current round.
func (s *Session) Submitted() []bool {
	switch s.round {
	case RoundOne, RoundStuck:
		return append([]bool(nil), s.round1Done...)
	case RoundTwo:
		return append([]bool(nil), s.round2Done...)
	case RoundThree:
		return append([]bool(nil), s.round3Done...)
	default:
		return nil
	}
}

// CiphertextsFor returns the ciphertexts addressed to party, ordered by
// sender. They are only served in round 3.
func (s *Session) CiphertextsFor(party int) ([]SenderCiphertext, error) {
	if s.round != RoundThree {
		return nil, wrongRound("read ciphertexts", s.round)
	}
	if party < 0 || party >= s.params.NumPeers {
		return nil, ErrNotParticipant
	}
	var out []SenderCiphertext
	for from, row := range s.round2 {
		if !s.round2Done[from] {
			continue
		}
		out = append(out, SenderCiphertext{From: from, Ciphertext: row[party].clone()})
	}
	return out, nil
}

func (s *Session) computeLagrange() {
	producers := s.Producers()
	s.lagrange = shamir.LagrangeCoefficients(producers, s.params.Threshold, s.params.NumPeers)
}
