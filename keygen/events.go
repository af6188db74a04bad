package keygen

import "github.com/TaceoLabs/oprf-key-registry/bjj"

// EventKind names a protocol notification.
type EventKind string

const (
	EventSecretGenRound1    EventKind = "secret_gen_round1"
	EventSecretGenRound2    EventKind = "secret_gen_round2"
	EventSecretGenRound3    EventKind = "secret_gen_round3"
	EventSecretGenFinalize  EventKind = "secret_gen_finalize"
	EventReshareRound1      EventKind = "reshare_round1"
	EventReshareRound3      EventKind = "reshare_round3"
	EventNotEnoughProducers EventKind = "not_enough_producers"
	EventAbort              EventKind = "keygen_abort"
	EventDeletion           EventKind = "key_deletion"
)

// Event is emitted by every successful state transition. Peers act on the
// order of events rather than on polled state.
type Event struct {
	Kind      EventKind `json:"kind"`
	KeyID     KeyID     `json:"key_id"`
	Epoch     uint64    `json:"epoch"`
	Threshold int       `json:"threshold,omitempty"`

	// LagrangeCoefficients is set on EventReshareRound3, indexed by party id.
	LagrangeCoefficients []bjj.Scalar `json:"lagrange_coefficients,omitempty"`
}

func (s *Session) event(kind EventKind) Event {
	return Event{Kind: kind, KeyID: s.id, Epoch: s.generatedEpoch}
}
