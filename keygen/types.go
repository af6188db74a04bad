package keygen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/proof"
)

// KeyID identifies an OPRF key and its key-generation session.
type KeyID uint64

// String returns id in decimal.
func (id KeyID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseKeyID parses a decimal key id.
func ParseKeyID(s string) (KeyID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("keygen: invalid key id %q", s)
	}
	return KeyID(v), nil
}

// Round is the protocol phase of a session.
type Round uint8

const (
	// RoundNotStarted is an idle id: no session, or the last one finalized
	// or was aborted.
	RoundNotStarted Round = iota
	// RoundOne collects commitments and ephemeral keys.
	RoundOne
	// RoundTwo collects proof-gated ciphertexts from producers.
	RoundTwo
	// RoundThree collects acknowledgements from every party.
	RoundThree
	// RoundStuck is a reshare that ended round 1 with too few producers.
	// Only an abort leaves it.
	RoundStuck
	// RoundDeleted is terminal. The id cannot be used again.
	RoundDeleted
)

// String returns the round name used in logs and JSON.
func (r Round) String() string {
	switch r {
	case RoundNotStarted:
		return "NOT_STARTED"
	case RoundOne:
		return "ROUND_ONE"
	case RoundTwo:
		return "ROUND_TWO"
	case RoundThree:
		return "ROUND_THREE"
	case RoundStuck:
		return "STUCK"
	case RoundDeleted:
		return "DELETED"
	default:
		return "Round(" + strconv.Itoa(int(r)) + ")"
	}
}

// MarshalText encodes the round name.
func (r Round) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Role is a party's role in the current session.
type Role uint8

const (
	// RoleNotReady is a party that has not submitted round 1.
	RoleNotReady Role = iota
	// RoleProducer deals new shares in round 2.
	RoleProducer
	// RoleConsumer only receives shares.
	RoleConsumer
)

// String returns the role name used in logs and JSON.
func (r Role) String() string {
	switch r {
	case RoleNotReady:
		return "NOT_READY"
	case RoleProducer:
		return "PRODUCER"
	case RoleConsumer:
		return "CONSUMER"
	default:
		return "Role(" + strconv.Itoa(int(r)) + ")"
	}
}

// MarshalText encodes the role name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Params is the roster shape a session runs with. It is captured when a
// session starts and does not change until the session ends.
type Params struct {
	NumPeers  int
	Threshold int
}

// Validate checks 1 <= Threshold <= NumPeers.
func (p Params) Validate() error {
	if p.NumPeers < 1 || p.Threshold < 1 || p.Threshold > p.NumPeers {
		return fmt.Errorf("%w: threshold %d of %d peers", ErrInvalidParams, p.Threshold, p.NumPeers)
	}
	return nil
}

// Round1Contribution is a party's first-round submission.
//
// In a reshare, a consumer leaves CommShare at the identity and CommCoeffs
// nil or zero.
type Round1Contribution struct {
	CommShare  bjj.Point `json:"comm_share"`
	CommCoeffs *big.Int  `json:"comm_coeffs"`
	EphPubKey  bjj.Point `json:"eph_pub_key"`
}

// UnmarshalJSON decodes a contribution strictly. An absent comm_share
// decodes as the identity, so a consumer may omit both commitments.
func (c *Round1Contribution) UnmarshalJSON(data []byte) error {
	type plain Round1Contribution
	v := plain{CommShare: bjj.Identity()}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*c = Round1Contribution(v)
	return nil
}

func (c *Round1Contribution) clone() Round1Contribution {
	out := Round1Contribution{CommShare: c.CommShare, EphPubKey: c.EphPubKey}
	if c.CommCoeffs != nil {
		out.CommCoeffs = new(big.Int).Set(c.CommCoeffs)
	}
	return out
}

// Ciphertext is the encrypted share a producer sends to one recipient,
// together with the public commitment to that share.
type Ciphertext struct {
	Nonce      *big.Int  `json:"nonce"`
	Cipher     *big.Int  `json:"cipher"`
	Commitment bjj.Point `json:"commitment"`
}

func (c *Ciphertext) clone() Ciphertext {
	return Ciphertext{
		Nonce:      new(big.Int).Set(c.Nonce),
		Cipher:     new(big.Int).Set(c.Cipher),
		Commitment: c.Commitment,
	}
}

// Round2Contribution is a producer's second-round submission. Ciphers[j] is
// addressed to party j.
type Round2Contribution struct {
	Proof   proof.Compressed `json:"proof"`
	Ciphers []Ciphertext     `json:"ciphers"`
}

// SenderCiphertext is a ciphertext together with the producer that sent it.
type SenderCiphertext struct {
	From int `json:"from"`
	Ciphertext
}

// RegisteredKey is the durable result of a finalized session.
type RegisteredKey struct {
	Key   bjj.Point `json:"key"`
	Epoch uint64    `json:"epoch"`
}

// Finalization describes the registry write that completes a session.
type Finalization struct {
	// KeyGen is true for a key generation and false for a reshare.
	KeyGen bool
	// Key is the aggregated public key. Only set for key generation.
	Key bjj.Point
	// Epoch is the epoch the registered key moves to.
	Epoch uint64
	// ShareCommitments are the per-party share commitments that the next
	// reshare validates producers against.
	ShareCommitments []bjj.Point
}
