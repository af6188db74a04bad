package proof

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrRejected is returned, possibly wrapped, when a verifier rejects a proof.
	ErrRejected = errors.New("proof: rejected")

	// ErrUnsupportedShape is returned when no verifier is registered for a
	// (threshold, numPeers) combination.
	ErrUnsupportedShape = errors.New("proof: unsupported threshold/peer combination")

	// ErrMalformedInputs is returned when a statement cannot be encoded.
	ErrMalformedInputs = errors.New("proof: malformed public inputs")
)

// Compressed is a compressed proof: four 256-bit words.
type Compressed [4]*big.Int

// MarshalJSON encodes the proof as four decimal strings.
func (c Compressed) MarshalJSON() ([]byte, error) {
	words := make([]string, len(c))
	for i, w := range c {
		if w == nil {
			w = new(big.Int)
		}
		words[i] = w.String()
	}
	return json.Marshal(words)
}

// UnmarshalJSON decodes four non-negative decimal strings below 2^256.
func (c *Compressed) UnmarshalJSON(data []byte) error {
	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return err
	}
	if len(words) != len(c) {
		return fmt.Errorf("proof: expected %d words, got %d", len(c), len(words))
	}
	for i, s := range words {
		w, ok := new(big.Int).SetString(s, 10)
		if !ok || w.Sign() < 0 || w.BitLen() > 256 {
			return fmt.Errorf("proof: invalid word %d", i)
		}
		c[i] = w
	}
	return nil
}

// Inputs is the public-input vector handed to a verifier.
type Inputs []fr.Element

// Strings returns the inputs in decimal.
func (in Inputs) Strings() []string {
	out := make([]string, len(in))
	var b big.Int
	for i := range in {
		out[i] = in[i].BigInt(&b).String()
	}
	return out
}

// Digest returns the blake2b-256 fingerprint of the input vector. It is
// logged next to verification results so peers can match them against their
// own encoding.
func Digest(in Inputs) [32]byte {
	buf := make([]byte, 0, len(in)*fr.Bytes)
	for i := range in {
		b := in[i].Bytes()
		buf = append(buf, b[:]...)
	}
	return blake2b.Sum256(buf)
}

// DigestHex is [Digest] hex encoded.
func DigestHex(in Inputs) string {
	d := Digest(in)
	return hex.EncodeToString(d[:])
}

// Verifier checks a compressed proof against public inputs. Verify must be
// free of side effects; a reject wraps [ErrRejected].
type Verifier interface {
	Verify(ctx context.Context, proof Compressed, inputs Inputs) error
}

// Func adapts a function to the [Verifier] interface.
type Func func(ctx context.Context, proof Compressed, inputs Inputs) error

// Verify calls f.
func (f Func) Verify(ctx context.Context, proof Compressed, inputs Inputs) error {
	return f(ctx, proof, inputs)
}

// AcceptAll accepts every proof. It must only be used for local development
// and tests.
type AcceptAll struct{}

// Verify always returns nil.
func (AcceptAll) Verify(context.Context, Compressed, Inputs) error {
	return nil
}

// Shape identifies a verifier configuration.
type Shape struct {
	Threshold int
	NumPeers  int
}

// String returns the shape as threshold-of-peers.
func (s Shape) String() string {
	return fmt.Sprintf("%d-of-%d", s.Threshold, s.NumPeers)
}

// Set holds one verifier per supported shape. It is safe for concurrent use.
type Set struct {
	mu        sync.RWMutex
	verifiers map[Shape]Verifier
}

// NewSet returns an empty verifier set.
func NewSet() *Set {
	return &Set{verifiers: make(map[Shape]Verifier)}
}

// Register installs v for the given shape, replacing any previous verifier.
func (s *Set) Register(threshold, numPeers int, v Verifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifiers[Shape{Threshold: threshold, NumPeers: numPeers}] = v
}

// Lookup returns the verifier for the given shape.
func (s *Set) Lookup(threshold, numPeers int) (Verifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shape := Shape{Threshold: threshold, NumPeers: numPeers}
	v, ok := s.verifiers[shape]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedShape, shape)
	}
	return v, nil
}
