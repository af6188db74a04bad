package proof

import (
	"fmt"
	"math/big"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// LayoutVersion identifies the public-input ordering produced by [NewInputs].
const LayoutVersion = 1

// Statement is everything a round-2 proof is verified against.
type Statement struct {
	// EphPubKey, CommShare and CommCoeffs come from the submitter's round-1
	// contribution.
	EphPubKey  bjj.Point
	CommShare  bjj.Point
	CommCoeffs *big.Int

	// Ciphers, Commitments and Nonces are indexed by recipient party id.
	Ciphers     []*big.Int
	Commitments []bjj.Point
	Nonces      []*big.Int

	// PeerEphPubKeys holds every peer's round-1 ephemeral key by party id.
	PeerEphPubKeys []bjj.Point

	Threshold int
}

// InputLen returns the number of public inputs for n peers.
func InputLen(n int) int {
	return 6 + 6*n
}

// NewInputs encodes st in layout version 1.
func NewInputs(st *Statement) (Inputs, error) {
	n := len(st.PeerEphPubKeys)
	if len(st.Ciphers) != n || len(st.Commitments) != n || len(st.Nonces) != n {
		return nil, fmt.Errorf("%w: expected %d entries per recipient", ErrMalformedInputs, n)
	}
	if st.Threshold < 1 {
		return nil, fmt.Errorf("%w: threshold %d", ErrMalformedInputs, st.Threshold)
	}

	in := make(Inputs, 0, InputLen(n))
	var err error
	push := func(v *big.Int) {
		if err != nil {
			return
		}
		if v == nil || v.Sign() < 0 || v.Cmp(fr.Modulus()) >= 0 {
			err = fmt.Errorf("%w: value outside scalar field", ErrMalformedInputs)
			return
		}
		var e fr.Element
		e.SetBigInt(v)
		in = append(in, e)
	}
	pushPoint := func(p *bjj.Point) {
		in = append(in, p.X, p.Y)
	}

	pushPoint(&st.EphPubKey)
	pushPoint(&st.CommShare)
	push(st.CommCoeffs)
	for _, c := range st.Ciphers {
		push(c)
	}
	for i := range st.Commitments {
		pushPoint(&st.Commitments[i])
	}
	for i := range st.PeerEphPubKeys {
		pushPoint(&st.PeerEphPubKeys[i])
	}
	push(big.NewInt(int64(st.Threshold - 1)))
	for _, nonce := range st.Nonces {
		push(nonce)
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}
