// Package fixture deals deterministic key-generation and reshare
// contributions for tests.
//
// A [Dealer] holds every party's secrets, so it can produce the submissions
// honest peers would send and compute the shares they would end up with.
// Ciphertexts use a toy encryption, cipher = share + x(ECDH) mod Q, which is
// enough to check routing but is not secure.
package fixture

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"math/rand/v2"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/TaceoLabs/oprf-key-registry/proof"
	"github.com/TaceoLabs/oprf-key-registry/shamir"
	"golang.org/x/crypto/blake2b"
)

// Dealer produces contributions for one session.
type Dealer struct {
	Params keygen.Params
	// Polys[i] is party i's sharing polynomial, nil for a consumer.
	Polys []*shamir.Polynomial
	// EphKeys[i] is party i's ephemeral secret key.
	EphKeys []bjj.Scalar

	reshare bool
	rng     io.Reader
}

// NewReader returns a deterministic byte stream for seed.
func NewReader(seed uint64) io.Reader {
	var key [32]byte
	binary.BigEndian.PutUint64(key[:], seed)
	return rand.NewChaCha8(key)
}

// NewKeyGen returns a dealer for a key generation in which every party
// deals a random polynomial of degree threshold-1.
func NewKeyGen(p keygen.Params, seed uint64) *Dealer {
	d := newDealer(p, seed, false)
	for i := range d.Polys {
		secret := d.scalar()
		d.Polys[i] = d.polynomial(&secret)
	}
	return d
}

// NewReshare returns a dealer for a reshare. Parties listed in producers
// reshare shares[i]; everyone else submits an empty round-1 contribution.
func NewReshare(p keygen.Params, shares []bjj.Scalar, producers []int, seed uint64) *Dealer {
	d := newDealer(p, seed, true)
	for _, i := range producers {
		d.Polys[i] = d.polynomial(&shares[i])
	}
	return d
}

func newDealer(p keygen.Params, seed uint64, reshare bool) *Dealer {
	d := &Dealer{
		Params:  p,
		Polys:   make([]*shamir.Polynomial, p.NumPeers),
		EphKeys: make([]bjj.Scalar, p.NumPeers),
		reshare: reshare,
		rng:     NewReader(seed),
	}
	for i := range d.EphKeys {
		d.EphKeys[i] = d.scalar()
	}
	return d
}

func (d *Dealer) read(mod *big.Int) *big.Int {
	var buf [40]byte
	if _, err := io.ReadFull(d.rng, buf[:]); err != nil {
		panic(err)
	}
	return new(big.Int).Mod(new(big.Int).SetBytes(buf[:]), mod)
}

func (d *Dealer) scalar() bjj.Scalar {
	for {
		v := d.read(bjj.Order())
		if v.Sign() == 0 {
			continue
		}
		var s bjj.Scalar
		s.SetBigInt(v)
		return s
	}
}

func (d *Dealer) polynomial(secret *bjj.Scalar) *shamir.Polynomial {
	poly, err := shamir.NewPolynomial(d.rng, secret, d.Params.Threshold-1)
	if err != nil {
		panic(err)
	}
	return poly
}

// EphPubKey returns party i's ephemeral public key.
func (d *Dealer) EphPubKey(i int) bjj.Point {
	return shamir.CommitScalar(&d.EphKeys[i])
}

// Round1 returns party i's round-1 contribution.
func (d *Dealer) Round1(i int) *keygen.Round1Contribution {
	c := &keygen.Round1Contribution{CommShare: bjj.Identity(), EphPubKey: d.EphPubKey(i)}
	if d.Polys[i] == nil {
		return c
	}
	c.CommShare = shamir.CommitScalar(&d.Polys[i].Coefficients[0])
	c.CommCoeffs = CoefficientCommitment(d.Polys[i])
	return c
}

// CoefficientCommitment returns a nonzero field element binding the
// polynomial's coefficient commitments.
func CoefficientCommitment(poly *shamir.Polynomial) *big.Int {
	h, _ := blake2b.New256(nil)
	for _, c := range poly.Commit() {
		b, _ := c.MarshalBinary()
		h.Write(b)
	}
	v := new(big.Int).SetBytes(h.Sum(nil))
	v.Mod(v, bjj.FieldModulus())
	if v.Sign() == 0 {
		v.SetInt64(1)
	}
	return v
}

// Round2 returns producer i's round-2 contribution with a zero proof.
func (d *Dealer) Round2(i int) *keygen.Round2Contribution {
	poly := d.Polys[i]
	if poly == nil {
		panic(fmt.Sprintf("fixture: party %d is not a producer", i))
	}
	c := &keygen.Round2Contribution{
		Proof:   proof.Compressed{big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0)},
		Ciphers: make([]keygen.Ciphertext, d.Params.NumPeers),
	}
	for j := range c.Ciphers {
		share := poly.EvalAt(j)
		cipher := new(big.Int).Add(share.BigInt(), d.pad(i, j))
		cipher.Mod(cipher, bjj.FieldModulus())
		c.Ciphers[j] = keygen.Ciphertext{
			Nonce:      d.read(bjj.FieldModulus()),
			Cipher:     cipher,
			Commitment: shamir.CommitScalar(&share),
		}
	}
	return c
}

// pad returns the x coordinate of the shared point between parties a and b.
func (d *Dealer) pad(a, b int) *big.Int {
	pk := d.EphPubKey(b)
	var shared bjj.Point
	if _, err := shared.ScalarMul(d.EphKeys[a].BigInt(), &pk); err != nil {
		panic(err)
	}
	x, _ := shared.BigInts()
	return x
}

// Decrypt recovers the share that sender encrypted for receiver.
func (d *Dealer) Decrypt(receiver, sender int, ct *keygen.Ciphertext) bjj.Scalar {
	v := new(big.Int).Sub(ct.Cipher, d.pad(receiver, sender))
	v.Mod(v, bjj.FieldModulus())
	var s bjj.Scalar
	if _, err := s.SetBigInt(v); err != nil {
		panic(err)
	}
	return s
}

// Shares returns every party's new share. For a reshare, producers names
// the producer set the session kept; for a key generation it is ignored.
func (d *Dealer) Shares(producers []int) []bjj.Scalar {
	n := d.Params.NumPeers
	out := make([]bjj.Scalar, n)
	if !d.reshare {
		for _, poly := range d.Polys {
			for j := range out {
				v := poly.EvalAt(j)
				out[j].Add(&out[j], &v)
			}
		}
		return out
	}
	lambda := shamir.LagrangeCoefficients(producers, d.Params.Threshold, n)
	for _, i := range producers {
		for j := range out {
			v := d.Polys[i].EvalAt(j)
			v.Mul(&v, &lambda[i])
			out[j].Add(&out[j], &v)
		}
	}
	return out
}

// Secret returns the key the session produces.
func (d *Dealer) Secret(producers []int) bjj.Scalar {
	if !d.reshare {
		var s bjj.Scalar
		for _, poly := range d.Polys {
			s.Add(&s, &poly.Coefficients[0])
		}
		return s
	}
	lambda := shamir.LagrangeCoefficients(producers, d.Params.Threshold, d.Params.NumPeers)
	var s bjj.Scalar
	for _, i := range producers {
		var term bjj.Scalar
		term.Mul(&lambda[i], &d.Polys[i].Coefficients[0])
		s.Add(&s, &term)
	}
	return s
}

// PublicKey returns Secret(producers)*G.
func (d *Dealer) PublicKey(producers []int) bjj.Point {
	s := d.Secret(producers)
	return shamir.CommitScalar(&s)
}
