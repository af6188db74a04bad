package shamir

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
)

// Polynomial is a polynomial over Z_R. Coefficients[0] is the constant term.
type Polynomial struct {
	Coefficients []bjj.Scalar
}

// NewPolynomial returns a polynomial of the given degree with constant term
// secret and the remaining coefficients drawn from r. A nil r uses
// crypto/rand.
func NewPolynomial(r io.Reader, secret *bjj.Scalar, degree int) (*Polynomial, error) {
	if degree < 0 {
		return nil, errors.New("shamir: negative degree")
	}
	if r == nil {
		r = rand.Reader
	}
	coeffs := make([]bjj.Scalar, degree+1)
	coeffs[0].Set(secret)
	for i := 1; i <= degree; i++ {
		k, err := rand.Int(r, bjj.Order())
		if err != nil {
			return nil, err
		}
		coeffs[i].SetBigInt(k)
	}
	return &Polynomial{Coefficients: coeffs}, nil
}

// Degree returns the polynomial degree.
func (p *Polynomial) Degree() int {
	return len(p.Coefficients) - 1
}

// Eval returns p(x) using Horner's rule.
func (p *Polynomial) Eval(x *bjj.Scalar) bjj.Scalar {
	var result bjj.Scalar
	result.Set(&p.Coefficients[len(p.Coefficients)-1])
	for i := len(p.Coefficients) - 2; i >= 0; i-- {
		result.Mul(&result, x)
		result.Add(&result, &p.Coefficients[i])
	}
	return result
}

// EvalAt returns the share of party id, p(id+1).
func (p *Polynomial) EvalAt(id int) bjj.Scalar {
	x := EvaluationPoint(id)
	return p.Eval(&x)
}

// Commit returns the coefficient commitments c_k*G.
func (p *Polynomial) Commit() []bjj.Point {
	g := bjj.Generator()
	commits := make([]bjj.Point, len(p.Coefficients))
	for i := range p.Coefficients {
		// Coefficients are already reduced, so ScalarMul cannot fail.
		commits[i].ScalarMul(p.Coefficients[i].BigInt(), &g)
	}
	return commits
}

// Interpolate reconstructs f(0) from threshold shares keyed by party id.
func Interpolate(shares map[int]bjj.Scalar, numPeers int) bjj.Scalar {
	ids := make([]int, 0, len(shares))
	for id := range shares {
		ids = append(ids, id)
	}
	lambda := LagrangeCoefficients(ids, len(ids), numPeers)

	var secret bjj.Scalar
	for _, id := range ids {
		s := shares[id]
		var term bjj.Scalar
		term.Mul(&lambda[id], &s)
		secret.Add(&secret, &term)
	}
	return secret
}

// CommitScalar returns s*G.
func CommitScalar(s *bjj.Scalar) bjj.Point {
	g := bjj.Generator()
	var p bjj.Point
	p.ScalarMul(s.BigInt(), &g)
	return p
}
