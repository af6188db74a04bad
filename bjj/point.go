package bjj

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Point is an affine point (x, y) on the Baby Jubjub curve
//
//	A*x^2 + y^2 = 1 + D*x^2*y^2
//
// with coordinates in the BN254 scalar field. The identity is (0, 1); it also
// serves as the "empty" sentinel in protocol state.
//
// The zero value (0, 0) is not a valid point. Use [Identity] to obtain the
// neutral element.
type Point struct {
	X, Y fr.Element
}

// Identity returns the neutral element (0, 1).
func Identity() Point {
	var p Point
	p.SetIdentity()
	return p
}

// Generator returns the standard generator of the prime-order subgroup.
func Generator() Point {
	return generator
}

// SetIdentity sets p to (0, 1) and returns p.
func (p *Point) SetIdentity() *Point {
	p.X.SetZero()
	p.Y.SetOne()
	return p
}

// Set copies a into p and returns p.
func (p *Point) Set(a *Point) *Point {
	p.X = a.X
	p.Y = a.Y
	return p
}

// SetCoordinates sets p to (x, y). Coordinates that are negative or not
// reduced modulo the base field, and points off the curve, are rejected with
// [ErrNotOnCurve]. Subgroup membership is not checked; see [Point.Validate].
func (p *Point) SetCoordinates(x, y *big.Int) (*Point, error) {
	if !reduced(x) || !reduced(y) {
		return nil, ErrNotOnCurve
	}
	var q Point
	q.X.SetBigInt(x)
	q.Y.SetBigInt(y)
	if !q.IsOnCurve() {
		return nil, ErrNotOnCurve
	}
	return p.Set(&q), nil
}

func reduced(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(fieldModulus) < 0
}

// IsIdentity reports whether p is (0, 1).
func (p *Point) IsIdentity() bool {
	return p.X.IsZero() && p.Y.IsOne()
}

// IsOnCurve reports whether p satisfies the curve equation. The identity is
// on the curve.
func (p *Point) IsOnCurve() bool {
	if p.IsIdentity() {
		return true
	}
	var xx, yy, lhs, rhs fr.Element
	xx.Square(&p.X)
	yy.Square(&p.Y)

	lhs.Mul(&curveA, &xx)
	lhs.Add(&lhs, &yy)

	rhs.Mul(&xx, &yy)
	rhs.Mul(&rhs, &curveD)
	rhs.Add(&rhs, oneElement())

	return lhs.Equal(&rhs)
}

// IsInCorrectSubgroup reports whether an on-curve point lies in the
// prime-order subgroup: R*p must be the identity and p.y must be non-zero.
// Small-order and mixed torsion points fail this check.
func (p *Point) IsInCorrectSubgroup() bool {
	if p.Y.IsZero() {
		return false
	}
	var r Point
	r.mulUnchecked(curveOrder, p)
	return r.IsIdentity()
}

// Validate checks that p is on the curve, in the prime-order subgroup and
// not the identity. Every point accepted from a peer goes through Validate.
func (p *Point) Validate() error {
	if !p.IsOnCurve() {
		return ErrNotOnCurve
	}
	if p.IsIdentity() {
		return ErrIdentity
	}
	if !p.IsInCorrectSubgroup() {
		return ErrNotInSubgroup
	}
	return nil
}

// Add sets p to a + b using the unified affine addition law and returns p.
func (p *Point) Add(a, b *Point) *Point {
	if a.IsIdentity() {
		return p.Set(b)
	}
	if b.IsIdentity() {
		return p.Set(a)
	}

	var x1y2, y1x2, x1x2, y1y2, dxy, num, den fr.Element
	x1y2.Mul(&a.X, &b.Y)
	y1x2.Mul(&a.Y, &b.X)
	x1x2.Mul(&a.X, &b.X)
	y1y2.Mul(&a.Y, &b.Y)
	dxy.Mul(&x1x2, &y1y2)
	dxy.Mul(&dxy, &curveD)

	var x3, y3 fr.Element

	// x3 = (x1*y2 + y1*x2) / (1 + d*x1*x2*y1*y2)
	num.Add(&x1y2, &y1x2)
	den.Add(oneElement(), &dxy)
	den.Inverse(&den)
	x3.Mul(&num, &den)

	// y3 = (y1*y2 - a*x1*x2) / (1 - d*x1*x2*y1*y2)
	num.Mul(&curveA, &x1x2)
	num.Sub(&y1y2, &num)
	den.Sub(oneElement(), &dxy)
	den.Inverse(&den)
	y3.Mul(&num, &den)

	p.X = x3
	p.Y = y3
	return p
}

// Neg sets p to -a = (-x, y) and returns p.
func (p *Point) Neg(a *Point) *Point {
	p.X.Neg(&a.X)
	p.Y = a.Y
	return p
}

// ScalarMul sets p to k*q and returns p. Scalars not in [0, R) are rejected
// with [ErrScalarOutOfRange]; k == 0 yields the identity.
func (p *Point) ScalarMul(k *big.Int, q *Point) (*Point, error) {
	if k == nil || k.Sign() < 0 || k.Cmp(curveOrder) >= 0 {
		return nil, ErrScalarOutOfRange
	}
	return p.mulUnchecked(k, q), nil
}

// Equal reports whether p and b are the same point.
func (p *Point) Equal(b *Point) bool {
	return p.X.Equal(&b.X) && p.Y.Equal(&b.Y)
}

// BigInts returns the coordinates of p as integers in [0, Q).
func (p *Point) BigInts() (x, y *big.Int) {
	x, y = new(big.Int), new(big.Int)
	p.X.BigInt(x)
	p.Y.BigInt(y)
	return x, y
}

// String returns "(x, y)" in decimal.
func (p Point) String() string {
	x, y := p.BigInts()
	return fmt.Sprintf("(%s, %s)", x, y)
}

// MarshalBinary encodes p as 64 bytes: big-endian x followed by big-endian y.
func (p Point) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 2*fr.Bytes)
	x := p.X.Bytes()
	y := p.Y.Bytes()
	out = append(out, x[:]...)
	return append(out, y[:]...), nil
}

// UnmarshalBinary decodes the [Point.MarshalBinary] encoding. The decoded
// point must be on the curve; subgroup membership is left to the caller.
func (p *Point) UnmarshalBinary(data []byte) error {
	if len(data) != 2*fr.Bytes {
		return fmt.Errorf("bjj: invalid point encoding length %d", len(data))
	}
	x := new(big.Int).SetBytes(data[:fr.Bytes])
	y := new(big.Int).SetBytes(data[fr.Bytes:])
	_, err := p.SetCoordinates(x, y)
	return err
}

type pointJSON struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// MarshalJSON encodes p as {"x":"<decimal>","y":"<decimal>"}.
func (p Point) MarshalJSON() ([]byte, error) {
	x, y := p.BigInts()
	return json.Marshal(pointJSON{X: x.String(), Y: y.String()})
}

// UnmarshalJSON decodes the [Point.MarshalJSON] encoding. The result must be
// on the curve.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw pointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	x, ok := new(big.Int).SetString(raw.X, 10)
	if !ok {
		return fmt.Errorf("bjj: invalid x coordinate %q", raw.X)
	}
	y, ok := new(big.Int).SetString(raw.Y, 10)
	if !ok {
		return fmt.Errorf("bjj: invalid y coordinate %q", raw.Y)
	}
	_, err := p.SetCoordinates(x, y)
	return err
}

func oneElement() *fr.Element {
	var one fr.Element
	one.SetOne()
	return &one
}
