package bjj

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// extendedPoint is a point in extended twisted Edwards coordinates
// (X : Y : T : Z) with x = X/Z, y = Y/Z and x*y = T/Z.
type extendedPoint struct {
	X, Y, T, Z fr.Element
}

func (e *extendedPoint) setIdentity() *extendedPoint {
	e.X.SetZero()
	e.Y.SetOne()
	e.T.SetZero()
	e.Z.SetOne()
	return e
}

// double sets e to 2*q (dbl-2008-hwcd).
func (e *extendedPoint) double(q *extendedPoint) *extendedPoint {
	var a, b, c, d, ee, f, g, h fr.Element
	a.Square(&q.X)
	b.Square(&q.Y)
	c.Square(&q.Z)
	c.Double(&c)
	d.Mul(&curveA, &a)
	ee.Add(&q.X, &q.Y)
	ee.Square(&ee)
	ee.Sub(&ee, &a)
	ee.Sub(&ee, &b)
	g.Add(&d, &b)
	f.Sub(&g, &c)
	h.Sub(&d, &b)

	e.X.Mul(&ee, &f)
	e.Y.Mul(&g, &h)
	e.T.Mul(&ee, &h)
	e.Z.Mul(&f, &g)
	return e
}

// addMixed sets e to q + a where a is affine and at = a.x*a.y
// (madd-2008-hwcd, Z2 = 1).
func (e *extendedPoint) addMixed(q *extendedPoint, a *Point, at *fr.Element) *extendedPoint {
	var aa, b, c, d, ee, f, g, h, tmp fr.Element
	aa.Mul(&q.X, &a.X)
	b.Mul(&q.Y, &a.Y)
	c.Mul(&q.T, at)
	c.Mul(&c, &curveD)
	d.Set(&q.Z)
	ee.Add(&q.X, &q.Y)
	tmp.Add(&a.X, &a.Y)
	ee.Mul(&ee, &tmp)
	ee.Sub(&ee, &aa)
	ee.Sub(&ee, &b)
	f.Sub(&d, &c)
	g.Add(&d, &c)
	tmp.Mul(&curveA, &aa)
	h.Sub(&b, &tmp)

	e.X.Mul(&ee, &f)
	e.Y.Mul(&g, &h)
	e.T.Mul(&ee, &h)
	e.Z.Mul(&f, &g)
	return e
}

// toAffine writes e into p with a single field inversion.
func (e *extendedPoint) toAffine(p *Point) *Point {
	var zInv fr.Element
	zInv.Inverse(&e.Z)
	p.X.Mul(&e.X, &zInv)
	p.Y.Mul(&e.Y, &zInv)
	return p
}

// mulUnchecked sets p to k*q by big-endian double-and-add over the low
// scalarBits bits of k. Leading zero bits are skipped. Callers bound k.
func (p *Point) mulUnchecked(k *big.Int, q *Point) *Point {
	if k.Sign() == 0 || q.IsIdentity() {
		return p.SetIdentity()
	}

	base := *q
	var bt fr.Element
	bt.Mul(&base.X, &base.Y)

	var acc extendedPoint
	acc.setIdentity()
	started := false
	for i := scalarBits - 1; i >= 0; i-- {
		if started {
			acc.double(&acc)
		}
		if k.Bit(i) == 1 {
			acc.addMixed(&acc, &base, &bt)
			started = true
		}
	}
	return acc.toAffine(p)
}
