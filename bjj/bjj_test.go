package bjj

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
)

func randomScalar(t *testing.T) *big.Int {
	t.Helper()
	for {
		k, err := rand.Int(rand.Reader, curveOrder)
		if err != nil {
			t.Fatal(err)
		}
		if k.Sign() != 0 {
			return k
		}
	}
}

func randomPoint(t *testing.T) Point {
	t.Helper()
	g := Generator()
	var p Point
	if _, err := p.ScalarMul(randomScalar(t), &g); err != nil {
		t.Fatal(err)
	}
	return p
}

// orderTwoPoint returns (0, -1), which is on the curve but has order 2.
func orderTwoPoint() Point {
	var p Point
	p.X.SetZero()
	p.Y.SetOne()
	p.Y.Neg(&p.Y)
	return p
}

func TestScalar(t *testing.T) {
	t.Run("AddSub", func(t *testing.T) {
		var a, b, sum, diff Scalar
		a.SetBigInt(randomScalar(t))
		b.SetBigInt(randomScalar(t))

		sum.Add(&a, &b)
		diff.Sub(&sum, &b)
		if !diff.Equal(&a) {
			t.Error("(a+b)-b != a")
		}
	})

	t.Run("MulInvert", func(t *testing.T) {
		var a, inv, product Scalar
		a.SetBigInt(randomScalar(t))
		if _, err := inv.Invert(&a); err != nil {
			t.Fatal(err)
		}
		product.Mul(&a, &inv)
		one := NewScalar(1)
		if !product.Equal(&one) {
			t.Error("a*a^-1 != 1")
		}
	})

	t.Run("InvertZeroFails", func(t *testing.T) {
		var zero, out Scalar
		if _, err := out.Invert(&zero); err != ErrZeroInverse {
			t.Errorf("expected ErrZeroInverse, got %v", err)
		}
	})

	t.Run("Negate", func(t *testing.T) {
		var a, neg, sum Scalar
		a.SetBigInt(randomScalar(t))
		neg.Negate(&a)
		sum.Add(&a, &neg)
		if !sum.IsZero() {
			t.Error("a + (-a) != 0")
		}
	})

	t.Run("SetBigIntRejectsOrder", func(t *testing.T) {
		var s Scalar
		if _, err := s.SetBigInt(Order()); err != ErrScalarOutOfRange {
			t.Errorf("expected ErrScalarOutOfRange, got %v", err)
		}
		if _, err := s.SetBigInt(big.NewInt(-1)); err != ErrScalarOutOfRange {
			t.Errorf("expected ErrScalarOutOfRange, got %v", err)
		}
	})

	t.Run("TextRoundtrip", func(t *testing.T) {
		var a, b Scalar
		a.SetBigInt(randomScalar(t))
		text, err := a.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		if err := b.UnmarshalText(text); err != nil {
			t.Fatal(err)
		}
		if !a.Equal(&b) {
			t.Error("scalar text roundtrip failed")
		}
	})

	t.Run("CopiesAreIndependent", func(t *testing.T) {
		one := NewScalar(1)
		a := NewScalar(1)
		b := a
		b.Add(&b, &one)
		c := a
		c.Mul(&c, &b)
		d := a
		d.Negate(&d)
		e := a
		e.Set(&b)
		f := a
		if _, err := f.Invert(&b); err != nil {
			t.Fatal(err)
		}
		g := a
		g.SetUint64(7)
		if !a.Equal(&one) {
			t.Errorf("mutating copies changed the original to %s", a)
		}
		two := NewScalar(2)
		if !b.Equal(&two) || !c.Equal(&two) || !e.Equal(&two) {
			t.Errorf("unexpected results b=%s c=%s e=%s", b, c, e)
		}

		s := []Scalar{NewScalar(3)}
		l := s[0]
		l.Mul(&l, &two)
		three := NewScalar(3)
		if !s[0].Equal(&three) {
			t.Errorf("slice element changed to %s", s[0])
		}
	})

	t.Run("ZeroValueIsZero", func(t *testing.T) {
		var s Scalar
		if !s.IsZero() {
			t.Error("zero value should be zero")
		}
		if len(s.Bytes()) != 32 {
			t.Error("bytes should be 32 long")
		}
	})
}

func TestCurveChecks(t *testing.T) {
	t.Run("Identity", func(t *testing.T) {
		id := Identity()
		if !id.IsIdentity() || !id.IsOnCurve() {
			t.Error("identity must be on curve")
		}
		if err := id.Validate(); err != ErrIdentity {
			t.Errorf("expected ErrIdentity, got %v", err)
		}
	})

	t.Run("GeneratorValid", func(t *testing.T) {
		g := Generator()
		if err := g.Validate(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("ZeroValueNotOnCurve", func(t *testing.T) {
		var p Point
		if p.IsOnCurve() {
			t.Error("(0, 0) must not be on curve")
		}
		if err := p.Validate(); err != ErrNotOnCurve {
			t.Errorf("expected ErrNotOnCurve, got %v", err)
		}
	})

	t.Run("TorsionRejected", func(t *testing.T) {
		p := orderTwoPoint()
		if !p.IsOnCurve() {
			t.Fatal("(0, -1) should be on curve")
		}
		if p.IsInCorrectSubgroup() {
			t.Error("order-2 point accepted by subgroup check")
		}
		if err := p.Validate(); err != ErrNotInSubgroup {
			t.Errorf("expected ErrNotInSubgroup, got %v", err)
		}

		g := Generator()
		var mixed Point
		mixed.Add(&g, &p)
		if !mixed.IsOnCurve() {
			t.Fatal("G + T should be on curve")
		}
		if mixed.IsInCorrectSubgroup() {
			t.Error("point with torsion component accepted")
		}
	})

	t.Run("SetCoordinatesRejectsUnreduced", func(t *testing.T) {
		g := Generator()
		x, y := g.BigInts()
		var p Point
		if _, err := p.SetCoordinates(x, y); err != nil {
			t.Fatal(err)
		}
		if !p.Equal(&g) {
			t.Error("SetCoordinates changed the point")
		}

		xq := new(big.Int).Add(x, FieldModulus())
		if _, err := p.SetCoordinates(xq, y); err != ErrNotOnCurve {
			t.Errorf("expected ErrNotOnCurve for x+Q, got %v", err)
		}
		if _, err := p.SetCoordinates(x, new(big.Int).Add(y, big.NewInt(1))); err != ErrNotOnCurve {
			t.Errorf("expected ErrNotOnCurve for off-curve point, got %v", err)
		}
	})
}

func TestPointArithmetic(t *testing.T) {
	t.Run("AddIdentity", func(t *testing.T) {
		p := randomPoint(t)
		id := Identity()
		var sum Point
		sum.Add(&id, &p)
		if !sum.Equal(&p) {
			t.Error("identity + P != P")
		}
		sum.Add(&p, &id)
		if !sum.Equal(&p) {
			t.Error("P + identity != P")
		}
	})

	t.Run("Closure", func(t *testing.T) {
		p := randomPoint(t)
		q := randomPoint(t)
		var sum Point
		sum.Add(&p, &q)
		if !sum.IsOnCurve() {
			t.Error("P + Q not on curve")
		}
		if !sum.IsInCorrectSubgroup() {
			t.Error("P + Q not in subgroup")
		}
	})

	t.Run("AddNegIsIdentity", func(t *testing.T) {
		p := randomPoint(t)
		var neg, sum Point
		neg.Neg(&p)
		sum.Add(&p, &neg)
		if !sum.IsIdentity() {
			t.Error("P + (-P) != identity")
		}
	})

	t.Run("AddMatchesGnark", func(t *testing.T) {
		p := randomPoint(t)
		q := randomPoint(t)
		var sum Point
		sum.Add(&p, &q)

		var gp, gq, gs twistededwards.PointAffine
		gp.X, gp.Y = p.X, p.Y
		gq.X, gq.Y = q.X, q.Y
		gs.Add(&gp, &gq)
		if !sum.X.Equal(&gs.X) || !sum.Y.Equal(&gs.Y) {
			t.Error("addition disagrees with gnark-crypto")
		}
	})

	t.Run("AddAliasing", func(t *testing.T) {
		p := randomPoint(t)
		q := randomPoint(t)
		var want Point
		want.Add(&p, &q)
		p.Add(&p, &q)
		if !p.Equal(&want) {
			t.Error("aliased addition differs")
		}
	})
}

func TestScalarMul(t *testing.T) {
	g := Generator()

	t.Run("Zero", func(t *testing.T) {
		var p Point
		if _, err := p.ScalarMul(big.NewInt(0), &g); err != nil {
			t.Fatal(err)
		}
		if !p.IsIdentity() {
			t.Error("0*P != identity")
		}
	})

	t.Run("One", func(t *testing.T) {
		var p Point
		if _, err := p.ScalarMul(big.NewInt(1), &g); err != nil {
			t.Fatal(err)
		}
		if !p.Equal(&g) {
			t.Error("1*P != P")
		}
	})

	t.Run("OrderMinusOneIsNegation", func(t *testing.T) {
		p := randomPoint(t)
		k := new(big.Int).Sub(curveOrder, big.NewInt(1))
		var got, neg Point
		if _, err := got.ScalarMul(k, &p); err != nil {
			t.Fatal(err)
		}
		neg.Neg(&p)
		if !got.Equal(&neg) {
			t.Error("(R-1)*P != -P")
		}
	})

	t.Run("RejectsOutOfRange", func(t *testing.T) {
		var p Point
		if _, err := p.ScalarMul(Order(), &g); err != ErrScalarOutOfRange {
			t.Errorf("expected ErrScalarOutOfRange, got %v", err)
		}
		if _, err := p.ScalarMul(big.NewInt(-3), &g); err != ErrScalarOutOfRange {
			t.Errorf("expected ErrScalarOutOfRange, got %v", err)
		}
	})

	t.Run("MatchesGnark", func(t *testing.T) {
		for i := 0; i < 8; i++ {
			k := randomScalar(t)
			var p Point
			if _, err := p.ScalarMul(k, &g); err != nil {
				t.Fatal(err)
			}
			base := twistededwards.GetEdwardsCurve().Base
			var want twistededwards.PointAffine
			want.ScalarMultiplication(&base, k)
			if !p.X.Equal(&want.X) || !p.Y.Equal(&want.Y) {
				t.Fatalf("scalar multiplication disagrees with gnark-crypto for k=%s", k)
			}
		}
	})

	t.Run("Distributive", func(t *testing.T) {
		a := randomScalar(t)
		b := randomScalar(t)
		sum := new(big.Int).Add(a, b)
		sum.Mod(sum, curveOrder)

		var pa, pb, lhs, rhs Point
		pa.ScalarMul(a, &g)
		pb.ScalarMul(b, &g)
		lhs.Add(&pa, &pb)
		rhs.ScalarMul(sum, &g)
		if !lhs.Equal(&rhs) {
			t.Error("a*G + b*G != (a+b)*G")
		}
	})

	t.Run("SmallScalarsMatchRepeatedAddition", func(t *testing.T) {
		acc := Identity()
		for k := int64(1); k <= 17; k++ {
			acc.Add(&acc, &g)
			var p Point
			p.ScalarMul(big.NewInt(k), &g)
			if !p.Equal(&acc) {
				t.Fatalf("%d*G differs from repeated addition", k)
			}
		}
	})

	t.Run("GeneratorHasOrderR", func(t *testing.T) {
		var p Point
		p.mulUnchecked(curveOrder, &g)
		if !p.IsIdentity() {
			t.Error("R*G != identity")
		}
	})
}

func TestPointEncoding(t *testing.T) {
	t.Run("BinaryRoundtrip", func(t *testing.T) {
		p := randomPoint(t)
		data, err := p.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != 2*fr.Bytes {
			t.Fatalf("unexpected length %d", len(data))
		}
		var q Point
		if err := q.UnmarshalBinary(data); err != nil {
			t.Fatal(err)
		}
		if !q.Equal(&p) {
			t.Error("binary roundtrip failed")
		}
	})

	t.Run("JSONRoundtrip", func(t *testing.T) {
		p := randomPoint(t)
		data, err := json.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		var q Point
		if err := json.Unmarshal(data, &q); err != nil {
			t.Fatal(err)
		}
		if !q.Equal(&p) {
			t.Error("json roundtrip failed")
		}
	})

	t.Run("JSONRejectsOffCurve", func(t *testing.T) {
		var q Point
		err := json.Unmarshal([]byte(`{"x":"1","y":"1"}`), &q)
		if err != ErrNotOnCurve {
			t.Errorf("expected ErrNotOnCurve, got %v", err)
		}
	})
}
