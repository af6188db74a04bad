package bjj

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
)

// scalarBits is the number of scalar bits walked by [Point.ScalarMul].
// Every accepted scalar is below the subgroup order, which fits in 251 bits.
const scalarBits = 251

var (
	// ErrNotOnCurve is returned for points that do not satisfy the curve
	// equation or whose coordinates are not reduced modulo the base field.
	ErrNotOnCurve = errors.New("bjj: point not on curve")

	// ErrNotInSubgroup is returned for on-curve points outside the
	// prime-order subgroup.
	ErrNotInSubgroup = errors.New("bjj: point not in correct subgroup")

	// ErrIdentity is returned where a non-identity point is required.
	ErrIdentity = errors.New("bjj: point is identity")

	// ErrScalarOutOfRange is returned for scalars that are not below the
	// subgroup order.
	ErrScalarOutOfRange = errors.New("bjj: scalar out of range")

	// ErrZeroInverse is returned when inverting the zero scalar.
	ErrZeroInverse = errors.New("bjj: cannot invert zero scalar")
)

var (
	curveA       fr.Element
	curveD       fr.Element
	curveOrder   *big.Int
	orderMinus2  *big.Int
	fieldModulus *big.Int
	generator    Point
)

func init() {
	params := twistededwards.GetEdwardsCurve()
	curveA = params.A
	curveD = params.D
	curveOrder = new(big.Int).Set(&params.Order)
	orderMinus2 = new(big.Int).Sub(curveOrder, big.NewInt(2))
	fieldModulus = fr.Modulus()
	generator = Point{X: params.Base.X, Y: params.Base.Y}
}

// Order returns a copy of the prime subgroup order R.
func Order() *big.Int {
	return new(big.Int).Set(curveOrder)
}

// FieldModulus returns a copy of the base field modulus Q.
func FieldModulus() *big.Int {
	return new(big.Int).Set(fieldModulus)
}

// Scalar represents an element of the Baby Jubjub scalar field Z_R.
//
// Like the point type, arithmetic methods set the receiver to the result
// and return it. The zero value is the zero scalar.
type Scalar struct {
	inner *big.Int
}

// NewScalar returns the scalar v mod R.
func NewScalar(v uint64) Scalar {
	var s Scalar
	s.SetUint64(v)
	return s
}

func (s *Scalar) get() *big.Int {
	if s.inner == nil {
		return new(big.Int)
	}
	return s.inner
}

// setReduced stores v mod R in s. Every setter installs a fresh big.Int so
// that copies of a Scalar never share storage.
func (s *Scalar) setReduced(v *big.Int) *Scalar {
	s.inner = v.Mod(v, curveOrder)
	return s
}

// Add sets s to a + b (mod R) and returns s.
func (s *Scalar) Add(a, b *Scalar) *Scalar {
	return s.setReduced(new(big.Int).Add(a.get(), b.get()))
}

// Sub sets s to a - b (mod R) and returns s.
func (s *Scalar) Sub(a, b *Scalar) *Scalar {
	return s.setReduced(new(big.Int).Sub(a.get(), b.get()))
}

// Mul sets s to a * b (mod R) and returns s.
func (s *Scalar) Mul(a, b *Scalar) *Scalar {
	return s.setReduced(new(big.Int).Mul(a.get(), b.get()))
}

// Negate sets s to -a (mod R) and returns s.
func (s *Scalar) Negate(a *Scalar) *Scalar {
	return s.setReduced(new(big.Int).Neg(a.get()))
}

// Invert sets s to a^(-1) (mod R) and returns s. The inverse is computed
// as a^(R-2) by Fermat's little theorem. Inverting zero is an error.
func (s *Scalar) Invert(a *Scalar) (*Scalar, error) {
	if a.IsZero() {
		return nil, ErrZeroInverse
	}
	s.inner = new(big.Int).Exp(a.get(), orderMinus2, curveOrder)
	return s, nil
}

// Set copies a into s and returns s.
func (s *Scalar) Set(a *Scalar) *Scalar {
	s.inner = new(big.Int).Set(a.get())
	return s
}

// SetUint64 sets s to v mod R and returns s.
func (s *Scalar) SetUint64(v uint64) *Scalar {
	return s.setReduced(new(big.Int).SetUint64(v))
}

// SetBigInt sets s to v. Unlike the arithmetic methods it does not reduce:
// values outside [0, R) are rejected.
func (s *Scalar) SetBigInt(v *big.Int) (*Scalar, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(curveOrder) >= 0 {
		return nil, ErrScalarOutOfRange
	}
	s.inner = new(big.Int).Set(v)
	return s, nil
}

// BigInt returns a copy of the scalar value.
func (s *Scalar) BigInt() *big.Int {
	return new(big.Int).Set(s.get())
}

// Bytes returns the scalar as a 32-byte big-endian value.
func (s *Scalar) Bytes() []byte {
	out := make([]byte, 32)
	s.get().FillBytes(out)
	return out
}

// Equal reports whether s and b represent the same scalar.
func (s *Scalar) Equal(b *Scalar) bool {
	return s.get().Cmp(b.get()) == 0
}

// IsZero reports whether s is zero.
func (s *Scalar) IsZero() bool {
	return s.get().Sign() == 0
}

// String returns the decimal representation of s.
func (s Scalar) String() string {
	return s.get().String()
}

// MarshalText encodes s as a decimal string.
func (s Scalar) MarshalText() ([]byte, error) {
	return []byte(s.get().String()), nil
}

// UnmarshalText decodes a decimal string and rejects values outside [0, R).
func (s *Scalar) UnmarshalText(text []byte) error {
	v, ok := new(big.Int).SetString(string(text), 10)
	if !ok {
		return fmt.Errorf("bjj: invalid scalar %q", text)
	}
	_, err := s.SetBigInt(v)
	return err
}
