// Package bjj implements the Baby Jubjub arithmetic needed to validate and
// aggregate key-generation contributions.
//
// Baby Jubjub is a twisted Edwards curve defined over the scalar field of
// BN254 (also known as alt_bn128):
//
//	a*x^2 + y^2 = 1 + d*x^2*y^2
//
// Coordinates use gnark-crypto's reduced form, a = -1 and
// d = 12181644023421730124874158521699555681764249180949974110617291017600649128846,
// which is isomorphic to the a = 168700, d = 168696 form by scaling x.
// The points used by the protocol live in the prime-order subgroup of size
//
//	2736030358979909402780800718157159386076813972158567259200215660948447373041
//
// Curve constants and base field elements come from gnark-crypto; the group
// law, the subgroup check and scalar multiplication are implemented here so
// that every reduction is explicit and matches the on-chain verifier.
//
// # Points
//
// [Point] holds affine coordinates. Addition uses the unified affine law.
// [Point.ScalarMul] runs a big-endian double-and-add in extended coordinates
// and converts back to affine with a single inversion.
//
// Points received from peers must pass [Point.Validate] before they are
// used: it rejects off-curve points, the identity, and points outside the
// prime-order subgroup. Skipping the subgroup check lets a peer inject
// small-order components into aggregated keys.
//
// # Scalars
//
// [Scalar] is an element of Z_R. Arithmetic methods use the mutable receiver
// pattern:
//
//	var l bjj.Scalar
//	l.Mul(&a, &b)
//	l.Add(&l, &c)
package bjj
