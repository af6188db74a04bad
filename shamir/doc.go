// Package shamir provides the Shamir secret-sharing arithmetic used by the
// key-generation protocol: Lagrange coefficients for reconstructing f(0)
// from a threshold subset of parties, and polynomials over the Baby Jubjub
// scalar field.
//
// # Evaluation points
//
// Party ids are zero-based roster indices. Party j holds the evaluation of
// the sharing polynomial at x = j+1; the point x = 0 is reserved for the
// secret itself.
//
// # Reconstruction
//
// Given any threshold-sized set S of party ids,
//
//	f(0) = sum_{i in S} lambda_i * f(i+1)
//
// where lambda is the vector returned by [LagrangeCoefficients]. The same
// weights reshare a key: each producer i deals a fresh polynomial with
// constant term f(i+1), and every recipient combines the received values with
// lambda_i.
package shamir
