package shamir

import (
	"github.com/TaceoLabs/oprf-key-registry/bjj"
)

// LagrangeCoefficients returns a vector of length numPeers whose entry ids[i]
// is the Lagrange basis coefficient at 0 for party ids[i] within the set ids.
// Entries for parties not in ids are zero.
//
// Party j is evaluated at x = j+1, so the coefficient for ids[i] is
//
//	prod_{k != i} (ids[k]+1) / ((ids[k]+1) - (ids[i]+1))  (mod R)
//
// The caller guarantees that ids holds exactly threshold distinct values,
// each below numPeers. The function does not re-validate its input; passing
// duplicates is a programming error.
func LagrangeCoefficients(ids []int, threshold, numPeers int) []bjj.Scalar {
	coeffs := make([]bjj.Scalar, numPeers)
	for i := 0; i < threshold; i++ {
		xi := EvaluationPoint(ids[i])
		num := bjj.NewScalar(1)
		den := bjj.NewScalar(1)

		for k := 0; k < threshold; k++ {
			if k == i {
				continue
			}
			xk := EvaluationPoint(ids[k])
			// num *= x_k
			num.Mul(&num, &xk)
			// den *= (x_k - x_i)
			var diff bjj.Scalar
			diff.Sub(&xk, &xi)
			den.Mul(&den, &diff)
		}

		denInv, err := new(bjj.Scalar).Invert(&den)
		if err != nil {
			// Only reachable with duplicate ids.
			panic("shamir: duplicate party id in lagrange set")
		}
		coeffs[ids[i]].Mul(&num, denInv)
	}
	return coeffs
}

// EvaluationPoint returns x = id+1, the evaluation point of party id.
func EvaluationPoint(id int) bjj.Scalar {
	return bjj.NewScalar(uint64(id) + 1)
}
