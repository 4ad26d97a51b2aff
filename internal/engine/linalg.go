package engine

import (
	"fmt"
	"math"
)

// Dense d x d matrices are stored row-major in a flat []float64. Context
// dimensionality is small (10), so hand-rolled ops are cheap; the only
// cost-sensitive path is the incremental inverse, kept O(d^2) via
// Sherman-Morrison.

func identityMat(d int) []float64 {
	m := make([]float64, d*d)
	for i := 0; i < d; i++ {
		m[i*d+i] = 1
	}
	return m
}

func vecDot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func matVec(m, x []float64, d int) []float64 {
	out := make([]float64, d)
	for i := 0; i < d; i++ {
		row := m[i*d : (i+1)*d]
		out[i] = vecDot(row, x)
	}
	return out
}

// addOuter performs A += x * xT in place.
func addOuter(a, x []float64, d int) {
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			a[i*d+j] += x[i] * x[j]
		}
	}
}

// shermanMorrison updates aInv in place for the rank-1 addition A += x*xT:
//
//	(A + x xT)^-1 = A^-1 - (A^-1 x xT A^-1) / (1 + xT A^-1 x)
//
// A is SPD and x xT is positive semi-definite, so the denominator is >= 1.
func shermanMorrison(aInv, x []float64, d int) {
	ax := matVec(aInv, x, d)
	denom := 1 + vecDot(x, ax)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			aInv[i*d+j] -= ax[i] * ax[j] / denom
		}
	}
}

// cholesky returns the lower-triangular L with A = L*LT, or an error if A
// is not symmetric positive-definite.
func cholesky(a []float64, d int) ([]float64, error) {
	l := make([]float64, d*d)
	for i := 0; i < d; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i*d+j]
			for k := 0; k < j; k++ {
				sum -= l[i*d+k] * l[j*d+k]
			}
			if i == j {
				if sum <= 0 {
					return nil, fmt.Errorf("matrix not positive-definite at pivot %d (%.6g)", i, sum)
				}
				l[i*d+i] = math.Sqrt(sum)
			} else {
				l[i*d+j] = sum / l[j*d+j]
			}
		}
	}
	return l, nil
}

// choleskyInverse inverts an SPD matrix by solving L*LT*X = I column by
// column. Used once per arm load; steady-state updates go through
// shermanMorrison instead.
func choleskyInverse(a []float64, d int) ([]float64, error) {
	l, err := cholesky(a, d)
	if err != nil {
		return nil, err
	}
	inv := make([]float64, d*d)
	y := make([]float64, d)
	for col := 0; col < d; col++ {
		// Forward substitution: L*y = e_col.
		for i := 0; i < d; i++ {
			sum := 0.0
			if i == col {
				sum = 1
			}
			for k := 0; k < i; k++ {
				sum -= l[i*d+k] * y[k]
			}
			y[i] = sum / l[i*d+i]
		}
		// Back substitution: LT*x = y.
		for i := d - 1; i >= 0; i-- {
			sum := y[i]
			for k := i + 1; k < d; k++ {
				sum -= l[k*d+i] * inv[k*d+col]
			}
			inv[i*d+col] = sum / l[i*d+i]
		}
	}
	return inv, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
