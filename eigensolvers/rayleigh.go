/*
 * rayleigh.go, part of sella.
 *
 * Copyright 2024 Akihide Hayashi
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

//Package eigensolvers provides the iterative Rayleigh-Ritz procedure used
//by the eigenvector-following step to locate the lowest-curvature direction
//of a (constrained) Hessian operator without ever forming it.
package eigensolvers

import (
	"fmt"
	"math"

	"github.com/AkihideHayashi/sella/linalg"
	"gonum.org/v1/gonum/mat"
)

//Operator is a symmetric linear operator given only through matrix-vector
//products. Products may be expensive (each one can cost a full energy and
//force evaluation), so solvers must be frugal with them.
type Operator interface {
	Dim() int
	MatVec(v []float64) ([]float64, error)
}

//Method selects how the next expansion vector is generated.
//JD0 performs a diagonal Jacobi-Davidson solve against the preconditioner;
//Lanczos expands with the raw residual.
type Method string

const (
	JD0     Method = "jd0"
	Lanczos Method = "lanczos"
)

//RayleighRitz iteratively refines the lowest eigenpair of A. The iteration
//stops when the Ritz residual norm drops below gamma times the absolute
//Ritz value, which is deliberately loose: the caller harvests every iterate
//afterwards and does not need a tight eigenvector. P is an optional
//preconditioner matrix (an approximate A) and v0 an optional start vector;
//with neither given the iteration starts from the first basis vector.
//
//maxiter <= 0 means the dimension of the operator. Exhausting maxiter is
//reported through the converged flag, not as an error, because the partial
//iterate set is still useful to the caller.
func RayleighRitz(A Operator, gamma float64, P *mat.Dense, v0 []float64, method Method, maxiter int) (converged bool, err error) {
	n := A.Dim()
	if n == 0 {
		return true, nil
	}
	if maxiter <= 0 {
		maxiter = n
	}
	if v0 == nil {
		v0 = make([]float64, n)
		v0[0] = 1
	}
	if len(v0) != n {
		return false, fmt.Errorf("eigensolvers: start vector has length %d, operator dimension is %d", len(v0), n)
	}

	var V, AV *mat.Dense
	appendCol := func(M *mat.Dense, v []float64) *mat.Dense {
		if M == nil {
			out := mat.NewDense(n, 1, nil)
			out.SetCol(0, v)
			return out
		}
		_, c := M.Dims()
		out := mat.NewDense(n, c+1, nil)
		out.Slice(0, n, 0, c).(*mat.Dense).Copy(M)
		out.SetCol(c, v)
		return out
	}

	cand := make([]float64, n)
	copy(cand, v0)
	for iter := 0; iter < maxiter; iter++ {
		t := linalg.ModifiedGramSchmidt(colMatrix(cand), V)
		if t == nil {
			//Candidate collapsed into the current subspace; the Ritz pair
			//is exact there.
			return true, nil
		}
		u := make([]float64, n)
		mat.Col(u, 0, t)
		au, err := A.MatVec(u)
		if err != nil {
			return false, err
		}
		V = appendCol(V, u)
		AV = appendCol(AV, au)

		theta, x, ax := lowestRitzPair(V, AV)
		r := make([]float64, n)
		for i := range r {
			r[i] = ax[i] - theta*x[i]
		}
		rnorm := 0.0
		for _, ri := range r {
			rnorm += ri * ri
		}
		rnorm = math.Sqrt(rnorm)
		if rnorm <= gamma*math.Max(math.Abs(theta), 1e-8) {
			return true, nil
		}

		switch method {
		case Lanczos:
			copy(cand, r)
		default: //JD0
			for i := range cand {
				d := 1.0
				if P != nil {
					d = P.At(i, i)
				}
				d -= theta
				if math.Abs(d) < 1e-8 {
					if d < 0 {
						d = -1e-8
					} else {
						d = 1e-8
					}
				}
				cand[i] = r[i] / d
			}
		}
	}
	return false, nil
}

//lowestRitzPair projects the operator onto the current subspace and
//returns the lowest Ritz value together with its vector and operator
//image in the full space.
func lowestRitzPair(V, AV *mat.Dense) (theta float64, x, ax []float64) {
	n, k := V.Dims()
	var At mat.Dense
	At.Mul(V.T(), AV)
	sym := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sym.SetSym(i, j, 0.5*(At.At(i, j)+At.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		panic("eigensolvers: subspace eigendecomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	//EigenSym returns ascending values; the lowest pair is column 0.
	lo := 0
	for i := range vals {
		if vals[i] < vals[lo] {
			lo = i
		}
	}
	theta = vals[lo]
	c := make([]float64, k)
	mat.Col(c, lo, &vecs)
	x = make([]float64, n)
	ax = make([]float64, n)
	xv := mat.NewVecDense(n, x)
	axv := mat.NewVecDense(n, ax)
	xv.MulVec(V, mat.NewVecDense(k, c))
	axv.MulVec(AV, mat.NewVecDense(k, c))
	return theta, x, ax
}

func colMatrix(v []float64) *mat.Dense {
	out := mat.NewDense(len(v), 1, nil)
	out.SetCol(0, v)
	return out
}
