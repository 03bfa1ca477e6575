/*
 * ortho.go, part of sella.
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

package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

//Tolerance below which a vector is considered to have vanished during
//orthogonalization, relative to its norm before projection.
const mgsEps = 1e-6

//Cols returns the number of columns of A, with nil counting as zero. Empty
//bases are passed around as nil matrices, since gonum does not allow
//zero-sized Dense values.
func Cols(A *mat.Dense) int {
	if A == nil {
		return 0
	}
	_, c := A.Dims()
	return c
}

//ModifiedGramSchmidt orthonormalizes the columns of V, first projecting out
//every column of the optional bases in against. Columns that vanish during
//the process are dropped, so the result may have fewer columns than V.
//Returns nil if no column survives (or if V is nil).
func ModifiedGramSchmidt(V *mat.Dense, against ...*mat.Dense) *mat.Dense {
	if V == nil {
		return nil
	}
	r, c := V.Dims()
	kept := make([][]float64, 0, c)
	for j := 0; j < c; j++ {
		v := make([]float64, r)
		mat.Col(v, j, V)
		norm0 := norm(v)
		if norm0 == 0 {
			continue
		}
		//Two projection passes. A single pass loses orthogonality for
		//ill-conditioned inputs.
		for pass := 0; pass < 2; pass++ {
			for _, U := range against {
				projectOut(v, U)
			}
			for _, u := range kept {
				axpy(v, u, -dot(u, v))
			}
		}
		n := norm(v)
		if n < mgsEps*norm0 || n < mgsEps {
			continue
		}
		scal(v, 1/n)
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		return nil
	}
	out := mat.NewDense(r, len(kept), nil)
	for j, u := range kept {
		out.SetCol(j, u)
	}
	return out
}

//projectOut removes from v its components along the columns of U.
func projectOut(v []float64, U *mat.Dense) {
	if U == nil {
		return
	}
	r, c := U.Dims()
	u := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(u, j, U)
		axpy(v, u, -dot(u, v))
	}
}

//Pinv returns the Moore-Penrose pseudoinverse of A, computed through the
//thin SVD with singular values below rcond*smax treated as zero.
func Pinv(A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDThin) {
		panic("linalg: SVD failed to factorize")
	}
	s := svd.Values(nil)
	var U, V mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)
	tol := pinvTol(r, c, s)
	k := len(s)
	//V * diag(1/s) * U^T
	Vs := mat.NewDense(c, k, nil)
	for j := 0; j < k; j++ {
		inv := 0.0
		if s[j] > tol {
			inv = 1 / s[j]
		}
		for i := 0; i < c; i++ {
			Vs.Set(i, j, V.At(i, j)*inv)
		}
	}
	out := mat.NewDense(c, r, nil)
	out.Mul(Vs, U.T())
	return out
}

//Lstsq returns the minimum-norm least-squares solution of A x = b through
//the SVD, with the same singular value cutoff as Pinv. Near-singular
//systems are regularized by the cutoff rather than reported as errors; the
//multiplier recovery of the engine relies on this.
func Lstsq(A *mat.Dense, b []float64) []float64 {
	if A == nil {
		return nil
	}
	r, c := A.Dims()
	if len(b) != r {
		panic("linalg: Lstsq dimension mismatch")
	}
	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDThin) {
		panic("linalg: SVD failed to factorize")
	}
	s := svd.Values(nil)
	var U, V mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)
	tol := pinvTol(r, c, s)
	x := make([]float64, c)
	u := make([]float64, r)
	for j := 0; j < len(s); j++ {
		if s[j] <= tol {
			continue
		}
		mat.Col(u, j, &U)
		coef := dot(u, b) / s[j]
		for i := 0; i < c; i++ {
			x[i] += coef * V.At(i, j)
		}
	}
	return x
}

func pinvTol(r, c int, s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	n := r
	if c > n {
		n = c
	}
	eps := math.Nextafter(1, 2) - 1
	return float64(n) * eps * s[0]
}

//Small dense-vector kernels. Kept local instead of going through
//mat.VecDense to avoid wrapping slices that already live in engine state.

func dot(a, b []float64) float64 {
	var s float64
	for i, ai := range a {
		s += ai * b[i]
	}
	return s
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

func axpy(y, x []float64, alpha float64) {
	for i := range y {
		y[i] += alpha * x[i]
	}
}

func scal(a []float64, alpha float64) {
	for i := range a {
		a[i] *= alpha
	}
}
