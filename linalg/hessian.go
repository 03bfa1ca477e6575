/*
 * hessian.go, part of sella.
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
	"gonum.org/v1/gonum/mat"
)

//ApproximateHessian holds the quasi-Newton curvature model of a potential
//energy surface. The matrix may be absent (guess-free state); Initialized
//distinguishes a guess from a model refined with real curvature data. The
//matrix is owned exclusively by the holder and is mutated only through
//Update or Replace.
type ApproximateHessian struct {
	Dim, Ncart  int
	Initialized bool
	b           *mat.Dense
}

//NewApproximateHessian wraps B, which may be nil. B is cloned, never
//aliased.
func NewApproximateHessian(dim, ncart int, B *mat.Dense, initialized bool) *ApproximateHessian {
	h := &ApproximateHessian{Dim: dim, Ncart: ncart, Initialized: initialized}
	if B != nil {
		h.b = &mat.Dense{}
		h.b.CloneFrom(B)
	}
	return h
}

//HasMatrix reports whether a curvature matrix is present.
func (H *ApproximateHessian) HasMatrix() bool {
	return H.b != nil
}

//Matrix returns a copy of the curvature matrix, or nil in the guess-free
//state. Callers must not be able to mutate the model in place.
func (H *ApproximateHessian) Matrix() *mat.Dense {
	if H.b == nil {
		return nil
	}
	out := &mat.Dense{}
	out.CloneFrom(H.b)
	return out
}

//Replace installs a new matrix wholesale.
func (H *ApproximateHessian) Replace(B *mat.Dense, initialized bool) {
	H.b = nil
	if B != nil {
		H.b = &mat.Dense{}
		H.b.CloneFrom(B)
	}
	H.Initialized = initialized
}

//UpdateVec feeds a single (displacement, gradient change) secant pair into
//the TS-BFGS update.
func (H *ApproximateHessian) UpdateVec(dx, dg []float64) {
	S := mat.NewDense(len(dx), 1, nil)
	Y := mat.NewDense(len(dg), 1, nil)
	S.SetCol(0, dx)
	Y.SetCol(0, dg)
	H.Update(S, Y)
}

//Update feeds a block of secant pairs (columns of S with products Y) into
//the TS-BFGS update and marks the model as initialized.
func (H *ApproximateHessian) Update(S, Y *mat.Dense) {
	H.b = UpdateH(H.b, S, Y)
	H.Initialized = true
}

//Project returns the model expressed in the subspace spanned by the
//columns of U, that is U^T B U. A guess-free model projects to a guess-free
//model.
func (H *ApproximateHessian) Project(U *mat.Dense) *ApproximateHessian {
	_, c := U.Dims()
	out := &ApproximateHessian{Dim: c, Ncart: c, Initialized: H.Initialized}
	if H.b != nil {
		var t, p mat.Dense
		t.Mul(U.T(), H.b)
		p.Mul(&t, U)
		out.b = &p
	}
	return out
}

//Sub returns B - A as a plain matrix, or nil in the guess-free state. The
//engine uses it for the Lagrangian Hessian B - Hc.
func (H *ApproximateHessian) Sub(A *mat.Dense) *mat.Dense {
	if H.b == nil {
		return nil
	}
	out := &mat.Dense{}
	out.CloneFrom(H.b)
	if A != nil {
		out.Sub(out, A)
	}
	return out
}
