/*
 * numhess.go, part of sella.
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

//EvalFunc evaluates energy and gradient at x without committing x as the
//current point of the surface. Implementations must save and restore the
//underlying structure on every exit path.
type EvalFunc func(x []float64) (f float64, g []float64, err error)

//NumericalHessian is a finite-difference Hessian-vector product operator
//built around a fixed point (X0, G0). When Proj is set, the operator acts
//in the column space of Proj (the free subspace) while the recorded
//iterates stay full-dimensional, because the Hessian refresh that consumes
//them works on the full model.
type NumericalHessian struct {
	F          EvalFunc
	X0, G0     []float64
	Eta        float64
	ThreePoint bool
	Proj       *mat.Dense

	vs, avs [][]float64
}

//Dim returns the dimension the operator acts in.
func (nh *NumericalHessian) Dim() int {
	if nh.Proj != nil {
		_, c := nh.Proj.Dims()
		return c
	}
	return len(nh.X0)
}

//MatVec returns the product of the Hessian at X0 with v, estimated with a
//two- or three-point finite difference of the gradient. Every call records
//the full-dimensional (vector, product) pair for later harvesting.
func (nh *NumericalHessian) MatVec(v []float64) ([]float64, error) {
	n := len(nh.X0)
	w := make([]float64, n)
	if nh.Proj != nil {
		vv := mat.NewVecDense(len(v), v)
		ww := mat.NewVecDense(n, w)
		ww.MulVec(nh.Proj, vv)
	} else {
		copy(w, v)
	}
	vnorm := norm(w)
	if vnorm == 0 {
		out := make([]float64, len(v))
		return out, nil
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = nh.X0[i] + nh.Eta*w[i]/vnorm
	}
	_, gplus, err := nh.F(x)
	if err != nil {
		return nil, err
	}
	hw := make([]float64, n)
	if nh.ThreePoint {
		for i := range x {
			x[i] = nh.X0[i] - nh.Eta*w[i]/vnorm
		}
		_, gminus, err := nh.F(x)
		if err != nil {
			return nil, err
		}
		for i := range hw {
			hw[i] = vnorm * (gplus[i] - gminus[i]) / (2 * nh.Eta)
		}
	} else {
		for i := range hw {
			hw[i] = vnorm * (gplus[i] - nh.G0[i]) / nh.Eta
		}
	}
	nh.vs = append(nh.vs, w)
	nh.avs = append(nh.avs, hw)
	if nh.Proj == nil {
		out := make([]float64, n)
		copy(out, hw)
		return out, nil
	}
	out := make([]float64, len(v))
	ov := mat.NewVecDense(len(v), out)
	ov.MulVec(nh.Proj.T(), mat.NewVecDense(n, hw))
	return out, nil
}

//Iterates returns the full-dimensional trial vectors and their products
//accumulated so far, as column matrices, or nil when no product was taken.
func (nh *NumericalHessian) Iterates() (Vs, AVs *mat.Dense) {
	if len(nh.vs) == 0 {
		return nil, nil
	}
	n := len(nh.X0)
	Vs = mat.NewDense(n, len(nh.vs), nil)
	AVs = mat.NewDense(n, len(nh.avs), nil)
	for j := range nh.vs {
		Vs.SetCol(j, nh.vs[j])
		AVs.SetCol(j, nh.avs[j])
	}
	return Vs, AVs
}
