/*
 * tensor.go, part of sella.
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

//Package linalg contains the dense linear algebra used by the saddle-point
//search engine: rank-3 tensors, orthogonalization, pseudoinverses, the
//approximate Hessian with its quasi-Newton updates and the finite-difference
//Hessian-vector operator.
package linalg

import (
	"gonum.org/v1/gonum/mat"
)

//Tensor3 is a dense rank-3 tensor with N slices of R rows and C columns.
//The engine uses it for second derivatives of constraint residuals and of
//internal coordinates with respect to Cartesian positions, so the slice
//index runs over coordinates and each slice is an R x C curvature matrix.
type Tensor3 struct {
	N, R, C int
	data    []float64
}

//NewTensor3 returns a zero-filled N x R x C tensor.
func NewTensor3(n, r, c int) *Tensor3 {
	if n <= 0 || r <= 0 || c <= 0 {
		panic("linalg: non-positive Tensor3 dimension")
	}
	return &Tensor3{N: n, R: r, C: c, data: make([]float64, n*r*c)}
}

//At returns the element i,j,k.
func (T *Tensor3) At(i, j, k int) float64 {
	return T.data[(i*T.R+j)*T.C+k]
}

//Set assigns v to the element i,j,k.
func (T *Tensor3) Set(i, j, k int, v float64) {
	T.data[(i*T.R+j)*T.C+k] = v
}

//Slice returns the i-th R x C slice. The returned matrix shares no memory
//with the tensor.
func (T *Tensor3) Slice(i int) *mat.Dense {
	out := mat.NewDense(T.R, T.C, nil)
	start := i * T.R * T.C
	copy(out.RawMatrix().Data, T.data[start:start+T.R*T.C])
	return out
}

//ContractLeft contracts the slice index against l, returning the R x C
//matrix M_jk = sum_i l_i T_ijk. This is the Lagrange-multiplier contraction
//of a constraint Hessian tensor.
func (T *Tensor3) ContractLeft(l []float64) *mat.Dense {
	if len(l) != T.N {
		panic("linalg: ContractLeft dimension mismatch")
	}
	out := mat.NewDense(T.R, T.C, nil)
	d := out.RawMatrix().Data
	for i, li := range l {
		if li == 0 {
			continue
		}
		base := i * T.R * T.C
		for p := 0; p < T.R*T.C; p++ {
			d[p] += li * T.data[base+p]
		}
	}
	return out
}

//ContractMid contracts the row index of every slice against v, returning
//the N x C matrix M_ik = sum_j T_ijk v_j. Transporting a displacement rate
//through the derivative of a coordinate Jacobian is this contraction.
func (T *Tensor3) ContractMid(v []float64) *mat.Dense {
	if len(v) != T.R {
		panic("linalg: ContractMid dimension mismatch")
	}
	out := mat.NewDense(T.N, T.C, nil)
	for i := 0; i < T.N; i++ {
		row := out.RawRowView(i)
		for j, vj := range v {
			if vj == 0 {
				continue
			}
			base := (i*T.R + j) * T.C
			for k := 0; k < T.C; k++ {
				row[k] += vj * T.data[base+k]
			}
		}
	}
	return out
}
