/*
 * update.go, part of sella.
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

//SymmetrizeY corrects the Hessian-vector products Y = A S so that the
//projected operator S^T Y is exactly symmetric. For a symmetric A the
//asymmetry is pure finite-difference noise; the correction Y + S X with
//X = (S^T S)^+ (Y^T S - S^T Y)/2 removes it without leaving the span of
//the trial vectors. A single trial vector is returned unchanged.
func SymmetrizeY(S, Y *mat.Dense) *mat.Dense {
	_, k := S.Dims()
	if k < 2 {
		out := &mat.Dense{}
		out.CloneFrom(Y)
		return out
	}
	var StS, StY, asym mat.Dense
	StS.Mul(S.T(), S)
	StY.Mul(S.T(), Y)
	asym.Sub(StY.T(), &StY)
	asym.Scale(0.5, &asym)
	//X solves (S^T S) X = (Y^T S - S^T Y)/2 column by column.
	X := mat.NewDense(k, k, nil)
	b := make([]float64, k)
	for j := 0; j < k; j++ {
		mat.Col(b, j, &asym)
		X.SetCol(j, Lstsq(&StS, b))
	}
	var corr, out mat.Dense
	corr.Mul(S, X)
	out.Add(Y, &corr)
	return &out
}

//UpdateH applies the multi-secant TS-BFGS update to B using the trial
//vectors S and their products Y, and returns the new matrix. Unlike plain
//BFGS, the TS-BFGS weight keeps negative curvature information, which a
//saddle-point search must not wash out. The result satisfies B' S = Y
//(after symmetrization of Y) and is exactly symmetric.
//
//When B is nil the update seeds a scaled identity |Y|/|S| first, so that a
//guess-free Hessian becomes usable after the first real curvature data.
func UpdateH(B, S, Y *mat.Dense) *mat.Dense {
	dim, _ := S.Dims()
	if B == nil {
		sigma := mat.Norm(Y, 2) / math.Max(mat.Norm(S, 2), 1e-300)
		if sigma == 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
			sigma = 1
		}
		B = mat.NewDense(dim, dim, nil)
		for i := 0; i < dim; i++ {
			B.Set(i, i, sigma)
		}
	}
	Ys := SymmetrizeY(S, Y)

	//|B| S through the eigendecomposition of B.
	sym := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, 0.5*(B.At(i, j)+B.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		panic("linalg: eigendecomposition failed in UpdateH")
	}
	lams := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	var VtS, absBS mat.Dense
	VtS.Mul(vecs.T(), S)
	r, c := VtS.Dims()
	for i := 0; i < r; i++ {
		a := math.Abs(lams[i])
		for j := 0; j < c; j++ {
			VtS.Set(i, j, a*VtS.At(i, j))
		}
	}
	absBS.Mul(&vecs, &VtS)

	//M = Y Y^T + |B|S (|B|S)^T weights the secant directions.
	var M, tmp mat.Dense
	M.Mul(Ys, Ys.T())
	tmp.Mul(&absBS, absBS.T())
	M.Add(&M, &tmp)

	//U = M S (S^T M S)^+ so that U^T S = I on the trial subspace.
	var MS, StMS mat.Dense
	MS.Mul(&M, S)
	StMS.Mul(S.T(), &MS)
	var U mat.Dense
	U.Mul(&MS, Pinv(&StMS))

	//J = Y - B S is the secant residual.
	var J, BS mat.Dense
	BS.Mul(B, S)
	J.Sub(Ys, &BS)

	var JUt, UJt, JtS, UJtS, UJtSUt, Bp mat.Dense
	JUt.Mul(&J, U.T())
	UJt.Mul(&U, J.T())
	JtS.Mul(J.T(), S)
	UJtS.Mul(&U, &JtS)
	UJtSUt.Mul(&UJtS, U.T())

	Bp.Add(B, &JUt)
	Bp.Add(&Bp, &UJt)
	Bp.Sub(&Bp, &UJtSUt)

	//Symmetrize to kill roundoff asymmetry.
	out := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			out.Set(i, j, 0.5*(Bp.At(i, j)+Bp.At(j, i)))
		}
	}
	return out
}
