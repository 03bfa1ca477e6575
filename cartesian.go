/*
 * cartesian.go, part of sella.
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

package sella

import (
	"github.com/AkihideHayashi/sella/linalg"
	"gonum.org/v1/gonum/mat"
)

//cartesianSpace is the trivial coordinate space: the coordinate vector is
//the flattened Cartesian positions and every map is the identity.
type cartesianSpace struct {
	sys System
}

func newCartesianSpace(sys System) *cartesianSpace {
	return &cartesianSpace{sys: sys}
}

func (s *cartesianSpace) Dim() int   { return 3 * s.sys.Len() }
func (s *cartesianSpace) Ncart() int { return 3 * s.sys.Len() }

func (s *cartesianSpace) Get() []float64 {
	return s.sys.Positions()
}

//Set moves the structure straight to target. The realized displacement is
//always the requested one: no projection happens at the position level.
func (s *cartesianSpace) Set(target, g []float64) (dxInitial, dxFinal, gFinal []float64, err error) {
	x := s.Get()
	dx := make([]float64, len(target))
	for i := range dx {
		dx[i] = target[i] - x[i]
	}
	s.sys.SetPositions(target)
	gFinal = make([]float64, len(dx))
	if g != nil {
		copy(gFinal, g)
	}
	dxFinal = make([]float64, len(dx))
	copy(dxFinal, dx)
	return dx, dxFinal, gFinal, nil
}

func (s *cartesianSpace) MapGradient(gCart []float64) []float64 {
	out := make([]float64, len(gCart))
	copy(out, gCart)
	return out
}

func (s *cartesianSpace) ToCartesian(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func (s *cartesianSpace) Drdx(cons Constraints) *mat.Dense {
	return cons.Jacobian()
}

func (s *cartesianSpace) Hc(cons Constraints, L []float64) *mat.Dense {
	T := cons.Hessian()
	if T == nil || L == nil {
		return nil
	}
	return T.ContractLeft(L)
}

//Basis builds the orthonormal bases of the constrained Cartesian space.
//Single-atom pinned coordinates are removed from the free candidates and
//from the constraint basis before the general orthogonalization; for
//systems with many frozen atoms this skips most of the Gram-Schmidt work.
func (s *cartesianSpace) Basis(cons Constraints, drdx *mat.Dense) (Ucons, Unred, Ufree *mat.Dense) {
	dim := s.Dim()
	if drdx != nil {
		Ucons = linalg.ModifiedGramSchmidt(denseT(drdx))
	}
	Unred = eye(dim)

	removedDOF := map[int]bool{}
	removedCons := map[int]bool{}
	if linalg.Cols(Ucons) == cons.Len() {
		//The shortcut indexes Ucons columns by constraint row, which is
		//only sound when orthogonalization dropped nothing.
		for row, dof := range cons.FixedDOFs() {
			removedDOF[dof] = true
			removedCons[row] = true
		}
	}
	free := mat.NewDense(dim, dim-len(removedDOF), nil)
	col := 0
	for i := 0; i < dim; i++ {
		if removedDOF[i] {
			continue
		}
		free.Set(i, col, 1)
		col++
	}
	var consRed *mat.Dense
	if nc := linalg.Cols(Ucons); nc > len(removedCons) {
		consRed = mat.NewDense(dim, nc-len(removedCons), nil)
		c := 0
		tmp := make([]float64, dim)
		for j := 0; j < nc; j++ {
			if removedCons[j] {
				continue
			}
			mat.Col(tmp, j, Ucons)
			consRed.SetCol(c, tmp)
			c++
		}
	}
	Ufree = linalg.ModifiedGramSchmidt(free, consRed)
	return Ucons, Unred, Ufree
}

func (s *cartesianSpace) Wrap(dx []float64) []float64 {
	out := make([]float64, len(dx))
	copy(out, dx)
	return out
}

func (s *cartesianSpace) Save() func() {
	saved := s.sys.Positions()
	return func() { s.sys.SetPositions(saved) }
}

//eye returns a dim x dim identity matrix.
func eye(dim int) *mat.Dense {
	I := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		I.Set(i, i, 1)
	}
	return I
}

//denseT returns an explicit transpose copy.
func denseT(A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	out := mat.NewDense(c, r, nil)
	out.Copy(A.T())
	return out
}
