/*
 * snapshot.go, part of sella.
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

import "gonum.org/v1/gonum/mat"

//Snapshot is one evaluated (or pending) point of a surface. X set with
//Evaluated false means the geometry is known but energy and forces have
//not been computed yet; the basis matrices are always present once X is
//set, because they depend on geometry alone.
type Snapshot struct {
	X []float64

	//Energy, gradient (negated forces) in the coordinate space of the
	//surface, and the raw Cartesian gradient. Valid only when Evaluated.
	Evaluated bool
	F         float64
	G         []float64
	Gcart     []float64

	//Constraint Lagrange multipliers recovered at this point. Valid only
	//when Evaluated.
	L []float64

	//Constraint Jacobian and the orthonormal bases derived from it.
	Drdx  *mat.Dense
	Ucons *mat.Dense
	Unred *mat.Dense
	Ufree *mat.Dense
}

//Gradient returns a copy of G, or nil when not evaluated.
func (s *Snapshot) Gradient() []float64 {
	if !s.Evaluated || s.G == nil {
		return nil
	}
	out := make([]float64, len(s.G))
	copy(out, s.G)
	return out
}
