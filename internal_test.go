/*
 * internal_test.go, part of sella.
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
	"testing"

	"github.com/AkihideHayashi/sella/linalg"
	"gonum.org/v1/gonum/mat"
)

//dummySet is a fixed-Jacobian coordinate set over one real atom and one
//dummy atom, for exercising the dummy degrees of freedom the generated
//sets never produce.
type dummySet struct {
	b       *mat.Dense
	dummies []float64
}

func (m *dummySet) Calc() []float64 {
	r, _ := m.b.Dims()
	return make([]float64, r)
}

func (m *dummySet) Jacobian() *mat.Dense { return m.b }

func (m *dummySet) Hessian() *linalg.Tensor3 {
	r, c := m.b.Dims()
	return linalg.NewTensor3(r, c, c)
}

func (m *dummySet) GuessHessian() *mat.Dense {
	r, _ := m.b.Dims()
	return eye(r)
}

func (m *dummySet) Constraints() Constraints { return nil }

func (m *dummySet) NAtoms() int { return 1 }

func (m *dummySet) NDummies() int { return len(m.dummies) / 3 }

func (m *dummySet) DummyPositions() []float64 {
	return append([]float64(nil), m.dummies...)
}

func (m *dummySet) SetDummyPositions(x []float64) {
	m.dummies = append([]float64(nil), x...)
}

func (m *dummySet) CheckBadInternals() *BadInternals { return nil }

func (m *dummySet) Forbid(bad *BadInternals) {}

func (m *dummySet) Regenerate() (Internals, error) { return m, nil }

func (m *dummySet) Wrap(dx []float64) []float64 { return dx }

func TestInternalToCartesianSpansDummies(Te *testing.T) {
	//One coordinate on the real atom, one on the dummy atom.
	B := mat.NewDense(2, 6, []float64{
		1, 0, 0, 0, 0, 0,
		0, 0, 0, 1, 0, 0,
	})
	s := &internalSpace{ints: &dummySet{b: B, dummies: []float64{0, 0, 0}}}

	out := s.ToCartesian([]float64{2, 3})
	if len(out) != 6 {
		Te.Fatalf("pushforward covers %d degrees of freedom, want all 6", len(out))
	}
	if out[0] != 2 {
		Te.Errorf("real-atom component %v, want 2", out[0])
	}
	if out[3] != 3 {
		Te.Errorf("dummy-atom component %v, want 3", out[3])
	}
}
