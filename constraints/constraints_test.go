/*
 * constraints_test.go, part of sella.
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

package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStructure struct {
	x []float64
}

func (s *testStructure) Len() int { return len(s.x) / 3 }

func (s *testStructure) Positions() []float64 {
	return append([]float64(nil), s.x...)
}

func newStructure() *testStructure {
	return &testStructure{x: []float64{
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
	}}
}

func TestEmptySystem(t *testing.T) {
	s := newStructure()
	c := New(s)
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Residual())
	assert.Nil(t, c.Jacobian())
	assert.Nil(t, c.Hessian())
	assert.Empty(t, c.FixedDOFs())
}

func TestFixAtom(t *testing.T) {
	s := newStructure()
	c := New(s)
	assert.True(t, c.FixAtom(1, 0))
	assert.False(t, c.FixAtom(1, 0))
	assert.Equal(t, 1, c.Len())

	assert.InDelta(t, 0, c.Residual()[0], 1e-14)
	s.x[3] += 0.25
	assert.InDelta(t, 0.25, c.Residual()[0], 1e-14)

	J := c.Jacobian()
	r, cc := J.Dims()
	require.Equal(t, 1, r)
	require.Equal(t, 9, cc)
	assert.InDelta(t, 1, J.At(0, 3), 1e-14)

	dofs := c.FixedDOFs()
	require.Len(t, dofs, 1)
	assert.Equal(t, 3, dofs[0])
}

func TestFixTranslation(t *testing.T) {
	s := newStructure()
	c := New(s)
	assert.True(t, c.FixTranslation())
	assert.False(t, c.FixTranslation())
	assert.Equal(t, 3, c.Len())

	for _, r := range c.Residual() {
		assert.InDelta(t, 0, r, 1e-14)
	}
	//Rigid shift along x
	for i := 0; i < 3; i++ {
		s.x[3*i] += 0.3
	}
	res := c.Residual()
	assert.InDelta(t, 0.3, res[0], 1e-14)
	assert.InDelta(t, 0, res[1], 1e-14)
	assert.InDelta(t, 0, res[2], 1e-14)
}

func TestFixRotation(t *testing.T) {
	s := newStructure()
	c := New(s)
	require.True(t, c.FixRotation())
	assert.Equal(t, 3, c.Len())

	for _, r := range c.Residual() {
		assert.InDelta(t, 0, r, 1e-14)
	}

	//A small rigid rotation about z moves the rotation residual, a rigid
	//translation does not.
	eps := 1e-3
	rot := newStructure()
	crot := New(rot)
	crot.FixRotation()
	for i := 0; i < 3; i++ {
		x, y := rot.x[3*i], rot.x[3*i+1]
		rot.x[3*i] = x - eps*y
		rot.x[3*i+1] = y + eps*x
	}
	res := crot.Residual()
	assert.Greater(t, absf(res[2]), 1e-5)

	trans := newStructure()
	ctrans := New(trans)
	ctrans.FixRotation()
	for i := 0; i < 3; i++ {
		trans.x[3*i] += 0.2
	}
	for _, r := range ctrans.Residual() {
		assert.InDelta(t, 0, r, 1e-10)
	}
}

func TestJacobianMatchesResidual(t *testing.T) {
	s := newStructure()
	c := New(s)
	c.FixAtom(0, 2)
	c.FixTranslation()
	c.FixRotation()

	J := c.Jacobian()
	nc := c.Len()
	require.Equal(t, 7, nc)

	//Finite difference of the residual against the analytic Jacobian.
	const delta = 1e-6
	r0 := c.Residual()
	for d := 0; d < 9; d++ {
		s.x[d] += delta
		r1 := c.Residual()
		s.x[d] -= delta
		for i := 0; i < nc; i++ {
			assert.InDelta(t, (r1[i]-r0[i])/delta, J.At(i, d), 1e-6,
				"row %d dof %d", i, d)
		}
	}
}

func TestOrdering(t *testing.T) {
	s := newStructure()
	c := New(s)
	c.FixAtom(2, 1)
	c.FixTranslation()
	J := c.Jacobian()
	//Pins come first, then translations.
	assert.InDelta(t, 1, J.At(0, 7), 1e-14)
	w := 1.0 / 3
	assert.InDelta(t, w, J.At(1, 0), 1e-14)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
