/*
 * constraints.go, part of sella.
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

//Package constraints implements the held coordinates of a saddle-point
//search: pinned atomic coordinates, overall translation and linearized
//overall rotation. All constraints here are linear in the positions, so the
//residual Hessian tensor is identically zero.
package constraints

import (
	"github.com/AkihideHayashi/sella/linalg"
	"gonum.org/v1/gonum/mat"
)

//Positioner is the part of a structure the constraint system reads.
type Positioner interface {
	Len() int
	Positions() []float64
}

type fixedDOF struct {
	atom, dim int
}

//System holds the constraint set of one structure, with residuals measured
//against the positions the structure had when New was called. Constraint
//ordering is stable: pinned coordinates first, then translations, then
//rotations, so callers may cache row indices.
type System struct {
	sys   Positioner
	x0    []float64
	fixed []fixedDOF
	trans bool
	rot   bool
}

//New binds a constraint system to sys, taking the current positions as the
//reference.
func New(sys Positioner) *System {
	return &System{sys: sys, x0: sys.Positions()}
}

//FixAtom pins coordinate dim (0..2) of atom i to its reference value.
//Adding the same pin twice is a no-op; the return reports whether the pin
//was added.
func (c *System) FixAtom(i, dim int) bool {
	for _, f := range c.fixed {
		if f.atom == i && f.dim == dim {
			return false
		}
	}
	c.fixed = append(c.fixed, fixedDOF{i, dim})
	return true
}

//FixTranslation holds the mean displacement of the structure at zero along
//each Cartesian axis. Idempotent; reports whether anything was added.
func (c *System) FixTranslation() bool {
	if c.trans {
		return false
	}
	c.trans = true
	return true
}

//FixRotation holds the linearized rigid rotation of the structure about
//its reference centroid at zero. Idempotent; reports whether anything was
//added.
func (c *System) FixRotation() bool {
	if c.rot {
		return false
	}
	c.rot = true
	return true
}

//Len returns the number of scalar constraints.
func (c *System) Len() int {
	n := len(c.fixed)
	if c.trans {
		n += 3
	}
	if c.rot {
		n += 3
	}
	return n
}

//FixedDOFs maps the row index of every single-coordinate pin to the
//Cartesian degree of freedom it holds. The basis builder uses this to
//pre-remove pinned directions before the general orthogonalization.
func (c *System) FixedDOFs() map[int]int {
	out := make(map[int]int, len(c.fixed))
	for i, f := range c.fixed {
		out[i] = 3*f.atom + f.dim
	}
	return out
}

//Residual returns the constraint residual vector at the current positions.
func (c *System) Residual() []float64 {
	if c.Len() == 0 {
		return nil
	}
	x := c.sys.Positions()
	n := c.sys.Len()
	res := make([]float64, 0, c.Len())
	for _, f := range c.fixed {
		d := 3*f.atom + f.dim
		res = append(res, x[d]-c.x0[d])
	}
	if c.trans {
		for dim := 0; dim < 3; dim++ {
			s := 0.0
			for i := 0; i < n; i++ {
				s += x[3*i+dim] - c.x0[3*i+dim]
			}
			res = append(res, s/float64(n))
		}
	}
	if c.rot {
		cx, cy, cz := c.centroid()
		var rx, ry, rz float64
		for i := 0; i < n; i++ {
			ax := c.x0[3*i] - cx
			ay := c.x0[3*i+1] - cy
			az := c.x0[3*i+2] - cz
			dx := x[3*i] - c.x0[3*i]
			dy := x[3*i+1] - c.x0[3*i+1]
			dz := x[3*i+2] - c.x0[3*i+2]
			rx += ay*dz - az*dy
			ry += az*dx - ax*dz
			rz += ax*dy - ay*dx
		}
		res = append(res, rx/float64(n), ry/float64(n), rz/float64(n))
	}
	return res
}

//Jacobian returns the Len() x 3N constraint Jacobian, or nil with no
//constraints present. The constraints are linear, so the Jacobian is
//position independent.
func (c *System) Jacobian() *mat.Dense {
	nc := c.Len()
	if nc == 0 {
		return nil
	}
	n := c.sys.Len()
	J := mat.NewDense(nc, 3*n, nil)
	row := 0
	for _, f := range c.fixed {
		J.Set(row, 3*f.atom+f.dim, 1)
		row++
	}
	if c.trans {
		w := 1 / float64(n)
		for dim := 0; dim < 3; dim++ {
			for i := 0; i < n; i++ {
				J.Set(row, 3*i+dim, w)
			}
			row++
		}
	}
	if c.rot {
		cx, cy, cz := c.centroid()
		w := 1 / float64(n)
		for i := 0; i < n; i++ {
			ax := c.x0[3*i] - cx
			ay := c.x0[3*i+1] - cy
			az := c.x0[3*i+2] - cz
			//d(a x dx)/dx rows for the three rotation residuals.
			J.Set(row, 3*i+1, -az*w)
			J.Set(row, 3*i+2, ay*w)
			J.Set(row+1, 3*i, az*w)
			J.Set(row+1, 3*i+2, -ax*w)
			J.Set(row+2, 3*i, -ay*w)
			J.Set(row+2, 3*i+1, ax*w)
		}
		row += 3
	}
	return J
}

//Hessian returns the second-derivative tensor of the residuals. Every
//constraint in this package is linear, so the tensor is zero and reported
//as nil.
func (c *System) Hessian() *linalg.Tensor3 {
	return nil
}

func (c *System) centroid() (cx, cy, cz float64) {
	n := c.sys.Len()
	for i := 0; i < n; i++ {
		cx += c.x0[3*i]
		cy += c.x0[3*i+1]
		cz += c.x0[3*i+2]
	}
	f := float64(n)
	return cx / f, cy / f, cz / f
}
