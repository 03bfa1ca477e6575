/*
 * geometry.go, part of sella.
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

package intcoords

import "math"

type vec3 [3]float64

func atomVec(x []float64, i int) vec3 {
	return vec3{x[3*i], x[3*i+1], x[3*i+2]}
}

func sub(a, b vec3) vec3 { return vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func vdot(a, b vec3) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func vnorm(a vec3) float64 { return math.Sqrt(vdot(a, a)) }

func vscale(a vec3, s float64) vec3 { return vec3{a[0] * s, a[1] * s, a[2] * s} }

func vadd(a, b vec3) vec3 { return vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

func cross(a, b vec3) vec3 {
	return vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func addAtom(grad []float64, i int, g vec3) {
	grad[3*i] += g[0]
	grad[3*i+1] += g[1]
	grad[3*i+2] += g[2]
}

//value evaluates one coordinate at positions x.
func value(co Coordinate, x []float64) float64 {
	switch co.Kind {
	case Bond:
		return vnorm(sub(atomVec(x, co.I), atomVec(x, co.J)))
	case Angle:
		return angleValue(x, co.I, co.J, co.K)
	case Dihedral:
		return dihedralValue(x, co.I, co.J, co.K, co.L)
	}
	panic("intcoords: unknown coordinate kind")
}

//gradient accumulates the derivative of one coordinate into grad, which
//spans all positional degrees of freedom.
func gradient(co Coordinate, x []float64, grad []float64) {
	switch co.Kind {
	case Bond:
		u := sub(atomVec(x, co.I), atomVec(x, co.J))
		r := vnorm(u)
		uhat := vscale(u, 1/r)
		addAtom(grad, co.I, uhat)
		addAtom(grad, co.J, vscale(uhat, -1))
	case Angle:
		angleGradient(x, co.I, co.J, co.K, grad)
	case Dihedral:
		dihedralGradient(x, co.I, co.J, co.K, co.L, grad)
	default:
		panic("intcoords: unknown coordinate kind")
	}
}

func angleValue(x []float64, i, j, k int) float64 {
	u := sub(atomVec(x, i), atomVec(x, j))
	v := sub(atomVec(x, k), atomVec(x, j))
	c := vdot(u, v) / (vnorm(u) * vnorm(v))
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

func angleGradient(x []float64, i, j, k int, grad []float64) {
	u := sub(atomVec(x, i), atomVec(x, j))
	v := sub(atomVec(x, k), atomVec(x, j))
	ru, rv := vnorm(u), vnorm(v)
	uhat := vscale(u, 1/ru)
	vhat := vscale(v, 1/rv)
	c := vdot(uhat, vhat)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	s := math.Sqrt(1 - c*c)
	if s < 1e-10 {
		//Exactly linear: the derivative is singular. Detection and the
		//bad-internal check keep angles away from here; leave zero.
		return
	}
	gi := vscale(vadd(vscale(uhat, c), vscale(vhat, -1)), 1/(ru*s))
	gk := vscale(vadd(vscale(vhat, c), vscale(uhat, -1)), 1/(rv*s))
	gj := vscale(vadd(gi, gk), -1)
	addAtom(grad, i, gi)
	addAtom(grad, j, gj)
	addAtom(grad, k, gk)
}

func dihedralValue(x []float64, i, j, k, l int) float64 {
	b1 := sub(atomVec(x, j), atomVec(x, i))
	b2 := sub(atomVec(x, k), atomVec(x, j))
	b3 := sub(atomVec(x, l), atomVec(x, k))
	n1 := cross(b1, b2)
	n2 := cross(b2, b3)
	m := cross(n1, vscale(b2, 1/vnorm(b2)))
	return math.Atan2(vdot(m, n2), vdot(n1, n2))
}

//dihedralGradient uses the Blondel-Karplus expressions, which stay finite
//for any non-degenerate quadruple.
func dihedralGradient(x []float64, i, j, k, l int, grad []float64) {
	b1 := sub(atomVec(x, j), atomVec(x, i))
	b2 := sub(atomVec(x, k), atomVec(x, j))
	b3 := sub(atomVec(x, l), atomVec(x, k))
	n1 := cross(b1, b2)
	n2 := cross(b2, b3)
	n1sq := vdot(n1, n1)
	n2sq := vdot(n2, n2)
	rb2 := vnorm(b2)
	if n1sq < 1e-20 || n2sq < 1e-20 {
		return
	}
	gi := vscale(n1, -rb2/n1sq)
	gl := vscale(n2, rb2/n2sq)
	f12 := vdot(b1, b2) / (rb2 * rb2)
	f32 := vdot(b3, b2) / (rb2 * rb2)
	gj := vadd(vscale(gi, f12-1), vscale(gl, -f32))
	gk := vadd(vscale(gl, f32-1), vscale(gi, -f12))
	addAtom(grad, i, gi)
	addAtom(grad, j, gj)
	addAtom(grad, k, gk)
	addAtom(grad, l, gl)
}
