/*
 * options.go, part of sella.
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
	"github.com/AkihideHayashi/sella/eigensolvers"
	"gonum.org/v1/gonum/mat"
)

//Options collects the tunables of a surface. Every method returns the
//value held before the call and, when given an argument, replaces it.
type Options struct {
	eta       float64
	v0        []float64
	projTrans bool
	projRot   bool
	h0        *mat.Dense
	h0init    bool
	traj      TrajectoryWriter
	solver    Eigensolver
}

//DefaultOptions returns Options with the defaults: finite-difference step
//1e-4, translation and rotation projected out, Jacobi-Davidson
//eigensolver, no trajectory.
func DefaultOptions() *Options {
	return &Options{
		eta:       1e-4,
		projTrans: true,
		projRot:   true,
		solver: func(A eigensolvers.Operator, gamma float64, P *mat.Dense, v0 []float64, maxiter int) (bool, error) {
			return eigensolvers.RayleighRitz(A, gamma, P, v0, eigensolvers.JD0, maxiter)
		},
	}
}

//Eta returns the finite-difference displacement used by the numerical
//Hessian-vector products, and sets it if a positive value is given.
func (o *Options) Eta(eta ...float64) float64 {
	ret := o.eta
	if len(eta) > 0 && eta[0] > 0 {
		o.eta = eta[0]
	}
	return ret
}

//V0 returns the seed vector for the first diagonalization, and sets it if
//given.
func (o *Options) V0(v0 ...[]float64) []float64 {
	ret := o.v0
	if len(v0) > 0 {
		o.v0 = v0[0]
	}
	return ret
}

//ProjectTranslation returns whether overall translation is constrained
//away, and sets it if given.
func (o *Options) ProjectTranslation(p ...bool) bool {
	ret := o.projTrans
	if len(p) > 0 {
		o.projTrans = p[0]
	}
	return ret
}

//ProjectRotation returns whether overall rotation is constrained away, and
//sets it if given.
func (o *Options) ProjectRotation(p ...bool) bool {
	ret := o.projRot
	if len(p) > 0 {
		o.projRot = p[0]
	}
	return ret
}

//H0 returns the initial Hessian guess, and installs one if given. The
//second argument of the setter form marks the guess as refined curvature
//rather than a bare guess.
func (o *Options) H0(h0 ...*mat.Dense) *mat.Dense {
	ret := o.h0
	if len(h0) > 0 {
		o.h0 = h0[0]
		o.h0init = o.h0 != nil
	}
	return ret
}

//Trajectory returns the trajectory sink, and sets it if given.
func (o *Options) Trajectory(w ...TrajectoryWriter) TrajectoryWriter {
	ret := o.traj
	if len(w) > 0 {
		o.traj = w[0]
	}
	return ret
}

//Solver returns the eigensolver, and sets it if a non-nil one is given.
func (o *Options) Solver(s ...Eigensolver) Eigensolver {
	ret := o.solver
	if len(s) > 0 && s[0] != nil {
		o.solver = s[0]
	}
	return ret
}
