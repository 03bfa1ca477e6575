/*
 * internalpes.go, part of sella.
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

//InternalPES is a surface expressed in curvilinear internal coordinates.
//It behaves like PES in every way except that moves are integrated rather
//than applied, and that a move through a singular coordinate region
//triggers a regeneration of the whole coordinate set, Hessian included.
type InternalPES struct {
	*PES
	ispace *internalSpace
}

//NewInternalPES returns a surface over sys working in the given internal
//coordinate set. Overall translation and rotation are never projected
//out here: the coordinate set itself is invariant under both. A missing
//initial Hessian is taken from the coordinate set's diagonal guess,
//flattened onto the subspace of realizable coordinate displacements.
func NewInternalPES(sys System, ints Internals, opts *Options) *InternalPES {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts.ProjectTranslation(false)
	opts.ProjectRotation(false)

	base := NewPES(sys, ints.Constraints(), opts)

	sp := &internalSpace{sys: sys, ints: ints}
	base.space = sp
	base.ints = ints
	base.dim = sp.Dim()
	base.ncart = sp.Ncart()

	H0 := opts.H0()
	initialized := false
	if H0 == nil {
		B := ints.Jacobian()
		Binv := linalg.Pinv(B)
		var P mat.Dense
		P.Mul(B, Binv)
		var t, h mat.Dense
		t.Mul(&P, ints.GuessHessian())
		h.Mul(&t, &P)
		H0 = &h
	}
	base.hess = linalg.NewApproximateHessian(base.dim, base.ncart, H0, initialized)
	base.curr = &Snapshot{}
	base.last = &Snapshot{}

	return &InternalPES{PES: base, ispace: sp}
}

//Kick steps like the base surface and then, if the move ran into bad
//internal coordinates, rebuilds the coordinate set before returning.
func (p *InternalPES) Kick(dx []float64, diagonalize bool, gamma float64, threepoint bool, maxiter int) (float64, bool, error) {
	ratio, ok, err := p.PES.Kick(dx, diagonalize, gamma, threepoint, maxiter)
	if err != nil {
		return ratio, ok, errDecorate(err, "Kick")
	}
	if p.ispace.bad != nil {
		if err := p.UpdateInternals(); err != nil {
			return ratio, ok, errDecorate(err, "Kick")
		}
		p.ispace.bad = nil
	}
	return ratio, ok, nil
}

//BadInternals returns the coordinates the last move flagged as singular
//or unphysical, nil when the coordinate set is healthy.
func (p *InternalPES) BadInternals() *BadInternals { return p.ispace.bad }

//UpdateInternals regenerates the internal coordinate set at the current
//geometry, forbidding whatever went bad, and rebases every piece of
//cached state on the new set: coordinate values, gradient, multipliers,
//basis matrices and the approximate Hessian. The energy is untouched,
//the geometry never moves, and no evaluation happens beyond making sure
//the current point is evaluated at all.
func (p *InternalPES) UpdateInternals() error {
	if _, err := p.update(true); err != nil {
		return errDecorate(err, "UpdateInternals")
	}

	old := p.ispace.ints
	nold := 3 * (old.NAtoms() + old.NDummies())

	if p.ispace.bad != nil {
		old.Forbid(p.ispace.bad)
	}
	newInt, err := old.Regenerate()
	if err != nil {
		return errDecorate(err, "UpdateInternals")
	}
	newCons := newInt.Constraints()

	Blast := old.Jacobian()
	Dlast := old.Hessian()
	B := newInt.Jacobian()
	Binv := linalg.Pinv(B)
	D := newInt.Hessian()
	dof, nq := Binv.Dims()
	nxa := 3 * newInt.NAtoms()

	x := newInt.Calc()
	gcart := p.curr.Gcart
	g := make([]float64, nq)
	for a := 0; a < nq; a++ {
		sum := 0.0
		for i := range gcart {
			sum += gcart[i] * Binv.At(i, a)
		}
		g[a] = sum
	}

	var drdx *mat.Dense
	if J := newCons.Jacobian(); J != nil {
		drdx = &mat.Dense{}
		drdx.Mul(J, Binv.Slice(0, nxa, 0, nq))
	}
	var L []float64
	if drdx != nil {
		L = linalg.Lstsq(denseT(drdx), g)
	}
	var Ucons *mat.Dense
	if drdx != nil {
		Ucons = linalg.ModifiedGramSchmidt(denseT(drdx))
	}
	var BBt mat.Dense
	BBt.Mul(B, B.T())
	Unred := linalg.ModifiedGramSchmidt(&BBt)
	Ufree := linalg.ModifiedGramSchmidt(Unred, Ucons)

	//Rebase the curvature model: push the old model down to Cartesian
	//space with the old Jacobian, then lift it back up with the new one.
	//Both directions pick up a curvature term from the coordinate second
	//derivatives contracted with the gradient in the respective set.
	if Hold := p.hess.Matrix(); Hold != nil {
		var t1, Hcart mat.Dense
		t1.Mul(Blast.T(), Hold)
		Hcart.Mul(&t1, Blast)
		Hcart.Add(&Hcart, Dlast.ContractLeft(p.curr.G))

		corr := D.ContractLeft(g)
		diff := mat.NewDense(dof, dof, nil)
		diff.Scale(-1, corr)
		ncopy := nold
		if dof < ncopy {
			ncopy = dof
		}
		for i := 0; i < ncopy; i++ {
			for j := 0; j < ncopy; j++ {
				diff.Set(i, j, diff.At(i, j)+Hcart.At(i, j))
			}
		}
		var t2, Hnew mat.Dense
		t2.Mul(Binv.T(), diff)
		Hnew.Mul(&t2, Binv)
		p.hess = linalg.NewApproximateHessian(len(x), dof, &Hnew, true)
	} else {
		p.hess = linalg.NewApproximateHessian(len(x), dof, nil, false)
	}

	p.ispace.ints = newInt
	p.ints = newInt
	p.cons = newCons
	p.dim = len(x)

	p.curr = &Snapshot{
		X: x, Evaluated: true, F: p.curr.F, G: g, Gcart: gcart, L: L,
		Drdx: drdx, Ucons: Ucons, Unred: Unred, Ufree: Ufree,
	}
	p.last = &Snapshot{}
	return nil
}
