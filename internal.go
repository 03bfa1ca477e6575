/*
 * internal.go, part of sella.
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
	"errors"
	"log"

	"github.com/AkihideHayashi/sella/linalg"
	"github.com/AkihideHayashi/sella/ode"
	"gonum.org/v1/gonum/mat"
)

//internalSpace works in curvilinear internal coordinates. The coordinate
//vector is the value of every internal; positions (real and dummy atoms)
//are the underlying state, connected to the coordinates through the
//Wilson B matrix and its pseudoinverse. Moving to a target coordinate
//vector is an initial value problem, not an algebraic solve.
type internalSpace struct {
	sys  System
	ints Internals

	//Non-nil after a Set that ran into singular or unphysical internals.
	//The surface owning this space reacts by regenerating the coordinate
	//set; a plain clear loses the information of what went wrong.
	bad *BadInternals
}

func (s *internalSpace) Dim() int { return len(s.ints.Calc()) }

//Ncart counts the positional degrees of freedom behind the coordinates,
//dummy atoms included.
func (s *internalSpace) Ncart() int { return 3 * (s.ints.NAtoms() + s.ints.NDummies()) }

func (s *internalSpace) Get() []float64 { return s.ints.Calc() }

//fullPositions returns real followed by dummy atom positions.
func (s *internalSpace) fullPositions() []float64 {
	return append(s.sys.Positions(), s.ints.DummyPositions()...)
}

func (s *internalSpace) setFullPositions(x []float64) {
	nxa := 3 * s.ints.NAtoms()
	s.sys.SetPositions(append([]float64(nil), x[:nxa]...))
	if len(x) > nxa {
		s.ints.SetDummyPositions(append([]float64(nil), x[nxa:]...))
	}
}

//qODE is the right hand side of the transport system. The state is three
//stacked blocks of positional dimension: the positions themselves, the
//position velocity realizing a constant-velocity path in coordinate
//space, and the transported gradient representative. Velocity and
//gradient are dragged by the same curvature term, the contraction of the
//coordinate second derivatives with the velocity.
func (s *internalSpace) qODE(t float64, y, dydt []float64) error {
	dof := len(y) / 3
	x, v, g := y[:dof], y[dof:2*dof], y[2*dof:]

	s.setFullPositions(x)

	Binv := linalg.Pinv(s.ints.Jacobian())
	Dv := s.ints.Hessian().ContractMid(v)

	var M mat.Dense
	M.Mul(Binv, Dv)
	M.Scale(-1, &M)

	copy(dydt[:dof], v)
	mat.NewVecDense(dof, dydt[dof:2*dof]).MulVec(&M, mat.NewVecDense(dof, v))
	mat.NewVecDense(dof, dydt[2*dof:]).MulVec(&M, mat.NewVecDense(dof, g))
	return nil
}

//Set integrates the structure towards the target coordinate values. The
//integration stops early, without error, when the path runs into bad
//internal coordinates; the realized displacement then covers only the
//integrated fraction of the request. A stalled or diverging integration
//is an error.
func (s *internalSpace) Set(target, g []float64) (dxInitial, dxFinal, gFinal []float64, err error) {
	q0 := s.ints.Calc()
	dx := make([]float64, len(target))
	for i := range dx {
		dx[i] = target[i] - q0[i]
	}
	dx = s.ints.Wrap(dx)

	Binv := linalg.Pinv(s.ints.Jacobian())
	dof, _ := Binv.Dims()

	y0 := make([]float64, 3*dof)
	copy(y0, s.fullPositions())
	mat.NewVecDense(dof, y0[dof:2*dof]).MulVec(Binv, mat.NewVecDense(len(dx), dx))
	if g != nil {
		mat.NewVecDense(dof, y0[2*dof:]).MulVec(Binv, mat.NewVecDense(len(g), g))
	}

	stepper := ode.NewRosenbrock(s.qODE, 0, y0, 1, ode.Settings{
		AbsTol:  1e-6,
		MaxEval: 1000,
	})

	t0 := 0.0
	y := y0
	for stepper.Status() == ode.Running {
		if stepErr := stepper.Step(); stepErr != nil {
			if errors.Is(stepErr, ode.ErrTooManyEvaluations) {
				return nil, nil, nil, &CError{msg: "Set: geometry update is taking too long to converge"}
			}
			return nil, nil, nil, &CError{msg: "Set: geometry update failed to converge"}
		}
		y = stepper.Y()
		t0 = stepper.T()
		if bad := s.ints.CheckBadInternals(); bad != nil {
			log.Println("sella: bad internal coordinates found, stopping geometry update early")
			s.bad = bad
			break
		}
	}

	s.setFullPositions(y[:dof])
	B := s.ints.Jacobian()
	nq, _ := B.Dims()

	dxFinal = make([]float64, nq)
	mat.NewVecDense(nq, dxFinal).MulVec(B, mat.NewVecDense(dof, y[dof:2*dof]))
	for i := range dxFinal {
		dxFinal[i] *= t0
	}
	gFinal = make([]float64, nq)
	mat.NewVecDense(nq, gFinal).MulVec(B, mat.NewVecDense(dof, y[2*dof:]))

	dxInitial = make([]float64, len(dx))
	for i := range dx {
		dxInitial[i] = t0 * dx[i]
	}
	return dxInitial, dxFinal, gFinal, nil
}

//MapGradient pulls a real-atom Cartesian gradient back through the
//pseudoinverse Jacobian. Dummy atoms carry no force.
func (s *internalSpace) MapGradient(gCart []float64) []float64 {
	Binv := linalg.Pinv(s.ints.Jacobian())
	_, nq := Binv.Dims()
	out := make([]float64, nq)
	for a := 0; a < nq; a++ {
		sum := 0.0
		for i := range gCart {
			sum += gCart[i] * Binv.At(i, a)
		}
		out[a] = sum
	}
	return out
}

//ToCartesian pushes a coordinate-space vector forward through the B
//matrix onto the full positional space, dummy atoms included.
func (s *internalSpace) ToCartesian(v []float64) []float64 {
	B := s.ints.Jacobian()
	nq, dof := B.Dims()
	out := make([]float64, dof)
	for i := 0; i < dof; i++ {
		sum := 0.0
		for a := 0; a < nq; a++ {
			sum += v[a] * B.At(a, i)
		}
		out[i] = sum
	}
	return out
}

//Drdx chains the Cartesian constraint Jacobian through dx/dq.
func (s *internalSpace) Drdx(cons Constraints) *mat.Dense {
	J := cons.Jacobian()
	if J == nil {
		return nil
	}
	Binv := linalg.Pinv(s.ints.Jacobian())
	_, nq := Binv.Dims()
	nxa := 3 * s.ints.NAtoms()
	BinvReal := Binv.Slice(0, nxa, 0, nq)
	var out mat.Dense
	out.Mul(J, BinvReal)
	return &out
}

//Hc pulls the multiplier-contracted constraint curvature back into
//coordinate space. The pullback of a second derivative picks up a
//correction from the curvature of the coordinates themselves, contracted
//with the multipliers mapped into coordinate space.
func (s *internalSpace) Hc(cons Constraints, L []float64) *mat.Dense {
	if L == nil {
		return nil
	}
	B := s.ints.Jacobian()
	Binv := linalg.Pinv(B)
	dof, nq := Binv.Dims()
	nxa := 3 * s.ints.NAtoms()

	var Dcons *mat.Dense
	if T := cons.Hessian(); T != nil {
		Dcons = T.ContractLeft(L)
	}

	Lint := make([]float64, nq)
	if drdq := s.Drdx(cons); drdq != nil {
		mat.NewVecDense(nq, Lint).MulVec(drdq.T(), mat.NewVecDense(len(L), L))
	}
	Dint := s.ints.Hessian().ContractLeft(Lint)

	diff := mat.NewDense(dof, dof, nil)
	diff.Scale(-1, Dint)
	if Dcons != nil {
		for i := 0; i < nxa; i++ {
			for j := 0; j < nxa; j++ {
				diff.Set(i, j, diff.At(i, j)+Dcons.At(i, j))
			}
		}
	}
	var t, Hc mat.Dense
	t.Mul(Binv.T(), diff)
	Hc.Mul(&t, Binv)
	return &Hc
}

//Basis builds the orthonormal bases in coordinate space. The
//non-redundant basis is the range of B with dummy-only directions
//removed, so steps never try to leave the manifold of realizable
//coordinate values or to steer dummy atoms directly.
func (s *internalSpace) Basis(cons Constraints, drdx *mat.Dense) (Ucons, Unred, Ufree *mat.Dense) {
	if drdx != nil {
		Ucons = linalg.ModifiedGramSchmidt(denseT(drdx))
	}
	B := s.ints.Jacobian()
	Binv := linalg.Pinv(B)
	nq, dof := B.Dims()
	nxa := 3 * s.ints.NAtoms()

	var Udummy *mat.Dense
	if dof > nxa {
		sub := mat.DenseCopyOf(B.Slice(0, nq, nxa, dof))
		Udummy = linalg.ModifiedGramSchmidt(sub)
	}
	var BBinv mat.Dense
	BBinv.Mul(B, Binv)
	Unred = linalg.ModifiedGramSchmidt(&BBinv, Udummy)
	Ufree = linalg.ModifiedGramSchmidt(Unred, Ucons)
	return Ucons, Unred, Ufree
}

func (s *internalSpace) Wrap(dx []float64) []float64 { return s.ints.Wrap(dx) }

func (s *internalSpace) Save() func() {
	apos := s.sys.Positions()
	dpos := s.ints.DummyPositions()
	return func() {
		s.sys.SetPositions(apos)
		if len(dpos) > 0 {
			s.ints.SetDummyPositions(dpos)
		}
	}
}
