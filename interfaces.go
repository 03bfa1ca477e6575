/*
 * interfaces.go, part of sella.
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
	"github.com/AkihideHayashi/sella/linalg"
	"gonum.org/v1/gonum/mat"
)

//System is an atomic structure together with its energy and force
//evaluator. Positions returns a fresh copy of the flattened Cartesian
//positions; the structure, not the surface, owns the coordinate state.
//EnergyForces may be expensive: the surface counts and minimizes calls
//to it.
type System interface {

	//Number of atoms.
	Len() int

	//Element symbol of atom i.
	Symbol(i int) string

	//Copy of the flattened Cartesian positions, length 3*Len().
	Positions() []float64

	//Overwrites the Cartesian positions.
	SetPositions(x []float64)

	//Energy and per-degree-of-freedom forces at the current positions.
	EnergyForces() (float64, []float64, error)
}

//Constraints exposes the held coordinates of a structure. The surface only
//reads residuals and derivatives, and asks, idempotently, for translation
//and rotation fixing.
type Constraints interface {

	//Number of scalar constraints.
	Len() int

	//Residual vector at the current positions, nil when empty.
	Residual() []float64

	//Len() x dim Jacobian of the residuals, nil when empty.
	Jacobian() *mat.Dense

	//Second-derivative tensor of the residuals, nil when identically zero.
	Hessian() *linalg.Tensor3

	//Add translation/rotation fixing constraints. Both may no-op if
	//already present, reporting whether anything was added.
	FixTranslation() bool
	FixRotation() bool

	//Maps the row index of every single-coordinate pin to the Cartesian
	//degree of freedom it holds, for the fast path of the basis builder.
	FixedDOFs() map[int]int
}

//BadInternals names the internal coordinates that made a coordinate set
//unusable, so that a regeneration can forbid them.
type BadInternals struct {
	Bonds  [][2]int
	Angles [][3]int
}

//Internals is a curvilinear internal-coordinate set over a structure plus
//its dummy atoms. Regenerate returns an independent set rebuilt from
//scratch; mutating one set never affects another in use.
type Internals interface {

	//Values of all internal coordinates at the current positions.
	Calc() []float64

	//Wilson B matrix: the nq x ndof Jacobian of the coordinate values
	//with respect to the Cartesian positions of real and dummy atoms.
	Jacobian() *mat.Dense

	//Second-derivative tensor of the coordinate values, nq x ndof x ndof.
	Hessian() *linalg.Tensor3

	//Diagonal curvature guess in internal coordinates.
	GuessHessian() *mat.Dense

	//Constraint system expressed over the real atoms.
	Constraints() Constraints

	//Real and dummy atom counts.
	NAtoms() int
	NDummies() int

	//Dummy atom positions, length 3*NDummies().
	DummyPositions() []float64
	SetDummyPositions(x []float64)

	//Nil when the current geometry is fine; otherwise the coordinates
	//that have become singular or unphysical.
	CheckBadInternals() *BadInternals

	//Excludes the named coordinates from future regeneration.
	Forbid(bad *BadInternals)

	//Fresh, independent coordinate set detected at the current geometry,
	//honoring everything forbidden so far.
	Regenerate() (Internals, error)

	//Wraps periodic coordinate displacements into their principal range.
	Wrap(dx []float64) []float64
}

//TrajectoryWriter receives one frame per completed energy and force
//evaluation. Dummy atoms arrive with zero force.
type TrajectoryWriter interface {
	WNext(coords []float64, energy float64, forces []float64) error
}

//Eigensolver is the iterative routine Diag runs against the projected
//Hessian operator. P is a preconditioner matrix (nil for identity) and v0
//an optional start vector. The returned flag reports convergence; the
//iterates the operator accumulated are useful either way.
type Eigensolver func(A eigensolvers.Operator, gamma float64, P *mat.Dense, v0 []float64, maxiter int) (bool, error)

//CoordinateSpace is the representation a surface works in. The Cartesian
//and internal-coordinate variants sit behind this interface; the engine
//itself is representation agnostic.
type CoordinateSpace interface {

	//Current dimension of the coordinate vector.
	Dim() int

	//Count of genuine Cartesian degrees of freedom, used for Hessian
	//re-basing.
	Ncart() int

	//Current coordinate vector.
	Get() []float64

	//Set moves the structure to target. g is the cached gradient at the
	//current point, nil when not yet evaluated; spaces that transport the
	//gradient along the move need it. The initial displacement, the
	//realized displacement and the gradient carried to the new point are
	//returned; a partial move shows up as dxFinal shorter than dxInitial.
	Set(target, g []float64) (dxInitial, dxFinal, gFinal []float64, err error)

	//MapGradient converts a Cartesian gradient into the dual vector of
	//this space.
	MapGradient(gCart []float64) []float64

	//ToCartesian converts a vector of this space into per-degree-of-
	//freedom Cartesian components.
	ToCartesian(v []float64) []float64

	//Drdx is the constraint Jacobian expressed in this space.
	Drdx(cons Constraints) *mat.Dense

	//Hc is the constraint curvature contracted against the Lagrange
	//multipliers L, expressed in this space. Nil means zero.
	Hc(cons Constraints, L []float64) *mat.Dense

	//Basis builds the orthonormal constraint, non-redundant and free
	//bases for the current geometry.
	Basis(cons Constraints, drdx *mat.Dense) (Ucons, Unred, Ufree *mat.Dense)

	//Wrap folds periodic displacement components into their principal
	//range.
	Wrap(dx []float64) []float64

	//Save captures the position state (dummies included) and returns the
	//closure that restores it. Callers defer the closure so the state
	//comes back on every exit path.
	Save() func()
}
