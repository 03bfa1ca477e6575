/*
 * intcoords.go, part of sella.
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

//Package intcoords detects and evaluates redundant internal coordinates
//(bonds, angles, dihedrals) over an atomic structure, exposing them as
//the curvilinear coordinate set an internal-coordinate surface works in.
package intcoords

import (
	"math"

	"github.com/AkihideHayashi/sella"
	"github.com/AkihideHayashi/sella/constraints"
	"github.com/AkihideHayashi/sella/linalg"
	"gonum.org/v1/gonum/mat"
)

//Kind of an internal coordinate.
type Kind int

const (
	Bond Kind = iota
	Angle
	Dihedral
)

//Coordinate is one internal coordinate over atom indices. Unused trailing
//indices are -1.
type Coordinate struct {
	Kind       Kind
	I, J, K, L int
}

//Diagonal curvature guesses per coordinate kind, in the spirit of the
//usual empirical model Hessians.
const (
	guessBond     = 0.45
	guessAngle    = 0.15
	guessDihedral = 0.005
)

//Angles closer to linearity than this are skipped at detection time and
//flagged as bad when an existing angle drifts there.
const linearLimit = 175.0 * math.Pi / 180.0

//A bond longer than breakScale times its detection threshold counts as
//broken.
const breakScale = 2.0

//Coords is a concrete redundant internal coordinate set. It owns no
//positions: values always come from the structure (and the dummy block)
//at call time. Regenerate returns an independent set; the forbidden
//coordinate bookkeeping is copied, never shared.
type Coords struct {
	sys    sella.System
	cons   sella.Constraints
	coords []Coordinate

	//Detection threshold per bond, for the broken-bond check.
	bondLimit map[[2]int]float64

	forbiddenBonds  map[[2]int]bool
	forbiddenAngles map[[3]int]bool

	dummies []float64
}

//New detects a coordinate set covering sys: one bond per atom pair closer
//than the covalent-radii threshold (isolated atoms get connected to their
//nearest neighbor), one angle per bonded triple that is not nearly
//linear, one dihedral per bonded quadruple whose inner angles are not
//nearly linear. A nil cons gets a fresh constraint system.
func New(sys sella.System, cons sella.Constraints) (*Coords, error) {
	if cons == nil {
		cons = constraints.New(sys)
	}
	c := &Coords{
		sys:             sys,
		cons:            cons,
		bondLimit:       map[[2]int]float64{},
		forbiddenBonds:  map[[2]int]bool{},
		forbiddenAngles: map[[3]int]bool{},
	}
	if err := c.detect(); err != nil {
		return nil, err
	}
	return c, nil
}

//Coordinates returns the detected coordinates. The slice is owned by the
//set.
func (c *Coords) Coordinates() []Coordinate { return c.coords }

func (c *Coords) Constraints() sella.Constraints { return c.cons }

func (c *Coords) NAtoms() int   { return c.sys.Len() }
func (c *Coords) NDummies() int { return len(c.dummies) / 3 }

func (c *Coords) DummyPositions() []float64 {
	return append([]float64(nil), c.dummies...)
}

func (c *Coords) SetDummyPositions(x []float64) {
	c.dummies = append([]float64(nil), x...)
}

func (c *Coords) fullPositions() []float64 {
	return append(c.sys.Positions(), c.dummies...)
}

func (c *Coords) ndof() int { return 3 * (c.NAtoms() + c.NDummies()) }

//Calc returns the value of every coordinate at the current positions.
func (c *Coords) Calc() []float64 {
	x := c.fullPositions()
	out := make([]float64, len(c.coords))
	for a, co := range c.coords {
		out[a] = value(co, x)
	}
	return out
}

//Jacobian returns the Wilson B matrix, with analytic first derivatives.
func (c *Coords) Jacobian() *mat.Dense {
	return c.jacobianAt(c.fullPositions())
}

func (c *Coords) jacobianAt(x []float64) *mat.Dense {
	nq := len(c.coords)
	dof := c.ndof()
	B := mat.NewDense(nq, dof, nil)
	row := make([]float64, dof)
	for a, co := range c.coords {
		for i := range row {
			row[i] = 0
		}
		gradient(co, x, row)
		B.SetRow(a, row)
	}
	return B
}

//Hessian returns the second derivative tensor of the coordinate values,
//taken as a central finite difference of the analytic Jacobian.
func (c *Coords) Hessian() *linalg.Tensor3 {
	nq := len(c.coords)
	dof := c.ndof()
	D := linalg.NewTensor3(nq, dof, dof)
	x := c.fullPositions()
	const delta = 1e-5
	for j := 0; j < dof; j++ {
		orig := x[j]
		x[j] = orig + delta
		Bp := c.jacobianAt(x)
		x[j] = orig - delta
		Bm := c.jacobianAt(x)
		x[j] = orig
		for a := 0; a < nq; a++ {
			for i := 0; i < dof; i++ {
				D.Set(a, i, j, (Bp.At(a, i)-Bm.At(a, i))/(2*delta))
			}
		}
	}
	return D
}

//GuessHessian returns the diagonal empirical curvature model.
func (c *Coords) GuessHessian() *mat.Dense {
	nq := len(c.coords)
	H := mat.NewDense(nq, nq, nil)
	for a, co := range c.coords {
		switch co.Kind {
		case Bond:
			H.Set(a, a, guessBond)
		case Angle:
			H.Set(a, a, guessAngle)
		case Dihedral:
			H.Set(a, a, guessDihedral)
		}
	}
	return H
}

//CheckBadInternals reports broken bonds and near-linear angles, nil when
//everything is fine.
func (c *Coords) CheckBadInternals() *sella.BadInternals {
	x := c.fullPositions()
	bad := &sella.BadInternals{}
	for _, co := range c.coords {
		switch co.Kind {
		case Bond:
			limit, ok := c.bondLimit[bondKey(co.I, co.J)]
			if ok && value(co, x) > breakScale*limit {
				bad.Bonds = append(bad.Bonds, [2]int{co.I, co.J})
			}
		case Angle:
			if value(co, x) > linearLimit {
				bad.Angles = append(bad.Angles, [3]int{co.I, co.J, co.K})
			}
		}
	}
	if len(bad.Bonds) == 0 && len(bad.Angles) == 0 {
		return nil
	}
	return bad
}

//Forbid excludes the named coordinates from future regeneration.
func (c *Coords) Forbid(bad *sella.BadInternals) {
	if bad == nil {
		return
	}
	for _, b := range bad.Bonds {
		c.forbiddenBonds[bondKey(b[0], b[1])] = true
	}
	for _, a := range bad.Angles {
		c.forbiddenAngles[angleKey(a[0], a[1], a[2])] = true
	}
}

//Regenerate detects a fresh coordinate set at the current geometry,
//carrying over (copies of) the forbidden coordinate sets.
func (c *Coords) Regenerate() (sella.Internals, error) {
	out := &Coords{
		sys:             c.sys,
		cons:            c.cons,
		bondLimit:       map[[2]int]float64{},
		forbiddenBonds:  map[[2]int]bool{},
		forbiddenAngles: map[[3]int]bool{},
		dummies:         append([]float64(nil), c.dummies...),
	}
	for k := range c.forbiddenBonds {
		out.forbiddenBonds[k] = true
	}
	for k := range c.forbiddenAngles {
		out.forbiddenAngles[k] = true
	}
	if err := out.detect(); err != nil {
		return nil, err
	}
	return out, nil
}

//Wrap folds dihedral displacement components into (-pi, pi]. Bond and
//angle components pass through.
func (c *Coords) Wrap(dx []float64) []float64 {
	out := append([]float64(nil), dx...)
	for a, co := range c.coords {
		if co.Kind != Dihedral || a >= len(out) {
			continue
		}
		out[a] -= 2 * math.Pi * math.Round(out[a]/(2*math.Pi))
	}
	return out
}

func bondKey(i, j int) [2]int {
	if i > j {
		i, j = j, i
	}
	return [2]int{i, j}
}

func angleKey(i, j, k int) [3]int {
	if i > k {
		i, k = k, i
	}
	return [3]int{i, j, k}
}
