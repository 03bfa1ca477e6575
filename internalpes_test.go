/*
 * internalpes_test.go, part of sella.
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

package sella_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/AkihideHayashi/sella"
	"github.com/AkihideHayashi/sella/intcoords"
)

//triangle is three hydrogens bound by pairwise harmonic bond springs,
//E = sum over pairs of k (r - r0)^2 / 2.
type triangle struct {
	x      []float64
	r0, k  float64
	nevals int
}

var trianglePairs = [3][2]int{{0, 1}, {0, 2}, {1, 2}}

func (m *triangle) Len() int { return 3 }

func (m *triangle) Symbol(i int) string { return "H" }

func (m *triangle) Positions() []float64 { return append([]float64(nil), m.x...) }

func (m *triangle) SetPositions(x []float64) { copy(m.x, x) }

func (m *triangle) EnergyForces() (float64, []float64, error) {
	m.nevals++
	e := 0.0
	forces := make([]float64, 9)
	for _, p := range trianglePairs {
		i, j := p[0], p[1]
		var d [3]float64
		r := 0.0
		for c := 0; c < 3; c++ {
			d[c] = m.x[3*i+c] - m.x[3*j+c]
			r += d[c] * d[c]
		}
		r = math.Sqrt(r)
		e += 0.5 * m.k * (r - m.r0) * (r - m.r0)
		for c := 0; c < 3; c++ {
			f := -m.k * (r - m.r0) * d[c] / r
			forces[3*i+c] += f
			forces[3*j+c] -= f
		}
	}
	return e, forces, nil
}

//equilateral triangle in the xy plane with the given side length
func newTriangle(side float64) *triangle {
	return &triangle{
		x: []float64{
			0, 0, 0,
			side, 0, 0,
			side / 2, side * math.Sqrt(3) / 2, 0,
		},
		r0: 0.74,
		k:  5,
	}
}

func newTrianglePES(Te *testing.T, side float64) (*triangle, *sella.InternalPES) {
	sys := newTriangle(side)
	ints, err := intcoords.New(sys, nil)
	if err != nil {
		Te.Fatal(err)
	}
	return sys, sella.NewInternalPES(sys, ints, nil)
}

func TestInternalPESCoordinates(Te *testing.T) {
	_, p := newTrianglePES(Te, 0.7)
	if p.Dim() != 6 {
		Te.Fatalf("expected 3 bonds and 3 angles, got dimension %d", p.Dim())
	}
	q := p.GetX()
	fmt.Println("triangle internals", q)
	for a := 0; a < 3; a++ {
		if math.Abs(q[a]-0.7) > 1e-10 {
			Te.Errorf("bond %d: %v, want 0.7", a, q[a])
		}
		if math.Abs(q[3+a]-math.Pi/3) > 1e-10 {
			Te.Errorf("angle %d: %v, want pi/3", a, q[3+a])
		}
	}
}

func TestInternalPESSetX(Te *testing.T) {
	_, p := newTrianglePES(Te, 0.7)
	target := []float64{0.72, 0.72, 0.72, math.Pi / 3, math.Pi / 3, math.Pi / 3}
	dxInitial, dxFinal, _, err := p.SetX(target)
	if err != nil {
		Te.Fatal(err)
	}
	if len(dxInitial) != 6 || len(dxFinal) != 6 {
		Te.Fatalf("displacement lengths %d %d", len(dxInitial), len(dxFinal))
	}
	q := p.GetX()
	for a := range target {
		if math.Abs(q[a]-target[a]) > 1e-3 {
			Te.Errorf("coordinate %d landed at %v, want %v", a, q[a], target[a])
		}
	}
	for a := range dxFinal {
		if math.Abs(dxFinal[a]-dxInitial[a]) > 5e-3 {
			Te.Errorf("realized displacement %d drifted: %v vs %v", a, dxFinal[a], dxInitial[a])
		}
	}
	if p.BadInternals() != nil {
		Te.Error("healthy move flagged bad internals")
	}
}

func TestInternalPESRestingPoint(Te *testing.T) {
	_, p := newTrianglePES(Te, 0.74)
	f, err := p.GetF()
	if err != nil {
		Te.Fatal(err)
	}
	if math.Abs(f) > 1e-12 {
		Te.Errorf("energy at the resting geometry: %v", f)
	}
	g, err := p.GetG()
	if err != nil {
		Te.Fatal(err)
	}
	for a, ga := range g {
		if math.Abs(ga) > 1e-8 {
			Te.Errorf("gradient component %d: %v", a, ga)
		}
	}
	conv, fmax1, cmax1, err := p.Converged(1e-6, 1e-6)
	if err != nil {
		Te.Fatal(err)
	}
	if !conv {
		Te.Errorf("resting geometry not converged: fmax %v cmax %v", fmax1, cmax1)
	}
}

func TestInternalPESKick(Te *testing.T) {
	sys, p := newTrianglePES(Te, 0.7)
	dx := []float64{0.02, 0.02, 0.02, 0, 0, 0}
	ratio, ok, err := p.Kick(dx, false, 0.5, false, 0)
	if err != nil {
		Te.Fatal(err)
	}
	if !ok {
		Te.Error("the guess Hessian should allow a prediction")
	}
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		Te.Errorf("ratio %v", ratio)
	}
	fmt.Println("internal kick ratio", ratio, "after", sys.nevals, "evaluations")
	if p.Neval() < 2 {
		Te.Errorf("a kick needs evaluations on both sides, got %d", p.Neval())
	}
	if p.BadInternals() != nil {
		Te.Error("healthy kick flagged bad internals")
	}
}

func TestInternalPESUpdateInternals(Te *testing.T) {
	_, p := newTrianglePES(Te, 0.7)
	if _, err := p.GetF(); err != nil {
		Te.Fatal(err)
	}
	before := p.Neval()
	if err := p.UpdateInternals(); err != nil {
		Te.Fatal(err)
	}
	if p.Neval() != before {
		Te.Errorf("regeneration at an evaluated point re-evaluated: %d -> %d", before, p.Neval())
	}
	if p.Dim() != 6 {
		Te.Errorf("regenerated dimension %d", p.Dim())
	}
	q := p.GetX()
	for a := 0; a < 3; a++ {
		if math.Abs(q[a]-0.7) > 1e-10 {
			Te.Errorf("bond %d after regeneration: %v", a, q[a])
		}
	}
	if !p.GetH().HasMatrix() || !p.GetH().Initialized {
		Te.Error("regeneration lost the curvature model")
	}
	//The cache survives: the same geometry needs no fresh evaluation.
	if _, err := p.GetF(); err != nil {
		Te.Fatal(err)
	}
	if p.Neval() != before {
		Te.Errorf("cached energy lost across regeneration: %d -> %d", before, p.Neval())
	}
}

func TestInternalPESWrap(Te *testing.T) {
	_, p := newTrianglePES(Te, 0.7)
	//No dihedrals in a triangle: everything passes through.
	dx := []float64{2 * math.Pi, 2 * math.Pi, 2 * math.Pi, 1, 1, 1}
	out := p.WrapDx(dx)
	for a := range dx {
		if out[a] != dx[a] {
			Te.Errorf("component %d wrapped from %v to %v", a, dx[a], out[a])
		}
	}
}
