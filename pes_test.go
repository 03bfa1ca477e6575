/*
 * pes_test.go, part of sella.
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
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/AkihideHayashi/sella/constraints"
	"github.com/AkihideHayashi/sella/traj"
	"gonum.org/v1/gonum/mat"
)

//springs is a separable quadratic test surface: E = sum_i k_i (x_i - x0_i)^2 / 2.
type springs struct {
	syms   []string
	x      []float64
	x0, k  []float64
	nevals int
}

func (s *springs) Len() int { return len(s.syms) }

func (s *springs) Symbol(i int) string { return s.syms[i] }

func (s *springs) Positions() []float64 { return append([]float64(nil), s.x...) }

func (s *springs) SetPositions(x []float64) { copy(s.x, x) }

func (s *springs) EnergyForces() (float64, []float64, error) {
	s.nevals++
	f := 0.0
	forces := make([]float64, len(s.x))
	for i := range s.x {
		d := s.x[i] - s.x0[i]
		f += 0.5 * s.k[i] * d * d
		forces[i] = -s.k[i] * d
	}
	return f, forces, nil
}

func newSprings() *springs {
	x0 := []float64{0, 0, 0, 1.5, 0, 0}
	k := []float64{0.5, 1, 2, 3, 4, 5}
	return &springs{
		syms: []string{"H", "H"},
		x:    append([]float64(nil), x0...),
		x0:   x0,
		k:    k,
	}
}

func freeOptions() *Options {
	o := DefaultOptions()
	o.ProjectTranslation(false)
	o.ProjectRotation(false)
	return o
}

func (s *springs) hessian() *mat.Dense {
	H := mat.NewDense(len(s.k), len(s.k), nil)
	for i, ki := range s.k {
		H.Set(i, i, ki)
	}
	return H
}

func TestPESLazyEvaluation(Te *testing.T) {
	sys := newSprings()
	p := NewPES(sys, nil, freeOptions())

	if _, err := p.GetF(); err != nil {
		Te.Error(err)
	}
	if _, err := p.GetG(); err != nil {
		Te.Error(err)
	}
	if _, err := p.GetUfree(); err != nil {
		Te.Error(err)
	}
	if sys.nevals != 1 || p.Neval() != 1 {
		Te.Errorf("expected a single evaluation, got %d (%d counted)", sys.nevals, p.Neval())
	}

	target := p.GetX()
	target[0] += 0.1
	if _, _, _, err := p.SetX(target); err != nil {
		Te.Error(err)
	}
	//A geometry-only query on a moved structure still forces the
	//evaluation, since the multipliers need the new gradient.
	if _, err := p.GetUcons(); err != nil {
		Te.Error(err)
	}
	if sys.nevals != 2 {
		Te.Errorf("expected forced evaluation on changed geometry, got %d evaluations", sys.nevals)
	}
	if _, err := p.GetF(); err != nil {
		Te.Error(err)
	}
	if sys.nevals != 2 {
		Te.Errorf("energy after forced evaluation should be cached, got %d evaluations", sys.nevals)
	}
}

func TestPESSetXRoundTrip(Te *testing.T) {
	sys := newSprings()
	p := NewPES(sys, nil, freeOptions())

	target := []float64{0.1, -0.2, 0.3, 1.7, 0.05, -0.4}
	dxInitial, dxFinal, _, err := p.SetX(target)
	if err != nil {
		Te.Fatal(err)
	}
	//Cartesian moves are applied verbatim: the read-back coordinates and
	//the realized displacement match the request bit for bit.
	got := p.GetX()
	for i := range target {
		if got[i] != target[i] {
			Te.Errorf("coordinate %d read back as %v, want exactly %v", i, got[i], target[i])
		}
		if dxFinal[i] != dxInitial[i] {
			Te.Errorf("realized displacement %d is %v, requested %v", i, dxFinal[i], dxInitial[i])
		}
	}
}

func TestPESKickRatioQuadratic(Te *testing.T) {
	sys := newSprings()
	opts := freeOptions()
	opts.H0(sys.hessian())
	p := NewPES(sys, nil, opts)

	//Start off-minimum so the gradient is nonzero.
	x := p.GetX()
	for i := range x {
		x[i] += 0.1 * float64(i+1)
	}
	if _, _, _, err := p.SetX(x); err != nil {
		Te.Error(err)
	}

	dx := make([]float64, p.Dim())
	for i := range dx {
		dx[i] = 0.05 * float64(i%3+1)
	}
	ratio, ok, err := p.Kick(dx, false, 0.5, false, 0)
	if err != nil {
		Te.Error(err)
	}
	if !ok {
		Te.Error("expected a prediction with an exact Hessian present")
	}
	if math.Abs(ratio-1) > 1e-8 {
		Te.Errorf("quadratic surface with exact Hessian: ratio = %v, want 1", ratio)
	}
	fmt.Println("kick ratio", ratio)

	//The defined limit for a vanishing step.
	ratio, ok, err = p.Kick(make([]float64, p.Dim()), false, 0.5, false, 0)
	if err != nil {
		Te.Error(err)
	}
	if !ok || ratio != 1 {
		Te.Errorf("zero step: ratio = %v ok = %v, want 1 true", ratio, ok)
	}
}

func TestPESBasis(Te *testing.T) {
	sys := newSprings()
	p := NewPES(sys, nil, nil) //translation and rotation projected

	Ucons, err := p.GetUcons()
	if err != nil {
		Te.Error(err)
	}
	Ufree, err := p.GetUfree()
	if err != nil {
		Te.Error(err)
	}
	if Ucons == nil || Ufree == nil {
		Te.Fatal("nil basis")
	}
	_, nc := Ucons.Dims()
	_, nf := Ufree.Dims()
	//Two atoms: 3 translations, 2 independent rotations (the axis through
	//both atoms drops out during orthogonalization).
	if nc != 5 {
		Te.Errorf("expected 5 constraint directions, got %d", nc)
	}
	if nc+nf != p.Dim() {
		Te.Errorf("free and constrained dimensions do not add up: %d + %d != %d", nc, nf, p.Dim())
	}

	var FtF mat.Dense
	FtF.Mul(Ufree.T(), Ufree)
	for i := 0; i < nf; i++ {
		for j := 0; j < nf; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(FtF.At(i, j)-want) > 1e-10 {
				Te.Errorf("Ufree not orthonormal at %d,%d", i, j)
			}
		}
	}
	var CtF mat.Dense
	CtF.Mul(Ucons.T(), Ufree)
	for i := 0; i < nc; i++ {
		for j := 0; j < nf; j++ {
			if math.Abs(CtF.At(i, j)) > 1e-10 {
				Te.Errorf("Ufree not orthogonal to Ucons at %d,%d", i, j)
			}
		}
	}
}

func TestPESConverged(Te *testing.T) {
	sys := newSprings()
	p := NewPES(sys, nil, freeOptions())

	conv, fmax1, cmax1, err := p.Converged(1e-6, 1e-6)
	if err != nil {
		Te.Error(err)
	}
	if !conv {
		Te.Errorf("at the minimum: conv = false, fmax %v cmax %v", fmax1, cmax1)
	}

	x := p.GetX()
	x[1] += 0.3
	if _, _, _, err := p.SetX(x); err != nil {
		Te.Error(err)
	}
	conv, fmax1, _, err = p.Converged(1e-6, 1e-6)
	if err != nil {
		Te.Error(err)
	}
	if conv || fmax1 < 1e-3 {
		Te.Errorf("displaced geometry reported converged (fmax %v)", fmax1)
	}
}

func TestPESSconsCorrectsResidual(Te *testing.T) {
	sys := newSprings()
	cons := constraints.New(sys)
	cons.FixAtom(0, 0)
	p := NewPES(sys, cons, freeOptions())

	x := p.GetX()
	x[0] += 0.2
	if _, _, _, err := p.SetX(x); err != nil {
		Te.Error(err)
	}
	scons, err := p.Scons()
	if err != nil {
		Te.Error(err)
	}
	for i := range x {
		x[i] += scons[i]
	}
	if _, _, _, err := p.SetX(x); err != nil {
		Te.Error(err)
	}
	for _, r := range p.GetRes() {
		if math.Abs(r) > 1e-10 {
			Te.Errorf("linear constraint not corrected, residual %v", r)
		}
	}
}

func TestPESProjectedForces(Te *testing.T) {
	sys := newSprings()
	cons := constraints.New(sys)
	cons.FixAtom(1, 0)
	p := NewPES(sys, cons, freeOptions())

	x := p.GetX()
	for i := range x {
		x[i] += 0.1
	}
	if _, _, _, err := p.SetX(x); err != nil {
		Te.Error(err)
	}
	pf, err := p.ProjectedForces()
	if err != nil {
		Te.Error(err)
	}
	//The pinned degree of freedom carries no projected force.
	if math.Abs(pf[3]) > 1e-10 {
		Te.Errorf("projected force along pinned coordinate: %v", pf[3])
	}
	if math.Abs(pf[4]) < 1e-3 {
		Te.Error("free coordinate lost its force")
	}
}

func TestPESDiag(Te *testing.T) {
	sys := newSprings()
	p := NewPES(sys, nil, freeOptions())

	//Move off the minimum so the gradient seed is useful.
	x := p.GetX()
	for i := range x {
		x[i] += 0.05 * float64(i+1)
	}
	if _, _, _, err := p.SetX(x); err != nil {
		Te.Error(err)
	}

	before := p.Neval()
	if err := p.Diag(1e-10, false, 0); err != nil {
		Te.Error(err)
	}
	if p.Neval() <= before {
		Te.Error("Diag performed no evaluations")
	}
	if !p.GetH().HasMatrix() || !p.GetH().Initialized {
		Te.Fatal("Diag left no curvature model")
	}

	B := p.GetH().Matrix()
	//Symmetry of the refreshed model.
	for i := 0; i < p.Dim(); i++ {
		for j := 0; j < p.Dim(); j++ {
			if math.Abs(B.At(i, j)-B.At(j, i)) > 1e-10 {
				Te.Fatal("updated Hessian not symmetric")
			}
		}
	}
	//The lowest curvature of the model matches the softest spring.
	sym := mat.NewSymDense(p.Dim(), nil)
	for i := 0; i < p.Dim(); i++ {
		for j := i; j < p.Dim(); j++ {
			sym.SetSym(i, j, B.At(i, j))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		Te.Fatal("eigendecomposition failed")
	}
	vals := eig.Values(nil)
	lo := vals[0]
	for _, v := range vals {
		if v < lo {
			lo = v
		}
	}
	fmt.Println("lowest model curvature", lo)
	if math.Abs(lo-0.5) > 1e-3 {
		Te.Errorf("lowest curvature %v, want 0.5", lo)
	}
}

func TestPESTrajectoryAndHistory(Te *testing.T) {
	sys := newSprings()
	w, err := traj.NewWriter(filepath.Join(Te.TempDir(), "run.xyz"), sys.syms)
	if err != nil {
		Te.Fatal(err)
	}
	defer w.Close()
	opts := freeOptions()
	opts.Trajectory(w)
	p := NewPES(sys, nil, opts)

	if _, err := p.GetF(); err != nil {
		Te.Error(err)
	}
	x := p.GetX()
	x[2] += 0.2
	if _, _, _, err := p.SetX(x); err != nil {
		Te.Error(err)
	}
	if _, err := p.GetF(); err != nil {
		Te.Error(err)
	}

	if w.Frames() != p.Neval() {
		Te.Errorf("%d frames for %d evaluations", w.Frames(), p.Neval())
	}
	energies, fmaxima := p.History()
	if len(energies) != p.Neval() || len(fmaxima) != p.Neval() {
		Te.Errorf("history length %d/%d for %d evaluations", len(energies), len(fmaxima), p.Neval())
	}
}

func TestOptionsDefaults(Te *testing.T) {
	o := DefaultOptions()
	if o.Eta() != 1e-4 {
		Te.Error("wrong default eta")
	}
	if !o.ProjectTranslation() || !o.ProjectRotation() {
		Te.Error("translation and rotation should be projected by default")
	}
	if o.Solver() == nil {
		Te.Error("nil default solver")
	}
	if o.Trajectory() != nil || o.H0() != nil || o.V0() != nil {
		Te.Error("unexpected non-nil defaults")
	}
	//Setter form returns the previous value.
	if prev := o.Eta(2e-4); prev != 1e-4 {
		Te.Error("setter did not return previous value")
	}
	if o.Eta() != 2e-4 {
		Te.Error("setter did not set")
	}
}

func TestSnapshotGradient(Te *testing.T) {
	s := &Snapshot{}
	if s.Gradient() != nil {
		Te.Error("unevaluated snapshot returned a gradient")
	}
	s.Evaluated = true
	s.G = []float64{1, 2}
	g := s.Gradient()
	g[0] = -5
	if s.G[0] != 1 {
		Te.Error("Gradient did not copy")
	}
}

func TestErrorDecoration(Te *testing.T) {
	err := &CError{msg: "boom"}
	e2 := errDecorate(err, "GetF")
	if e2.Error() != "boom (GetF)" {
		Te.Errorf("unexpected decorated message %q", e2.Error())
	}
	e3 := errDecorate(fmt.Errorf("plain"), "Kick")
	if _, ok := e3.(Error); !ok {
		Te.Error("plain error not wrapped")
	}
}
