/*
 * pes.go, part of sella.
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
	"log"
	"math"

	"github.com/AkihideHayashi/sella/constraints"
	"github.com/AkihideHayashi/sella/linalg"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//PES wraps a structure and its energy/force evaluator into a constrained
//optimization surface driven towards a first order saddle point. All state
//(the evaluation cache, the approximate Hessian, the basis matrices) is
//exclusively owned by the instance; nothing here is safe for concurrent
//use.
type PES struct {
	sys   System
	cons  Constraints
	opts  *Options
	space CoordinateSpace

	//Internal-coordinate set, nil in Cartesian mode. The engine itself
	//only touches it for dummy-atom bookkeeping in trajectory frames.
	ints Internals

	dim, ncart int
	neval      int
	curr, last *Snapshot
	hess       *linalg.ApproximateHessian
	firstDiag  bool

	histE, histF []float64
}

//NewPES returns a Cartesian-coordinate surface over sys. A nil cons gets a
//fresh constraint system; translation and rotation fixing follow opts
//(idempotent if cons already holds them). A nil opts means DefaultOptions.
func NewPES(sys System, cons Constraints, opts *Options) *PES {
	if opts == nil {
		opts = DefaultOptions()
	}
	if cons == nil {
		cons = constraints.New(sys)
	}
	if opts.ProjectTranslation() {
		cons.FixTranslation()
	}
	if opts.ProjectRotation() {
		cons.FixRotation()
	}
	dim := 3 * sys.Len()
	p := &PES{
		sys:       sys,
		cons:      cons,
		opts:      opts,
		space:     newCartesianSpace(sys),
		dim:       dim,
		ncart:     dim,
		curr:      &Snapshot{},
		last:      &Snapshot{},
		firstDiag: true,
	}
	p.hess = linalg.NewApproximateHessian(dim, dim, opts.h0, opts.h0init)
	return p
}

//Neval returns the number of energy/force evaluations so far, probe
//evaluations included.
func (p *PES) Neval() int { return p.neval }

//Dim returns the dimension of the coordinate vector.
func (p *PES) Dim() int { return p.dim }

//GetH returns the approximate Hessian model.
func (p *PES) GetH() *linalg.ApproximateHessian { return p.hess }

//SetH replaces the approximate Hessian wholesale.
func (p *PES) SetH(B *mat.Dense, initialized bool) {
	p.hess = linalg.NewApproximateHessian(p.dim, p.ncart, B, initialized)
}

//GetX returns the current coordinate vector.
func (p *PES) GetX() []float64 { return p.space.Get() }

//SetX moves the structure to target and returns the initial displacement,
//the realized displacement and the gradient carried to the new point. In
//Cartesian mode the realized displacement always equals the requested one.
func (p *PES) SetX(target []float64) (dxInitial, dxFinal, gFinal []float64, err error) {
	var g []float64
	if p.curr.Evaluated {
		g = p.curr.G
	}
	dxInitial, dxFinal, gFinal, err = p.space.Set(target, g)
	if err != nil {
		err = errDecorate(err, "SetX")
	}
	return dxInitial, dxFinal, gFinal, err
}

//GetF returns the energy at the current point, evaluating lazily.
func (p *PES) GetF() (float64, error) {
	if _, err := p.update(true); err != nil {
		return 0, errDecorate(err, "GetF")
	}
	return p.curr.F, nil
}

//GetG returns a copy of the gradient at the current point, evaluating
//lazily. Callers may mutate the returned slice freely.
func (p *PES) GetG() ([]float64, error) {
	if _, err := p.update(true); err != nil {
		return nil, errDecorate(err, "GetG")
	}
	return p.curr.Gradient(), nil
}

//GetRes returns the constraint residual vector.
func (p *PES) GetRes() []float64 { return p.cons.Residual() }

//GetDrdx returns the constraint Jacobian in the active coordinate
//representation.
func (p *PES) GetDrdx() *mat.Dense { return p.space.Drdx(p.cons) }

//GetUcons returns the orthonormal basis of constrained directions.
func (p *PES) GetUcons() (*mat.Dense, error) {
	if _, err := p.update(false); err != nil {
		return nil, errDecorate(err, "GetUcons")
	}
	return p.curr.Ucons, nil
}

//GetUnred returns the orthonormal basis of the non-redundant subspace.
func (p *PES) GetUnred() (*mat.Dense, error) {
	if _, err := p.update(false); err != nil {
		return nil, errDecorate(err, "GetUnred")
	}
	return p.curr.Unred, nil
}

//GetUfree returns the orthonormal basis of directions the optimizer may
//move along: non-redundant and orthogonal to every constraint direction.
func (p *PES) GetUfree() (*mat.Dense, error) {
	if _, err := p.update(false); err != nil {
		return nil, errDecorate(err, "GetUfree")
	}
	return p.curr.Ufree, nil
}

//GetHc returns the constraint curvature contracted against the Lagrange
//multipliers, or nil when it vanishes.
func (p *PES) GetHc() (*mat.Dense, error) {
	if !p.curr.Evaluated {
		if _, err := p.update(true); err != nil {
			return nil, errDecorate(err, "GetHc")
		}
	}
	return p.space.Hc(p.cons, p.curr.L), nil
}

//GetHL returns the Lagrangian Hessian H - Hc as a plain matrix, or nil in
//the guess-free state.
func (p *PES) GetHL() (*mat.Dense, error) {
	Hc, err := p.GetHc()
	if err != nil {
		return nil, err
	}
	return p.hess.Sub(Hc), nil
}

//Scons returns the displacement that linearly corrects the constraint
//residuals within the constrained subspace.
func (p *PES) Scons() ([]float64, error) {
	Ucons, err := p.GetUcons()
	if err != nil {
		return nil, err
	}
	out := make([]float64, p.dim)
	if Ucons == nil {
		return out, nil
	}
	drdx := p.GetDrdx()
	var A mat.Dense
	A.Mul(drdx, Ucons)
	y := linalg.Lstsq(&A, p.GetRes())
	ov := mat.NewVecDense(p.dim, out)
	ov.MulVec(Ucons, mat.NewVecDense(len(y), y))
	for i := range out {
		out[i] = -out[i]
	}
	return out, nil
}

//eval performs one real energy/force evaluation at the current geometry
//and returns the energy, the gradient in the active coordinate space and
//the raw Cartesian gradient.
func (p *PES) eval() (float64, []float64, []float64, error) {
	p.neval++
	f, forces, err := p.sys.EnergyForces()
	if err != nil {
		return 0, nil, nil, errDecorate(err, "eval")
	}
	gcart := make([]float64, len(forces))
	fmax := 0.0
	for i, fi := range forces {
		gcart[i] = -fi
		if a := math.Abs(fi); a > fmax {
			fmax = a
		}
	}
	g := p.space.MapGradient(gcart)
	p.histE = append(p.histE, f)
	p.histF = append(p.histF, fmax)
	if err := p.writeTraj(f, forces); err != nil {
		return 0, nil, nil, errDecorate(err, "eval")
	}
	return f, g, gcart, nil
}

//writeTraj sends one frame to the trajectory sink, padding dummy atoms
//with zero force.
func (p *PES) writeTraj(f float64, forces []float64) error {
	if p.opts.Trajectory() == nil {
		return nil
	}
	coords := p.sys.Positions()
	if p.ints != nil && p.ints.NDummies() > 0 {
		coords = append(coords, p.ints.DummyPositions()...)
	}
	padded := make([]float64, len(coords))
	copy(padded, forces)
	return p.opts.Trajectory().WNext(coords, f, padded)
}

//calcEG evaluates energy and gradient at x without committing x as the
//current point: the position state is captured first and restored on every
//exit path. The evaluation still counts and still reaches the trajectory
//sink, like any other.
func (p *PES) calcEG(x []float64) (float64, []float64, error) {
	restore := p.space.Save()
	defer restore()
	var g []float64
	if p.curr.Evaluated {
		g = p.curr.G
	}
	if _, _, _, err := p.space.Set(x, g); err != nil {
		return 0, nil, errDecorate(err, "calcEG")
	}
	f, gmapped, _, err := p.eval()
	if err != nil {
		return 0, nil, errDecorate(err, "calcEG")
	}
	return f, gmapped, nil
}

//update refreshes the evaluation cache. It re-evaluates only if the
//position changed since the last call, or if energy and forces were never
//computed for the current position; the basis matrices are rebuilt on
//every position change. Reports whether anything was recomputed.
func (p *PES) update(feval bool) (bool, error) {
	x := p.space.Get()
	newPoint := true
	if p.curr.X != nil && len(x) == len(p.curr.X) && floats.Equal(x, p.curr.X) {
		if feval && !p.curr.Evaluated {
			newPoint = false
		} else {
			return false, nil
		}
	}
	drdx := p.space.Drdx(p.cons)
	Ucons, Unred, Ufree := p.space.Basis(p.cons, drdx)

	if newPoint && !feval {
		//A geometry-only refresh on a moved structure would leave a
		//stale energy in the cache; evaluate anyway.
		log.Println("sella: forcing energy evaluation on changed geometry")
		feval = true
	}

	var f float64
	var g, gcart, L []float64
	if feval {
		var err error
		f, g, gcart, err = p.eval()
		if err != nil {
			return false, err
		}
		if drdx != nil {
			L = linalg.Lstsq(denseT(drdx), g)
		}
	}

	if newPoint {
		p.last = p.curr
		p.curr = &Snapshot{
			X: x, Evaluated: feval, F: f, G: g, Gcart: gcart, L: L,
			Drdx: drdx, Ucons: Ucons, Unred: Unred, Ufree: Ufree,
		}
	} else {
		p.curr.Evaluated = feval
		p.curr.F = f
		p.curr.G = g
		p.curr.Gcart = gcart
		p.curr.L = L
	}
	return true, nil
}

//updateH feeds a realized displacement and the corresponding gradient
//change into the quasi-Newton update. No-op when the previous point lacks
//energy/force data.
func (p *PES) updateH(dx, dg []float64) {
	if p.last.X == nil || !p.last.Evaluated {
		return
	}
	p.hess.UpdateVec(dx, dg)
}

//shiftedOperator applies the numerical Hessian minus a constant matrix,
//which is how the constraint curvature is subtracted inside Diag.
type shiftedOperator struct {
	nh *linalg.NumericalHessian
	w  *mat.Dense
}

func (op *shiftedOperator) Dim() int { return op.nh.Dim() }

func (op *shiftedOperator) MatVec(v []float64) ([]float64, error) {
	h, err := op.nh.MatVec(v)
	if err != nil {
		return nil, err
	}
	if op.w != nil {
		wv := mat.NewVecDense(len(v), nil)
		wv.MulVec(op.w, mat.NewVecDense(len(v), v))
		for i := range h {
			h[i] -= wv.AtVec(i)
		}
	}
	return h, nil
}

//Diag performs the eigenvector-following step: it runs the iterative
//eigensolver against the finite-difference Hessian of the energy minus
//the constraint curvature, projected on the free subspace, then harvests
//every iterate the solver generated to refresh the whole approximate
//Hessian, not just a single secant pair.
func (p *PES) Diag(gamma float64, threepoint bool, maxiter int) error {
	Ufree, err := p.GetUfree()
	if err != nil {
		return errDecorate(err, "Diag")
	}
	if Ufree == nil {
		//Everything is constrained; there is nothing to follow.
		return nil
	}
	nfree := linalg.Cols(Ufree)

	HL, err := p.GetHL()
	if err != nil {
		return errDecorate(err, "Diag")
	}
	var P *mat.Dense
	if HL != nil {
		var t, proj mat.Dense
		t.Mul(Ufree.T(), HL)
		proj.Mul(&t, Ufree)
		P = &proj
	}

	//Seed policy: the first call (or a guess-free model) starts from an
	//externally supplied vector or the free-subspace gradient; afterwards
	//the solver picks its own start from the projected operator.
	var v0 []float64
	if HL == nil || p.firstDiag {
		v0 = p.opts.V0()
		if v0 == nil {
			g, err := p.GetG()
			if err != nil {
				return errDecorate(err, "Diag")
			}
			v0 = make([]float64, nfree)
			v0v := mat.NewVecDense(nfree, v0)
			v0v.MulVec(Ufree.T(), mat.NewVecDense(len(g), g))
		}
	}

	g0, err := p.GetG()
	if err != nil {
		return errDecorate(err, "Diag")
	}
	nh := &linalg.NumericalHessian{
		F:          p.calcEG,
		X0:         p.GetX(),
		G0:         g0,
		Eta:        p.opts.Eta(),
		ThreePoint: threepoint,
		Proj:       Ufree,
	}
	Hc, err := p.GetHc()
	if err != nil {
		return errDecorate(err, "Diag")
	}
	var W *mat.Dense
	if Hc != nil {
		var t, w mat.Dense
		t.Mul(Ufree.T(), Hc)
		w.Mul(&t, Ufree)
		W = &w
	}

	converged, err := p.opts.Solver()(&shiftedOperator{nh: nh, w: W}, gamma, P, v0, maxiter)
	if err != nil {
		return errDecorate(err, "Diag")
	}
	if !converged {
		log.Println("sella: eigensolver did not converge, refreshing Hessian from partial iterates")
	}

	Vs, AVs := nh.Iterates()
	if Vs == nil {
		return nil
	}

	//Refine Ritz vectors from everything the solver touched.
	Ysym := linalg.SymmetrizeY(Vs, AVs)
	var Atilde mat.Dense
	Atilde.Mul(Vs.T(), Ysym)
	if Hc != nil {
		var t, c mat.Dense
		t.Mul(Vs.T(), Hc)
		c.Mul(&t, Vs)
		Atilde.Sub(&Atilde, &c)
	}
	_, k := Vs.Dims()
	sym := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sym.SetSym(i, j, 0.5*(Atilde.At(i, j)+Atilde.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return &CError{msg: "Diag: Ritz refinement eigendecomposition failed"}
	}
	var X mat.Dense
	eig.VectorsTo(&X)

	var Vr, AVr mat.Dense
	Vr.Mul(Vs, &X)
	AVr.Mul(AVs, &X)
	p.hess.Update(&Vr, &AVr)
	p.firstDiag = false
	return nil
}

//dfPred returns the quadratically predicted energy change for a step dx
//from a point with gradient g and Hessian B, projected on the
//non-redundant subspace. Reports false when no Hessian is available.
func (p *PES) dfPred(dx, g []float64, B *mat.Dense) (float64, bool, error) {
	if B == nil {
		return 0, false, nil
	}
	Unred, err := p.GetUnred()
	if err != nil {
		return 0, false, err
	}
	_, k := Unred.Dims()
	dxr := make([]float64, k)
	gr := make([]float64, k)
	mat.NewVecDense(k, dxr).MulVec(Unred.T(), mat.NewVecDense(len(dx), dx))
	mat.NewVecDense(k, gr).MulVec(Unred.T(), mat.NewVecDense(len(g), g))
	var t, Hr mat.Dense
	t.Mul(Unred.T(), B)
	Hr.Mul(&t, Unred)
	hdx := make([]float64, k)
	mat.NewVecDense(k, hdx).MulVec(&Hr, mat.NewVecDense(k, dxr))
	pred := floats.Dot(gr, dxr) + 0.5*floats.Dot(dxr, hdx)
	return pred, true, nil
}

//Kick takes one optimizer step: evaluate at the old point, move by dx,
//evaluate at the new point, feed the secant pair to the Hessian update and
//optionally re-diagonalize. The returned ratio compares the actual to the
//quadratically predicted energy change; ok is false when no Hessian was
//available to predict with. A vanishing step against a vanishing
//prediction reports the defined limit of one.
func (p *PES) Kick(dx []float64, diagonalize bool, gamma float64, threepoint bool, maxiter int) (ratio float64, ok bool, err error) {
	x0 := p.GetX()
	f0, err := p.GetF()
	if err != nil {
		return 0, false, errDecorate(err, "Kick")
	}
	g0, err := p.GetG()
	if err != nil {
		return 0, false, errDecorate(err, "Kick")
	}
	B0 := p.hess.Matrix()

	target := make([]float64, len(x0))
	for i := range x0 {
		target[i] = x0[i] + dx[i]
	}
	dxInitial, dxFinal, gPar, err := p.SetX(target)
	if err != nil {
		return 0, false, errDecorate(err, "Kick")
	}

	pred, havePred, err := p.dfPred(dxInitial, g0, B0)
	if err != nil {
		return 0, false, errDecorate(err, "Kick")
	}
	gNew, err := p.GetG()
	if err != nil {
		return 0, false, errDecorate(err, "Kick")
	}
	fNew, err := p.GetF()
	if err != nil {
		return 0, false, errDecorate(err, "Kick")
	}
	dg := make([]float64, len(gNew))
	for i := range dg {
		dg[i] = gNew[i] - gPar[i]
	}
	dfActual := fNew - f0

	if havePred {
		if pred == 0 && dfActual == 0 {
			ratio, ok = 1, true
		} else {
			ratio, ok = dfActual/pred, true
		}
	}

	p.updateH(dxFinal, dg)

	if diagonalize {
		if err := p.Diag(gamma, threepoint, maxiter); err != nil {
			return ratio, ok, errDecorate(err, "Kick")
		}
	}
	return ratio, ok, nil
}

//ProjectedForces returns the per-degree-of-freedom Cartesian forces
//orthogonal to all constraints.
func (p *PES) ProjectedForces() ([]float64, error) {
	g, err := p.GetG()
	if err != nil {
		return nil, errDecorate(err, "ProjectedForces")
	}
	Ufree, err := p.GetUfree()
	if err != nil {
		return nil, errDecorate(err, "ProjectedForces")
	}
	if Ufree == nil {
		return make([]float64, p.ncart), nil
	}
	_, k := Ufree.Dims()
	c := make([]float64, k)
	mat.NewVecDense(k, c).MulVec(Ufree.T(), mat.NewVecDense(len(g), g))
	v := make([]float64, len(g))
	mat.NewVecDense(len(g), v).MulVec(Ufree, mat.NewVecDense(k, c))
	fcart := p.space.ToCartesian(v)
	for i := range fcart {
		fcart[i] = -fcart[i]
	}
	return fcart, nil
}

//Converged reports convergence together with the maximum per-atom norm of
//the constraint-orthogonal forces and the constraint residual norm. Both
//must be below their thresholds.
func (p *PES) Converged(fmax, cmax float64) (bool, float64, float64, error) {
	pf, err := p.ProjectedForces()
	if err != nil {
		return false, 0, 0, errDecorate(err, "Converged")
	}
	fmax1 := 0.0
	for i := 0; i+2 < len(pf); i += 3 {
		n := math.Sqrt(pf[i]*pf[i] + pf[i+1]*pf[i+1] + pf[i+2]*pf[i+2])
		if n > fmax1 {
			fmax1 = n
		}
	}
	cmax1 := 0.0
	for _, r := range p.GetRes() {
		cmax1 += r * r
	}
	cmax1 = math.Sqrt(cmax1)
	return fmax1 < fmax && cmax1 < cmax, fmax1, cmax1, nil
}

//WrapDx folds periodic displacement components into their principal range.
func (p *PES) WrapDx(dx []float64) []float64 { return p.space.Wrap(dx) }

//History returns the energy and maximum-force trace of every evaluation
//so far, probe points included.
func (p *PES) History() (energies, fmaxima []float64) {
	return append([]float64(nil), p.histE...), append([]float64(nil), p.histF...)
}
