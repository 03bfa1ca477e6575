/*
 * rosenbrock.go, part of sella.
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

//Package ode implements the stiff initial-value-problem integrator that the
//internal-coordinate surface uses to realize displacements. The method is
//the linearly implicit Rosenbrock triple of Shampine (the ode23s scheme): a
//second order step with an embedded third order error estimate, L-stable,
//with the Jacobian taken by forward differences. Stiffness comes from the
//Jacobian pseudoinverse dynamics near singular internal configurations, so
//an explicit method would grind the step size to nothing exactly where the
//engine needs to detect bad coordinates and bail out cleanly.
package ode

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

//Func is the right-hand side of the system y' = f(t, y). It writes the
//derivative into dydt, which has the same length as y.
type Func func(t float64, y, dydt []float64) error

//Status of a stepper.
type Status int

const (
	Running Status = iota
	Done
	Failed
)

//Terminal integration failures.
var (
	//ErrStepSizeTooSmall means the controller could not find an acceptable
	//step above the minimum: the integration failed to converge.
	ErrStepSizeTooSmall = errors.New("ode: step size underflow, integration failed to converge")
	//ErrTooManyEvaluations means the evaluation ceiling was hit before the
	//end of the interval.
	ErrTooManyEvaluations = errors.New("ode: evaluation ceiling exceeded")
)

//Settings collects the tolerances and ceilings of a stepper. Zero values
//select defaults.
type Settings struct {
	AbsTol      float64 //default 1e-6
	RelTol      float64 //default 1e-3
	InitialStep float64 //default 1e-2 of the interval
	MinStep     float64 //default 16 ulp of t
	MaxEval     int     //0 means unlimited
}

//Statistics reports what the stepper has done so far.
type Statistics struct {
	StepCount       int
	RejectedCount   int
	EvaluationCount int
	LastStepSize    float64
	CurrentTime     float64
}

//Rosenbrock integrates y' = f(t, y) from t0 towards tBound one accepted
//step at a time, so the caller can inspect the state between steps.
type Rosenbrock struct {
	f      Func
	t, tb  float64
	y      []float64
	h      float64
	status Status
	stats  Statistics
	set    Settings

	//scratch
	n                  int
	f0, f1, f2         []float64
	k1, k2, k3         []float64
	ytmp, ynew, errvec []float64
	jac                *mat.Dense
}

const d = 0.2928932188134525 //1/(2+sqrt(2))

//NewRosenbrock returns a stepper positioned at (t0, y0). y0 is copied.
func NewRosenbrock(f Func, t0 float64, y0 []float64, tBound float64, set Settings) *Rosenbrock {
	n := len(y0)
	if set.AbsTol <= 0 {
		set.AbsTol = 1e-6
	}
	if set.RelTol <= 0 {
		set.RelTol = 1e-3
	}
	h := set.InitialStep
	if h <= 0 {
		h = 1e-2 * (tBound - t0)
	}
	if h > tBound-t0 {
		h = tBound - t0
	}
	r := &Rosenbrock{
		f: f, t: t0, tb: tBound, h: h, set: set, n: n,
		y:    append([]float64(nil), y0...),
		f0:   make([]float64, n),
		f1:   make([]float64, n),
		f2:   make([]float64, n),
		k1:   make([]float64, n),
		k2:   make([]float64, n),
		k3:   make([]float64, n),
		ytmp: make([]float64, n),
		ynew: make([]float64, n),
		errvec: make([]float64, n),
		jac:  mat.NewDense(n, n, nil),
	}
	if tBound <= t0 {
		r.status = Done
	}
	return r
}

//Status returns the stepper state.
func (r *Rosenbrock) Status() Status { return r.status }

//T returns the current time.
func (r *Rosenbrock) T() float64 { return r.t }

//Y returns the current state. The slice is owned by the stepper.
func (r *Rosenbrock) Y() []float64 { return r.y }

//NEval returns the number of right-hand-side evaluations so far.
func (r *Rosenbrock) NEval() int { return r.stats.EvaluationCount }

//Stats returns a snapshot of the integration statistics.
func (r *Rosenbrock) Stats() Statistics {
	s := r.stats
	s.CurrentTime = r.t
	return s
}

func (r *Rosenbrock) eval(t float64, y, dydt []float64) error {
	if r.set.MaxEval > 0 && r.stats.EvaluationCount >= r.set.MaxEval {
		r.status = Failed
		return ErrTooManyEvaluations
	}
	r.stats.EvaluationCount++
	return r.f(t, y, dydt)
}

//fdJacobian fills r.jac with the forward-difference Jacobian of f at
//(t, y), given f0 = f(t, y).
func (r *Rosenbrock) fdJacobian(t float64, y, f0 []float64) error {
	eps := math.Sqrt(math.Nextafter(1, 2) - 1)
	fj := make([]float64, r.n)
	for j := 0; j < r.n; j++ {
		delta := eps * math.Max(1, math.Abs(y[j]))
		orig := y[j]
		y[j] = orig + delta
		if err := r.eval(t, y, fj); err != nil {
			y[j] = orig
			return err
		}
		y[j] = orig
		for i := 0; i < r.n; i++ {
			r.jac.Set(i, j, (fj[i]-f0[i])/delta)
		}
	}
	return nil
}

//Step advances the state by one accepted step, shrinking the step size as
//needed. A non-nil error means the integration has failed and the stepper
//is no longer usable.
func (r *Rosenbrock) Step() error {
	if r.status != Running {
		return fmt.Errorf("ode: Step called on a stepper that is not running (status %d)", r.status)
	}
	if err := r.eval(r.t, r.y, r.f0); err != nil {
		return err
	}
	if err := r.fdJacobian(r.t, r.y, r.f0); err != nil {
		return err
	}

	minStep := r.set.MinStep
	if minStep <= 0 {
		minStep = 16 * (math.Nextafter(1, 2) - 1) * math.Max(math.Abs(r.t), 1)
	}

	for {
		h := r.h
		if r.t+h > r.tb {
			h = r.tb - r.t
		}

		//W = I - h d J, factored once per attempt.
		var W mat.Dense
		W.Scale(-h*d, r.jac)
		for i := 0; i < r.n; i++ {
			W.Set(i, i, W.At(i, i)+1)
		}
		var lu mat.LU
		lu.Factorize(&W)

		if err := r.stages(&lu, h); err != nil {
			return err
		}

		//Error norm scaled against the tolerance.
		enorm := 0.0
		for i := 0; i < r.n; i++ {
			sc := r.set.AbsTol + r.set.RelTol*math.Max(math.Abs(r.y[i]), math.Abs(r.ynew[i]))
			e := r.errvec[i] / sc
			enorm += e * e
		}
		enorm = math.Sqrt(enorm / float64(r.n))

		if enorm <= 1 || h <= minStep {
			if enorm > 1 {
				//Accepted at the floor; the controller has given up on
				//shrinking further.
				r.status = Failed
				return ErrStepSizeTooSmall
			}
			r.t += h
			copy(r.y, r.ynew)
			r.stats.StepCount++
			r.stats.LastStepSize = h
			fac := 0.9 * math.Pow(1/math.Max(enorm, 1e-10), 1.0/3.0)
			if fac > 5 {
				fac = 5
			}
			r.h = h * fac
			if r.t >= r.tb-1e-14*math.Max(1, math.Abs(r.tb)) {
				r.status = Done
			}
			return nil
		}

		r.stats.RejectedCount++
		fac := 0.9 * math.Pow(1/enorm, 1.0/3.0)
		if fac < 0.2 {
			fac = 0.2
		}
		r.h = h * fac
		if r.h < minStep {
			r.h = minStep
		}
	}
}

//stages runs the three Rosenbrock stages for step size h, filling ynew and
//errvec. The system is autonomous in everything the engine integrates, so
//the time-derivative term of the triple is dropped.
func (r *Rosenbrock) stages(lu *mat.LU, h float64) error {
	n := r.n
	rhs := mat.NewVecDense(n, nil)
	sol := mat.NewVecDense(n, nil)

	//k1 = W^-1 f0
	rhs.SetRawVector(vecOf(r.f0))
	if err := lu.SolveVecTo(sol, false, rhs); err != nil {
		r.status = Failed
		return ErrStepSizeTooSmall
	}
	copy(r.k1, sol.RawVector().Data)

	//f1 = f(t + h/2, y + h/2 k1)
	for i := 0; i < n; i++ {
		r.ytmp[i] = r.y[i] + 0.5*h*r.k1[i]
	}
	if err := r.eval(r.t+0.5*h, r.ytmp, r.f1); err != nil {
		return err
	}

	//k2 = W^-1 (f1 - k1) + k1
	for i := 0; i < n; i++ {
		r.ytmp[i] = r.f1[i] - r.k1[i]
	}
	rhs.SetRawVector(vecOf(r.ytmp))
	if err := lu.SolveVecTo(sol, false, rhs); err != nil {
		r.status = Failed
		return ErrStepSizeTooSmall
	}
	for i := 0; i < n; i++ {
		r.k2[i] = sol.RawVector().Data[i] + r.k1[i]
	}

	//ynew = y + h k2
	for i := 0; i < n; i++ {
		r.ynew[i] = r.y[i] + h*r.k2[i]
	}

	//f2 = f(t + h, ynew)
	if err := r.eval(r.t+h, r.ynew, r.f2); err != nil {
		return err
	}

	//k3 = W^-1 (f2 - e32 (k2 - f1) - 2 (k1 - f0))
	for i := 0; i < n; i++ {
		r.ytmp[i] = r.f2[i] - e32*(r.k2[i]-r.f1[i]) - 2*(r.k1[i]-r.f0[i])
	}
	rhs.SetRawVector(vecOf(r.ytmp))
	if err := lu.SolveVecTo(sol, false, rhs); err != nil {
		r.status = Failed
		return ErrStepSizeTooSmall
	}
	copy(r.k3, sol.RawVector().Data)

	//err = h/6 (k1 - 2 k2 + k3)
	for i := 0; i < n; i++ {
		r.errvec[i] = h / 6 * (r.k1[i] - 2*r.k2[i] + r.k3[i])
	}
	return nil
}

//e32 = 6 + sqrt(2), the embedded-estimate coefficient of the triple.
const e32 = 7.414213562373095

func vecOf(s []float64) blas64.Vector {
	return blas64.Vector{N: len(s), Inc: 1, Data: s}
}
