/*
 * rosenbrock_test.go, part of sella.
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

package ode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosenbrockLinearDecay(t *testing.T) {
	f := func(t float64, y, dydt []float64) error {
		dydt[0] = -5 * y[0]
		return nil
	}
	r := NewRosenbrock(f, 0, []float64{1}, 1, Settings{})
	for r.Status() == Running {
		require.NoError(t, r.Step())
	}
	require.Equal(t, Done, r.Status())
	assert.InDelta(t, 1, r.T(), 1e-12)
	assert.InDelta(t, math.Exp(-5), r.Y()[0], 5e-3)
}

func TestRosenbrockStiffSystem(t *testing.T) {
	//Widely separated decay rates. An explicit method would need on the
	//order of a thousand steps for stability; the Rosenbrock triple takes
	//far fewer.
	f := func(t float64, y, dydt []float64) error {
		dydt[0] = -1000 * y[0]
		dydt[1] = -y[1]
		return nil
	}
	r := NewRosenbrock(f, 0, []float64{1, 1}, 1, Settings{AbsTol: 1e-8, RelTol: 1e-6})
	for r.Status() == Running {
		require.NoError(t, r.Step())
	}
	require.Equal(t, Done, r.Status())
	assert.InDelta(t, 0, r.Y()[0], 1e-6)
	assert.InDelta(t, math.Exp(-1), r.Y()[1], 1e-3)
	assert.Less(t, r.Stats().StepCount, 200)
}

func TestRosenbrockTightensTolerance(t *testing.T) {
	f := func(t float64, y, dydt []float64) error {
		dydt[0] = y[1]
		dydt[1] = -y[0]
		return nil
	}
	run := func(set Settings) float64 {
		r := NewRosenbrock(f, 0, []float64{1, 0}, 1, set)
		for r.Status() == Running {
			if err := r.Step(); err != nil {
				t.Fatal(err)
			}
		}
		return math.Abs(r.Y()[0] - math.Cos(1))
	}
	loose := run(Settings{RelTol: 1e-2})
	tight := run(Settings{RelTol: 1e-6, AbsTol: 1e-9})
	assert.Less(t, tight, loose)
	assert.Less(t, tight, 1e-3)
}

func TestRosenbrockEvaluationCeiling(t *testing.T) {
	f := func(t float64, y, dydt []float64) error {
		dydt[0] = -y[0]
		return nil
	}
	r := NewRosenbrock(f, 0, []float64{1}, 1, Settings{MaxEval: 3})
	var err error
	for r.Status() == Running {
		if err = r.Step(); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrTooManyEvaluations)
	assert.Equal(t, Failed, r.Status())
}

func TestRosenbrockStepOnFinished(t *testing.T) {
	f := func(t float64, y, dydt []float64) error {
		dydt[0] = 0
		return nil
	}
	r := NewRosenbrock(f, 0, []float64{1}, 0, Settings{})
	require.Equal(t, Done, r.Status())
	assert.Error(t, r.Step())
}

func TestRosenbrockStats(t *testing.T) {
	f := func(t float64, y, dydt []float64) error {
		dydt[0] = -y[0]
		return nil
	}
	r := NewRosenbrock(f, 0, []float64{1}, 1, Settings{})
	require.NoError(t, r.Step())
	s := r.Stats()
	assert.Equal(t, 1, s.StepCount)
	assert.Greater(t, s.EvaluationCount, 0)
	assert.Greater(t, s.LastStepSize, 0.0)
	assert.Equal(t, r.T(), s.CurrentTime)
	assert.Equal(t, r.NEval(), s.EvaluationCount)
}
