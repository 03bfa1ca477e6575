/*
 * detect.go, part of sella.
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

package intcoords

import (
	"math"
	"sort"
)

//A map for assigning covalent radii to elements
//Values from Cordero et al., 2008 (DOI:10.1039/B801115J)
//Note that just common "bio-elements" are present
var symbolCovrad = map[string]float64{
	"H":  0.31,
	"C":  0.76, //the sp3 radius
	"O":  0.66,
	"N":  0.71,
	"P":  1.07,
	"S":  1.05,
	"Se": 1.2,
	"K":  2.03,
	"Ca": 1.76,
	"Mg": 1.41,
	"Cl": 1.02,
	"Na": 1.66,
	"Cu": 1.32,
	"Zn": 1.22,
	"Co": 1.5,  // hs
	"Fe": 1.52, //hs
	"Mn": 1.61, //hs
	"Cr": 1.39,
	"Si": 1.11,
	"Be": 0.96,
	"F":  0.57,
	"Br": 1.2,
	"I":  1.39,
}

//Fallback for elements missing from the table.
const defaultCovrad = 1.5

//Two atoms closer than bondScale times the sum of their covalent radii
//count as bonded.
const bondScale = 1.25

func covrad(symbol string) float64 {
	if r, ok := symbolCovrad[symbol]; ok {
		return r
	}
	return defaultCovrad
}

func dist(x []float64, i, j int) float64 {
	dx := x[3*i] - x[3*j]
	dy := x[3*i+1] - x[3*j+1]
	dz := x[3*i+2] - x[3*j+2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

//detect builds the coordinate list at the current geometry. Bonds come
//first, then angles, then dihedrals, each block in index order, so two
//detections over the same connectivity produce identical lists.
func (c *Coords) detect() error {
	n := c.sys.Len()
	if n < 2 {
		return &Error{msg: "detect: need at least two atoms for internal coordinates"}
	}
	x := c.sys.Positions()

	adj := make([]map[int]bool, n)
	for i := range adj {
		adj[i] = map[int]bool{}
	}
	addBond := func(i, j int) {
		adj[i][j] = true
		adj[j][i] = true
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if c.forbiddenBonds[bondKey(i, j)] {
				continue
			}
			limit := bondScale * (covrad(c.sys.Symbol(i)) + covrad(c.sys.Symbol(j)))
			if dist(x, i, j) < limit {
				addBond(i, j)
				c.bondLimit[bondKey(i, j)] = limit
			}
		}
	}

	//Connect isolated atoms (and in general, disconnected fragments would
	//need the same treatment; nearest-neighbor linking covers the common
	//single-stray-atom case).
	for i := 0; i < n; i++ {
		if len(adj[i]) > 0 {
			continue
		}
		best, bestD := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if j == i || c.forbiddenBonds[bondKey(i, j)] {
				continue
			}
			if d := dist(x, i, j); d < bestD {
				best, bestD = j, d
			}
		}
		if best < 0 {
			return &Error{msg: "detect: atom cannot be bonded to anything"}
		}
		addBond(i, best)
		c.bondLimit[bondKey(i, best)] = bestD * bondScale
	}

	c.coords = c.coords[:0]
	for i := 0; i < n; i++ {
		for j := range adj[i] {
			if j > i {
				c.coords = append(c.coords, Coordinate{Kind: Bond, I: i, J: j, K: -1, L: -1})
			}
		}
	}
	sortCoords(c.coords)

	nb := len(c.coords)
	for j := 0; j < n; j++ {
		nbs := neighbors(adj[j])
		for a := 0; a < len(nbs); a++ {
			for b := a + 1; b < len(nbs); b++ {
				i, k := nbs[a], nbs[b]
				if c.forbiddenAngles[angleKey(i, j, k)] {
					continue
				}
				if angleValue(x, i, j, k) > linearLimit {
					continue
				}
				c.coords = append(c.coords, Coordinate{Kind: Angle, I: i, J: j, K: k, L: -1})
			}
		}
	}
	sortCoords(c.coords[nb:])

	na := len(c.coords)
	for j := 0; j < n; j++ {
		for _, k := range neighbors(adj[j]) {
			if k <= j {
				continue
			}
			for _, i := range neighbors(adj[j]) {
				if i == k {
					continue
				}
				if angleValue(x, i, j, k) > linearLimit {
					continue
				}
				for _, l := range neighbors(adj[k]) {
					if l == j || l == i {
						continue
					}
					if angleValue(x, j, k, l) > linearLimit {
						continue
					}
					c.coords = append(c.coords, Coordinate{Kind: Dihedral, I: i, J: j, K: k, L: l})
				}
			}
		}
	}
	sortCoords(c.coords[na:])
	return nil
}

func neighbors(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func sortCoords(cs []Coordinate) {
	sort.Slice(cs, func(a, b int) bool {
		x, y := cs[a], cs[b]
		if x.I != y.I {
			return x.I < y.I
		}
		if x.J != y.J {
			return x.J < y.J
		}
		if x.K != y.K {
			return x.K < y.K
		}
		return x.L < y.L
	})
}
