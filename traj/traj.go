/*
 * traj.go, part of sella.
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

//Package traj writes the evaluation history of a surface as an extended
//XYZ trajectory, one frame per energy/force evaluation, with the energy
//on the comment line and the forces as extra columns. The compression is
//picked from the file name: .gz for gzip, .zst (or .stz) for zstd,
//anything else plain text.
package traj

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

//XYZW writes frames. Dummy atoms beyond the symbol list are written with
//the placeholder symbol X, so frame sizes may grow between frames when a
//coordinate set acquires dummies.
type XYZW struct {
	f         *os.File
	h         io.WriteCloser
	symbols   []string
	filename  string
	writeable bool
	frames    int
}

//NewWriter opens name for writing with the element symbols of the real
//atoms.
func NewWriter(name string, symbols []string) (*XYZW, error) {
	S := new(XYZW)
	var err error
	S.f, err = os.Create(name)
	if err != nil {
		return nil, Error{err.Error(), name, []string{"NewWriter"}, true}
	}
	S.h, err = newCompressedWriter(S.f, name)
	if err != nil {
		return nil, Error{err.Error(), name, []string{"NewWriter"}, true}
	}
	S.symbols = append([]string(nil), symbols...)
	S.filename = name
	S.writeable = true
	return S, nil
}

func newCompressedWriter(f *os.File, name string) (io.WriteCloser, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return gzip.NewWriter(f), nil
	case strings.HasSuffix(name, ".zst"), strings.HasSuffix(name, ".stz"):
		return zstd.NewWriter(f)
	}
	return nopWriteCloser{f}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (S *XYZW) Len() int {
	return len(S.symbols)
}

//Frames returns the number of frames written so far.
func (S *XYZW) Frames() int { return S.frames }

//WNext writes one frame. coords and forces are flattened per degree of
//freedom and must have the same length, a multiple of three at least
//covering the symbol list.
func (S *XYZW) WNext(coords []float64, energy float64, forces []float64) error {
	if !S.writeable {
		return Error{TrajUnIniWrite, S.filename, []string{"WNext"}, true}
	}
	if coords == nil {
		return Error{NilCoordinates, S.filename, []string{"WNext"}, true}
	}
	if len(coords)%3 != 0 || len(forces) != len(coords) {
		return Error{fmt.Sprintf("%d coordinates and %d forces given", len(coords), len(forces)), S.filename, []string{"WNext"}, true}
	}
	n := len(coords) / 3
	if n < len(S.symbols) {
		return Error{fmt.Sprintf("%d atoms given, but at least %d expected", n, len(S.symbols)), S.filename, []string{"WNext"}, true}
	}
	buf := bufio.NewWriter(S.h)
	fmt.Fprintf(buf, "%d\n", n)
	fmt.Fprintf(buf, "frame=%d energy=%.10f\n", S.frames, energy)
	for i := 0; i < n; i++ {
		sym := "X"
		if i < len(S.symbols) {
			sym = S.symbols[i]
		}
		fmt.Fprintf(buf, "%-3s %14.8f %14.8f %14.8f %14.8f %14.8f %14.8f\n",
			sym, coords[3*i], coords[3*i+1], coords[3*i+2],
			forces[3*i], forces[3*i+1], forces[3*i+2])
	}
	if err := buf.Flush(); err != nil {
		return Error{err.Error(), S.filename, []string{"WNext"}, true}
	}
	S.frames++
	return nil
}

func (S *XYZW) Close() {
	if S == nil || !S.writeable {
		return
	}
	S.h.Close()
	S.f.Close()
	S.writeable = false
}
