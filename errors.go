/*
 * errors.go, part of sella.
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

import "strings"

//Error is the interface errors of this library implement. Decorate adds
//information as the error travels up the call stack without changing its
//type; each element of the returned slice is the name of a function in the
//calling stack, optionally followed by extra detail.
type Error interface {
	error
	Decorate(string) []string
}

//CError is the concrete Error of the package.
type CError struct {
	msg  string
	deco []string
}

func (err *CError) Error() string {
	if len(err.deco) == 0 {
		return err.msg
	}
	return err.msg + " (" + strings.Join(err.deco, " <- ") + ")"
}

//Decorate appends info to the decoration trail unless it is empty, and
//returns the current trail.
func (err *CError) Decorate(info string) []string {
	if info != "" {
		err.deco = append(err.deco, info)
	}
	return err.deco
}

func errDecorate(err error, info string) error {
	if e, ok := err.(Error); ok {
		e.Decorate(info)
		return e
	}
	return &CError{msg: err.Error(), deco: []string{info}}
}
