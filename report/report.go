/*
 * report.go, part of sella.
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

//Package report renders the evaluation history of a saddle-point search
//(energies and residual forces per evaluation) as plots.
package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func basicPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	p.Title.Text = title
	p.X.Label.Text = "Evaluation"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	return p
}

func line(data []float64) (*plotter.Line, error) {
	pts := make(plotter.XYs, len(data))
	for i, v := range data {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	return plotter.NewLine(pts)
}

//Profile plots the energy of every evaluation against the evaluation
//number and saves it to plotname.png.
func Profile(energies []float64, title, plotname string) error {
	if energies == nil {
		return fmt.Errorf("report: given nil energies")
	}
	p := basicPlot(title, "Energy")
	l, err := line(energies)
	if err != nil {
		return err
	}
	l.LineStyle.Color = color.RGBA{B: 255, A: 255}
	p.Add(l)
	return p.Save(5*vg.Inch, 5*vg.Inch, fmt.Sprintf("%s.png", plotname))
}

//Convergence plots the maximum residual force of every evaluation on a
//logarithmic axis and saves it to plotname.png.
func Convergence(fmaxima []float64, title, plotname string) error {
	if fmaxima == nil {
		return fmt.Errorf("report: given nil force maxima")
	}
	p := basicPlot(title, "Max force")
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	//Log axes choke on zeros; clamp to a floor well below convergence
	//thresholds.
	clamped := make([]float64, len(fmaxima))
	for i, v := range fmaxima {
		if v < 1e-12 {
			v = 1e-12
		}
		clamped[i] = v
	}
	l, err := line(clamped)
	if err != nil {
		return err
	}
	l.LineStyle.Color = color.RGBA{R: 255, A: 255}
	p.Add(l)
	return p.Save(5*vg.Inch, 5*vg.Inch, fmt.Sprintf("%s.png", plotname))
}
