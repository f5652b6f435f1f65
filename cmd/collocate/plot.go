package main

import (
	"fmt"
	"path/filepath"

	"github.com/ChristopherRabotin/irk"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotTrajectory writes the state and control histories as PNG files and returns their paths.
func plotTrajectory(traj *irk.Trajectory, dir string) ([]string, error) {
	var paths []string
	for _, set := range []struct {
		kind   string
		names  []string
		values [][]float64
	}{
		{"states", traj.StateNames, traj.States},
		{"controls", traj.ControlNames, traj.Controls},
	} {
		if len(set.names) == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s %s", traj.Phase, set.kind)
		p.X.Label.Text = "time"
		p.Legend.Top = true
		for i, name := range set.names {
			pts := make(plotter.XYs, len(traj.Times))
			for k, t := range traj.Times {
				pts[k].X = t
				pts[k].Y = set.values[k][i]
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return paths, fmt.Errorf("%s %s: %w", set.kind, name, err)
			}
			line.LineStyle.Width = vg.Points(1.5)
			line.LineStyle.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(name, line)
		}
		p.Add(plotter.NewGrid())
		path := filepath.Join(dir, fmt.Sprintf("traj-%s-%s.png", traj.Phase, set.kind))
		if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
