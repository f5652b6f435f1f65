package irk

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ChristopherRabotin/irk/interp"
	"github.com/soniakeys/meeus/v3/julian"
)

const (
	stateColPrefix   = "state."
	controlColPrefix = "control."
)

// Trajectory is the time history of a phase.
type Trajectory struct {
	Phase        string
	StateNames   []string
	ControlNames []string
	Times        []float64
	States       [][]float64
	Controls     [][]float64
}

func (t *Trajectory) String() string {
	return fmt.Sprintf("%s (%d samples, %d states, %d controls)", t.Phase, len(t.Times), len(t.StateNames), len(t.ControlNames))
}

// Trajectory returns the time history of z at the discretization points.
func (tr *Transcription) Trajectory(z *DecisionVector) (*Trajectory, error) {
	if err := tr.checkVector(z); err != nil {
		return nil, err
	}
	traj := tr.emptyTrajectory()
	for point := 0; point < tr.Mesh.NumPoints(); point++ {
		traj.Times = append(traj.Times, z.TimeAt(point))
		traj.States = append(traj.States, z.StateAtPoint(point))
		traj.Controls = append(traj.Controls, z.ControlAtPoint(point))
	}
	return traj, nil
}

// DenseTrajectory returns n uniformly spaced samples of z over the phase. The states are
// the piecewise cubic Hermite curve through the points and their dynamics, the controls
// are interpolated within each step.
func (tr *Transcription) DenseTrajectory(z *DecisionVector, dyn PathFunction, n int) (*Trajectory, error) {
	if err := tr.checkVector(z); err != nil {
		return nil, err
	}
	nPts := tr.Mesh.NumPoints()
	var taus []float64
	var stateSamples [][]float64
	if tr.Config.HasDefects() {
		scaled, err := tr.scaledDynamics(z, dyn)
		if err != nil {
			return nil, err
		}
		stateSamples = make([][]float64, tr.Config.NumStates)
		y, dy := make([]float64, nPts), make([]float64, nPts)
		for i := range stateSamples {
			for point := 0; point < nPts; point++ {
				y[point] = z.StateAtPoint(point)[i]
				dy[point] = scaled[point][i]
			}
			var err error
			if taus, stateSamples[i], err = interp.Resample(tr.Mesh.DiscTimes, y, dy, n); err != nil {
				return nil, err
			}
		}
	} else {
		// Nothing to fit, only the time grid is needed.
		zero := make([]float64, nPts)
		var err error
		if taus, _, err = interp.Resample(tr.Mesh.DiscTimes, zero, zero, n); err != nil {
			return nil, err
		}
	}

	t0, tf := z.Times()
	traj := tr.emptyTrajectory()
	for q, tau := range taus {
		traj.Times = append(traj.Times, t0+tau*(tf-t0))
		x := make([]float64, tr.Config.NumStates)
		for i := range x {
			x[i] = stateSamples[i][q]
		}
		u, err := tr.controlAt(z, tau)
		if err != nil {
			return nil, err
		}
		if u == nil {
			u = []float64{}
		}
		traj.States = append(traj.States, x)
		traj.Controls = append(traj.Controls, u)
	}
	return traj, nil
}

func (tr *Transcription) emptyTrajectory() *Trajectory {
	traj := &Trajectory{Phase: tr.Config.Name}
	for i := 0; i < tr.Config.NumStates; i++ {
		traj.StateNames = append(traj.StateNames, tr.Config.StateName(i))
	}
	for i := 0; i < tr.Config.NumControls; i++ {
		traj.ControlNames = append(traj.ControlNames, tr.Config.ControlName(i))
	}
	return traj
}

// ExportConfig configures the exporting of a trajectory.
type ExportConfig struct {
	Filename  string
	OutputDir string
	Timestamp bool
	// Epoch, when set, adds a Julian date column. Phase times are counted in TimeUnit
	// from the epoch, seconds if unset.
	Epoch    time.Time
	TimeUnit time.Duration
}

func (c ExportConfig) withJD() bool {
	return !c.Epoch.IsZero()
}

// JD returns the Julian date of a phase time.
func (c ExportConfig) JD(t float64) float64 {
	unit := c.TimeUnit
	if unit == 0 {
		unit = time.Second
	}
	return julian.TimeToJD(c.Epoch.Add(time.Duration(t * float64(unit))))
}

// WriteCSV writes the trajectory as CSV, preceded by a commented header.
func WriteCSV(w io.Writer, traj *Trajectory, conf ExportConfig) error {
	if _, err := fmt.Fprintf(w, "# Creation date (UTC): %s\n# Phase: %s\n", time.Now().UTC(), traj.Phase); err != nil {
		return err
	}
	if conf.withJD() {
		if _, err := fmt.Fprintf(w, "# Epoch (UTC): %s\n", conf.Epoch.UTC()); err != nil {
			return err
		}
	}
	cw := csv.NewWriter(w)
	hdr := []string{"time"}
	if conf.withJD() {
		hdr = append(hdr, "jd")
	}
	for _, name := range traj.StateNames {
		hdr = append(hdr, stateColPrefix+name)
	}
	for _, name := range traj.ControlNames {
		hdr = append(hdr, controlColPrefix+name)
	}
	if err := cw.Write(hdr); err != nil {
		return err
	}
	for k, t := range traj.Times {
		record := []string{formatFloat(t)}
		if conf.withJD() {
			record = append(record, strconv.FormatFloat(conf.JD(t), 'f', 8, 64))
		}
		for _, v := range traj.States[k] {
			record = append(record, formatFloat(v))
		}
		for _, v := range traj.Controls[k] {
			record = append(record, formatFloat(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the trajectory to a CSV file in the output directory and returns its path.
func ExportCSV(traj *Trajectory, conf ExportConfig) (string, error) {
	filename := conf.Filename
	if filename == "" {
		filename = traj.Phase
	}
	if conf.Timestamp {
		t := time.Now()
		filename = fmt.Sprintf("%s-%d-%02d-%02dT%02d.%02d.%02d", filename, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
	path := filepath.Join(conf.OutputDir, "traj-"+filename+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(f, traj, conf); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// ReadCSV parses a trajectory written by WriteCSV. A Julian date column is skipped.
func ReadCSV(r io.Reader) (*Trajectory, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("trajectory header: %w", err)
	}
	if len(hdr) == 0 || hdr[0] != "time" {
		return nil, fmt.Errorf("trajectory header must start with time, got %v", hdr)
	}
	traj := &Trajectory{}
	kinds := make([]byte, len(hdr))
	for i, col := range hdr[1:] {
		switch {
		case col == "jd":
			kinds[i+1] = 'j'
		case strings.HasPrefix(col, stateColPrefix):
			kinds[i+1] = 'x'
			traj.StateNames = append(traj.StateNames, strings.TrimPrefix(col, stateColPrefix))
		case strings.HasPrefix(col, controlColPrefix):
			kinds[i+1] = 'u'
			traj.ControlNames = append(traj.ControlNames, strings.TrimPrefix(col, controlColPrefix))
		default:
			return nil, fmt.Errorf("unknown trajectory column %q", col)
		}
	}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(record))
		for i, field := range record {
			if vals[i], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", len(traj.Times)+2, hdr[i], err)
			}
		}
		x := make([]float64, 0, len(traj.StateNames))
		u := make([]float64, 0, len(traj.ControlNames))
		for i, kind := range kinds {
			switch kind {
			case 'x':
				x = append(x, vals[i])
			case 'u':
				u = append(u, vals[i])
			}
		}
		traj.Times = append(traj.Times, vals[0])
		traj.States = append(traj.States, x)
		traj.Controls = append(traj.Controls, u)
	}
	return traj, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
