package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ChristopherRabotin/irk"
	"github.com/ChristopherRabotin/irk/nlp"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// scenario is a solve request read from a TOML file.
type scenario struct {
	Problem   string
	Method    string
	Fractions []float64
	Points    []int
	NLP       nlp.Settings
	Refine    irk.RefineSettings
	Output    output
}

type output struct {
	Dir            string
	CSV            bool
	Timestamp      bool
	Plot           bool
	DenseSamples   int // 0 writes the discretization points only
	PropagateSteps int // 0 skips the propagation check
	Epoch          time.Time
	TimeUnit       time.Duration
}

func (o output) exportConfig(name string) irk.ExportConfig {
	return irk.ExportConfig{Filename: name, OutputDir: o.Dir, Timestamp: o.Timestamp, Epoch: o.Epoch, TimeUnit: o.TimeUnit}
}

// readScenario loads a scenario file; the extension may be omitted.
func readScenario(path string) (*scenario, error) {
	if !strings.HasSuffix(path, ".toml") {
		path += ".toml"
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", irk.ErrConfig, path, err)
	}
	return parseScenario(v)
}

func parseScenario(v *viper.Viper) (*scenario, error) {
	v.SetDefault("problem.method", irk.RungeKutta4)
	v.SetDefault("problem.fractions", []float64{0, 1})
	v.SetDefault("problem.points", []int{5})
	def := nlp.DefaultSettings()
	v.SetDefault("nlp.max_iterations", def.MaxIterations)
	v.SetDefault("nlp.tolerance", def.Tolerance)
	v.SetDefault("nlp.hessian", "fd")
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.csv", true)
	v.SetDefault("output.time_unit", time.Second)

	sc := &scenario{
		Problem: v.GetString("problem.name"),
		Method:  v.GetString("problem.method"),
	}
	if sc.Problem == "" {
		return nil, fmt.Errorf("%w: scenario has no problem.name", irk.ErrConfig)
	}
	var err error
	if sc.Fractions, err = floatSlice(v.Get("problem.fractions")); err != nil {
		return nil, fmt.Errorf("%w: problem.fractions: %s", irk.ErrConfig, err)
	}
	if sc.Points, err = cast.ToIntSliceE(v.Get("problem.points")); err != nil {
		return nil, fmt.Errorf("%w: problem.points: %s", irk.ErrConfig, err)
	}

	sc.NLP = def
	sc.NLP.MaxIterations = v.GetInt("nlp.max_iterations")
	sc.NLP.Tolerance = v.GetFloat64("nlp.tolerance")
	switch h := strings.ToLower(v.GetString("nlp.hessian")); h {
	case "fd", "finitedifference":
		sc.NLP.Hessian = nlp.FiniteDifference
	case "bfgs":
		sc.NLP.Hessian = nlp.BFGS
	default:
		return nil, fmt.Errorf("%w: unknown nlp.hessian %q", irk.ErrConfig, h)
	}

	if sc.Refine, err = irk.LoadRefineSettings(v); err != nil {
		return nil, err
	}

	sc.Output = output{
		Dir:            v.GetString("output.dir"),
		CSV:            v.GetBool("output.csv"),
		Timestamp:      v.GetBool("output.timestamp"),
		Plot:           v.GetBool("output.plot"),
		DenseSamples:   v.GetInt("output.dense"),
		PropagateSteps: v.GetInt("output.propagate_steps"),
		TimeUnit:       v.GetDuration("output.time_unit"),
	}
	if v.IsSet("output.epoch") {
		sc.Output.Epoch = readJDEorTime(v, "output.epoch")
	}
	return sc, nil
}

// readJDEorTime reads either a Julian date or a date string.
func readJDEorTime(v *viper.Viper, key string) time.Time {
	if jde := v.GetFloat64(key); jde != 0 {
		return julian.JDToTime(jde)
	}
	return v.GetTime(key)
}

// floatSlice decodes a TOML array, whose integers and floats come back mixed.
func floatSlice(i interface{}) ([]float64, error) {
	if f, ok := i.([]float64); ok {
		return f, nil
	}
	items, err := cast.ToSliceE(i)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for k, item := range items {
		if out[k], err = cast.ToFloat64E(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}
