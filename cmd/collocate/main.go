// Command collocate solves benchmark optimal control problems with Lobatto IIIA collocation.
//
//	collocate solve --scenario hull95.toml
//	collocate tables RungeKutta6
//	collocate problems
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ChristopherRabotin/irk"
	"github.com/ChristopherRabotin/irk/phase"
	"github.com/ChristopherRabotin/irk/problems"
	kitlog "github.com/go-kit/kit/log"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "collocate",
		Short:        "Optimal control by Lobatto IIIA collocation",
		SilenceUsage: true,
	}
	root.AddCommand(newSolveCmd(), newTablesCmd(), newProblemsCmd())
	return root
}

func newSolveCmd() *cobra.Command {
	var (
		scenarioPath string
		verbose      bool
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve the problem of a TOML scenario and export its trajectory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := readScenario(scenarioPath)
			if err != nil {
				return err
			}
			logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(cmd.OutOrStdout()))
			return solve(sc, logger, verbose, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "scenario TOML file")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log the solver and refinement iterations")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func solve(sc *scenario, logger kitlog.Logger, verbose bool, out io.Writer) error {
	def, err := problems.ByName(sc.Problem)
	if err != nil {
		return err
	}
	libLogger := kitlog.NewNopLogger()
	if verbose {
		libLogger = logger
		logger.Log("level", "info", "subsys", "conf", "problem", sc.Problem, "method", sc.Method,
			"fractions", fmt.Sprint(sc.Fractions), "points", fmt.Sprint(sc.Points), "hessian", sc.NLP.Hessian)
	}
	p, err := phase.New(def, sc.Method, sc.Fractions, sc.Points, libLogger)
	if err != nil {
		return err
	}
	sc.NLP.Logger = libLogger
	sol, err := p.Solve(sc.NLP, sc.Refine)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", def.Config.Name, sol)
	t0, tf := sol.Z.Times()
	fmt.Fprintf(out, "t0 = %g, tf = %g, final state %v\n", t0, tf, sol.Z.LastState())

	tr := p.Transcription()
	if sc.Output.PropagateSteps > 0 && def.Config.HasDefects() {
		prop, err := tr.Propagate(sol.Z, def.Dynamics, sc.Output.PropagateSteps)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "propagation over %d steps: final state error %.3e\n", sc.Output.PropagateSteps, prop.FinalError)
	}
	if !sc.Output.CSV && !sc.Output.Plot {
		return nil
	}

	var traj *irk.Trajectory
	if sc.Output.DenseSamples > 0 {
		traj, err = tr.DenseTrajectory(sol.Z, def.Dynamics, sc.Output.DenseSamples)
	} else {
		traj, err = tr.Trajectory(sol.Z)
	}
	if err != nil {
		return err
	}
	if err = os.MkdirAll(sc.Output.Dir, 0o755); err != nil {
		return err
	}
	if sc.Output.CSV {
		path, err := irk.ExportCSV(traj, sc.Output.exportConfig(def.Config.Name))
		if err != nil {
			return err
		}
		logger.Log("level", "notice", "subsys", "export", "file", path)
	}
	if sc.Output.Plot {
		paths, err := plotTrajectory(traj, sc.Output.Dir)
		if err != nil {
			return err
		}
		for _, path := range paths {
			logger.Log("level", "notice", "subsys", "plot", "file", path)
		}
	}
	return nil
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables [method...]",
		Short: "Print the Butcher tables of the collocation methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = irk.Methods
			}
			for _, method := range args {
				tbl, err := irk.NewButcherTable(method)
				if err != nil {
					return err
				}
				printTable(cmd.OutOrStdout(), tbl)
			}
			return nil
		},
	}
}

func printTable(w io.Writer, tbl *irk.ButcherTable) {
	s := len(tbl.StageTimes)
	coupling := mat.NewDense(s, s, nil)
	for i, row := range tbl.Coupling {
		coupling.SetRow(i, row)
	}
	fmt.Fprintln(w, tbl)
	fmt.Fprintf(w, "c = %v\nb = %v\nA = %v\n\n", tbl.StageTimes, tbl.Weights, mat.Formatted(coupling, mat.Prefix("    "), mat.Squeeze()))
}

func newProblemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "problems",
		Short: "List the benchmark problems",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range problems.Names() {
				def, _ := problems.ByName(name)
				cfg := def.Config
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %d states %v, %d controls %v\n", name, cfg.NumStates, cfg.StateNames, cfg.NumControls, cfg.ControlNames)
			}
		},
	}
}
