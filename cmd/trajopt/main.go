package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/trajopt/internal/storage"
	"github.com/san-kum/trajopt/internal/study"
	"github.com/san-kum/trajopt/internal/tui"
)

var (
	dataDir  string
	logLevel string
	outPath  string
)

// main registers the trajopt commands and runs the interactive picker when
// no subcommand is given.
func main() {
	rootCmd := &cobra.Command{
		Use:           "trajopt",
		Short:         "direct collocation trajectory optimization",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runInteractive,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".trajopt", "run store directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	solveCmd := &cobra.Command{
		Use:   "solve [problem]",
		Short: "transcribe and solve a problem",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSolve,
	}
	solveFlags.register(solveCmd)
	solveCmd.Flags().BoolVar(&live, "live", false, "show solver progress in a terminal monitor")
	solveCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the solution")
	solveCmd.Flags().BoolVar(&showPlot, "plot", false, "plot the trajectories after solving")
	solveCmd.Flags().BoolVar(&showConstraints, "constraints", false, "print constraint values after solving")

	guessCmd := &cobra.Command{
		Use:   "guess [problem]",
		Short: "print the initial guess a study would start from as CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGuess,
	}
	guessFlags.register(guessCmd)
	guessCmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")

	constraintsCmd := &cobra.Command{
		Use:   "constraints [run_id]",
		Short: "print the constraint values of a stored solution",
		Args:  cobra.ExactArgs(1),
		RunE:  printConstraints,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	problemsCmd := &cobra.Command{
		Use:   "problems",
		Short: "list built-in problems and their parameters",
		RunE:  listProblems,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the trajectories of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().BoolVar(&plotMultipliers, "multipliers", false, "plot multipliers too")
	plotCmd.Flags().IntVar(&plotWidth, "width", 70, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export a stored solution to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a stored solution to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")

	presetsCmd := &cobra.Command{
		Use:   "presets [problem]",
		Short: "list presets, for one problem or all",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [problem]",
		Short: "solve a problem over a grid of parameter values",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sweepFlags.register(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepAxes, "sweep", nil, "parameter grid, e.g. --sweep tf=1,2,3 (repeatable)")
	sweepCmd.Flags().BoolVar(&sweepSave, "save", false, "store every solution")

	batchCmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "run the studies listed in a YAML batch file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	rootCmd.AddCommand(solveCmd, guessCmd, constraintsCmd, listCmd, problemsCmd, plotCmd,
		exportCSVCmd, exportJSONCmd, presetsCmd, sweepCmd, batchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logrus.NewEntry(l), nil
}

func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := tui.Pick()
	if err != nil || cfg == nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	res, err := solveLive(cfg, log)
	if err != nil {
		return err
	}
	return finishSolve(res, store())
}

func store() *storage.Store {
	return storage.New(dataDir)
}

func loadRun(runID string) (*study.Result, *storage.RunMetadata, error) {
	sol, meta, err := store().LoadSolution(runID)
	if err != nil {
		return nil, nil, err
	}
	return &study.Result{Solution: sol}, meta, nil
}
