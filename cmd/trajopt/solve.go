package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/dircol"
	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/report"
	"github.com/san-kum/trajopt/internal/storage"
	"github.com/san-kum/trajopt/internal/study"
	"github.com/san-kum/trajopt/internal/tui"
)

var (
	live            bool
	noSave          bool
	showPlot        bool
	showConstraints bool

	sweepAxes []string
	sweepSave bool
)

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := solveFlags.resolve(cmd, args)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}

	var res *study.Result
	if live {
		res, err = solveLive(cfg, log)
	} else {
		log.WithField("problem", cfg.Problem).Info("solving")
		res, err = study.Run(cfg, log)
	}
	if err != nil {
		return err
	}

	var st *storage.Store
	if !noSave {
		st = store()
	}
	return finishSolve(res, st)
}

// solveLive runs the study under the terminal monitor.
func solveLive(cfg *config.Config, log *logrus.Entry) (*study.Result, error) {
	var res *study.Result
	_, err := tui.Solve(cfg.Problem, func(obs nlp.Observer) (*iterate.Solution, error) {
		r, err := study.Run(cfg, log, dircol.WithObserver(obs))
		if err != nil {
			return nil, err
		}
		res = r
		return r.Solution, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// finishSolve prints the outcome of a solve and stores it when st is set.
func finishSolve(res *study.Result, st *storage.Store) error {
	meta := res.Metadata()
	meta.MeshPoints = res.Solution.NumTimes()
	if st != nil {
		runID, err := study.Save(st, res)
		if err != nil {
			return err
		}
		meta.ID = runID
	}
	fmt.Println(report.Summary(meta, res.Solution))

	if showPlot {
		out, err := report.PlotAll(res.Solution.Iterate, report.DefaultWidth, report.DefaultHeight)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}

	if showConstraints || !res.Solution.Success() {
		d, err := study.NewDriver(res.Config, nil)
		if err != nil {
			return err
		}
		if err := d.PrintConstraintValues(res.Solution.Iterate, os.Stdout); err != nil {
			return err
		}
	}
	return nil
}

func runGuess(cmd *cobra.Command, args []string) error {
	cfg, err := guessFlags.resolve(cmd, args)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	d, err := study.NewDriver(cfg, log)
	if err != nil {
		return err
	}
	guess, err := study.MakeGuess(d, cfg)
	if err != nil {
		return err
	}

	if outPath == "" {
		return storage.WriteCSV(os.Stdout, guess)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := storage.WriteCSV(f, guess); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", outPath)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := sweepFlags.resolve(cmd, args)
	if err != nil {
		return err
	}
	if len(sweepAxes) > 0 {
		cfg.Sweep = map[string][]float64{}
	}
	for _, axis := range sweepAxes {
		name, values, err := parseSweep(axis)
		if err != nil {
			return err
		}
		cfg.Sweep[name] = values
	}
	log, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	grid := study.NewGrid(cfg.Sweep)
	fmt.Printf("sweeping %s over %d points\n", cfg.Problem, grid.Size())
	points, err := study.GridSweep(ctx, cfg, log)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POINT\tSTATUS\tOBJECTIVE\tITERATIONS\tRUN")
	for _, p := range points {
		runID := "-"
		if sweepSave && !p.Solution.Empty() {
			res := &study.Result{Config: p.Config, Solution: p.Solution}
			if runID, err = study.Save(store(), res); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%.6g\t%d\t%s\n",
			p.Label(), p.Solution.Status, p.Solution.Objective, p.Solution.Iterations, runID)
	}
	w.Flush()

	if best, ok := study.Best(points); ok {
		fmt.Printf("\nbest: %s (objective %.6g)\n", best.Label(), best.Solution.Objective)
	} else {
		fmt.Println("\nno point converged")
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	batch, err := study.LoadBatch(args[0])
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if batch.Name != "" {
		fmt.Printf("batch %s: %d studies\n", batch.Name, len(batch.Studies))
	}
	_, err = study.RunBatch(ctx, batch, store(), log, func(s study.Step) {
		sol := s.Result.Solution
		line := fmt.Sprintf("[%d/%d] %-20s %s  objective %.6g", s.Index+1, s.Total, s.Name, report.Status(sol), sol.Objective)
		if s.RunID != "" {
			line += "  saved " + s.RunID
		}
		fmt.Println(line)
	})
	return err
}

func listPresets(cmd *cobra.Command, args []string) error {
	names := args
	if len(names) == 0 {
		names = problemNames()
	}
	for _, problem := range names {
		presets := config.ListPresets(problem)
		if len(presets) == 0 {
			fmt.Printf("no presets for %s\n", problem)
			continue
		}
		fmt.Printf("presets for %s:\n", problem)
		for _, name := range presets {
			p := config.GetPreset(problem, name)
			fmt.Printf("  %-10s n=%d %s/%s mode %d\n", name, p.MeshPoints, p.Transcription, p.Solver, p.HessianMode)
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
