package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/problems"
	"github.com/san-kum/trajopt/internal/report"
	"github.com/san-kum/trajopt/internal/storage"
	"github.com/san-kum/trajopt/internal/study"
)

var (
	plotMultipliers bool
	plotWidth       int
	plotHeight      int
)

func problemNames() []string {
	return problems.List()
}

func listProblems(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROBLEM\tPARAMETERS\tDESCRIPTION")
	for _, name := range problemNames() {
		desc, _ := problems.Describe(name)
		defaults, _ := problems.Defaults(name)
		params := make([]string, 0, len(defaults))
		for _, k := range sortedKeys(defaults) {
			params = append(params, fmt.Sprintf("%s=%g", k, defaults[k]))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(params, " "), desc)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := store().List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tMETHOD\tN\tSTATUS\tOBJECTIVE\tTIMESTAMP")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%d\t%s\t%.6g\t%s\n",
			r.ID, r.Problem, r.Transcription, r.Solver, r.MeshPoints, r.Status, r.Objective,
			r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// runConfig rebuilds the study configuration a stored run was solved with.
func runConfig(meta *storage.RunMetadata) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Problem = meta.Problem
	cfg.Params = meta.Params
	cfg.MeshPoints = meta.MeshPoints
	cfg.Transcription = meta.Transcription
	cfg.Solver = meta.Solver
	cfg.HessianMode = meta.HessianMode
	return cfg
}

func printConstraints(cmd *cobra.Command, args []string) error {
	res, meta, err := loadRun(args[0])
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	d, err := study.NewDriver(runConfig(meta), log)
	if err != nil {
		return err
	}
	return d.PrintConstraintValues(res.Solution.Iterate, os.Stdout)
}

func plotRun(cmd *cobra.Command, args []string) error {
	res, meta, err := loadRun(args[0])
	if err != nil {
		return err
	}
	kinds := []iterate.Kind{iterate.States, iterate.Controls}
	if plotMultipliers {
		kinds = append(kinds, iterate.Multipliers)
	}
	out, err := report.PlotAll(res.Solution.Iterate, plotWidth, plotHeight, kinds...)
	if err != nil {
		return err
	}
	fmt.Println(report.Summary(*meta, res.Solution))
	fmt.Println(out)
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	res, _, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if outPath == "" {
		return storage.WriteCSV(os.Stdout, res.Solution.Iterate)
	}
	if err := storage.ExportCSV(outPath, res.Solution); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outPath)
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	res, meta, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if outPath == "" {
		return storage.WriteJSON(os.Stdout, meta, res.Solution)
	}
	if err := storage.ExportJSON(outPath, meta, res.Solution); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outPath)
	return nil
}
