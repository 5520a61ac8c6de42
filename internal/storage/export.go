package storage

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/san-kum/trajopt/internal/iterate"
)

type Series struct {
	Kind   string    `json:"kind"`
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

type ExportData struct {
	Problem       string             `json:"problem"`
	Transcription string             `json:"transcription,omitempty"`
	Solver        string             `json:"solver,omitempty"`
	Status        string             `json:"status"`
	Converged     bool               `json:"converged"`
	Objective     *float64           `json:"objective"`
	Iterations    int                `json:"iterations"`
	Time          []float64          `json:"time"`
	Series        []Series           `json:"series"`
	Parameters    map[string]float64 `json:"parameters,omitempty"`
}

func exportData(meta *RunMetadata, sol *iterate.Solution) ExportData {
	data := ExportData{
		Status:     sol.Status,
		Converged:  sol.Converged,
		Iterations: sol.Iterations,
		Time:       sol.Time(),
	}
	if meta != nil {
		data.Problem = meta.Problem
		data.Transcription = meta.Transcription
		data.Solver = meta.Solver
	}
	if !math.IsNaN(sol.Objective) && !math.IsInf(sol.Objective, 0) {
		obj := sol.Objective
		data.Objective = &obj
	}
	for _, k := range []iterate.Kind{iterate.States, iterate.Controls, iterate.Adjuncts, iterate.Multipliers} {
		for _, name := range sol.Names(k) {
			values, _ := sol.Column(k, name)
			data.Series = append(data.Series, Series{Kind: k.String(), Name: name, Values: values})
		}
	}
	if names := sol.ParameterNames(); len(names) > 0 {
		data.Parameters = make(map[string]float64, len(names))
		for i, v := range sol.Parameters() {
			data.Parameters[names[i]] = v
		}
	}
	return data
}

// WriteJSON writes sol as indented JSON. meta may be nil.
func WriteJSON(w io.Writer, meta *RunMetadata, sol *iterate.Solution) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportData(meta, sol))
}

func ExportJSON(path string, meta *RunMetadata, sol *iterate.Solution) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, meta, sol)
}

func ExportCSV(path string, sol *iterate.Solution) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteCSV(file, sol.Iterate)
}
