package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/trajopt/internal/iterate"
)

const (
	metadataFile = "metadata.json"
	solutionFile = "solution.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Dir returns the directory holding a run.
func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

// RunMetadata describes a stored solve. Column names and parameters are
// kept here so solution.csv can be read back without the problem.
type RunMetadata struct {
	ID            string             `json:"id"`
	Problem       string             `json:"problem"`
	Params        map[string]float64 `json:"params,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	Seed          int64              `json:"seed"`
	MeshPoints    int                `json:"num_mesh_points"`
	Transcription string             `json:"transcription"`
	Solver        string             `json:"solver"`
	HessianMode   int                `json:"hessian_sparsity_mode"`
	Guess         string             `json:"guess"`
	Elapsed       float64            `json:"elapsed_seconds"`

	Status     string  `json:"status"`
	Converged  bool    `json:"converged"`
	Objective  float64 `json:"objective"`
	Iterations int     `json:"iterations"`

	Columns        Columns   `json:"columns"`
	ParameterNames []string  `json:"parameter_names,omitempty"`
	Parameters     []float64 `json:"parameters,omitempty"`
}

// Save writes metadata.json and solution.csv for sol under a new run
// directory. Outcome, column and parameter fields of meta are filled from
// sol.
func (s *Store) Save(meta RunMetadata, sol *iterate.Solution) (string, error) {
	if sol == nil || sol.Empty() {
		return "", fmt.Errorf("storage: nothing to save")
	}
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", meta.Problem, now.UnixNano())
	runDir := s.Dir(runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = now
	meta.MeshPoints = sol.NumTimes()
	meta.Status = sol.Status
	meta.Converged = sol.Converged
	meta.Objective = sol.Objective
	meta.Iterations = sol.Iterations
	meta.Columns = ColumnsOf(sol.Iterate)
	meta.ParameterNames = sol.ParameterNames()
	meta.Parameters = sol.Parameters()

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, solutionFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, sol.Iterate); err != nil {
		return "", err
	}
	return runID, nil
}

// List returns the stored runs, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := readMetadata(filepath.Join(s.baseDir, entry.Name(), metadataFile))
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	return readMetadata(filepath.Join(s.Dir(runID), metadataFile))
}

// LoadSolution reads a stored run back into a Solution.
func (s *Store) LoadSolution(runID string) (*iterate.Solution, *RunMetadata, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	it, err := readSolutionCSV(filepath.Join(s.Dir(runID), solutionFile), meta)
	if err != nil {
		return nil, nil, err
	}
	sol := &iterate.Solution{
		Iterate:    it,
		Status:     meta.Status,
		Converged:  meta.Converged,
		Objective:  meta.Objective,
		Iterations: meta.Iterations,
	}
	return sol, meta, nil
}

func readMetadata(path string) (*RunMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &meta, nil
}

func readSolutionCSV(path string, meta *RunMetadata) (*iterate.Iterate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	it, err := ReadCSV(f, meta.Columns, meta.ParameterNames, meta.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return it, nil
}
