package study

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/dircol"
	"github.com/san-kum/trajopt/internal/storage"
)

// Batch is a scripted sequence of studies.
type Batch struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Studies     []Entry `yaml:"studies"`
}

// Entry is one study in a batch. Preset, written "problem/name", is the
// starting point; Config overrides individual fields of it.
type Entry struct {
	Name   string    `yaml:"name"`
	Preset string    `yaml:"preset"`
	Config yaml.Node `yaml:"config"`
	Save   bool      `yaml:"save"`
}

func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var batch Batch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &batch, nil
}

// Resolve returns the configuration of the entry.
func (e *Entry) Resolve() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if e.Preset != "" {
		problem, name, ok := strings.Cut(e.Preset, "/")
		if !ok {
			return nil, fmt.Errorf("%w: preset %q is not problem/name", config.ErrInvalid, e.Preset)
		}
		if cfg = config.GetPreset(problem, name); cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %q", config.ErrInvalid, e.Preset)
		}
	}
	if !e.Config.IsZero() {
		if err := e.Config.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
	}
	return cfg, cfg.Validate()
}

// Step is reported after every study of a batch.
type Step struct {
	Index  int
	Total  int
	Name   string
	Result *Result
	RunID  string
}

// RunBatch runs the studies in order and stops at the first error. Entries
// marked save are written to st when it is not nil.
func RunBatch(ctx context.Context, batch *Batch, st *storage.Store, log *logrus.Entry, progress func(Step), opts ...dircol.Option) ([]*Result, error) {
	results := make([]*Result, 0, len(batch.Studies))

	for i := range batch.Studies {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		e := &batch.Studies[i]
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("study %d", i+1)
		}

		cfg, err := e.Resolve()
		if err != nil {
			return results, fmt.Errorf("%s: %w", name, err)
		}
		entryLog := log
		if entryLog != nil {
			entryLog = entryLog.WithField("study", name)
		}
		res, err := Run(cfg, entryLog, opts...)
		if err != nil {
			return results, fmt.Errorf("%s: %w", name, err)
		}
		results = append(results, res)

		step := Step{Index: i, Total: len(batch.Studies), Name: name, Result: res}
		if e.Save && st != nil {
			if step.RunID, err = Save(st, res); err != nil {
				return results, fmt.Errorf("%s: save: %w", name, err)
			}
		}
		if progress != nil {
			progress(step)
		}
	}

	return results, nil
}
