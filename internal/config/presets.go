package config

import "sort"

func preset(problem string, edit func(c *Config)) *Config {
	c := DefaultConfig()
	c.Problem = problem
	edit(c)
	return c
}

var Presets = map[string]map[string]*Config{
	"min_effort": {
		"coarse": preset("min_effort", func(c *Config) {
			c.MeshPoints = 10
		}),
		"fine": preset("min_effort", func(c *Config) {
			c.MeshPoints = 100
			c.HessianMode = 1
		}),
		"euler": preset("min_effort", func(c *Config) {
			c.Transcription = "euler"
			c.MeshPoints = 40
		}),
	},
	"sliding_mass": {
		"tight": preset("sliding_mass", func(c *Config) {
			c.Params = map[string]float64{"max_speed": 1.05}
			c.MeshPoints = 40
			c.HessianMode = 1
		}),
		"loose": preset("sliding_mass", func(c *Config) {
			c.Params = map[string]float64{"max_speed": 3}
			c.MeshPoints = 30
		}),
		"heavy": preset("sliding_mass", func(c *Config) {
			c.Params = map[string]float64{"mass": 5, "max_force": 200}
			c.MeshPoints = 30
			c.Solver = "auglag"
		}),
	},
	"pendulum": {
		"swing_up": preset("pendulum", func(c *Config) {
			c.MeshPoints = 40
			c.HessianMode = 1
			c.Guess = GuessTimeStepping
			c.Integrator = "rk4"
		}),
		"fast": preset("pendulum", func(c *Config) {
			c.Params = map[string]float64{"tf": 2, "max_torque": 20}
			c.MeshPoints = 40
			c.HessianMode = 1
		}),
		"weak": preset("pendulum", func(c *Config) {
			c.Params = map[string]float64{"tf": 5, "max_torque": 4}
			c.MeshPoints = 60
			c.HessianMode = 1
			c.Parallel = true
		}),
	},
	"infeasible": {
		"demo": preset("infeasible", func(c *Config) {
			c.MeshPoints = 10
			c.Settings.MaxIterations = 50
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(problem, name string) *Config {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	cfg, ok := problemPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(problem string) []string {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(problemPresets))
	for name := range problemPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
