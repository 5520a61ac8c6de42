package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/problems"
)

type state int

const (
	stateProblem state = iota
	statePreset
	stateConfig
)

const (
	defaultPreset = "default"
	meshField     = "num_mesh_points"
)

// Picker walks through problem, preset and parameter choices and yields a
// study configuration.
type Picker struct {
	state  state
	cursor int

	problems []string
	presets  []string
	selected string

	cfg         *config.Config
	fields      []string
	fieldCursor int
	editing     bool
	editBuf     string
	err         string

	chosen bool
}

func NewPicker() Picker {
	return Picker{problems: problems.List()}
}

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	if key.String() == "ctrl+c" {
		return p, tea.Quit
	}
	switch p.state {
	case stateProblem:
		return p.problemKey(key)
	case statePreset:
		return p.presetKey(key)
	case stateConfig:
		return p.configKey(key)
	}
	return p, nil
}

func move(cursor, n int, key string) int {
	switch key {
	case "up", "k":
		if cursor > 0 {
			cursor--
		}
	case "down", "j":
		if cursor < n-1 {
			cursor++
		}
	}
	return cursor
}

func (p Picker) problemKey(msg tea.KeyMsg) (Picker, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return p, tea.Quit
	case "enter", " ":
		p.selected = p.problems[p.cursor]
		p.presets = append([]string{defaultPreset}, config.ListPresets(p.selected)...)
		p.state = statePreset
		p.cursor = 0
	default:
		p.cursor = move(p.cursor, len(p.problems), msg.String())
	}
	return p, nil
}

func (p Picker) presetKey(msg tea.KeyMsg) (Picker, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		p.state = stateProblem
		p.cursor = 0
	case "enter", " ":
		name := p.presets[p.cursor]
		if name == defaultPreset {
			p.cfg = config.DefaultConfig()
			p.cfg.Problem = p.selected
		} else {
			p.cfg = config.GetPreset(p.selected, name)
		}
		p.setFields()
		p.state = stateConfig
	default:
		p.cursor = move(p.cursor, len(p.presets), msg.String())
	}
	return p, nil
}

func (p *Picker) setFields() {
	defaults, _ := problems.Defaults(p.selected)
	p.fields = p.fields[:0]
	for name := range defaults {
		p.fields = append(p.fields, name)
	}
	sort.Strings(p.fields)
	p.fields = append(p.fields, meshField)
	p.fieldCursor = 0
}

func (p Picker) value(field string) float64 {
	if field == meshField {
		return float64(p.cfg.MeshPoints)
	}
	if v, ok := p.cfg.Params[field]; ok {
		return v
	}
	defaults, _ := problems.Defaults(p.selected)
	return defaults[field]
}

func (p *Picker) set(field string, v float64) {
	if field == meshField {
		p.cfg.MeshPoints = int(v)
		return
	}
	if p.cfg.Params == nil {
		p.cfg.Params = map[string]float64{}
	}
	p.cfg.Params[field] = v
}

func (p Picker) configKey(msg tea.KeyMsg) (Picker, tea.Cmd) {
	field := p.fields[p.fieldCursor]
	if p.editing {
		switch msg.String() {
		case "enter":
			if v, err := strconv.ParseFloat(p.editBuf, 64); err == nil {
				p.set(field, v)
			}
			p.editing = false
			p.editBuf = ""
		case "esc":
			p.editing = false
			p.editBuf = ""
		case "backspace":
			if len(p.editBuf) > 0 {
				p.editBuf = p.editBuf[:len(p.editBuf)-1]
			}
		default:
			if len(msg.String()) == 1 {
				c := msg.String()[0]
				if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == 'e' {
					p.editBuf += string(c)
				}
			}
		}
		return p, nil
	}

	switch msg.String() {
	case "q", "esc":
		p.state = statePreset
		p.err = ""
	case "enter", " ":
		p.editing = true
		p.editBuf = strconv.FormatFloat(p.value(field), 'g', -1, 64)
	case "s":
		if err := p.cfg.Validate(); err != nil {
			p.err = err.Error()
			return p, nil
		}
		p.chosen = true
		return p, tea.Quit
	default:
		p.fieldCursor = move(p.fieldCursor, len(p.fields), msg.String())
	}
	return p, nil
}

// Config returns the chosen configuration, or nil if the picker was left
// without starting a solve.
func (p Picker) Config() *config.Config {
	if !p.chosen {
		return nil
	}
	return p.cfg
}

func (p Picker) View() string {
	var s strings.Builder
	s.WriteString(cyan.Bold(true).Render("TRAJOPT") + "\n\n")

	switch p.state {
	case stateProblem:
		for i, name := range p.problems {
			desc, _ := problems.Describe(name)
			line := fmt.Sprintf("%-14s %s", name, dim.Render(desc))
			if i == p.cursor {
				s.WriteString(cyan.Render("> ") + white.Render(line) + "\n")
			} else {
				s.WriteString("  " + dim.Render(line) + "\n")
			}
		}
		s.WriteString("\n" + dimmer.Render("↑↓ select  enter choose  q quit"))
	case statePreset:
		s.WriteString(white.Render(p.selected) + "\n\n")
		for i, name := range p.presets {
			if i == p.cursor {
				s.WriteString(cyan.Render("> "+name) + "\n")
			} else {
				s.WriteString("  " + dim.Render(name) + "\n")
			}
		}
		s.WriteString("\n" + dimmer.Render("↑↓ select  enter choose  esc back"))
	case stateConfig:
		s.WriteString(white.Render(fmt.Sprintf("%s  %s/%s, %s", p.selected, p.cfg.Transcription, p.cfg.Solver, p.cfg.Guess)) + "\n\n")
		for i, field := range p.fields {
			val := strconv.FormatFloat(p.value(field), 'g', -1, 64)
			if i == p.fieldCursor && p.editing {
				val = p.editBuf + "_"
			}
			line := fmt.Sprintf("%-16s %s", field, val)
			if i == p.fieldCursor {
				s.WriteString(cyan.Render("> ") + white.Render(line) + "\n")
			} else {
				s.WriteString("  " + dim.Render(line) + "\n")
			}
		}
		if p.err != "" {
			s.WriteString("\n" + yellow.Render(p.err) + "\n")
		}
		s.WriteString("\n" + dimmer.Render("↑↓ select  enter edit  s solve  esc back"))
	}
	return s.String() + "\n"
}

// Pick runs the picker and returns the chosen configuration, or nil.
func Pick(opts ...tea.ProgramOption) (*config.Config, error) {
	final, err := tea.NewProgram(NewPicker(), opts...).Run()
	if err != nil {
		return nil, err
	}
	return final.(Picker).Config(), nil
}
