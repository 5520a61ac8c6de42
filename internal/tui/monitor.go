package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/trajopt/internal/iterate"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/report"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("240")).Padding(0, 2)
)

const historyCapacity = 400

var ErrInterrupted = errors.New("tui: interrupted before the solve finished")

// IterationMsg carries one solver iteration into the monitor.
type IterationMsg nlp.Iteration

type doneMsg struct {
	sol *iterate.Solution
	err error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Monitor renders the iteration history of a running solve.
type Monitor struct {
	title   string
	history []nlp.Iteration
	count   int
	start   time.Time
	elapsed time.Duration
	frame   int
	done    bool
	quit    bool
	sol     *iterate.Solution
	err     error
}

func NewMonitor(title string) Monitor {
	return Monitor{
		title:   title,
		history: make([]nlp.Iteration, 0, historyCapacity),
		start:   time.Now(),
	}
}

func (m Monitor) Init() tea.Cmd { return tick() }

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quit = true
			return m, tea.Quit
		}
	case IterationMsg:
		m.count++
		m.history = append(m.history, nlp.Iteration(msg))
		if len(m.history) > historyCapacity {
			m.history = m.history[1:]
		}
	case doneMsg:
		m.done = true
		m.sol, m.err = msg.sol, msg.err
		m.elapsed = time.Since(m.start)
		return m, tea.Quit
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		m.elapsed = time.Since(m.start)
		return m, tick()
	}
	return m, nil
}

func (m Monitor) status() string {
	switch {
	case m.err != nil:
		return yellow.Render("error: " + m.err.Error())
	case m.done && m.sol.Success():
		return green.Render(m.sol.Status)
	case m.done:
		return yellow.Render(m.sol.Status)
	}
	return cyan.Render(spinner[m.frame%len(spinner)] + " solving")
}

func (m Monitor) View() string {
	var s strings.Builder
	s.WriteString(white.Bold(true).Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	s.WriteString(labelStyle.Render("Iterations") + white.Render(fmt.Sprintf("%d", m.count)) + "\n")
	if n := len(m.history); n > 0 {
		last := m.history[n-1]
		s.WriteString(labelStyle.Render("Objective") + white.Render(fmt.Sprintf("%.8g", last.Objective)) + "\n")
		s.WriteString(labelStyle.Render("Primal inf") + white.Render(fmt.Sprintf("%.3e", last.PrimalInfeasibility)) + "\n")
		s.WriteString(labelStyle.Render("Dual inf") + white.Render(fmt.Sprintf("%.3e", last.DualInfeasibility)) + "\n")
		s.WriteString(labelStyle.Render("Step") + white.Render(fmt.Sprintf("%.3e  alpha %.3g", last.StepNorm, last.StepLength)) + "\n")
	}
	s.WriteString(labelStyle.Render("Elapsed") + white.Render(m.elapsed.Round(10*time.Millisecond).String()) + "\n")

	if chart := report.Convergence(m.history, 50, 8); chart != "" {
		s.WriteString("\n" + chart + "\n")
	}
	s.WriteString("\n" + dimmer.Render("q: quit"))
	return panelStyle.Render(s.String()) + "\n"
}

// Result returns the outcome once the solve has finished.
func (m Monitor) Result() (*iterate.Solution, error) {
	if !m.done {
		return nil, ErrInterrupted
	}
	return m.sol, m.err
}

// Solve runs solve in the background and renders its progress until it
// returns. The observer passed to solve feeds the monitor. Quitting early
// returns ErrInterrupted and leaves the solve to finish on its own.
func Solve(title string, solve func(nlp.Observer) (*iterate.Solution, error), opts ...tea.ProgramOption) (*iterate.Solution, error) {
	p := tea.NewProgram(NewMonitor(title), opts...)
	go func() {
		sol, err := solve(func(it nlp.Iteration) { p.Send(IterationMsg(it)) })
		p.Send(doneMsg{sol: sol, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(Monitor).Result()
}
