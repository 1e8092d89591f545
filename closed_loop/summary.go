package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"boost-regulator-core/regulator"
)

// Stats accumulates per-run tick counts.
type Stats struct {
	Ticks    int
	PerState map[regulator.State]int
	Clamped  int
	Faults   int
	Last     regulator.TickResult
}

func NewStats() *Stats {
	return &Stats{PerState: make(map[regulator.State]int, len(regulator.AllStates))}
}

func (s *Stats) Record(res regulator.TickResult) {
	s.Ticks++
	s.PerState[res.State]++
	if res.Clamped {
		s.Clamped++
	}
	if res.Fault != nil {
		s.Faults++
	}
	s.Last = res
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	nameStyle  = lipgloss.NewStyle().Width(22)
	countStyle = lipgloss.NewStyle().Width(8).Align(lipgloss.Right)
)

func stateColor(st regulator.State) lipgloss.Color {
	switch st.Severity() {
	case 0:
		return lipgloss.Color("10")
	case 1:
		return lipgloss.Color("11")
	case 2:
		return lipgloss.Color("208")
	case 3:
		return lipgloss.Color("9")
	default:
		return lipgloss.Color("8")
	}
}

// Render formats the residency table and final operating point.
func (s *Stats) Render() string {
	rows := []string{titleStyle.Render("regulation summary")}
	for _, st := range regulator.AllStates {
		n := s.PerState[st]
		if n == 0 {
			continue
		}
		pct := 100 * float64(n) / float64(s.Ticks)
		name := nameStyle.Foreground(stateColor(st)).Render(st.String())
		rows = append(rows, name+countStyle.Render(fmt.Sprint(n))+countStyle.Render(fmt.Sprintf("%.1f%%", pct)))
	}
	rows = append(rows,
		fmt.Sprintf("ticks=%d clamped=%d faults=%d", s.Ticks, s.Clamped, s.Faults),
		fmt.Sprintf("final: state=%s vout=%.3fV dc=%.3f%% reg=%d",
			s.Last.State, s.Last.Measured, s.Last.DutyCycle, s.Last.Counts),
	)
	return strings.Join(rows, "\n")
}
