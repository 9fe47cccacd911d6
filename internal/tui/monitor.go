// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"handbeat/internal/engine"
	"handbeat/internal/gesture"
	"handbeat/internal/synth"
)

const (
	refreshRate     = time.Second / 30
	spectrumColumns = 48
	barWidth        = 40
	strengthStep    = 0.1
)

var (
	labelStyle    = lipgloss.NewStyle().Width(8).Foreground(lipgloss.Color("#A0A0A0"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	spectrumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
)

var spectrumRunes = []rune(" ▁▂▃▄▅▆▇█")

// Engine is the engine surface the monitor reads and drives.
// *engine.AudioEngine implements it.
type Engine interface {
	Status() engine.Status
	Features() engine.Frame
	Bins() int
	Levels(dst []float64) error
	Gesture(ev gesture.Event) error
	SetCalm(calm bool) error
	SetPreset(name string) error
	SetTechno(on bool) error
}

var _ Engine = (*engine.AudioEngine)(nil)

type keyMap struct {
	Break    key.Binding
	Stronger key.Binding
	Weaker   key.Binding
	Calm     key.Binding
	Preset   key.Binding
	Techno   key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Break, k.Stronger, k.Weaker, k.Calm, k.Preset, k.Techno, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Break:    key.NewBinding(key.WithKeys("b", " "), key.WithHelp("b", "break")),
	Stronger: key.NewBinding(key.WithKeys("+", "=", "up"), key.WithHelp("+", "stronger")),
	Weaker:   key.NewBinding(key.WithKeys("-", "down"), key.WithHelp("-", "weaker")),
	Calm:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "calm")),
	Preset:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preset")),
	Techno:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "techno")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// MonitorModel shows live engine state and maps keys onto gestures.
type MonitorModel struct {
	eng      Engine
	status   engine.Status
	frame    engine.Frame
	levels   []float64
	strength float64
	bar      progress.Model
	help     help.Model
	err      error
}

// NewMonitorModel creates a monitor over eng.
func NewMonitorModel(eng Engine) MonitorModel {
	return MonitorModel{
		eng:      eng,
		strength: 1,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		),
		help: help.New(),
	}
}

func (m MonitorModel) Init() tea.Cmd {
	return tick()
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.sample()
		return m, tick()

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Break):
			if m.status.Break == "active" {
				m.err = m.eng.Gesture(gesture.Event{Phase: gesture.End})
			} else {
				m.err = m.eng.Gesture(gesture.Event{Phase: gesture.Start, Strength: m.strength})
			}
		case key.Matches(msg, keys.Stronger):
			m.setStrength(m.strength + strengthStep)
		case key.Matches(msg, keys.Weaker):
			m.setStrength(m.strength - strengthStep)
		case key.Matches(msg, keys.Calm):
			m.err = m.eng.SetCalm(!m.status.Calm)
		case key.Matches(msg, keys.Preset):
			m.err = m.eng.SetPreset(nextPreset(m.status.Preset))
		case key.Matches(msg, keys.Techno):
			m.err = m.eng.SetTechno(!m.status.Running)
		}
	}
	return m, nil
}

// setStrength updates the break strength and, during a break, sends it as
// a hold.
func (m *MonitorModel) setStrength(s float64) {
	m.strength = math.Round(math.Max(0, math.Min(1, s))*10) / 10
	if m.status.Break == "active" {
		m.err = m.eng.Gesture(gesture.Event{Phase: gesture.Hold, Strength: m.strength})
	}
}

func (m *MonitorModel) sample() {
	m.status = m.eng.Status()
	m.frame = m.eng.Features()
	if n := m.eng.Bins(); n > 0 {
		if len(m.levels) != n {
			m.levels = make([]float64, n)
		}
		if err := m.eng.Levels(m.levels); err != nil {
			m.levels = m.levels[:0]
		}
	}
}

// nextPreset returns the preset after name, wrapping around.
func nextPreset(name string) string {
	all := synth.Presets()
	for i, p := range all {
		if p.Name == name {
			return all[(i+1)%len(all)].Name
		}
	}
	return all[0].Name
}

func (m MonitorModel) View() string {
	var sb strings.Builder
	s := m.status

	sb.WriteString(titleStyle.Render("handbeat"))
	sb.WriteString("\n\n")

	state := "idle"
	if s.Ready {
		state = "playing"
	}
	fmt.Fprintf(&sb, "%s %s via %s, %.1f BPM, %d voices, t=%.1fs\n",
		labelStyle.Render("engine"), state, s.Backend, s.BPM, s.Voices, s.Time)

	techno := "off"
	if s.Running {
		techno = "on"
	}
	calm := ""
	if s.Calm {
		calm = ", calm"
	}
	fmt.Fprintf(&sb, "%s %s (%s%s)\n", labelStyle.Render("techno"), techno, s.Preset, calm)

	brk := fmt.Sprintf("%s, next strength %.1f", s.Break, m.strength)
	if s.Break == "active" {
		brk = activeStyle.Render(fmt.Sprintf("ACTIVE %.2f", s.Strength)) + fmt.Sprintf(", next strength %.1f", m.strength)
	}
	fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("break"), brk)
	if s.Recording {
		fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("record"), activeStyle.Render("●"))
	}
	sb.WriteString("\n")

	f := m.frame
	for _, row := range []struct {
		label string
		value float64
	}{
		{"bass", f.Bass},
		{"mid", f.Mid},
		{"treble", f.Treble},
		{"level", f.Level},
		{"kick", f.KickPulse},
	} {
		fmt.Fprintf(&sb, "%s %s %.2f\n", labelStyle.Render(row.label), m.bar.ViewAs(row.value), row.value)
	}

	sb.WriteString("\n")
	sb.WriteString(spectrumStyle.Render(Spectrum(m.levels, spectrumColumns)))
	sb.WriteString("\n\n")

	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(m.help.View(keys))
	return sb.String()
}

// Spectrum renders levels, each in [0,1], as one line of block runes with
// the given number of columns. Each column shows the peak of its bins.
func Spectrum(levels []float64, columns int) string {
	if len(levels) == 0 || columns <= 0 {
		return ""
	}
	if columns > len(levels) {
		columns = len(levels)
	}
	out := make([]rune, columns)
	top := len(spectrumRunes) - 1
	for c := range out {
		lo := c * len(levels) / columns
		hi := (c + 1) * len(levels) / columns
		var peak float64
		for _, v := range levels[lo:hi] {
			peak = math.Max(peak, v)
		}
		idx := int(math.Round(math.Max(0, math.Min(1, peak)) * float64(top)))
		out[c] = spectrumRunes[idx]
	}
	return string(out)
}

// RunMonitor runs the monitor until the user quits.
func RunMonitor(eng Engine) error {
	_, err := tea.NewProgram(NewMonitorModel(eng), tea.WithAltScreen()).Run()
	return err
}
