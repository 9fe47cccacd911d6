// SPDX-License-Identifier: MIT
//
// Package tui holds the terminal interfaces: an output device picker and a
// live engine monitor.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"handbeat/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

// SampleRates are the rates offered on the configuration screen.
var SampleRates = []float64{44100, 48000, 88200, 96000}

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// chrome is the title and help rows around the viewport.
const chrome = 4

type pickerKeys struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Back   key.Binding
	Quit   key.Binding
	screen ScreenType
}

func (k pickerKeys) ShortHelp() []key.Binding {
	if k.screen == ConfigScreen {
		return []key.Binding{k.Up, k.Down, k.Select, k.Back, k.Quit}
	}
	return []key.Binding{k.Up, k.Down, k.Select, k.Quit}
}

func (k pickerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newPickerKeys() pickerKeys {
	return pickerKeys{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Selection is the device and rate chosen in the picker.
type Selection struct {
	Device     audio.Device
	SampleRate float64
}

// DeviceListModel is the Bubble Tea model for picking an output device.
type DeviceListModel struct {
	fetch        func() ([]audio.Device, error)
	devices      []audio.Device
	device       int
	rate         int
	activeScreen ScreenType
	chosen       *Selection
	err          error

	keys     pickerKeys
	help     help.Model
	viewport viewport.Model
	ready    bool
}

type devicesMsg []audio.Device

type errMsg struct{ err error }

// NewDeviceListModel creates a picker over the devices fetch returns.
func NewDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{
		fetch:        fetch,
		activeScreen: ListScreen,
		keys:         newPickerKeys(),
		help:         help.New(),
	}
}

// Init fetches the device list.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg(devices)
	}
}

// Selected returns the confirmed choice, if any.
func (m DeviceListModel) Selected() (Selection, bool) {
	if m.chosen == nil {
		return Selection{}, false
	}
	return *m.chosen, true
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chrome)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chrome
		}
		m.help.Width = msg.Width

	case devicesMsg:
		m.devices = msg

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		var done bool
		if m.activeScreen == ListScreen {
			m.updateList(msg)
		} else {
			done = m.updateConfig(msg)
		}
		m.keys.screen = m.activeScreen
		if done {
			return m, tea.Quit
		}
	}

	m.refresh()
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DeviceListModel) updateList(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.device = max(m.device-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.device = max(min(m.device+1, len(m.devices)-1), 0)
	case key.Matches(msg, m.keys.Select):
		if len(m.devices) == 0 {
			return
		}
		m.activeScreen = ConfigScreen
		m.rate = rateIndex(m.devices[m.device].DefaultSampleRate)
	}
}

// updateConfig reports whether the user confirmed a selection.
func (m *DeviceListModel) updateConfig(msg tea.KeyMsg) bool {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.activeScreen = ListScreen
	case key.Matches(msg, m.keys.Up):
		m.rate = max(m.rate-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.rate = min(m.rate+1, len(SampleRates)-1)
	case key.Matches(msg, m.keys.Select):
		m.chosen = &Selection{Device: m.devices[m.device], SampleRate: SampleRates[m.rate]}
		return true
	}
	return false
}

// rateIndex finds rate in SampleRates, falling back to the first entry.
func rateIndex(rate float64) int {
	for i, r := range SampleRates {
		if r == rate {
			return i
		}
	}
	return 0
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen && len(m.devices) > 0 {
		m.viewport.SetContent(m.renderRates())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}
	title := "Output Devices"
	if m.activeScreen == ConfigScreen {
		title = "Sample Rate: " + m.devices[m.device].Name
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", titleStyle.Render(title), m.viewport.View(), m.help.View(m.keys))
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No output devices found."
	}
	var sb strings.Builder
	for i, d := range m.devices {
		card := deviceCard(d)
		if i == m.device {
			card = highlightStyle.Render(card)
		}
		sb.WriteString(card)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func deviceCard(d audio.Device) string {
	lines := []string{fmt.Sprintf("[%d] %s (%s)", d.ID, d.Name, d.Type())}
	if d.HostAPI != "" {
		lines = append(lines, "    Host API: "+d.HostAPI)
	}
	lines = append(lines,
		fmt.Sprintf("    Output channels: %d, default rate: %.0f Hz", d.MaxOutputChannels, d.DefaultSampleRate),
		fmt.Sprintf("    Latency: %.1f-%.1f ms", ms(d.LowOutputLatency.Seconds()), ms(d.HighOutputLatency.Seconds())),
	)
	return strings.Join(lines, "\n")
}

func ms(seconds float64) float64 { return seconds * 1000 }

func (m DeviceListModel) renderRates() string {
	var sb strings.Builder
	for i, rate := range SampleRates {
		line := fmt.Sprintf("    %.0f Hz", rate)
		if i == m.rate {
			line = highlightStyle.Render(fmt.Sprintf("  ▶ %.0f Hz", rate))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// PickDevice runs the picker over the host's output devices. ok is false
// when the user quit without choosing.
func PickDevice() (sel Selection, ok bool, err error) {
	final, err := tea.NewProgram(
		NewDeviceListModel(audio.OutputDevices),
		tea.WithAltScreen(),
	).Run()
	if err != nil {
		return Selection{}, false, err
	}
	m := final.(DeviceListModel)
	if m.err != nil {
		return Selection{}, false, m.err
	}
	sel, ok = m.Selected()
	return sel, ok, nil
}
