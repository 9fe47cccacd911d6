// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"handbeat/internal/analysis"
	"handbeat/internal/audio"
	"handbeat/internal/engine"
	"handbeat/internal/gesture"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testDevices() ([]audio.Device, error) {
	return []audio.Device{
		{ID: 0, Name: "Built-in", MaxOutputChannels: 2, DefaultSampleRate: 44100},
		{ID: 3, Name: "Interface", MaxOutputChannels: 8, DefaultSampleRate: 48000},
	}, nil
}

func send(t *testing.T, m tea.Model, msgs ...tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		m, cmd = m.Update(msg)
	}
	return m, cmd
}

func TestDeviceListPicksDeviceAndRate(t *testing.T) {
	m := NewDeviceListModel(testDevices)
	devices := m.Init()()

	final, cmd := send(t, m,
		tea.WindowSizeMsg{Width: 80, Height: 24},
		devices,
		keyMsg("down"),
		keyMsg("enter"),
		keyMsg("down"),
		keyMsg("enter"),
	)
	if cmd == nil {
		t.Fatal("confirming a device did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("confirming a device did not quit")
	}
	sel, ok := final.(DeviceListModel).Selected()
	if !ok {
		t.Fatal("no selection after confirming")
	}
	if sel.Device.ID != 3 {
		t.Errorf("device = %d, want 3", sel.Device.ID)
	}
	// The config screen starts at the device default, 48000.
	if sel.SampleRate != 88200 {
		t.Errorf("sample rate = %v, want 88200", sel.SampleRate)
	}
}

func TestDeviceListBackAndQuit(t *testing.T) {
	m := NewDeviceListModel(testDevices)
	final, _ := send(t, m,
		tea.WindowSizeMsg{Width: 80, Height: 24},
		m.Init()(),
		keyMsg("enter"),
		keyMsg("esc"),
	)
	dl := final.(DeviceListModel)
	if dl.activeScreen != ListScreen {
		t.Errorf("screen = %v after esc, want list", dl.activeScreen)
	}
	if !strings.Contains(dl.View(), "Built-in") {
		t.Errorf("list view missing device:\n%s", dl.View())
	}
	_, cmd := send(t, dl, keyMsg("q"))
	if cmd == nil {
		t.Fatal("q did not quit")
	}
	if _, ok := dl.Selected(); ok {
		t.Error("selection set without confirming")
	}
}

func TestDeviceListError(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) { return nil, errors.New("no host") })
	final, _ := send(t, m, m.Init()())
	if v := final.View(); !strings.Contains(v, "no host") {
		t.Errorf("view = %q, want the error", v)
	}
}

type fakeEngine struct {
	status   engine.Status
	frame    engine.Frame
	levels   []float64
	gestures []gesture.Event
	calm     []bool
	presets  []string
	techno   []bool
}

func (f *fakeEngine) Status() engine.Status  { return f.status }
func (f *fakeEngine) Features() engine.Frame { return f.frame }
func (f *fakeEngine) Bins() int              { return len(f.levels) }

func (f *fakeEngine) Levels(dst []float64) error {
	copy(dst, f.levels)
	return nil
}

func (f *fakeEngine) Gesture(ev gesture.Event) error {
	f.gestures = append(f.gestures, ev)
	return nil
}

func (f *fakeEngine) SetCalm(calm bool) error {
	f.calm = append(f.calm, calm)
	return nil
}

func (f *fakeEngine) SetPreset(name string) error {
	f.presets = append(f.presets, name)
	return nil
}

func (f *fakeEngine) SetTechno(on bool) error {
	f.techno = append(f.techno, on)
	return nil
}

func TestMonitorKeys(t *testing.T) {
	f := &fakeEngine{status: engine.Status{Break: "idle", Preset: "unknown", Running: true}}
	var m tea.Model = NewMonitorModel(f)
	m, _ = send(t, m, tickMsg{}, keyMsg("-"), keyMsg("b"))

	if len(f.gestures) != 1 || f.gestures[0].Phase != gesture.Start || f.gestures[0].Strength != 0.9 {
		t.Fatalf("gestures = %+v, want start at 0.9", f.gestures)
	}

	f.status.Break = "active"
	m, _ = send(t, m, tickMsg{}, keyMsg("+"), keyMsg("b"))
	if len(f.gestures) != 3 {
		t.Fatalf("gestures = %+v, want hold then end", f.gestures)
	}
	if f.gestures[1].Phase != gesture.Hold || f.gestures[1].Strength != 1 {
		t.Errorf("hold = %+v, want strength 1", f.gestures[1])
	}
	if f.gestures[2].Phase != gesture.End {
		t.Errorf("last gesture = %v, want end", f.gestures[2].Phase)
	}

	send(t, m, keyMsg("c"), keyMsg("t"), keyMsg("p"))
	if len(f.calm) != 1 || !f.calm[0] {
		t.Errorf("calm = %v, want [true]", f.calm)
	}
	if len(f.techno) != 1 || f.techno[0] {
		t.Errorf("techno = %v, want [false]", f.techno)
	}
	if len(f.presets) != 1 || f.presets[0] == "" {
		t.Errorf("presets = %v, want one name", f.presets)
	}
}

func TestMonitorView(t *testing.T) {
	f := &fakeEngine{
		status: engine.Status{Ready: true, Backend: "null", Break: "active", Strength: 0.5, BPM: 128},
		frame:  engine.Frame{Features: analysis.Features{Bass: 0.5, KickPulse: 1}},
		levels: []float64{0, 0.5, 1, 1},
	}
	m, _ := send(t, NewMonitorModel(f), tickMsg{})
	v := m.View()
	for _, want := range []string{"128.0 BPM", "ACTIVE 0.50", "kick", "null"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestNextPresetWraps(t *testing.T) {
	first := nextPreset("")
	seen := map[string]bool{first: true}
	name := first
	for i := 0; i < 100; i++ {
		name = nextPreset(name)
		if name == first {
			return
		}
		seen[name] = true
	}
	t.Fatalf("presets never wrapped, saw %d", len(seen))
}

func TestSpectrum(t *testing.T) {
	tests := []struct {
		name    string
		levels  []float64
		columns int
		want    string
	}{
		{"empty", nil, 8, ""},
		{"one per column", []float64{0, 0.5, 1}, 3, " ▄█"},
		{"peak of group", []float64{0, 1, 0, 0}, 2, "█ "},
		{"clamped", []float64{-1, 2}, 2, " █"},
		{"more columns than bins", []float64{1}, 4, "█"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Spectrum(tt.levels, tt.columns)
			if got != tt.want {
				t.Errorf("Spectrum() = %q, want %q", got, tt.want)
			}
			if n := utf8.RuneCountInString(got); tt.want != "" && n != utf8.RuneCountInString(tt.want) {
				t.Errorf("columns = %d", n)
			}
		})
	}
}
