// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"handbeat/internal/config"
	"handbeat/internal/engine"
)

func parse(t *testing.T, args ...string) *Options {
	t.Helper()
	var out bytes.Buffer
	opts, err := ParseArgs(args, &out)
	if err != nil {
		t.Fatalf("ParseArgs(%v): %v", args, err)
	}
	return opts
}

func TestParseArgsCommands(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, CommandRun},
		{[]string{"monitor"}, CommandMonitor},
		{[]string{"list"}, CommandList},
		{[]string{"list", "-i"}, CommandPick},
		{[]string{"presets"}, CommandPresets},
		{[]string{"midi"}, CommandMIDI},
		{[]string{"render"}, CommandRender},
		{[]string{"--help"}, CommandNone},
		{[]string{"--version"}, CommandNone},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			if got := parse(t, tt.args...).Command; got != tt.want {
				t.Errorf("Command = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseArgsFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handbeat.yaml")
	yaml := "engine:\n  bpm: 124\n  preset: " + config.DefaultPreset + "\naudio:\n  backend: oto\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := parse(t, "--config", path, "--bpm", "131", "--calm=false", "--no-techno",
		"--ws", "127.0.0.1:9000", "--midi-port", "nano", "--seed", "7")
	c := opts.Config
	if c.Engine.BPM != 131 {
		t.Errorf("bpm = %v, want the flag value 131", c.Engine.BPM)
	}
	if c.Audio.Backend != config.BackendOto {
		t.Errorf("backend = %q, want the file value", c.Audio.Backend)
	}
	if c.Engine.Calm || c.Engine.AutoTechno {
		t.Errorf("calm = %v auto = %v, want both off", c.Engine.Calm, c.Engine.AutoTechno)
	}
	if !c.Transport.WebSocketEnabled || c.Transport.WebSocketAddr != "127.0.0.1:9000" {
		t.Errorf("transport = %+v", c.Transport)
	}
	if !c.MIDI.Enabled || c.MIDI.InPort != "nano" {
		t.Errorf("midi = %+v", c.MIDI)
	}
	if c.Engine.Seed != 7 {
		t.Errorf("seed = %d, want 7", c.Engine.Seed)
	}
	if p := opts.Params(); p.Engine.BPM != 131 {
		t.Errorf("resolved bpm = %v", p.Engine.BPM)
	}
}

func TestParseArgsMissingConfig(t *testing.T) {
	var out bytes.Buffer
	_, err := ParseArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "presets"}, &out)
	if err == nil {
		t.Fatal("a missing config file was accepted")
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := [][]string{
		{"--backend", "jack"},
		{"--udp", "nowhere"},
		{"render", "extra"},
		{"--no-such-flag"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			var out bytes.Buffer
			if _, err := ParseArgs(args, &out); err == nil {
				t.Errorf("ParseArgs(%v) succeeded", args)
			}
		})
	}
}

func TestParseArgsRenderOptions(t *testing.T) {
	opts := parse(t, "render", "-o", "out.wav", "--duration", "3s", "--break-at", "1s", "--strength", "0.5")
	ro := opts.Render
	if ro.Output != "out.wav" || ro.Duration != 3*time.Second || ro.BreakAt != time.Second || ro.Strength != 0.5 {
		t.Errorf("render options = %+v", ro)
	}
	if ro.BreakFor != 4*time.Second {
		t.Errorf("break-for default = %s, want 4s", ro.BreakFor)
	}
}

func TestRenderWritesWAV(t *testing.T) {
	c := config.Default()
	c.Engine.Seed = 5
	p := c.Resolve()
	out := filepath.Join(t.TempDir(), "nested", "render.wav")

	path, err := Render(p, RenderOptions{
		Output:   out,
		Duration: time.Second,
		BreakAt:  300 * time.Millisecond,
		BreakFor: 400 * time.Millisecond,
		Strength: 1,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if path != out {
		t.Errorf("path = %q, want %q", path, out)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatal("render is not a valid WAV file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	frames := len(buf.Data) / p.Audio.OutputChannels
	want := int(p.Audio.SampleRate * 0.01 * 100)
	if frames != want {
		t.Errorf("frames = %d, want %d", frames, want)
	}
	var peak int
	for _, v := range buf.Data {
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	if peak == 0 {
		t.Error("render is silent")
	}
}

func TestRenderRejectsEmptyDuration(t *testing.T) {
	if _, err := Render(config.Default().Resolve(), RenderOptions{Output: filepath.Join(t.TempDir(), "x.wav")}); err == nil {
		t.Error("zero duration accepted")
	}
}

func TestSessionServesStatus(t *testing.T) {
	c := config.Default()
	c.Audio.Backend = config.BackendNull
	c.Transport.WebSocketEnabled = true
	c.Transport.WebSocketAddr = "127.0.0.1:0"
	c.Transport.UDPEnabled = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := Start(ctx, c.Resolve(), true, engine.WithSeed(1))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var st engine.Status
	for {
		resp, err := http.Get("http://" + s.Addr() + "/status")
		if err != nil {
			t.Fatalf("GET /status: %v", err)
		}
		err = json.NewDecoder(resp.Body).Decode(&st)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if st.Ready || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !st.Ready || st.Backend != config.BackendNull {
		t.Errorf("status = %+v, want a ready null output", st)
	}

	if _, err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait after Close: %v", err)
	}
}
