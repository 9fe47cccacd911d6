// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

func setupPortAudio(t *testing.T) {
	t.Helper()
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := Terminate(); err != nil {
			t.Fatalf("Failed to terminate PortAudio: %v", err)
		}
	})
}

// fakeDevices swaps the PortAudio device table for the duration of a test.
func fakeDevices(t *testing.T, infos []*portaudio.DeviceInfo, err error) {
	t.Helper()
	orig, origDefault := paDevicesFunc, paDefaultOutputFunc
	t.Cleanup(func() { paDevicesFunc, paDefaultOutputFunc = orig, origDefault })
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, err }
	paDefaultOutputFunc = func() (*portaudio.DeviceInfo, error) {
		if err != nil {
			return nil, err
		}
		for _, d := range infos {
			if d.MaxOutputChannels > 0 {
				return d, nil
			}
		}
		return nil, fmt.Errorf("mock: no outputs")
	}
}

var testInfos = []*portaudio.DeviceInfo{
	{Name: "Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
	{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100,
		DefaultLowOutputLatency: 5 * time.Millisecond, DefaultHighOutputLatency: 20 * time.Millisecond,
		HostApi: &portaudio.HostApiInfo{Name: "Core Audio"}},
	{Name: "Interface", MaxInputChannels: 8, MaxOutputChannels: 8, DefaultSampleRate: 96000},
}

func TestHostDevices(t *testing.T) {
	fakeDevices(t, testInfos, nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) != len(testInfos) {
		t.Fatalf("got %d devices", len(devices))
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
	}
	if d := devices[1]; d.HostAPI != "Core Audio" || d.HighOutputLatency != 20*time.Millisecond {
		t.Errorf("device 1 = %+v", d)
	}
	wantTypes := []string{"Input", "Output", "Input/Output"}
	for i, want := range wantTypes {
		if got := devices[i].Type(); got != want {
			t.Errorf("device %d type = %q, want %q", i, got, want)
		}
	}
}

func TestHostDevices_paDevicesError(t *testing.T) {
	fakeDevices(t, nil, fmt.Errorf("mock error"))

	_, err := HostDevices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestOutputDevice(t *testing.T) {
	fakeDevices(t, testInfos, nil)

	tests := []struct {
		name   string
		id     int
		want   string
		substr string
	}{
		{"Default", -1, "Speakers", ""},
		{"Valid output", 2, "Interface", ""},
		{"Negative ID", -2, "", "invalid device ID"},
		{"Too high ID", len(testInfos) + 10, "", "invalid device ID"},
		{"Input only", 0, "", "has no output channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := OutputDevice(tt.id)
			if tt.substr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.substr) {
					t.Errorf("Error = %v, want substring %q", err, tt.substr)
				}
				return
			}
			if err != nil {
				t.Fatalf("OutputDevice(%d) error: %v", tt.id, err)
			}
			if dev.Name != tt.want {
				t.Errorf("device = %q, want %q", dev.Name, tt.want)
			}
		})
	}
}

func TestOutputDevice_defaultError(t *testing.T) {
	fakeDevices(t, nil, fmt.Errorf("mock default output error"))

	_, err := OutputDevice(-1)
	if err == nil || !strings.Contains(err.Error(), "mock default output error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestListDevicesSkipsInputs(t *testing.T) {
	fakeDevices(t, testInfos, nil)

	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "Mic") {
		t.Errorf("input-only device listed:\n%s", out)
	}
	for _, want := range []string{"[1] Speakers (Output)", "[2] Interface (Input/Output)", "Low=5.00ms, High=20.00ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRealHostDevices(t *testing.T) {
	setupPortAudio(t)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) == 0 {
		t.Skip("No audio devices found on system")
	}
	for i, d := range devices {
		if d.Name == "" {
			t.Errorf("Device %d has empty name", i)
		}
		if d.DefaultSampleRate <= 0 {
			t.Errorf("Device %d has invalid sample rate: %f", i, d.DefaultSampleRate)
		}
	}
}
