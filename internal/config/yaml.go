// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	Command   string          `yaml:"command,omitempty"` // A one-off command to execute instead of running the engine.
	Audio     AudioConfig     `yaml:"audio"`             // Output device settings.
	Engine    EngineConfig    `yaml:"engine"`            // Procedural sequencer settings.
	Mix       MixConfig       `yaml:"mix"`               // Bus gains and send levels.
	Break     BreakConfig     `yaml:"break"`             // Gesture-held overlay settings.
	Gesture   GestureConfig   `yaml:"gesture"`           // Hand -> parameter mapping ranges.
	Analysis  AnalysisConfig  `yaml:"analysis"`          // Spectral feature extraction.
	Recording RecordingConfig `yaml:"recording"`         // Output recording settings.
	Transport TransportConfig `yaml:"transport"`         // Outbound feature transport settings.
	MIDI      MIDIConfig      `yaml:"midi"`              // MIDI controller gesture source.
}

// AudioConfig holds settings related to audio output and rendering.
type AudioConfig struct {
	Backend         string  `yaml:"backend"`           // Output backend: "portaudio", "oto" or "null".
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for output (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per device buffer (affects latency).
	OutputChannels  int     `yaml:"output_channels"`   // Number of output channels; the mono mix is duplicated.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from the device.
	MediaFile       string  `yaml:"media_file"`        // Optional WAV track fed into the media input.
	MediaLoop       bool    `yaml:"media_loop"`        // Restart the media track when it ends.
}

// EngineConfig holds the procedural sequencer settings.
type EngineConfig struct {
	BPM             float64 `yaml:"bpm"`               // Base tempo.
	Swing           float64 `yaml:"swing"`             // Sixteenth swing ratio [0, 0.2].
	Preset          string  `yaml:"preset"`            // Groove preset name.
	Calm            bool    `yaml:"calm"`              // Soft kick, near-inaudible sidechain.
	EngineThroughFX bool    `yaml:"engine_through_fx"` // Route the engine through the media filter chain.
	AutoTechno      bool    `yaml:"auto_techno"`       // Start the sequencer at init when no media plays.
	LookaheadMS     float64 `yaml:"lookahead_ms"`      // Scheduler tick interval.
	ScheduleAheadMS float64 `yaml:"schedule_ahead_ms"` // How far ahead steps are committed.
	Seed            uint64  `yaml:"seed"`              // Jitter seed; 0 picks a random seed.
}

// MixConfig holds bus baselines and send levels.
type MixConfig struct {
	MasterGain    float64 `yaml:"master_gain"`    // Media bus baseline.
	TechnoGain    float64 `yaml:"techno_gain"`    // Engine bus baseline.
	DelaySend     float64 `yaml:"delay_send"`     // Media -> delay send.
	DelayFeedback float64 `yaml:"delay_feedback"` // Delay feedback base.
	PumpAmount    float64 `yaml:"pump_amount"`    // Kick-pulse pump depth on the media bus.
	BassBoostDB   float64 `yaml:"bass_boost_db"`  // Low shelf gain.
	TrebleBoostDB float64 `yaml:"treble_boost_db"`
	ReverbSend    float64 `yaml:"reverb_send"` // Engine tiny-reverb send.
	GlueSend      float64 `yaml:"glue_send"`   // Break -> delay send.
}

// BreakConfig holds the overlay groove settings.
type BreakConfig struct {
	GainBase        float64 `yaml:"gain_base"`
	GainSpan        float64 `yaml:"gain_span"`
	DuckFloorMin    float64 `yaml:"duck_floor_min"` // Floor at full strength.
	DuckFloorMax    float64 `yaml:"duck_floor_max"` // Floor at zero strength.
	SatAmount       float64 `yaml:"sat_amount"`
	BrightCutoffHz  float64 `yaml:"bright_cutoff_hz"` // 0 leaves the media filter alone.
	KickLevel       float64 `yaml:"kick_level"`
	SnareLevel      float64 `yaml:"snare_level"`
	HatLevel        float64 `yaml:"hat_level"`
	CrashLevel      float64 `yaml:"crash_level"` // <= 0 disables the entry cue.
	ScheduleAheadMS float64 `yaml:"schedule_ahead_ms"`
}

// GestureConfig holds hand -> parameter mapping ranges and pinch hysteresis.
type GestureConfig struct {
	LPFMinHz       float64 `yaml:"lpf_min_hz"`
	LPFMaxHz       float64 `yaml:"lpf_max_hz"`
	DelayMinMS     float64 `yaml:"delay_min_ms"`
	DelayMaxMS     float64 `yaml:"delay_max_ms"`
	PinchOn        float64 `yaml:"pinch_on"`
	PinchOff       float64 `yaml:"pinch_off"`
	PinchSmoothing float64 `yaml:"pinch_smoothing"`
}

// AnalysisConfig holds spectral analyzer settings.
type AnalysisConfig struct {
	FFTSize     int     `yaml:"fft_size"`   // Power of two.
	FFTWindow   string  `yaml:"fft_window"` // Window function name (e.g., "Blackman", "Hann").
	RateHz      float64 `yaml:"rate_hz"`    // Analysis ticks per second.
	Smoothing   float64 `yaml:"smoothing"`  // Temporal magnitude smoothing [0, 1).
	MinDecibels float64 `yaml:"min_decibels"`
	MaxDecibels float64 `yaml:"max_decibels"`
}

// RecordingConfig holds settings related to output recording functionality.
type RecordingConfig struct {
	Enabled       bool    `yaml:"enabled"`        // Record the final output to a WAV file.
	OutputDir     string  `yaml:"output_dir"`     // Directory to save recorded audio files.
	BitDepth      int     `yaml:"bit_depth"`      // Bit depth for recorded audio (16, 24 or 32).
	GateThreshold float64 `yaml:"gate_threshold"` // Peak the output must cross before the file starts; 0 disables.
}

// TransportConfig holds settings related to sending features to the visual layer.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve /ws for the visual layer.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending features over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
}

// MIDIConfig maps a MIDI controller onto gesture events.
type MIDIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	InPort     string `yaml:"in_port"`     // Substring of the input port name; empty picks the first port.
	StrengthCC uint8  `yaml:"strength_cc"` // CC number carrying pinch strength.
	GateNote   uint8  `yaml:"gate_note"`   // Note held to keep the break active.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			OutputDevice:    DefaultOutputDevice,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			OutputChannels:  DefaultOutputChannels,
		},
		Engine: EngineConfig{
			BPM:             DefaultBPM,
			Swing:           DefaultSwing,
			Preset:          DefaultPreset,
			Calm:            true,
			AutoTechno:      true,
			LookaheadMS:     DefaultLookaheadMS,
			ScheduleAheadMS: DefaultScheduleAheadMS,
		},
		Mix: MixConfig{
			MasterGain:    DefaultMasterGain,
			TechnoGain:    DefaultTechnoGain,
			DelaySend:     DefaultDelaySend,
			DelayFeedback: DefaultDelayFeedback,
			PumpAmount:    DefaultPumpAmount,
			ReverbSend:    DefaultReverbSend,
			GlueSend:      DefaultGlueSend,
		},
		Break: BreakConfig{
			GainBase:        DefaultBreakGainBase,
			GainSpan:        DefaultBreakGainSpan,
			DuckFloorMin:    DefaultDuckFloorMin,
			DuckFloorMax:    DefaultDuckFloorMax,
			SatAmount:       DefaultSatAmount,
			BrightCutoffHz:  DefaultBrightCutoffHz,
			KickLevel:       DefaultBreakKickLevel,
			SnareLevel:      DefaultBreakSnareLevel,
			HatLevel:        DefaultBreakHatLevel,
			CrashLevel:      DefaultBreakCrashLevel,
			ScheduleAheadMS: DefaultBreakAheadMS,
		},
		Gesture: GestureConfig{
			LPFMinHz:       DefaultLPFMinHz,
			LPFMaxHz:       DefaultLPFMaxHz,
			DelayMinMS:     DefaultDelayMinMS,
			DelayMaxMS:     DefaultDelayMaxMS,
			PinchOn:        DefaultPinchOnThreshold,
			PinchOff:       DefaultPinchOffThreshold,
			PinchSmoothing: DefaultPinchSmoothing,
		},
		Analysis: AnalysisConfig{
			FFTSize:     DefaultFFTSize,
			FFTWindow:   DefaultFFTWindow,
			RateHz:      DefaultAnalysisRate,
			Smoothing:   DefaultSmoothing,
			MinDecibels: DefaultMinDecibels,
			MaxDecibels: DefaultMaxDecibels,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			WebSocketEnabled: true,
			WebSocketAddr:    ":8080",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // Default ~30Hz.
		},
		MIDI: MIDIConfig{
			StrengthCC: 1,
			GateNote:   36,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "handbeat.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate rejects structural mistakes that cannot be clamped into something
// sensible. Numeric ranges are not checked here; Resolve clamps them.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Audio.Backend) {
	case BackendPortAudio, BackendOto, BackendNull:
	default:
		errs = append(errs, fmt.Errorf("audio.backend %q is not one of %s, %s, %s",
			c.Audio.Backend, BackendPortAudio, BackendOto, BackendNull))
	}

	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth))
	}

	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddr == "" {
		errs = append(errs, errors.New("transport.websocket_addr must be set when the websocket is enabled"))
	}
	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			errs = append(errs, fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress))
		}
		if c.Transport.UDPSendInterval <= 0 {
			errs = append(errs, errors.New("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the file/default values.
// Unparseable values are ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
	}

	// ENV_AUDIO_{...}

	// ENV_AUDIO_BACKEND
	if val, ok := os.LookupEnv("ENV_AUDIO_BACKEND"); ok {
		cfg.Audio.Backend = strings.ToLower(val)
	}
	// ENV_AUDIO_MEDIA_FILE
	if val, ok := os.LookupEnv("ENV_AUDIO_MEDIA_FILE"); ok {
		cfg.Audio.MediaFile = val
	}

	// ENV_ENGINE_{...}

	// ENV_ENGINE_BPM
	if val, ok := os.LookupEnv("ENV_ENGINE_BPM"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Engine.BPM = fVal
		}
	}
	// ENV_ENGINE_PRESET
	if val, ok := os.LookupEnv("ENV_ENGINE_PRESET"); ok {
		cfg.Engine.Preset = val
	}
	// ENV_ENGINE_CALM
	if val, ok := os.LookupEnv("ENV_ENGINE_CALM"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.Calm = bVal
		}
	}

	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		cfg.Transport.WebSocketAddr = val
	}

	// ENV_UDP_{...}

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
		}
	}
}
