// SPDX-License-Identifier: MIT
//
// Package cmd parses the command line and runs the engine sessions and
// one-off commands main dispatches to.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"handbeat/internal/config"
	"handbeat/internal/log"
	"handbeat/pkg/build"
)

// Commands main dispatches on. The empty command runs the engine.
const (
	CommandRun     = ""
	CommandMonitor = "monitor"
	CommandList    = "list"
	CommandPick    = "pick"
	CommandPresets = "presets"
	CommandMIDI    = "midi"
	CommandRender  = "render"
	CommandNone    = "none" // help or version was printed
)

// RenderOptions control an offline render.
type RenderOptions struct {
	Output   string
	Duration time.Duration
	BreakAt  time.Duration
	BreakFor time.Duration
	Strength float64
}

// Options is the parsed command line.
type Options struct {
	Command    string
	ConfigPath string
	Verbose    bool
	Config     *config.Config
	Render     RenderOptions
}

// Params returns the resolved engine parameters.
func (o *Options) Params() config.Params {
	return o.Config.Resolve()
}

// flagValues holds raw flag values; only flags the user set touch the
// loaded configuration.
type flagValues struct {
	device    int
	backend   string
	preset    string
	bpm       float64
	swing     float64
	calm      bool
	engineFX  bool
	noTechno  bool
	media     string
	loop      bool
	record    bool
	outputDir string
	wsAddr    string
	udpTarget string
	midiPort  string
	seed      uint64
	logLevel  string
}

// ParseArgs parses args (without the program name) into Options.
func ParseArgs(args []string, stdout io.Writer) (*Options, error) {
	info := build.GetBuildInfo()
	opts := &Options{}
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, &fv, opts.Verbose)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			opts.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandRun
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	command := func(name, short string) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: short,
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				opts.Command = name
			},
		}
	}

	listCmd := command(CommandList, "List available output devices")
	var interactive bool
	listCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pick a device and sample rate interactively")
	listCmd.Run = func(cmd *cobra.Command, args []string) {
		opts.Command = CommandList
		if interactive {
			opts.Command = CommandPick
		}
	}

	renderCmd := command(CommandRender, "Render the engine offline to a WAV file")
	rf := renderCmd.Flags()
	rf.StringVarP(&opts.Render.Output, "out", "o", "", "Output file (default: a timestamped file in recording.output_dir)")
	rf.DurationVar(&opts.Render.Duration, "duration", 16*time.Second, "Length of the render")
	rf.DurationVar(&opts.Render.BreakAt, "break-at", 0, "Start a break at this offset; 0 renders without one")
	rf.DurationVar(&opts.Render.BreakFor, "break-for", 4*time.Second, "How long the break is held")
	rf.Float64Var(&opts.Render.Strength, "strength", 1, "Break strength [0, 1]")

	rootCmd.AddCommand(
		command(CommandMonitor, "Run the engine with a live terminal monitor"),
		listCmd,
		command(CommandPresets, "List groove presets"),
		command(CommandMIDI, "List MIDI input ports"),
		renderCmd,
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "Configuration file (default: ./config.yaml or ./handbeat.yaml)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "Show verbose output")
	pf.StringVar(&fv.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	// Output
	pf.IntVarP(&fv.device, "device", "d", -1, "Output device ID for portaudio. Use 'list' to see devices.")
	pf.StringVarP(&fv.backend, "backend", "b", "", "Output backend: portaudio, oto or null")

	// Engine
	pf.StringVarP(&fv.preset, "preset", "p", "", "Groove preset. Use 'presets' to see them.")
	pf.Float64Var(&fv.bpm, "bpm", 0, "Base tempo")
	pf.Float64Var(&fv.swing, "swing", 0, "Sixteenth swing [0, 0.2]")
	pf.BoolVar(&fv.calm, "calm", false, "Soft kick and a near-inaudible sidechain")
	pf.BoolVar(&fv.engineFX, "engine-fx", false, "Route the engine through the media filter chain")
	pf.BoolVar(&fv.noTechno, "no-techno", false, "Do not start the sequencer at startup")
	pf.Uint64Var(&fv.seed, "seed", 0, "Jitter seed; 0 picks one at random")

	// Media and recording
	pf.StringVarP(&fv.media, "media", "m", "", "WAV file fed into the media input")
	pf.BoolVar(&fv.loop, "loop", false, "Loop the media file")
	pf.BoolVarP(&fv.record, "record", "r", false, "Record the output to a WAV file")
	pf.StringVar(&fv.outputDir, "output-dir", "", "Directory for recordings")

	// Transport
	pf.StringVar(&fv.wsAddr, "ws", "", "Serve the websocket and HTTP API on this address")
	pf.StringVar(&fv.udpTarget, "udp", "", "Send binary feature packets to this host:port")
	pf.StringVar(&fv.midiPort, "midi-port", "", "Read gestures from the MIDI input whose name contains this")

	if args == nil {
		args = []string{} // cobra falls back to os.Args on nil
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if opts.Config == nil {
		// --help and --version return before the pre-run.
		opts.Command = CommandNone
	}
	return opts, nil
}

// applyFlags copies the flags the user set onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, fv *flagValues, verbose bool) {
	set := cmd.Flags().Changed
	if set("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if set("device") {
		cfg.Audio.OutputDevice = fv.device
	}
	if set("backend") {
		cfg.Audio.Backend = strings.ToLower(fv.backend)
	}
	if set("preset") {
		cfg.Engine.Preset = fv.preset
	}
	if set("bpm") {
		cfg.Engine.BPM = fv.bpm
	}
	if set("swing") {
		cfg.Engine.Swing = fv.swing
	}
	if set("calm") {
		cfg.Engine.Calm = fv.calm
	}
	if set("engine-fx") {
		cfg.Engine.EngineThroughFX = fv.engineFX
	}
	if set("no-techno") {
		cfg.Engine.AutoTechno = !fv.noTechno
	}
	if set("seed") {
		cfg.Engine.Seed = fv.seed
	}
	if set("media") {
		cfg.Audio.MediaFile = fv.media
	}
	if set("loop") {
		cfg.Audio.MediaLoop = fv.loop
	}
	if set("record") {
		cfg.Recording.Enabled = fv.record
	}
	if set("output-dir") {
		cfg.Recording.OutputDir = fv.outputDir
	}
	if set("ws") {
		cfg.Transport.WebSocketEnabled = fv.wsAddr != ""
		cfg.Transport.WebSocketAddr = fv.wsAddr
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = fv.udpTarget != ""
		cfg.Transport.UDPTargetAddress = fv.udpTarget
	}
	if set("midi-port") {
		cfg.MIDI.Enabled = true
		cfg.MIDI.InPort = fv.midiPort
	}
}

// ConfigureLogging applies the configured log level.
func ConfigureLogging(cfg *config.Config) {
	level := cfg.LogLevel
	if cfg.Debug && level == "" {
		level = "debug"
	}
	if level == "" {
		return
	}
	l, ok := log.ParseLevel(level)
	if !ok {
		log.Warnf("unknown log level %q, keeping %s", level, log.GetLevel())
		return
	}
	log.SetLevel(l)
}

// DefaultArgs returns the process arguments without the program name.
func DefaultArgs() []string { return os.Args[1:] }
