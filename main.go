// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"

	"handbeat/cmd"
	"handbeat/internal/audio"
	"handbeat/internal/log"
	"handbeat/internal/midi"
	"handbeat/internal/synth"
	"handbeat/internal/tui"
	"handbeat/pkg/build"
)

// main is the entry point for the engine.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Build the engine and open the output
//   - Serve the visual layer and gesture sources
//   - Run the monitor if requested
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop gesture sources and transports
//   - Finish the recording and release the output
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Unset ldflags fall back to the dev defaults.
	if err := build.Initialize(); err != nil {
		log.Debugf("build info incomplete: %v", err)
	}

	// One thread for the audio callback, one for control and I/O.
	runtime.GOMAXPROCS(max(2, runtime.GOMAXPROCS(0)/2))

	opts, err := cmd.ParseArgs(cmd.DefaultArgs(), os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if opts.Command == cmd.CommandNone {
		return
	}
	cmd.ConfigureLogging(opts.Config)

	// Handle one-off commands that don't need the engine running
	if opts.Command != cmd.CommandRun && opts.Command != cmd.CommandMonitor {
		if err := executeCommand(opts, os.Stdout); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := cmd.Start(ctx, opts.Params(), opts.Verbose)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if addr := session.Addr(); addr != "" {
		log.Infof("visual layer: ws://%s/ws", addr)
	}

	if opts.Command == cmd.CommandMonitor {
		if err := tui.RunMonitor(session.Engine); err != nil {
			log.Errorf("monitor: %v", err)
		}
	} else {
		fmt.Printf("%s running, Ctrl+C to stop. '%s --help' for usage information.\n",
			build.GetBuildInfo().Name, build.GetBuildInfo().Name)
		if err := session.Wait(ctx); err != nil {
			log.Errorf("engine stopped: %v", err)
		}
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	path, err := session.Close()
	if err != nil {
		log.Errorf("shutdown: %v", err)
	}
	if path != "" {
		fmt.Printf("\nRecording saved to: %s\n", path)
	}
}

// executeCommand handles one-off commands that don't require the engine
// to be running.
func executeCommand(opts *cmd.Options, w io.Writer) error {
	switch opts.Command {
	case cmd.CommandList:
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		return audio.ListDevices(w)

	case cmd.CommandPick:
		sel, ok, err := tui.PickDevice()
		if err != nil || !ok {
			return err
		}
		fmt.Fprintf(w, "audio:\n  backend: portaudio\n  output_device: %d\n  sample_rate: %.0f\n",
			sel.Device.ID, sel.SampleRate)
		return nil

	case cmd.CommandPresets:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tHATS\tCLAP\tBASS CUTOFF\tJITTER")
		for _, p := range synth.Presets() {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.0f Hz\t%.1f ms\n",
				p.Name, p.HatDensity, p.ClapLevel, p.BassCutoff, p.Jitter*1000)
		}
		return tw.Flush()

	case cmd.CommandMIDI:
		ports := midi.Ports()
		if len(ports) == 0 {
			fmt.Fprintln(w, "No MIDI input ports found.")
		}
		for i, name := range ports {
			fmt.Fprintf(w, "[%d] %s\n", i, name)
		}
		return nil

	case cmd.CommandRender:
		path, err := cmd.Render(opts.Params(), opts.Render)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Rendered %s to %s\n", opts.Render.Duration, path)
		return nil
	}
	return fmt.Errorf("unknown command %q", opts.Command)
}
