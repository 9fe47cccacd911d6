// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"handbeat/internal/audio"
	"handbeat/internal/config"
	"handbeat/internal/control"
	"handbeat/internal/engine"
	"handbeat/internal/gesture"
	"handbeat/internal/log"
)

const renderBlock = 10 * time.Millisecond

// offlineSink satisfies the engine's output contract without a device;
// Render pulls blocks itself.
type offlineSink struct{}

func (offlineSink) Name() string { return "offline" }
func (offlineSink) Start() error { return nil }
func (offlineSink) Stop() error  { return nil }
func (offlineSink) Close() error { return nil }

// Render runs the engine faster than real time on a manual control clock
// and writes ro.Duration of output to a WAV file. With ro.BreakAt set, a
// break of ro.Strength is held for ro.BreakFor. It returns the file path.
func Render(p config.Params, ro RenderOptions) (string, error) {
	logger := log.For("Render")
	if ro.Duration <= 0 {
		return "", errors.New("render duration must be positive")
	}
	path := ro.Output
	if path == "" {
		path = audio.FileName(p.Recording.OutputDir, time.Now())
	}
	p.Recording.GateThreshold = 0

	clock := control.NewManual()
	e := engine.New(p,
		engine.WithExecutor(clock),
		engine.WithSink(func(audio.Options, audio.Renderer) (audio.Sink, error) { return offlineSink{}, nil }),
		engine.WithRecording(path),
	)
	defer e.Teardown()

	if err := e.EnsureReady(context.Background()); err != nil {
		return "", err
	}

	frames := int(renderBlock.Seconds() * p.Audio.SampleRate)
	buf := make([]float32, frames*p.Audio.OutputChannels)
	breakEnd := ro.BreakAt + ro.BreakFor
	inBreak := false

	logger.Infof("rendering %s to %s", ro.Duration, path)
	for elapsed := time.Duration(0); elapsed < ro.Duration; elapsed += renderBlock {
		switch {
		case ro.BreakAt > 0 && !inBreak && elapsed >= ro.BreakAt && elapsed < breakEnd:
			if err := e.Gesture(gesture.Event{Phase: gesture.Start, Strength: ro.Strength}); err != nil {
				return "", err
			}
			inBreak = true
		case inBreak && elapsed >= breakEnd:
			if err := e.Gesture(gesture.Event{Phase: gesture.End}); err != nil {
				return "", err
			}
			inBreak = false
		}
		if err := e.Pull(buf); err != nil {
			return "", err
		}
		clock.Advance(renderBlock)
	}

	written, err := e.StopRecording()
	if err != nil {
		return "", fmt.Errorf("failed to finish %s: %w", path, err)
	}
	if written == "" {
		return "", errors.New("render produced no recording")
	}
	return written, nil
}
