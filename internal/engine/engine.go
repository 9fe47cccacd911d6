// SPDX-License-Identifier: MIT
/*
Package engine owns one running instance of the system: the signal graph,
the sequencer, the break overlay, the analyzer and the gesture router, plus
the output sink and recorder they feed.

Lifecycle:
  - New stores the resolved parameters; nothing touches the realtime side
  - Init builds the graph and every component once
  - EnsureReady opens or resumes the output and may be retried after failure
  - Teardown stops everything and is safe to call more than once

Thread Safety:
  - Every mutation runs on the control thread (a control.Loop by default)
  - Public mutators post onto that thread and never block on audio
  - Features and Status are atomic snapshots readable from any goroutine
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"handbeat/internal/analysis"
	"handbeat/internal/audio"
	"handbeat/internal/breakmode"
	"handbeat/internal/config"
	"handbeat/internal/control"
	"handbeat/internal/ducking"
	"handbeat/internal/gesture"
	"handbeat/internal/graph"
	"handbeat/internal/log"
	"handbeat/internal/synth"
	"handbeat/internal/techno"
)

var (
	// ErrNotReady is returned by mutators called before Init.
	ErrNotReady = errors.New("engine: not initialised")
	// ErrClosed is returned once Teardown has run.
	ErrClosed = errors.New("engine: closed")
	// ErrBusy is returned when the control queue is full.
	ErrBusy = errors.New("engine: control queue full")
)

var logger = log.For("Engine")

const (
	teardownTimeout = time.Second
	jitterStream    = 0x9e3779b97f4a7c15
)

// Frame is one analysis frame as the visual layer sees it.
type Frame struct {
	analysis.Features
	Break bool    `json:"break"`
	BPM   float64 `json:"bpm"`
}

// Status summarises the engine for health checks and the monitor.
type Status struct {
	Ready     bool    `json:"ready"`
	Backend   string  `json:"backend"`
	Running   bool    `json:"running"`
	Break     string  `json:"break"`
	Strength  float64 `json:"strength"`
	Preset    string  `json:"preset"`
	Calm      bool    `json:"calm"`
	BPM       float64 `json:"bpm"`
	Voices    int     `json:"voices"`
	Time      float64 `json:"time"`
	Recording bool    `json:"recording"`
}

// AudioEngine is the single owner of the audio system.
type AudioEngine struct {
	params     config.Params
	exec       control.Executor
	loop       *control.Loop
	newSink    SinkFactory
	seed       uint64
	media      *audio.Media
	recordPath string

	mu        sync.Mutex
	sink      audio.Sink
	recorder  *audio.Recorder
	err       error
	inited    atomic.Bool
	ready     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	// Control thread only once Init has returned.
	graph        *graph.Graph
	seq          *techno.Sequencer
	brk          *breakmode.Machine
	main         *ducking.Group
	analyzer     *analysis.Analyzer
	router       *gesture.Router
	pinch        *gesture.PinchTracker
	analysisTask *control.Task

	subMu     sync.RWMutex
	kickSubs  []func(t float64)
	frameSubs []func(Frame)

	frame  atomic.Pointer[Frame]
	status atomic.Pointer[Status]
}

// New returns an engine for p. Components are not built until Init.
func New(p config.Params, opts ...Option) *AudioEngine {
	loop := control.New(control.DefaultQueue)
	e := &AudioEngine{
		params:  p,
		exec:    loop,
		loop:    loop,
		newSink: audio.NewSink,
		seed:    p.Engine.Seed,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.seed == 0 {
		e.seed = rand.Uint64()
	}
	return e
}

// Params returns the resolved parameters the engine runs with.
func (e *AudioEngine) Params() config.Params { return e.params }

// Init builds the graph and every component. It is idempotent; the
// sequencer is started here when auto techno is on and no media plays.
func (e *AudioEngine) Init(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inited.Load() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p := e.params
	g := graph.New(graph.Options{
		SampleRate:      p.Audio.SampleRate,
		EngineThroughFX: p.Engine.EngineThroughFX,
		AnalyserSize:    p.Analysis.FFTSize,
		MasterGain:      p.Mix.MasterGain,
		TechnoGain:      p.Mix.TechnoGain,
		BassBoostDB:     p.Mix.BassBoostDB,
		TrebleBoostDB:   p.Mix.TrebleBoostDB,
		LowpassHz:       p.Gesture.LPFMaxHz,
		DelaySend:       p.Mix.DelaySend,
		DelayTime:       p.Gesture.DelayMinMS / 1000,
		DelayFeedback:   p.Mix.DelayFeedback,
		GlueSend:        p.Mix.GlueSend,
		ReverbSend:      p.Mix.ReverbSend,
		SatAmount:       p.Break.SatAmount,
		Seed:            e.seed,
	})
	if err := g.EnsureBuilt(); err != nil {
		return fmt.Errorf("failed to build signal graph: %w", err)
	}

	jitter := synth.NewJitter(rand.NewPCG(e.seed, e.seed^jitterStream))
	main := ducking.NewGroup(g,
		[]graph.Bus{graph.MediaBus, graph.EngineBus},
		[]float64{p.Mix.MasterGain, p.Mix.TechnoGain})

	an, err := analysis.New(g, g, p.Audio.SampleRate, p.Analysis)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	seq := techno.New(g, p.Engine, p.Mix.PumpAmount, jitter, e.timer)
	brk := breakmode.New(g, p.Break, main, synth.NewKit(g, jitter), e.timer, p.Engine.Lookahead(), p.Engine.BPM)
	an.SetPump(main, brk, p.Mix.PumpAmount)

	e.graph, e.seq, e.brk, e.main, e.analyzer = g, seq, brk, main, an
	seq.OnKick(e.kick)
	e.router = gesture.NewRouter(g, p.Gesture, p.Mix.DelayFeedback, p.Engine.BPM, e.setTempo)
	e.pinch = gesture.NewPinchTracker(p.Gesture)

	if e.media == nil && p.Audio.MediaFile != "" {
		m, err := audio.LoadWAV(p.Audio.MediaFile, p.Audio.SampleRate, p.Audio.MediaLoop)
		if err != nil {
			logger.Warnf("media input disabled: %v", err)
		} else {
			e.media = m
		}
	}
	if e.media != nil {
		g.SetMedia(e.media)
	}

	e.recorder = audio.NewRecorder(p.Audio.SampleRate, p.Audio.OutputChannels,
		p.Recording.BitDepth, p.Audio.FramesPerBuffer)
	e.recorder.SetGate(p.Recording.GateThreshold)

	e.analysisTask = e.exec.Every(an.Interval(), e.analyze)
	e.inited.Store(true)

	if p.Engine.AutoTechno && e.mediaIdle() {
		e.exec.Post(seq.Start)
	}
	e.exec.Post(e.publish)

	logger.Infof("initialised (%.0f Hz, preset %s, %.1f BPM, calm %v, seed %d)",
		p.Audio.SampleRate, seq.Preset().Name, p.Engine.BPM, seq.Calm(), e.seed)
	return nil
}

// mediaIdle reports whether no media track is sounding.
func (e *AudioEngine) mediaIdle() bool {
	return e.media == nil || !e.media.Playing() || e.media.Position() == 0
}

// EnsureReady initialises the engine if needed and opens or resumes the
// output. A failure is returned and kept in Err; calling again retries.
func (e *AudioEngine) EnsureReady(ctx context.Context) error {
	if err := e.Init(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}
	if e.ready.Load() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.sink == nil {
		opts := audio.OptionsFrom(e.params.Audio)
		opts.Tap = e.recorder
		s, err := e.newSink(opts, e.graph)
		if err != nil {
			return e.fail(err)
		}
		e.sink = s
	}
	if err := e.sink.Start(); err != nil {
		return e.fail(err)
	}

	if path := e.recordingPath(); path != "" && !e.recorder.Recording() && e.recorder.Path() == "" {
		if err := e.recorder.Start(path); err != nil {
			logger.Warnf("recording disabled: %v", err)
		} else {
			logger.Infof("recording to %s", path)
		}
	}

	e.err = nil
	e.ready.Store(true)
	e.exec.Post(e.publish)
	logger.Infof("output ready on %s", e.sink.Name())
	return nil
}

func (e *AudioEngine) fail(err error) error {
	e.err = fmt.Errorf("output not ready: %w", err)
	logger.Errorf("%v", e.err)
	return e.err
}

func (e *AudioEngine) recordingPath() string {
	if e.recordPath != "" {
		return e.recordPath
	}
	if e.params.Recording.Enabled {
		return audio.FileName(e.params.Recording.OutputDir, time.Now())
	}
	return ""
}

// Ready reports whether the output is running.
func (e *AudioEngine) Ready() bool { return e.ready.Load() }

// Err returns the last readiness failure, or nil.
func (e *AudioEngine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Suspend pauses the output. The next EnsureReady or media event resumes it.
func (e *AudioEngine) Suspend() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink == nil || !e.ready.Load() {
		return nil
	}
	e.ready.Store(false)
	if err := e.sink.Stop(); err != nil {
		return fmt.Errorf("failed to suspend output: %w", err)
	}
	return nil
}

// resume restarts a suspended output. An output that was never opened is
// left alone.
func (e *AudioEngine) resume() {
	e.mu.Lock()
	opened := e.sink != nil
	e.mu.Unlock()
	if !opened || e.ready.Load() {
		return
	}
	if err := e.EnsureReady(context.Background()); err != nil {
		logger.Warnf("resume failed: %v", err)
	}
}

// Run drives the control thread until ctx is done or Teardown is called.
// With an external executor it only waits.
func (e *AudioEngine) Run(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.loop == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		}
	}
	return e.loop.Run(ctx)
}

// Pull renders one block straight from the graph into out and feeds the
// recorder. It stands in for a sink when rendering offline and must not be
// used while a sink is running.
func (e *AudioEngine) Pull(out []float32) error {
	if !e.inited.Load() {
		return ErrNotReady
	}
	e.graph.Render(out, e.params.Audio.OutputChannels)
	e.recorder.Write(out)
	return nil
}

// StartRecording records the final output to path.
func (e *AudioEngine) StartRecording(path string) error {
	if !e.inited.Load() {
		return ErrNotReady
	}
	return e.recorder.Start(path)
}

// StopRecording closes the recording, if any, and returns its path.
func (e *AudioEngine) StopRecording() (string, error) {
	if !e.inited.Load() {
		return "", ErrNotReady
	}
	path := e.recorder.Path()
	return path, e.recorder.Stop()
}

// Teardown stops the schedulers and closes the output and recorder. It must
// not be called from the control thread.
func (e *AudioEngine) Teardown() error {
	var err error
	e.closeOnce.Do(func() { err = e.teardown() })
	return err
}

func (e *AudioEngine) teardown() error {
	e.closed.Store(true)
	if e.inited.Load() {
		stop := func() {
			e.analysisTask.Stop()
			e.brk.End()
			e.seq.Stop()
		}
		if e.loop != nil && e.loop.Running() {
			ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			if err := e.loop.Do(ctx, stop); err != nil {
				logger.Warnf("control loop did not stop cleanly: %v", err)
			}
			cancel()
		} else {
			stop()
		}
	}
	if e.loop != nil {
		e.loop.Close()
	}
	close(e.done)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready.Store(false)
	var errs []error
	if e.sink != nil {
		if err := e.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s output: %w", e.sink.Name(), err))
		}
	}
	if e.recorder != nil {
		if err := e.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close recording: %w", err))
		}
	}
	logger.Infof("torn down")
	return errors.Join(errs...)
}

// timer arms repeating scheduler ticks on the control thread.
func (e *AudioEngine) timer(interval time.Duration, tick func()) func() {
	return e.exec.Every(interval, tick).Stop
}
