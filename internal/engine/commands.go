// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"

	"handbeat/internal/gesture"
	"handbeat/internal/synth"
)

// MediaAction is a transport event from the media player.
type MediaAction int

const (
	MediaPlay MediaAction = iota
	MediaPause
	MediaSeek
)

func (a MediaAction) String() string {
	switch a {
	case MediaPlay:
		return "play"
	case MediaPause:
		return "pause"
	case MediaSeek:
		return "seek"
	default:
		return "unknown"
	}
}

// ParseMediaAction parses "play", "pause" or "seek".
func ParseMediaAction(s string) (MediaAction, error) {
	for _, a := range []MediaAction{MediaPlay, MediaPause, MediaSeek} {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown media action %q", s)
}

func (e *AudioEngine) post(fn func()) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.inited.Load() {
		return ErrNotReady
	}
	if !e.exec.Post(fn) {
		return ErrBusy
	}
	return nil
}

// Gesture feeds one gesture event to the break machine.
func (e *AudioEngine) Gesture(ev gesture.Event) error {
	return e.post(func() { e.applyGesture(ev) })
}

func (e *AudioEngine) applyGesture(ev gesture.Event) {
	switch ev.Phase {
	case gesture.Start:
		e.brk.Start(ev.Strength)
	case gesture.Hold:
		e.brk.Hold(ev.Strength)
	case gesture.End:
		e.brk.End()
	default:
		logger.Debugf("ignoring gesture phase %v", ev.Phase)
		return
	}
	e.publish()
}

// Hand routes one hand sample onto the filter, delay and tempo.
func (e *AudioEngine) Hand(h gesture.Hand) error {
	return e.post(func() { e.router.Route(h) })
}

// Pinch feeds a raw pinch strength through the hysteresis tracker. present
// is false when no hand is visible.
func (e *AudioEngine) Pinch(strength float64, present bool, pos *gesture.Vec3) error {
	return e.post(func() {
		if ev, ok := e.pinch.Update(strength, present, pos); ok {
			e.applyGesture(ev)
		}
	})
}

// SetPreset switches the groove preset. Unknown names leave the current
// preset in place.
func (e *AudioEngine) SetPreset(name string) error {
	if _, err := synth.Lookup(name); err != nil {
		return fmt.Errorf("%w %q", err, name)
	}
	return e.post(func() {
		if err := e.seq.SetPreset(name); err != nil {
			logger.Warnf("%v", err)
		}
		e.publish()
	})
}

// SetCalm toggles calm mode.
func (e *AudioEngine) SetCalm(calm bool) error {
	return e.post(func() {
		e.seq.SetCalm(calm)
		e.publish()
	})
}

// SetSwing sets the sequencer swing; it is clamped to [0, 0.2].
func (e *AudioEngine) SetSwing(swing float64) error {
	return e.post(func() { e.seq.SetSwing(swing) })
}

// SetTechno starts or stops the main sequencer.
func (e *AudioEngine) SetTechno(on bool) error {
	return e.post(func() {
		if on {
			e.seq.Start()
		} else {
			e.seq.Stop()
		}
		e.publish()
	})
}

// MediaEvent applies a media transport event and resumes a suspended output.
// position is used by MediaSeek only.
func (e *AudioEngine) MediaEvent(action MediaAction, position float64) error {
	return e.post(func() {
		if e.media != nil {
			switch action {
			case MediaPlay:
				e.media.Play()
			case MediaPause:
				e.media.Pause()
			case MediaSeek:
				e.media.Seek(position)
			}
		}
		e.resume()
	})
}

// OnKick registers fn to be called on the control thread at every kick
// trigger with the kick's audio time.
func (e *AudioEngine) OnKick(fn func(t float64)) {
	if fn == nil {
		return
	}
	e.subMu.Lock()
	e.kickSubs = append(e.kickSubs, fn)
	e.subMu.Unlock()
}

// OnFeatures registers fn to be called on the control thread with every
// analysis frame.
func (e *AudioEngine) OnFeatures(fn func(Frame)) {
	if fn == nil {
		return
	}
	e.subMu.Lock()
	e.frameSubs = append(e.frameSubs, fn)
	e.subMu.Unlock()
}

// Features returns the latest analysis frame.
func (e *AudioEngine) Features() Frame {
	if f := e.frame.Load(); f != nil {
		return *f
	}
	return Frame{}
}

// Status returns the latest engine summary.
func (e *AudioEngine) Status() Status {
	if s := e.status.Load(); s != nil {
		return *s
	}
	return Status{Backend: e.params.Audio.Backend}
}

// Bins returns the number of spectrum bins Levels fills.
func (e *AudioEngine) Bins() int {
	if !e.inited.Load() {
		return 0
	}
	return e.analyzer.Bins()
}

// Levels copies the latest per-bin spectrum, each in [0,1], into dst.
func (e *AudioEngine) Levels(dst []float64) error {
	if !e.inited.Load() {
		return ErrNotReady
	}
	return e.analyzer.LevelsInto(dst)
}

func (e *AudioEngine) kick(t float64) {
	e.analyzer.Kick(t)
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for _, fn := range e.kickSubs {
		fn(t)
	}
}

func (e *AudioEngine) setTempo(bpm float64) {
	e.seq.SetTempo(bpm)
	e.brk.SetTempo(bpm)
}

func (e *AudioEngine) analyze() {
	f := &Frame{
		Features: e.analyzer.Tick(),
		Break:    e.brk.Active(),
		BPM:      e.seq.Cursor().Tempo,
	}
	e.frame.Store(f)
	e.publish()

	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for _, fn := range e.frameSubs {
		fn(*f)
	}
}

func (e *AudioEngine) publish() {
	e.status.Store(&Status{
		Ready:     e.ready.Load(),
		Backend:   e.params.Audio.Backend,
		Running:   e.seq.Running(),
		Break:     e.brk.State().String(),
		Strength:  e.brk.Strength(),
		Preset:    e.seq.Preset().Name,
		Calm:      e.seq.Calm(),
		BPM:       e.seq.Cursor().Tempo,
		Voices:    e.graph.ActiveVoices(),
		Time:      e.graph.Now(),
		Recording: e.recorder.Recording(),
	})
}
