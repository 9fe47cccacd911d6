// SPDX-License-Identifier: MIT
//
// Package midi turns a MIDI controller into a gesture source. A control
// change on the strength CC behaves like a pinch sensor, and the gate note
// starts and ends a break directly. While the gate note is held, the
// strength CC shapes the break with hold events.
package midi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"handbeat/internal/config"
	"handbeat/internal/gesture"
	"handbeat/internal/log"
)

// ErrNoPort is returned when no input port matches.
var ErrNoPort = errors.New("midi: no input port")

// Target receives the gestures a controller produces.
// *engine.AudioEngine implements it.
type Target interface {
	Gesture(ev gesture.Event) error
	Pinch(strength float64, present bool, pos *gesture.Vec3) error
}

// Controller maps messages from one input port onto a Target.
type Controller struct {
	cfg    config.MIDIConfig
	target Target
	log    log.Component

	mu       sync.Mutex
	held     bool
	strength float64
	stop     func()
	port     string
}

// New creates a controller. It does not open a port until Open.
func New(cfg config.MIDIConfig, target Target) *Controller {
	return &Controller{cfg: cfg, target: target, log: log.For("MIDI")}
}

// Ports lists the available input port names.
func Ports() []string {
	var names []string
	for _, in := range gomidi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// findPort returns the first input port whose name contains name
// (case-insensitive), or the first port when name is empty.
func findPort(name string) (drivers.In, error) {
	ins := gomidi.GetInPorts()
	if len(ins) == 0 {
		return nil, ErrNoPort
	}
	if name == "" {
		return ins[0], nil
	}
	want := strings.ToLower(name)
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), want) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%w matching %q", ErrNoPort, name)
}

// Open starts listening on the configured port.
func (c *Controller) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}
	in, err := findPort(c.cfg.InPort)
	if err != nil {
		return err
	}
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		c.Handle(msg)
	})
	if err != nil {
		return fmt.Errorf("open input %q: %w", in.String(), err)
	}
	c.stop = stop
	c.port = in.String()
	c.log.Infof("listening on %q (strength CC %d, gate note %d)", c.port, c.cfg.StrengthCC, c.cfg.GateNote)
	return nil
}

// Port reports the open port's name, or "" when closed.
func (c *Controller) Port() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// Handle applies one message. Messages on other controls are ignored.
func (c *Controller) Handle(msg gomidi.Message) {
	var channel, key, velocity, controller, value uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		if key != c.cfg.GateNote {
			return
		}
		c.mu.Lock()
		c.held = true
		c.strength = float64(velocity) / 127
		s := c.strength
		c.mu.Unlock()
		c.send(c.target.Gesture(gesture.Event{Phase: gesture.Start, Strength: s}))

	case msg.GetNoteEnd(&channel, &key):
		if key != c.cfg.GateNote {
			return
		}
		c.mu.Lock()
		wasHeld := c.held
		c.held = false
		c.mu.Unlock()
		if wasHeld {
			c.send(c.target.Gesture(gesture.Event{Phase: gesture.End}))
		}

	case msg.GetControlChange(&channel, &controller, &value):
		if controller != c.cfg.StrengthCC {
			return
		}
		s := float64(value) / 127
		c.mu.Lock()
		held := c.held
		c.strength = s
		c.mu.Unlock()
		if held {
			c.send(c.target.Gesture(gesture.Event{Phase: gesture.Hold, Strength: s}))
			return
		}
		c.send(c.target.Pinch(s, true, nil))
	}
}

func (c *Controller) send(err error) {
	if err != nil {
		c.log.Debugf("gesture dropped: %v", err)
	}
}

// Close stops listening and ends a held break.
func (c *Controller) Close() error {
	c.mu.Lock()
	stop, held := c.stop, c.held
	c.stop, c.held, c.port = nil, false, ""
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
	if held {
		c.send(c.target.Gesture(gesture.Event{Phase: gesture.End}))
	}
	return nil
}
