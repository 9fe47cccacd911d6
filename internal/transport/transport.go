// SPDX-License-Identifier: MIT
//
// Package transport carries engine output to the visual layer and gesture
// input back into the engine: a websocket hub and HTTP surface, a logging
// transport, and (in udp) a binary feature publisher.
package transport

import (
	"errors"

	"handbeat/internal/engine"
	"handbeat/internal/gesture"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe and must not block the caller.
type Transport interface {
	Send(data any) error
	Close() error
}

// Controller is the engine surface inbound messages drive.
// *engine.AudioEngine implements it.
type Controller interface {
	Gesture(ev gesture.Event) error
	Hand(h gesture.Hand) error
	Pinch(strength float64, present bool, pos *gesture.Vec3) error
	MediaEvent(action engine.MediaAction, position float64) error
	SetPreset(name string) error
	SetCalm(calm bool) error
	Ready() bool
	Err() error
	Status() engine.Status
	Features() engine.Frame
}

var _ Controller = (*engine.AudioEngine)(nil)

// Multi sends to every transport in order.
type Multi []Transport

// Send forwards data to each transport and joins their errors.
func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes each transport and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ensure Multi satisfies the interface at compile time.
var _ Transport = Multi(nil)
