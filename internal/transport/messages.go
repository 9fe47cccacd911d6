// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"

	"handbeat/internal/engine"
	"handbeat/internal/gesture"
)

// Message types on the wire.
const (
	TypeFeatures = "features"
	TypeKick     = "kick"
	TypeGesture  = "gesture"
	TypeHand     = "hand"
	TypePinch    = "pinch"
	TypeMedia    = "media"
	TypePreset   = "preset"
	TypeCalm     = "calm"
)

// ErrMessage is returned for inbound messages that cannot be applied.
var ErrMessage = errors.New("transport: malformed message")

// FeaturesMessage is the outbound analysis frame.
type FeaturesMessage struct {
	Type string `json:"type"`
	engine.Frame
}

// NewFeatures wraps f for the wire.
func NewFeatures(f engine.Frame) FeaturesMessage {
	return FeaturesMessage{Type: TypeFeatures, Frame: f}
}

// KickMessage is sent at every engine kick.
type KickMessage struct {
	Type string  `json:"type"`
	Time float64 `json:"time"` // audio clock, seconds
}

// NewKick wraps a kick time for the wire.
func NewKick(t float64) KickMessage {
	return KickMessage{Type: TypeKick, Time: t}
}

// Inbound is any message the visual layer sends. Fields not used by Type
// are ignored.
type Inbound struct {
	Type     string        `json:"type"`
	Phase    gesture.Phase `json:"phase"`
	Strength float64       `json:"strength"`
	Position *gesture.Vec3 `json:"position,omitempty"`
	Velocity *gesture.Vec3 `json:"velocity,omitempty"`
	Present  *bool         `json:"present,omitempty"` // pinch only; absent means a hand is visible
	Action   string        `json:"action,omitempty"`  // media: play, pause or seek
	Time     float64       `json:"time,omitempty"`    // media seek position, seconds
	Preset   string        `json:"preset,omitempty"`
	Calm     *bool         `json:"calm,omitempty"`
}

// Dispatch applies msg to c.
func Dispatch(c Controller, msg Inbound) error {
	switch msg.Type {
	case TypeGesture:
		return c.Gesture(gesture.Event{Phase: msg.Phase, Strength: msg.Strength, Position: msg.Position})
	case TypeHand:
		if msg.Position == nil {
			return fmt.Errorf("%w: hand without position", ErrMessage)
		}
		h := gesture.Hand{Position: *msg.Position}
		if msg.Velocity != nil {
			h.Velocity = *msg.Velocity
		}
		return c.Hand(h)
	case TypePinch:
		present := msg.Present == nil || *msg.Present
		return c.Pinch(msg.Strength, present, msg.Position)
	case TypeMedia:
		a, err := engine.ParseMediaAction(msg.Action)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMessage, err)
		}
		return c.MediaEvent(a, msg.Time)
	case TypePreset:
		return c.SetPreset(msg.Preset)
	case TypeCalm:
		if msg.Calm == nil {
			return fmt.Errorf("%w: calm without value", ErrMessage)
		}
		return c.SetCalm(*msg.Calm)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMessage, msg.Type)
	}
}
