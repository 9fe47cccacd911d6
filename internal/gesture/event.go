// SPDX-License-Identifier: MIT
//
// Package gesture maps hand-tracking samples onto the engine: continuous
// hand position and speed become filter, delay and tempo changes, and pinch
// strength becomes start/hold/end events for break mode.
package gesture

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Phase is the stage of a held gesture.
type Phase int

const (
	Start Phase = iota
	Hold
	End
)

func (p Phase) String() string {
	switch p {
	case Start:
		return "start"
	case Hold:
		return "hold"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

// ParsePhase converts "start", "hold" or "end" (case-insensitive).
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return Start, nil
	case "hold":
		return Hold, nil
	case "end":
		return End, nil
	default:
		return End, fmt.Errorf("unknown gesture phase %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Vec3 is a point or velocity in world units.
type Vec3 struct {
	X, Y, Z float64
}

// MarshalJSON encodes the vector as [x, y, z].
func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{v.X, v.Y, v.Z})
}

// UnmarshalJSON accepts [x, y, z] or {"x":..,"y":..,"z":..}.
func (v *Vec3) UnmarshalJSON(b []byte) error {
	var arr []float64
	if err := json.Unmarshal(b, &arr); err == nil {
		*v = Vec3{}
		if len(arr) > 0 {
			v.X = arr[0]
		}
		if len(arr) > 1 {
			v.Y = arr[1]
		}
		if len(arr) > 2 {
			v.Z = arr[2]
		}
		return nil
	}
	var obj struct{ X, Y, Z float64 }
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("vector must be [x,y,z] or {x,y,z}: %w", err)
	}
	*v = Vec3{obj.X, obj.Y, obj.Z}
	return nil
}

// Len returns the Euclidean length, or 0 for non-finite components.
func (v Vec3) Len() float64 {
	l := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	if math.IsNaN(l) || math.IsInf(l, 0) {
		return 0
	}
	return l
}

// Event is one gesture sample for break mode. Position is optional.
type Event struct {
	Phase    Phase   `json:"phase"`
	Strength float64 `json:"strength"`
	Position *Vec3   `json:"position,omitempty"`
}

// Hand is one continuous hand-tracking sample.
type Hand struct {
	Position Vec3 `json:"position"`
	Velocity Vec3 `json:"velocity"`
}
