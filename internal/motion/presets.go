package motion

import (
	"fmt"
	"hash/fnv"

	"github.com/ivlev/slides2video/internal/curve"
	"github.com/ivlev/slides2video/internal/fault"
)

// Preset names a stock camera move. The catalog mirrors the classic
// documentary moves: push/pull along the axis, pans, tilts, travelling shots
// and focus pulls.
type Preset uint8

const (
	Static Preset = iota
	Push
	Pull
	PanLeft
	PanRight
	TiltUp
	TiltDown
	TravelLeft
	TravelRight
	FollowLeft
	FollowRight
	PushLeft
	PushRight
	PullLeft
	PullRight
	Orbit
	Focus
	Defocus
	// Random picks one of the moves above, seeded by the item id.
	Random
)

var presetNames = map[Preset]string{
	Static:      "static",
	Push:        "push",
	Pull:        "pull",
	PanLeft:     "pan-left",
	PanRight:    "pan-right",
	TiltUp:      "tilt-up",
	TiltDown:    "tilt-down",
	TravelLeft:  "travel-left",
	TravelRight: "travel-right",
	FollowLeft:  "follow-left",
	FollowRight: "follow-right",
	PushLeft:    "push-left",
	PushRight:   "push-right",
	PullLeft:    "pull-left",
	PullRight:   "pull-right",
	Orbit:       "orbit",
	Focus:       "focus",
	Defocus:     "defocus",
	Random:      "random",
}

func (p Preset) String() string {
	if s, ok := presetNames[p]; ok {
		return s
	}
	return fmt.Sprintf("preset(%d)", uint8(p))
}

// ParsePreset maps a catalog name to its Preset.
func ParsePreset(name string) (Preset, error) {
	for p, s := range presetNames {
		if s == name {
			return p, nil
		}
	}
	return Static, fault.Wrap(fault.ErrInvalidConfig, "motion", fmt.Sprintf("unknown preset %q", name), nil)
}

// movable lists every preset Random may resolve to. Static is excluded, same
// as leaving the animation out entirely.
var movable = []Preset{
	Push, Pull, PanLeft, PanRight, TiltUp, TiltDown,
	TravelLeft, TravelRight, FollowLeft, FollowRight,
	PushLeft, PushRight, PullLeft, PullRight, Orbit, Focus, Defocus,
}

// Resolve replaces Random with a concrete move chosen deterministically from
// seed. Concrete presets pass through.
func (p Preset) Resolve(seed string) Preset {
	if p != Random {
		return p
	}
	h := fnv.New64a()
	h.Write([]byte(seed))
	return movable[h.Sum64()%uint64(len(movable))]
}

// Settings expands the preset into concrete motion settings for a clip of the
// given duration. Random must be resolved first; unresolved it expands like
// Static.
func (p Preset) Settings(duration float64) Settings {
	s := Settings{
		Zoom:     ZoomSpec{Start: 1.0, End: 1.0},
		Curve:    curve.EaseInOut,
		Duration: duration,
	}

	switch p {
	case Static, Random:
		s.Curve = curve.Linear
	case Push:
		s.Zoom = ZoomSpec{Start: 1.0, End: 1.2}
	case Pull:
		s.Zoom = ZoomSpec{Start: 1.2, End: 1.0}
	case PanLeft:
		s.Zoom = ZoomSpec{Start: 1.1, End: 1.1}
		s.Pan = PanSpec{Start: Offset{X: 0.05}, End: Offset{X: -0.05}}
	case PanRight:
		s.Zoom = ZoomSpec{Start: 1.1, End: 1.1}
		s.Pan = PanSpec{Start: Offset{X: -0.05}, End: Offset{X: 0.05}}
	case TiltUp:
		s.Zoom = ZoomSpec{Start: 1.1, End: 1.1}
		s.Pan = PanSpec{Start: Offset{Y: 0.05}, End: Offset{Y: -0.05}}
	case TiltDown:
		s.Zoom = ZoomSpec{Start: 1.1, End: 1.1}
		s.Pan = PanSpec{Start: Offset{Y: -0.05}, End: Offset{Y: 0.05}}
	case TravelLeft:
		s.Zoom = ZoomSpec{Start: 1.0, End: 1.15}
		s.Pan = PanSpec{Start: Offset{X: 0.05}, End: Offset{X: -0.05}}
	case TravelRight:
		s.Zoom = ZoomSpec{Start: 1.0, End: 1.15}
		s.Pan = PanSpec{Start: Offset{X: -0.05}, End: Offset{X: 0.05}}
	case FollowLeft:
		s.Zoom = ZoomSpec{Start: 1.1, End: 1.1}
		s.Pan = PanSpec{Start: Offset{X: 0.06}, End: Offset{X: -0.06}}
		s.Curve = curve.Linear
	case FollowRight:
		s.Zoom = ZoomSpec{Start: 1.1, End: 1.1}
		s.Pan = PanSpec{Start: Offset{X: -0.06}, End: Offset{X: 0.06}}
		s.Curve = curve.Linear
	case PushLeft:
		s.Zoom = ZoomSpec{Start: 1.0, End: 1.2}
		s.Pan = PanSpec{Start: Offset{X: 0.03}, End: Offset{X: -0.03}}
	case PushRight:
		s.Zoom = ZoomSpec{Start: 1.0, End: 1.2}
		s.Pan = PanSpec{Start: Offset{X: -0.03}, End: Offset{X: 0.03}}
	case PullLeft:
		s.Zoom = ZoomSpec{Start: 1.2, End: 1.0}
		s.Pan = PanSpec{Start: Offset{X: 0.03}, End: Offset{X: -0.03}}
	case PullRight:
		s.Zoom = ZoomSpec{Start: 1.2, End: 1.0}
		s.Pan = PanSpec{Start: Offset{X: -0.03}, End: Offset{X: 0.03}}
	case Orbit:
		s.Zoom = ZoomSpec{Start: 1.1, End: 1.1}
		s.Pan = PanSpec{Start: Offset{X: -0.04, Y: -0.04}, End: Offset{X: 0.04, Y: 0.04}}
	case Focus:
		s.Zoom = ZoomSpec{Start: 1.0, End: 1.2}
		s.Curve = curve.EaseIn
	case Defocus:
		s.Zoom = ZoomSpec{Start: 1.2, End: 1.0}
		s.Curve = curve.EaseOut
	}

	return s
}
