package motion

import (
	"fmt"
	"math"

	"github.com/ivlev/slides2video/internal/curve"
	"github.com/ivlev/slides2video/internal/fault"
)

// Offset is a pan position in normalized image coordinates. 0.05 on X shifts
// the camera by 5% of the canvas width.
type Offset struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// ZoomSpec sweeps the scale factor from Start to End over the clip.
type ZoomSpec struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// PanSpec sweeps the pan offset from Start to End over the clip.
type PanSpec struct {
	Start Offset `yaml:"start"`
	End   Offset `yaml:"end"`
}

// Settings describes one item's camera motion. Replace the whole value to
// change anything; the render cache keys on the serialized form.
type Settings struct {
	Zoom     ZoomSpec    `yaml:"zoom"`
	Pan      PanSpec     `yaml:"pan"`
	Curve    curve.Curve `yaml:"-"`
	Duration float64     `yaml:"duration"`
}

const (
	MinScale    = 0.5
	MaxScale    = 3.0
	MaxPan      = 0.5
	MaxDuration = 600.0
)

// Validate checks zoom, pan and duration bounds.
func (s Settings) Validate() error {
	for _, z := range []float64{s.Zoom.Start, s.Zoom.End} {
		if z < MinScale || z > MaxScale {
			return fault.Wrap(fault.ErrInvalidConfig, "motion", fmt.Sprintf("scale %.3f outside [%.1f, %.1f]", z, MinScale, MaxScale), nil)
		}
	}
	for _, o := range []Offset{s.Pan.Start, s.Pan.End} {
		if math.Abs(o.X) > MaxPan || math.Abs(o.Y) > MaxPan {
			return fault.Wrap(fault.ErrInvalidConfig, "motion", fmt.Sprintf("pan (%.3f, %.3f) outside ±%.1f", o.X, o.Y, MaxPan), nil)
		}
	}
	if s.Duration <= 0 || s.Duration > MaxDuration {
		return fault.Wrap(fault.ErrInvalidConfig, "motion", fmt.Sprintf("duration %.3fs outside (0, %.0f]", s.Duration, MaxDuration), nil)
	}
	return nil
}

// Resolve pins a random curve choice to the given seed so the settings become
// fully concrete before key computation.
func (s Settings) Resolve(seed string) Settings {
	s.Curve = s.Curve.Resolve(seed)
	return s
}

// Canonical returns a stable serialization of every field. Cache keys hash
// this string, so any change here invalidates previously cached segments.
func (s Settings) Canonical() string {
	return fmt.Sprintf("z=%.6f:%.6f;p=%.6f,%.6f:%.6f,%.6f;c=%s;d=%.6f",
		s.Zoom.Start, s.Zoom.End,
		s.Pan.Start.X, s.Pan.Start.Y, s.Pan.End.X, s.Pan.End.Y,
		s.Curve, s.Duration)
}

// FrameCount is the number of output frames the settings produce at fps,
// never less than one.
func (s Settings) FrameCount(fps int) int {
	n := int(math.Round(s.Duration * float64(fps)))
	if n < 1 {
		n = 1
	}
	return n
}

// At returns the scale and pan offset for curve progress p.
func (s Settings) At(p float64) (scale float64, pan Offset) {
	scale = s.Zoom.Start + (s.Zoom.End-s.Zoom.Start)*p
	pan = Offset{
		X: s.Pan.Start.X + (s.Pan.End.X-s.Pan.Start.X)*p,
		Y: s.Pan.Start.Y + (s.Pan.End.Y-s.Pan.Start.Y)*p,
	}
	return scale, pan
}
