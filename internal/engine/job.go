package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/ivlev/slides2video/internal/motion"
	"github.com/ivlev/slides2video/internal/source"
	"github.com/ivlev/slides2video/internal/transition"
)

// Item is one picture on the composition timeline.
type Item struct {
	// ID seeds every per-item random choice (preset, curve, transition).
	// Left empty, a fresh identifier is assigned and those choices stop
	// being reproducible across runs.
	ID    string
	Image source.Image

	// AudioPath optionally attaches a narration track. When the track runs
	// longer than the configured duration the item is extended to match.
	AudioPath string

	// Preset picks a stock camera move. Motion, when non-nil, overrides it
	// with explicit settings.
	Preset motion.Preset
	Motion *motion.Settings

	// Duration in seconds. Zero falls back to Motion.Duration, then to
	// DefaultItemDuration.
	Duration float64
}

// Boundary joins two adjacent items. Seconds is a request; the effective
// window is clamped to what both neighbours can afford.
type Boundary struct {
	Type    transition.Type
	Seconds float64
}

// Job is one full composition: ordered items, one boundary per adjacent
// pair, an optional music bed and the output location.
type Job struct {
	ID    string
	Items []Item

	// Boundaries must hold exactly len(Items)-1 entries. A nil slice
	// stands for a hard cut at every boundary.
	Boundaries []Boundary

	MusicPath   string
	MusicVolume float64

	// Quality overrides the pipeline-wide profile for this job and forces
	// the profile's resolution. Empty keeps the configured one.
	Quality string

	OutPath string
}

// DefaultItemDuration applies when neither the item nor its motion settings
// carry one.
const DefaultItemDuration = 5.0

// Result reports what a finished composition produced.
type Result struct {
	Path             string
	Width            int
	Height           int
	FPS              int
	Items            int
	Transitions      int
	Frames           int
	TransitionFrames int
	Duration         float64
	Elapsed          time.Duration
}

// Report formats a human-readable performance summary.
func (r Result) Report() string {
	fps := 0.0
	if r.Elapsed > 0 {
		fps = float64(r.Frames) / r.Elapsed.Seconds()
	}
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Output: %s\n"+
			"Resolution: %dx%d @ %d FPS\n"+
			"Items: %d | Transitions: %d (%d composited frames)\n"+
			"Frames: %d (%.2fs)\n"+
			"Wall time: %.2fs | Effective FPS: %.1f\n"+
			"----------------------------\n",
		r.Path, r.Width, r.Height, r.FPS,
		r.Items, r.Transitions, r.TransitionFrames,
		r.Frames, r.Duration,
		r.Elapsed.Seconds(), fps,
	)
}

// AppendBenchmark adds one timing line to the log at path, creating the file
// if needed.
func (r Result) AppendBenchmark(path string) error {
	fps := 0.0
	if r.Elapsed > 0 {
		fps = float64(r.Frames) / r.Elapsed.Seconds()
	}
	line := fmt.Sprintf("[%s] Output: %s | Items: %d | Frames: %d | Duration: %.2fs | Wall: %.2fs | FPS: %.1f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		r.Path, r.Items, r.Frames, r.Duration, r.Elapsed.Seconds(), fps)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
