// Package storyboard defines the YAML manifest that drives a composition:
// which images appear in what order, the camera move and narration for
// each, and the transition at every boundary. A manifest is usually
// scaffolded from a directory of assets, edited by hand, then turned into
// an engine job.
package storyboard

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/slides2video/internal/fault"
	"github.com/ivlev/slides2video/internal/motion"
)

// Version1 is the only manifest schema this build understands.
const Version1 = "1"

// DefaultTransitionSeconds applies when an entry names a transition but no
// length for it.
const DefaultTransitionSeconds = 1.0

// Storyboard is the on-disk manifest.
type Storyboard struct {
	Version     string   `yaml:"version,omitempty"`
	Defaults    Defaults `yaml:"defaults,omitempty"`
	Music       string   `yaml:"music,omitempty"`
	MusicVolume float64  `yaml:"music_volume,omitempty"`
	Quality     string   `yaml:"quality,omitempty"`
	Output      string   `yaml:"output,omitempty"`
	Items       []Entry  `yaml:"items"`
}

// Defaults fills entry fields left empty.
type Defaults struct {
	Duration           float64 `yaml:"duration,omitempty"`
	Preset             string  `yaml:"preset,omitempty"`
	Transition         string  `yaml:"transition,omitempty"`
	TransitionDuration float64 `yaml:"transition_duration,omitempty"`
}

// Entry is one picture on the timeline. Image is a plain file path or a
// PDF page reference such as "deck.pdf#3". Transition names the effect
// into the next entry; on the final entry it is ignored.
type Entry struct {
	Image              string  `yaml:"image"`
	Audio              string  `yaml:"audio,omitempty"`
	Preset             string  `yaml:"preset,omitempty"`
	Motion             *Motion `yaml:"motion,omitempty"`
	Duration           float64 `yaml:"duration,omitempty"`
	Transition         string  `yaml:"transition,omitempty"`
	TransitionDuration float64 `yaml:"transition_duration,omitempty"`
}

// Motion spells out an explicit camera move, overriding any preset on the
// entry. A zero Zoom means no zoom rather than an invalid one.
type Motion struct {
	Zoom  motion.ZoomSpec `yaml:"zoom,omitempty"`
	Pan   motion.PanSpec  `yaml:"pan,omitempty"`
	Curve string          `yaml:"curve,omitempty"`
}

// Read loads a manifest from path.
func Read(path string) (*Storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storyboard: %w", err)
	}

	var s Storyboard
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse storyboard %s: %w", path, err)
	}
	if s.Version != "" && s.Version != Version1 {
		return nil, fault.Wrap(fault.ErrInvalidConfig, "storyboard",
			fmt.Sprintf("unsupported version %q", s.Version), nil)
	}
	return &s, nil
}

// Write saves the manifest to path.
func Write(s *Storyboard, path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
