package storyboard

import (
	"fmt"
	"path/filepath"

	"github.com/ivlev/slides2video/internal/curve"
	"github.com/ivlev/slides2video/internal/engine"
	"github.com/ivlev/slides2video/internal/fault"
	"github.com/ivlev/slides2video/internal/motion"
	"github.com/ivlev/slides2video/internal/source"
	"github.com/ivlev/slides2video/internal/transition"
)

// ToJob converts the manifest into a composition job. Relative asset paths
// resolve against base, normally the manifest's directory. Item identifiers
// derive from position and filename, so seeded camera and transition
// choices repeat across runs of the same manifest.
func (s *Storyboard) ToJob(base string) (engine.Job, error) {
	job := engine.Job{
		MusicPath:   resolve(base, s.Music),
		MusicVolume: s.MusicVolume,
		Quality:     s.Quality,
		OutPath:     resolve(base, s.Output),
	}

	for i, e := range s.Items {
		item, err := s.item(base, i, e)
		if err != nil {
			return engine.Job{}, err
		}
		job.Items = append(job.Items, item)
	}

	for i := 0; i+1 < len(s.Items); i++ {
		b, err := s.boundary(i)
		if err != nil {
			return engine.Job{}, err
		}
		job.Boundaries = append(job.Boundaries, b)
	}
	return job, nil
}

func (s *Storyboard) item(base string, i int, e Entry) (engine.Item, error) {
	if e.Image == "" {
		return engine.Item{}, fault.AtItem(fault.StageValidate, i,
			fault.Wrap(fault.ErrInvalidConfig, "storyboard", "entry without image", nil))
	}
	img, err := source.Parse(resolve(base, e.Image), 0)
	if err != nil {
		return engine.Item{}, fault.AtItem(fault.StageValidate, i, err)
	}

	item := engine.Item{
		ID:        fmt.Sprintf("%03d-%s", i+1, filepath.Base(e.Image)),
		Image:     img,
		AudioPath: resolve(base, e.Audio),
		Duration:  pick(e.Duration, s.Defaults.Duration),
	}

	if e.Motion != nil {
		m, err := e.Motion.settings(item.Duration)
		if err != nil {
			return engine.Item{}, fault.AtItem(fault.StageValidate, i,
				fault.Wrap(fault.ErrInvalidConfig, "storyboard", e.Image, err))
		}
		item.Motion = &m
		return item, nil
	}

	name := e.Preset
	if name == "" {
		name = s.Defaults.Preset
	}
	if name == "" {
		name = "random"
	}
	p, err := motion.ParsePreset(name)
	if err != nil {
		return engine.Item{}, fault.AtItem(fault.StageValidate, i,
			fault.Wrap(fault.ErrInvalidConfig, "storyboard", e.Image, err))
	}
	item.Preset = p
	return item, nil
}

// boundary builds the transition after item i. An empty name, there and in
// the defaults, means a hard cut.
func (s *Storyboard) boundary(i int) (engine.Boundary, error) {
	e := s.Items[i]
	name := e.Transition
	if name == "" {
		name = s.Defaults.Transition
	}
	if name == "" {
		return engine.Boundary{}, nil
	}

	t, err := transition.Parse(name)
	if err != nil {
		return engine.Boundary{}, fault.AtItem(fault.StageValidate, i,
			fault.Wrap(fault.ErrInvalidConfig, "storyboard", e.Image, err))
	}
	if t == transition.None {
		return engine.Boundary{}, nil
	}

	secs := pick(e.TransitionDuration, s.Defaults.TransitionDuration)
	if secs <= 0 {
		secs = DefaultTransitionSeconds
	}
	return engine.Boundary{Type: t, Seconds: secs}, nil
}

func (m *Motion) settings(duration float64) (motion.Settings, error) {
	c := curve.EaseInOut
	if m.Curve != "" {
		var err error
		c, err = curve.Parse(m.Curve)
		if err != nil {
			return motion.Settings{}, err
		}
	}
	zoom := m.Zoom
	if zoom == (motion.ZoomSpec{}) {
		zoom = motion.ZoomSpec{Start: 1, End: 1}
	}
	return motion.Settings{Zoom: zoom, Pan: m.Pan, Curve: c, Duration: duration}, nil
}

func pick(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

func resolve(base, p string) string {
	if p == "" || base == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
