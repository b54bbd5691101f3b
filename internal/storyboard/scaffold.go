package storyboard

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ivlev/slides2video/internal/analyzer"
	"github.com/ivlev/slides2video/internal/engine"
	"github.com/ivlev/slides2video/internal/logging"
	"github.com/ivlev/slides2video/internal/source"
)

// audioExts are the narration formats the scaffold pairs by file stem.
var audioExts = []string{".mp3", ".wav", ".m4a", ".aac", ".ogg"}

// analysisDPI keeps PDF page rasters cheap during scaffolding. The
// analyzer downsamples anyway.
const analysisDPI = 96

// Generate drafts a manifest from the assets in dir. Every image becomes an
// item in name order and every PDF expands to one item per page. Narration
// attaches by matching stem: "01.png" picks up "01.mp3", page 2 of
// "deck.pdf" picks up "deck_02.mp3". Each picture is analyzed and the
// suggested camera move leans toward its detail; unreadable pictures fall
// back to the seeded random preset. The draft is meant to be reviewed
// before composing.
func Generate(dir string, log *slog.Logger) (*Storyboard, error) {
	log = logging.Or(log)

	images, err := source.ListImages(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	pdfs, err := listPDFs(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	paths := append(images, pdfs...)
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}

	sb := &Storyboard{
		Version: Version1,
		Defaults: Defaults{
			Duration:           engine.DefaultItemDuration,
			Preset:             "random",
			Transition:         "cross-dissolve",
			TransitionDuration: DefaultTransitionSeconds,
		},
	}

	for _, path := range paths {
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			entries, err := pdfEntries(dir, path, log)
			if err != nil {
				log.Warn("skipping pdf", "path", path, "error", err)
				continue
			}
			sb.Items = append(sb.Items, entries...)
			continue
		}
		sb.Items = append(sb.Items, imageEntry(dir, path, log))
	}
	if len(sb.Items) == 0 {
		return nil, fmt.Errorf("no readable images in %s", dir)
	}

	log.Info("storyboard drafted", "dir", dir, "items", len(sb.Items))
	return sb, nil
}

func imageEntry(dir, path string, log *slog.Logger) Entry {
	e := Entry{Image: relTo(dir, path), Audio: audioFor(dir, stem(path))}
	img, err := source.NewFile(path).Decode()
	if err != nil {
		log.Warn("analysis skipped", "path", path, "error", err)
		return e
	}
	e.Preset = suggest(img)
	return e
}

func pdfEntries(dir, path string, log *slog.Logger) ([]Entry, error) {
	n, err := source.PageCount(path)
	if err != nil {
		return nil, err
	}

	rel := relTo(dir, path)
	entries := make([]Entry, 0, n)
	for page := 1; page <= n; page++ {
		e := Entry{
			Image: fmt.Sprintf("%s#%d", rel, page),
			Audio: audioFor(dir, fmt.Sprintf("%s_%02d", stem(path), page)),
		}
		if img, err := source.NewPDFPage(path, page-1, analysisDPI).Decode(); err == nil {
			e.Preset = suggest(img)
		} else {
			log.Warn("analysis skipped", "path", e.Image, "error", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// suggest returns the preset name for img, or empty to defer to the
// manifest defaults.
func suggest(img image.Image) string {
	f, ok := analyzer.FindFocus(img)
	if !ok {
		return ""
	}
	return presetFor(f, img.Bounds())
}

// presetFor maps a focus region to the camera move that leans toward it.
func presetFor(f analyzer.Focus, bounds image.Rectangle) string {
	if f.Spread >= 0.55 {
		return "push"
	}

	c := f.Center()
	dx := float64(c.X-bounds.Min.X-bounds.Dx()/2) / (float64(bounds.Dx()) / 2)
	dy := float64(c.Y-bounds.Min.Y-bounds.Dy()/2) / (float64(bounds.Dy()) / 2)

	const lean = 0.18
	if math.Abs(dx) < lean && math.Abs(dy) < lean {
		return "focus"
	}
	if math.Abs(dx) >= math.Abs(dy) {
		if dx < 0 {
			return "push-left"
		}
		return "push-right"
	}
	if dy < 0 {
		return "tilt-up"
	}
	return "tilt-down"
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}

// stem is the filename without directory or extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// audioFor returns the first narration file in dir matching the stem,
// relative to dir.
func audioFor(dir, stem string) string {
	for _, ext := range audioExts {
		name := stem + ext
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return name
		}
	}
	return ""
}

// relTo stores paths relative to the manifest directory when possible.
func relTo(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
