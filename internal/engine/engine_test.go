package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ivlev/slides2video/internal/cache"
	"github.com/ivlev/slides2video/internal/config"
	"github.com/ivlev/slides2video/internal/curve"
	"github.com/ivlev/slides2video/internal/fault"
	"github.com/ivlev/slides2video/internal/motion"
	"github.com/ivlev/slides2video/internal/source"
	"github.com/ivlev/slides2video/internal/transition"
)

func solidPNG(t *testing.T, w, h int, c color.RGBA) source.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return source.NewBytes(fmt.Sprintf("solid-%02x%02x%02x.png", c.R, c.G, c.B), buf.Bytes())
}

func writeStub(t *testing.T, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub executables need a shell")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// ffmpegStub consumes the raw frame stream and writes the byte count into
// the output file, which is always the last argument.
const ffmpegStub = `eval out=\${$#}
wc -c > "$out"`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Width = 64
	cfg.Height = 48
	cfg.FPS = 10
	cfg.Workers = 2
	cfg.VideoEncoder = "libx264"
	return cfg
}

func testPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	store, err := cache.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(cfg, cache.New(store, nil, nil), nil, nil, nil, nil)
}

func easeMotion(duration float64) *motion.Settings {
	return &motion.Settings{
		Zoom:     motion.ZoomSpec{Start: 1.0, End: 1.2},
		Curve:    curve.EaseInOut,
		Duration: duration,
	}
}

func TestPlanTimeline(t *testing.T) {
	cfg := testConfig()
	cfg.Width, cfg.Height = 640, 480
	cfg.FPS = 30
	cfg.FFprobePath = writeStub(t, "ffprobe", "echo 1.000000")
	p := testPipeline(t, cfg)

	job := Job{
		Items: []Item{
			{ID: "a", Image: solidPNG(t, 64, 48, color.RGBA{200, 30, 30, 255}), Motion: easeMotion(4), AudioPath: "a.mp3"},
			{ID: "b", Image: solidPNG(t, 64, 48, color.RGBA{30, 200, 30, 255}), Motion: easeMotion(5), AudioPath: "b.mp3"},
			{ID: "c", Image: solidPNG(t, 64, 48, color.RGBA{30, 30, 200, 255}), Motion: easeMotion(6), AudioPath: "c.mp3"},
		},
		Boundaries: []Boundary{
			{Type: transition.CrossDissolve, Seconds: 1.0},
			{Type: transition.SlideLeft, Seconds: 0.5},
		},
		Quality: "medium",
		OutPath: filepath.Join(t.TempDir(), "out.mp4"),
	}

	pl, err := p.plan(context.Background(), job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if pl.width != 1280 || pl.height != 720 {
		t.Errorf("quality override not applied: %dx%d", pl.width, pl.height)
	}
	wantFrames := []int{120, 150, 180}
	for i, it := range pl.items {
		if it.frames != wantFrames[i] {
			t.Errorf("item %d: %d frames, want %d", i, it.frames, wantFrames[i])
		}
	}
	wantWindows := []int{30, 15}
	for j, b := range pl.boundaries {
		if b.frames != wantWindows[j] {
			t.Errorf("boundary %d: %d frames, want %d", j, b.frames, wantWindows[j])
		}
	}
	if pl.frames != 405 {
		t.Errorf("total frames = %d, want 405", pl.frames)
	}
	if got := pl.seconds(cfg.FPS); got != 13.5 {
		t.Errorf("total duration = %v, want 13.5", got)
	}

	wantOffsets := []float64{0, 3.0, 7.5}
	wantWindowsSec := []float64{4, 5, 6}
	if len(pl.mix.Tracks) != 3 {
		t.Fatalf("got %d audio tracks, want 3", len(pl.mix.Tracks))
	}
	for i, tr := range pl.mix.Tracks {
		if tr.Offset != wantOffsets[i] {
			t.Errorf("track %d offset = %v, want %v", i, tr.Offset, wantOffsets[i])
		}
		if tr.Window != wantWindowsSec[i] {
			t.Errorf("track %d window = %v, want %v", i, tr.Window, wantWindowsSec[i])
		}
	}
	if pl.mix.Total != 13.5 {
		t.Errorf("mix total = %v, want 13.5", pl.mix.Total)
	}

	keys := map[string]bool{}
	for _, it := range pl.items {
		if it.key == "" || keys[it.key] {
			t.Errorf("item %d: missing or duplicate cache key", it.index)
		}
		keys[it.key] = true
	}
}

func TestPlanAudioExtension(t *testing.T) {
	cfg := testConfig()
	cfg.FFprobePath = writeStub(t, "ffprobe", "echo 2.530000")
	p := testPipeline(t, cfg)

	img := solidPNG(t, 64, 48, color.RGBA{90, 90, 90, 255})
	out := filepath.Join(t.TempDir(), "out.mp4")

	with, err := p.plan(context.Background(), Job{
		Items:   []Item{{ID: "x", Image: img, Motion: easeMotion(1.0), AudioPath: "voice.mp3"}},
		OutPath: out,
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	// 2.53s narration on the 10fps grid rounds to 2.5s.
	if with.items[0].frames != 25 {
		t.Errorf("extended frames = %d, want 25", with.items[0].frames)
	}
	if with.mix.Tracks[0].Window != 2.5 {
		t.Errorf("track window = %v, want 2.5", with.mix.Tracks[0].Window)
	}

	without, err := p.plan(context.Background(), Job{
		Items:   []Item{{ID: "x", Image: img, Motion: easeMotion(1.0)}},
		OutPath: out,
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if without.items[0].frames != 10 {
		t.Errorf("unextended frames = %d, want 10", without.items[0].frames)
	}
	if with.items[0].key == without.items[0].key {
		t.Error("extension did not change the cache key")
	}
}

func TestPlanShortAudioKeepsDuration(t *testing.T) {
	cfg := testConfig()
	cfg.FFprobePath = writeStub(t, "ffprobe", "echo 0.400000")
	p := testPipeline(t, cfg)

	pl, err := p.plan(context.Background(), Job{
		Items: []Item{{
			ID:        "x",
			Image:     solidPNG(t, 64, 48, color.RGBA{90, 90, 90, 255}),
			Motion:    easeMotion(1.0),
			AudioPath: "voice.mp3",
		}},
		OutPath: filepath.Join(t.TempDir(), "out.mp4"),
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if pl.items[0].frames != 10 {
		t.Errorf("frames = %d, want 10", pl.items[0].frames)
	}
	// The short track is padded out to the item window, not the reverse.
	if pl.mix.Tracks[0].Window != 1.0 {
		t.Errorf("track window = %v, want 1.0", pl.mix.Tracks[0].Window)
	}
}

func TestPlanClampsWindow(t *testing.T) {
	cfg := testConfig()
	p := testPipeline(t, cfg)

	pl, err := p.plan(context.Background(), Job{
		Items: []Item{
			{ID: "a", Image: solidPNG(t, 64, 48, color.RGBA{10, 10, 10, 255}), Motion: easeMotion(1.0)},
			{ID: "b", Image: solidPNG(t, 64, 48, color.RGBA{20, 20, 20, 255}), Motion: easeMotion(1.0)},
		},
		Boundaries: []Boundary{{Type: transition.CrossDissolve, Seconds: 5.0}},
		OutPath:    filepath.Join(t.TempDir(), "out.mp4"),
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if pl.boundaries[0].frames != 10 {
		t.Errorf("window = %d frames, want clamped 10", pl.boundaries[0].frames)
	}
	if pl.frames != 10 {
		t.Errorf("total frames = %d, want 10", pl.frames)
	}
}

func TestPlanDepletedBoundaryFails(t *testing.T) {
	cfg := testConfig()
	p := testPipeline(t, cfg)

	img := solidPNG(t, 64, 48, color.RGBA{10, 10, 10, 255})
	// The first window consumes the whole middle item, leaving the second
	// boundary nothing to blend.
	_, err := p.plan(context.Background(), Job{
		Items: []Item{
			{ID: "a", Image: img, Motion: easeMotion(1.0)},
			{ID: "b", Image: img, Motion: easeMotion(1.0)},
			{ID: "c", Image: img, Motion: easeMotion(1.0)},
		},
		Boundaries: []Boundary{
			{Type: transition.CrossDissolve, Seconds: 1.0},
			{Type: transition.CrossDissolve, Seconds: 1.0},
		},
		OutPath: filepath.Join(t.TempDir(), "out.mp4"),
	})
	if !errors.Is(err, fault.ErrTransition) {
		t.Fatalf("err = %v, want ErrTransition", err)
	}
	var se *fault.StageError
	if !errors.As(err, &se) || se.Stage != fault.StageTransition || se.Item != 1 {
		t.Errorf("stage attribution = %v", err)
	}
}

func TestPlanRandomIsDeterministic(t *testing.T) {
	cfg := testConfig()
	p := testPipeline(t, cfg)

	job := Job{
		Items: []Item{
			{ID: "left", Image: solidPNG(t, 64, 48, color.RGBA{10, 10, 10, 255}), Preset: motion.Random, Duration: 1},
			{ID: "right", Image: solidPNG(t, 64, 48, color.RGBA{20, 20, 20, 255}), Preset: motion.Random, Duration: 1},
		},
		Boundaries: []Boundary{{Type: transition.Random, Seconds: 0.4}},
		OutPath:    filepath.Join(t.TempDir(), "out.mp4"),
	}

	first, err := p.plan(context.Background(), job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	second, err := p.plan(context.Background(), job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	for i := range first.items {
		a, b := first.items[i], second.items[i]
		if a.settings.Canonical() != b.settings.Canonical() {
			t.Errorf("item %d settings differ across plans: %s vs %s", i, a.settings.Canonical(), b.settings.Canonical())
		}
		if a.key != b.key {
			t.Errorf("item %d keys differ across plans", i)
		}
	}
	kind := first.boundaries[0].kind
	if kind != second.boundaries[0].kind {
		t.Error("boundary type differs across plans")
	}
	if kind == transition.Random || kind == transition.None {
		t.Errorf("boundary resolved to %v", kind)
	}
}

func TestPlanValidation(t *testing.T) {
	cfg := testConfig()
	p := testPipeline(t, cfg)
	img := solidPNG(t, 64, 48, color.RGBA{10, 10, 10, 255})
	out := filepath.Join(t.TempDir(), "out.mp4")

	tests := []struct {
		name string
		job  Job
	}{
		{"no items", Job{OutPath: out}},
		{"no output", Job{Items: []Item{{Image: img}}}},
		{"boundary count", Job{
			Items:      []Item{{Image: img}, {Image: img}},
			Boundaries: []Boundary{{}, {}},
			OutPath:    out,
		}},
		{"missing image", Job{Items: []Item{{}}, OutPath: out}},
		{"bad quality", Job{Items: []Item{{Image: img}}, Quality: "4k", OutPath: out}},
		{"negative transition", Job{
			Items:      []Item{{Image: img}, {Image: img}},
			Boundaries: []Boundary{{Type: transition.CrossDissolve, Seconds: -1}},
			OutPath:    out,
		}},
		{"music volume", Job{
			Items:       []Item{{Image: img}},
			MusicPath:   "bed.mp3",
			MusicVolume: 1.5,
			OutPath:     out,
		}},
		{"zoom out of range", Job{
			Items: []Item{{
				Image:  img,
				Motion: &motion.Settings{Zoom: motion.ZoomSpec{Start: 5, End: 5}, Duration: 1},
			}},
			OutPath: out,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.plan(context.Background(), tt.job)
			if !errors.Is(err, fault.ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			var se *fault.StageError
			if !errors.As(err, &se) || se.Stage != fault.StageValidate {
				t.Errorf("stage = %v, want validate", err)
			}
		})
	}
}

func TestComposeEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.FFmpegPath = writeStub(t, "ffmpeg", ffmpegStub)
	p := testPipeline(t, cfg)

	out := filepath.Join(t.TempDir(), "final.mp4")
	job := Job{
		ID: "e2e",
		Items: []Item{
			{ID: "a", Image: solidPNG(t, 64, 48, color.RGBA{200, 40, 40, 255}), Motion: easeMotion(0.5)},
			{ID: "b", Image: solidPNG(t, 64, 48, color.RGBA{40, 200, 40, 255}), Motion: easeMotion(0.5)},
		},
		Boundaries: []Boundary{{Type: transition.CrossDissolve, Seconds: 0.2}},
		OutPath:    out,
	}

	res, err := p.Compose(context.Background(), job)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	const wantFrames = 8 // 5 + 5 - 2
	if res.Frames != wantFrames {
		t.Errorf("frames = %d, want %d", res.Frames, wantFrames)
	}
	if res.Duration != 0.8 {
		t.Errorf("duration = %v, want 0.8", res.Duration)
	}
	if res.TransitionFrames != 2 || res.Transitions != 1 {
		t.Errorf("transition stats = %d/%d, want 1/2", res.Transitions, res.TransitionFrames)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	var streamed int
	if _, err := fmt.Sscanf(string(data), "%d", &streamed); err != nil {
		t.Fatalf("stub output %q: %v", data, err)
	}
	if want := wantFrames * 64 * 48 * 4; streamed != want {
		t.Errorf("streamed %d bytes, want %d", streamed, want)
	}
	if _, err := os.Stat(out + ".part"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	// A second run is served from the segment cache and still produces the
	// same stream.
	res2, err := p.Compose(context.Background(), job)
	if err != nil {
		t.Fatalf("second compose: %v", err)
	}
	if res2.Frames != wantFrames {
		t.Errorf("second run frames = %d, want %d", res2.Frames, wantFrames)
	}
}

func TestComposeRenderFailureAttribution(t *testing.T) {
	cfg := testConfig()
	cfg.FFmpegPath = writeStub(t, "ffmpeg", ffmpegStub)
	p := testPipeline(t, cfg)

	out := filepath.Join(t.TempDir(), "final.mp4")
	_, err := p.Compose(context.Background(), Job{
		Items: []Item{
			{ID: "ok", Image: solidPNG(t, 64, 48, color.RGBA{10, 10, 10, 255}), Motion: easeMotion(0.5)},
			{ID: "broken", Image: source.NewBytes("broken.png", []byte("not an image")), Motion: easeMotion(0.5)},
		},
		Boundaries: []Boundary{{}},
		OutPath:    out,
	})
	if !errors.Is(err, fault.ErrImageDecode) {
		t.Fatalf("err = %v, want ErrImageDecode", err)
	}
	var se *fault.StageError
	if !errors.As(err, &se) || se.Stage != fault.StageRender || se.Item != 1 {
		t.Errorf("stage attribution = %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("failed job left an output file")
	}
	if _, statErr := os.Stat(out + ".part"); !os.IsNotExist(statErr) {
		t.Error("failed job left a partial file")
	}
}

func TestComposeCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.FFmpegPath = writeStub(t, "ffmpeg", ffmpegStub)
	p := testPipeline(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Compose(ctx, Job{
		Items:   []Item{{ID: "a", Image: solidPNG(t, 64, 48, color.RGBA{10, 10, 10, 255}), Motion: easeMotion(0.5)}},
		OutPath: filepath.Join(t.TempDir(), "final.mp4"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPreview(t *testing.T) {
	cfg := testConfig()
	cfg.FFmpegPath = writeStub(t, "ffmpeg", ffmpegStub)
	p := testPipeline(t, cfg)

	out := filepath.Join(t.TempDir(), "preview.mp4")
	res, err := p.Preview(context.Background(),
		Item{ID: "solo", Image: solidPNG(t, 64, 48, color.RGBA{120, 60, 60, 255}), Motion: easeMotion(0.3)},
		out)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if res.Frames != 3 {
		t.Errorf("frames = %d, want 3", res.Frames)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("preview file missing: %v", err)
	}
}

func TestResultReport(t *testing.T) {
	res := Result{
		Path:             "out.mp4",
		Width:            1280,
		Height:           720,
		FPS:              30,
		Items:            3,
		Transitions:      2,
		Frames:           405,
		TransitionFrames: 45,
		Duration:         13.5,
		Elapsed:          2 * time.Second,
	}
	report := res.Report()
	for _, want := range []string{"out.mp4", "1280x720", "405", "13.50s"} {
		if !bytes.Contains([]byte(report), []byte(want)) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	logPath := filepath.Join(t.TempDir(), "benchmark.log")
	if err := res.AppendBenchmark(logPath); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := res.AppendBenchmark(logPath); err != nil {
		t.Fatalf("second append: %v", err)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := bytes.Count(data, []byte("\n")); got != 2 {
		t.Errorf("benchmark log has %d lines, want 2", got)
	}
}
