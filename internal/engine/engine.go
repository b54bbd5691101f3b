// Package engine runs whole compositions. Every item is rendered into a
// cached segment, segments are stitched at their boundaries by the
// transition compositor into one ordered frame stream, and the stream is
// encoded and muxed with the reconciled narration and music tracks.
package engine

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/slides2video/internal/audio"
	"github.com/ivlev/slides2video/internal/cache"
	"github.com/ivlev/slides2video/internal/config"
	"github.com/ivlev/slides2video/internal/fault"
	"github.com/ivlev/slides2video/internal/logging"
	"github.com/ivlev/slides2video/internal/metrics"
	"github.com/ivlev/slides2video/internal/motion"
	"github.com/ivlev/slides2video/internal/render"
	"github.com/ivlev/slides2video/internal/segment"
	"github.com/ivlev/slides2video/internal/source"
	"github.com/ivlev/slides2video/internal/transition"
	"github.com/ivlev/slides2video/internal/video"
)

// cancelEvery bounds how many frames the assembler emits between
// cancellation checks.
const cancelEvery = 8

// Pipeline owns one composition flow from job description to muxed file.
type Pipeline struct {
	cfg    *config.Config
	cache  *cache.Cache
	prober *audio.Prober
	enc    *video.Encoder
	log    *slog.Logger
	met    *metrics.Metrics
}

// New wires a pipeline. A nil prober or encoder falls back to the binaries
// named in cfg; the cache is required.
func New(cfg *config.Config, c *cache.Cache, prober *audio.Prober, enc *video.Encoder, log *slog.Logger, met *metrics.Metrics) *Pipeline {
	log = logging.Or(log)
	if prober == nil {
		prober = audio.NewProber(cfg.FFprobePath)
	}
	if enc == nil {
		enc = video.New(cfg.FFmpegPath, cfg.VideoEncoder, log)
	}
	return &Pipeline{cfg: cfg, cache: c, prober: prober, enc: enc, log: log, met: met}
}

// plannedItem is one timeline item after resolution: concrete settings,
// frame count and cache key. ready closes once seg or err is set.
type plannedItem struct {
	index    int
	id       string
	image    source.Image
	settings motion.Settings
	frames   int
	key      string

	ready chan struct{}
	seg   *segment.Segment
	err   error
}

// plannedBoundary is a boundary after window clamping. frames is zero for
// hard cuts.
type plannedBoundary struct {
	kind    transition.Type
	frames  int
	seconds float64
}

type plan struct {
	width      int
	height     int
	profile    config.Profile
	items      []*plannedItem
	boundaries []plannedBoundary
	mix        audio.MixSpec
	frames     int
}

func (pl *plan) seconds(fps int) float64 {
	return float64(pl.frames) / float64(fps)
}

func (pl *plan) transitionStats() (count, frames int) {
	for _, b := range pl.boundaries {
		if b.frames > 0 {
			count++
			frames += b.frames
		}
	}
	return count, frames
}

// Compose runs the whole job: plan, render all segments in parallel through
// the cache, assemble the frame stream with transitions and encode it. The
// finished file appears at job.OutPath only on success; failures leave
// nothing there and report the failing stage and item.
func (p *Pipeline) Compose(ctx context.Context, job Job) (Result, error) {
	start := time.Now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := p.log.With("job", job.ID)

	fail := func(err error) (Result, error) {
		if p.met != nil {
			p.met.IncJob("error")
		}
		log.Error("composition failed", "err", err)
		return Result{}, err
	}

	pl, err := p.plan(ctx, job)
	if err != nil {
		return fail(err)
	}

	log.Info("composition planned",
		"items", len(pl.items),
		"resolution", fmt.Sprintf("%dx%d", pl.width, pl.height),
		"fps", p.cfg.FPS,
		"frames", pl.frames,
		"duration", pl.seconds(p.cfg.FPS))

	if err := os.MkdirAll(filepath.Dir(job.OutPath), 0755); err != nil {
		return fail(fault.AtStage(fault.StageEncode,
			fault.Wrap(fault.ErrEncode, "encode", "output directory", err)))
	}
	tmp := job.OutPath + ".part"

	eng := render.New(pl.width, pl.height, p.cfg.FPS, p.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rg, rctx := errgroup.WithContext(gctx)
		rg.SetLimit(min(p.cfg.Workers, len(pl.items)))
		for _, it := range pl.items {
			rg.Go(func() error { return p.produce(rctx, eng, pl, it) })
		}
		return rg.Wait()
	})
	g.Go(func() error {
		return p.assemble(gctx, pl, tmp)
	})

	err = g.Wait()
	for _, it := range pl.items {
		if it.seg != nil {
			it.seg.Close()
		}
	}
	if err != nil {
		os.Remove(tmp)
		return fail(err)
	}

	if err := os.Rename(tmp, job.OutPath); err != nil {
		os.Remove(tmp)
		return fail(fault.AtStage(fault.StageFinalize,
			fault.Wrap(fault.ErrEncode, "finalize", job.OutPath, err)))
	}

	count, tf := pl.transitionStats()
	res := Result{
		Path:             job.OutPath,
		Width:            pl.width,
		Height:           pl.height,
		FPS:              p.cfg.FPS,
		Items:            len(pl.items),
		Transitions:      count,
		Frames:           pl.frames,
		TransitionFrames: tf,
		Duration:         pl.seconds(p.cfg.FPS),
		Elapsed:          time.Since(start),
	}
	if p.met != nil {
		p.met.IncJob("ok")
	}
	log.Info("composition complete", "path", res.Path, "frames", res.Frames, "elapsed", res.Elapsed)
	return res, nil
}

// Preview renders a single item to a standalone clip: no transitions, no
// music bed. The item's narration is still probed and muxed.
func (p *Pipeline) Preview(ctx context.Context, item Item, outPath string) (Result, error) {
	return p.Compose(ctx, Job{Items: []Item{item}, OutPath: outPath})
}

// plan resolves the job into concrete per-item settings, cache keys,
// clamped boundary windows and the audio timeline. Everything that can be
// rejected is rejected here, before any pixel is rendered.
func (p *Pipeline) plan(ctx context.Context, job Job) (*plan, error) {
	if len(job.Items) == 0 {
		return nil, fault.AtStage(fault.StageValidate,
			fault.Wrap(fault.ErrInvalidConfig, "compose", "no items", nil))
	}
	if job.OutPath == "" {
		return nil, fault.AtStage(fault.StageValidate,
			fault.Wrap(fault.ErrInvalidConfig, "compose", "no output path", nil))
	}
	if job.Boundaries != nil && len(job.Boundaries) != len(job.Items)-1 {
		return nil, fault.AtStage(fault.StageValidate,
			fault.Wrap(fault.ErrInvalidConfig, "compose",
				fmt.Sprintf("%d boundaries for %d items", len(job.Boundaries), len(job.Items)), nil))
	}

	profile, ok := config.ProfileFor(p.cfg.Quality)
	if !ok {
		return nil, fault.AtStage(fault.StageValidate,
			fault.Wrap(fault.ErrInvalidConfig, "compose", fmt.Sprintf("unknown quality %q", p.cfg.Quality), nil))
	}
	width, height := p.cfg.Width, p.cfg.Height
	if job.Quality != "" {
		prof, ok := config.ProfileFor(job.Quality)
		if !ok {
			return nil, fault.AtStage(fault.StageValidate,
				fault.Wrap(fault.ErrInvalidConfig, "compose", fmt.Sprintf("unknown quality %q", job.Quality), nil))
		}
		profile = prof
		width, height = prof.Width, prof.Height
	}

	musicVol := job.MusicVolume
	if job.MusicPath != "" && musicVol <= 0 {
		musicVol = p.cfg.MusicVolume
	}
	if musicVol > 1 {
		return nil, fault.AtStage(fault.StageValidate,
			fault.Wrap(fault.ErrInvalidConfig, "compose", fmt.Sprintf("music volume %.2f outside [0, 1]", musicVol), nil))
	}

	fps := p.cfg.FPS
	pl := &plan{width: width, height: height, profile: profile}
	pl.items = make([]*plannedItem, len(job.Items))

	for i := range job.Items {
		it := &job.Items[i]
		if it.Image == nil {
			return nil, fault.AtItem(fault.StageValidate, i,
				fault.Wrap(fault.ErrInvalidConfig, "compose", "item without image", nil))
		}

		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}

		dur := it.Duration
		if dur <= 0 && it.Motion != nil {
			dur = it.Motion.Duration
		}
		if dur <= 0 {
			dur = DefaultItemDuration
		}

		var settings motion.Settings
		if it.Motion != nil {
			settings = *it.Motion
		} else {
			settings = it.Preset.Resolve(id).Settings(dur)
		}
		settings.Duration = dur
		settings = settings.Resolve(id)

		if err := settings.Validate(); err != nil {
			return nil, fault.AtItem(fault.StageValidate, i, err)
		}

		pl.items[i] = &plannedItem{
			index:    i,
			id:       id,
			image:    it.Image,
			settings: settings,
			ready:    make(chan struct{}),
		}
	}

	bounds := job.Boundaries
	if bounds == nil {
		bounds = make([]Boundary, len(job.Items)-1)
	}
	for j := range bounds {
		if bounds[j].Seconds < 0 {
			return nil, fault.AtItem(fault.StageValidate, j,
				fault.Wrap(fault.ErrInvalidConfig, "compose",
					fmt.Sprintf("negative transition duration %.3f", bounds[j].Seconds), nil))
		}
	}

	// Probing pins down the final durations: a narration track longer than
	// the configured motion extends the item, aligned to the frame grid so
	// the extension survives the seconds-to-frames round trip. Keys are
	// computed only after that, so an extended item renders under its own
	// identity.
	for i := range job.Items {
		it := &job.Items[i]
		item := pl.items[i]

		digest, err := it.Image.Digest()
		if err != nil {
			return nil, fault.AtItem(fault.StageProbe, i, err)
		}

		if it.AudioPath != "" {
			audioDur, err := p.prober.Duration(ctx, it.AudioPath)
			if err != nil {
				return nil, fault.AtItem(fault.StageProbe, i, err)
			}
			aligned := math.Round(audioDur*float64(fps)) / float64(fps)
			if aligned > item.settings.Duration {
				p.log.Debug("extending item to narration length",
					"item", i, "from", item.settings.Duration, "to", aligned)
				item.settings.Duration = aligned
				if err := item.settings.Validate(); err != nil {
					return nil, fault.AtItem(fault.StageProbe, i, err)
				}
			}
		}

		item.frames = item.settings.FrameCount(fps)
		item.key = cache.Key(digest, item.settings, width, height, fps)
	}

	// Windows clamp left to right: a boundary can only spend frames its
	// left neighbour has not already handed to the previous window.
	pl.boundaries = make([]plannedBoundary, len(bounds))
	prevTail := 0
	for j := range bounds {
		b := bounds[j]
		kind := b.Type.Resolve(boundarySeed(pl.items[j].id, pl.items[j+1].id, j))
		if kind == transition.None {
			prevTail = 0
			continue
		}
		w, sec, err := transition.Window(b.Seconds, fps, pl.items[j].frames-prevTail, pl.items[j+1].frames)
		if err != nil {
			return nil, fault.AtItem(fault.StageTransition, j, err)
		}
		if req := int(math.Round(b.Seconds * float64(fps))); w < req {
			p.log.Warn("transition window clamped",
				"boundary", j, "type", kind.String(), "requested", b.Seconds, "effective", sec)
		}
		pl.boundaries[j] = plannedBoundary{kind: kind, frames: w, seconds: sec}
		prevTail = w
	}

	// Timeline offsets in frames: item i starts where item i-1 ends minus
	// the overlap of the boundary between them.
	offset := 0
	for i, item := range pl.items {
		if i > 0 {
			offset -= pl.boundaries[i-1].frames
		}
		if job.Items[i].AudioPath != "" {
			pl.mix.Tracks = append(pl.mix.Tracks, audio.Track{
				Path:   job.Items[i].AudioPath,
				Offset: float64(offset) / float64(fps),
				Window: float64(item.frames) / float64(fps),
			})
		}
		offset += item.frames
	}
	pl.frames = offset

	pl.mix.Music = job.MusicPath
	pl.mix.MusicVolume = musicVol
	pl.mix.Total = pl.seconds(fps)
	return pl, nil
}

// produce renders one item's segment through the cache and publishes it on
// the item's ready channel.
func (p *Pipeline) produce(ctx context.Context, eng *render.Engine, pl *plan, it *plannedItem) error {
	seg, err := p.cache.GetOrRender(ctx, it.key, func(ctx context.Context, w io.Writer) error {
		return eng.Render(ctx, it.image, it.settings, w)
	})
	if err == nil &&
		(seg.Width() != pl.width || seg.Height() != pl.height ||
			seg.FPS() != p.cfg.FPS || seg.FrameCount() != it.frames) {
		detail := fmt.Sprintf("segment %dx%d@%d n=%d, want %dx%d@%d n=%d",
			seg.Width(), seg.Height(), seg.FPS(), seg.FrameCount(),
			pl.width, pl.height, p.cfg.FPS, it.frames)
		seg.Close()
		seg, err = nil, fault.Wrap(fault.ErrCacheIO, "compose", detail, nil)
	}
	if err != nil {
		it.err = fault.AtItem(fault.StageRender, it.index, err)
	} else {
		it.seg = seg
	}
	close(it.ready)
	return it.err
}

// assemble walks the timeline in item order and streams frames to the
// encoder: solo frames outside windows, composited frames inside. Boundary
// j starts as soon as segments j and j+1 are both ready.
func (p *Pipeline) assemble(ctx context.Context, pl *plan, tmp string) error {
	fps := p.cfg.FPS
	job, err := p.enc.Start(ctx, video.EncodeSpec{
		Width:   pl.width,
		Height:  pl.height,
		FPS:     fps,
		Profile: pl.profile,
		Audio:   pl.mix,
		OutPath: tmp,
	})
	if err != nil {
		return fault.AtStage(fault.StageEncode, err)
	}
	done := false
	defer func() {
		if !done {
			job.Abort()
		}
	}()

	rect := image.Rect(0, 0, pl.width, pl.height)
	cur := segment.GetFrame(rect)
	defer segment.PutFrame(cur)
	next := segment.GetFrame(rect)
	defer segment.PutFrame(next)
	out := segment.GetFrame(rect)
	defer segment.PutFrame(out)

	cursor := 0
	write := func(frame *image.RGBA) error {
		if p.cfg.Debug {
			video.Stamp(frame, cursor, float64(cursor)/float64(fps))
		}
		if err := job.WriteFrame(frame); err != nil {
			return fault.AtStage(fault.StageEncode, err)
		}
		cursor++
		return nil
	}

	for i, it := range pl.items {
		if err := waitReady(ctx, it); err != nil {
			return err
		}

		head, tail := 0, 0
		if i > 0 {
			head = pl.boundaries[i-1].frames
		}
		if i < len(pl.boundaries) {
			tail = pl.boundaries[i].frames
		}

		for f := head; f < it.frames-tail; f++ {
			if (f-head)%cancelEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := it.seg.FrameInto(f, cur); err != nil {
				return fault.AtItem(fault.StageAssemble, i, err)
			}
			if err := write(cur); err != nil {
				return err
			}
		}

		if tail == 0 {
			continue
		}
		nxt := pl.items[i+1]
		if err := waitReady(ctx, nxt); err != nil {
			return err
		}
		b := pl.boundaries[i]
		for k := 0; k < b.frames; k++ {
			if k%cancelEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := it.seg.FrameInto(it.frames-b.frames+k, cur); err != nil {
				return fault.AtItem(fault.StageAssemble, i, err)
			}
			if err := nxt.seg.FrameInto(k, next); err != nil {
				return fault.AtItem(fault.StageAssemble, i+1, err)
			}
			pr := 1.0
			if b.frames > 1 {
				pr = float64(k) / float64(b.frames-1)
			}
			if err := transition.Composite(b.kind, out, cur, next, pr); err != nil {
				return fault.AtItem(fault.StageTransition, i, err)
			}
			if err := write(out); err != nil {
				return err
			}
		}
		if p.met != nil {
			p.met.AddTransitionFrames(b.frames)
		}
	}

	if cursor != pl.frames {
		return fault.AtStage(fault.StageAssemble,
			fault.Wrap(fault.ErrSegmentRender, "assemble",
				fmt.Sprintf("emitted %d of %d planned frames", cursor, pl.frames), nil))
	}

	if err := job.Close(); err != nil {
		return fault.AtStage(fault.StageEncode, err)
	}
	done = true
	return nil
}

func waitReady(ctx context.Context, it *plannedItem) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-it.ready:
		return it.err
	}
}

func boundarySeed(a, b string, j int) string {
	return fmt.Sprintf("%s|%s|%d", a, b, j)
}
