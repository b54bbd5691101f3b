// Package render synthesizes camera-motion clips from still images. Each
// frame samples the source through an affine transform at three times the
// target density and resolves down, so slow zooms stay smooth instead of
// shimmering.
package render

import (
	"context"
	"image"
	"io"
	"log/slog"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/slides2video/internal/logging"
	"github.com/ivlev/slides2video/internal/motion"
	"github.com/ivlev/slides2video/internal/segment"
	"github.com/ivlev/slides2video/internal/source"
)

// supersample is the per-axis oversampling factor for the intermediate frame.
const supersample = 3

// kernelMargin keeps the cubic kernel taps clear of the source edges.
const kernelMargin = 2

// cancelEvery is the frame interval between context checks.
const cancelEvery = 8

// Engine renders segments at a fixed output geometry.
type Engine struct {
	width  int
	height int
	fps    int
	log    *slog.Logger
}

func New(width, height, fps int, log *slog.Logger) *Engine {
	return &Engine{width: width, height: height, fps: fps, log: logging.Or(log)}
}

// Render decodes img, sweeps the camera over it per settings and writes the
// resulting segment blob to w. The blob is deterministic: identical inputs
// produce identical bytes.
func (e *Engine) Render(ctx context.Context, img source.Image, settings motion.Settings, w io.Writer) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	src, err := img.Decode()
	if err != nil {
		return err
	}

	frames := settings.FrameCount(e.fps)
	pl := e.plan(src.Bounds(), settings, frames)
	if pl.boost > 1 {
		e.log.Debug("raised minimum zoom to keep sampling inside the source",
			"ref", img.Ref(), "factor", pl.boost)
	}

	bw, err := segment.NewWriter(w, e.width, e.height, e.fps, frames)
	if err != nil {
		return err
	}

	big := segment.GetFrame(image.Rect(0, 0, e.width*supersample, e.height*supersample))
	defer segment.PutFrame(big)
	out := segment.GetFrame(image.Rect(0, 0, e.width, e.height))
	defer segment.PutFrame(out)

	if pl.motionless() {
		draw.CatmullRom.Transform(big, pl.at(0), src, src.Bounds(), draw.Src, nil)
		draw.CatmullRom.Scale(out, out.Rect, big, big.Rect, draw.Src, nil)
		for i := 0; i < frames; i++ {
			if i%cancelEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := bw.WriteFrame(out); err != nil {
				return err
			}
		}
		return bw.Close()
	}

	denom := float64(e.fps) * settings.Duration
	for i := 0; i < frames; i++ {
		if i%cancelEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		p := settings.Curve.Progress(float64(i) / denom)
		draw.CatmullRom.Transform(big, pl.at(p), src, src.Bounds(), draw.Src, nil)
		draw.CatmullRom.Scale(out, out.Rect, big, big.Rect, draw.Src, nil)
		if err := bw.WriteFrame(out); err != nil {
			return err
		}
	}
	return bw.Close()
}

// plan fixes the source fit and the overscan boost for one render. The base
// factor covers the output with the source at scale 1; boost raises the whole
// zoom sweep just enough that no frame's sampling window leaves the source,
// which keeps borders out of frame without clamping the pan mid-motion.
type plan struct {
	settings     motion.Settings
	base         float64
	boost        float64
	srcCx, srcCy float64
	bigW, bigH   float64
}

func (e *Engine) plan(sb image.Rectangle, settings motion.Settings, frames int) plan {
	sw := float64(sb.Dx())
	sh := float64(sb.Dy())
	base := math.Max(float64(e.width)/sw, float64(e.height)/sh)

	halfW := sw/2 - kernelMargin
	if halfW <= 0 {
		halfW = sw / 2
	}
	halfH := sh/2 - kernelMargin
	if halfH <= 0 {
		halfH = sh / 2
	}
	cx := float64(e.width) / (2 * base * halfW)
	cy := float64(e.height) / (2 * base * halfH)

	// Walk the actual frame grid: elastic curves overshoot their endpoints,
	// so the extremes are not necessarily at p=0 or p=1.
	boost := 1.0
	denom := float64(e.fps) * settings.Duration
	for i := 0; i < frames; i++ {
		p := settings.Curve.Progress(float64(i) / denom)
		s, pan := settings.At(p)
		need := math.Max(cx*(1+2*math.Abs(pan.X)), cy*(1+2*math.Abs(pan.Y)))
		if need/s > boost {
			boost = need / s
		}
	}
	if boost > 1 {
		settings.Zoom.Start *= boost
		settings.Zoom.End *= boost
	}

	return plan{
		settings: settings,
		base:     base,
		boost:    boost,
		srcCx:    float64(sb.Min.X) + sw/2,
		srcCy:    float64(sb.Min.Y) + sh/2,
		bigW:     float64(e.width * supersample),
		bigH:     float64(e.height * supersample),
	}
}

func (pl plan) motionless() bool {
	return pl.settings.Zoom.Start == pl.settings.Zoom.End && pl.settings.Pan.Start == pl.settings.Pan.End
}

// at builds the source-to-output affine for curve progress p: scale about the
// source center, land it on the output center, then shift by the pan offset
// in output dimensions.
func (pl plan) at(p float64) f64.Aff3 {
	s, pan := pl.settings.At(p)
	a := s * pl.base * supersample
	return f64.Aff3{
		a, 0, pl.bigW/2 + pan.X*pl.bigW - a*pl.srcCx,
		0, a, pl.bigH/2 + pan.Y*pl.bigH - a*pl.srcCy,
	}
}
