// Package transition composites the boundary between two rendered segments.
// Every algorithm takes the outgoing frame A, the incoming frame B and a
// progress value in [0,1]; at progress 0 the result is exactly A, at 1
// exactly B.
package transition

import (
	"fmt"
	"hash/fnv"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/slides2video/internal/fault"
	"github.com/ivlev/slides2video/internal/segment"
)

// Type selects a boundary compositing algorithm. The zero value is None,
// a hard cut.
type Type uint8

const (
	None Type = iota
	CrossDissolve
	SlideLeft
	SlideRight
	SlideUp
	SlideDown
	ZoomDissolve
	RotateDissolve
	Blinds
	WarpDissolve
	Flash
	// Random resolves to one of the concrete types above, seeded by the
	// boundary. Resolve before compositing.
	Random
)

var typeNames = map[Type]string{
	None:           "none",
	CrossDissolve:  "cross-dissolve",
	SlideLeft:      "slide-left",
	SlideRight:     "slide-right",
	SlideUp:        "slide-up",
	SlideDown:      "slide-down",
	ZoomDissolve:   "zoom-dissolve",
	RotateDissolve: "rotate-dissolve",
	Blinds:         "blinds",
	WarpDissolve:   "warp-dissolve",
	Flash:          "flash",
	Random:         "random",
}

var typeAliases = map[string]Type{
	"directional-slide-left":  SlideLeft,
	"directional-slide-right": SlideRight,
	"directional-slide-up":    SlideUp,
	"directional-slide-down":  SlideDown,
	"crossfade":               CrossDissolve,
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("transition(%d)", uint8(t))
}

// Parse maps a catalog name to its Type. Unknown names fail with
// ErrInvalidConfig.
func Parse(name string) (Type, error) {
	for t, s := range typeNames {
		if s == name {
			return t, nil
		}
	}
	if t, ok := typeAliases[name]; ok {
		return t, nil
	}
	return None, fault.Wrap(fault.ErrInvalidConfig, "transition", fmt.Sprintf("unknown transition %q", name), nil)
}

// concrete lists every type Random may resolve to.
var concrete = []Type{
	CrossDissolve, SlideLeft, SlideRight, SlideUp, SlideDown,
	ZoomDissolve, RotateDissolve, Blinds, WarpDissolve, Flash,
}

// Resolve replaces Random with a concrete type chosen deterministically from
// seed (usually the ids of the two items meeting at the boundary), so
// repeated renders of the same composition pick the same transition. Other
// types pass through unchanged.
func (t Type) Resolve(seed string) Type {
	if t != Random {
		return t
	}
	h := fnv.New64a()
	h.Write([]byte(seed))
	return concrete[h.Sum64()%uint64(len(concrete))]
}

// Window clamps a requested transition duration to the frames both adjacent
// segments can still supply, returning the window length in frames and the
// effective duration in seconds. Clamping is not a failure; a boundary where
// either side has no frames left at all is.
func Window(seconds float64, fps int, availA, availB int) (int, float64, error) {
	if fps <= 0 {
		return 0, 0, fault.Wrap(fault.ErrTransition, "window", fmt.Sprintf("invalid frame rate %d", fps), nil)
	}
	if availA <= 0 || availB <= 0 {
		return 0, 0, fault.Wrap(fault.ErrTransition, "window",
			fmt.Sprintf("no frames available at boundary (a=%d b=%d)", availA, availB), nil)
	}
	frames := int(math.Round(seconds * float64(fps)))
	if frames < 0 {
		frames = 0
	}
	if frames > availA {
		frames = availA
	}
	if frames > availB {
		frames = availB
	}
	return frames, float64(frames) / float64(fps), nil
}

// Composite blends the outgoing frame a with the incoming frame b at progress
// p and writes the result into dst. All three frames must share identical
// origin-rooted bounds, and dst must not alias a or b. Progress outside [0,1]
// is clamped.
func Composite(t Type, dst, a, b *image.RGBA, p float64) error {
	if dst.Rect != a.Rect || dst.Rect != b.Rect || dst.Rect.Min != (image.Point{}) {
		return fault.Wrap(fault.ErrTransition, "composite", "frame geometry mismatch", nil)
	}
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	// Every algorithm reduces to a pass-through at the endpoints; copying
	// keeps the boundary frames bit-exact.
	if p == 0 {
		copy(dst.Pix, a.Pix)
		return nil
	}
	if p == 1 {
		copy(dst.Pix, b.Pix)
		return nil
	}

	switch t {
	case None:
		if p < 0.5 {
			copy(dst.Pix, a.Pix)
		} else {
			copy(dst.Pix, b.Pix)
		}
	case CrossDissolve:
		mix(dst.Pix, a.Pix, b.Pix, p)
	case SlideLeft, SlideRight, SlideUp, SlideDown:
		slide(t, dst, a, b, p)
	case ZoomDissolve:
		zoomDissolve(dst, a, b, p)
	case RotateDissolve:
		rotateDissolve(dst, a, b, p)
	case Blinds:
		blinds(dst, a, b, p)
	case WarpDissolve:
		warpDissolve(dst, a, b, p)
	case Flash:
		flash(dst, a, b, p)
	case Random:
		return fault.Wrap(fault.ErrTransition, "composite", "random transition was not resolved", nil)
	default:
		return fault.Wrap(fault.ErrTransition, "composite", fmt.Sprintf("unknown transition %d", uint8(t)), nil)
	}
	return nil
}

// mix writes the convex blend (1-w)*a + w*b into dst.
func mix(dst, a, b []uint8, w float64) {
	wa := 1 - w
	for i := range dst {
		dst[i] = uint8(float64(a[i])*wa + float64(b[i])*w + 0.5)
	}
}

// mixWhite blends src toward flat white with weight w.
func mixWhite(dst, src []uint8, w float64) {
	ws := 1 - w
	wv := 255 * w
	for i := range dst {
		dst[i] = uint8(float64(src[i])*ws + wv + 0.5)
	}
}

func fillBlack(img *image.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0
		img.Pix[i+1] = 0
		img.Pix[i+2] = 0
		img.Pix[i+3] = 0xff
	}
}

// slide moves b in from the named edge over a static a, with a hard wipe
// edge between them.
func slide(t Type, dst, a, b *image.RGBA, p float64) {
	copy(dst.Pix, a.Pix)
	w := dst.Rect.Dx()
	h := dst.Rect.Dy()

	switch t {
	case SlideLeft:
		cut := int(math.Round(p * float64(w)))
		for y := 0; y < h; y++ {
			dRow := y * dst.Stride
			sRow := y * b.Stride
			copy(dst.Pix[dRow:dRow+cut*4], b.Pix[sRow+(w-cut)*4:sRow+w*4])
		}
	case SlideRight:
		cut := int(math.Round(p * float64(w)))
		for y := 0; y < h; y++ {
			dRow := y * dst.Stride
			sRow := y * b.Stride
			copy(dst.Pix[dRow+(w-cut)*4:dRow+w*4], b.Pix[sRow:sRow+cut*4])
		}
	case SlideUp:
		cut := int(math.Round(p * float64(h)))
		for y := 0; y < cut; y++ {
			dRow := y * dst.Stride
			sRow := (h - cut + y) * b.Stride
			copy(dst.Pix[dRow:dRow+w*4], b.Pix[sRow:sRow+w*4])
		}
	case SlideDown:
		cut := int(math.Round(p * float64(h)))
		for y := 0; y < cut; y++ {
			dRow := (h - cut + y) * dst.Stride
			sRow := y * b.Stride
			copy(dst.Pix[dRow:dRow+w*4], b.Pix[sRow:sRow+w*4])
		}
	}
}

// zoomDissolve scales b up from half size about the frame center while its
// weight ramps in; the area the scaled frame does not cover fades from a
// toward black.
func zoomDissolve(dst, a, b *image.RGBA, p float64) {
	w := dst.Rect.Dx()
	h := dst.Rect.Dy()
	scratch := segment.GetFrame(image.Rect(0, 0, w, h))
	defer segment.PutFrame(scratch)
	fillBlack(scratch)

	s := 0.5 + 0.5*p
	cx := float64(w) / 2
	cy := float64(h) / 2
	m := f64.Aff3{
		s, 0, cx * (1 - s),
		0, s, cy * (1 - s),
	}
	draw.CatmullRom.Transform(scratch, m, b, b.Rect, draw.Src, nil)
	mix(dst.Pix, a.Pix, scratch.Pix, p)
}

// rotateDissolve spins b from a quarter turn down to level while it scales up
// from nothing, weight ramping in alongside.
func rotateDissolve(dst, a, b *image.RGBA, p float64) {
	w := dst.Rect.Dx()
	h := dst.Rect.Dy()
	scratch := segment.GetFrame(image.Rect(0, 0, w, h))
	defer segment.PutFrame(scratch)
	fillBlack(scratch)

	sin, cos := math.Sincos(math.Pi / 2 * (1 - p))
	alpha := p * cos
	beta := p * sin
	cx := float64(w) / 2
	cy := float64(h) / 2
	m := f64.Aff3{
		alpha, beta, (1-alpha)*cx - beta*cy,
		-beta, alpha, beta*cx + (1-alpha)*cy,
	}
	draw.CatmullRom.Transform(scratch, m, b, b.Rect, draw.Src, nil)
	mix(dst.Pix, a.Pix, scratch.Pix, p)
}

const blindsCount = 20

// blinds partitions the frame into vertical stripes that each dissolve to b
// on a staggered ramp, left to right.
func blinds(dst, a, b *image.RGBA, p float64) {
	copy(dst.Pix, a.Pix)
	w := dst.Rect.Dx()
	h := dst.Rect.Dy()
	sw := w / blindsCount
	if sw < 1 {
		sw = 1
	}

	for i := 0; i < blindsCount; i++ {
		x0 := i * sw
		if x0 >= w {
			break
		}
		x1 := x0 + sw
		if i == blindsCount-1 || x1 > w {
			x1 = w
		}
		sp := 2*p - float64(i)/blindsCount
		if sp <= 0 {
			continue
		}
		if sp > 1 {
			sp = 1
		}
		for y := 0; y < h; y++ {
			off := y*dst.Stride + x0*4
			end := y*dst.Stride + x1*4
			mix(dst.Pix[off:end], a.Pix[off:end], b.Pix[off:end], sp)
		}
	}
}

// warpDissolve displaces b along a sinusoidal field whose amplitude decays to
// zero as the window closes, dissolving a into the rippling frame.
func warpDissolve(dst, a, b *image.RGBA, p float64) {
	w := dst.Rect.Dx()
	h := dst.Rect.Dy()
	scratch := segment.GetFrame(image.Rect(0, 0, w, h))
	defer segment.PutFrame(scratch)

	amp := 10 * (1 - p)
	phase := 10 * p
	dyCol := make([]float64, w)
	for x := range dyCol {
		dyCol[x] = amp * math.Cos(float64(x)/30+phase)
	}
	for y := 0; y < h; y++ {
		dx := amp * math.Sin(float64(y)/30+phase)
		row := y * scratch.Stride
		for x := 0; x < w; x++ {
			bilinear(b, float64(x)+dx, float64(y)+dyCol[x], scratch.Pix[row+x*4:row+x*4+4])
		}
	}
	mix(dst.Pix, a.Pix, scratch.Pix, p)
}

// bilinear samples img at the fractional point (fx, fy), clamped to the frame
// edges, into out (one RGBA pixel).
func bilinear(img *image.RGBA, fx, fy float64, out []uint8) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if fx < 0 {
		fx = 0
	} else if fx > float64(w-1) {
		fx = float64(w - 1)
	}
	if fy < 0 {
		fy = 0
	} else if fy > float64(h-1) {
		fy = float64(h - 1)
	}
	x0 := int(fx)
	y0 := int(fy)
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 > w-1 {
		x1 = w - 1
	}
	if y1 > h-1 {
		y1 = h - 1
	}
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	p00 := img.Pix[y0*img.Stride+x0*4:]
	p10 := img.Pix[y0*img.Stride+x1*4:]
	p01 := img.Pix[y1*img.Stride+x0*4:]
	p11 := img.Pix[y1*img.Stride+x1*4:]
	for c := 0; c < 4; c++ {
		top := float64(p00[c])*(1-tx) + float64(p10[c])*tx
		bot := float64(p01[c])*(1-tx) + float64(p11[c])*tx
		out[c] = uint8(top*(1-ty) + bot*ty + 0.5)
	}
}

// flash blends a toward flat white over the first half of the window, then
// from white down onto b over the second half.
func flash(dst, a, b *image.RGBA, p float64) {
	if p < 0.5 {
		mixWhite(dst.Pix, a.Pix, 2*p)
	} else {
		mixWhite(dst.Pix, b.Pix, 2-2*p)
	}
}
