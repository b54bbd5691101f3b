// Package analyzer estimates where the visual weight of an image sits.
// The storyboard scaffold uses the result to suggest a camera move that
// steers toward the detail instead of drifting blindly.
package analyzer

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Focus is the dominant high-contrast region of an image.
type Focus struct {
	// Rect bounds the region in source pixel coordinates.
	Rect image.Rectangle
	// Spread is the fraction of the image area the region covers.
	Spread float64
}

// Center returns the midpoint of the region.
func (f Focus) Center() image.Point {
	return image.Pt((f.Rect.Min.X+f.Rect.Max.X)/2, (f.Rect.Min.Y+f.Rect.Max.Y)/2)
}

const (
	// maxSide caps the working resolution. Region location survives
	// heavy downsampling, full-resolution gradients do not pay off.
	maxSide = 256

	// edgeThreshold is the minimum Sobel magnitude that counts as detail.
	edgeThreshold = 30.0

	// growRadius bridges small gaps so the glyphs of a text block or the
	// bars of a chart merge into a single region.
	growRadius = 2
)

// FindFocus locates the dominant detail region of img. ok is false when
// the image has nothing worth steering toward, such as flat fills or
// smooth gradients.
func FindFocus(img image.Image) (f Focus, ok bool) {
	src := img.Bounds()
	if src.Dx() < 3 || src.Dy() < 3 {
		return Focus{}, false
	}

	gray := downsample(img)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()

	mask := edgeMask(gray)
	grow(mask, w, h, growRadius)

	best, count := largestRegion(mask, w, h)
	if count < w*h/100 {
		return Focus{}, false
	}

	sx := float64(src.Dx()) / float64(w)
	sy := float64(src.Dy()) / float64(h)
	rect := image.Rect(
		src.Min.X+int(float64(best.Min.X)*sx),
		src.Min.Y+int(float64(best.Min.Y)*sy),
		src.Min.X+int(math.Ceil(float64(best.Max.X)*sx)),
		src.Min.Y+int(math.Ceil(float64(best.Max.Y)*sy)),
	)
	spread := float64(rect.Dx()*rect.Dy()) / float64(src.Dx()*src.Dy())
	return Focus{Rect: rect, Spread: spread}, true
}

// downsample converts img to grayscale at working resolution.
func downsample(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxSide || h > maxSide {
		if w >= h {
			h = h * maxSide / w
			w = maxSide
		} else {
			w = w * maxSide / h
			h = maxSide
		}
		if w < 3 {
			w = 3
		}
		if h < 3 {
			h = 3
		}
	}
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(gray, gray.Rect, img, b, draw.Src, nil)
	return gray
}

// edgeMask marks pixels whose Sobel gradient magnitude exceeds the
// threshold. The outermost pixel ring stays unmarked.
func edgeMask(gray *image.Gray) []bool {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	mask := make([]bool, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			tl := float64(gray.GrayAt(x-1, y-1).Y)
			tm := float64(gray.GrayAt(x, y-1).Y)
			tr := float64(gray.GrayAt(x+1, y-1).Y)
			ml := float64(gray.GrayAt(x-1, y).Y)
			mr := float64(gray.GrayAt(x+1, y).Y)
			bl := float64(gray.GrayAt(x-1, y+1).Y)
			bm := float64(gray.GrayAt(x, y+1).Y)
			br := float64(gray.GrayAt(x+1, y+1).Y)

			gx := tr + 2*mr + br - tl - 2*ml - bl
			gy := bl + 2*bm + br - tl - 2*tm - tr
			if math.Sqrt(gx*gx+gy*gy) > edgeThreshold {
				mask[y*w+x] = true
			}
		}
	}
	return mask
}

// grow dilates the mask by radius in place.
func grow(mask []bool, w, h, radius int) {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] {
				continue
			}
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx >= 0 && nx < w {
						out[ny*w+nx] = true
					}
				}
			}
		}
	}
	copy(mask, out)
}

// largestRegion flood-fills the mask and returns the bounding box and
// pixel count of the biggest connected component.
func largestRegion(mask []bool, w, h int) (image.Rectangle, int) {
	seen := make([]bool, len(mask))
	var best image.Rectangle
	bestCount := 0

	var stack []image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] || seen[y*w+x] {
				continue
			}
			minX, minY, maxX, maxY := x, y, x, y
			count := 0
			stack = append(stack[:0], image.Pt(x, y))
			seen[y*w+x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				count++
				if p.X < minX {
					minX = p.X
				}
				if p.X > maxX {
					maxX = p.X
				}
				if p.Y < minY {
					minY = p.Y
				}
				if p.Y > maxY {
					maxY = p.Y
				}
				for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := p.X+d.X, p.Y+d.Y
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					i := ny*w + nx
					if mask[i] && !seen[i] {
						seen[i] = true
						stack = append(stack, image.Pt(nx, ny))
					}
				}
			}
			if count > bestCount {
				bestCount = count
				best = image.Rect(minX, minY, maxX+1, maxY+1)
			}
		}
	}
	return best, bestCount
}
