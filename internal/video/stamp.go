package video

import (
	"fmt"
	"image"
	"image/draw"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	stampSize   = 64
	stampMargin = 8
)

// Stamp draws a QR code carrying the frame index and timecode into the
// frame's top-left corner. Scanning a paused player then tells exactly which
// frame is on screen, which is what you want when chasing sync drift.
func Stamp(frame *image.RGBA, index int, seconds float64) {
	q, err := qrcode.New(fmt.Sprintf("f=%d t=%.3f", index, seconds), qrcode.Low)
	if err != nil {
		return
	}
	img := q.Image(stampSize)
	r := image.Rect(stampMargin, stampMargin, stampMargin+stampSize, stampMargin+stampSize)
	draw.Draw(frame, r.Intersect(frame.Bounds()), img, image.Point{}, draw.Src)
}
