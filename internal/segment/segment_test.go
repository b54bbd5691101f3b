package segment

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/ivlev/slides2video/internal/fault"
)

func solidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func writeBlob(t *testing.T, path string, frames []*image.RGBA, w, h, fps int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	bw, err := NewWriter(f, w, h, fps, len(frames))
	if err != nil {
		t.Fatal(err)
	}
	for _, fr := range frames {
		if err := bw.WriteFrame(fr); err != nil {
			t.Fatal(err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.blob")

	frames := []*image.RGBA{
		solidFrame(4, 3, color.RGBA{R: 10, A: 255}),
		solidFrame(4, 3, color.RGBA{G: 20, A: 255}),
		solidFrame(4, 3, color.RGBA{B: 30, A: 255}),
	}
	writeBlob(t, path, frames, 4, 3, 30)

	seg, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close()

	if seg.Width() != 4 || seg.Height() != 3 || seg.FPS() != 30 || seg.FrameCount() != 3 {
		t.Fatalf("header mismatch: %dx%d@%d n=%d", seg.Width(), seg.Height(), seg.FPS(), seg.FrameCount())
	}
	if seg.Duration() != 0.1 {
		t.Errorf("expected 0.1s, got %f", seg.Duration())
	}

	// Random access out of order, then back to the start.
	for _, i := range []int{2, 0, 1, 0} {
		got, err := seg.Frame(i)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got.Pix, frames[i].Pix) {
			t.Errorf("frame %d differs from written pixels", i)
		}
		PutFrame(got)
	}

	if _, err := seg.Frame(3); !errors.Is(err, fault.ErrCacheIO) {
		t.Errorf("out of range frame should fail with ErrCacheIO, got %v", err)
	}
	if _, err := seg.Frame(-1); err == nil {
		t.Error("negative index should fail")
	}
}

func TestWriterEnforcesGeometry(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 4, 3, 30, 2)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.WriteFrame(solidFrame(5, 3, color.RGBA{})); err == nil {
		t.Error("wrong frame size should fail")
	}
	if err := w.WriteFrame(solidFrame(4, 3, color.RGBA{})); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err == nil {
		t.Error("closing with missing frames should fail")
	}

	if err := w.WriteFrame(solidFrame(4, 3, color.RGBA{})); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFrame(solidFrame(4, 3, color.RGBA{})); err == nil {
		t.Error("writing past declared count should fail")
	}
	if err := w.Close(); err != nil {
		t.Errorf("complete blob should close cleanly: %v", err)
	}
}

func TestOpenRejectsCorruptBlobs(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.blob")
	if err := os.WriteFile(garbage, []byte("BLOBnotreally"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(garbage); !errors.Is(err, fault.ErrCacheIO) {
		t.Errorf("expected ErrCacheIO for bad magic, got %v", err)
	}

	truncated := filepath.Join(dir, "trunc.blob")
	writeBlob(t, truncated, []*image.RGBA{solidFrame(4, 3, color.RGBA{R: 1})}, 4, 3, 30)
	data, err := os.ReadFile(truncated)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(truncated, data[:len(data)-5], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(truncated); !errors.Is(err, fault.ErrCacheIO) {
		t.Errorf("expected ErrCacheIO for truncated blob, got %v", err)
	}

	if _, err := Open(filepath.Join(dir, "missing.blob")); !errors.Is(err, fault.ErrCacheIO) {
		t.Errorf("expected ErrCacheIO for missing file, got %v", err)
	}
}

func TestWriterConvertsLayouts(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 2, 2, 30, 1)
	if err != nil {
		t.Fatal(err)
	}

	// A subimage has a different stride and origin than a packed frame.
	big := solidFrame(8, 8, color.RGBA{R: 200, A: 255})
	sub := big.SubImage(image.Rect(3, 3, 5, 5))
	if err := w.WriteFrame(sub); err != nil {
		t.Fatalf("subimage should be converted, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	wantLen := headerSize + 2*2*4
	if buf.Len() != wantLen {
		t.Errorf("expected %d bytes, got %d", wantLen, buf.Len())
	}
	for i := headerSize; i < buf.Len(); i += 4 {
		px := buf.Bytes()[i : i+4]
		if px[0] != 200 || px[3] != 255 {
			t.Fatalf("pixel at %d not converted correctly: %v", i, px)
		}
	}
}

func TestFramePoolReuse(t *testing.T) {
	rect := image.Rect(0, 0, 16, 16)
	a := GetFrame(rect)
	PutFrame(a)
	b := GetFrame(rect)
	if b.Bounds() != rect {
		t.Errorf("pooled frame has wrong bounds %v", b.Bounds())
	}
	PutFrame(b)

	// Unknown sizes just allocate; Put of a foreign buffer is a no-op.
	foreign := image.NewRGBA(image.Rect(0, 0, 7, 7))
	PutFrame(foreign)
}
