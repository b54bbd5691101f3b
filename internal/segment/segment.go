package segment

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/ivlev/slides2video/internal/fault"
)

// Blob layout: a 24 byte header followed by frameCount raw RGBA frames of
// width*height*4 bytes each. Frames are addressable by index, which is what
// lets the assembler re-scan segment tails and heads for transitions without
// decoding anything.
const (
	headerSize = 24
	version    = 1
)

var magic = [4]byte{'S', 'E', 'G', 'B'}

// Writer streams frames into a blob. The frame count is declared up front
// (it is known from duration and fps before rendering starts), so the header
// goes out first and the writer never needs to seek.
type Writer struct {
	w        io.Writer
	width    int
	height   int
	declared int
	written  int
}

func NewWriter(w io.Writer, width, height, fps, frameCount int) (*Writer, error) {
	if width <= 0 || height <= 0 || fps <= 0 || frameCount <= 0 {
		return nil, fault.Wrap(fault.ErrSegmentRender, "segment", fmt.Sprintf("bad blob geometry %dx%d@%d n=%d", width, height, fps, frameCount), nil)
	}

	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	binary.BigEndian.PutUint32(hdr[4:8], version)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(width))
	binary.BigEndian.PutUint32(hdr[12:16], uint32(height))
	binary.BigEndian.PutUint32(hdr[16:20], uint32(fps))
	binary.BigEndian.PutUint32(hdr[20:24], uint32(frameCount))

	if _, err := w.Write(hdr[:]); err != nil {
		return nil, fault.Wrap(fault.ErrSegmentRender, "segment", "write header", err)
	}

	return &Writer{w: w, width: width, height: height, declared: frameCount}, nil
}

// WriteFrame appends one frame. The image is converted if its layout does not
// already match the blob's packed RGBA rows.
func (w *Writer) WriteFrame(img image.Image) error {
	if w.written >= w.declared {
		return fault.Wrap(fault.ErrSegmentRender, "segment", fmt.Sprintf("frame %d exceeds declared count %d", w.written, w.declared), nil)
	}
	b := img.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fault.Wrap(fault.ErrSegmentRender, "segment", fmt.Sprintf("frame %dx%d does not match blob %dx%d", b.Dx(), b.Dy(), w.width, w.height), nil)
	}

	rgba := ToRGBA(img)
	if _, err := w.w.Write(rgba.Pix); err != nil {
		return fault.Wrap(fault.ErrSegmentRender, "segment", fmt.Sprintf("write frame %d", w.written), err)
	}
	w.written++
	return nil
}

// Close verifies that exactly the declared number of frames was written.
func (w *Writer) Close() error {
	if w.written != w.declared {
		return fault.Wrap(fault.ErrSegmentRender, "segment", fmt.Sprintf("wrote %d of %d declared frames", w.written, w.declared), nil)
	}
	return nil
}

// Segment is an opened blob with random frame access.
type Segment struct {
	Key string

	r          io.ReaderAt
	closer     io.Closer
	width      int
	height     int
	fps        int
	frameCount int
}

// Open maps the blob at path. The header is validated against the file size
// so a truncated blob fails here, not mid-assembly.
func Open(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.ErrCacheIO, "segment", path, err)
	}

	seg, err := fromReader(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fault.Wrap(fault.ErrCacheIO, "segment", path, err)
	}
	want := int64(headerSize) + int64(seg.frameCount)*seg.frameSize()
	if fi.Size() != want {
		f.Close()
		return nil, fault.Wrap(fault.ErrCacheIO, "segment", fmt.Sprintf("%s: size %d, header implies %d", path, fi.Size(), want), nil)
	}

	return seg, nil
}

func fromReader(r io.ReaderAt, closer io.Closer) (*Segment, error) {
	var hdr [headerSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fault.Wrap(fault.ErrCacheIO, "segment", "read header", err)
	}
	if [4]byte(hdr[0:4]) != magic {
		return nil, fault.Wrap(fault.ErrCacheIO, "segment", "bad magic", nil)
	}
	if v := binary.BigEndian.Uint32(hdr[4:8]); v != version {
		return nil, fault.Wrap(fault.ErrCacheIO, "segment", fmt.Sprintf("unsupported blob version %d", v), nil)
	}

	seg := &Segment{
		r:          r,
		closer:     closer,
		width:      int(binary.BigEndian.Uint32(hdr[8:12])),
		height:     int(binary.BigEndian.Uint32(hdr[12:16])),
		fps:        int(binary.BigEndian.Uint32(hdr[16:20])),
		frameCount: int(binary.BigEndian.Uint32(hdr[20:24])),
	}
	if seg.width <= 0 || seg.height <= 0 || seg.fps <= 0 || seg.frameCount <= 0 {
		return nil, fault.Wrap(fault.ErrCacheIO, "segment", fmt.Sprintf("bad blob geometry %dx%d@%d n=%d", seg.width, seg.height, seg.fps, seg.frameCount), nil)
	}
	return seg, nil
}

func (s *Segment) frameSize() int64 {
	return int64(s.width) * int64(s.height) * 4
}

func (s *Segment) Width() int      { return s.width }
func (s *Segment) Height() int     { return s.height }
func (s *Segment) FPS() int        { return s.fps }
func (s *Segment) FrameCount() int { return s.frameCount }

// Duration is the played length of the segment in seconds.
func (s *Segment) Duration() float64 {
	return float64(s.frameCount) / float64(s.fps)
}

// FrameInto reads frame i into dst, which must match the blob resolution.
func (s *Segment) FrameInto(i int, dst *image.RGBA) error {
	if i < 0 || i >= s.frameCount {
		return fault.Wrap(fault.ErrCacheIO, "segment", fmt.Sprintf("frame %d of %d", i, s.frameCount), nil)
	}
	b := dst.Bounds()
	if b.Dx() != s.width || b.Dy() != s.height || dst.Stride != s.width*4 {
		return fault.Wrap(fault.ErrCacheIO, "segment", fmt.Sprintf("destination %dx%d does not match blob %dx%d", b.Dx(), b.Dy(), s.width, s.height), nil)
	}

	off := int64(headerSize) + int64(i)*s.frameSize()
	if _, err := s.r.ReadAt(dst.Pix[:int(s.frameSize())], off); err != nil {
		return fault.Wrap(fault.ErrCacheIO, "segment", fmt.Sprintf("read frame %d", i), err)
	}
	return nil
}

// Frame reads frame i into a pooled buffer. Return it with PutFrame when
// done.
func (s *Segment) Frame(i int) (*image.RGBA, error) {
	dst := GetFrame(image.Rect(0, 0, s.width, s.height))
	if err := s.FrameInto(i, dst); err != nil {
		PutFrame(dst)
		return nil, err
	}
	return dst, nil
}

func (s *Segment) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
