package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/ivlev/slides2video/internal/fault"
)

// Image is one still picture the pipeline can decode and hash. Digest feeds
// the segment cache key, so it must cover everything that changes the decoded
// pixels.
type Image interface {
	Decode() (image.Image, error)
	Digest() (string, error)
	Ref() string
}

// File reads an image from disk (PNG or JPEG).
type File struct {
	Path string
}

func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Decode() (image.Image, error) {
	r, err := os.Open(f.Path)
	if err != nil {
		return nil, fault.Wrap(fault.ErrImageDecode, "source", f.Path, err)
	}
	defer r.Close()

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fault.Wrap(fault.ErrImageDecode, "source", f.Path, err)
	}
	return img, nil
}

func (f *File) Digest() (string, error) {
	r, err := os.Open(f.Path)
	if err != nil {
		return "", fault.Wrap(fault.ErrImageDecode, "source", f.Path, err)
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fault.Wrap(fault.ErrImageDecode, "source", f.Path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (f *File) Ref() string { return f.Path }

// Bytes holds an already resolved image payload, as handed over by an API
// upload.
type Bytes struct {
	Name string
	Data []byte
}

func NewBytes(name string, data []byte) *Bytes {
	return &Bytes{Name: name, Data: data}
}

func (b *Bytes) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(b.Data))
	if err != nil {
		return nil, fault.Wrap(fault.ErrImageDecode, "source", b.Name, err)
	}
	return img, nil
}

func (b *Bytes) Digest() (string, error) {
	sum := sha256.Sum256(b.Data)
	return hex.EncodeToString(sum[:]), nil
}

func (b *Bytes) Ref() string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("bytes(%d)", len(b.Data))
}
