package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/slides2video/internal/fault"
)

const DefaultDPI = 300

// PDFPage renders one page of a PDF document as an image item. Pages are
// zero-based. Each Decode opens its own fitz document so concurrent renders
// of different pages stay independent.
type PDFPage struct {
	Path string
	Page int
	DPI  int
}

func NewPDFPage(path string, page, dpi int) *PDFPage {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &PDFPage{Path: path, Page: page, DPI: dpi}
}

func (p *PDFPage) Decode() (image.Image, error) {
	doc, err := fitz.New(p.Path)
	if err != nil {
		return nil, fault.Wrap(fault.ErrImageDecode, "source", p.Ref(), err)
	}
	defer doc.Close()

	if p.Page < 0 || p.Page >= doc.NumPage() {
		return nil, fault.Wrap(fault.ErrImageDecode, "source", fmt.Sprintf("%s: page %d of %d", p.Path, p.Page, doc.NumPage()), nil)
	}

	img, err := doc.ImageDPI(p.Page, float64(p.DPI))
	if err != nil {
		return nil, fault.Wrap(fault.ErrImageDecode, "source", p.Ref(), err)
	}
	return img, nil
}

func (p *PDFPage) Digest() (string, error) {
	r, err := os.Open(p.Path)
	if err != nil {
		return "", fault.Wrap(fault.ErrImageDecode, "source", p.Ref(), err)
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fault.Wrap(fault.ErrImageDecode, "source", p.Ref(), err)
	}
	// Page and DPI change the rendered pixels, so they are part of the
	// content identity.
	fmt.Fprintf(h, "#%d@%d", p.Page, p.DPI)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (p *PDFPage) Ref() string {
	return fmt.Sprintf("%s#%d", p.Path, p.Page+1)
}

// PageCount reports how many pages the document at path has.
func PageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, fault.Wrap(fault.ErrImageDecode, "source", path, err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// Parse resolves a storyboard input reference to an Image. Plain paths map to
// files; "deck.pdf#3" means page 3 (one-based) of deck.pdf.
func Parse(ref string, dpi int) (Image, error) {
	if i := strings.LastIndex(ref, "#"); i > 0 {
		path, pageStr := ref[:i], ref[i+1:]
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			page, err := strconv.Atoi(pageStr)
			if err != nil || page < 1 {
				return nil, fault.Wrap(fault.ErrInvalidConfig, "source", fmt.Sprintf("bad page reference %q", ref), err)
			}
			return NewPDFPage(path, page-1, dpi), nil
		}
	}
	if strings.EqualFold(filepath.Ext(ref), ".pdf") {
		return NewPDFPage(ref, 0, dpi), nil
	}
	return NewFile(ref), nil
}
