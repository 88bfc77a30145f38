package spot

import (
	"context"
	"fmt"
	"log"
)

// Result summarizes one activation.
type Result struct {
	Activated bool
	Scanned   int
	Kept      int
	Cells     []Cell
}

// Spotter ties the scan to the overlay of one document.
type Spotter struct {
	doc     Document
	overlay *Overlay
	keep    func(Image) bool
	logger  *log.Logger
}

// New returns a Spotter for doc.
func New(doc Document, opt *Options) *Spotter {
	o := opt.withDefaults()
	return &Spotter{
		doc:     doc,
		overlay: NewOverlay(doc, &o),
		keep:    BigEnoughAt(o.MinSize),
		logger:  o.Logger,
	}
}

// Overlay exposes the lifecycle controller, e.g. to close it from a host.
func (s *Spotter) Overlay() *Overlay { return s.overlay }

// Activate opens the overlay and fills it with the large images of the
// document. It does nothing while an overlay is mounted or closing. Errors
// only come from the document transport.
func (s *Spotter) Activate(ctx context.Context) (Result, error) {
	opened, err := s.overlay.Open(ctx)
	if err != nil || !opened {
		return Result{}, err
	}
	imgs, err := s.doc.Images(ctx)
	if err != nil {
		// leave no empty overlay mounted
		if serr := s.overlay.Shutdown(ctx); serr != nil {
			s.logger.Printf("SPOT shutdown failed: %v", serr)
		}
		return Result{}, fmt.Errorf("spot: list images: %w", err)
	}
	col := Collect(imgs, s.keep)
	res := Result{Activated: true, Scanned: len(imgs), Kept: col.Len()}
	col.Each(func(src string, size Size) {
		res.Cells = append(res.Cells, Layout(src, size))
	})
	if err := s.overlay.RenderContent(ctx, BuildContent(col)); err != nil {
		return res, err
	}
	s.logger.Printf("SPOT scanned=%d kept=%d", res.Scanned, res.Kept)
	return res, nil
}

// Thumbnail is a Cell as rendered: whole pixels and the download name.
type Thumbnail struct {
	Src      string `json:"src"`
	Download string `json:"download"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Wide     bool   `json:"wide"`
}

// Thumbnails returns the rendered grid of the activation, never nil.
func (r Result) Thumbnails() []Thumbnail {
	out := make([]Thumbnail, 0, len(r.Cells))
	for _, c := range r.Cells {
		w, h := c.Pixels()
		out = append(out, Thumbnail{Src: c.Src, Download: c.Download(), Width: w, Height: h, Wide: c.Wide})
	}
	return out
}
