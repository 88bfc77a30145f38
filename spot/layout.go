package spot

import (
	"math"
	"strings"
)

// Thumbnail target box.
const (
	TargetWidth  = 176
	TargetHeight = 109
)

// TargetRatio is the width/height ratio of the target box. Images at or
// above it are wide and get their width pinned.
const TargetRatio = float64(TargetWidth) / float64(TargetHeight)

// Cell is the layout of one grid thumbnail.
type Cell struct {
	Src           string
	DisplayWidth  float64
	DisplayHeight float64
	Wide          bool
}

// Layout scales size into the target box. Both dimensions must be positive,
// which the size filter guarantees for every collected image.
func Layout(src string, size Size) Cell {
	w := float64(size.Width)
	h := float64(size.Height)
	c := Cell{Src: src}
	if w/h >= TargetRatio {
		c.Wide = true
		c.DisplayWidth = TargetWidth
		c.DisplayHeight = h * TargetWidth / w
	} else {
		c.DisplayHeight = TargetHeight
		c.DisplayWidth = w * TargetHeight / h
	}
	return c
}

// Pixels returns the display size rounded to whole pixels.
func (c Cell) Pixels() (int, int) {
	return int(math.Round(c.DisplayWidth)), int(math.Round(c.DisplayHeight))
}

// Download is the file name offered when saving the image.
func (c Cell) Download() string { return DownloadName(c.Src) }

// DownloadName strips everything up to and including the last slash.
func DownloadName(src string) string {
	if i := strings.LastIndexByte(src, '/'); i >= 0 {
		return src[i+1:]
	}
	return src
}
