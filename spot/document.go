// Package spot finds the large images of a loaded page and shows them in a
// thumbnail grid inside a full-page overlay.
//
// The overlay is driven through a Document, which can be an in-memory HTML
// tree (HTMLDocument) or a live browser tab.
package spot

import (
	"context"

	"golang.org/x/net/html"
)

// Well-known element ids of the overlay markup.
const (
	RootID    = "spotterWrapper"
	CloseID   = "spotterClose"
	ContentID = "spotterContent"
	ListID    = "spotterList"
	MsgID     = "spotterMsg"
	StyleID   = "spotterStyle"
)

// KeyEscape is the key code that dismisses the overlay.
const KeyEscape = 27

// Image is an image element of the document as seen by the scanner.
type Image struct {
	Src           string
	NaturalWidth  int
	NaturalHeight int
}

// Document is the page the overlay is injected into. Elements are addressed
// by id so that implementations can live in another process.
type Document interface {
	// Images returns every image element currently in the document, in
	// document order.
	Images(ctx context.Context) ([]Image, error)
	ScrollTo(ctx context.Context, x, y int) error
	// ScrollHeight is the full content height including overflow.
	ScrollHeight(ctx context.Context) (int, error)
	// Mount appends the stylesheet and the overlay root to the body.
	Mount(ctx context.Context, style, root *html.Node) error
	SetBodyStyle(ctx context.Context, prop, value string) error
	SetStyle(ctx context.Context, id, prop, value string) error
	Append(ctx context.Context, parentID string, n *html.Node) error
	Remove(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	// OnKeyUp installs a document-wide key-up listener.
	OnKeyUp(ctx context.Context, fn func(code int)) error
	OnClick(ctx context.Context, id string, fn func()) error
}
