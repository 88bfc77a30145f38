package spot

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"
)

// ErrNotFound is returned when an element id does not resolve.
var ErrNotFound = errors.New("spot: element not found")

var imgSelector = cascadia.MustCompile("img")

// Metrics are the viewport measurements a static document cannot compute
// itself. The scroll height is the largest of them.
type Metrics struct {
	BodyScrollHeight int
	BodyOffsetHeight int
	ClientHeight     int
	ScrollHeight     int
	OffsetHeight     int
}

func (m Metrics) max() int {
	out := m.BodyScrollHeight
	for _, v := range []int{m.BodyOffsetHeight, m.ClientHeight, m.ScrollHeight, m.OffsetHeight} {
		if v > out {
			out = v
		}
	}
	return out
}

// DefaultMetrics describe an empty 1024x768 viewport.
var DefaultMetrics = Metrics{ClientHeight: 768}

// HTMLDocument is an in-memory Document backed by an html.Node tree. Image
// sizes come from inline data: URIs or from size attributes; nothing is
// fetched.
type HTMLDocument struct {
	mu      sync.Mutex
	root    *html.Node
	base    *url.URL
	metrics Metrics
	scrollX int
	scrollY int
	keyFns  []func(int)
	clicks  map[string][]func()
}

// ParseHTML parses r into a document. base resolves relative image sources
// and may be empty.
func ParseHTML(r io.Reader, base string) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("spot: parse html: %w", err)
	}
	return NewHTMLDocument(root, base)
}

// NewHTMLDocument wraps an already parsed tree.
func NewHTMLDocument(root *html.Node, base string) (*HTMLDocument, error) {
	d := &HTMLDocument{root: root, metrics: DefaultMetrics, clicks: make(map[string][]func())}
	if strings.TrimSpace(base) != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("spot: base url: %w", err)
		}
		d.base = u
	}
	return d, nil
}

// SetMetrics replaces the viewport measurements.
func (d *HTMLDocument) SetMetrics(m Metrics) {
	d.mu.Lock()
	d.metrics = m
	d.mu.Unlock()
}

// Scroll returns the last scroll position requested.
func (d *HTMLDocument) Scroll() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrollX, d.scrollY
}

func (d *HTMLDocument) Images(ctx context.Context) ([]Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := cascadia.QueryAll(d.root, imgSelector)
	out := make([]Image, 0, len(nodes))
	for _, n := range nodes {
		src := d.resolve(getAttr(n, "src"))
		w, h := naturalSize(n, src)
		out = append(out, Image{Src: src, NaturalWidth: w, NaturalHeight: h})
	}
	return out, nil
}

func (d *HTMLDocument) resolve(src string) string {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") || d.base == nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return d.base.ResolveReference(ref).String()
}

func naturalSize(n *html.Node, src string) (int, int) {
	if strings.HasPrefix(strings.ToLower(src), "data:") {
		if w, h, ok := dataURISize(src); ok {
			return w, h
		}
	}
	if w, h, ok := attrSize(n, "data-natural-width", "data-natural-height"); ok {
		return w, h
	}
	w, h, _ := attrSize(n, "width", "height")
	return w, h
}

func attrSize(n *html.Node, wKey, hKey string) (int, int, bool) {
	w, errW := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(getAttr(n, wKey)), "px"))
	h, errH := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(getAttr(n, hKey)), "px"))
	if errW != nil || errH != nil {
		return 0, 0, false
	}
	return w, h, true
}

// dataURISize decodes only the image header of a data: URI.
func dataURISize(uri string) (int, int, bool) {
	// data:[<mediatype>][;base64],<data>
	comma := strings.IndexByte(uri, ',')
	if comma == -1 {
		return 0, 0, false
	}
	meta := uri[len("data:"):comma]
	data := uri[comma+1:]
	var raw []byte
	if strings.Contains(meta, ";base64") {
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return 0, 0, false
		}
		raw = b
	} else {
		s, err := url.PathUnescape(data)
		if err != nil {
			return 0, 0, false
		}
		raw = []byte(s)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

func (d *HTMLDocument) ScrollTo(ctx context.Context, x, y int) error {
	d.mu.Lock()
	d.scrollX, d.scrollY = x, y
	d.mu.Unlock()
	return nil
}

func (d *HTMLDocument) ScrollHeight(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metrics.max(), nil
}

func (d *HTMLDocument) body() (*html.Node, error) {
	body := cascadia.Query(d.root, cascadia.MustCompile("body"))
	if body == nil {
		return nil, fmt.Errorf("%w: body", ErrNotFound)
	}
	return body, nil
}

func (d *HTMLDocument) byID(id string) *html.Node {
	sel, err := cascadia.Compile("#" + id)
	if err != nil {
		return nil
	}
	return cascadia.Query(d.root, sel)
}

func (d *HTMLDocument) Mount(ctx context.Context, style, root *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	body, err := d.body()
	if err != nil {
		return err
	}
	for _, n := range []*html.Node{style, root} {
		if n == nil {
			continue
		}
		detach(n)
		body.AppendChild(n)
	}
	return nil
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func (d *HTMLDocument) SetBodyStyle(ctx context.Context, prop, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	body, err := d.body()
	if err != nil {
		return err
	}
	setAttr(body, "style", styleSet(getAttr(body, "style"), prop, value))
	return nil
}

func (d *HTMLDocument) SetStyle(ctx context.Context, id, prop, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil {
		return fmt.Errorf("%w: #%s", ErrNotFound, id)
	}
	setAttr(n, "style", styleSet(getAttr(n, "style"), prop, value))
	return nil
}

// Style returns an inline style property of the element with id.
func (d *HTMLDocument) Style(id, prop string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n *html.Node
	if id == "" {
		n, _ = d.body()
	} else {
		n = d.byID(id)
	}
	if n == nil {
		return ""
	}
	return styleGet(getAttr(n, "style"), prop)
}

func (d *HTMLDocument) Append(ctx context.Context, parentID string, n *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent := d.byID(parentID)
	if parent == nil {
		return fmt.Errorf("%w: #%s", ErrNotFound, parentID)
	}
	detach(n)
	parent.AppendChild(n)
	return nil
}

func (d *HTMLDocument) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil || n.Parent == nil {
		return fmt.Errorf("%w: #%s", ErrNotFound, id)
	}
	n.Parent.RemoveChild(n)
	return nil
}

func (d *HTMLDocument) Exists(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byID(id) != nil, nil
}

func (d *HTMLDocument) OnKeyUp(ctx context.Context, fn func(code int)) error {
	d.mu.Lock()
	d.keyFns = append(d.keyFns, fn)
	d.mu.Unlock()
	return nil
}

func (d *HTMLDocument) OnClick(ctx context.Context, id string, fn func()) error {
	d.mu.Lock()
	d.clicks[id] = append(d.clicks[id], fn)
	d.mu.Unlock()
	return nil
}

// KeyUp delivers a key-up event to the installed listeners.
func (d *HTMLDocument) KeyUp(code int) {
	d.mu.Lock()
	fns := append(([]func(int))(nil), d.keyFns...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(code)
	}
}

// Click delivers a click on the element with id. It reports false when the
// element is not in the document.
func (d *HTMLDocument) Click(id string) bool {
	d.mu.Lock()
	if d.byID(id) == nil {
		d.mu.Unlock()
		return false
	}
	fns := append(([]func())(nil), d.clicks[id]...)
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return true
}

// QueryAll returns the elements matching a CSS selector.
func (d *HTMLDocument) QueryAll(selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("spot: selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return cascadia.QueryAll(d.root, sel), nil
}

// HTML renders the whole document.
func (d *HTMLDocument) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return RenderHTML(d.root)
}
