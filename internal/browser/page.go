package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"spotter/spot"
)

// bindingName is the page function that reports DOM events back to Go.
const bindingName = "__spotterEvent"

// Page is a loaded browser tab. It implements spot.Document.
type Page struct {
	tab    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	mu        sync.Mutex
	keyFns    []func(int)
	clicks    map[string][]func()
	keysBound bool
}

var _ spot.Document = (*Page)(nil)

func newPage(tab context.Context, cancel context.CancelFunc, logger *log.Logger) *Page {
	return &Page{tab: tab, cancel: cancel, logger: logger, clicks: make(map[string][]func())}
}

// Close closes the tab.
func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Page) bind(ctx context.Context) error {
	chromedp.ListenTarget(p.tab, func(ev interface{}) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == bindingName {
			// listeners must not block the event loop
			go p.dispatch(e.Payload)
		}
	})
	if err := chromedp.Run(ctx, runtime.AddBinding(bindingName)); err != nil {
		return fmt.Errorf("browser: add binding: %w", err)
	}
	return nil
}

func (p *Page) dispatch(payload string) {
	kind, arg, _ := strings.Cut(payload, ":")
	switch kind {
	case "key":
		code, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		p.mu.Lock()
		fns := append(([]func(int))(nil), p.keyFns...)
		p.mu.Unlock()
		for _, fn := range fns {
			fn(code)
		}
	case "click":
		p.mu.Lock()
		fns := append(([]func())(nil), p.clicks[arg]...)
		p.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	default:
		p.logger.Printf("BROWSER unknown event %q", payload)
	}
}

// run executes actions on the tab, aborting when ctx is done.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	if ctx != nil {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
	}
	return chromedp.Run(runCtx, actions...)
}

func (p *Page) eval(ctx context.Context, expr string, res interface{}) error {
	return p.run(ctx, chromedp.Evaluate(expr, res))
}

// call builds an immediately invoked function with JSON encoded arguments.
func call(body string, args ...interface{}) string {
	names := make([]string, len(args))
	vals := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			b = []byte("null")
		}
		names[i] = "a" + strconv.Itoa(i)
		vals[i] = string(b)
	}
	return "(function(" + strings.Join(names, ",") + "){" + body + "})(" + strings.Join(vals, ",") + ")"
}

type pageImage struct {
	Src string `json:"src"`
	W   int    `json:"w"`
	H   int    `json:"h"`
}

const imagesJS = `Array.prototype.map.call(document.getElementsByTagName('img'), function(i) {
	return {src: i.src, w: i.naturalWidth, h: i.naturalHeight};
})`

func (p *Page) Images(ctx context.Context) ([]spot.Image, error) {
	var raw []pageImage
	if err := p.eval(ctx, imagesJS, &raw); err != nil {
		return nil, fmt.Errorf("browser: images: %w", err)
	}
	out := make([]spot.Image, 0, len(raw))
	for _, r := range raw {
		out = append(out, spot.Image{Src: r.Src, NaturalWidth: r.W, NaturalHeight: r.H})
	}
	return out, nil
}

func (p *Page) ScrollTo(ctx context.Context, x, y int) error {
	return p.eval(ctx, call("window.scrollTo(a0, a1); return true;", x, y), nil)
}

const scrollHeightJS = `(function() {
	var body = document.body, html = document.documentElement;
	return Math.max(body.scrollHeight, body.offsetHeight, html.clientHeight, html.scrollHeight, html.offsetHeight);
})()`

func (p *Page) ScrollHeight(ctx context.Context) (int, error) {
	var h float64
	if err := p.eval(ctx, scrollHeightJS, &h); err != nil {
		return 0, fmt.Errorf("browser: scroll height: %w", err)
	}
	return int(h), nil
}

func (p *Page) Mount(ctx context.Context, style, root *html.Node) error {
	markup := spot.RenderHTML(style) + spot.RenderHTML(root)
	return p.eval(ctx, call("document.body.insertAdjacentHTML('beforeend', a0); return true;", markup), nil)
}

func (p *Page) SetBodyStyle(ctx context.Context, prop, value string) error {
	return p.eval(ctx, call("document.body.style.setProperty(a0, a1); return true;", prop, value), nil)
}

// byID evaluates body with the element bound to el, failing with
// spot.ErrNotFound when id does not resolve.
func (p *Page) byID(ctx context.Context, id, body string, args ...interface{}) error {
	var found bool
	all := append([]interface{}{id}, args...)
	js := call("var el = document.getElementById(a0); if (!el) return false; "+body+" return true;", all...)
	if err := p.eval(ctx, js, &found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: #%s", spot.ErrNotFound, id)
	}
	return nil
}

func (p *Page) SetStyle(ctx context.Context, id, prop, value string) error {
	return p.byID(ctx, id, "el.style.setProperty(a1, a2);", prop, value)
}

func (p *Page) Append(ctx context.Context, parentID string, n *html.Node) error {
	return p.byID(ctx, parentID, "el.insertAdjacentHTML('beforeend', a1);", spot.RenderHTML(n))
}

func (p *Page) Remove(ctx context.Context, id string) error {
	return p.byID(ctx, id, "el.parentNode.removeChild(el);")
}

func (p *Page) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := p.eval(ctx, call("return !!document.getElementById(a0);", id), &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *Page) OnKeyUp(ctx context.Context, fn func(code int)) error {
	p.mu.Lock()
	p.keyFns = append(p.keyFns, fn)
	bound := p.keysBound
	p.keysBound = true
	p.mu.Unlock()
	if bound {
		return nil
	}
	js := call(`window.addEventListener('keyup', function(e) {
		window[a0]('key:' + (e.which || e.keyCode));
	}); return true;`, bindingName)
	return p.eval(ctx, js, nil)
}

func (p *Page) OnClick(ctx context.Context, id string, fn func()) error {
	p.mu.Lock()
	first := len(p.clicks[id]) == 0
	p.clicks[id] = append(p.clicks[id], fn)
	p.mu.Unlock()
	if !first {
		return nil
	}
	// delegated so the listener survives the element being replaced
	js := call(`document.addEventListener('click', function(e) {
		var t = e.target;
		while (t && t.id !== a1) { t = t.parentNode; }
		if (t) { window[a0]('click:' + a1); }
	}, true); return true;`, bindingName, id)
	return p.eval(ctx, js, nil)
}

// PressKey dispatches a key-up event inside the page.
func (p *Page) PressKey(ctx context.Context, code int) error {
	js := call(`var e = new KeyboardEvent('keyup', {bubbles: true});
	Object.defineProperty(e, 'which', {get: function() { return a0; }});
	Object.defineProperty(e, 'keyCode', {get: function() { return a0; }});
	window.dispatchEvent(e); return true;`, code)
	return p.eval(ctx, js, nil)
}

// Screenshot captures the full page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return buf, nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var out string
	if err := p.run(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("browser: outer html: %w", err)
	}
	return out, nil
}
