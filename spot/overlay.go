package spot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// FadeDelay is how long a closing overlay stays in the document so the
// opacity transition can finish.
const FadeDelay = 1000 * time.Millisecond

// State is the lifecycle state of an overlay.
type State int

const (
	Absent State = iota
	Mounted
	Closing
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Mounted:
		return "mounted"
	case Closing:
		return "closing"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Scheduler runs fn once after d. The returned stop function cancels a
// pending call and reports whether it did. fn may run before AfterFunc
// returns.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// TimerScheduler schedules on the runtime timers.
var TimerScheduler Scheduler = timerScheduler{}

// Options tunes a Spotter and its Overlay. The zero value is usable.
type Options struct {
	MinSize   int
	FadeDelay time.Duration
	Scheduler Scheduler
	Logger    *log.Logger
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.MinSize <= 0 {
		out.MinSize = MinSize
	}
	if out.FadeDelay <= 0 {
		out.FadeDelay = FadeDelay
	}
	if out.Scheduler == nil {
		out.Scheduler = TimerScheduler
	}
	if out.Logger == nil {
		out.Logger = log.Default()
	}
	return out
}

// Overlay owns the overlay subtree of one document. Only one overlay is
// mounted at a time: Open is a no-op unless the overlay is Absent, and a
// closing overlay is always removed completely before the next one mounts.
type Overlay struct {
	doc    Document
	opt    Options
	logger *log.Logger

	mu        sync.Mutex
	state     State
	gen       int
	stop      func() bool
	listening bool
}

// NewOverlay returns an Absent overlay for doc.
func NewOverlay(doc Document, opt *Options) *Overlay {
	o := opt.withDefaults()
	return &Overlay{doc: doc, opt: o, logger: o.Logger}
}

// State returns the current lifecycle state.
func (o *Overlay) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Open mounts the overlay and fades it in. It reports whether a new overlay
// was mounted.
func (o *Overlay) Open(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Absent {
		return false, nil
	}
	if err := o.mount(ctx); err != nil {
		// the body margin and padding stay reset
		for _, id := range []string{RootID, StyleID} {
			if ok, _ := o.doc.Exists(ctx, id); ok {
				_ = o.doc.Remove(ctx, id)
			}
		}
		return false, err
	}
	o.state = Mounted
	o.gen++
	o.logger.Printf("SPOT overlay mounted gen=%d", o.gen)
	return true, nil
}

func (o *Overlay) mount(ctx context.Context) error {
	// scroll to the top so the absolutely positioned overlay is in view
	if err := o.doc.ScrollTo(ctx, 0, 0); err != nil {
		return fmt.Errorf("spot: scroll: %w", err)
	}
	style := StyleNode()
	if ok, err := o.doc.Exists(ctx, StyleID); err != nil {
		return fmt.Errorf("spot: lookup stylesheet: %w", err)
	} else if ok {
		style = nil
	}
	if err := o.doc.Mount(ctx, style, BuildRoot()); err != nil {
		return fmt.Errorf("spot: mount: %w", err)
	}
	for _, prop := range []string{"margin", "padding"} {
		if err := o.doc.SetBodyStyle(ctx, prop, "0"); err != nil {
			return fmt.Errorf("spot: body %s: %w", prop, err)
		}
	}
	height, err := o.doc.ScrollHeight(ctx)
	if err != nil {
		return fmt.Errorf("spot: scroll height: %w", err)
	}
	if err := o.doc.SetStyle(ctx, RootID, "height", strconv.Itoa(height)+"px"); err != nil {
		return fmt.Errorf("spot: height: %w", err)
	}
	if err := o.doc.SetStyle(ctx, RootID, "opacity", "1"); err != nil {
		return fmt.Errorf("spot: fade in: %w", err)
	}
	if o.listening {
		return nil
	}
	if err := o.doc.OnClick(ctx, CloseID, o.dismiss); err != nil {
		return fmt.Errorf("spot: close listener: %w", err)
	}
	if err := o.doc.OnKeyUp(ctx, func(code int) {
		if code == KeyEscape {
			o.dismiss()
		}
	}); err != nil {
		return fmt.Errorf("spot: key listener: %w", err)
	}
	o.listening = true
	return nil
}

func (o *Overlay) dismiss() {
	if err := o.Close(context.Background()); err != nil {
		o.logger.Printf("SPOT close failed: %v", err)
	}
}

// Close fades the overlay out and schedules its removal after the fade
// delay. Closing an overlay that is not mounted does nothing.
func (o *Overlay) Close(ctx context.Context) error {
	gen, err := o.startClose(ctx)
	if err != nil || gen == 0 {
		return err
	}
	// scheduled without the lock: fn takes it again
	stop := o.opt.Scheduler.AfterFunc(o.opt.FadeDelay, func() { o.finishClose(gen) })
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Closing || o.gen != gen {
		// already finished or shut down
		stop()
		return nil
	}
	o.stop = stop
	o.logger.Printf("SPOT overlay closing gen=%d delay=%s", gen, o.opt.FadeDelay)
	return nil
}

// startClose fades the root out and returns the generation to remove, or 0
// when there is nothing to close.
func (o *Overlay) startClose(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Mounted {
		return 0, nil
	}
	ok, err := o.doc.Exists(ctx, RootID)
	if err != nil {
		return 0, fmt.Errorf("spot: lookup root: %w", err)
	}
	if !ok {
		// removed behind our back
		o.state = Absent
		return 0, nil
	}
	if err := o.doc.SetStyle(ctx, RootID, "opacity", "0"); err != nil {
		return 0, fmt.Errorf("spot: fade out: %w", err)
	}
	o.state = Closing
	return o.gen, nil
}

func (o *Overlay) finishClose(gen int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Closing || o.gen != gen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.removeRoot(ctx); err != nil {
		o.logger.Printf("SPOT remove failed gen=%d: %v", gen, err)
	}
	o.state = Absent
	o.stop = nil
}

func (o *Overlay) removeRoot(ctx context.Context) error {
	ok, err := o.doc.Exists(ctx, RootID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return o.doc.Remove(ctx, RootID)
}

// Shutdown cancels a pending removal and removes the overlay right away.
func (o *Overlay) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == Absent {
		return nil
	}
	if o.stop != nil {
		o.stop()
		o.stop = nil
	}
	o.gen++
	o.state = Absent
	if err := o.removeRoot(ctx); err != nil {
		return fmt.Errorf("spot: remove: %w", err)
	}
	return nil
}

// RenderContent appends n to the content slot of a mounted overlay.
// Appending to an overlay that is closing or gone is ignored.
func (o *Overlay) RenderContent(ctx context.Context, n *html.Node) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Mounted || n == nil {
		return nil
	}
	if err := o.doc.Append(ctx, ContentID, n); err != nil {
		return fmt.Errorf("spot: render content: %w", err)
	}
	return nil
}
