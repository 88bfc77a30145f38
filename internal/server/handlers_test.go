package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"spotter/internal/browser"
	"spotter/spot"
)

type fakePage struct {
	*spot.HTMLDocument
	closed bool
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (p *fakePage) HTML(context.Context) (string, error) { return p.HTMLDocument.HTML(), nil }

func (p *fakePage) Close() { p.closed = true }

type fakeOpener struct {
	mu     sync.Mutex
	pages  map[string]string
	opened []string
	opts   []browser.PageOptions
	last   *fakePage
}

func (o *fakeOpener) Open(_ context.Context, target string, opt browser.PageOptions) (Page, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, target)
	o.opts = append(o.opts, opt)
	body, ok := o.pages[target]
	if !ok {
		return nil, errors.New("unreachable host")
	}
	doc, err := spot.ParseHTML(strings.NewReader(body), target)
	if err != nil {
		return nil, err
	}
	o.last = &fakePage{HTMLDocument: doc}
	return o.last, nil
}

func newTestServer(t *testing.T, opener Opener, sitesDir string) *Server {
	t.Helper()
	return New(Config{
		Opener:      opener,
		SitesDir:    sitesDir,
		CacheTTL:    time.Minute,
		Timeout:     5 * time.Second,
		SettleDelay: -1,
		Logger:      log.New(io.Discard, "", 0),
	})
}

const catPage = `<html><body><img src="/y/cat.png" width="200" height="100"><img src="/y/cat.png" width="200" height="100"><img src="icon.png" width="16" height="16"></body></html>`

func TestHandleSpotJSON(t *testing.T) {
	opener := &fakeOpener{pages: map[string]string{"http://x.test/": catPage}}
	srv := newTestServer(t, opener, t.TempDir())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spot?url=x.test/&format=json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var rep spotReport
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Scanned != 3 || rep.Kept != 1 || len(rep.Images) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	img := rep.Images[0]
	if img.Src != "http://x.test/y/cat.png" || img.Download != "cat.png" || img.Width != 176 || img.Height != 88 || !img.Wide {
		t.Fatalf("image = %+v", img)
	}
	if !opener.last.closed {
		t.Fatal("page not closed")
	}
}

func TestHandleSpotHTMLContainsOverlay(t *testing.T) {
	opener := &fakeOpener{pages: map[string]string{"http://x.test/": `<html><body><p>nothing</p></body></html>`}}
	srv := newTestServer(t, opener, t.TempDir())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spot?url=http://x.test/&format=html", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`id="spotterWrapper"`, `id="spotterMsg"`, spot.EmptyMessage} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q", want)
		}
	}
}

func TestHandleSpotCachesResults(t *testing.T) {
	opener := &fakeOpener{pages: map[string]string{"http://x.test/": catPage}}
	srv := newTestServer(t, opener, t.TempDir())

	for i, want := range []string{"miss", "hit"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spot?url=http://x.test/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
		if got := rec.Header().Get("X-Spotter-Cache"); got != want {
			t.Fatalf("request %d cache = %q, want %q", i, got, want)
		}
		if rec.Header().Get("Content-Type") != "image/png" {
			t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
		}
	}
	if len(opener.opened) != 1 {
		t.Fatalf("opened %d pages, want 1", len(opener.opened))
	}
}

func TestHandleSpotBadRequests(t *testing.T) {
	srv := newTestServer(t, &fakeOpener{}, t.TempDir())
	tests := []struct {
		name string
		path string
		code int
	}{
		{"missing url", "/spot", http.StatusBadRequest},
		{"bad scheme", "/spot?url=ftp://x.test/", http.StatusBadRequest},
		{"bad format", "/spot?url=x.test&format=gif", http.StatusBadRequest},
		{"bad min", "/spot?url=x.test&min=-4", http.StatusBadRequest},
		{"upstream failure", "/spot?url=down.test", http.StatusBadGateway},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.code {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.code)
		}
	}
}

func TestHandleSpotWithoutBrowser(t *testing.T) {
	srv := newTestServer(t, nil, t.TempDir())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spot?url=x.test", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleSpotSiteConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := `{"wait_selector":" #main ","wait_ms":120,"min_size":10,"headers":{"X-Test":"1"}}`
	if err := os.WriteFile(filepath.Join(dir, "example.com.json"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	page := `<html><body><img src="small.png" width="20" height="20"></body></html>`
	opener := &fakeOpener{pages: map[string]string{"http://www.example.com/": page}}
	srv := newTestServer(t, opener, dir)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spot?url=www.example.com/&format=json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var rep spotReport
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Kept != 1 {
		t.Fatalf("site min_size not applied: %+v", rep)
	}
	opt := opener.opts[0]
	if opt.WaitSelector != "#main" || opt.WaitAfterLoad != 120*time.Millisecond || opt.Header.Get("X-Test") != "1" {
		t.Fatalf("page options = %+v", opt)
	}
}

func TestHandlePingAndRoot(t *testing.T) {
	srv := newTestServer(t, nil, "")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Body.String() != "pong\n" {
		t.Fatalf("ping body = %q", rec.Body.String())
	}
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), `action="/spot"`) {
		t.Fatal("index form missing")
	}
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", rec.Code)
	}
}
