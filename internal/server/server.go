// Package server exposes the image finder over HTTP: it opens a page in a
// browser, activates the overlay and returns the result.
package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"spotter/internal/browser"
	"spotter/spot"
)

const defaultIndexHTML = `<!DOCTYPE html>
<html><body>
<h1>Spotter</h1>
<form action="/spot" method="get">
<h3>Find the images of a page</h3>
URL: <input name="url" size="60"><br>
Format: <select name="format"><option>png</option><option>html</option><option>json</option></select><br>
Min size: <input name="min" size="4"><br>
<button type="submit">Spot</button>
</form>
</body></html>`

const (
	defaultSitesDir    = "config/sites"
	defaultCacheTTL    = 5 * time.Minute
	defaultTimeout     = 25 * time.Second
	defaultSettleDelay = 250 * time.Millisecond
)

// Page is a loaded document the server can activate and capture.
type Page interface {
	spot.Document
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Close()
}

// Opener loads pages.
type Opener interface {
	Open(ctx context.Context, target string, opt browser.PageOptions) (Page, error)
}

type launcherOpener struct {
	l *browser.Launcher
}

func (o launcherOpener) Open(ctx context.Context, target string, opt browser.PageOptions) (Page, error) {
	p, err := o.l.Open(ctx, target, opt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewBrowserOpener adapts a browser launcher to an Opener.
func NewBrowserOpener(l *browser.Launcher) Opener { return launcherOpener{l: l} }

// Config describes server wiring and runtime behaviour.
type Config struct {
	IndexHTML string
	SitesDir  string
	CacheTTL  time.Duration
	Timeout   time.Duration
	// SettleDelay is waited after activation so the fade-in has finished
	// before a screenshot is taken.
	SettleDelay time.Duration
	Opener      Opener
	Logger      *log.Logger
	Clock       func() time.Time
}

// DefaultConfig populates configuration from environment variables. The
// Opener is left for the caller.
func DefaultConfig() Config {
	cfg := Config{
		IndexHTML:   defaultIndexHTML,
		Logger:      log.Default(),
		Clock:       time.Now,
		SitesDir:    strings.TrimSpace(os.Getenv("SPOTTER_SITES_DIR")),
		CacheTTL:    defaultCacheTTL,
		Timeout:     defaultTimeout,
		SettleDelay: defaultSettleDelay,
	}
	if cfg.SitesDir == "" {
		cfg.SitesDir = defaultSitesDir
	}
	if raw := strings.TrimSpace(os.Getenv("SPOTTER_CACHE_TTL")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
			cfg.CacheTTL = d
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SPOTTER_TIMEOUT_MS")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Timeout = time.Duration(n) * time.Millisecond
		}
	}
	return cfg
}

// Server exposes the HTTP handlers.
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	handler http.Handler
	logger  *log.Logger
	opener  Opener
	cache   *resultCache
	sites   *siteConfigStore
	clock   func() time.Time
}

// New wires a new server with the provided configuration.
func New(cfg Config) *Server {
	if cfg.IndexHTML == "" {
		cfg.IndexHTML = defaultIndexHTML
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SitesDir == "" {
		cfg.SitesDir = defaultSitesDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
		opener: cfg.Opener,
		cache:  newResultCache(cfg.Clock, cfg.CacheTTL),
		sites:  newSiteConfigStore(cfg.SitesDir),
		clock:  cfg.Clock,
	}
	s.registerRoutes()
	s.handler = withLogging(s.logger, s.mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/spot", s.handleSpot)
	s.mux.HandleFunc("/ping", s.handlePing)
}
