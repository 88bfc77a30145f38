package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spotter/internal/browser"
	"spotter/spot"
)

var contentTypes = map[string]string{
	"png":  "image/png",
	"html": "text/html; charset=utf-8",
	"json": "application/json; charset=utf-8",
}

type spotReport struct {
	URL     string           `json:"url"`
	Scanned int              `json:"scanned"`
	Kept    int              `json:"kept"`
	Images  []spot.Thumbnail `json:"images"`
}

func newReport(target string, res spot.Result) spotReport {
	return spotReport{URL: target, Scanned: res.Scanned, Kept: res.Kept, Images: res.Thumbnails()}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.cfg.IndexHTML)))
	io.WriteString(w, s.cfg.IndexHTML)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "pong\n")
}

func (s *Server) handleSpot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	target := normalizeTarget(q.Get("url"))
	if target == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	format := strings.ToLower(firstNonEmpty(strings.TrimSpace(q.Get("format")), "png"))
	contentType, ok := contentTypes[format]
	if !ok {
		http.Error(w, "unknown format "+strconv.Quote(format), http.StatusBadRequest)
		return
	}
	site := s.sites.Find(target)
	minSize := 0
	if site != nil {
		minSize = site.MinSize
	}
	if raw := q.Get("min"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid min", http.StatusBadRequest)
			return
		}
		minSize = n
	}

	key := cacheKey(target, format, minSize)
	if data, ct, ok := s.cache.Get(key); ok {
		s.logger.Printf("SPOT cache hit %s", key)
		writeResult(w, data, ct, true)
		return
	}
	if s.opener == nil {
		http.Error(w, "no browser configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()
	data, err := s.spot(ctx, target, format, minSize, site, s.headersFromQuery(r))
	if err != nil {
		s.logger.Printf("SPOT %s failed: %v", target, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.cache.Store(key, data, contentType)
	writeResult(w, data, contentType, false)
}

func writeResult(w http.ResponseWriter, data []byte, contentType string, cached bool) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if cached {
		w.Header().Set("X-Spotter-Cache", "hit")
	} else {
		w.Header().Set("X-Spotter-Cache", "miss")
	}
	w.Write(data)
}

func (s *Server) spot(ctx context.Context, target, format string, minSize int, site *SiteConfig, hdr http.Header) ([]byte, error) {
	opt := browser.PageOptions{Header: hdr, Timeout: s.cfg.Timeout}
	if site != nil {
		opt.WaitSelector = site.WaitSelector
		opt.WaitAfterLoad = time.Duration(site.WaitMS) * time.Millisecond
		opt.WaitNetworkIdle = time.Duration(site.IdleMS) * time.Millisecond
		for k, v := range site.Headers {
			if opt.Header.Get(k) == "" {
				opt.Header.Set(k, v)
			}
		}
	}
	page, err := s.opener.Open(ctx, target, opt)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	sp := spot.New(page, &spot.Options{MinSize: minSize, Logger: s.logger})
	res, err := sp.Activate(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("SPOT %s scanned=%d kept=%d format=%s", target, res.Scanned, res.Kept, format)

	switch format {
	case "json":
		return json.MarshalIndent(newReport(target, res), "", "  ")
	case "html":
		out, err := page.HTML(ctx)
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	}
	if s.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.SettleDelay):
		}
	}
	shot, err := page.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", target, err)
	}
	return shot, nil
}

func (s *Server) headersFromQuery(r *http.Request) http.Header {
	hdr := http.Header{}
	if ua := r.URL.Query().Get("ua"); ua != "" {
		hdr.Set("User-Agent", ua)
	}
	if lang := firstNonEmpty(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language")); lang != "" {
		hdr.Set("Accept-Language", lang)
	}
	return hdr
}
