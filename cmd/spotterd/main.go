package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"spotter/internal/browser"
	"spotter/internal/server"
)

func main() {
	addrFlag := flag.String("addr", ":8082", "listen address, e.g. :80 or 0.0.0.0:8082")
	remoteFlag := flag.String("chrome", "", "DevTools websocket URL of a running Chrome (default: launch headless)")
	flag.Parse()

	addr := *addrFlag
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}
	remote := *remoteFlag
	if env := os.Getenv("SPOTTER_CHROME_REMOTE"); env != "" && remote == "" {
		remote = env
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stdout)

	launcher := browser.NewLauncher(browser.Config{RemoteURL: remote, Logger: log.Default()})
	defer launcher.Close()

	cfg := server.DefaultConfig()
	cfg.Opener = server.NewBrowserOpener(launcher)
	handler := server.New(cfg)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		// a page load plus screenshot can take most of the browser timeout
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Timeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(os.Stdout, "HTTPERR ", log.LstdFlags|log.Lmicroseconds),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Listen error on %s: %v", addr, err)
	}

	log.Println("Listening on", addr)
	log.Fatal(srv.Serve(ln))
}
