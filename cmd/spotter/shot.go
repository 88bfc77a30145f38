package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"spotter/internal/browser"
	"spotter/spot"
)

func newShotCmd() *cobra.Command {
	var (
		out          string
		remote       string
		waitSelector string
		wait         time.Duration
		idle         time.Duration
		timeout      time.Duration
		minSize      int
		format       string
		closeAfter   bool
	)
	cmd := &cobra.Command{
		Use:   "shot <url>",
		Short: "Open a live page in headless Chrome and capture the overlay",
		Example: `  spotter shot https://example.com -o example.png
  spotter shot https://example.com --format json --idle 500ms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote == "" {
				remote = os.Getenv("SPOTTER_CHROME_REMOTE")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			launcher := browser.NewLauncher(browser.Config{RemoteURL: remote, Logger: log.Default()})
			defer launcher.Close()
			page, err := launcher.Open(ctx, args[0], browser.PageOptions{
				WaitSelector:    waitSelector,
				WaitAfterLoad:   wait,
				WaitNetworkIdle: idle,
				Timeout:         timeout,
			})
			if err != nil {
				return err
			}
			defer page.Close()

			sp := spot.New(page, &spot.Options{MinSize: minSize, Logger: log.Default()})
			res, err := sp.Activate(ctx)
			if err != nil {
				return err
			}
			var data []byte
			switch format {
			case "png":
				// let the fade-in transition finish
				if err := settle(ctx, 250*time.Millisecond); err != nil {
					return err
				}
				data, err = page.Screenshot(ctx)
			case "html":
				var s string
				s, err = page.HTML(ctx)
				data = []byte(s)
			case "json":
				data, err = json.MarshalIndent(report{Source: args[0], Scanned: res.Scanned, Kept: res.Kept, Images: res.Thumbnails()}, "", "  ")
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				if _, err := cmd.OutOrStdout().Write(data); err != nil {
					return err
				}
			} else {
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d images kept, wrote %s\n", res.Kept, res.Scanned, out)
			}
			if closeAfter {
				return dismiss(ctx, page, sp.Overlay())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "spot.png", "output file, - for stdout")
	cmd.Flags().StringVar(&format, "format", "png", "output format: png, html or json")
	cmd.Flags().StringVar(&remote, "chrome", "", "DevTools websocket URL of a running Chrome")
	cmd.Flags().StringVar(&waitSelector, "wait-selector", "", "CSS selector that must be visible before scanning")
	cmd.Flags().DurationVar(&wait, "wait", 0, "extra delay after load")
	cmd.Flags().DurationVar(&idle, "idle", 0, "required network idle time before scanning")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	cmd.Flags().IntVar(&minSize, "min", spot.MinSize, "minimum natural width and height in pixels")
	cmd.Flags().BoolVar(&closeAfter, "close", false, "press Escape on the page after capturing")
	return cmd
}

// dismiss presses Escape in the page and waits for the overlay to fade out
// and leave the document.
func dismiss(ctx context.Context, page *browser.Page, ov *spot.Overlay) error {
	if err := page.PressKey(ctx, spot.KeyEscape); err != nil {
		return err
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(spot.FadeDelay + 2*time.Second)
	for ov.State() != spot.Absent {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("overlay still %s after escape", ov.State())
		case <-ticker.C:
		}
	}
	log.Printf("overlay closed")
	return nil
}

// settle waits for d unless ctx ends first.
func settle(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
