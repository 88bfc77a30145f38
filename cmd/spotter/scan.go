package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"spotter/spot"
)

type report struct {
	Source  string           `json:"source"`
	Scanned int              `json:"scanned"`
	Kept    int              `json:"kept"`
	Images  []spot.Thumbnail `json:"images"`
}

func newScanCmd() *cobra.Command {
	var (
		base    string
		minSize int
		height  int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "scan [file]",
		Short: "Inject the overlay into a saved HTML page",
		Long: `Scan parses an HTML document (a file or stdin), injects the image overlay
and prints the resulting document. Image sizes come from inline data: URIs or
from width/height attributes; nothing is downloaded.`,
		Example: `  spotter scan page.html --base https://example.com/articles/
  curl -s https://example.com | spotter scan --json --base https://example.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			source := "stdin"
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
				source = args[0]
			}
			doc, err := spot.ParseHTML(in, base)
			if err != nil {
				return err
			}
			doc.SetMetrics(spot.Metrics{ClientHeight: height})
			sp := spot.New(doc, &spot.Options{MinSize: minSize, Logger: log.Default()})
			res, err := sp.Activate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report{Source: source, Scanned: res.Scanned, Kept: res.Kept, Images: res.Thumbnails()})
			}
			_, err = fmt.Fprintln(out, doc.HTML())
			return err
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "base URL for resolving relative image sources")
	cmd.Flags().IntVar(&minSize, "min", spot.MinSize, "minimum natural width and height in pixels")
	cmd.Flags().IntVar(&height, "height", spot.DefaultMetrics.ClientHeight, "viewport height used for the overlay")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print a JSON summary instead of the document")
	return cmd
}
