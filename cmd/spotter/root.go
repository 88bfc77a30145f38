package main

import (
	"io"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "spotter",
		Short: "Find the large images of a web page",
		Long: `Spotter overlays a page with a thumbnail grid of its images that are at
least 100x100 pixels, linking each thumbnail to the original for download.

It works on saved HTML files (scan) or on live pages through headless Chrome (shot).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional
			_ = godotenv.Load()
			if !verbose {
				log.SetOutput(io.Discard)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log overlay and browser events to stderr")
	cmd.AddCommand(newScanCmd(), newShotCmd())
	return cmd
}
