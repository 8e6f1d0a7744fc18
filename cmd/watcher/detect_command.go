package main

import (
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gamewatcher/watcher/internal/detect"
	"github.com/gamewatcher/watcher/internal/frame"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <image>",
		Short: "Run region detection on a still screenshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			img, _, err := image.Decode(f)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			corners, err := detect.NewRegistry().LoadCorners(cfg.Detect.Templates)
			if err != nil {
				return err
			}
			r, ok := detect.New(cfg.Detect, corners).Detect(frame.FromImage(img, time.Now()))
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no dialogue region")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%v\t%s\t%.2f\n", r.Rect, r.Source, r.Confidence)
			return nil
		},
	}
}
