package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gamewatcher/watcher/internal/dedup"
)

func newNormalizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <text>...",
		Short: "Run the OCR filter, fix rules and normalization on text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			raw := strings.Join(args, " ")
			text, err := dedup.Clean(raw, cfg.Dedup)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "garbage\t%v\n", err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", dedup.StableID(text), text)
			return nil
		},
	}
}
