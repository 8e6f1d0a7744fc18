package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gamewatcher/watcher/internal/screen"
)

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var target targetFlags

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show window placement and the capture backend order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			h, err := target.resolve(cfg.WindowTitle)
			if err != nil {
				return err
			}
			return classify(cmd, screen.NewPlatform().Locator, cfg.Screen, h)
		},
	}
	target.register(cmd)
	return cmd
}

func classify(cmd *cobra.Command, loc screen.Locator, cfg screen.Config, h screen.Handle) error {
	window, err := loc.WindowRect(h)
	if err != nil {
		return err
	}
	monitor, err := loc.MonitorRect(h)
	if err != nil {
		return err
	}
	p := screen.Classify(window, monitor, cfg)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "window\t%v\nmonitor\t%v\nplacement\t%s\norder\t%v\n", window, monitor, p, screen.Order(p))
	return nil
}
