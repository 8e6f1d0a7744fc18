package main

import (
	"github.com/spf13/cobra"

	"github.com/gamewatcher/watcher/internal/screen"
)

// targetFlags selects the window to watch.
type targetFlags struct {
	hwnd  uint64
	title string
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&t.hwnd, "hwnd", 0, "Window handle (display index outside Windows)")
	cmd.Flags().StringVar(&t.title, "title", "", "Window title to look up (Windows only)")
}

// resolve prefers --title, then the configured title, then --hwnd.
func (t *targetFlags) resolve(configured string) (screen.Handle, error) {
	title := t.title
	if title == "" {
		title = configured
	}
	if title != "" && t.hwnd == 0 {
		return screen.FindWindow(title)
	}
	return screen.Handle(t.hwnd), nil
}
