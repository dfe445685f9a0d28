package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the redline banner followed by a one-line subtitle.
func PrintBanner(w io.Writer, subtitle string) {
	p := termenv.EnvColorProfile()
	lines := []struct{ text, color string }{
		{"               _ _ _            ", "#fca5a5"},
		{"  _ __ ___  __| | (_)_ __   ___ ", "#f87171"},
		{" | '__/ _ \\/ _` | | | '_ \\ / _ \\", "#ef4444"},
		{" | | |  __/ (_| | | | | | |  __/", "#dc2626"},
		{" |_|  \\___|\\__,_|_|_|_| |_|\\___|", "#b91c1c"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if subtitle != "" {
		fmt.Fprintln(w, termenv.String(" "+subtitle).Faint())
	}
	fmt.Fprintln(w)
}
