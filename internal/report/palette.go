package report

import (
	"os"

	"github.com/mattn/go-isatty"

	"github.com/cropdx/leafscan/internal/preferences"
)

// Palette holds ANSI sequences for the two status colours and emphasis.
// The zero Palette renders plain text.
type Palette struct {
	Healthy  string
	Affected string
	Accent   string
	Dim      string
	Reset    string
}

const ansiReset = "\x1b[0m"

// PaletteFor returns colours suited to the terminal theme. color false
// returns the plain palette.
func PaletteFor(theme preferences.Theme, color bool) Palette {
	if !color {
		return Palette{}
	}
	if theme == preferences.ThemeLight {
		return Palette{
			Healthy:  "\x1b[32m",
			Affected: "\x1b[31m",
			Accent:   "\x1b[1;34m",
			Dim:      "\x1b[90m",
			Reset:    ansiReset,
		}
	}
	return Palette{
		Healthy:  "\x1b[92m",
		Affected: "\x1b[91m",
		Accent:   "\x1b[1;96m",
		Dim:      "\x1b[37m",
		Reset:    ansiReset,
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p Palette) paint(code, s string) string {
	if code == "" {
		return s
	}
	return code + s + p.Reset
}

func (p Palette) status(healthy bool, s string) string {
	if healthy {
		return p.paint(p.Healthy, s)
	}
	return p.paint(p.Affected, s)
}
