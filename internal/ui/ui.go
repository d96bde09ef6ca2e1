// package ui defines the lipgloss styles used for CLI status output
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette is a simple stylesheet built with named [lipgloss.Style] fields.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

// NewPalette builds a Palette from title, success, error, warning and help hex colors.
func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: newBold(t).MarginBottom(1),
		ok:    newBold(s),
		err:   newBold(e),
		warn:  newStyle(w),
		help:  newEm(h),
	}
}

// DefaultPalette returns the standard cadence color scheme.
func DefaultPalette() *Palette {
	return NewPalette("#7D56F4", "#1DB954", "#FF5555", "#FFA500", "#626262")
}

// Title renders s in the title style.
func (p *Palette) Title(s string) string { return p.title.Render(s) }

// OK renders s in the success style.
func (p *Palette) OK(s string) string { return p.ok.Render(s) }

// Err renders s in the error style.
func (p *Palette) Err(s string) string { return p.err.Render(s) }

// Warn renders s in the warning style.
func (p *Palette) Warn(s string) string { return p.warn.Render(s) }

// Help renders s in the help style.
func (p *Palette) Help(s string) string { return p.help.Render(s) }

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func newBold(fg string) lipgloss.Style {
	return newStyle(fg).Bold(true)
}

func newEm(fg string) lipgloss.Style {
	return newStyle(fg).Italic(true)
}
