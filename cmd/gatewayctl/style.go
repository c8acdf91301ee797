package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// colorEnabled mirrors the teacher's terminal-capability detection: skip
// ANSI styling entirely on a profile that can't render it (e.g. piped
// output, a dumb terminal) rather than emitting raw escape codes.
var colorEnabled = termenv.ColorProfile() != termenv.Ascii

func newAdaptiveStyle(light, dark string) lipgloss.Style {
	if !colorEnabled {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: light, Dark: dark})
}
