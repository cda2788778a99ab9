package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent  = 74  // blue
	colorGood    = 71  // green
	colorBad     = 167 // red
	colorMuted   = 245 // medium gray
	colorCommand = 250 // light gray
)

var noColor bool

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorAccent, s)
}

// RenderGood returns s in green, used for passing runs and allowed gates.
func RenderGood(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorGood, s)
}

// RenderBad returns s in red, used for failed runs and denied gates.
func RenderBad(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorBad, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorMuted, s)
}

// RenderCommand returns s in the command (light gray) color.
func RenderCommand(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorCommand, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
