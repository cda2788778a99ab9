package ui

import (
	"os"

	"golang.org/x/term"
)

// ShouldUseColor reports whether output to stdout should use ANSI colors.
// The NO_COLOR and CLICOLOR conventions are honored before TTY detection.
func ShouldUseColor() bool {
	switch {
	case os.Getenv("NO_COLOR") != "": // no-color.org: any non-empty value disables
		return false
	case os.Getenv("CLICOLOR_FORCE") == "1":
		return true
	case os.Getenv("CLICOLOR") == "0":
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
