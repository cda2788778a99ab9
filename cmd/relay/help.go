package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/groblegark/relay/internal/ui"
	"github.com/spf13/cobra"
)

// helpStyleRules colorize pieces of Cobra's plain-text help output. Rules
// apply in order, each rewriting the matches of its pattern.
var helpStyleRules = []struct {
	re    *regexp.Regexp
	apply func(groups []string) string
}{
	{
		// Section headers such as "Pipeline:" or "Flags:".
		re:    regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`),
		apply: func(g []string) string { return ui.RenderAccent(strings.TrimSpace(g[1])) },
	},
	{
		// Command names in the two-space-indented command list.
		re:    regexp.MustCompile(`(?m)^(  )(\S+)(  )`),
		apply: func(g []string) string { return g[1] + ui.RenderCommand(g[2]) + g[3] },
	},
	{
		// Flag value types, e.g. "--sha string" or "--interval duration".
		re:    regexp.MustCompile(`(--?\S+\s+)(string|int|duration)`),
		apply: func(g []string) string { return g[1] + ui.RenderMuted(g[2]) },
	},
	{
		// Quoted defaults, e.g. (default "main"). Only the quoted form, so
		// [command] and [flags] stay untouched.
		re:    regexp.MustCompile(`\(default "[^"]*"\)`),
		apply: func(g []string) string { return ui.RenderMuted(g[0]) },
	},
}

// colorizedHelpFunc returns a Cobra help function that post-processes the
// default help text with ANSI colors when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		orig := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			cmd.SetOut(orig)
			_ = cmd.Usage()
			return
		}

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)

		fmt.Fprint(orig, colorizeHelpOutput(buf.String()))
	}
}

// colorizeHelpOutput applies the style rules to Cobra's plain-text help.
func colorizeHelpOutput(s string) string {
	for _, rule := range helpStyleRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			return rule.apply(rule.re.FindStringSubmatch(match))
		})
	}
	return s
}
