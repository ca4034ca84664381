// Package ui renders scan progress and results for a terminal.
//
// Everything writes to an explicit io.Writer; the command layer passes
// os.Stderr for progress and os.Stdout for results.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/waftester/wpscout/pkg/defaults"
)

// ConfigureColor picks the color profile for w. Color is disabled when
// noColor is set, NO_COLOR is present, or w is not a terminal.
func ConfigureColor(w io.Writer, noColor bool) {
	if noColor || termenv.EnvNoColor() || !IsTerminal(w) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
}

const bannerArt = `
                                    __
 _      ______  ______________  __ / /_
| | /| / / __ \/ ___/ ___/ __ \/ / / __/
| |/ |/ / /_/ (__  ) /__/ /_/ / /_/ /_
|__/|__/ .___/____/\___/\____/\__,_\__/
      /_/
`

// PrintBanner writes the application banner.
func PrintBanner(w io.Writer) {
	for _, line := range strings.Split(bannerArt, "\n") {
		if line != "" {
			fmt.Fprintln(w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "          %s v%s\n", defaults.ToolNameDisplay, VersionStyle.Render(defaults.Version))
	fmt.Fprintln(w, HelpStyle.Render("  Only scan sites you own or are authorized to test."))
	fmt.Fprintln(w)
}

// Option is one line of the pre-scan configuration block.
type Option struct {
	Name  string
	Value string
}

// PrintOptions writes options in ":: Name : Value" form.
func PrintOptions(w io.Writer, opts []Option) {
	for _, o := range opts {
		fmt.Fprintf(w, " :: %s : %s\n", ConfigLabelStyle.Render(o.Name), ConfigValueStyle.Render(Sanitize(w, o.Value)))
	}
	fmt.Fprintln(w, DividerStyle.Render(strings.Repeat("_", 48)))
}

// PrintSuccess, PrintWarning and PrintError write a one-line status message.
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render(Icon(w, "✔", "[+]")), msg)
}

func PrintWarning(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", WarningStyle.Render(Icon(w, "⚠", "[!]")), msg)
}

func PrintError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render(Icon(w, "✘", "[x]")), msg)
}
