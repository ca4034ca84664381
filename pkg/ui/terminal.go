package ui

import (
	"io"
	"os"
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or fallback when w is not a
// terminal.
func Width(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}

// UnicodeCapable reports whether w can render glyphs outside Latin-1.
// Piped output, TERM=dumb and legacy Windows consoles cannot.
func UnicodeCapable(w io.Writer) bool {
	if os.Getenv("TERM") == "dumb" || !IsTerminal(w) {
		return false
	}
	if runtime.GOOS == "windows" {
		// Windows Terminal sets WT_SESSION; legacy conhost does not.
		return os.Getenv("WT_SESSION") != ""
	}
	return true
}

// Icon returns unicode when w supports it, ascii otherwise.
func Icon(w io.Writer, unicode, ascii string) string {
	if UnicodeCapable(w) {
		return unicode
	}
	return ascii
}

// Sanitize strips glyphs that w cannot render. Target sites put arbitrary
// text in titles and evidence, so everything printed from a scan passes
// through here.
func Sanitize(w io.Writer, s string) string {
	if UnicodeCapable(w) {
		return s
	}
	return asciiSafe(s)
}

func asciiSafe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			b.WriteByte('?')
		case r < 0x80:
			b.WriteByte(s[i])
		case r >= 0xFE00 && r <= 0xFE0F:
			// variation selector
		case r <= 0xFF || unicode.Is(unicode.Latin, r):
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}
