package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Sky blue palette shared by all commands.
var (
	skyBlue      = lipgloss.Color("#87CEEB")
	lightSkyBlue = lipgloss.Color("#B0E0E6")
	darkSkyBlue  = lipgloss.Color("#4A90D9")
	white        = lipgloss.Color("#FFFFFF")
	lightGray    = lipgloss.Color("#B0B0B0")
	successColor = lipgloss.Color("#00FF88")
	warningColor = lipgloss.Color("#FFD700")
	errorColor   = lipgloss.Color("#FF6B6B")
)

// theme holds the styles used for terminal output. The zero theme renders
// plain text.
type theme struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
}

func newTheme(styled bool) theme {
	if !styled {
		plain := lipgloss.NewStyle()
		return theme{
			Title: plain, Label: plain, Value: plain, Success: plain,
			Warning: plain, Error: plain, Dim: plain,
		}
	}

	return theme{
		Title: lipgloss.NewStyle().
			Foreground(white).
			Background(darkSkyBlue).
			Bold(true).
			Padding(0, 2),
		Label: lipgloss.NewStyle().
			Foreground(lightSkyBlue),
		Value: lipgloss.NewStyle().
			Foreground(white).
			Bold(true),
		Success: lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true),
		Warning: lipgloss.NewStyle().
			Foreground(warningColor),
		Error: lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true),
		Dim: lipgloss.NewStyle().
			Foreground(lightGray),
	}
}

// terminalTheme styles output only when f is a terminal and NO_COLOR is unset.
func terminalTheme(f *os.File) theme {
	_, noColor := os.LookupEnv("NO_COLOR")
	return newTheme(!noColor && term.IsTerminal(int(f.Fd())))
}

// themeFor picks the theme for output written to w.
func themeFor(w io.Writer) theme {
	if f, ok := w.(*os.File); ok {
		return terminalTheme(f)
	}
	return newTheme(false)
}

// divider renders a horizontal divider.
func (t theme) divider(width int) string {
	return t.Dim.Render(strings.Repeat("─", width))
}

// row renders a label/value pair with the label padded to width.
func (t theme) row(label string, width int, value string) string {
	return t.Label.Render(padRight(label, width)) + " " + value
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
