package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	renderer = lipgloss.NewRenderer(os.Stderr)

	successStyle = renderer.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = renderer.NewStyle().Foreground(lipgloss.Color("1"))
	warningStyle = renderer.NewStyle().Foreground(lipgloss.Color("3"))
	stepStyle    = renderer.NewStyle().Foreground(lipgloss.Color("6"))
	boldStyle    = renderer.NewStyle().Bold(true)
	faintStyle   = renderer.NewStyle().Faint(true)
)

// domainColors keys the badge color of each conversation domain.
var domainColors = map[string]lipgloss.Color{
	"work":          "4",
	"family":        "5",
	"entertainment": "6",
	"health":        "2",
	"learning":      "3",
	"finance":       "1",
}

func colorize(style lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return style.Render(text)
}

func domainBadge(d string) string {
	label := "[" + d + "]"
	c, ok := domainColors[d]
	if !ok {
		return colorize(faintStyle, label)
	}
	return colorize(renderer.NewStyle().Foreground(c).Bold(true), label)
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(successStyle, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(errorStyle, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(warningStyle, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(boldStyle, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(stepStyle, "→ "+msg))
}
