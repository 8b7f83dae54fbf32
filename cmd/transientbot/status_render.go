package main

import (
	"fmt"
	"strings"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

const statusLabelWidth = 18

var statusStyles = map[statusKind]struct {
	marker string
	color  string
}{
	statusInfo:  {"-", ansiCyan},
	statusOK:    {"ok", ansiGreen},
	statusWarn:  {"warn", ansiYellow},
	statusError: {"error", ansiRed},
}

// renderStatusLine formats "  label:  [marker] message", coloring the marker
// on terminals.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	marker := fmt.Sprintf("[%s]", style.marker)
	if colorize {
		marker = style.color + marker + ansiReset
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", marker)
	if message != "" {
		line += " " + message
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	title = strings.ToUpper(strings.TrimSpace(title))
	if colorize {
		title = ansiCyan + title + ansiReset
	}
	return []string{title}
}
