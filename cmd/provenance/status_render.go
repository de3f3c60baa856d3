package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"provenance/internal/api"
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
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	var down []string
	for _, dep := range deps {
		label := dep.Name
		if dep.Backend != "" {
			label = fmt.Sprintf("%s (%s)", dep.Name, dep.Backend)
		}
		if dep.Available {
			lines = append(lines, renderStatusLine(label, statusOK, fmt.Sprintf("Ready in %dms", dep.LatencyMS), colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not reachable"
		}
		lines = append(lines, renderStatusLine(label, statusError, detail, colorize))
		down = append(down, dep.Name)
	}
	if len(down) > 0 {
		lines = append(lines, renderStatusLine("Unavailable", statusWarn, strings.Join(down, ", ")+" (registrations will fail until reachable)", colorize))
	}
	return lines
}

// verdictLabel renders the authenticity verdict, green when authentic and red
// otherwise.
func verdictLabel(rec api.Record, colorize bool) string {
	label := "not authentic"
	color := ansiRed
	if rec.IsAuthentic {
		label = "authentic"
		color = ansiGreen
	}
	text := fmt.Sprintf("%.2f (%s)", rec.AuthenticityScore, label)
	if colorize {
		return color + text + ansiReset
	}
	return text
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
