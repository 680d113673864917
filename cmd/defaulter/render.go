package main

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"defaulter/internal/selection"
	"defaulter/internal/update"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var titleCaser = cases.Title(language.English)

// titleLabel turns identifiers such as "dry_run" into "Dry Run".
func titleLabel(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return "-"
	}
	return titleCaser.String(value)
}

func statusColor(status string) string {
	switch status {
	case string(update.StatusSuccess), "completed":
		return ansiGreen
	case string(update.StatusSkipped), string(update.StatusDryRun), "aborted":
		return ansiYellow
	case string(update.StatusError), "failed":
		return ansiRed
	case "running":
		return ansiBlue
	default:
		return ""
	}
}

// statusLabel title-cases a status and colours it for terminals.
func statusLabel(status string, colorize bool) string {
	label := titleLabel(status)
	if !colorize {
		return label
	}
	if color := statusColor(status); color != "" {
		return color + label + ansiReset
	}
	return label
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatSelection(sel *selection.Selection) string {
	if sel == nil {
		return "unchanged"
	}
	if sel.ID == 0 {
		return selection.DisabledLabel
	}
	return sel.Label + " (id=" + strconv.FormatInt(sel.ID, 10) + ")"
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
