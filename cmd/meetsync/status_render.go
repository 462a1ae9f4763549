package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"meetsync/internal/api"
	"meetsync/internal/daemonctl"
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
	statusLabelWidth = 16
	statusIndent     = "  "
)

func renderStatus(w io.Writer, snap *daemonctl.Snapshot, colorize bool) {
	writeSection(w, "System Status", snap.SystemChecks, colorize)
	fmt.Fprintln(w)
	writeSection(w, "Paths", snap.Paths, colorize)
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Pipeline", colorize) {
		fmt.Fprintln(w, line)
	}
	if snap.Running && snap.Workflow.LastFile != "" {
		fmt.Fprintln(w, renderStatusLine("Last file", statusInfo, snap.Workflow.LastFile, colorize))
	}
	if snap.Workflow.LastError != "" {
		fmt.Fprintln(w, renderStatusLine("Last error", statusError, snap.Workflow.LastError, colorize))
	}
	rows := buildCountRows(snap.Workflow)
	if len(rows) == 0 {
		fmt.Fprintln(w, "Nothing recorded yet")
		return
	}
	fmt.Fprint(w, renderTable([]string{"Kind", "State", "Count"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
	fmt.Fprintln(w)
}

func writeSection(w io.Writer, title string, lines []api.StatusLine, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(w, line)
	}
	for _, line := range lines {
		fmt.Fprintln(w, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
}

func buildCountRows(status api.WorkflowStatus) [][]string {
	var rows [][]string
	for _, group := range []struct {
		kind   string
		counts map[string]int
	}{
		{kind: "Recordings", counts: status.Assets},
		{kind: "Jobs", counts: status.Jobs},
		{kind: "Log entries", counts: status.LogEntries},
		{kind: "Offline", counts: status.Offline},
	} {
		for _, key := range api.SortedKeys(group.counts) {
			if group.counts[key] == 0 {
				continue
			}
			rows = append(rows, []string{group.kind, formatStatusLabel(key), fmt.Sprintf("%d", group.counts[key])})
		}
	}
	if status.OpenSessions > 0 {
		rows = append(rows, []string{"Sessions", "Open", fmt.Sprintf("%d", status.OpenSessions)})
	}
	return rows
}

func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "ok":
		return statusOK
	case "warn", "warning":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

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

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// formatStatusLabel turns "awaiting_speaker_review" into "Awaiting Speaker Review".
func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}
