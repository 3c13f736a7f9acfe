package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"camtrap/internal/capture"
	"camtrap/internal/motion"
	"camtrap/internal/trigger"
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
	statusLabelWidth = 20
	statusIndent     = "  "
)

func titleCase(value string) string {
	return cases.Title(language.English).String(value)
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

func detectionLines(snap *motion.Snapshot, colorize bool) []string {
	if snap == nil {
		return []string{renderStatusLine("Analysis", statusWarn, "detector not reported", colorize)}
	}
	lines := make([]string, 0, 5)
	if snap.Running {
		lines = append(lines, renderStatusLine("Analysis", statusOK, fmt.Sprintf("running at %d fps", snap.FPS), colorize))
	} else {
		lines = append(lines, renderStatusLine("Analysis", statusError, "stopped", colorize))
	}
	lines = append(lines, renderStatusLine("Trigger", triggerKind(snap.Trigger.State), titleCase(snap.Trigger.State.String()), colorize))
	lines = append(lines, renderStatusLine("Status", statusInfo, snap.Status.Line(), colorize))
	lines = append(lines, renderStatusLine("Region", statusInfo,
		fmt.Sprintf("center (%d, %d), side %d", snap.Region.CenterX, snap.Region.CenterY, snap.Region.Side), colorize))
	if !snap.Trigger.LastTrigger.IsZero() {
		lines = append(lines, renderStatusLine("Last trigger", statusInfo, snap.Trigger.LastTrigger.Local().Format(time.DateTime), colorize))
	}
	return lines
}

func triggerKind(state trigger.State) statusKind {
	switch state {
	case trigger.Cooldown:
		return statusWarn
	case trigger.Armed:
		return statusOK
	default:
		return statusInfo
	}
}

func deviceLines(st *capture.Status, colorize bool) []string {
	if st == nil {
		return []string{renderStatusLine("Camera", statusWarn, "device not reported", colorize)}
	}
	lines := make([]string, 0, 4)
	switch {
	case st.Closed:
		lines = append(lines, renderStatusLine("Camera", statusError, "released", colorize))
	case st.HandleOpen:
		lines = append(lines, renderStatusLine("Camera", statusOK, "connected", colorize))
	default:
		lines = append(lines, renderStatusLine("Camera", statusWarn, "not initialized", colorize))
	}
	lines = append(lines, renderStatusLine("Queue", statusInfo,
		fmt.Sprintf("%d queued, %d pending", st.Queued, st.Pending), colorize))
	if st.LastPath != "" {
		lines = append(lines, renderStatusLine("Last photo", statusInfo, st.LastPath, colorize))
	}
	if st.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, st.LastError, colorize))
	}
	return lines
}

func deviceCounterRows(st *capture.Status) [][]string {
	if st == nil {
		return nil
	}
	return [][]string{
		{"Captures", strconv.FormatUint(st.Captures, 10)},
		{"Downloads", strconv.FormatUint(st.Downloads, 10)},
		{"Recoveries", strconv.FormatUint(st.Recoveries, 10)},
		{"Dropped", strconv.FormatUint(st.Dropped, 10)},
		{"Discarded", strconv.FormatUint(st.Discarded, 10)},
	}
}
