// Package logging wires up the structured, leveled console logger shared by
// every binary in this repository. It is the direct descendant of the
// reference TNC's bespoke colorized console logger (its "text_color" family)
// generalized onto charmbracelet/log.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Options configures the shared logger.
type Options struct {
	Level log.Level
	// TimestampFormat is a strftime(3) pattern; empty uses Go's time.Kitchen
	// layout.
	TimestampFormat string
	Output          io.Writer
}

// New builds a component-scoped logger. component is attached as a
// "component" field on every line, mirroring the per-subsystem prefixes the
// reference TNC's console output used (e.g. "ADEVICE0: ...").
func New(component string, opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      resolveTimeFormat(opts.TimestampFormat),
	})
	l.SetLevel(opts.Level)

	return l.With("component", component)
}

// resolveTimeFormat translates a strftime(3) pattern into the Go reference-time
// layout charmbracelet/log expects, by formatting Go's reference instant
// through strftime once and handing the result back as a layout string —
// the reference TNC's configurable "-T" transmit-timestamp option performs
// the same strftime formatting, just against on-air text instead of log
// lines.
func resolveTimeFormat(pattern string) string {
	if pattern == "" {
		return time.Kitchen
	}
	ref := time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC)
	rendered, err := strftime.Format(pattern, ref)
	if err != nil {
		return time.Kitchen
	}
	return rendered
}

// FormatTimestamp renders t using a strftime(3) pattern, used by the
// supervisor's periodic stats report.
func FormatTimestamp(pattern string, t time.Time) string {
	rendered, err := strftime.Format(pattern, t)
	if err != nil {
		return t.Format(time.RFC3339)
	}
	return rendered
}
