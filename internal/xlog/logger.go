// Package xlog provides the small, prefix-based logger used by the CLI and
// by the watchdir package's own warning callbacks. It follows
// mutagen-io/mutagen's pkg/logging: a Logger that still works if nil (it
// just discards), built on the standard log package so it respects whatever
// flags the host process has set on it.
package xlog

import (
	"fmt"
	"log"

	"github.com/fatih/color"
)

// DebugEnabled gates Debug/Debugf output process-wide. The CLI's --debug
// flag sets this before opening the watcher.
var DebugEnabled bool

// Logger prefixes every line it emits with a dotted name built up through
// Sublogger. A nil *Logger is valid and logs nothing.
type Logger struct {
	prefix string
}

// Root is the logger every other logger in this program descends from.
var Root = &Logger{}

// Sublogger returns a new logger whose prefix is this logger's prefix plus
// name, joined with a dot.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix}
}

func (l *Logger) output(line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	log.Output(3, line)
}

// Warnf logs a warning in yellow. Its signature matches the warn callback
// watchdir.Option/installer expect, so a Logger can be passed directly.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.output(color.YellowString("warning: "+format, args...))
}

// Errorf logs a fatal-looking error in red.
func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.output(color.RedString("error: "+format, args...))
}

// Debugf logs only when DebugEnabled is set.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !DebugEnabled {
		return
	}
	l.output(fmt.Sprintf(format, args...))
}

// Printf logs unconditionally, uncolored.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.output(fmt.Sprintf(format, args...))
}
