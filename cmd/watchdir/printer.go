package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rydesun/watchdir"
)

// printerConfig mirrors the CLI's rendering flags.
type printerConfig struct {
	root         string
	noPrefix     bool
	oneline      bool
	showTime     bool
	canonicalize bool
	exclude      map[watchdir.Kind]bool
	throttle     time.Duration
}

// printer renders HighEvents to a writer, one per line, applying the
// modify-debounce window described in the package's printer/theme section.
// Debouncing is a per-path "seen recently" set with a timed eviction — the
// Go analogue of spawning a task that clears the entry after a timeout.
type printer struct {
	cfg printerConfig
	out io.Writer

	count int

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newPrinter(cfg printerConfig, out io.Writer) *printer {
	return &printer{cfg: cfg, out: out, pending: make(map[string]*time.Timer)}
}

// throttled reports whether a Modify for path arrived within the debounce
// window of a previous one, and should therefore be suppressed. The first
// Modify for a path within a window is always printed; later ones are
// swallowed until the window elapses.
func (p *printer) throttled(path string) bool {
	if p.cfg.throttle <= 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.pending[path]; seen {
		return true
	}
	p.pending[path] = time.AfterFunc(p.cfg.throttle, func() {
		p.mu.Lock()
		delete(p.pending, path)
		p.mu.Unlock()
	})
	return false
}

func (p *printer) displayPath(path string) string {
	if path == "" {
		return path
	}
	if p.cfg.canonicalize {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			path = resolved
		}
	}
	if !p.cfg.noPrefix {
		return path
	}
	if rel, err := filepath.Rel(p.cfg.root, path); err == nil {
		return rel
	}
	return path
}

// Print renders one event, or does nothing if the event's Kind is excluded
// or it is a debounced Modify repeat.
func (p *printer) Print(ev watchdir.HighEvent, at time.Time) {
	if p.cfg.exclude[ev.Kind] {
		return
	}
	if ev.Kind == watchdir.Modify && p.throttled(ev.Path) {
		return
	}

	p.count++
	t := themeFor(ev.Kind)

	var body string
	switch ev.Kind {
	case watchdir.Move:
		body = fmt.Sprintf("%s -> %s", p.displayPath(ev.OldPath), p.displayPath(ev.Path))
	default:
		body = p.displayPath(ev.Path)
	}

	var b strings.Builder
	if p.cfg.showTime {
		fmt.Fprintf(&b, "%s ", at.Local().Format("15:04:05.0000"))
	}
	if !p.cfg.noPrefix && !p.cfg.oneline {
		fmt.Fprintf(&b, "%4d ", p.count)
	}
	b.WriteString(t.color.Sprint(t.label))
	if body != "" {
		b.WriteString(" ")
		b.WriteString(body)
	}
	if ev.Type != watchdir.File && hasFileType(ev.Kind) {
		fmt.Fprintf(&b, " (%s)", ev.Type)
	}

	fmt.Fprintln(p.out, b.String())
}

func hasFileType(k watchdir.Kind) bool {
	switch k {
	case watchdir.Modify, watchdir.Overflow, watchdir.Noise, watchdir.Ignored, watchdir.Unknown,
		watchdir.MoveTop, watchdir.DeleteTop, watchdir.UnmountTop:
		return false
	default:
		return true
	}
}
