package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// ConsoleHandler writes one human-readable line per record:
//
//	2026-01-02T15:04:05Z wlanctl[123]: [info] supplicant: connected iface=wlan0
//
// The component attribute becomes the tag before the message; every other
// attribute follows as key=value, prefixed by open groups.
type ConsoleHandler struct {
	level slog.Leveler
	color bool
	out   io.Writer
	mu    *sync.Mutex

	component string
	prefix    string // open groups, "a.b."
	bound     []byte // pre-rendered WithAttrs attributes
}

var processName = struct {
	sync.RWMutex
	v string
}{v: "wlanctl"}

// SetPrefix sets the process name printed before the PID.
func SetPrefix(prefix string) {
	processName.Lock()
	processName.v = prefix
	processName.Unlock()
}

// GetPrefix returns the process name printed before the PID.
func GetPrefix() string {
	processName.RLock()
	defer processName.RUnlock()
	return processName.v
}

// NewConsoleHandler creates a handler writing to out. A nil opts logs at
// info and above.
func NewConsoleHandler(out io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	h := &ConsoleHandler{level: slog.LevelInfo, out: out, mu: &sync.Mutex{}}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

// WithColor returns a copy that colors the level tag with ANSI escapes.
func (h *ConsoleHandler) WithColor(on bool) *ConsoleHandler {
	c := *h
	c.color = on
	return &c
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}

	buf := make([]byte, 0, 256)
	buf = t.AppendFormat(buf, time.RFC3339)
	buf = append(buf, ' ')
	name := strings.ToLower(GetPrefix())
	if name == "" {
		name = "wlanctl"
	}
	buf = append(buf, name...)
	buf = append(buf, '[')
	buf = strconv.AppendInt(buf, int64(os.Getpid()), 10)
	buf = append(buf, "]: "...)
	buf = h.appendLevel(buf, r.Level)

	component := h.component
	var rest []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" && h.prefix == "" {
			component = strings.ToLower(a.Value.String())
		} else {
			rest = append(rest, a)
		}
		return true
	})
	if component != "" {
		buf = append(buf, component...)
		buf = append(buf, ": "...)
	}
	buf = append(buf, r.Message...)
	buf = append(buf, h.bound...)
	for _, a := range rest {
		buf = appendAttr(buf, h.prefix, a)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

const ansiReset = "\x1b[0m"

var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\x1b[90m",
	slog.LevelInfo:  "\x1b[36m",
	slog.LevelWarn:  "\x1b[33m",
	slog.LevelError: "\x1b[31m",
}

func (h *ConsoleHandler) appendLevel(buf []byte, level slog.Level) []byte {
	tag := "[" + strings.ToLower(level.String()) + "] "
	if c, ok := levelColors[level]; ok && h.color {
		return append(append(append(buf, c...), tag[:len(tag)-1]...), ansiReset+" "...)
	}
	return append(buf, tag...)
}

// appendAttr renders " key=value". Values with whitespace or quotes are
// quoted; groups flatten to dotted keys.
func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, p, ga)
		}
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	val := a.Value.String()
	if val == "" || strings.ContainsAny(val, " \t\n\"") {
		return strconv.AppendQuote(buf, val)
	}
	return append(buf, val...)
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.bound = append([]byte(nil), h.bound...)
	for _, a := range attrs {
		if a.Key == "component" && h.prefix == "" {
			c.component = strings.ToLower(a.Value.String())
			continue
		}
		c.bound = appendAttr(c.bound, h.prefix, a)
	}
	return &c
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
