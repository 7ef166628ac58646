package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiCyan   = "\x1b[36m"
)

// prettyField renders a well-known attribute: an optional display name and the
// ANSI code chosen for its value ("" leaves the value uncolored).
type prettyField struct {
	name  string
	color func(v slog.Value) (text, code string)
}

var prettyFields = map[string]prettyField{
	"method": {color: func(v slog.Value) (string, string) {
		m := strings.ToUpper(v.String())
		if m == "GET" {
			return m, ansiGreen
		}
		return m, ansiYellow
	}},
	"path":         {color: fixedCode(ansiCyan)},
	"status":       {color: statusCode},
	"status_class": {name: "class", color: fixedCode(ansiDim)},
	"duration_ms": {name: "duration", color: func(v slog.Value) (string, string) {
		if v.Kind() != slog.KindInt64 {
			return v.String(), ""
		}
		ms := v.Int64()
		text := strconv.FormatInt(ms, 10) + "ms"
		switch {
		case ms >= 1000:
			return text, ansiRed
		case ms >= 250:
			return text, ansiYellow
		}
		return text, ansiDim
	}},
	"result":       {color: outcomeCode},
	"outcome":      {color: outcomeCode},
	"alert":        {color: fixedCode(ansiRed)},
	"request_id":   {color: fixedCode(ansiDim)},
	"principal_id": {color: fixedCode(ansiDim)},
	"job_id":       {color: fixedCode(ansiDim)},
}

func fixedCode(code string) func(slog.Value) (string, string) {
	return func(v slog.Value) (string, string) { return v.String(), code }
}

func statusCode(v slog.Value) (string, string) {
	if v.Kind() != slog.KindInt64 {
		return v.String(), ""
	}
	n := v.Int64()
	text := strconv.FormatInt(n, 10)
	switch {
	case n >= 500:
		return text, ansiRed
	case n >= 400:
		return text, ansiYellow
	}
	return text, ansiGreen
}

func outcomeCode(v slog.Value) (string, string) {
	s := v.String()
	switch s {
	case "ok", "success", "redirect":
		return s, ansiGreen
	case "server_error", "unavailable", "malformed_hash", "hasher_init", "error":
		return s, ansiRed
	}
	return s, ansiYellow
}

// prettyHandler writes one "ts= lvl= msg= key=value..." line per record for
// local development. Attributes added through WithAttrs are rendered once.
type prettyHandler struct {
	w         io.Writer
	level     slog.Leveler
	addSource bool
	color     bool

	prefix string // group path, "a.b."
	pre    string // rendered WithAttrs attributes
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, level: slog.LevelInfo, color: color, mu: &sync.Mutex{}}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString("ts=" + h.paint(ts.Format("15:04:05.000"), ansiDim))
	b.WriteString(" lvl=" + h.levelTag(r.Level))
	b.WriteString(" msg=" + h.paint(r.Message, ansiBold))

	if h.addSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			b.WriteString(" src=" + h.paint(fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line), ansiDim))
		}
	}

	b.WriteString(h.pre)
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.pre)
	for _, a := range attrs {
		h.writeAttr(&b, h.prefix, a)
	}
	cp := *h
	cp.pre = b.String()
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

func (h *prettyHandler) writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Key == "" && a.Value.Kind() != slog.KindGroup {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.writeAttr(b, prefix, ga)
		}
		return
	}

	key, text := prefix+a.Key, ""
	if f, ok := prettyFields[key]; ok {
		if f.name != "" {
			key = f.name
		}
		var code string
		text, code = f.color(a.Value)
		text = h.paint(text, code)
	} else {
		text = quoteIfNeeded(valueText(a.Value))
	}
	b.WriteString(" " + key + "=" + text)
}

func (h *prettyHandler) levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return h.paint("[ERROR]", ansiRed)
	case l >= slog.LevelWarn:
		return h.paint("[WARN]", ansiYellow)
	case l < slog.LevelInfo:
		return h.paint("[DEBUG]", ansiDim)
	}
	return h.paint("[INFO]", ansiBlue)
}

func (h *prettyHandler) paint(s, code string) string {
	if !h.color || code == "" {
		return s
	}
	return code + s + ansiReset
}

func valueText(v slog.Value) string {
	if v.Kind() == slog.KindTime {
		return v.Time().Format(time.RFC3339)
	}
	return v.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
