// Package testlog provides a slog.Handler recording what tests log, so that
// assertions can be made on it without timestamps getting in the way.
package testlog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/spineio/spineweb.go/pkg/logger"
)

// Entry is one recorded log call. Grouped attribute keys are joined with
// dots.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

func (e Entry) String() string {
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", e.Level, e.Message)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}

type record struct {
	mu      sync.Mutex
	entries []Entry
}

// Handler records entries at or above its level. Handlers derived with
// WithAttrs and WithGroup share the record of their parent.
type Handler struct {
	rec    *record
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

var _ slog.Handler = (*Handler)(nil)

// New returns a Handler recording every level.
func New() *Handler {
	return &Handler{rec: &record{}, level: slog.LevelDebug}
}

// WithLevel returns a Handler sharing the record of h which ignores entries
// below level.
func (h *Handler) WithLevel(level slog.Level) *Handler {
	c := *h
	c.level = level
	return &c
}

// Logger wraps h for the packages taking a logger.Logger.
func (h *Handler) Logger() logger.Logger {
	return logger.New(h)
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

//nolint:gocritic
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{Level: r.Level, Message: r.Message, Attrs: make(map[string]any)}
	for _, a := range h.attrs {
		flatten(e.Attrs, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(e.Attrs, h.prefix, a)
		return true
	})

	h.rec.mu.Lock()
	h.rec.entries = append(h.rec.entries, e)
	h.rec.mu.Unlock()
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], prefixed(h.prefix, attrs)...)
	return &c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// Entries returns a copy of what was recorded so far.
func (h *Handler) Entries() []Entry {
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	return append([]Entry(nil), h.rec.entries...)
}

// Find returns the first entry at level whose message starts with msg.
func (h *Handler) Find(level slog.Level, msg string) (Entry, bool) {
	for _, e := range h.Entries() {
		if e.Level == level && strings.HasPrefix(e.Message, msg) {
			return e, true
		}
	}
	return Entry{}, false
}

func prefixed(prefix string, attrs []slog.Attr) []slog.Attr {
	if prefix == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return out
}

func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			flatten(dst, prefix+a.Key+".", ga)
		}
		return
	}
	dst[prefix+a.Key] = v.Any()
}
