package logging

import (
	"log/slog"
	"slices"
	"strings"
)

// scope is the attribute and group state shared by the custom handlers.
type scope struct {
	attrs  []slog.Attr
	groups []string
}

func (s scope) withAttrs(attrs []slog.Attr) scope {
	s.attrs = append(slices.Clip(s.attrs), attrs...)
	return s
}

func (s scope) withGroup(name string) scope {
	if name != "" {
		s.groups = append(slices.Clip(s.groups), name)
	}
	return s
}

// walk visits the handler's attributes and then the record's, skipping
// empty ones.
func (s scope) walk(r slog.Record, fn func(groups []string, a slog.Attr)) {
	for _, a := range s.attrs {
		if !a.Equal(slog.Attr{}) {
			fn(s.groups, a)
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		if !a.Equal(slog.Attr{}) {
			fn(s.groups, a)
		}
		return true
	})
}

// flatten calls fn for every leaf of a, expanding groups into the prefix.
func flatten(groups []string, a slog.Attr, fn func(groups []string, a slog.Attr)) {
	if a.Value.Kind() == slog.KindGroup {
		inner := append(slices.Clip(groups), a.Key)
		for _, ga := range a.Value.Group() {
			flatten(inner, ga, fn)
		}
		return
	}
	fn(groups, a)
}

func joinKey(groups []string, key, sep string) string {
	if len(groups) == 0 {
		return key
	}
	return strings.Join(groups, sep) + sep + key
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
