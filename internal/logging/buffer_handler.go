package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// LogCallback receives every buffered entry. main uses it to publish log
// events on the bus without an import cycle.
type LogCallback func(entry LogEntry)

var logSeq atomic.Uint64

// BufferHandler turns records into LogEntry values for the global ring
// buffer and callback. The "module" attribute becomes LogEntry.Module;
// other attributes are flattened with dotted group keys.
type BufferHandler struct {
	level slog.Leveler
	scope scope
}

func NewBufferHandler(level slog.Leveler) *BufferHandler {
	return &BufferHandler{level: level}
}

func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	mutex.RLock()
	buffer, callback := logBuffer, logCallback
	mutex.RUnlock()

	if buffer == nil && callback == nil {
		return nil
	}

	entry := LogEntry{
		Seq:        logSeq.Add(1),
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: map[string]any{},
	}
	h.scope.walk(r, func(groups []string, a slog.Attr) {
		if a.Key == "module" && len(groups) == 0 {
			entry.Module = a.Value.String()
			return
		}
		flatten(groups, a, func(groups []string, a slog.Attr) {
			entry.Attributes[joinKey(groups, a.Key, ".")] = attrValue(a.Value)
		})
	})

	if buffer != nil {
		buffer.Write(entry)
	}
	if callback != nil {
		callback(entry)
	}
	return nil
}

// attrValue converts a value to something that marshals cleanly to JSON.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferHandler{level: h.level, scope: h.scope.withAttrs(attrs)}
}

func (h *BufferHandler) WithGroup(name string) slog.Handler {
	return &BufferHandler{level: h.level, scope: h.scope.withGroup(name)}
}
