package logger

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
)

// moduleRoot is the import path prefix stripped when deriving module names.
const moduleRoot = "github.com/VietHungUET/SightTech/"

// ContextHandler is a slog.Handler that automatically extracts logging fields
// from context and adds them to log records. It wraps an inner handler and
// delegates all actual logging to it after enriching records with context data.
type ContextHandler struct {
	inner        slog.Handler
	commonFields []slog.Attr
}

// ModuleHandler extends ContextHandler with per-module log level filtering.
// It determines the module name from the call stack and applies the appropriate
// log level from the module configuration.
type ModuleHandler struct {
	ContextHandler
	moduleConfig *ModuleConfig
}

// NewContextHandler creates a new ContextHandler wrapping the given handler.
// The commonFields are added to every log record.
func NewContextHandler(inner slog.Handler, commonFields ...slog.Attr) *ContextHandler {
	return &ContextHandler{
		inner:        inner,
		commonFields: commonFields,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enriches the record with common and context fields and delegates
// to the inner handler.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, h.enrich(ctx, r))
}

// enrich copies r with common fields first, then the extra attributes, then
// context fields, then the record's own attributes, so later ones win.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) enrich(ctx context.Context, r slog.Record, extra ...slog.Attr) slog.Record {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	out.AddAttrs(h.commonFields...)
	out.AddAttrs(extra...)
	if ctx != nil {
		for _, key := range allContextKeys {
			if s, ok := ctx.Value(key).(string); ok && s != "" {
				out.AddAttrs(slog.String(string(key), s))
			}
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(a)
		return true
	})
	return out
}

// WithAttrs returns a new handler with the given attributes added.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewContextHandler(h.inner.WithAttrs(attrs), h.commonFields...)
}

// WithGroup returns a new handler with the given group name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return NewContextHandler(h.inner.WithGroup(name), h.commonFields...)
}

// Unwrap returns the inner handler.
func (h *ContextHandler) Unwrap() slog.Handler {
	return h.inner
}

var _ slog.Handler = (*ContextHandler)(nil)

// NewModuleHandler creates a new ModuleHandler with per-module log level filtering.
func NewModuleHandler(inner slog.Handler, moduleConfig *ModuleConfig, commonFields ...slog.Attr) *ModuleHandler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{
			inner:        inner,
			commonFields: commonFields,
		},
		moduleConfig: moduleConfig,
	}
}

// Enabled reports whether the calling module logs at the given level.
func (h *ModuleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.moduleConfig.LevelFor(getCallerModule())
}

// Handle drops records below the calling module's level and tags the rest
// with the module name.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ModuleHandler) Handle(ctx context.Context, r slog.Record) error {
	module := getCallerModuleFromPC(r.PC)
	if module == "" || strings.HasPrefix(module, "logger") {
		module = getCallerModule()
	}
	if r.Level < h.moduleConfig.LevelFor(module) {
		return nil
	}
	var extra []slog.Attr
	if module != "" {
		extra = append(extra, slog.String("logger", module))
	}
	return h.inner.Handle(ctx, h.enrich(ctx, r, extra...))
}

// WithAttrs returns a new handler with the given attributes added.
func (h *ModuleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewModuleHandler(h.inner.WithAttrs(attrs), h.moduleConfig, h.commonFields...)
}

// WithGroup returns a new handler with the given group name.
func (h *ModuleHandler) WithGroup(name string) slog.Handler {
	return NewModuleHandler(h.inner.WithGroup(name), h.moduleConfig, h.commonFields...)
}

var _ slog.Handler = (*ModuleHandler)(nil)

// getCallerModule returns the module name of the first stack frame inside
// this repository but outside the logger package.
func getCallerModule() string {
	const maxDepth = 16
	var pcs [maxDepth]uintptr
	//nolint:mnd // skip runtime.Callers and getCallerModule
	n := runtime.Callers(2, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		module := extractModuleFromFunction(frame.Function)
		if module != "" && !strings.HasPrefix(module, "logger") {
			return module
		}
		if !more {
			break
		}
	}
	return ""
}

// getCallerModuleFromPC extracts the module name from a program counter.
func getCallerModuleFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return extractModuleFromFunction(frame.Function)
}

// extractModuleFromFunction converts a fully qualified function name into a
// dotted module name. For example,
// "github.com/VietHungUET/SightTech/metrics/prometheus.(*MetricsListener).Handle"
// becomes "metrics.prometheus".
func extractModuleFromFunction(fn string) string {
	if fn == "" {
		return ""
	}

	idx := strings.Index(fn, moduleRoot)
	if idx == -1 {
		return ""
	}
	path := fn[idx+len(moduleRoot):]

	if parenIdx := strings.Index(path, "("); parenIdx != -1 {
		path = path[:parenIdx]
	}
	// The package name ends at the first dot after the last slash.
	slash := strings.LastIndex(path, "/")
	if dotIdx := strings.Index(path[slash+1:], "."); dotIdx != -1 {
		path = path[:slash+1+dotIdx]
	}

	return strings.ReplaceAll(path, "/", ".")
}
