package logbuf

import (
	"context"
	"log/slog"
)

type turnKey struct{}

// WithTurn returns a context carrying the id of the turn being handled.
// Records logged with that context are tagged turn_id.
func WithTurn(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnKey{}, id)
}

// TurnID returns the turn id stored by WithTurn.
func TurnID(ctx context.Context) string {
	id, _ := ctx.Value(turnKey{}).(string)
	return id
}

// Handler is an slog.Handler that captures entries into a Buffer
// and delegates to an inner handler.
type Handler struct {
	inner  slog.Handler
	buf    *Buffer
	min    slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewHandler creates a handler that writes to both buf and inner.
// The buffer captures records at min and above regardless of the inner
// handler's level.
func NewHandler(inner slog.Handler, buf *Buffer, min slog.Level) *Handler {
	return &Handler{inner: inner, buf: buf, min: min}
}

func (h *Handler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.min || h.inner.Enabled(ctx, l)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	turn := TurnID(ctx)
	if turn != "" {
		r = r.Clone()
		r.AddAttrs(slog.String("turn_id", turn))
	}

	if r.Level >= h.min {
		h.capture(r, turn)
	}

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) capture(r slog.Record, turn string) {
	attrs := make(map[string]any)
	for _, a := range h.attrs {
		attrs[h.key(a.Key)] = resolveAttrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "turn_id" {
			attrs[h.key(a.Key)] = resolveAttrValue(a.Value)
		}
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	h.buf.Write(Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		TurnID:  turn,
		Attrs:   attrs,
	})
}

func (h *Handler) key(k string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		k = h.groups[i] + "." + k
	}
	return k
}

// resolveAttrValue converts slog values to JSON-safe types.
// Errors become their message so they don't marshal to {}.
func resolveAttrValue(v slog.Value) any {
	v = v.Resolve()
	if v.Kind() == slog.KindGroup {
		group := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			group[a.Key] = resolveAttrValue(a.Value)
		}
		return group
	}
	raw := v.Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner:  h.inner.WithAttrs(attrs),
		buf:    h.buf,
		min:    h.min,
		attrs:  append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
		groups: h.groups,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:  h.inner.WithGroup(name),
		buf:    h.buf,
		min:    h.min,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}
