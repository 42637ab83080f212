package slogcustom

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// CustomHandler печатает записи в одну цветную строку: время, уровень, сообщение, атрибуты.
type CustomHandler struct {
	l     *log.Logger
	mu    *sync.Mutex
	level slog.Leveler
	attrs []slog.Attr
}

func NewCustomHandler(out io.Writer, level slog.Leveler) *CustomHandler {
	return &CustomHandler{
		l:     log.New(out, "", 0),
		mu:    &sync.Mutex{},
		level: level,
	}
}

func (c *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"

	switch {
	case r.Level >= slog.LevelError:
		level = color.RedString(level)
	case r.Level >= slog.LevelWarn:
		level = color.YellowString(level)
	case r.Level >= slog.LevelInfo:
		level = color.HiBlueString(level)
	default:
		level = color.MagentaString(level)
	}

	var attrs strings.Builder
	write := func(a slog.Attr) bool {
		attrs.WriteString(color.GreenString(a.Key) + "=" + fmt.Sprint(a.Value.Resolve().Any()) + " ")
		return true
	}

	for _, a := range c.attrs {
		write(a)
	}
	r.Attrs(write)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.l.Println(
		r.Time.Format("15:04:05.000"),
		level,
		r.Message,
		strings.TrimSpace(attrs.String()),
	)
	return nil
}

func (c *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return c
	}

	merged := make([]slog.Attr, 0, len(c.attrs)+len(attrs))
	merged = append(merged, c.attrs...)
	merged = append(merged, attrs...)

	return &CustomHandler{
		l:     c.l,
		mu:    c.mu,
		level: c.level,
		attrs: merged,
	}
}

// WithGroup не поддерживается: группы в консольном выводе не нужны.
func (c *CustomHandler) WithGroup(_ string) slog.Handler {
	return c
}

func (c *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= c.level.Level()
}
