package internal

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	charm "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-isatty"
)

var _logHandler *charm.Logger

// Log returns a logger scoped to the request ID if present in the context,
// and to the batch being worked on if there is one.
func Log(ctx context.Context) *slog.Logger {
	l := slog.Default().With("trace", ctx.Value(middleware.RequestIDKey))
	if batch, ok := ctx.Value(batchKey{}).(string); ok {
		l = l.With("batch", batch)
	}
	return l
}

type batchKey struct{}

// withBatch tags ctx with a batch ID for Log.
func withBatch(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchKey{}, batchID)
}

// requestInfo collects what a request asked for so it can be included in the
// request's log line.
type requestInfo struct {
	ids    int
	cached bool
}

type requestInfoKey struct{}

// noteRequest records the size of the identifier set a request asked for and
// whether it was answered from cache. It's a no-op outside Requestlogger.
func noteRequest(ctx context.Context, ids int, cached bool) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.ids, info.cached = ids, cached
	}
}

// SetLogLevel adjusts the default handler's verbosity.
func SetLogLevel(level charm.Level) {
	_logHandler.SetLevel(level)
}

// Requestlogger logs some info about requests we handled.
type Requestlogger struct{}

// Wrap applies middleware.
func (Requestlogger) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{}
		ctx := context.WithValue(r.Context(), requestInfoKey{}, info)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("ip", r.RemoteAddr),
		}

		Log(ctx).Debug("handling request", "path", r.URL.Path)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		body := &bytes.Buffer{}
		ww.Tee(body)

		defer func() {
			status := ww.Status()
			duration := time.Since(start)

			attrs = append([]slog.Attr{
				slog.Int("status", status),
				slog.Duration("duration", duration),
				slog.Int("bytes", ww.BytesWritten()),
			}, attrs...)

			if info.ids > 0 {
				attrs = append(attrs, slog.Int("ids", info.ids), slog.Bool("cached", info.cached))
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
				attrs = append(attrs, slog.String("err", body.String()))
			case status >= 400:
				level = slog.LevelWarn
			default:
			}

			// Don't log the query string, it may carry opaque tokens on
			// misconfigured clients.
			Log(ctx).LogAttrs(ctx, level,
				fmt.Sprintf("%s %s => HTTP %d (%v)", r.Method, r.URL.Path, status, duration),
				attrs...)
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

// set up our default log handler and formatting.
func init() {
	styles := charm.DefaultStyles()
	styles.Keys["err"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true)
	styles.Keys["status"] = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	styles.Keys["method"] = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	styles.Values["trace"] = lipgloss.NewStyle().Faint(true)
	styles.Values["batch"] = lipgloss.NewStyle().Faint(true)

	_logHandler = charm.NewWithOptions(os.Stdout, charm.Options{
		ReportTimestamp: true,
		TimeFormat:      time.StampMilli,
		Level:           charm.InfoLevel,
	})
	_logHandler.SetStyles(styles)

	// Output JSON in containers.
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		_logHandler.SetFormatter(
			charm.JSONFormatter,
		)
		_logHandler.SetTimeFormat(time.RFC3339)
	}

	logger := slog.New(_logHandler)
	slog.SetDefault(logger)
}
