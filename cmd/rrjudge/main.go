// Package main runs a review aggregation server using Judge.me as an upstream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/blampe/rrjudge/cmd"
	"github.com/blampe/rrjudge/internal"
	"github.com/go-chi/chi/v5/middleware"
)

// cli contains our command-line flags.
type cli struct {
	Serve server `cmd:"" help:"Run an HTTP server."`

	Bust cmd.Bust `cmd:"" help:"Bust cache entries."`
}

type server struct {
	cmd.CacheConfig
	cmd.JudgeMeConfig
	cmd.LogConfig

	Port          int           `default:"3000" env:"PORT" help:"Port to serve traffic on."`
	MaxInFlight   int           `default:"8" env:"MAX_IN_FLIGHT" help:"Maximum products resolved concurrently per request."`
	BatchTimeout  time.Duration `default:"30s" env:"BATCH_TIMEOUT" help:"Deadline for resolving every product in a request."`
	PageSize      int           `default:"20" env:"PAGE_SIZE" help:"Reviews returned per product."`
	PreserveOrder bool          `env:"PRESERVE_ORDER" help:"Return batch results in request order instead of completion order."`
}

func (s *server) Run() error {
	_ = s.LogConfig.Run()

	ctx := context.Background()

	opts, err := s.Options()
	if err != nil {
		return err
	}
	cache, err := internal.NewCache(ctx, opts)
	if err != nil {
		return fmt.Errorf("setting up cache: %w", err)
	}

	upstreamOpts, err := s.Upstream()
	if err != nil {
		return err
	}
	upstream, err := internal.NewUpstream(upstreamOpts)
	if err != nil {
		return err
	}

	ctrl, err := internal.NewController(cache, internal.NewJudgeMe(upstream), s.CacheTTL, internal.BatchOptions{
		MaxInFlight:   s.MaxInFlight,
		Timeout:       s.BatchTimeout,
		PreserveOrder: s.PreserveOrder,
		PageSize:      s.PageSize,
	})
	if err != nil {
		return err
	}

	internal.RegisterMetrics()

	h := internal.NewHandler(ctrl)
	mux := internal.NewMux(h)

	mux = middleware.RequestSize(1 << 20)(mux) // Limit request bodies.
	mux = internal.Requestlogger{}.Wrap(mux)   // Log requests.
	mux = middleware.RequestID(mux)            // Include a request ID header.
	mux = middleware.Recoverer(mux)            // Recover from panics.

	addr := fmt.Sprintf(":%d", s.Port)
	server := &http.Server{
		Handler:           mux,
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt)
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-shutdown
		slog.Info("shutting down http server")
		// Give in-flight batches a chance to finish.
		ctx, cancel := context.WithTimeout(ctx, s.BatchTimeout+5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	slog.Info("listening on " + addr)
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done

	slog.Info("au revoir!")

	return nil
}

func main() {
	kctx := kong.Parse(&cli{})
	err := kctx.Run()
	if err != nil {
		internal.Log(context.Background()).Error("fatal", "err", err)
		os.Exit(1)
	}
}
