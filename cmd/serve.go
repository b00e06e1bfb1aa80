package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/metrics"
	"github.com/sells-group/arrowline/internal/queue"
	"github.com/sells-group/arrowline/internal/store"
)

var (
	servePort         int
	servePollInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for building layers and queueing tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		// Background loops finish before the store closes.
		wait := startBackground(ctx, st, cfg.Queue, servePollInterval)
		defer func() {
			stop()
			wait()
		}()

		router := buildRouter(st, routerOptions{
			Layer:   cfg.Layer,
			Queue:   cfg.Queue,
			MaxBody: cfg.Server.MaxBodyBytes,
			Origins: cfg.Server.AllowedOrigins,
		})
		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return eris.Wrap(err, "server listen")
			}
			return nil
		case <-ctx.Done():
		}

		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&servePollInterval, "poll-interval", 0, "run pending queue tasks at this interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

// routerOptions carries the settings the HTTP handlers read.
type routerOptions struct {
	// Layer applies to requests that carry no layer config.
	Layer   arrowline.Config
	Queue   queue.Config
	MaxBody int64
	Origins []string
}

// buildRouter wires the HTTP API.
func buildRouter(st store.Store, opts routerOptions) http.Handler {
	origins := opts.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h := &apiHandler{store: st, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:         3600,
	}))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/arrow-lines", h.buildArrowLine)
		r.Post("/tasks", h.createTask)
		r.Get("/tasks", h.listTasks)
		r.Get("/tasks/{id}", h.getTask)
		r.Get("/tasks/{id}/arrow-heads", h.listArrowHeads)
		r.Post("/tasks/run", h.runTasks)
	})
	return r
}

// startBackground starts the queue poller, when interval is positive, and
// the pool reporter for Postgres stores. They run until ctx is done; the
// returned func blocks until they have returned.
func startBackground(ctx context.Context, st store.Store, qc queue.Config, interval time.Duration) func() {
	var wg sync.WaitGroup
	if interval > 0 {
		runner := queue.NewRunner(st, qc)
		wg.Go(func() { pollQueue(ctx, runner, interval) })
	}
	if pg, ok := st.(*store.PostgresStore); ok {
		wg.Go(func() { reportPoolStats(ctx, pg) })
	}
	return wg.Wait
}

// pollQueue runs pending tasks every interval until ctx is done.
func pollQueue(ctx context.Context, runner *queue.Runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := runner.RunPending(ctx); err != nil && ctx.Err() == nil {
				zap.L().Error("queue poll failed", zap.Error(err))
			}
		}
	}
}

func reportPoolStats(ctx context.Context, pg *store.PostgresStore) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stat := pg.Stat(); stat != nil {
				metrics.UpdateDBPoolMetrics(stat)
			}
		}
	}
}
