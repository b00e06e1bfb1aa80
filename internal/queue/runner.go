package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/arrowline/internal/metrics"
	"github.com/sells-group/arrowline/internal/model"
	"github.com/sells-group/arrowline/internal/store"
)

// Config tunes a Runner.
type Config struct {
	// Concurrency bounds the number of tasks built at once. Default: 4.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// Rate limits task starts per second. Zero disables throttling.
	Rate float64 `yaml:"rate" mapstructure:"rate"`
	// BatchSize is the maximum number of pending tasks read per run. Default: 100.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	// PackageName restricts a run to tasks of one package.
	PackageName string `yaml:"package_name" mapstructure:"package_name"`
	// StaleAfter requeues tasks left started for longer than this at the
	// start of each run. Zero disables requeueing.
	StaleAfter time.Duration `yaml:"stale_after" mapstructure:"stale_after"`

	Retry RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// Stats summarizes one RunPending call.
type Stats struct {
	Claimed   int64 `json:"claimed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
	Requeued  int64 `json:"requeued"`
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeFailed
)

func (o outcome) String() string {
	if o == outcomeDone {
		return "done"
	}
	return "failed"
}

// Runner builds pending arrow-line tasks and records their results.
type Runner struct {
	store   store.Store
	cfg     Config
	limiter *rate.Limiter
}

// NewRunner creates a Runner over st.
func NewRunner(st store.Store, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(int(cfg.Rate), 1))
	}
	return &Runner{store: st, cfg: cfg, limiter: limiter}
}

// RunPending processes every not-started arrow-line task once. A task whose
// payload, build or result write fails is marked failed and does not abort
// the run; list and claim errors do.
func (r *Runner) RunPending(ctx context.Context) (Stats, error) {
	var requeued int64
	if r.cfg.StaleAfter > 0 {
		n, err := r.store.RequeueStale(ctx, time.Now().Add(-r.cfg.StaleAfter))
		if err != nil {
			return Stats{}, eris.Wrap(err, "queue: requeue stale tasks")
		}
		if n > 0 {
			zap.L().Warn("queue: requeued stale tasks", zap.Int64("tasks", n), zap.Duration("stale_after", r.cfg.StaleAfter))
		}
		requeued = n
	}

	pending := model.TaskStatusNotStarted
	tasks, err := r.store.ListTasks(ctx, store.TaskFilter{
		Status:      &pending,
		Type:        model.TaskTypeArrowLine,
		PackageName: r.cfg.PackageName,
		Limit:       r.cfg.BatchSize,
	})
	if err != nil {
		return Stats{Requeued: requeued}, eris.Wrap(err, "queue: list pending tasks")
	}
	if len(tasks) == 0 {
		zap.L().Info("queue: no pending tasks")
		return Stats{Requeued: requeued}, nil
	}

	zap.L().Info("queue: processing tasks",
		zap.Int("tasks", len(tasks)),
		zap.Int("concurrency", r.cfg.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	var claimed, succeeded, failed, skipped atomic.Int64

	for _, task := range tasks {
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return eris.Wrap(err, "queue: rate limit")
			}

			var ok bool
			err := retry(gctx, r.cfg.Retry, "claim", func(ctx context.Context) error {
				var cerr error
				ok, cerr = r.store.ClaimTask(ctx, task.ID)
				return cerr
			})
			if err != nil {
				return eris.Wrapf(err, "queue: claim task %s", task.ID)
			}
			if !ok {
				skipped.Add(1)
				return nil
			}
			claimed.Add(1)

			out := r.process(gctx, task)
			metrics.TasksProcessed.WithLabelValues(out.String()).Inc()
			if out == outcomeDone {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}

	err = g.Wait()
	stats := Stats{
		Claimed:   claimed.Load(),
		Succeeded: succeeded.Load(),
		Failed:    failed.Load(),
		Skipped:   skipped.Load(),
		Requeued:  requeued,
	}

	zap.L().Info("queue: run complete",
		zap.Int64("claimed", stats.Claimed),
		zap.Int64("succeeded", stats.Succeeded),
		zap.Int64("failed", stats.Failed),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("requeued", stats.Requeued),
	)
	return stats, eris.Wrap(err, "queue: run")
}

// process builds one claimed task and stores the outcome. Once claimed, a
// task is moved to done or failed even if ctx is cancelled. A task whose
// failure cannot be recorded stays started until RequeueStale picks it up.
func (r *Runner) process(ctx context.Context, task model.Task) outcome {
	ctx = context.WithoutCancel(ctx)
	log := zap.L().With(zap.String("task_id", task.ID), zap.String("package", task.PackageName))

	err := r.complete(ctx, task, log)
	if err == nil {
		return outcomeDone
	}

	log.Warn("queue: task failed", zap.Error(err))
	ferr := retry(ctx, r.cfg.Retry, "fail", func(ctx context.Context) error {
		return r.store.FailTask(ctx, task.ID, err.Error())
	})
	if ferr != nil {
		log.Error("queue: record task failure", zap.Error(ferr))
	}
	return outcomeFailed
}

// complete decodes and builds the task's job and stores the layer.
func (r *Runner) complete(ctx context.Context, task model.Task, log *zap.Logger) error {
	job, err := DecodeJob(task.Payload)
	if err != nil {
		return err
	}

	start := time.Now()
	layer, err := job.Build()
	metrics.ObserveBuild("queue", layer, time.Since(start), err)
	if err != nil {
		return err
	}

	err = retry(ctx, r.cfg.Retry, "complete", func(ctx context.Context) error {
		return r.store.CompleteTask(ctx, task.ID, layer)
	})
	if err != nil {
		return eris.Wrap(err, "queue: complete task")
	}

	log.Info("queue: task done",
		zap.Int("points", len(layer.Line)),
		zap.Int("arrow_heads", len(layer.ArrowHeads.Features)),
	)
	return nil
}
