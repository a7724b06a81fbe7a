package scheduler

import (
	"context"
	"log/slog"
	"time"

	"tgstories/internal/export"
	"tgstories/internal/poller"

	"github.com/robfig/cron/v3"
)

const checkStoriesTimeout = 15 * time.Minute

type Checker interface {
	Check(ctx context.Context) (poller.Result, error)
}

type Exporter interface {
	Export(ctx context.Context, format export.Format) (string, error)
}

type Scheduler struct {
	ctx          context.Context
	cron         *cron.Cron
	interval     time.Duration
	checker      Checker
	exporter     Exporter
	exportFormat export.Format
	log          *slog.Logger
}

type Option func(*Scheduler)

// WithExport writes an export after every check that saved stories.
func WithExport(e Exporter, format export.Format) Option {
	return func(s *Scheduler) {
		s.exporter = e
		s.exportFormat = format
	}
}

func New(
	ctx context.Context,
	interval time.Duration,
	checker Checker,
	log *slog.Logger,
	opts ...Option,
) *Scheduler {
	logger := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	s := &Scheduler{
		ctx:      ctx,
		cron:     c,
		interval: interval,
		checker:  checker,
		log:      log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs one check immediately, then every interval.
func (s *Scheduler) Start() {
	s.log.InfoContext(s.ctx, "Running initial check for stories")
	s.checkStories()

	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(s.checkStories))
	s.cron.Start()
}

// Stop waits for a running check to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) checkStories() {
	ctx, cancel := context.WithTimeout(s.ctx, checkStoriesTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	start := time.Now()
	s.log.InfoContext(ctx, "Checking for new stories")

	res, err := s.checker.Check(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to check stories",
			"error", err,
			"seen", res.Seen,
			"saved", res.Saved)
		return
	}

	if res.Saved > 0 {
		s.log.InfoContext(ctx, "Detected and saved new stories",
			"saved", res.Saved,
			"failed", res.Failed,
			"seen", res.Seen,
			"durationSeconds", time.Since(start).Seconds())
	} else {
		s.log.DebugContext(ctx, "No new stories",
			"failed", res.Failed,
			"seen", res.Seen)
	}

	if res.Saved == 0 || s.exporter == nil {
		return
	}

	path, err := s.exporter.Export(ctx, s.exportFormat)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to export stories",
			"error", err,
			"format", string(s.exportFormat))
		return
	}

	s.log.InfoContext(ctx, "Export is written",
		"path", path)
}
