package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tgstories/internal/config"
	"tgstories/internal/credentials"
	"tgstories/internal/database"
	"tgstories/internal/export"
	"tgstories/internal/notifier"
	"tgstories/internal/poller"
	"tgstories/internal/ratelimiter"
	"tgstories/internal/scheduler"
	"tgstories/internal/telegram"

	"github.com/spf13/cobra"
)

type runOptions struct {
	exportFormat string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll for new stories until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStories(cmd.Context(), a, opts)
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&a.cfg.Interval, "interval", a.cfg.Interval, "checking interval; prompted for when unset")
	flags.StringVar(&a.cfg.DownloadDir, "download-dir", a.cfg.DownloadDir, "directory for downloaded media")
	flags.StringVar(&a.cfg.ExportDir, "export-dir", a.cfg.ExportDir, "directory for export files")
	flags.BoolVar(&a.cfg.IncludeHidden, "include-hidden", a.cfg.IncludeHidden, "include stories of archived peers")
	flags.StringVar(&opts.exportFormat, "export", "", "export after each check that saved stories (xlsx or csv)")

	return cmd
}

func runStories(ctx context.Context, a *app, opts runOptions) error {
	start := time.Now()
	log := a.log

	var exportFormat export.Format
	if opts.exportFormat != "" {
		format, err := export.ParseFormat(opts.exportFormat)
		if err != nil {
			return err
		}
		exportFormat = format
	}

	creds, prompted, err := credentials.LoadOrPrompt(ctx, a.cfg.CredentialsPath, a.prompter)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	log.InfoContext(ctx, "Credentials are loaded",
		"path", a.cfg.CredentialsPath,
		"prompted", prompted)

	interval, err := resolveInterval(ctx, a)
	if err != nil {
		return fmt.Errorf("resolve interval: %w", err)
	}

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.New(ctx, a.cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("initialize db: %w", err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", a.cfg.DBPath)
		}
	}()

	client := telegram.New(creds, telegram.Options{
		SessionPath:   a.cfg.SessionPath,
		IncludeHidden: a.cfg.IncludeHidden,
	}, a.prompter, log)

	pollerOpts := []poller.Option{poller.WithLocation(loc)}

	if a.cfg.NotificationsEnabled() {
		limiter := ratelimiter.New(log)
		defer limiter.Stop()

		n, notifierErr := notifier.New(a.cfg.NotifyBotToken, a.cfg.NotifyChatID, limiter, log)
		if notifierErr != nil {
			log.WarnContext(ctx, "Failed to initialize notifier so notifications are disabled",
				"error", notifierErr,
				"chatID", a.cfg.NotifyChatID)
		} else {
			pollerOpts = append(pollerOpts, poller.WithNotifier(n))
			log.InfoContext(ctx, "Notifier is initialized",
				"chatID", a.cfg.NotifyChatID)
		}
	}

	p, err := poller.New(client, db, a.cfg.DownloadDir, log, pollerOpts...)
	if err != nil {
		return fmt.Errorf("initialize poller: %w", err)
	}

	var schedOpts []scheduler.Option
	if exportFormat != "" {
		schedOpts = append(schedOpts, scheduler.WithExport(export.New(db, a.cfg.ExportDir, log), exportFormat))
	}

	// Prompts are done; from here an interrupt stops polling.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = client.Run(ctx, func(ctx context.Context) error {
		sched := scheduler.New(ctx, interval, p, log, schedOpts...)
		sched.Start()
		log.InfoContext(ctx, "Scheduler is started",
			"intervalSeconds", interval.Seconds(),
			"downloadDir", a.cfg.DownloadDir)

		<-ctx.Done()
		log.InfoContext(ctx, "Shutdown signal is received")

		sched.Stop()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run telegram client: %w", err)
	}

	log.InfoContext(ctx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())

	return nil
}

func resolveInterval(ctx context.Context, a *app) (time.Duration, error) {
	if a.cfg.Interval > 0 {
		return a.cfg.Interval, nil
	}

	if !a.prompter.Interactive() {
		return config.DefaultInterval, nil
	}

	return a.prompter.Interval(ctx, config.DefaultInterval)
}
