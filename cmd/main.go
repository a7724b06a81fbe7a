package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tgstories/internal/config"
	"tgstories/internal/prompt"

	"github.com/spf13/cobra"
)

type app struct {
	cfg      config.Config
	log      *slog.Logger
	prompter *prompt.Prompter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	a := &app{
		cfg:      cfg,
		prompter: prompt.New(os.Stdin, os.Stdout),
	}

	if err = newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		if a.log == nil {
			fmt.Fprintln(os.Stderr, err)
		} else {
			a.log.Error("Command failed",
				"error", err)
		}

		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tgstories",
		Short:         "Download new Telegram stories of your contacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			a.log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: a.cfg.LogLevel}))
			slog.SetDefault(a.log)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.CredentialsPath, "credentials", a.cfg.CredentialsPath, "credentials JSON file")
	flags.StringVar(&a.cfg.SessionPath, "session", a.cfg.SessionPath, "Telegram session file")
	flags.StringVar(&a.cfg.DBPath, "db", a.cfg.DBPath, "SQLite database file")

	run := newRunCmd(a)
	root.AddCommand(run, newExportCmd(a), newLoginCmd(a))

	// Without a subcommand the root behaves like "run".
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())

	return root
}
