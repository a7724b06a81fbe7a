package main

import (
	"context"
	"fmt"

	"tgstories/internal/credentials"
	"tgstories/internal/telegram"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize the Telegram session and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			creds, _, err := credentials.LoadOrPrompt(ctx, a.cfg.CredentialsPath, a.prompter)
			if err != nil {
				return fmt.Errorf("load credentials: %w", err)
			}

			client := telegram.New(creds, telegram.Options{SessionPath: a.cfg.SessionPath}, a.prompter, a.log)

			if err = client.Run(ctx, func(context.Context) error { return nil }); err != nil {
				return fmt.Errorf("log in: %w", err)
			}

			a.log.InfoContext(ctx, "Session is saved",
				"sessionPath", a.cfg.SessionPath)

			return nil
		},
	}
}
