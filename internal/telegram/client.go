package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tgstories/internal/credentials"
	"tgstories/internal/domain"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

type Prompter interface {
	Code(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}

type Client struct {
	client        *telegram.Client
	phone         string
	prompter      Prompter
	downloader    *downloader.Downloader
	includeHidden bool
	log           *slog.Logger

	mu        sync.Mutex
	locations map[domain.StoryKey]tg.InputFileLocationClass
}

type Options struct {
	SessionPath   string
	IncludeHidden bool
}

func New(
	creds credentials.Credentials,
	opts Options,
	prompter Prompter,
	log *slog.Logger,
) *Client {
	client := telegram.NewClient(int(creds.APIID), creds.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: opts.SessionPath},
	})

	return &Client{
		client:        client,
		phone:         strings.TrimSpace(creds.PhoneNumber),
		prompter:      prompter,
		downloader:    downloader.NewDownloader(),
		includeHidden: opts.IncludeHidden,
		log:           log,
		locations:     make(map[domain.StoryKey]tg.InputFileLocationClass),
	}
}

// Run keeps the connection open, logging in first if the session is not authorized.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(userAuth{phone: c.phone, prompter: c.prompter}, auth.SendCodeOptions{})
		if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		c.log.InfoContext(ctx, "Telegram client is authorized",
			"userID", self.ID,
			"username", self.Username)

		return fn(ctx)
	})
}

func (c *Client) DownloadStory(ctx context.Context, story domain.Story, path string) error {
	c.mu.Lock()
	location, ok := c.locations[story.Key()]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("no media location for story %d of peer %d", story.StoryID, story.UserID)
	}

	if _, err := c.downloader.Download(c.client.API(), location).ToPath(ctx, path); err != nil {
		return fmt.Errorf("download media: %w", err)
	}

	return nil
}

type userAuth struct {
	phone    string
	prompter Prompter
}

func (a userAuth) Phone(context.Context) (string, error) {
	return a.phone, nil
}

func (a userAuth) Password(ctx context.Context) (string, error) {
	return a.prompter.Password(ctx)
}

func (a userAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.prompter.Code(ctx)
}

func (a userAuth) AcceptTermsOfService(context.Context, tg.HelpTermsOfService) error {
	return errors.New("account is not registered")
}

func (a userAuth) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up is not supported")
}
