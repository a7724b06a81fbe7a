package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tgstories/internal/domain"
	"tgstories/internal/ratelimiter"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type sender interface {
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
}

// Notifier forwards saved story files to a chat through a Bot API token.
type Notifier struct {
	sender  sender
	chatID  int64
	limiter *ratelimiter.RateLimiter
	log     *slog.Logger
}

func New(
	token string,
	chatID int64,
	limiter *ratelimiter.RateLimiter,
	log *slog.Logger,
) (*Notifier, error) {
	b, err := bot.New(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return newWithSender(b, chatID, limiter, log), nil
}

func newWithSender(s sender, chatID int64, limiter *ratelimiter.RateLimiter, log *slog.Logger) *Notifier {
	return &Notifier{
		sender:  s,
		chatID:  chatID,
		limiter: limiter,
		log:     log,
	}
}

func (n *Notifier) NotifyNewStories(ctx context.Context, records []domain.StoryRecord) error {
	var errs []error

	for _, rec := range records {
		err := n.limiter.Do(ctx, n.chatID, func(ctx context.Context) error {
			return n.sendStory(ctx, rec)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("send story %d of %d: %w", rec.StoryID, rec.UserID, err))
			continue
		}

		n.log.DebugContext(ctx, "Story is forwarded",
			"chatID", n.chatID,
			"userID", rec.UserID,
			"storyID", rec.StoryID)
	}

	return errors.Join(errs...)
}

func (n *Notifier) sendStory(ctx context.Context, rec domain.StoryRecord) error {
	f, err := os.Open(rec.Filename)
	if err != nil {
		return fmt.Errorf("open story file: %w", err)
	}
	defer func() {
		if err = f.Close(); err != nil {
			n.log.ErrorContext(ctx, "Failed to close story file",
				"error", err,
				"filename", rec.Filename,
				"operation", "sendStory")
		}
	}()

	_, err = n.sender.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: n.chatID,
		Document: &models.InputFileUpload{
			Filename: filepath.Base(rec.Filename),
			Data:     f,
		},
		Caption: caption(rec),
	})
	if err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	return nil
}

func caption(rec domain.StoryRecord) string {
	return fmt.Sprintf("New story from %d\nStory ID: %d\nPublished: %s",
		rec.UserID, rec.StoryID, rec.Timestamp)
}
