package poller

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tgstories/internal/domain"
)

type Source interface {
	FetchStories(ctx context.Context) ([]domain.Story, error)
	DownloadStory(ctx context.Context, story domain.Story, path string) error
}

type Store interface {
	GetStoryKeys(ctx context.Context) (map[domain.StoryKey]struct{}, error)
	InsertStory(ctx context.Context, rec domain.StoryRecord) (bool, error)
}

type Notifier interface {
	NotifyNewStories(ctx context.Context, records []domain.StoryRecord) error
}

type Result struct {
	Seen   int
	New    int
	Saved  int
	Failed int
}

type Poller struct {
	source      Source
	store       Store
	notifier    Notifier
	downloadDir string
	loc         *time.Location
	log         *slog.Logger
}

type Option func(*Poller)

func WithNotifier(n Notifier) Option {
	return func(p *Poller) {
		p.notifier = n
	}
}

func WithLocation(loc *time.Location) Option {
	return func(p *Poller) {
		p.loc = loc
	}
}

func New(source Source, store Store, downloadDir string, log *slog.Logger, opts ...Option) (*Poller, error) {
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	p := &Poller{
		source:      source,
		store:       store,
		downloadDir: downloadDir,
		loc:         time.UTC,
		log:         log,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Check runs one tick. Per-story failures are logged and counted; only a failed
// listing or key lookup is returned.
func (p *Poller) Check(ctx context.Context) (Result, error) {
	var res Result

	stories, err := p.source.FetchStories(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch stories: %w", err)
	}
	res.Seen = len(stories)

	existing, err := p.store.GetStoryKeys(ctx)
	if err != nil {
		return res, fmt.Errorf("get story keys: %w", err)
	}

	var saved []domain.StoryRecord

	for _, story := range stories {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		if _, ok := existing[story.Key()]; ok {
			continue
		}

		if !story.HasMedia() {
			p.log.DebugContext(ctx, "Story has no downloadable media",
				"userID", story.UserID,
				"storyID", story.StoryID)
			continue
		}

		res.New++

		rec, inserted, saveErr := p.save(ctx, story)
		if saveErr != nil {
			res.Failed++
			p.log.ErrorContext(ctx, "Failed to save story",
				"error", saveErr,
				"userID", story.UserID,
				"storyID", story.StoryID)
			continue
		}

		existing[story.Key()] = struct{}{}

		if !inserted {
			p.log.WarnContext(ctx, "Story is already recorded",
				"userID", story.UserID,
				"storyID", story.StoryID)
			continue
		}

		res.Saved++
		saved = append(saved, rec)
	}

	if len(saved) > 0 && p.notifier != nil {
		if err = p.notifier.NotifyNewStories(ctx, saved); err != nil {
			p.log.ErrorContext(ctx, "Failed to notify about new stories",
				"error", err,
				"storyCount", len(saved))
		}
	}

	return res, nil
}

// save reports false when the store already held the key. The file is left in
// place then, since the existing record points at the same path.
func (p *Poller) save(ctx context.Context, story domain.Story) (domain.StoryRecord, bool, error) {
	path := filepath.Join(p.downloadDir, story.Filename())

	if err := p.source.DownloadStory(ctx, story, path); err != nil {
		p.removePartial(ctx, path)
		return domain.StoryRecord{}, false, fmt.Errorf("download story: %w", err)
	}

	rec := domain.StoryRecord{
		UserID:    story.UserID,
		StoryID:   story.StoryID,
		Timestamp: story.Date.In(p.loc).Format(domain.TimestampLayout),
		Filename:  path,
	}

	inserted, err := p.store.InsertStory(ctx, rec)
	if err != nil {
		p.removePartial(ctx, path)
		return domain.StoryRecord{}, false, fmt.Errorf("insert story: %w", err)
	}

	return rec, inserted, nil
}

func (p *Poller) removePartial(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.log.WarnContext(ctx, "Failed to remove partial download",
			"error", err,
			"path", path)
	}
}
