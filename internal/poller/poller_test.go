package poller_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tgstories/internal/database"
	"tgstories/internal/domain"
	"tgstories/internal/poller"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	stories    []domain.Story
	fetchErr   error
	failFor    map[domain.StoryKey]bool
	downloaded []domain.StoryKey
}

func (s *fakeSource) FetchStories(context.Context) ([]domain.Story, error) {
	return s.stories, s.fetchErr
}

func (s *fakeSource) DownloadStory(_ context.Context, story domain.Story, path string) error {
	s.downloaded = append(s.downloaded, story.Key())

	if err := os.WriteFile(path, []byte("partial"), 0o600); err != nil {
		return err
	}

	if s.failFor[story.Key()] {
		return errors.New("connection reset")
	}

	return nil
}

type fakeStore struct {
	records   []domain.StoryRecord
	keysErr   error
	insertErr error
	// ignoreInserts acts like a table whose key the key set does not reflect.
	ignoreInserts bool
}

func (s *fakeStore) GetStoryKeys(context.Context) (map[domain.StoryKey]struct{}, error) {
	if s.keysErr != nil {
		return nil, s.keysErr
	}

	keys := make(map[domain.StoryKey]struct{}, len(s.records))
	for _, r := range s.records {
		keys[r.Key()] = struct{}{}
	}

	return keys, nil
}

func (s *fakeStore) InsertStory(_ context.Context, rec domain.StoryRecord) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if s.ignoreInserts {
		return false, nil
	}

	for _, r := range s.records {
		if r.Key() == rec.Key() {
			return false, nil
		}
	}

	s.records = append(s.records, rec)
	return true, nil
}

type fakeNotifier struct {
	records []domain.StoryRecord
	err     error
}

func (n *fakeNotifier) NotifyNewStories(_ context.Context, records []domain.StoryRecord) error {
	n.records = append(n.records, records...)
	return n.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func story(userID, storyID int64) domain.Story {
	return domain.Story{
		UserID:  userID,
		StoryID: storyID,
		Date:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Kind:    domain.MediaPhoto,
		Ext:     "jpg",
	}
}

func TestCheckSkipsRecordedStories(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{stories: []domain.Story{story(1, 1), story(1, 2)}}
	store := &fakeStore{records: []domain.StoryRecord{{UserID: 1, StoryID: 1, Filename: "old.jpg"}}}

	p, err := poller.New(source, store, dir, discardLogger())
	require.NoError(t, err)

	res, err := p.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, poller.Result{Seen: 2, New: 1, Saved: 1}, res)
	assert.Equal(t, []domain.StoryKey{{UserID: 1, StoryID: 2}}, source.downloaded)
	require.Len(t, store.records, 2)
	assert.Equal(t, filepath.Join(dir, "1_2.jpg"), store.records[1].Filename)

	source.downloaded = nil
	res, err = p.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, poller.Result{Seen: 2}, res)
	assert.Empty(t, source.downloaded)
}

func TestCheckContinuesAfterDownloadFailure(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{
		stories: []domain.Story{story(1, 1), story(2, 1), story(3, 1)},
		failFor: map[domain.StoryKey]bool{{UserID: 2, StoryID: 1}: true},
	}
	store := &fakeStore{}

	p, err := poller.New(source, store, dir, discardLogger())
	require.NoError(t, err)

	res, err := p.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, poller.Result{Seen: 3, New: 3, Saved: 2, Failed: 1}, res)
	assert.Len(t, source.downloaded, 3)
	require.Len(t, store.records, 2)
	assert.Equal(t, int64(1), store.records[0].UserID)
	assert.Equal(t, int64(3), store.records[1].UserID)

	_, statErr := os.Stat(filepath.Join(dir, "2_1.jpg"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestCheckSkipsStoriesWithoutMedia(t *testing.T) {
	source := &fakeSource{stories: []domain.Story{{UserID: 1, StoryID: 1}}}
	store := &fakeStore{}

	p, err := poller.New(source, store, t.TempDir(), discardLogger())
	require.NoError(t, err)

	res, err := p.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, poller.Result{Seen: 1}, res)
	assert.Empty(t, source.downloaded)
	assert.Empty(t, store.records)
}

func TestCheckFormatsTimestampInLocation(t *testing.T) {
	source := &fakeSource{stories: []domain.Story{story(1, 1)}}
	store := &fakeStore{}

	p, err := poller.New(source, store, t.TempDir(), discardLogger(),
		poller.WithLocation(time.FixedZone("CEST", 2*60*60)))
	require.NoError(t, err)

	_, err = p.Check(context.Background())
	require.NoError(t, err)

	require.Len(t, store.records, 1)
	assert.Equal(t, "2024-05-01 12:00:00", store.records[0].Timestamp)
}

func TestCheckReturnsFetchError(t *testing.T) {
	source := &fakeSource{fetchErr: errors.New("FLOOD_WAIT")}

	p, err := poller.New(source, &fakeStore{}, t.TempDir(), discardLogger())
	require.NoError(t, err)

	_, err = p.Check(context.Background())
	assert.Error(t, err)
}

func TestCheckReturnsStoreError(t *testing.T) {
	source := &fakeSource{stories: []domain.Story{story(1, 1)}}

	p, err := poller.New(source, &fakeStore{keysErr: errors.New("locked")}, t.TempDir(), discardLogger())
	require.NoError(t, err)

	_, err = p.Check(context.Background())
	assert.Error(t, err)
	assert.Empty(t, source.downloaded)
}

func TestCheckNotifiesSavedStories(t *testing.T) {
	source := &fakeSource{
		stories: []domain.Story{story(1, 1), story(1, 2)},
		failFor: map[domain.StoryKey]bool{{UserID: 1, StoryID: 1}: true},
	}
	notifier := &fakeNotifier{err: errors.New("bot blocked")}

	p, err := poller.New(source, &fakeStore{}, t.TempDir(), discardLogger(), poller.WithNotifier(notifier))
	require.NoError(t, err)

	res, err := p.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Saved)
	require.Len(t, notifier.records, 1)
	assert.Equal(t, int64(2), notifier.records[0].StoryID)
}

func TestCheckDoesNotNotifyWithoutNewStories(t *testing.T) {
	notifier := &fakeNotifier{}

	p, err := poller.New(&fakeSource{}, &fakeStore{}, t.TempDir(), discardLogger(), poller.WithNotifier(notifier))
	require.NoError(t, err)

	_, err = p.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notifier.records)
}

func TestCheckIgnoredInsertIsNotSaved(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{stories: []domain.Story{story(2, 7)}}
	notifier := &fakeNotifier{}

	p, err := poller.New(source, &fakeStore{ignoreInserts: true}, dir, discardLogger(),
		poller.WithNotifier(notifier))
	require.NoError(t, err)

	res, err := p.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, poller.Result{Seen: 1, New: 1}, res)
	assert.Empty(t, notifier.records)
}

func TestCheckRemovesFileWhenInsertFails(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{stories: []domain.Story{story(1, 1), story(1, 2)}}
	store := &fakeStore{insertErr: errors.New("database is locked")}

	p, err := poller.New(source, store, dir, discardLogger())
	require.NoError(t, err)

	res, err := p.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, poller.Result{Seen: 2, New: 2, Failed: 2}, res)
	assert.Len(t, source.downloaded, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheckWithDatabaseNeverRedownloads(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := database.New(ctx, filepath.Join(dir, "stories.db"), discardLogger())
	require.NoError(t, err)
	defer db.Close()

	downloadDir := filepath.Join(dir, "media")
	source := &fakeSource{stories: []domain.Story{story(1, 7), story(2, 7), story(3, 1)}}

	p, err := poller.New(source, db, downloadDir, discardLogger())
	require.NoError(t, err)

	res, err := p.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, poller.Result{Seen: 3, New: 3, Saved: 3}, res)
	assert.Len(t, source.downloaded, 3)

	source.downloaded = nil
	source.stories = append(source.stories, story(2, 8))

	res, err = p.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, poller.Result{Seen: 4, New: 1, Saved: 1}, res)
	assert.Equal(t, []domain.StoryKey{{UserID: 2, StoryID: 8}}, source.downloaded)

	count, err := db.CountStories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
