package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tgstories/internal/domain"
)

// InsertStory reports false when the key is already recorded.
func (d *Database) InsertStory(ctx context.Context, rec domain.StoryRecord) (bool, error) {
	filename := strings.TrimSpace(rec.Filename)
	if filename == "" {
		return false, errors.New("story filename is empty")
	}

	query := `insert or ignore into stories (user_id, story_id, timestamp, filename)
	values (?, ?, ?, ?)`

	res, err := d.db.ExecContext(ctx, query, rec.UserID, rec.StoryID, rec.Timestamp, filename)
	if err != nil {
		return false, fmt.Errorf("failed to execute query: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

func (d *Database) GetStoryKeys(ctx context.Context) (map[domain.StoryKey]struct{}, error) {
	query := "select user_id, story_id from stories"

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", "GetStoryKeys")
		}
	}()

	keys := make(map[domain.StoryKey]struct{})
	for rows.Next() {
		var k domain.StoryKey
		if err = rows.Scan(&k.UserID, &k.StoryID); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		keys[k] = struct{}{}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return keys, nil
}

func (d *Database) GetStories(ctx context.Context) ([]domain.StoryRecord, error) {
	query := `select user_id, story_id, timestamp, filename
	from stories
	order by timestamp, user_id, story_id`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", "GetStories")
		}
	}()

	var records []domain.StoryRecord
	for rows.Next() {
		var r domain.StoryRecord
		if err = rows.Scan(&r.UserID, &r.StoryID, &r.Timestamp, &r.Filename); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		records = append(records, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return records, nil
}

func (d *Database) CountStories(ctx context.Context) (int, error) {
	var count int

	if err := d.db.QueryRowContext(ctx, "select count(*) from stories").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stories: %w", err)
	}

	return count, nil
}
