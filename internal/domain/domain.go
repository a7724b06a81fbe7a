package domain

import (
	"fmt"
	"time"
)

const TimestampLayout = "2006-01-02 15:04:05"

type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
)

// StoryKey identifies a story across all peers. Story ids are only unique per owner.
type StoryKey struct {
	UserID  int64
	StoryID int64
}

type Story struct {
	UserID  int64
	StoryID int64
	Date    time.Time
	Kind    MediaKind
	// Ext is the file extension without a dot. Empty means nothing to download.
	Ext string
}

func (s Story) Key() StoryKey {
	return StoryKey{UserID: s.UserID, StoryID: s.StoryID}
}

func (s Story) HasMedia() bool {
	return s.Kind != MediaNone && s.Ext != ""
}

func (s Story) Filename() string {
	return fmt.Sprintf("%d_%d.%s", s.UserID, s.StoryID, s.Ext)
}

type StoryRecord struct {
	UserID    int64
	StoryID   int64
	Timestamp string
	Filename  string
}

func (r StoryRecord) Key() StoryKey {
	return StoryKey{UserID: r.UserID, StoryID: r.StoryID}
}
