package export

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"tgstories/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeStore struct {
	records []domain.StoryRecord
	err     error
}

func (s *fakeStore) GetStories(context.Context) ([]domain.StoryRecord, error) {
	return s.records, s.err
}

var testRecords = []domain.StoryRecord{
	{UserID: 1001, StoryID: 1, Timestamp: "2024-05-01 12:00:00", Filename: "stories/1001_1.jpg"},
	{UserID: 2002, StoryID: 7, Timestamp: "2024-05-02 08:30:00", Filename: "stories/2002_7.mp4"},
	{UserID: 3003, StoryID: 2, Timestamp: "2024-05-03 23:59:59", Filename: "stories/3003_2,with,commas.jpg"},
}

func newTestExporter(t *testing.T, store Store) *Exporter {
	t.Helper()

	e := New(store, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return time.Date(2024, 5, 4, 9, 15, 0, 0, time.UTC) }

	return e
}

func expectedRows(records []domain.StoryRecord) [][]string {
	rows := [][]string{Header}
	for _, r := range records {
		rows = append(rows, []string{
			strconv.FormatInt(r.UserID, 10), strconv.FormatInt(r.StoryID, 10), r.Timestamp, r.Filename,
		})
	}
	return rows
}

func TestExportCSV(t *testing.T) {
	e := newTestExporter(t, &fakeStore{records: testRecords})

	path, err := e.Export(context.Background(), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.dir, "stories_20240504_091500.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	assert.Len(t, rows, len(testRecords)+1)
	assert.Equal(t, expectedRows(testRecords), rows)
}

func TestExportXLSX(t *testing.T) {
	e := newTestExporter(t, &fakeStore{records: testRecords})

	path, err := e.Export(context.Background(), FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(SheetName, excelize.Options{RawCellValue: true})
	require.NoError(t, err)

	assert.Len(t, rows, len(testRecords)+1)
	assert.Equal(t, expectedRows(testRecords), rows)
}

func TestExportEmptyStoreWritesHeaderOnly(t *testing.T) {
	e := newTestExporter(t, &fakeStore{})

	path, err := e.Export(context.Background(), FormatCSV)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "User ID,Story ID,Timestamp,Filename\n", string(data))
}

func TestExportNeverOverwrites(t *testing.T) {
	e := newTestExporter(t, &fakeStore{records: testRecords})

	existing := filepath.Join(e.dir, "stories_20240504_091500.csv")
	require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0o600))

	path, err := e.Export(context.Background(), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.dir, "stories_20240504_091500_1.csv"), path)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestExportTwiceInSameSecond(t *testing.T) {
	e := newTestExporter(t, &fakeStore{records: testRecords})

	var paths []string
	for range 3 {
		path, err := e.Export(context.Background(), FormatXLSX)
		require.NoError(t, err)
		paths = append(paths, path)
	}

	assert.Equal(t, []string{
		filepath.Join(e.dir, "stories_20240504_091500.xlsx"),
		filepath.Join(e.dir, "stories_20240504_091500_1.xlsx"),
		filepath.Join(e.dir, "stories_20240504_091500_2.xlsx"),
	}, paths)
}

func TestExportStoreError(t *testing.T) {
	e := newTestExporter(t, &fakeStore{err: errors.New("disk I/O error")})

	_, err := e.Export(context.Background(), FormatXLSX)
	assert.Error(t, err)

	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportUnknownFormat(t *testing.T) {
	e := newTestExporter(t, &fakeStore{})

	_, err := e.Export(context.Background(), Format("ods"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"xlsx", FormatXLSX, false},
		{" CSV ", FormatCSV, false},
		{"json", "", true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := ParseFormat(test.input)

			if test.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}
