package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tgstories/internal/domain"

	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"

	SheetName = "Stories"

	fileTimeLayout  = "20060102_150405"
	maxNameAttempts = 1000
)

var (
	ErrUnknownFormat = errors.New("unknown export format")

	Header = []string{"User ID", "Story ID", "Timestamp", "Filename"}
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatXLSX, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

type Store interface {
	GetStories(ctx context.Context) ([]domain.StoryRecord, error)
}

type Exporter struct {
	store Store
	dir   string
	now   func() time.Time
	log   *slog.Logger
}

func New(store Store, dir string, log *slog.Logger) *Exporter {
	return &Exporter{
		store: store,
		dir:   dir,
		now:   time.Now,
		log:   log,
	}
}

// Export writes every record to a new timestamped file and returns its path.
// An existing file is never overwritten.
func (e *Exporter) Export(ctx context.Context, format Format) (string, error) {
	records, err := e.store.GetStories(ctx)
	if err != nil {
		return "", fmt.Errorf("get stories: %w", err)
	}

	if err = os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	var write func(io.Writer, []domain.StoryRecord) error
	switch format {
	case FormatXLSX:
		write = writeXLSX
	case FormatCSV:
		write = writeCSV
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	f, path, err := e.createFile(format)
	if err != nil {
		return "", err
	}

	if err = write(f, records); err != nil {
		_ = f.Close()
		if removeErr := os.Remove(path); removeErr != nil {
			e.log.WarnContext(ctx, "Failed to remove incomplete export",
				"error", removeErr,
				"path", path)
		}

		return "", fmt.Errorf("write %s export: %w", format, err)
	}

	if err = f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}

	e.log.InfoContext(ctx, "Stories are exported",
		"path", path,
		"format", string(format),
		"rowCount", len(records))

	return path, nil
}

// createFile picks stories_<time>.<ext>, adding _1, _2, ... while the name is taken.
func (e *Exporter) createFile(format Format) (*os.File, string, error) {
	base := "stories_" + e.now().Format(fileTimeLayout)

	for i := range maxNameAttempts {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		path := filepath.Join(e.dir, name+"."+string(format))

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create export file: %w", err)
		}
	}

	return nil, "", fmt.Errorf("create export file: no free name for %s after %d attempts", base, maxNameAttempts)
}

func writeCSV(w io.Writer, records []domain.StoryRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.UserID, 10),
			strconv.FormatInt(r.StoryID, 10),
			r.Timestamp,
			r.Filename,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}

func writeXLSX(w io.Writer, records []domain.StoryRecord) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	if err = f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}

	if err = sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		cell, cellErr := excelize.CoordinatesToCellName(1, i+2)
		if cellErr != nil {
			return fmt.Errorf("cell name: %w", cellErr)
		}

		if err = sw.SetRow(cell, []any{r.UserID, r.StoryID, r.Timestamp, r.Filename}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	if err = sw.Flush(); err != nil {
		return fmt.Errorf("flush stream writer: %w", err)
	}

	if err = f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	return nil
}
