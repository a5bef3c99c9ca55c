package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vea/internal/domain"

	jsoniter "github.com/json-iterator/go"
)

const (
	DateKeyLayout = "2006-01-02"
	fileSuffix    = "-news.json"
	dirPerm       = 0o755
	filePerm      = 0o644
)

//nolint:gochecknoglobals // frozen config is immutable
var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Record is the on-disk shape of one entry. Published is null when unknown.
type Record struct {
	Source    string  `json:"source"`
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	Link      string  `json:"link"`
	Published *string `json:"published"`
}

type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

func Path(outputDir string, dateKey string) string {
	return filepath.Join(outputDir, dateKey+fileSuffix)
}

func ToRecords(entries []domain.Entry) []Record {
	records := make([]Record, 0, len(entries))

	for _, e := range entries {
		r := Record{
			Source:  e.Source,
			Title:   e.Title,
			Summary: e.Summary,
			Link:    e.Link,
		}

		if e.Published != nil {
			published := e.Published.UTC().Format(time.RFC3339)
			r.Published = &published
		}

		records = append(records, r)
	}

	return records
}

// Write stores entries as a JSON array at Path(outputDir, dateKey), replacing
// any earlier file for the same day. The file is written to a temporary name
// and renamed into place, so readers never observe partial JSON.
func Write(entries []domain.Entry, outputDir string, dateKey string) (string, error) {
	path := Path(outputDir, dateKey)

	if _, err := time.Parse(DateKeyLayout, dateKey); err != nil {
		return path, &WriteError{Path: path, Err: fmt.Errorf("invalid date key %q: %w", dateKey, err)}
	}

	data, err := json.MarshalIndent(ToRecords(entries), "", "  ")
	if err != nil {
		return path, &WriteError{Path: path, Err: fmt.Errorf("marshal entries: %w", err)}
	}
	data = append(data, '\n')

	if err = os.MkdirAll(outputDir, dirPerm); err != nil {
		return path, &WriteError{Path: path, Err: fmt.Errorf("create output directory: %w", err)}
	}

	if err = writeFileAtomic(path, data); err != nil {
		return path, &WriteError{Path: path, Err: err}
	}

	return path, nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			err = errors.Join(err, removeIfExists(tmpPath))
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return errors.Join(fmt.Errorf("write temp file: %w", err), tmp.Close())
	}

	if err = tmp.Sync(); err != nil {
		return errors.Join(fmt.Errorf("sync temp file: %w", err), tmp.Close())
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err = os.Chmod(tmpPath, filePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp file: %w", err)
	}

	return nil
}
