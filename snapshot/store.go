// Package snapshot persists timestamped copies of one layout collection.
//
// Filenames are 14-digit UTC timestamps (yyyymmddhhmmss), so lexicographic
// filename order equals chronological order — latest-selection is a plain
// string comparison. A snapshot is written exactly once: creation uses
// O_EXCL and a name collision is a conflict, never an overwrite. Nothing
// in this package ever deletes a snapshot; the directory is an append-only
// history.
package snapshot

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hazyhaar/laywatch/layout"
)

const (
	nameFormat = "20060102150405"
	ext        = ".xml"
)

// ErrConflict is returned when the computed snapshot name already exists.
// Non-fatal: the caller skips persistence for the cycle and retries on the
// next one, which still sees the same prior snapshot.
var ErrConflict = errors.New("snapshot: file already exists")

var namePattern = regexp.MustCompile(`^\d{14}\.xml$`)

// Store reads and writes snapshots in one directory.
type Store struct {
	dir string
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for snapshot names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over dir. The directory is created on first write.
func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

// Latest returns the path of the newest snapshot, or "" when the directory
// does not exist or holds no snapshot files.
func (s *Store) Latest() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("snapshot: read dir %s: %w", s.dir, err)
	}

	var latest string
	for _, e := range entries {
		if e.IsDir() || !namePattern.MatchString(e.Name()) {
			continue
		}
		if e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", nil
	}
	return filepath.Join(s.dir, latest), nil
}

// List returns all snapshot filenames, ascending.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: read dir %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !namePattern.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Read parses a snapshot file into its collection and extracted mapping.
// Any failure here means "prior unreadable" to the caller.
func (s *Store) Read(ctx context.Context, path string) (*layout.Collection, *layout.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}

	doc, err := layout.ParseDocument(data)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: parse %s: %w", path, err)
	}

	col, err := doc.FirstCollection()
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %s: %w", path, err)
	}
	return col, layout.ExtractLayouts(col), nil
}

// Write persists the collection verbatim inside a minimal wrapper document
// annotated with the UTC save time, to a brand-new file named from the
// current UTC instant. Returns the created path, or ErrConflict when the
// second-resolution name is already taken.
func (s *Store) Write(ctx context.Context, col *layout.Collection) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: mkdir %s: %w", s.dir, err)
	}

	now := s.now().UTC()
	name := now.Format(nameFormat) + ext
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrConflict, name)
		}
		return "", fmt.Errorf("snapshot: create %s: %w", name, err)
	}

	var b bytes.Buffer
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, "<!-- saved %s -->\n", now.Format(time.RFC3339))
	b.WriteString("<snapshot>\n")
	b.Write(col.XML())
	b.WriteString("\n</snapshot>\n")

	if _, err := f.Write(b.Bytes()); err != nil {
		f.Close()
		return "", fmt.Errorf("snapshot: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("snapshot: close %s: %w", name, err)
	}
	return path, nil
}
