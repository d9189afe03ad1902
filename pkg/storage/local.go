package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knowthefacts/quality-export/pkg/flatten"
)

// Local writes NDJSON files under a base directory, creating parent
// directories as needed and overwriting existing files.
type Local struct {
	dir    string
	logger zerolog.Logger
}

// NewLocal creates a local-filesystem saver rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{
		dir:    dir,
		logger: log.With().Str("component", "local-storage").Logger(),
	}
}

// Save writes the records to dir/name and returns the absolute path.
func (l *Local) Save(ctx context.Context, records []flatten.Record, name string) (string, error) {
	body, err := encodeRecords(records)
	if err != nil {
		return "", &WriteError{Name: name, Err: err}
	}

	path := filepath.Join(l.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &WriteError{Name: name, Err: err}
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", &WriteError{Name: name, Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	l.logger.Debug().
		Str("location", abs).
		Int("records", len(records)).
		Msg("Wrote local file")

	return abs, nil
}
