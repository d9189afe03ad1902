// Package storage persists flat records as newline-delimited JSON, either on
// the local filesystem or in S3 object storage.
//
// Crash consistency differs by backend: a local write interrupted by a
// process crash can leave a truncated file, while an S3 put is atomic at
// object granularity and the last successful put wins. Neither backend keeps
// history; re-saving a name overwrites the previous content.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/knowthefacts/quality-export/pkg/flatten"
)

// Saver persists a batch of records under a relative name and returns the
// resolved location.
type Saver interface {
	Save(ctx context.Context, records []flatten.Record, name string) (string, error)
}

// WriteError indicates a failed storage write. It aborts the whole run.
type WriteError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("storage write failed (name %s): %v", e.Name, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// encodeRecords renders records as NDJSON. encoding/json emits map keys in
// sorted order, so identical input yields byte-identical output.
func encodeRecords(records []flatten.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
	}
	return buf.Bytes(), nil
}
