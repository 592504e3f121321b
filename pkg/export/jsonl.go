package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JSONLSink writes one JSON record per line plus a metadata file next to it.
//
// Files are named <prefix>_<run_id>.jsonl and <prefix>_<run_id>.meta.json.
// Partial batches get a _partial suffix before the extension.
type JSONLSink struct {
	dir    string
	prefix string
}

// NewJSONLSink creates a file sink writing into dir.
func NewJSONLSink(dir, prefix string) (*JSONLSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	if prefix == "" {
		prefix = "listing"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONLSink{dir: dir, prefix: prefix}, nil
}

// Name implements Sink.
func (s *JSONLSink) Name() string {
	return "jsonl"
}

// Path returns the records file path for b.
func (s *JSONLSink) Path(b Batch) string {
	return filepath.Join(s.dir, s.base(b)+".jsonl")
}

// MetaPath returns the metadata file path for b.
func (s *JSONLSink) MetaPath(b Batch) string {
	return filepath.Join(s.dir, s.base(b)+".meta.json")
}

func (s *JSONLSink) base(b Batch) string {
	name := s.prefix + "_" + b.RunID
	if b.Partial {
		name += "_partial"
	}
	return name
}

// runMeta is the metadata file layout.
type runMeta struct {
	RunID       string    `json:"run_id"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Status      string    `json:"status"`
	Records     int       `json:"records"`
	LastPage    int       `json:"last_page"`
	TotalItems  int       `json:"total_items"`
	FailedPages []int     `json:"failed_pages"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
}

func metaOf(b Batch) runMeta {
	failed := b.FailedPages
	if failed == nil {
		failed = []int{}
	}
	return runMeta{
		RunID:       b.RunID,
		Endpoint:    b.Endpoint,
		Status:      b.Status(),
		Records:     len(b.Records),
		LastPage:    b.LastPage,
		TotalItems:  b.TotalItems,
		FailedPages: failed,
		StartedAt:   b.StartedAt,
		DurationMS:  b.Duration.Milliseconds(),
	}
}

// Export implements Sink. Both files are written to a temporary name first
// and renamed into place.
func (s *JSONLSink) Export(ctx context.Context, b Batch) (err error) {
	defer func() { observe(s.Name(), len(b.Records), err) }()

	if err := b.validate(); err != nil {
		return err
	}

	if err := writeAtomic(s.Path(b), func(w *bufio.Writer) error {
		var line bytes.Buffer
		for i, rec := range b.Records {
			if i%1000 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			line.Reset()
			if err := json.Compact(&line, rec); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			line.WriteByte('\n')
			if _, err := w.Write(line.Bytes()); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("write records: %w", err)
	}

	if err := writeAtomic(s.MetaPath(b), func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(metaOf(b))
	}); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}

	return nil
}

func writeAtomic(path string, fill func(w *bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := fill(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
