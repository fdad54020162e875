package storage

import (
	"errors"
	"log/slog"
	"sync"
)

// WriterRegistry hands out one JSONLWriter per site and stream, so each
// audited site gets its own directory.
type WriterRegistry struct {
	baseDir    string
	fileBase   string
	maxSizeMB  int
	bufferSize int

	// writers maps site -> stream -> writer, e.g. "example.com" -> "reports".
	writers map[string]map[string]*JSONLWriter
	mu      sync.RWMutex
}

func NewWriterRegistry(baseDir, fileBase string, bufferSize, maxSizeMB int) *WriterRegistry {
	return &WriterRegistry{
		baseDir:    baseDir,
		fileBase:   fileBase,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[string]map[string]*JSONLWriter),
	}
}

// Writer returns (or creates) the writer for site and stream.
func (r *WriterRegistry) Writer(site, stream string) *JSONLWriter {
	r.mu.RLock()
	if w, ok := r.writers[site][stream]; ok {
		r.mu.RUnlock()
		return w
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.writers[site][stream]; ok {
		return w
	}
	if r.writers[site] == nil {
		r.writers[site] = make(map[string]*JSONLWriter)
	}

	w := NewJSONLWriter(r.baseDir, site+"/"+stream, r.fileBase, r.bufferSize, r.maxSizeMB)
	r.writers[site][stream] = w
	slog.Info("Created new JSONL writer", "site", site, "stream", stream)
	return w
}

// Append writes record to the stream of the site that pageURL belongs to.
func (r *WriterRegistry) Append(pageURL, stream string, record any) error {
	site, err := SiteSegment(pageURL)
	if err != nil {
		return err
	}
	return r.Writer(site, stream).Write(record)
}

// Close closes all managed writers.
func (r *WriterRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for site, streams := range r.writers {
		for stream, w := range streams {
			if err := w.Close(); err != nil {
				slog.Error("Failed to close writer", "site", site, "stream", stream, "error", err)
				errs = append(errs, err)
			}
		}
	}
	r.writers = make(map[string]map[string]*JSONLWriter)
	return errors.Join(errs...)
}
