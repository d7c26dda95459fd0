package rag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ExportSink receives export records.
type ExportSink interface {
	WriteExport(rec *ExportRecord) error
}

// FileSink writes a record as indented JSON, atomically replacing Path.
type FileSink struct {
	Path string
}

// WriteExport implements ExportSink.
func (s FileSink) WriteExport(rec *ExportRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling export: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing export: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming export: %w", err)
	}
	return nil
}

func (s FileSink) String() string {
	return s.Path
}

// WriterSink writes a record as indented JSON to W.
type WriterSink struct {
	W io.Writer
}

// WriteExport implements ExportSink.
func (s WriterSink) WriteExport(rec *ExportRecord) error {
	enc := json.NewEncoder(s.W)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// ExportFileName returns a timestamped file name for an export.
func ExportFileName(t time.Time) string {
	return "conversation-" + t.UTC().Format("20060102-150405") + ".json"
}

// Export copies conv into a record and writes it to sink. The record is
// independent of conv: later changes, including Reset, do not affect it.
func (l *Loop) Export(conv *Conversation, sink ExportSink) (*ExportRecord, error) {
	if conv == nil {
		return nil, invalidInput("nil conversation")
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: no sink", ErrExport)
	}
	rec := conv.exportRecord(l.client.ModelName())
	rec.Timestamp = time.Now()

	if err := sink.WriteExport(rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	l.log.WithField("turns", rec.TurnCount).Debug("conversation exported")
	return rec, nil
}
