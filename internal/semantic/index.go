package semantic

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Errors returned by semantic index operations.
var (
	ErrIndexNotFound      = errors.New("semantic index not found")
	ErrPaperNotIndexed    = errors.New("paper not in semantic index")
	ErrUnsupportedVersion = errors.New("unsupported index version")
)

// CurrentIndexVersion is the format version for compatibility checking.
// Increment this when making breaking changes to the index format.
// Version 2 added per-entry filter metadata.
const CurrentIndexVersion = 2

// NewSemanticIndex creates a new empty semantic index.
// A dimensions of zero is fixed by the first embedding added.
func NewSemanticIndex(modelName string, dimensions int) *SemanticIndex {
	now := time.Now()
	return &SemanticIndex{
		Version:    CurrentIndexVersion,
		ModelName:  modelName,
		Dimensions: dimensions,
		CreatedAt:  now,
		UpdatedAt:  now,
		Entries:    make(map[string]Entry),
	}
}

// AddEmbedding adds or replaces a paper entry.
// The PaperCount field is automatically updated to reflect the current number of entries.
func (idx *SemanticIndex) AddEmbedding(paperID string, entry Entry) error {
	if paperID == "" {
		return fmt.Errorf("empty paper id")
	}
	if len(entry.Vector) == 0 {
		return fmt.Errorf("empty embedding for %s", paperID)
	}
	if idx.Dimensions == 0 {
		idx.Dimensions = len(entry.Vector)
	}
	if len(entry.Vector) != idx.Dimensions {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(entry.Vector), idx.Dimensions)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	idx.Entries[paperID] = entry
	idx.PaperCount = len(idx.Entries)
	idx.UpdatedAt = time.Now()
	return nil
}

// Reset removes every entry, keeping the model metadata.
func (idx *SemanticIndex) Reset() {
	idx.Entries = make(map[string]Entry)
	idx.PaperCount = 0
	idx.UpdatedAt = time.Now()
}

// HasPaper checks if a paper is in the index.
func (idx *SemanticIndex) HasPaper(paperID string) bool {
	_, exists := idx.Entries[paperID]
	return exists
}

// Save persists the semantic index to path using GOB encoding.
func (idx *SemanticIndex) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Write to a temp file first, then rename for atomicity
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(idx); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding index: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// Load reads the semantic index from path.
// Returns ErrUnsupportedVersion if the index was created with an incompatible format.
func Load(path string) (*SemanticIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	var idx SemanticIndex
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&idx); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}

	if idx.Version != CurrentIndexVersion {
		return nil, fmt.Errorf("%w: got %d, want %d (rebuild with 'paperchat index build')",
			ErrUnsupportedVersion, idx.Version, CurrentIndexVersion)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}

	return &idx, nil
}

// IndexSize returns the size of the index file in bytes.
func IndexSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrIndexNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// Exists checks if the semantic index file exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
