// Package storage handles paper persistence in JSONL and SQLite formats.
//
// papers.jsonl is the source of truth; the SQLite database is a query cache
// that can be rebuilt from it at any time.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/matsen/paperchat/internal/paper"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// ReadAll reads all papers from a JSONL file.
// A missing file yields an empty slice.
func ReadAll(path string) ([]paper.Paper, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening papers file: %w", err)
	}
	defer f.Close()

	var papers []paper.Paper
	scanner := bufio.NewScanner(f)

	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var p paper.Paper
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		papers = append(papers, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading papers file: %w", err)
	}

	return papers, nil
}

// WriteAll writes all papers to a JSONL file, replacing existing content.
// The file is written to a temporary sibling and renamed into place.
func WriteAll(path string, papers []paper.Paper) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".papers-*.jsonl")
	if err != nil {
		return fmt.Errorf("creating papers file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for i, p := range papers {
		data, err := json.Marshal(p)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("encoding paper %d: %w", i, err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing papers: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing papers file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing papers file: %w", err)
	}
	return nil
}

// FindByID searches for a paper by ID.
func FindByID(papers []paper.Paper, id string) (int, bool) {
	for i, p := range papers {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

// MergeResult counts the outcome of Merge.
type MergeResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// Merge combines incoming papers into existing ones keyed by ID.
// Incoming records replace existing records with the same ID.
// The result is sorted by ID so repeated downloads produce stable files.
func Merge(existing, incoming []paper.Paper) ([]paper.Paper, MergeResult) {
	byID := make(map[string]paper.Paper, len(existing)+len(incoming))
	for _, p := range existing {
		byID[p.ID] = p
	}

	var result MergeResult
	for _, p := range incoming {
		if _, ok := byID[p.ID]; ok {
			result.Updated++
		} else {
			result.Added++
		}
		byID[p.ID] = p
	}

	merged := make([]paper.Paper, 0, len(byID))
	for _, p := range byID {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })

	result.Total = len(merged)
	return merged, result
}
