package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	metaJSONLHash = "jsonl_hash"
	metaLastSync  = "last_sync"
)

// ComputeJSONLHash computes a SHA256 hash of a JSONL file's contents.
// A missing file hashes like an empty one.
func ComputeJSONLHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256([]byte{})
			return hex.EncodeToString(h[:]), nil
		}
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (d *DB) getMeta(key string) (string, error) {
	var value sql.NullString
	err := d.db.QueryRow("SELECT value FROM _meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

func (d *DB) setMeta(key, value string) error {
	_, err := d.db.Exec(`INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// MarkSynced records that the database reflects the current contents of jsonlPath.
func (d *DB) MarkSynced(jsonlPath string) error {
	hash, err := ComputeJSONLHash(jsonlPath)
	if err != nil {
		return err
	}
	if err := d.setMeta(metaJSONLHash, hash); err != nil {
		return fmt.Errorf("storing hash: %w", err)
	}
	return d.setMeta(metaLastSync, time.Now().UTC().Format(time.RFC3339))
}

// IsStale reports whether jsonlPath changed since the last MarkSynced.
func (d *DB) IsStale(jsonlPath string) (bool, error) {
	current, err := ComputeJSONLHash(jsonlPath)
	if err != nil {
		return false, err
	}
	stored, err := d.getMeta(metaJSONLHash)
	if err != nil {
		return false, fmt.Errorf("reading stored hash: %w", err)
	}
	return stored != current, nil
}

// LastSync returns when the database was last synced, or the zero time.
func (d *DB) LastSync() (time.Time, error) {
	value, err := d.getMeta(metaLastSync)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// SyncFromJSONL rebuilds the paper tables when jsonlPath changed since the
// last sync. It reports whether a rebuild happened and the paper count loaded.
func (d *DB) SyncFromJSONL(jsonlPath string) (bool, int, error) {
	stale, err := d.IsStale(jsonlPath)
	if err != nil || !stale {
		return false, 0, err
	}
	n, err := d.RebuildFromJSONL(jsonlPath)
	if err != nil {
		return false, 0, err
	}
	return true, n, nil
}
