package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// EmbeddingMetadata represents embedding metadata stored in the database.
type EmbeddingMetadata struct {
	PaperID      string
	ModelName    string
	IndexedAt    int64  // Unix timestamp
	AbstractHash string // SHA256 of the embedded text
}

// HashText returns the hex SHA256 used for staleness detection.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

const upsertEmbeddingMetadataSQL = `
	INSERT INTO embedding_metadata (paper_id, model_name, indexed_at, abstract_hash)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(paper_id) DO UPDATE SET
		model_name = excluded.model_name,
		indexed_at = excluded.indexed_at,
		abstract_hash = excluded.abstract_hash
`

// SaveEmbeddingMetadata saves or updates embedding metadata for a paper.
func (d *DB) SaveEmbeddingMetadata(meta EmbeddingMetadata) error {
	_, err := d.db.Exec(upsertEmbeddingMetadataSQL, meta.PaperID, meta.ModelName, meta.IndexedAt, meta.AbstractHash)
	return err
}

// SaveEmbeddingMetadataBatch records one builder batch in a single transaction.
func (d *DB) SaveEmbeddingMetadataBatch(metas []EmbeddingMetadata) error {
	if len(metas) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertEmbeddingMetadataSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, meta := range metas {
		if _, err := stmt.Exec(meta.PaperID, meta.ModelName, meta.IndexedAt, meta.AbstractHash); err != nil {
			return fmt.Errorf("saving metadata for %s: %w", meta.PaperID, err)
		}
	}
	return tx.Commit()
}

// GetEmbeddingMetadata retrieves embedding metadata for a paper.
func (d *DB) GetEmbeddingMetadata(paperID string) (*EmbeddingMetadata, error) {
	var meta EmbeddingMetadata
	err := d.db.QueryRow(`
		SELECT paper_id, model_name, indexed_at, abstract_hash
		FROM embedding_metadata
		WHERE paper_id = ?
	`, paperID).Scan(&meta.PaperID, &meta.ModelName, &meta.IndexedAt, &meta.AbstractHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// ClearEmbeddingMetadata removes all embedding metadata.
func (d *DB) ClearEmbeddingMetadata() error {
	_, err := d.db.Exec("DELETE FROM embedding_metadata")
	return err
}

// CountEmbeddingMetadata returns the number of papers with embedding metadata.
func (d *DB) CountEmbeddingMetadata() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM embedding_metadata").Scan(&count)
	return count, err
}

// CountPapersWithAbstract returns the number of papers that have abstracts.
func (d *DB) CountPapersWithAbstract(minLength int) (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM papers WHERE abstract IS NOT NULL AND LENGTH(abstract) >= ?", minLength).Scan(&count)
	return count, err
}

// ListStaleEmbeddings returns ids of papers with an abstract whose embedding
// is missing, was built by a different model, or covers different text.
// hashOf must compute the same hash the builder recorded.
func (d *DB) ListStaleEmbeddings(model string, hashOf func(title, abstract string) string) ([]string, error) {
	rows, err := d.db.Query(`
		SELECT p.id, p.title, p.abstract, m.model_name, m.abstract_hash
		FROM papers p
		LEFT JOIN embedding_metadata m ON m.paper_id = p.id
		WHERE p.abstract IS NOT NULL AND TRIM(p.abstract) != ''
		ORDER BY p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing embeddings: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id, title, abstract string
		var modelName, hash sql.NullString
		if err := rows.Scan(&id, &title, &abstract, &modelName, &hash); err != nil {
			return nil, err
		}
		if !modelName.Valid || modelName.String != model || hash.String != hashOf(title, abstract) {
			stale = append(stale, id)
		}
	}
	return stale, rows.Err()
}
