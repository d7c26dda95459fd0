package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsen/paperchat/internal/paper"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// selectPaperFields contains the standard field list for SELECT queries.
const selectPaperFields = `id, uid, title, abstract, topic, keywords_json,
	decision, session, eventtype, poster_position, room,
	starttime, endtime, paper_url, virtual_url, conference, year`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			uid TEXT,
			title TEXT NOT NULL,
			abstract TEXT,
			topic TEXT,
			keywords_json TEXT,
			decision TEXT,
			session TEXT,
			eventtype TEXT,
			poster_position TEXT,
			room TEXT,
			starttime TEXT,
			endtime TEXT,
			paper_url TEXT,
			virtual_url TEXT,
			conference TEXT NOT NULL,
			year INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_papers_session ON papers(session);
		CREATE INDEX IF NOT EXISTS idx_papers_topic ON papers(topic);
		CREATE INDEX IF NOT EXISTS idx_papers_eventtype ON papers(eventtype);

		-- Authors keep their listed order via position
		CREATE TABLE IF NOT EXISTS paper_authors (
			paper_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			institution TEXT,
			PRIMARY KEY (paper_id, position)
		);

		-- Full-text search virtual table (standalone, not external content)
		CREATE VIRTUAL TABLE IF NOT EXISTS papers_fts USING fts5(
			id,
			title,
			abstract,
			authors_text,
			keywords_text
		);

		-- Embedding metadata for semantic index staleness detection
		CREATE TABLE IF NOT EXISTS embedding_metadata (
			paper_id TEXT PRIMARY KEY,
			model_name TEXT NOT NULL,
			indexed_at INTEGER NOT NULL,
			abstract_hash TEXT NOT NULL
		);

		-- Sync bookkeeping (jsonl_hash, last_sync)
		CREATE TABLE IF NOT EXISTS _meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);
	`

	_, err := db.Exec(schema)
	return err
}

// UpsertPapers inserts or replaces papers in a single transaction.
// Author rows and full-text entries are replaced along with the paper.
func (d *DB) UpsertPapers(papers []paper.Paper) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := insertPapers(tx, papers)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing papers: %w", err)
	}
	return n, nil
}

// RebuildFromJSONL clears the paper tables and rebuilds them from a JSONL file.
func (d *DB) RebuildFromJSONL(jsonlPath string) (int, error) {
	papers, err := ReadAll(jsonlPath)
	if err != nil {
		return 0, fmt.Errorf("reading JSONL: %w", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"papers", "paper_authors", "papers_fts"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return 0, fmt.Errorf("clearing %s table: %w", table, err)
		}
	}

	n, err := insertPapers(tx, papers)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	if err := d.MarkSynced(jsonlPath); err != nil {
		return 0, fmt.Errorf("recording sync: %w", err)
	}
	return n, nil
}

func insertPapers(tx *sql.Tx, papers []paper.Paper) (int, error) {
	papersStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO papers (
			id, uid, title, abstract, topic, keywords_json,
			decision, session, eventtype, poster_position, room,
			starttime, endtime, paper_url, virtual_url, conference, year
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing papers insert: %w", err)
	}
	defer papersStmt.Close()

	authorsStmt, err := tx.Prepare(`
		INSERT INTO paper_authors (paper_id, position, name, institution)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing authors insert: %w", err)
	}
	defer authorsStmt.Close()

	ftsStmt, err := tx.Prepare(`
		INSERT INTO papers_fts (id, title, abstract, authors_text, keywords_text)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsStmt.Close()

	for _, p := range papers {
		if p.ID == "" {
			return 0, fmt.Errorf("paper %q has no id", p.Title)
		}

		var keywordsJSON []byte
		if len(p.Keywords) > 0 {
			keywordsJSON, err = json.Marshal(p.Keywords)
			if err != nil {
				return 0, fmt.Errorf("marshaling keywords for %s: %w", p.ID, err)
			}
		}

		_, err = papersStmt.Exec(
			p.ID, nullableStringValue(p.UID), p.Title, nullableStringValue(p.Abstract),
			nullableStringValue(p.Topic), nullableString(keywordsJSON),
			nullableStringValue(p.Decision), nullableStringValue(p.Session),
			nullableStringValue(p.EventType), nullableStringValue(p.PosterPosition),
			nullableStringValue(p.Room), nullableStringValue(p.StartTime),
			nullableStringValue(p.EndTime), nullableStringValue(p.PaperURL),
			nullableStringValue(p.VirtualURL), p.Conference, p.Year,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting paper %s: %w", p.ID, err)
		}

		if _, err := tx.Exec("DELETE FROM paper_authors WHERE paper_id = ?", p.ID); err != nil {
			return 0, fmt.Errorf("clearing authors for %s: %w", p.ID, err)
		}
		for i, a := range p.Authors {
			if _, err := authorsStmt.Exec(p.ID, i, a.Name, nullableStringValue(a.Institution)); err != nil {
				return 0, fmt.Errorf("inserting author for %s: %w", p.ID, err)
			}
		}

		if _, err := tx.Exec("DELETE FROM papers_fts WHERE id = ?", p.ID); err != nil {
			return 0, fmt.Errorf("clearing fts for %s: %w", p.ID, err)
		}
		_, err = ftsStmt.Exec(p.ID, p.Title, p.Abstract,
			strings.Join(p.AuthorNames(), ", "), strings.Join(p.Keywords, ", "))
		if err != nil {
			return 0, fmt.Errorf("inserting fts for %s: %w", p.ID, err)
		}
	}

	return len(papers), nil
}

// GetByID retrieves a paper by its ID. Returns nil, nil when not found.
func (d *DB) GetByID(id string) (*paper.Paper, error) {
	row := d.db.QueryRow(`SELECT `+selectPaperFields+` FROM papers WHERE id = ?`, id)
	p, err := scanPaper(row)
	if err != nil || p == nil {
		return nil, err
	}
	if err := d.attachAuthors([]*paper.Paper{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByIDs retrieves papers in the order of ids.
// Unknown ids are omitted from the result without error.
func (d *DB) GetByIDs(ids []string) ([]paper.Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(ids)
	rows, err := d.db.Query(`SELECT `+selectPaperFields+` FROM papers WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching papers: %w", err)
	}
	defer rows.Close()

	found, err := d.scanWithAuthors(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]paper.Paper, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	result := make([]paper.Paper, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			result = append(result, p)
			delete(byID, id) // duplicate ids yield one paper
		}
	}
	return result, nil
}

// SearchByKeyword performs a full-text search over title, abstract, authors
// and keywords, restricted by filter. Results are ordered by FTS rank.
func (d *DB) SearchByKeyword(query string, filter paper.Filter, limit int) ([]paper.Paper, error) {
	ftsQuery := prepareFTSQuery(query)
	if ftsQuery == "" {
		return d.Filter(filter, limit)
	}

	q := `SELECT ` + prefixFields("p") + `
		FROM papers_fts JOIN papers p ON p.id = papers_fts.id
		WHERE papers_fts MATCH ?`
	args := []interface{}{ftsQuery}

	where, filterArgs := filterClause("p", filter)
	q += where
	args = append(args, filterArgs...)

	q += " ORDER BY papers_fts.rank"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	return d.scanWithAuthors(rows)
}

// Filter returns papers matching filter, ordered by id.
func (d *DB) Filter(filter paper.Filter, limit int) ([]paper.Paper, error) {
	q := `SELECT ` + prefixFields("p") + ` FROM papers p WHERE 1=1`
	where, args := filterClause("p", filter)
	q += where + " ORDER BY p.id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("filtering papers: %w", err)
	}
	defer rows.Close()

	return d.scanWithAuthors(rows)
}

// ListAll returns all papers, optionally limited.
func (d *DB) ListAll(limit int) ([]paper.Paper, error) {
	return d.Filter(paper.Filter{}, limit)
}

// Count returns the total number of papers.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM papers").Scan(&count)
	return count, err
}

// FilterOptions lists the distinct metadata values present in the store.
type FilterOptions struct {
	Sessions   []string `json:"sessions"`
	Topics     []string `json:"topics"`
	EventTypes []string `json:"eventtypes"`
}

// DistinctValues returns the sorted distinct sessions, topics and event types.
func (d *DB) DistinctValues() (*FilterOptions, error) {
	var opts FilterOptions
	for _, col := range []struct {
		name string
		dst  *[]string
	}{
		{"session", &opts.Sessions},
		{"topic", &opts.Topics},
		{"eventtype", &opts.EventTypes},
	} {
		values, err := d.distinct(col.name)
		if err != nil {
			return nil, err
		}
		*col.dst = values
	}
	return &opts, nil
}

func (d *DB) distinct(column string) ([]string, error) {
	rows, err := d.db.Query(`SELECT DISTINCT ` + column + ` FROM papers
		WHERE ` + column + ` IS NOT NULL AND ` + column + ` != ''
		ORDER BY ` + column)
	if err != nil {
		return nil, fmt.Errorf("listing %s values: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// filterClause renders a Filter as AND-ed SQL conditions on the given table alias.
// Values within a dimension are OR-ed; comparison is case-insensitive.
func filterClause(alias string, filter paper.Filter) (string, []interface{}) {
	var clause strings.Builder
	var args []interface{}
	filter = filter.Normalize()

	for _, dim := range []struct {
		column string
		values []string
	}{
		{"session", filter.Sessions},
		{"topic", filter.Topics},
		{"eventtype", filter.EventTypes},
	} {
		if len(dim.values) == 0 {
			continue
		}
		lowered := make([]string, len(dim.values))
		for i, v := range dim.values {
			lowered[i] = strings.ToLower(v)
		}
		placeholders, inArgs := inClause(lowered)
		fmt.Fprintf(&clause, " AND LOWER(%s.%s) IN (%s)", alias, dim.column, placeholders)
		args = append(args, inArgs...)
	}
	return clause.String(), args
}

func inClause(values []string) (string, []interface{}) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}

func prefixFields(alias string) string {
	fields := strings.Split(selectPaperFields, ",")
	for i, f := range fields {
		fields[i] = alias + "." + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}

// attachAuthors loads ordered author lists for the given papers.
func (d *DB) attachAuthors(papers []*paper.Paper) error {
	if len(papers) == 0 {
		return nil
	}

	ids := make([]string, len(papers))
	byID := make(map[string]*paper.Paper, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	placeholders, args := inClause(ids)
	rows, err := d.db.Query(`SELECT paper_id, name, institution FROM paper_authors
		WHERE paper_id IN (`+placeholders+`) ORDER BY paper_id, position`, args...)
	if err != nil {
		return fmt.Errorf("fetching authors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		var institution sql.NullString
		if err := rows.Scan(&id, &name, &institution); err != nil {
			return err
		}
		if p, ok := byID[id]; ok {
			p.Authors = append(p.Authors, paper.Author{Name: name, Institution: institution.String})
		}
	}
	return rows.Err()
}

func (d *DB) scanWithAuthors(rows *sql.Rows) ([]paper.Paper, error) {
	papers, err := scanPapers(rows)
	if err != nil {
		return nil, err
	}
	rows.Close() // release the single connection before the author query

	ptrs := make([]*paper.Paper, len(papers))
	for i := range papers {
		ptrs[i] = &papers[i]
	}
	if err := d.attachAuthors(ptrs); err != nil {
		return nil, err
	}
	return papers, nil
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPaper(s scanner) (*paper.Paper, error) {
	var p paper.Paper
	var uid, abstract, topic, keywordsJSON, decision, session, eventType sql.NullString
	var posterPosition, room, startTime, endTime, paperURL, virtualURL sql.NullString

	err := s.Scan(
		&p.ID, &uid, &p.Title, &abstract, &topic, &keywordsJSON,
		&decision, &session, &eventType, &posterPosition, &room,
		&startTime, &endTime, &paperURL, &virtualURL, &p.Conference, &p.Year,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	p.UID = uid.String
	p.Abstract = abstract.String
	p.Topic = topic.String
	p.Decision = decision.String
	p.Session = session.String
	p.EventType = eventType.String
	p.PosterPosition = posterPosition.String
	p.Room = room.String
	p.StartTime = startTime.String
	p.EndTime = endTime.String
	p.PaperURL = paperURL.String
	p.VirtualURL = virtualURL.String

	if keywordsJSON.Valid && keywordsJSON.String != "" {
		if err := json.Unmarshal([]byte(keywordsJSON.String), &p.Keywords); err != nil {
			return nil, fmt.Errorf("parsing keywords JSON for %s: %w", p.ID, err)
		}
	}

	return &p, nil
}

func scanPapers(rows *sql.Rows) ([]paper.Paper, error) {
	var papers []paper.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		if p != nil {
			papers = append(papers, *p)
		}
	}
	return papers, rows.Err()
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// prepareFTSQuery turns free text into an FTS5 query.
// Each word becomes a quoted prefix term so punctuation can't break the syntax.
func prepareFTSQuery(query string) string {
	var terms []string
	for _, word := range strings.Fields(query) {
		word = strings.Trim(word, "\"'.,;:!?()[]{}")
		if word == "" {
			continue
		}
		escaped := strings.ReplaceAll(word, "\"", "\"\"")
		terms = append(terms, "\""+escaped+"\"*")
	}
	return strings.Join(terms, " ")
}
