// Package archive persists messages in SQLite alongside a contentless FTS5
// index that is kept 1:1 with the primary table.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrFullTextUnavailable means the SQLite build has no FTS5 module.
var ErrFullTextUnavailable = errors.New("sqlite build lacks the fts5 module")

// Options tunes how the store file is opened.
type Options struct {
	BusyTimeout time.Duration
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path. The database runs in WAL
// mode so external readers are not blocked while an ingest writes.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("archive: empty store path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive: create store dir: %w", err)
		}
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open store: %w", err)
	}
	s, err := OpenDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB wraps an already opened database and applies the schema.
func OpenDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		if isMissingFTS5(err) {
			return nil, fmt.Errorf("archive: %w: %v", ErrFullTextUnavailable, err)
		}
		return nil, fmt.Errorf("archive: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func isMissingFTS5(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such module: fts5")
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

// Batch is one write transaction. Rows inserted through it become visible,
// together with their index entries, only on Commit.
type Batch struct {
	tx        *sql.Tx
	insertMsg *sql.Stmt
	insertDoc *sql.Stmt
	insertFTS *sql.Stmt
	inserted  int
}

// Begin opens a write transaction.
func (s *Store) Begin(ctx context.Context) (*Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	b := &Batch{tx: tx}
	if b.insertMsg, err = tx.PrepareContext(ctx, `INSERT OR IGNORE INTO messages
		(message_id, canonical_thread_id, platform, account_id, ts, role, text, title, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare message insert: %w", err)
	}
	if b.insertDoc, err = tx.PrepareContext(ctx, `INSERT INTO messages_fts_docids (message_id) VALUES (?)`); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare docid insert: %w", err)
	}
	if b.insertFTS, err = tx.PrepareContext(ctx, `INSERT INTO messages_fts (rowid, text) VALUES (?, ?)`); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare index insert: %w", err)
	}
	return b, nil
}

// Insert adds m unless a message with the same id already exists. It reports
// whether a row was written; an existing id is not an error.
func (b *Batch) Insert(ctx context.Context, m Message) (bool, error) {
	res, err := b.insertMsg.ExecContext(ctx,
		m.MessageID,
		m.CanonicalThreadID,
		m.Platform,
		m.AccountID,
		m.TS,
		m.Role,
		m.Text,
		m.Title,
		m.SourceID,
	)
	if err != nil {
		return false, fmt.Errorf("insert message %s: %w", m.MessageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert message %s: %w", m.MessageID, err)
	}
	if n == 0 {
		return false, nil
	}

	// The docid row allocates the rowid; the index entry reuses it.
	res, err = b.insertDoc.ExecContext(ctx, m.MessageID)
	if err != nil {
		return false, fmt.Errorf("insert docid %s: %w", m.MessageID, err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("insert docid %s: %w", m.MessageID, err)
	}
	if _, err := b.insertFTS.ExecContext(ctx, rowid, m.Text); err != nil {
		return false, fmt.Errorf("index message %s: %w", m.MessageID, err)
	}
	b.inserted++
	return true, nil
}

// Inserted is the number of rows written in this transaction so far.
func (b *Batch) Inserted() int { return b.inserted }

func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction. It is safe to call after Commit.
func (b *Batch) Rollback() error {
	err := b.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Count returns the number of stored messages.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Stats reports row counts for the primary table, the index and the docid map.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByPlatform: map[string]int64{}}
	counts := []struct {
		dst   *int64
		query string
	}{
		{&st.Messages, `SELECT count(*) FROM messages`},
		{&st.IndexRows, `SELECT count(*) FROM messages_fts_docsize`},
		{&st.DocIDs, `SELECT count(*) FROM messages_fts_docids`},
		{&st.Threads, `SELECT count(DISTINCT canonical_thread_id) FROM messages`},
		{&st.Unindexed, `SELECT count(*) FROM messages m
			LEFT JOIN messages_fts_docids d ON d.message_id = m.message_id
			WHERE d.rowid IS NULL`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT platform, count(*) FROM messages GROUP BY platform ORDER BY platform`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats by platform: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var platform string
		var n int64
		if err := rows.Scan(&platform, &n); err != nil {
			return Stats{}, fmt.Errorf("stats by platform: %w", err)
		}
		st.ByPlatform[platform] = n
	}
	return st, rows.Err()
}

// SearchOptions narrows a full-text search.
type SearchOptions struct {
	Limit    int
	Platform string
	Account  string
}

// Search runs an FTS5 query over message text. Each whitespace-separated term
// is quoted, so user input cannot produce FTS syntax errors.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	match := quoteFTS(query)
	if match == "" {
		return nil, errors.New("search: empty query")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	q := `
		SELECT m.message_id, m.canonical_thread_id, m.platform, m.account_id, m.ts, m.role, m.text,
		       COALESCE(m.title, ''), m.source_id, messages_fts.rank
		FROM messages_fts
		JOIN messages_fts_docids d ON d.rowid = messages_fts.rowid
		JOIN messages m ON m.message_id = d.message_id
		WHERE messages_fts MATCH ?`
	args := []any{match}
	if opts.Platform != "" {
		q += " AND m.platform = ?"
		args = append(args, opts.Platform)
	}
	if opts.Account != "" {
		q += " AND m.account_id = ?"
		args = append(args, opts.Account)
	}
	q += " ORDER BY messages_fts.rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.MessageID, &r.CanonicalThreadID, &r.Platform, &r.AccountID, &r.TS,
			&r.Role, &r.Text, &r.Title, &r.SourceID, &r.Rank,
		); err != nil {
			return nil, fmt.Errorf("search scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func quoteFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}
