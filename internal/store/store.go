package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/scraper"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// Store keeps the verdict history
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath is where the history database lives unless configured
func DefaultPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// writes come from the loop and from workers
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", dbPath, err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema. Times are unix milliseconds.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS verdicts (
		correlation_id TEXT PRIMARY KEY,
		author TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		is_reply BOOLEAN NOT NULL DEFAULT 0,
		has_descendant BOOLEAN NOT NULL DEFAULT 0,
		image_count INTEGER NOT NULL DEFAULT 0,
		likes INTEGER NOT NULL DEFAULT 0,
		reposts INTEGER NOT NULL DEFAULT 0,
		replies INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		submitted_at INTEGER NOT NULL,
		decided_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_verdicts_submitted_at ON verdicts(submitted_at);
	CREATE INDEX IF NOT EXISTS idx_verdicts_category ON verdicts(category);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSubmission records a dispatched post. Re-submitting an id is a no-op.
func (s *Store) SaveSubmission(p types.NewPost) error {
	submitted := p.SubmittedAt
	if submitted.IsZero() {
		submitted = s.now()
	}
	m := p.Content.Metrics

	_, err := s.db.Exec(`
		INSERT INTO verdicts (correlation_id, author, text, is_reply, has_descendant,
			image_count, likes, reposts, replies, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(correlation_id) DO NOTHING
	`, p.CorrelationID, p.Content.Author, p.Content.Text, p.IsReply, p.HasDescendant,
		len(p.Content.Media.Images), scraper.ParseMetric(m.Likes), scraper.ParseMetric(m.Reposts),
		scraper.ParseMetric(m.Replies), submitted.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save submission %s: %w", p.CorrelationID, err)
	}
	return nil
}

// SaveVerdict records the outcome for a correlation id, creating the row
// when the submission was never stored
func (s *Store) SaveVerdict(r types.AnalysisResult) error {
	now := s.now().UnixMilli()
	_, err := s.db.Exec(`
		INSERT INTO verdicts (correlation_id, category, reason, error, submitted_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(correlation_id) DO UPDATE SET
			category = excluded.category,
			reason = excluded.reason,
			error = excluded.error,
			decided_at = excluded.decided_at
	`, r.CorrelationID, string(r.Category), r.Reason, r.Error, now, now)
	if err != nil {
		return fmt.Errorf("failed to save verdict %s: %w", r.CorrelationID, err)
	}
	return nil
}

// Get returns one record
func (s *Store) Get(correlationID string) (*Record, error) {
	rows, err := s.db.Query(selectRecords+` WHERE correlation_id = ?`, correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// ErrNotFound is returned by Get for unknown ids
var ErrNotFound = errors.New("verdict not found")

// Recent returns the newest records first
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(selectRecords+` ORDER BY submitted_at DESC, correlation_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent verdicts: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Stats summarises records submitted at or after since
func (s *Store) Stats(since time.Time) (Stats, error) {
	st := Stats{Since: since}
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN error = '' AND category = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error = '' AND category = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error = '' AND category = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN decided_at IS NULL THEN 1 ELSE 0 END), 0)
		FROM verdicts
		WHERE submitted_at >= ?
	`, types.Filtered, types.Allowed, types.Highlighted, since.UnixMilli()).Scan(
		&st.Total, &st.Filtered, &st.Allowed, &st.Highlighted, &st.Errors, &st.Pending,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	return st, nil
}

// Prune deletes records submitted before cutoff and returns how many went
func (s *Store) Prune(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM verdicts WHERE submitted_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune verdicts: %w", err)
	}
	return res.RowsAffected()
}

const selectRecords = `
	SELECT correlation_id, author, text, is_reply, has_descendant, image_count,
		likes, reposts, replies, category, reason, error, submitted_at, decided_at
	FROM verdicts`

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var category string
		var submitted int64
		var decided sql.NullInt64

		err := rows.Scan(
			&r.CorrelationID, &r.Author, &r.Text, &r.IsReply, &r.HasDescendant, &r.ImageCount,
			&r.Likes, &r.Reposts, &r.Replies, &category, &r.Reason, &r.Error, &submitted, &decided,
		)
		if err != nil {
			return nil, err
		}

		r.Category = types.Category(category)
		r.SubmittedAt = time.UnixMilli(submitted)
		if decided.Valid {
			t := time.UnixMilli(decided.Int64)
			r.DecidedAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
