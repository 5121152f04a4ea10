package metrics

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Mode identifies which surface handled a prompt.
type Mode string

const (
	ModeBatch      Mode = "batch"
	ModeStream     Mode = "stream"
	ModeSearchOnly Mode = "search_only"
	ModeMCP        Mode = "mcp"
)

// Modes lists every tracked mode in display order.
var Modes = []Mode{ModeBatch, ModeStream, ModeSearchOnly, ModeMCP}

const dateLayout = "2006-01-02"

// DailyCount is one (mode, date) row of the counter table.
type DailyCount struct {
	Mode  Mode
	Date  string
	Count int64
}

// Store manages SQLite persistence for invocation counts.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns ~/.searchagent/stats.db.
func DefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".searchagent", "stats.db"), nil
}

// NewStore opens the store at DefaultDBPath.
func NewStore() (*Store, error) {
	dbPath, err := DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return NewStoreWithPath(dbPath)
}

// NewStoreWithPath opens or creates the database at dbPath, creating its
// parent directory when missing.
func NewStoreWithPath(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS invocation_counts (
			mode TEXT NOT NULL,
			date TEXT NOT NULL,
			count INTEGER DEFAULT 0,
			PRIMARY KEY (mode, date)
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Increment adds one to today's count for mode.
func (s *Store) Increment(mode Mode) error {
	today := s.today()

	upsertSQL := `
		INSERT INTO invocation_counts (mode, date, count)
		VALUES (?, ?, 1)
		ON CONFLICT(mode, date) DO UPDATE SET count = count + 1;
	`
	if _, err := s.db.Exec(upsertSQL, string(mode), today); err != nil {
		return fmt.Errorf("failed to increment count: %w", err)
	}
	return nil
}

// GetTotalByMode returns the cumulative count for mode across all dates.
func (s *Store) GetTotalByMode(mode Mode) (int64, error) {
	var total int64
	row := s.db.QueryRow(
		"SELECT COALESCE(SUM(count), 0) FROM invocation_counts WHERE mode = ?",
		string(mode),
	)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to get total for mode %s: %w", mode, err)
	}
	return total, nil
}

// GetAllTotals returns cumulative counts keyed by mode. Every known mode is
// present even when it has never been recorded.
func (s *Store) GetAllTotals() (map[Mode]int64, error) {
	result := make(map[Mode]int64, len(Modes))
	for _, mode := range Modes {
		result[mode] = 0
	}

	rows, err := s.db.Query(
		"SELECT mode, COALESCE(SUM(count), 0) FROM invocation_counts GROUP BY mode",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var modeStr string
		var total int64
		if err := rows.Scan(&modeStr, &total); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result[Mode(modeStr)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// GetCountByDate returns the count for mode on date (YYYY-MM-DD).
func (s *Store) GetCountByDate(mode Mode, date string) (int64, error) {
	var count int64
	row := s.db.QueryRow(
		"SELECT COALESCE(count, 0) FROM invocation_counts WHERE mode = ? AND date = ?",
		string(mode), date,
	)
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get count: %w", err)
	}
	return count, nil
}

// GetRecentDaily returns per-day rows for the last days days including
// today, newest first.
func (s *Store) GetRecentDaily(days int) ([]DailyCount, error) {
	if days <= 0 {
		return []DailyCount{}, nil
	}
	since := s.now().AddDate(0, 0, -(days - 1)).Format(dateLayout)

	rows, err := s.db.Query(
		"SELECT mode, date, count FROM invocation_counts WHERE date >= ? ORDER BY date DESC, mode ASC",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := []DailyCount{}
	for rows.Next() {
		var row DailyCount
		var modeStr string
		if err := rows.Scan(&modeStr, &row.Date, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row.Mode = Mode(modeStr)
		counts = append(counts, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

func (s *Store) today() string {
	return s.now().Format(dateLayout)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
