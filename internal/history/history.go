// Package history keeps an append-only log of committed presence toggles.
//
// The log is informational: the presence state file remains the source of
// truth, and a failed history write never affects a toggle.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"kiosk/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Entry is one recorded toggle.
type Entry struct {
	ID         int64
	Identifier string
	MemberID   string
	Action     string
	Source     string
	Day        string
	OccurredAt time.Time
	RequestID  string
}

// DayCount summarizes enters and exits for one day.
type DayCount struct {
	Day    string
	Enters int64
	Exits  int64
}

// Store is the SQLite-backed history log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlitedb.Open(ctx, path, sqlitedb.Schema{Name: "history", SQL: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordToggle appends an entry and returns its id.
func (s *Store) RecordToggle(ctx context.Context, e Entry) (int64, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	if e.Day == "" {
		e.Day = e.OccurredAt.Format("2006-01-02")
	}
	res, err := sqlitedb.Exec(ctx, s.db,
		`INSERT INTO presence_events (identifier, member_id, action, source, day, occurred_at, request_id)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Identifier, e.MemberID, e.Action, e.Source, e.Day,
		e.OccurredAt.UTC().Format(time.RFC3339Nano), nullableString(e.RequestID),
	)
	if err != nil {
		return 0, fmt.Errorf("record toggle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first. An empty memberID
// matches every member.
func (s *Store) Recent(ctx context.Context, limit int, memberID string) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, identifier, member_id, action, source, day, occurred_at, request_id FROM presence_events`
	args := []any{}
	if memberID = strings.TrimSpace(memberID); memberID != "" {
		query += ` WHERE member_id = ?`
		args = append(args, memberID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			occurred  string
			requestID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Identifier, &e.MemberID, &e.Action, &e.Source, &e.Day, &occurred, &requestID); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurred)
		e.RequestID = requestID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// DailyCounts returns per-day enter and exit totals for the last days days,
// newest first.
func (s *Store) DailyCounts(ctx context.Context, days int) ([]DayCount, error) {
	if days <= 0 {
		days = 7
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT day,
                SUM(CASE WHEN action = 'enter' THEN 1 ELSE 0 END),
                SUM(CASE WHEN action = 'exit' THEN 1 ELSE 0 END)
         FROM presence_events
         GROUP BY day
         ORDER BY day DESC
         LIMIT ?`, days)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	var counts []DayCount
	for rows.Next() {
		var c DayCount
		if err := rows.Scan(&c.Day, &c.Enters, &c.Exits); err != nil {
			return nil, fmt.Errorf("scan daily counts: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
