/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package callhistory persists terminal call outcomes in a local SQLite
// database for display in call logs and chat timelines. The store
// implements calling.Recorder.
package callhistory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/techstandakmr/callcore/calling"
)

// Store wraps the SQLite call-history database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the call-history database in the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	dbPath := filepath.Join(dir, "callhistory.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS calls (
			custom_id      TEXT PRIMARY KEY,
			caller         TEXT NOT NULL,
			callee         TEXT NOT NULL,
			call_type      TEXT NOT NULL,
			status         TEXT NOT NULL,
			calling_time   TEXT NOT NULL,
			ans_time       TEXT,
			ring_duration  TEXT,
			call_duration  TEXT,
			is_callee_busy INTEGER NOT NULL DEFAULT 0,
			missed_read    INTEGER NOT NULL DEFAULT 0,
			deleted_by     TEXT NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls(caller);
		CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls(callee);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record inserts or replaces the history entry for rec.CustomID. The
// per-user hidden set survives a replace so a terminal update cannot
// un-hide a record.
func (s *Store) Record(rec *calling.CallRecord) error {
	if rec == nil || rec.CustomID == "" {
		return fmt.Errorf("record requires a customID")
	}

	deletedBy, _ := json.Marshal(rec.DeletedByUsers)
	var ansTime interface{}
	if rec.AnsTime != nil {
		ansTime = rec.AnsTime.UTC().Format(time.RFC3339Nano)
	}
	busy := 0
	if rec.IsCalleeBusy {
		busy = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO calls
			(custom_id, caller, callee, call_type, status, calling_time,
			 ans_time, ring_duration, call_duration, is_callee_busy, deleted_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(custom_id) DO UPDATE SET
			status         = excluded.status,
			ans_time       = excluded.ans_time,
			ring_duration  = excluded.ring_duration,
			call_duration  = excluded.call_duration,
			is_callee_busy = excluded.is_callee_busy`,
		rec.CustomID, rec.Caller, rec.Callee, string(rec.CallType), string(rec.Status),
		rec.CallingTime.UTC().Format(time.RFC3339Nano),
		ansTime, rec.RingDuration, rec.CallDuration, busy, string(deletedBy),
	)
	return err
}

// Get returns the stored record for a call, or false if unknown.
func (s *Store) Get(customID string) (*calling.CallRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT custom_id, caller, callee, call_type, status, calling_time,
		       ans_time, ring_duration, call_duration, is_callee_busy, deleted_by
		FROM calls WHERE custom_id = ?`, customID)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// List returns the calls a user participated in, newest first, skipping
// records that user has hidden. limit <= 0 means no limit.
func (s *Store) List(userID string, limit int) ([]*calling.CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT custom_id, caller, callee, call_type, status, calling_time,
		       ans_time, ring_duration, call_duration, is_callee_busy, deleted_by
		FROM calls
		WHERE caller = ? OR callee = ?
		ORDER BY calling_time DESC`
	args := []interface{}{userID, userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []*calling.CallRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if rec.HiddenFor(userID) {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HideForUser adds the user to the record's hidden set. Terminal
// records stay otherwise immutable; hiding is the only permitted
// mutation after a call resolves.
func (s *Store) HideForUser(customID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deletedByJSON string
	err := s.db.QueryRow(`SELECT deleted_by FROM calls WHERE custom_id = ?`, customID).
		Scan(&deletedByJSON)
	if err != nil {
		return fmt.Errorf("call %s not found: %w", customID, err)
	}

	var deletedBy []string
	_ = json.Unmarshal([]byte(deletedByJSON), &deletedBy)
	for _, u := range deletedBy {
		if u == userID {
			return nil
		}
	}
	deletedBy = append(deletedBy, userID)
	updated, _ := json.Marshal(deletedBy)

	_, err = s.db.Exec(`UPDATE calls SET deleted_by = ? WHERE custom_id = ?`,
		string(updated), customID)
	return err
}

// MarkMissedRead flags every unread missed call the user received as
// read, clearing the missed-call badge. It returns how many records
// changed; calling it again is a no-op.
func (s *Store) MarkMissedRead(userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE calls SET missed_read = 1
		WHERE callee = ? AND status = ? AND missed_read = 0`,
		userID, string(calling.CallStatusMissed))
	if err != nil {
		return 0, fmt.Errorf("mark missed read: %w", err)
	}
	return res.RowsAffected()
}

// UnreadMissedCount returns the number of missed calls the user has not
// yet seen.
func (s *Store) UnreadMissedCount(userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM calls
		WHERE callee = ? AND status = ? AND missed_read = 0`,
		userID, string(calling.CallStatusMissed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread missed: %w", err)
	}
	return n, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*calling.CallRecord, error) {
	var rec calling.CallRecord
	var callType, status, callingTime string
	var ansTime, ringDuration, callDuration sql.NullString
	var busy int
	var deletedByJSON string

	if err := row.Scan(&rec.CustomID, &rec.Caller, &rec.Callee, &callType, &status,
		&callingTime, &ansTime, &ringDuration, &callDuration, &busy, &deletedByJSON); err != nil {
		return nil, err
	}

	rec.CallType = calling.CallType(callType)
	rec.Status = calling.CallStatus(status)
	rec.IsCalleeBusy = busy != 0
	rec.RingDuration = ringDuration.String
	rec.CallDuration = callDuration.String

	t, err := time.Parse(time.RFC3339Nano, callingTime)
	if err != nil {
		return nil, fmt.Errorf("corrupt calling_time for %s: %w", rec.CustomID, err)
	}
	rec.CallingTime = t
	if ansTime.Valid && ansTime.String != "" {
		at, err := time.Parse(time.RFC3339Nano, ansTime.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt ans_time for %s: %w", rec.CustomID, err)
		}
		rec.AnsTime = &at
	}
	_ = json.Unmarshal([]byte(deletedByJSON), &rec.DeletedByUsers)

	return &rec, nil
}
