// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal persists the output lifecycle history in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/deckbridge/internal/persistence/sqlite"
)

const schemaVersion = 1

// DefaultRetain is the number of entries kept when no limit is configured.
const DefaultRetain = 10000

// Type classifies a history entry.
type Type string

const (
	TypeTransition Type = "transition"
	TypeCommand    Type = "command"
	TypeForcedStop Type = "forced_stop"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Type    Type      `json:"type"`
	Signal  string    `json:"signal,omitempty"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Command string    `json:"command,omitempty"`
	Code    *int64    `json:"code,omitempty"`
	Handle  string    `json:"handle,omitempty"`
}

// Recorder accepts history entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal closed")

// Journal is a SQLite-backed Recorder. Safe for concurrent use.
type Journal struct {
	db     *sql.DB
	retain int
}

// Open opens (and migrates) the journal database at path.
func Open(ctx context.Context, path string, retain int) (*Journal, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if retain <= 0 {
		retain = DefaultRetain
	}
	j := &Journal{db: db, retain: retain}
	if err := j.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration failed: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	current, err := sqlite.UserVersion(ctx, j.db)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at_ms INTEGER NOT NULL,
		kind TEXT NOT NULL,
		type TEXT NOT NULL,
		signal TEXT NOT NULL DEFAULT '',
		from_state TEXT NOT NULL DEFAULT '',
		to_state TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL DEFAULT '',
		code INTEGER,
		handle TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_history_kind ON history(kind, id);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Record appends e and trims the table to the retention limit.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var code sql.NullInt64
	if e.Code != nil {
		code = sql.NullInt64{Int64: *e.Code, Valid: true}
	}
	res, err := j.db.ExecContext(ctx, `
	INSERT INTO history (at_ms, kind, type, signal, from_state, to_state, command, code, handle)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.At.UnixMilli(), e.Kind, string(e.Type), e.Signal, e.From, e.To, e.Command, code, e.Handle,
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("journal: insert id: %w", err)
	}
	if id > int64(j.retain) {
		if _, err := j.db.ExecContext(ctx, "DELETE FROM history WHERE id <= ?", id-int64(j.retain)); err != nil {
			return fmt.Errorf("journal: trim: %w", err)
		}
	}
	return nil
}

// List returns up to limit entries, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
	SELECT id, at_ms, kind, type, signal, from_state, to_state, command, code, handle
	FROM history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e    Entry
			atMs int64
			typ  string
			code sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &atMs, &e.Kind, &typ, &e.Signal, &e.From, &e.To, &e.Command, &code, &e.Handle); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.At = time.UnixMilli(atMs).UTC()
		e.Type = Type(typ)
		if code.Valid {
			c := code.Int64
			e.Code = &c
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping verifies the database is reachable and structurally sound.
func (j *Journal) Ping(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("journal: ping: %w", err)
	}
	issues, err := sqlite.QuickCheck(ctx, j.db)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("journal: integrity check failed: %v", issues)
	}
	return nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
