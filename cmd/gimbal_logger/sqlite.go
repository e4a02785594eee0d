package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS status_samples (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp      INTEGER NOT NULL,
	az_pos         REAL,
	el_pos         REAL,
	command_az_pos REAL,
	command_el_pos REAL,
	az_drive       REAL,
	el_drive       REAL,
	sensor_okay    INTEGER,
	signal         TEXT,
	fields         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_status_samples_timestamp ON status_samples(timestamp);
`

const insertSampleSQL = `
INSERT INTO status_samples
	(timestamp, az_pos, el_pos, command_az_pos, command_el_pos, az_drive, el_drive, sensor_okay, signal, fields)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type sqliteSink struct {
	db     *sql.DB
	insert *sql.Stmt
}

func openSqliteSink(path string) (*sqliteSink, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, "_journal_mode=WAL&_synchronous=NORMAL"))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := db.Exec(initSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	insert, err := db.Prepare(insertSampleSQL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	return &sqliteSink{db: db, insert: insert}, nil
}

func nullFloat(fields map[string]interface{}, key string) sql.NullFloat64 {
	v, ok := fields[key].(float64)
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func (s *sqliteSink) Write(t time.Time, fields map[string]interface{}) error {
	all, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshaling fields: %w", err)
	}
	var okay sql.NullBool
	if v, ok := fields["sensor_okay"].(bool); ok {
		okay = sql.NullBool{Bool: v, Valid: true}
	}
	var signal sql.NullString
	if v, ok := fields["signal"].(string); ok {
		signal = sql.NullString{String: v, Valid: true}
	}
	if _, err := s.insert.Exec(
		t.UnixNano(),
		nullFloat(fields, "az_pos"),
		nullFloat(fields, "el_pos"),
		nullFloat(fields, "command_az_pos"),
		nullFloat(fields, "command_el_pos"),
		nullFloat(fields, "az_drive"),
		nullFloat(fields, "el_drive"),
		okay,
		signal,
		string(all),
	); err != nil {
		return fmt.Errorf("inserting sample: %w", err)
	}
	return nil
}

func (s *sqliteSink) Close() error {
	s.insert.Close()
	return s.db.Close()
}
