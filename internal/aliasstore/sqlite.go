package aliasstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	k TEXT NOT NULL UNIQUE ON CONFLICT REPLACE,
	v TEXT NOT NULL,
	lt INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ltidx ON kv (lt);
`

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(dsn string, createIfNotExist bool) (Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY
	if createIfNotExist {
		if _, err := db.Exec(sqliteSchema); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Read(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ? AND lt > ?", key, time.Now().Unix()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *sqliteStore) Write(ctx context.Context, key, value string, lifetime time.Duration) error {
	expiry := time.Now().Add(lifetime).Unix()
	_, err := s.db.ExecContext(ctx, "INSERT INTO kv (k, v, lt) VALUES (?, ?, ?)", key, value, expiry)
	return err
}

func (s *sqliteStore) Expire(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE lt <= ?", time.Now().Unix())
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
