package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLitePrefStore хранит предпочтения в локальном файле SQLite.
// Подходит для одиночного сервера без внешней базы.
type SQLitePrefStore struct {
	db *sql.DB
}

// NewSQLitePrefStore открывает (или создаёт) файл базы
func NewSQLitePrefStore(ctx context.Context, path string) (*SQLitePrefStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS player_mappings (
			player     TEXT PRIMARY KEY,
			mapping    TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite init: %w", err)
		}
	}
	return &SQLitePrefStore{db: db}, nil
}

// SaveMapping запоминает маппинг игрока
func (r *SQLitePrefStore) SaveMapping(ctx context.Context, player, mapping string) error {
	if err := validatePref(player, mapping); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO player_mappings (player, mapping, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(player) DO UPDATE SET mapping = excluded.mapping, updated_at = excluded.updated_at
	`, prefKey(player), mapping)
	if err != nil {
		return fmt.Errorf("sqlite save %s: %w", player, err)
	}
	return nil
}

// LoadMapping возвращает сохранённый маппинг
func (r *SQLitePrefStore) LoadMapping(ctx context.Context, player string) (string, bool, error) {
	var mapping string
	err := r.db.QueryRowContext(ctx,
		"SELECT mapping FROM player_mappings WHERE player = ?", prefKey(player)).Scan(&mapping)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite load %s: %w", player, err)
	}
	return mapping, true, nil
}

// Delete забывает выбор игрока
func (r *SQLitePrefStore) Delete(ctx context.Context, player string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM player_mappings WHERE player = ?", prefKey(player))
	return err
}

// Close закрывает базу
func (r *SQLitePrefStore) Close() error {
	return r.db.Close()
}
