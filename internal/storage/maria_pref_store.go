package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MariaPrefStore хранит предпочтения в MariaDB/MySQL, таблица player_mappings
type MariaPrefStore struct {
	db *sql.DB
}

// NewMariaPrefStore открывает соединение и создаёт таблицу при необходимости.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaPrefStore(ctx context.Context, dsn string) (*MariaPrefStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	store := &MariaPrefStore{db: db}
	if err := store.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return store, nil
}

func (r *MariaPrefStore) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS player_mappings (
			player     VARCHAR(64) PRIMARY KEY,
			mapping    VARCHAR(64) NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы player_mappings: %w", err)
	}
	return nil
}

// SaveMapping использует INSERT ... ON DUPLICATE KEY UPDATE
func (r *MariaPrefStore) SaveMapping(ctx context.Context, player, mapping string) error {
	if err := validatePref(player, mapping); err != nil {
		return err
	}

	query := `
		INSERT INTO player_mappings (player, mapping)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE mapping = VALUES(mapping)
	`
	if _, err := r.db.ExecContext(ctx, query, prefKey(player), mapping); err != nil {
		return fmt.Errorf("ошибка сохранения маппинга %s: %w", player, err)
	}
	return nil
}

// LoadMapping возвращает сохранённый маппинг
func (r *MariaPrefStore) LoadMapping(ctx context.Context, player string) (string, bool, error) {
	var mapping string
	err := r.db.QueryRowContext(ctx,
		"SELECT mapping FROM player_mappings WHERE player = ?", prefKey(player)).Scan(&mapping)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка загрузки маппинга %s: %w", player, err)
	}
	return mapping, true, nil
}

// Delete забывает выбор игрока
func (r *MariaPrefStore) Delete(ctx context.Context, player string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM player_mappings WHERE player = ?", prefKey(player))
	return err
}

// Close закрывает соединение с базой данных
func (r *MariaPrefStore) Close() error {
	return r.db.Close()
}
