package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sqlx.DB
}

func NewSQLiteRepository(filePath string) (*SQLiteRepository, error) {
	db, err := sqlx.Connect("sqlite3", filePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db at %s: %w", filePath, err)
	}

	// make sure the required tables exist
	schema := []string{
		`CREATE TABLE IF NOT EXISTS video_info (
			video_id TEXT PRIMARY KEY,
			info TEXT,
			insertion_timestamp DATETIME DEFAULT CURRENT_TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plays (
			video_id TEXT,
			username TEXT,
			play_timestamp DATETIME DEFAULT CURRENT_TIMESTAMP NOT NULL,
			PRIMARY KEY (video_id, username, play_timestamp)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) GetInfo(ctx context.Context, videoID string) (*SavedInfo, error) {
	var raw string
	err := r.db.GetContext(ctx, &raw,
		`SELECT info FROM video_info WHERE video_id = ?`, videoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info := &SavedInfo{}
	if err := json.Unmarshal([]byte(raw), info); err != nil {
		return nil, fmt.Errorf("decoding info for %s: %w", videoID, err)
	}
	return info, nil
}

func (r *SQLiteRepository) SaveInfo(ctx context.Context, videoID string, info SavedInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO video_info (video_id, info) VALUES (?, ?)`,
		videoID, string(raw))
	return err
}

func (r *SQLiteRepository) SaveInfos(ctx context.Context, infos map[string]SavedInfo) error {
	if len(infos) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for videoID, info := range infos {
		raw, err := json.Marshal(info)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO video_info (video_id, info) VALUES (?, ?)`,
			videoID, string(raw)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) InsertPlay(ctx context.Context, videoID, username string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO plays (video_id, username) VALUES (?, ?)`,
		videoID, username)
	return err
}

func (r *SQLiteRepository) TopPlayers(ctx context.Context, startDate, endDate *time.Time, limit int) ([]PlayerStat, error) {
	query := `SELECT username, count(*) AS play_count FROM plays`
	args := []interface{}{}
	if startDate != nil && endDate != nil {
		query += ` WHERE play_timestamp >= ? AND play_timestamp <= ?`
		args = append(args, startDate.UTC(), endDate.UTC())
	} else if startDate != nil {
		query += ` WHERE play_timestamp >= ?`
		args = append(args, startDate.UTC())
	} else if endDate != nil {
		query += ` WHERE play_timestamp <= ?`
		args = append(args, endDate.UTC())
	}
	query += ` GROUP BY username ORDER BY play_count DESC LIMIT ?`
	args = append(args, limit)

	stats := make([]PlayerStat, 0)
	if err := r.db.SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
