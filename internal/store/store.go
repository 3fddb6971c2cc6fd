// Package store is the standalone mode's archive: sessions and their query
// history in Postgres, so the offline engine serves durable history across
// restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hqtran/keyseek/models"
)

type Store struct {
	DB *sql.DB
}

func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) CreateSession(ctx context.Context, info models.SessionInfo) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		info.SessionID, info.CreatedAt)
	return err
}

func (s *Store) ListSessions(ctx context.Context) ([]models.SessionInfo, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, created_at FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SessionInfo
	for rows.Next() {
		var info models.SessionInfo
		if err := rows.Scan(&info.SessionID, &info.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *Store) SaveQuery(ctx context.Context, item models.HistoryItem) error {
	results, err := json.Marshal(item.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO queries (id, session_id, text_query, image_query, od_json, ocr_text, asr_text, query_time, results)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.QueryID, item.SessionID, item.TextQuery, item.ImageQuery, item.ODJSON,
		item.OCRText, item.ASRText, item.QueryTime, results)
	return err
}

func (s *Store) HistoryBySession(ctx context.Context, sessionID string) ([]models.HistoryItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, session_id, text_query, image_query, od_json, ocr_text, asr_text, query_time, results
		 FROM queries WHERE session_id = $1 ORDER BY query_time`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryItem
	for rows.Next() {
		var item models.HistoryItem
		var results []byte
		if err := rows.Scan(&item.QueryID, &item.SessionID, &item.TextQuery, &item.ImageQuery,
			&item.ODJSON, &item.OCRText, &item.ASRText, &item.QueryTime, &results); err != nil {
			return nil, err
		}
		if len(results) > 0 {
			if err := json.Unmarshal(results, &item.Results); err != nil {
				return nil, fmt.Errorf("decode results for query %s: %w", item.QueryID, err)
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// PruneBefore drops sessions created before the cutoff along with their
// queries. Returns how many sessions went away.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queries WHERE session_id IN (SELECT id FROM sessions WHERE created_at < $1)`, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}
