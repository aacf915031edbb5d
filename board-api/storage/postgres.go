package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskboard/domain"
)

// PgRepository keeps each board as a JSONB document with a version counter.
// The version, in decimal, is the version tag.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// EnsureTable creates the boards table if it doesn't exist.
func (r *PgRepository) EnsureTable(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS boards (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			doc        JSONB NOT NULL,
			version    BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_boards_created_by ON boards(created_by)`)
	return err
}

func (r *PgRepository) List(ctx context.Context) ([]domain.Board, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, doc FROM boards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()
	boards := []domain.Board{}
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		var b domain.Board
		if err := json.Unmarshal(doc, &b); err != nil {
			return nil, fmt.Errorf("board %s: %w", id, err)
		}
		b.ID = id
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

func (r *PgRepository) Get(ctx context.Context, id string) (*Record, error) {
	var doc []byte
	var version int64
	err := r.pool.QueryRow(ctx, `SELECT doc, version FROM boards WHERE id = $1`, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get board %s: %w", id, err)
	}
	var b domain.Board
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("board %s: %w", id, err)
	}
	b.ID = id
	return &Record{Board: b, ETag: strconv.FormatInt(version, 10)}, nil
}

func (r *PgRepository) Insert(ctx context.Context, b domain.Board) (string, error) {
	doc, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal board: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO boards (id, title, created_by, doc, version)
		VALUES ($1, $2, $3, $4::jsonb, 1)
		ON CONFLICT (id) DO NOTHING`,
		b.ID, b.Title, creatorID(b), string(doc))
	if err != nil {
		return "", fmt.Errorf("insert board: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("board %s: %w", b.ID, domain.ErrConcurrencyConflict)
	}
	return "1", nil
}

func (r *PgRepository) Replace(ctx context.Context, b domain.Board, etag string) (string, error) {
	version, err := strconv.ParseInt(etag, 10, 64)
	if err != nil {
		return "", fmt.Errorf("board %s: bad version %q: %w", b.ID, etag, domain.ErrConcurrencyConflict)
	}
	doc, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal board: %w", err)
	}
	var next int64
	err = r.pool.QueryRow(ctx, `
		UPDATE boards SET title = $3, created_by = $4, doc = $5::jsonb, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version`,
		b.ID, version, b.Title, creatorID(b), string(doc)).Scan(&next)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("update board %s: %w", b.ID, err)
		}
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM boards WHERE id = $1)`, b.ID).Scan(&exists); err != nil {
			return "", fmt.Errorf("update board %s: %w", b.ID, err)
		}
		if !exists {
			return "", domain.BoardNotFound(b.ID)
		}
		return "", fmt.Errorf("board %s: %w", b.ID, domain.ErrConcurrencyConflict)
	}
	return strconv.FormatInt(next, 10), nil
}

func (r *PgRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM boards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete board %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.BoardNotFound(id)
	}
	return nil
}

func creatorID(b domain.Board) string {
	if b.CreatedBy == nil {
		return ""
	}
	return b.CreatedBy.ID
}
