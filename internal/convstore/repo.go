package convstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/chatsync/internal/apperr"
	"github.com/starford/chatsync/internal/models"
)

// Repository is the local conversation store consumed by the sync engine.
// Consumers should depend on this interface rather than *DB.
type Repository interface {
	// Search returns conversations whose title contains query; an empty
	// query returns all conversations.
	Search(ctx context.Context, query string) ([]models.ConversationRecord, error)
	// Insert stores a new conversation. It fails with apperr.ErrAlreadyExists
	// when the id is taken.
	Insert(ctx context.Context, rec models.ConversationRecord) error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)

const selectColumns = `SELECT id, title, is_pinned, is_deleted, nodes, assistant_id, created_at, updated_at FROM conversations`

// Insert stores rec unless a conversation with the same id exists.
func (db *DB) Insert(ctx context.Context, rec models.ConversationRecord) error {
	res, err := insertRecord(ctx, db.conn, rec)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("convstore: insert: %w", err)
	}
	if n == 0 {
		return apperr.New("convstore: insert "+rec.ID.String(), apperr.ErrAlreadyExists, nil)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, ex execer, rec models.ConversationRecord) (sql.Result, error) {
	nodes := rec.Nodes
	if nodes == nil {
		nodes = []models.MessageNode{}
	}
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("convstore: encode nodes: %w", err)
	}
	now := time.Now().UTC()
	created, updated := rec.CreatedAt, rec.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = created
	}
	res, err := ex.ExecContext(ctx, `
		INSERT INTO conversations (id, title, is_pinned, is_deleted, nodes, assistant_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID.String(), rec.Title, rec.IsPinned, rec.IsDeleted, string(nodesJSON), rec.AssistantID.String(), created, updated)
	if err != nil {
		return nil, fmt.Errorf("convstore: insert: %w", err)
	}
	return res, nil
}

// Get returns the conversation with the given id.
func (db *DB) Get(ctx context.Context, id uuid.UUID) (*models.ConversationRecord, error) {
	row := db.conn.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New("convstore: get "+id.String(), apperr.ErrNotFound, nil)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Search returns conversations matching query by title, pinned first then
// most recently updated.
func (db *DB) Search(ctx context.Context, query string) ([]models.ConversationRecord, error) {
	q := selectColumns
	var args []any
	if query = strings.TrimSpace(query); query != "" {
		q += ` WHERE title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(query)+"%")
	}
	q += ` ORDER BY is_pinned DESC, updated_at DESC, id`

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("convstore: search: %w", err)
	}
	defer rows.Close()

	out := []models.ConversationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// IDs returns the set of stored conversation ids.
func (db *DB) IDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("convstore: ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// Count returns the number of stored conversations.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("convstore: count: %w", err)
	}
	return n, nil
}

// ReplaceAll swaps the whole conversation set for recs in one transaction.
// Later duplicates of an id within recs are dropped.
func (db *DB) ReplaceAll(ctx context.Context, recs []models.ConversationRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("convstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("convstore: clear: %w", err)
	}
	for _, rec := range recs {
		if _, err := insertRecord(ctx, tx, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.ConversationRecord, error) {
	var (
		id, assistant, nodes string
		rec                  models.ConversationRecord
	)
	if err := s.Scan(&id, &rec.Title, &rec.IsPinned, &rec.IsDeleted, &nodes, &assistant, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("convstore: scan: %w", err)
	}
	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("convstore: bad id %q: %w", id, err)
	}
	if rec.AssistantID, err = uuid.Parse(assistant); err != nil {
		rec.AssistantID = models.DefaultAssistantID
	}
	if err := json.Unmarshal([]byte(nodes), &rec.Nodes); err != nil {
		rec.Nodes = []models.MessageNode{}
	}
	return &rec, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
