// Package queue persists pending sync actions in the sync_queue table.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/cryptox"
	"github.com/dmitrijs2005/myid/internal/dbx"
)

// Repository is the FIFO store behind the sync worker.
type Repository interface {
	Enqueue(ctx context.Context, a *models.SyncAction) error
	// List returns pending actions oldest first.
	List(ctx context.Context) ([]models.SyncAction, error)
	Remove(ctx context.Context, id string) error
	IncrementAttempts(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, a *models.SyncAction) error {
	var encrypted []byte
	if a.EncryptedPayload != nil {
		b, err := json.Marshal(a.EncryptedPayload)
		if err != nil {
			return fmt.Errorf("failed to encode encrypted payload: %w", err)
		}
		encrypted = b
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_queue (id, type, payload, encrypted_payload, created_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, string(a.Type), []byte(a.Payload), encrypted, a.CreatedAt.UnixMilli(), a.Attempts)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync action %s: %w", a.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.SyncAction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, payload, encrypted_payload, created_at, attempts
		FROM sync_queue ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync queue: %w", err)
	}
	defer rows.Close()

	var result []models.SyncAction
	for rows.Next() {
		var (
			a         models.SyncAction
			typ       string
			payload   []byte
			encrypted []byte
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &typ, &payload, &encrypted, &createdAt, &a.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan sync queue row: %w", err)
		}
		a.Type = models.ActionType(typ)
		a.Payload = json.RawMessage(payload)
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		if len(encrypted) > 0 {
			var s cryptox.Sealed
			if err := json.Unmarshal(encrypted, &s); err != nil {
				return nil, fmt.Errorf("%w: sync action %s: %v", common.ErrorMalformedData, a.ID, err)
			}
			a.EncryptedPayload = &s
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync queue rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove sync action %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) IncrementAttempts(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sync_queue SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to update sync action %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("failed to clear sync queue: %w", err)
	}
	return nil
}
