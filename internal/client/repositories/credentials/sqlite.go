// Package credentials persists the passkeys created by the software
// authenticator in the credentials table.
package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/common"
	"github.com/dmitrijs2005/myid/internal/dbx"
)

// Repository stores authenticator credentials.
type Repository interface {
	Create(ctx context.Context, c *models.StoredCredential) error
	// Get returns common.ErrorNotFound when id is unknown.
	Get(ctx context.Context, id string) (*models.StoredCredential, error)
	UpdateSignCount(ctx context.Context, id string, count uint32) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.StoredCredential, error)
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, user_handle, display_name, public_key, sealed_key, pin_salt, pin_params, pin_verifier, sign_count, created_at`

func (r *SQLiteRepository) Create(ctx context.Context, c *models.StoredCredential) error {
	sealed, err := json.Marshal(c.SealedKey)
	if err != nil {
		return fmt.Errorf("failed to encode sealed key: %w", err)
	}
	params, err := json.Marshal(c.PinParams)
	if err != nil {
		return fmt.Errorf("failed to encode pin params: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO credentials (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserHandle, c.DisplayName, c.PublicKey, sealed, c.PinSalt, params, c.PinVerifier,
		int64(c.SignCount), c.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*models.StoredCredential, error) {
	var (
		c         models.StoredCredential
		sealed    []byte
		params    []byte
		signCount int64
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.UserHandle, &c.DisplayName, &c.PublicKey, &sealed, &c.PinSalt,
		&params, &c.PinVerifier, &signCount, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sealed, &c.SealedKey); err != nil {
		return nil, fmt.Errorf("%w: credential %s sealed key: %v", common.ErrorMalformedData, c.ID, err)
	}
	if err := json.Unmarshal(params, &c.PinParams); err != nil {
		return nil, fmt.Errorf("%w: credential %s pin params: %v", common.ErrorMalformedData, c.ID, err)
	}
	c.SignCount = uint32(signCount)
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &c, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.StoredCredential, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM credentials WHERE id = ?`, id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential %s: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) UpdateSignCount(ctx context.Context, id string, count uint32) error {
	res, err := r.db.ExecContext(ctx, `UPDATE credentials SET sign_count = ? WHERE id = ?`, int64(count), id)
	if err != nil {
		return fmt.Errorf("failed to update credential %s: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("credential %s: %w", id, common.ErrorNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.StoredCredential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM credentials ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var result []models.StoredCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credential rows: %w", err)
	}
	return result, nil
}
