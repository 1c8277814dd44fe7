package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/mattsse/inscribememaybe/internal/domain/model"
	"github.com/mattsse/inscribememaybe/internal/store"
)

type InscriptionRepo struct {
	db *DB
}

func NewInscriptionRepo(db *DB) *InscriptionRepo {
	return &InscriptionRepo{db: db}
}

var _ store.InscriptionRepository = (*InscriptionRepo)(nil)

// Insert appends one record. A zero CreatedAt is filled with the current
// UTC time.
func (r *InscriptionRepo) Insert(ctx context.Context, rec *model.InscriptionRecord) (int64, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO inscriptions (sender, chain_id, tx_hash, calldata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, strings.ToLower(rec.Sender), rec.ChainID, rec.TxHash, rec.Calldata, createdAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%w: %s", store.ErrDuplicateTxHash, rec.TxHash)
		}
		return 0, fmt.Errorf("insert inscription: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read insert id: %w", err)
	}
	return id, nil
}

func (r *InscriptionRepo) Count(ctx context.Context, sender string, chainID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM inscriptions WHERE sender = ? AND chain_id = ?
	`, strings.ToLower(sender), chainID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count inscriptions: %w", err)
	}
	return count, nil
}

func (r *InscriptionRepo) ListBySender(ctx context.Context, sender string, chainID int64, limit int) ([]model.InscriptionRecord, error) {
	query := `
		SELECT id, sender, chain_id, tx_hash, calldata, created_at
		FROM inscriptions
		WHERE sender = ? AND chain_id = ?
		ORDER BY id DESC
	`
	args := []interface{}{strings.ToLower(sender), chainID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inscriptions: %w", err)
	}
	defer rows.Close()

	var records []model.InscriptionRecord
	for rows.Next() {
		var rec model.InscriptionRecord
		if err := rows.Scan(&rec.ID, &rec.Sender, &rec.ChainID, &rec.TxHash, &rec.Calldata, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inscription: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inscriptions: %w", err)
	}
	return records, nil
}
