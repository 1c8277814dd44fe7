package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

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

// Insert appends one record, returning its assigned id. A zero CreatedAt
// is filled with the current UTC time.
func (r *InscriptionRepo) Insert(ctx context.Context, rec *model.InscriptionRecord) (int64, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO inscriptions (sender, chain_id, tx_hash, calldata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, strings.ToLower(rec.Sender), rec.ChainID, rec.TxHash, rec.Calldata, createdAt).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return 0, fmt.Errorf("%w: %s", store.ErrDuplicateTxHash, rec.TxHash)
		}
		return 0, fmt.Errorf("insert inscription: %w", err)
	}
	return id, nil
}

func (r *InscriptionRepo) Count(ctx context.Context, sender string, chainID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM inscriptions WHERE sender = $1 AND chain_id = $2
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
		WHERE sender = $1 AND chain_id = $2
		ORDER BY id DESC
	`
	args := []interface{}{strings.ToLower(sender), chainID}
	if limit > 0 {
		query += " LIMIT $3"
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
