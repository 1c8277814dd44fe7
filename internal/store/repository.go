package store

import (
	"context"
	"errors"

	"github.com/mattsse/inscribememaybe/internal/domain/model"
)

// ErrDuplicateTxHash reports an insert whose transaction hash is already
// recorded. Hashes are unique per table; the running engine is the only
// writer, so a duplicate means two processes share one database.
var ErrDuplicateTxHash = errors.New("tx hash already recorded")

// InscriptionRepository persists successfully submitted inscriptions. Rows
// are insert-only: a record is written after the endpoint returns a
// transaction hash and is never updated or deleted. Sender addresses are
// stored as 0x-prefixed lowercase hex.
type InscriptionRepository interface {
	// Insert appends one record and returns its assigned id.
	Insert(ctx context.Context, rec *model.InscriptionRecord) (int64, error)

	// Count reports how many inscriptions the sender has recorded on the
	// given chain.
	Count(ctx context.Context, sender string, chainID int64) (int64, error)

	// ListBySender returns the sender's records on the given chain, newest
	// first. A limit <= 0 means no cap.
	ListBySender(ctx context.Context, sender string, chainID int64, limit int) ([]model.InscriptionRecord, error)
}
