package model

import "time"

// InscriptionRecord is one durably recorded submission. Rows are append
// only: a record is written once the endpoint has returned a transaction
// hash and is never updated or deleted afterwards. Absence of a row means
// the transaction was never accepted by an endpoint.
type InscriptionRecord struct {
	ID        int64
	Sender    string // 0x-prefixed lowercase hex address
	ChainID   int64
	TxHash    string // 0x-prefixed hex hash as returned by the endpoint
	Calldata  string // 0x-prefixed hex of the raw calldata bytes
	CreatedAt time.Time
}
