package event

import (
	"github.com/google/uuid"

	"github.com/mattsse/inscribememaybe/internal/domain/model"
)

// RunReport summarizes a finished run. Requested is always Succeeded plus
// Skipped plus the iterations an abort cut off.
type RunReport struct {
	RunID      uuid.UUID
	ChainID    model.ChainID
	Sender     string
	Requested  int
	Succeeded  int
	Skipped    int
	Unrecorded int // accepted submissions whose store write failed
	State      model.RunState
	Err        error // abort cause when State is RunStateAborted
}
