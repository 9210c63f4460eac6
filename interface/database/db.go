package db

import (
	"context"
	"fmt"

	"github.com/scottyhq/dinoSARaws/common"
)

// AOI groups the pairs of a processing campaign
type AOI struct {
	ID     string        `json:"id"`
	Status common.Status `json:"status"`
}

// Pair is a processing job of an interferogram
type Pair struct {
	common.PairToProcess
	AOI            string        `json:"aoi"`
	Status         common.Status `json:"status"`
	Message        string        `json:"message"`
	Outputs        []string      `json:"outputs,omitempty"`
	RetryCountDown int           `json:"retry_countdown"`
}

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

type WorkflowTxBackend interface {
	WorkflowBackend
	// Must be call to apply transaction
	Commit() error
	// Might be called to cancel the transaction (no effect if commit has already be done)
	Rollback() error
}

type WorkflowDBBackend interface {
	WorkflowBackend
	StartTransaction(ctx context.Context) (WorkflowTxBackend, error)
}

type Status struct {
	New, Pending, Done, Retry, Failed int64
}

// Set the number of occurences for a given status
func (s *Status) Set(status common.Status, nb int64) {
	switch status {
	case common.StatusNEW:
		s.New = nb
	case common.StatusPENDING:
		s.Pending = nb
	case common.StatusDONE:
		s.Done = nb
	case common.StatusRETRY:
		s.Retry = nb
	case common.StatusFAILED:
		s.Failed = nb
	}
}

// Total number of pairs
func (s Status) Total() int64 {
	return s.New + s.Pending + s.Done + s.Retry + s.Failed
}

type WorkflowBackend interface {
	// Create an AOI in database, may return ErrAlreadyExists
	CreateAOI(ctx context.Context, aoi string) error
	// AOIs returns the list of the aois fitting the pattern
	// pattern [optional=""] aoi_patern
	AOIs(ctx context.Context, pattern string) ([]AOI, error)
	// UpdateAOIStatus computes the status of the aoi from the status of its pairs (RETRY if isRetry)
	// Returns the new status and true if it has changed
	UpdateAOIStatus(ctx context.Context, aoi string, isRetry bool) (common.Status, bool, error)
	// Delete an AOI and its pairs from the database
	DeleteAOI(ctx context.Context, aoi string) error

	// Returns the status of the pairs of the aoi
	PairsStatus(ctx context.Context, aoi string) (Status, error)
	// Create a new pair, returning its id. May return ErrAlreadyExists
	CreatePair(ctx context.Context, aoi string, pair common.Pair, status common.Status, data common.PairAttrs, retryCount int) (int, error)
	// Get pair with the given id, may return ErrNotFound
	Pair(ctx context.Context, id int) (Pair, error)
	// Returns the id of a pair. May return ErrNotFound
	PairID(ctx context.Context, aoi string, pair common.Pair) (int, error)
	// Pairs returns the list of pairs fitting the given parameters
	// aoi [optional=""] aoi
	// status [optional=""] status of the pair
	Pairs(ctx context.Context, aoi, status string, page, limit int) ([]Pair, error)
	// Update pair status & message (if != nil). Decrements the retry countdown if the status is PENDING
	UpdatePair(ctx context.Context, id int, status common.Status, message *string) error
	// Set the published files of a pair
	UpdatePairOutputs(ctx context.Context, id int, outputs []string) error
	// Update pair data
	UpdatePairAttrs(ctx context.Context, id int, data common.PairAttrs) error
}

// UnitOfWork runs a function and commit the database at the end or rollback if the function returns an error
func UnitOfWork(ctx context.Context, db WorkflowDBBackend, f func(tx WorkflowTxBackend) error) (err error) {
	// Start transaction
	txn, err := db.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("uow.starttransaction: %w", err)
	}

	// Rollback if not successful
	defer func() {
		if e := txn.Rollback(); err == nil {
			err = e
		}
	}()

	// Execute function
	if err = f(txn); err != nil {
		return fmt.Errorf("uow.%w", err)
	}

	return txn.Commit()
}
