package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/scottyhq/dinoSARaws/catalog"
	"github.com/scottyhq/dinoSARaws/common"
	db "github.com/scottyhq/dinoSARaws/interface/database"
	"github.com/scottyhq/dinoSARaws/service/log"
)

type Workflow struct {
	db.WorkflowDBBackend
	dbmu      sync.Mutex
	pairQueue messaging.Publisher

	catalog *catalog.Catalog
}

// NewWorkflow creates a workflow publishing the pairs to process in pairQueue.
// catalog is optional (required by the catalog handler to search inventories)
func NewWorkflow(db db.WorkflowDBBackend, pairQueue messaging.Publisher, catalog *catalog.Catalog) *Workflow {
	return &Workflow{
		WorkflowDBBackend: db,
		pairQueue:         pairQueue,
		catalog:           catalog,
	}
}

// IngestPair adds a new pair to the workflow and queues it
// Return id of the pair
func (wf *Workflow) IngestPair(ctx context.Context, aoi string, pair common.PairToIngest) (int, error) {
	wf.dbmu.Lock()
	defer wf.dbmu.Unlock()
	return wf.ingestPair(ctx, aoi, pair)
}

// IngestPairs adds the pairs to the workflow, skipping the ones that already exist
// Returns the ids of the new pairs
func (wf *Workflow) IngestPairs(ctx context.Context, aoi string, pairs []common.PairToIngest) ([]int, error) {
	wf.dbmu.Lock()
	defer wf.dbmu.Unlock()
	var ids []int
	for _, pair := range pairs {
		id, err := wf.ingestPair(ctx, aoi, pair)
		if err != nil {
			if errors.As(err, &db.ErrAlreadyExists{}) {
				log.Logger(ctx).Sugar().Warnf("%s: %v", pair.IntName(), err)
				continue
			}
			return ids, fmt.Errorf("IngestPairs.%w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (wf *Workflow) ingestPair(ctx context.Context, aoi string, pair common.PairToIngest) (int, error) {
	if _, _, err := common.ParseIntName(pair.IntName()); err != nil {
		return 0, fmt.Errorf("ingestPair: %w", err)
	}
	if pair.Main <= pair.Secondary {
		return 0, fmt.Errorf("ingestPair: main date %s must be after secondary date %s", pair.Main, pair.Secondary)
	}
	if len(pair.Data.MainScenes) == 0 || len(pair.Data.SecondaryScenes) == 0 {
		return 0, fmt.Errorf("ingestPair: pair %s has no scenes", pair.IntName())
	}

	// Check that the pair does not already exists
	if _, err := wf.PairID(ctx, aoi, pair.Pair); err != nil && !errors.As(err, &db.ErrNotFound{}) {
		return 0, fmt.Errorf("query pair: %w", err)
	} else if err == nil {
		return 0, db.ErrAlreadyExists{Type: "pair", ID: pair.IntName()}
	}

	var id int
	err := db.UnitOfWork(ctx, wf, func(tx db.WorkflowTxBackend) error {
		var err error
		if id, err = tx.CreatePair(ctx, aoi, pair.Pair, common.StatusPENDING, pair.Data, pair.RetryCount); err != nil {
			return err
		}
		if err := wf.updateAOIStatus(ctx, tx, aoi, false); err != nil {
			return err
		}
		log.Logger(ctx).Sugar().Infof("queueing pair %s", pair.IntName())
		return wf.publishPair(ctx, common.PairToProcess{ID: id, Pair: pair.Pair, Data: pair.Data})
	})
	if err != nil {
		return 0, fmt.Errorf("IngestPair.%w", err)
	}
	return id, nil
}

// FinishPair sets the pair DONE and saves its outputs
func (wf *Workflow) FinishPair(ctx context.Context, pair db.Pair, outputs []string) error {
	err := db.UnitOfWork(ctx, wf, func(tx db.WorkflowTxBackend) error {
		if err := tx.UpdatePair(ctx, pair.ID, common.StatusDONE, &pair.Message); err != nil {
			return err
		}
		if len(outputs) == 0 {
			return nil
		}
		return tx.UpdatePairOutputs(ctx, pair.ID, outputs)
	})
	if err != nil {
		return fmt.Errorf("FinishPair.%w", err)
	}
	return nil
}

// RetryPair sets the pair PENDING and queues it
func (wf *Workflow) RetryPair(ctx context.Context, pair db.Pair) error {
	err := db.UnitOfWork(ctx, wf, func(tx db.WorkflowTxBackend) error {
		if err := tx.UpdatePair(ctx, pair.ID, common.StatusPENDING, &pair.Message); err != nil {
			return err
		}
		log.Logger(ctx).Sugar().Infof("retrying pair %s", pair.IntName())
		return wf.publishPair(ctx, pair.PairToProcess)
	})
	if err != nil {
		return fmt.Errorf("RetryPair.%w", err)
	}
	return nil
}

// FailPair sets the pair FAILED
func (wf *Workflow) FailPair(ctx context.Context, pair db.Pair) error {
	if err := wf.UpdatePair(ctx, pair.ID, common.StatusFAILED, &pair.Message); err != nil {
		return fmt.Errorf("FailPair.%w", err)
	}
	return nil
}

// UpdatePairStatus applies a new status to the pair:
// PENDING->DONE|RETRY|FAILED, RETRY->DONE|PENDING|FAILED.
// A RETRY is automatically converted into a new try while the retry countdown is positive.
// If force, any status can be set.
// Returns true if the status has changed
func (wf *Workflow) UpdatePairStatus(ctx context.Context, id int, status common.Status, message *string, outputs []string, force bool) (bool, error) {
	lg := log.Logger(ctx).Sugar()
	wf.dbmu.Lock()
	defer wf.dbmu.Unlock()

	pair, err := wf.Pair(ctx, id)
	if err != nil {
		if errors.As(err, &db.ErrNotFound{}) {
			lg.Errorf("update: %v", err)
			return false, nil
		}
		return false, fmt.Errorf("UpdatePairStatus: %w", err)
	}
	if message != nil {
		pair.Message = *message
	}

	lg.Infof("update pair status %s: %s->%s (%s)", pair.IntName(), pair.Status, status, pair.Message)

	if force {
		switch status {
		case common.StatusDONE:
			err = wf.FinishPair(ctx, pair, outputs)
		case common.StatusRETRY, common.StatusNEW:
			err = wf.UpdatePair(ctx, id, status, &pair.Message)
		case common.StatusFAILED:
			err = wf.FailPair(ctx, pair)
		case common.StatusPENDING:
			err = wf.RetryPair(ctx, pair)
		}
		if err != nil {
			return true, err
		}
		err = wf.updateAOIStatus(ctx, wf, pair.AOI, status == common.StatusRETRY)
		return true, err
	}

	if pair.Status == status {
		lg.Warnf("update pair %d: status already %s", id, status)
		return false, nil
	}

	switch pair.Status {
	case common.StatusPENDING:
		switch status {
		case common.StatusDONE:
			err = wf.FinishPair(ctx, pair, outputs)
		case common.StatusRETRY:
			if pair.RetryCountDown > 0 {
				err = wf.RetryPair(ctx, pair)
				status = common.StatusPENDING
			} else {
				err = wf.UpdatePair(ctx, id, status, &pair.Message)
			}
		case common.StatusFAILED:
			err = wf.FailPair(ctx, pair)
		default:
			lg.Errorf("cannot update pair %d status %s->%s", id, pair.Status, status)
			return false, nil
		}
	case common.StatusRETRY:
		switch status {
		case common.StatusDONE:
			err = wf.FinishPair(ctx, pair, outputs)
		case common.StatusPENDING:
			err = wf.RetryPair(ctx, pair)
		case common.StatusFAILED:
			err = wf.FailPair(ctx, pair)
		default:
			lg.Errorf("cannot update pair %d status %s->%s", id, pair.Status, status)
			return false, nil
		}
	default:
		lg.Errorf("cannot update pair %d status %s->%s", id, pair.Status, status)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := wf.updateAOIStatus(ctx, wf, pair.AOI, status == common.StatusRETRY); err != nil {
		return true, err
	}
	return true, nil
}

// UpdatePairData update the data of a pair
func (wf *Workflow) UpdatePairData(ctx context.Context, id int, data common.PairAttrs) error {
	wf.dbmu.Lock()
	defer wf.dbmu.Unlock()
	if err := db.UnitOfWork(ctx, wf, func(tx db.WorkflowTxBackend) error {
		return tx.UpdatePairAttrs(ctx, id, data)
	}); err != nil {
		return fmt.Errorf("UpdatePairData.%w", err)
	}
	return nil
}

// ResultHandler updates the status of the pair given the result of its processing
func (wf *Workflow) ResultHandler(ctx context.Context, result common.Result) error {
	switch result.Type {
	case common.ResultTypePair:
		_, err := wf.UpdatePairStatus(ctx, result.ID, result.Status, &result.Message, result.Outputs, false)
		return err
	default:
		return fmt.Errorf("ResultHandler: unknown result type: %s", result.Type)
	}
}

// Dot writes the graph of the pairs of the aoi: one node per date, one edge per pair, colored by status
func (wf *Workflow) Dot(ctx context.Context, aoi string, out io.Writer) error {
	pairs, err := wf.Pairs(ctx, aoi, "", 0, -1)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "digraph %q {\n", aoi)
	defer fmt.Fprintf(out, "}\n")
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })
	dates := map[string]struct{}{}
	for _, p := range pairs {
		dates[p.Main] = struct{}{}
		dates[p.Secondary] = struct{}{}
	}
	sorted := make([]string, 0, len(dates))
	for d := range dates {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)
	for _, d := range sorted {
		fmt.Fprintf(out, "d%s [label=\"%s\" shape=box];\n", d, d)
	}
	for _, p := range pairs {
		style := ""
		if p.Status != common.StatusDONE {
			style = " style=dotted"
		}
		fmt.Fprintf(out, "d%s -> d%s [label=\"%d (id=%d)\" color=%s%s];\n", p.Secondary, p.Main, p.Path, p.ID, p.Status.Color(), style)
	}
	return nil
}

func (wf *Workflow) publishPair(ctx context.Context, pair common.PairToProcess) error {
	plb, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err = wf.pairQueue.Publish(ctx, plb); err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	return nil
}

func (wf *Workflow) updateAOIStatus(ctx context.Context, wfb db.WorkflowBackend, aoi string, isRetry bool) error {
	_, _, err := wfb.UpdateAOIStatus(ctx, aoi, isRetry)
	return err
}
