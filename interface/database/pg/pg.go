package pg

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/scottyhq/dinoSARaws/common"
	db "github.com/scottyhq/dinoSARaws/interface/database"
	"github.com/scottyhq/dinoSARaws/service"
)

//go:embed schema.sql
var schema string

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BackendTx implements WorkflowTxBackend
type BackendTx struct {
	*sql.Tx
	Backend
}

// BackendDB implements WorkflowDBBackend
type BackendDB struct {
	*sql.DB
	Backend
}

// Backend implements WorkflowBackend
type Backend struct {
	pgInterface
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	connectionFailure   = "08006"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// StartTransaction implements WorkflowDBBackend
func (bdb BackendDB) StartTransaction(ctx context.Context) (db.WorkflowTxBackend, error) {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return BackendTx{}, err
	}
	return BackendTx{tx, Backend{pgInterface: tx}}, nil
}

// Rollback overloads sql.Tx.Rollback to be idempotent
func (btx BackendTx) Rollback() error {
	err := btx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	return &BackendDB{db, Backend{pgInterface: db}}, nil
}

// CreateSchema creates the tables of the workflow if they do not exist
func (bdb BackendDB) CreateSchema(ctx context.Context) error {
	if _, err := bdb.ExecContext(ctx, schema); err != nil {
		if pqErrorCode(err) == connectionFailure {
			return service.MakeTemporary(fmt.Errorf("CreateSchema: %w", err))
		}
		return fmt.Errorf("CreateSchema: %w", err)
	}
	return nil
}

// AOIs implements WorkflowBackend
func (b Backend) AOIs(ctx context.Context, pattern string) ([]db.AOI, error) {
	wc := joinClause{}
	if pattern != "" {
		value, operator := parseLike(pattern)
		wc.append("id "+operator+" $%d", value)
	}
	rows, err := b.QueryContext(ctx, "select id, status from aoi"+wc.WhereClause()+" ORDER BY id", wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("aois.QueryContext: %w", err)
	}
	defer rows.Close()
	aois := make([]db.AOI, 0)
	for rows.Next() {
		var aoi db.AOI
		if err := rows.Scan(&aoi.ID, &aoi.Status); err != nil {
			return nil, fmt.Errorf("aois.Scan: %w", err)
		}
		aois = append(aois, aoi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aois.rows.err: %w", err)
	}
	return aois, nil
}

// CreateAOI implements WorkflowBackend
func (b Backend) CreateAOI(ctx context.Context, aoi string) error {
	_, err := b.ExecContext(ctx, "insert into aoi(id) values($1)", aoi)
	switch pqErrorCode(err) {
	case noError:
		return nil
	case uniqueViolation:
		return db.ErrAlreadyExists{Type: "aoi", ID: aoi}
	default:
		return fmt.Errorf("CreateAOI.exec: %w", err)
	}
}

func extractStatus(status service.StringSet) common.Status {
	// Priority: RETRY>PENDING>NEW>DONE>FAILED
	for _, s := range []common.Status{common.StatusRETRY, common.StatusPENDING, common.StatusNEW, common.StatusDONE, common.StatusFAILED} {
		if status.Exists(s.String()) {
			return s
		}
	}
	return common.StatusNEW
}

func (b Backend) findAOIStatus(ctx context.Context, aoi string) (common.Status, error) {
	rows, err := b.QueryContext(ctx, "select status from pair where aoi_id = $1 GROUP BY status", aoi)
	if err != nil {
		return common.StatusNEW, fmt.Errorf("findAOIStatus.QueryContext: %w", err)
	}
	defer rows.Close()
	status := service.StringSet{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return common.StatusNEW, fmt.Errorf("findAOIStatus.Scan: %w", err)
		}
		status.Push(s)
	}
	if err := rows.Err(); err != nil {
		return common.StatusNEW, fmt.Errorf("findAOIStatus.rows.err: %w", err)
	}
	return extractStatus(status), nil
}

// UpdateAOIStatus implements WorkflowBackend
func (b Backend) UpdateAOIStatus(ctx context.Context, aoi string, isRetry bool) (common.Status, bool, error) {
	var status common.Status
	var err error
	if isRetry {
		status = common.StatusRETRY
	} else {
		status, err = b.findAOIStatus(ctx, aoi)
		if err != nil {
			return common.StatusNEW, false, fmt.Errorf("updateAOIStatus.%w", err)
		}
	}
	res, err := b.ExecContext(ctx, "update aoi set status=$1 where id = $2 and status!=$3", status, aoi, status)
	if err != nil {
		return status, false, fmt.Errorf("updateAOIStatus.exec: %w", err)
	}
	nb, _ := res.RowsAffected()
	return status, nb != 0, nil
}

// DeleteAOI implements WorkflowBackend
func (b Backend) DeleteAOI(ctx context.Context, aoi string) error {
	if _, err := b.ExecContext(ctx, "delete from pair where aoi_id = $1", aoi); err != nil {
		return fmt.Errorf("DeleteAOI.exec: %w", err)
	}
	if _, err := b.ExecContext(ctx, "delete from aoi where id = $1", aoi); err != nil {
		return fmt.Errorf("DeleteAOI.exec: %w", err)
	}
	return nil
}

// PairsStatus implements WorkflowBackend
func (b Backend) PairsStatus(ctx context.Context, aoi string) (db.Status, error) {
	s := db.Status{}
	rows, err := b.QueryContext(ctx, "select status, count(status) from pair where aoi_id=$1 group by status", aoi)
	if err != nil {
		return s, fmt.Errorf("PairsStatus.QueryContext: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status common.Status
		var nb int64
		if err := rows.Scan(&status, &nb); err != nil {
			return s, fmt.Errorf("PairsStatus.Scan: %w", err)
		}
		s.Set(status, nb)
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("PairsStatus.rows.err: %w", err)
	}
	return s, nil
}

// CreatePair implements WorkflowBackend
func (b Backend) CreatePair(ctx context.Context, aoi string, pair common.Pair, status common.Status, data common.PairAttrs, retryCount int) (int, error) {
	id := 0
	err := b.QueryRowContext(ctx, "insert into pair(aoi_id,main,secondary,path,status,data,retry_countdown) values($1,$2,$3,$4,$5,$6,$7) returning id",
		aoi, pair.Main, pair.Secondary, pair.Path, status, data, retryCount).Scan(&id)
	switch pqErrorCode(err) {
	case noError:
		return id, nil
	case uniqueViolation:
		return 0, db.ErrAlreadyExists{Type: "pair", ID: pair.IntName()}
	case foreignKeyViolation:
		return 0, db.ErrNotFound{Type: "aoi", ID: aoi}
	default:
		return 0, fmt.Errorf("CreatePair: %w", err)
	}
}

const pairColumns = "id,aoi_id,main,secondary,path,status,message,data,outputs,retry_countdown"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPair(row scanner) (db.Pair, error) {
	p := db.Pair{}
	err := row.Scan(&p.ID, &p.AOI, &p.Main, &p.Secondary, &p.Path, &p.Status, &p.Message, &p.Data, pq.Array(&p.Outputs), &p.RetryCountDown)
	return p, err
}

// Pair implements WorkflowBackend
func (b Backend) Pair(ctx context.Context, id int) (db.Pair, error) {
	p, err := scanPair(b.QueryRowContext(ctx, "select "+pairColumns+" from pair where id=$1", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return p, db.ErrNotFound{Type: "pair", ID: fmt.Sprintf("%d", id)}
		}
		return p, fmt.Errorf("Pair.QueryRowContext: %w", err)
	}
	return p, nil
}

// PairID implements WorkflowBackend
func (b Backend) PairID(ctx context.Context, aoi string, pair common.Pair) (int, error) {
	id := 0
	err := b.QueryRowContext(ctx, "select id from pair where aoi_id=$1 and main=$2 and secondary=$3 and path=$4",
		aoi, pair.Main, pair.Secondary, pair.Path).Scan(&id)

	switch {
	case err == sql.ErrNoRows:
		return 0, db.ErrNotFound{Type: "pair", ID: pair.IntName()}

	case err != nil:
		return 0, fmt.Errorf("PairID.QueryRowContext: %w", err)
	}

	return id, nil
}

// Pairs implements WorkflowBackend
func (b Backend) Pairs(ctx context.Context, aoi, status string, page, limit int) ([]db.Pair, error) {
	wc := joinClause{}
	if aoi != "" {
		wc.append("aoi_id = $%d", aoi)
	}
	if status != "" {
		wc.append("status = $%d", status)
	}
	rows, err := b.QueryContext(ctx, "select "+pairColumns+" from pair"+wc.WhereClause()+" ORDER BY id"+limitOffsetClause(page, limit), wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("pairs.QueryContext: %w", err)
	}
	defer rows.Close()
	pairs := make([]db.Pair, 0)
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("pairs.Scan: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pairs.rows.err: %w", err)
	}
	return pairs, nil
}

// UpdatePair implements WorkflowBackend
func (b Backend) UpdatePair(ctx context.Context, id int, status common.Status, message *string) error {
	var err error
	var retryCountdown string
	if status == common.StatusPENDING {
		retryCountdown = ", retry_countdown=retry_countdown-1"
	}
	if message != nil {
		_, err = b.ExecContext(ctx, "update pair set status=$1, message=$2"+retryCountdown+" where id=$3", status, *message, id)
	} else {
		_, err = b.ExecContext(ctx, "update pair set status=$1"+retryCountdown+" where id=$2", status, id)
	}
	if err != nil {
		return fmt.Errorf("UpdatePair: %w", err)
	}
	return nil
}

// UpdatePairOutputs implements WorkflowBackend
func (b Backend) UpdatePairOutputs(ctx context.Context, id int, outputs []string) error {
	if _, err := b.ExecContext(ctx, "update pair set outputs=$1 where id=$2", pq.Array(outputs), id); err != nil {
		return fmt.Errorf("UpdatePairOutputs: %w", err)
	}
	return nil
}

// UpdatePairAttrs implements WorkflowBackend
func (b Backend) UpdatePairAttrs(ctx context.Context, id int, data common.PairAttrs) error {
	if _, err := b.ExecContext(ctx, "update pair set data=$1 where id=$2", data, id); err != nil {
		return fmt.Errorf("UpdatePairAttrs: %w", err)
	}
	return nil
}
