package elastiq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var createExecutions = `CREATE TABLE IF NOT EXISTS executions (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'submitted',
		task BLOB,
		failure TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ'))
	) strict;`

type executionRow struct {
	Id        string `db:"id"`
	Type      string `db:"type"`
	Status    string `db:"status"`
	Task      []byte `db:"task"`
	Failure   string `db:"failure"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

// Execution is one journaled task run.
type Execution struct {
	Task      *Task
	Status    string
	Failure   string
	CreatedAt string
	UpdatedAt string
}

func (r *executionRow) toExecution() (Execution, error) {
	task, err := UnmarshalTask(r.Task)
	if err != nil {
		return Execution{}, err
	}

	return Execution{
		Task:      task,
		Status:    r.Status,
		Failure:   r.Failure,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// statusLevel orders statuses along the execution lifecycle so a stale
// update can never move a record backwards.
func statusLevel(status string) int {
	switch status {
	case StatusSubmitted:
		return 1
	case StatusRunning:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	}
	return 0
}

// Journal is a sqlite-backed record of task executions. It is an audit
// trail, not a store of pending work: pending actions live only in the
// pool's in-memory queue and nothing is replayed from the journal.
type Journal struct {
	logger *slog.Logger
	db     *sqlx.DB
}

func NewJournal(dbPath string, logger *slog.Logger) (*Journal, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?cache=shared&mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_size_limit = 67108864;",
		"PRAGMA mmap_size = 134217728;",
		"PRAGMA cache_size = 2000;",
	}
	for _, pragma := range pragmas {
		if _, err = db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	j := &Journal{db: db, logger: logger}

	err = j.inTx(context.Background(), func(tx *sqlx.Tx) error {
		_, innerErr := tx.ExecContext(context.Background(), createExecutions)
		return innerErr
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return j, nil
}

// Record inserts a task in the submitted state.
func (j *Journal) Record(ctx context.Context, task *Task) error {
	raw, err := task.Marshal()
	if err != nil {
		return err
	}

	return j.inTx(ctx, func(tx *sqlx.Tx) error {
		_, innerErr := tx.ExecContext(ctx, `insert into executions (id, type, task) values ($1, $2, $3)`, task.ID, task.Type, raw)
		return innerErr
	})
}

// MarkRunning moves the execution to the running state.
func (j *Journal) MarkRunning(ctx context.Context, id string) error {
	return j.setStatus(ctx, id, StatusRunning, "")
}

// MarkDone moves the execution to its terminal state: completed when
// execErr is nil, failed (with the error text) otherwise.
func (j *Journal) MarkDone(ctx context.Context, id string, execErr error) error {
	if execErr != nil {
		return j.setStatus(ctx, id, StatusFailed, execErr.Error())
	}
	return j.setStatus(ctx, id, StatusCompleted, "")
}

func (j *Journal) setStatus(ctx context.Context, id, status, failure string) error {
	getItemById := `select * from executions where id = $1`
	updateItemStatus := `update executions set status = $1, failure = $2, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ') where id = $3`

	return j.inTx(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, getItemById, id)
		if row.Err() != nil {
			return row.Err()
		}

		var current executionRow
		if rowScanErr := row.StructScan(&current); rowScanErr != nil {
			return rowScanErr
		}

		if statusLevel(current.Status) > statusLevel(status) {
			return fmt.Errorf("execution %s is already in the %s state", id, current.Status)
		}

		_, err := tx.ExecContext(ctx, updateItemStatus, status, failure, id)
		return err
	})
}

// Get returns a single execution record by task id.
func (j *Journal) Get(ctx context.Context, id string) (execution Execution, err error) {
	err = j.inTx(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, `select * from executions where id = $1`, id)
		if row.Err() != nil {
			return row.Err()
		}

		var rowValue executionRow
		if rowScanErr := row.StructScan(&rowValue); rowScanErr != nil {
			return rowScanErr
		}

		execution, err = rowValue.toExecution()
		return err
	})

	return execution, err
}

// History lists the executions of a task type, most recent first. Ulid
// ids sort by creation time, so ordering by id is ordering by age.
func (j *Journal) History(ctx context.Context, taskType string) (executions []Execution, err error) {
	err = j.inTx(ctx, func(tx *sqlx.Tx) error {
		rows, rowsErr := tx.QueryxContext(ctx, `select * from executions where type = $1 order by id desc`, taskType)
		if rowsErr != nil {
			return rowsErr
		}
		defer rows.Close()

		for rows.Next() {
			var rowValue executionRow
			if rowScanErr := rows.StructScan(&rowValue); rowScanErr != nil {
				return rowScanErr
			}

			execution, execErr := rowValue.toExecution()
			if execErr != nil {
				return execErr
			}
			executions = append(executions, execution)
		}

		return nil
	})

	return executions, err
}

// Truncate clears the journal.
func (j *Journal) Truncate(ctx context.Context) error {
	return j.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `delete from executions`)
		return err
	})
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) inTx(ctx context.Context, cb func(*sqlx.Tx) error) (err error) {
	tx, beginErr := j.db.BeginTxx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("cannot start tx: %w", beginErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = rollback(tx, nil)
			panic(rec)
		}
	}()

	if err = cb(tx); err != nil {
		return rollback(tx, err)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("cannot commit tx: %w", commitErr)
	}

	return nil
}

func rollback(tx *sqlx.Tx, err error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("cannot roll back tx after error (tx error: %v), original error: %w", rollbackErr, err)
	}
	return err
}
