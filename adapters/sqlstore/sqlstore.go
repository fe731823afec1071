package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/luno/snaprestore"
)

const mysqlDupEntry = 1062

// SQLStore persists operation state and audit events in MySQL. Optimistic
// concurrency uses a conditional update on the version column; audit events
// go to an append-only table.
type SQLStore struct {
	writer *sql.DB
	reader *sql.DB

	stateTableName    string
	stateCols         string
	stateSelectPrefix string
}

func New(writer *sql.DB, reader *sql.DB, stateTable string) *SQLStore {
	s := &SQLStore{
		writer:         writer,
		reader:         reader,
		stateTableName: stateTable,
	}

	s.stateCols = " `operation_id`, `current_step`, `status`, `context`, `version`, `created_at`, `updated_at` "
	s.stateSelectPrefix = " select " + s.stateCols + " from " + s.stateTableName + " where "

	return s
}

var (
	_ snaprestore.StateStore = (*SQLStore)(nil)
	_ snaprestore.Lister     = (*SQLStore)(nil)
)

func (s *SQLStore) Get(ctx context.Context, operationID string) (*snaprestore.OperationState, error) {
	return s.lookupWhere(ctx, s.reader, "operation_id=?", operationID)
}

func (s *SQLStore) Put(ctx context.Context, state *snaprestore.OperationState, expectedVersion int64) error {
	contextJSON, err := snaprestore.Marshal(&state.Context)
	if err != nil {
		return err
	}

	now := time.Now()

	if expectedVersion == 0 {
		_, err := s.writer.ExecContext(ctx,
			"insert into "+s.stateTableName+" set `operation_id`=?, `current_step`=?, `status`=?, `context`=?, `version`=1, `created_at`=?, `updated_at`=?",
			state.OperationID,
			string(state.CurrentStep),
			int(state.Status),
			contextJSON,
			state.CreatedAt,
			now,
		)
		if isDupEntry(err) {
			return errors.Wrap(snaprestore.ErrVersionConflict, "operation already exists", j.KV("operation_id", state.OperationID))
		} else if err != nil {
			return err
		}

		return nil
	}

	res, err := s.writer.ExecContext(ctx,
		"update "+s.stateTableName+" set `current_step`=?, `status`=?, `context`=?, `version`=?, `updated_at`=? where `operation_id`=? and `version`=?",
		string(state.CurrentStep),
		int(state.Status),
		contextJSON,
		expectedVersion+1,
		now,
		state.OperationID,
		expectedVersion,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return errors.Wrap(snaprestore.ErrVersionConflict, "stale version", j.MKV{
			"operation_id": state.OperationID,
		})
	}

	return nil
}

func (s *SQLStore) List(ctx context.Context, status snaprestore.Status, limit int) ([]snaprestore.OperationState, error) {
	return s.listWhere(ctx, s.reader, "status=? order by updated_at asc limit ?", int(status), limit)
}

// Audit writes the append-only event history to its own table. Rows are only
// ever inserted.
type Audit struct {
	writer *sql.DB
	reader *sql.DB

	tableName string
}

func NewAudit(writer *sql.DB, reader *sql.DB, tableName string) *Audit {
	return &Audit{
		writer:    writer,
		reader:    reader,
		tableName: tableName,
	}
}

var _ snaprestore.AuditLog = (*Audit)(nil)

func (a *Audit) Append(ctx context.Context, event snaprestore.AuditEvent) error {
	detailsJSON, err := snaprestore.Marshal(&event.Details)
	if err != nil {
		return err
	}

	_, err = a.writer.ExecContext(ctx,
		"insert into "+a.tableName+" set `operation_id`=?, `timestamp`=?, `step`=?, `status`=?, `details`=?",
		event.OperationID,
		event.Timestamp,
		string(event.Step),
		event.Status,
		detailsJSON,
	)

	return err
}

func (a *Audit) List(ctx context.Context, operationID string) ([]snaprestore.AuditEvent, error) {
	rows, err := a.reader.QueryContext(ctx,
		"select `operation_id`, `timestamp`, `step`, `status`, `details` from "+a.tableName+
			" where `operation_id`=? order by `timestamp` asc, `id` asc",
		operationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []snaprestore.AuditEvent
	for rows.Next() {
		var (
			event       snaprestore.AuditEvent
			step        string
			detailsJSON []byte
		)
		err := rows.Scan(&event.OperationID, &event.Timestamp, &step, &event.Status, &detailsJSON)
		if err != nil {
			return nil, err
		}

		event.Step = snaprestore.Step(step)
		err = snaprestore.Unmarshal(detailsJSON, &event.Details)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

func (s *SQLStore) lookupWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) (*snaprestore.OperationState, error) {
	return stateScan(dbc.QueryRowContext(ctx, s.stateSelectPrefix+where, args...))
}

func (s *SQLStore) listWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) ([]snaprestore.OperationState, error) {
	rows, err := dbc.QueryContext(ctx, s.stateSelectPrefix+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []snaprestore.OperationState
	for rows.Next() {
		state, err := stateScan(rows)
		if err != nil {
			return nil, err
		}

		states = append(states, *state)
	}

	return states, rows.Err()
}

type row interface {
	Scan(dest ...any) error
}

func stateScan(r row) (*snaprestore.OperationState, error) {
	var (
		state       snaprestore.OperationState
		step        string
		status      int
		contextJSON []byte
	)
	err := r.Scan(
		&state.OperationID,
		&step,
		&status,
		&contextJSON,
		&state.Version,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(snaprestore.ErrOperationNotFound, "")
	} else if err != nil {
		return nil, err
	}

	state.CurrentStep = snaprestore.Step(step)
	state.Status = snaprestore.Status(status)

	err = snaprestore.Unmarshal(contextJSON, &state.Context)
	if err != nil {
		return nil, err
	}

	if state.Context == nil {
		state.Context = make(map[string]string)
	}

	return &state, nil
}

func isDupEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDupEntry
}
