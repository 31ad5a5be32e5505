package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"hostplane/internal/approvals"

	"github.com/go-sql-driver/mysql"
)

const mysqlErrorDuplicateEntryCode uint16 = 1062

// Mysql persists approval requests in a single table with payload and
// decisions held as JSON columns; the version column implements the CAS
// protocol
type Mysql struct {
	Db *sql.DB
}

type NewMysqlOpts struct {
	Db *sql.DB
}

func NewMysql(opts NewMysqlOpts) (*Mysql, error) {
	if opts.Db == nil {
		return nil, fmt.Errorf("failed to receive a database connection")
	}
	return &Mysql{Db: opts.Db}, nil
}

func (s *Mysql) Create(record *approvals.Request) error {
	decisions, err := json.Marshal(record.Decisions)
	if err != nil {
		return fmt.Errorf("failed to marshal decisions for request[%s]: %w", record.Id, err)
	}
	stmt, err := s.Db.Prepare(`
		INSERT INTO approval_requests (
			id,
			operation_type,
			payload,
			requester_id,
			risk_level,
			required_approvals,
			timeout_at,
			status,
			decisions,
			version,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()
	if _, err := stmt.Exec(
		record.Id,
		string(record.OperationType),
		string(record.Payload),
		record.RequesterId,
		string(record.RiskLevel),
		record.RequiredApprovals,
		record.TimeoutAt.UTC(),
		string(record.Status),
		string(decisions),
		record.Version,
		record.CreatedAt.UTC(),
	); err != nil {
		if isMysqlDuplicateError(err) {
			return fmt.Errorf("failed to create request[%s]: %w", record.Id, ErrorDuplicateEntry)
		}
		return fmt.Errorf("failed to execute insert statement: %w", err)
	}
	return nil
}

func (s *Mysql) Get(id string) (*approvals.Request, error) {
	stmt, err := s.Db.Prepare(`
		SELECT
			id,
			operation_type,
			payload,
			requester_id,
			risk_level,
			required_approvals,
			timeout_at,
			status,
			decisions,
			version,
			created_at,
			executed_by,
			executed_at,
			execution_result
		FROM approval_requests
			WHERE id = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Close()
	record, err := scanRequest(stmt.QueryRow(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get request[%s]: %w", id, ErrorNotFound)
		}
		return nil, fmt.Errorf("failed to process request[%s]: %w", id, err)
	}
	return record, nil
}

func (s *Mysql) CompareAndSwap(id string, expectedVersion int64, record *approvals.Request) error {
	decisions, err := json.Marshal(record.Decisions)
	if err != nil {
		return fmt.Errorf("failed to marshal decisions for request[%s]: %w", id, err)
	}
	stmt, err := s.Db.Prepare(`
		UPDATE approval_requests SET
			status = ?,
			decisions = ?,
			executed_by = ?,
			executed_at = ?,
			execution_result = ?,
			version = ?
		WHERE id = ? AND version = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update statement: %w", err)
	}
	defer stmt.Close()
	var executedAt any
	if record.ExecutedAt != nil {
		executedAt = record.ExecutedAt.UTC()
	}
	results, err := stmt.Exec(
		string(record.Status),
		string(decisions),
		record.ExecutedBy,
		executedAt,
		record.ExecutionResult,
		expectedVersion+1,
		id,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to execute update statement: %w", err)
	}
	rowsAffected, err := results.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get n(rows) updated: %w", err)
	}
	if rowsAffected == 1 {
		record.Version = expectedVersion + 1
		return nil
	}
	if _, err := s.Get(id); err != nil {
		return err
	}
	return fmt.Errorf("failed to swap request[%s] at version[%v]: %w", id, expectedVersion, ErrorConflict)
}

func (s *Mysql) List(filter ListFilter) ([]*approvals.Request, error) {
	query := `
		SELECT
			id,
			operation_type,
			payload,
			requester_id,
			risk_level,
			required_approvals,
			timeout_at,
			status,
			decisions,
			version,
			created_at,
			executed_by,
			executed_at,
			execution_result
		FROM approval_requests
			WHERE 1 = 1
	`
	args := []any{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.RequesterId != "" {
		query += " AND requester_id = ?"
		args = append(args, filter.RequesterId)
	}
	if !filter.TimeoutNotAfter.IsZero() {
		query += " AND timeout_at <= ?"
		args = append(args, filter.TimeoutNotAfter.UTC())
	}
	query += " ORDER BY created_at ASC"
	stmt, err := s.Db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Close()
	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute select statement: %w", err)
	}
	defer rows.Close()
	var results []*approvals.Request
	for rows.Next() {
		record, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to process row[%v]: %w", len(results), err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*approvals.Request, error) {
	var record approvals.Request
	var payload, decisions string
	var executedBy, executionResult sql.NullString
	var executedAt sql.NullTime
	if err := row.Scan(
		&record.Id,
		&record.OperationType,
		&payload,
		&record.RequesterId,
		&record.RiskLevel,
		&record.RequiredApprovals,
		&record.TimeoutAt,
		&record.Status,
		&decisions,
		&record.Version,
		&record.CreatedAt,
		&executedBy,
		&executedAt,
		&executionResult,
	); err != nil {
		return nil, err
	}
	record.Payload = json.RawMessage(payload)
	if err := json.Unmarshal([]byte(decisions), &record.Decisions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decisions: %w", err)
	}
	if executedBy.Valid {
		record.ExecutedBy = &executedBy.String
	}
	if executedAt.Valid {
		timestamp := executedAt.Time
		record.ExecutedAt = &timestamp
	}
	if executionResult.Valid {
		record.ExecutionResult = &executionResult.String
	}
	return &record, nil
}

func isMysqlDuplicateError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if mysqlErr.Number == mysqlErrorDuplicateEntryCode {
			return true
		}
	}
	return false
}

var _ RequestStore = (*Mysql)(nil)
var _ RequestStore = (*Memory)(nil)
