package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

// SQLiteActionStore implements remediation.Store on SQLite.
type SQLiteActionStore struct {
	db *sql.DB
}

// NewSQLiteActionStore creates an action store backed by parent's connection.
func NewSQLiteActionStore(parent *SQLiteStore) *SQLiteActionStore {
	return &SQLiteActionStore{db: parent.db}
}

var _ remediation.Store = (*SQLiteActionStore)(nil)

const actionColumns = `id, server_id, action_type, service_name, command, status,
	alert_id, created_at, created_by, approved_at, approved_by, rejected_at,
	rejected_by, reject_reason, executed_at, completed_at, exit_code, stdout, stderr`

func (s *SQLiteActionStore) Create(ctx context.Context, action *remediation.Action) error {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	query := `INSERT INTO actions (` + actionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		action.ID, action.ServerID, string(action.Type), action.ServiceName,
		action.Command, string(action.Status), action.AlertID,
		action.CreatedAt.UnixNano(), action.CreatedBy,
		timeToNS(action.ApprovedAt), action.ApprovedBy,
		timeToNS(action.RejectedAt), action.RejectedBy, action.RejectReason,
		timeToNS(action.ExecutedAt), timeToNS(action.CompletedAt),
		intPtrToAny(action.ExitCode), action.Stdout, action.Stderr,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (s *SQLiteActionStore) Get(ctx context.Context, id string) (*remediation.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = ?`
	action, err := scanAction(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, remediation.ErrActionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query action: %w", err)
	}
	return action, nil
}

func (s *SQLiteActionStore) List(ctx context.Context, filter remediation.Filter) ([]remediation.Action, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.ServerID != "" {
		where += " AND server_id = ?"
		args = append(args, filter.ServerID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		where += " AND action_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.AlertID != "" {
		where += " AND alert_id = ?"
		args = append(args, filter.AlertID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM actions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count actions: %w", err)
	}

	query := `SELECT ` + actionColumns + ` FROM actions` + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []remediation.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, *action)
	}
	return actions, total, rows.Err()
}

func (s *SQLiteActionStore) Update(ctx context.Context, action *remediation.Action) error {
	query := `UPDATE actions SET status = ?, approved_at = ?, approved_by = ?,
		rejected_at = ?, rejected_by = ?, reject_reason = ?, executed_at = ?,
		completed_at = ?, exit_code = ?, stdout = ?, stderr = ?
		WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query,
		string(action.Status),
		timeToNS(action.ApprovedAt), action.ApprovedBy,
		timeToNS(action.RejectedAt), action.RejectedBy, action.RejectReason,
		timeToNS(action.ExecutedAt), timeToNS(action.CompletedAt),
		intPtrToAny(action.ExitCode), action.Stdout, action.Stderr,
		action.ID,
	)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return remediation.ErrActionNotFound
	}
	return nil
}

// MarkApproved records an approval only while the action is still pending, so
// a decision that already landed is never overwritten.
func (s *SQLiteActionStore) MarkApproved(ctx context.Context, id, by string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, approved_at = ?, approved_by = ?
		WHERE id = ? AND status = ?`,
		string(remediation.StatusApproved), at.UnixNano(), by,
		id, string(remediation.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark action approved: %w", err)
	}
	return s.decided(ctx, result, id)
}

func (s *SQLiteActionStore) MarkRejected(ctx context.Context, id, by, reason string, at time.Time) (bool, error) {
	if reason == "" {
		return false, remediation.ErrReasonRequired
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, rejected_at = ?, rejected_by = ?, reject_reason = ?
		WHERE id = ? AND status = ?`,
		string(remediation.StatusRejected), at.UnixNano(), by, reason,
		id, string(remediation.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark action rejected: %w", err)
	}
	return s.decided(ctx, result, id)
}

// decided interprets a conditional decision update: zero rows means either a
// status conflict (false, nil) or a missing action (ErrActionNotFound).
func (s *SQLiteActionStore) decided(ctx context.Context, result sql.Result, id string) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM actions WHERE id = ?`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, remediation.ErrActionNotFound
		}
		return false, fmt.Errorf("query action: %w", err)
	}
	return false, nil
}

func (s *SQLiteActionStore) NextApproved(ctx context.Context, serverID string) (*remediation.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions
		WHERE server_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC LIMIT 1`
	action, err := scanAction(s.db.QueryRowContext(ctx, query, serverID, string(remediation.StatusApproved)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, remediation.ErrActionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query next approved action: %w", err)
	}
	return action, nil
}

// MarkExecuting flips an approved action to executing. The conditional update
// guarantees the action is handed to at most one heartbeat response.
func (s *SQLiteActionStore) MarkExecuting(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, executed_at = ? WHERE id = ? AND status = ?`,
		string(remediation.StatusExecuting), at.UnixNano(), id, string(remediation.StatusApproved),
	)
	if err != nil {
		return false, fmt.Errorf("mark action executing: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteActionStore) ListExecutingOlderThan(ctx context.Context, cutoff time.Time) ([]remediation.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions
		WHERE status = ? AND executed_at IS NOT NULL AND executed_at < ?
		ORDER BY executed_at ASC`
	rows, err := s.db.QueryContext(ctx, query, string(remediation.StatusExecuting), cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query stuck actions: %w", err)
	}
	defer rows.Close()

	var actions []remediation.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, *action)
	}
	return actions, rows.Err()
}

func scanAction(row rowScanner) (*remediation.Action, error) {
	var (
		action                                     remediation.Action
		actionType, status                         string
		serviceName, alertID, createdBy            sql.NullString
		approvedBy, rejectedBy, rejectReason       sql.NullString
		stdout, stderr                             sql.NullString
		createdNS                                  int64
		approvedNS, rejectedNS, execNS, completeNS sql.NullInt64
		exitCode                                   sql.NullInt64
	)
	err := row.Scan(
		&action.ID, &action.ServerID, &actionType, &serviceName, &action.Command,
		&status, &alertID, &createdNS, &createdBy, &approvedNS, &approvedBy,
		&rejectedNS, &rejectedBy, &rejectReason, &execNS, &completeNS,
		&exitCode, &stdout, &stderr,
	)
	if err != nil {
		return nil, err
	}
	action.Type = remediation.ActionType(actionType)
	action.Status = remediation.ActionStatus(status)
	action.ServiceName = serviceName.String
	action.AlertID = alertID.String
	action.CreatedAt = nsToTimeValue(createdNS)
	action.CreatedBy = createdBy.String
	action.ApprovedAt = nsToTime(approvedNS)
	action.ApprovedBy = approvedBy.String
	action.RejectedAt = nsToTime(rejectedNS)
	action.RejectedBy = rejectedBy.String
	action.RejectReason = rejectReason.String
	action.ExecutedAt = nsToTime(execNS)
	action.CompletedAt = nsToTime(completeNS)
	if exitCode.Valid {
		code := int(exitCode.Int64)
		action.ExitCode = &code
	}
	action.Stdout = stdout.String
	action.Stderr = stderr.String
	return &action, nil
}

func intPtrToAny(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
