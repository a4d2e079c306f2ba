package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
)

// SQLiteAlertStore implements alerting.Store on SQLite.
type SQLiteAlertStore struct {
	db *sql.DB
}

// NewSQLiteAlertStore creates an alert store backed by parent's connection.
func NewSQLiteAlertStore(parent *SQLiteStore) *SQLiteAlertStore {
	return &SQLiteAlertStore{db: parent.db}
}

var _ alerting.Store = (*SQLiteAlertStore)(nil)

const alertColumns = `id, server_id, alert_type, severity, status, title, message,
	threshold_value, actual_value, created_at, acknowledged_at, acknowledged_by,
	resolved_at, auto_resolved, last_notified_at, notified_severity`

func (s *SQLiteAlertStore) CreateAlert(ctx context.Context, alert *alerting.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.ServerID, string(alert.Type), string(alert.Severity),
		string(alert.Status), alert.Title, alert.Message,
		alert.ThresholdValue, alert.ActualValue, alert.CreatedAt.UnixNano(),
		timeToNS(alert.AcknowledgedAt), alert.AcknowledgedBy,
		timeToNS(alert.ResolvedAt), alert.AutoResolved,
		timeToNS(alert.LastNotifiedAt), string(alert.NotifiedSeverity),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *SQLiteAlertStore) GetAlert(ctx context.Context, id string) (*alerting.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alerting.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}
	return alert, nil
}

func (s *SQLiteAlertStore) GetOpenAlert(ctx context.Context, serverID string, alertType alerting.AlertType) (*alerting.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE server_id = ? AND alert_type = ? AND status != ?
		ORDER BY created_at DESC LIMIT 1`
	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, serverID, string(alertType), string(alerting.StatusResolved)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alerting.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query open alert: %w", err)
	}
	return alert, nil
}

func (s *SQLiteAlertStore) ListAlerts(ctx context.Context, filter alerting.Filter) ([]alerting.Alert, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.ServerID != "" {
		where += " AND server_id = ?"
		args = append(args, filter.ServerID)
	}
	if filter.Type != "" {
		where += " AND alert_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		where += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts` + where + " ORDER BY created_at DESC"
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
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alerting.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, total, rows.Err()
}

func (s *SQLiteAlertStore) UpdateAlert(ctx context.Context, alert *alerting.Alert) error {
	query := `UPDATE alerts SET severity = ?, status = ?, title = ?, message = ?,
		threshold_value = ?, actual_value = ?, acknowledged_at = ?, acknowledged_by = ?,
		resolved_at = ?, auto_resolved = ?, last_notified_at = ?, notified_severity = ?
		WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query,
		string(alert.Severity), string(alert.Status), alert.Title, alert.Message,
		alert.ThresholdValue, alert.ActualValue,
		timeToNS(alert.AcknowledgedAt), alert.AcknowledgedBy,
		timeToNS(alert.ResolvedAt), alert.AutoResolved,
		timeToNS(alert.LastNotifiedAt), string(alert.NotifiedSeverity),
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return alerting.ErrAlertNotFound
	}
	return nil
}

// RecordNotification touches only the notification columns and only while the
// alert is unresolved, so the async notify path cannot overwrite lifecycle
// state written by the evaluator in the meantime.
func (s *SQLiteAlertStore) RecordNotification(ctx context.Context, id string, at time.Time, severity alerting.Severity) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET last_notified_at = ?, notified_severity = ?
		WHERE id = ? AND status != ?`,
		at.UnixNano(), string(severity), id, string(alerting.StatusResolved),
	)
	if err != nil {
		return false, fmt.Errorf("record notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteAlertStore) GetBreachCount(ctx context.Context, serverID string, metric alerting.MetricType) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM breach_counters WHERE server_id = ? AND metric = ?`,
		serverID, string(metric),
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query breach counter: %w", err)
	}
	return count, nil
}

func (s *SQLiteAlertStore) SetBreachCount(ctx context.Context, serverID string, metric alerting.MetricType, count int) error {
	if count <= 0 {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM breach_counters WHERE server_id = ? AND metric = ?`,
			serverID, string(metric),
		)
		if err != nil {
			return fmt.Errorf("delete breach counter: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO breach_counters (server_id, metric, count) VALUES (?, ?, ?)
		ON CONFLICT(server_id, metric) DO UPDATE SET count = excluded.count`,
		serverID, string(metric), count,
	)
	if err != nil {
		return fmt.Errorf("upsert breach counter: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*alerting.Alert, error) {
	var (
		alert                       alerting.Alert
		alertType, severity, status string
		message, ackBy, notifiedSev sql.NullString
		createdNS                   int64
		ackNS, resolvedNS, notifyNS sql.NullInt64
	)
	err := row.Scan(
		&alert.ID, &alert.ServerID, &alertType, &severity, &status,
		&alert.Title, &message, &alert.ThresholdValue, &alert.ActualValue,
		&createdNS, &ackNS, &ackBy, &resolvedNS, &alert.AutoResolved,
		&notifyNS, &notifiedSev,
	)
	if err != nil {
		return nil, err
	}
	alert.Type = alerting.AlertType(alertType)
	alert.Severity = alerting.Severity(severity)
	alert.Status = alerting.Status(status)
	alert.Message = message.String
	alert.CreatedAt = nsToTimeValue(createdNS)
	alert.AcknowledgedAt = nsToTime(ackNS)
	alert.AcknowledgedBy = ackBy.String
	alert.ResolvedAt = nsToTime(resolvedNS)
	alert.LastNotifiedAt = nsToTime(notifyNS)
	alert.NotifiedSeverity = alerting.Severity(notifiedSev.String)
	return &alert, nil
}
