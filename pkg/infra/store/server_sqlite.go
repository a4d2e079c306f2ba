package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
)

// SQLiteServerStore implements fleet.Store on SQLite.
type SQLiteServerStore struct {
	db *sql.DB
}

// NewSQLiteServerStore creates a server store backed by parent's connection.
func NewSQLiteServerStore(parent *SQLiteStore) *SQLiteServerStore {
	return &SQLiteServerStore{db: parent.db}
}

var _ fleet.Store = (*SQLiteServerStore)(nil)

const serverColumns = `id, name, status, is_paused, last_seen, created_at`

func (s *SQLiteServerStore) Create(ctx context.Context, server *fleet.Server) error {
	if server.ID == "" {
		server.ID = uuid.New().String()
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now()
	}
	if server.Status == "" {
		server.Status = fleet.StatusUnknown
	}

	query := `INSERT INTO servers (` + serverColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		server.ID, server.Name, string(server.Status), server.IsPaused,
		timeToNS(server.LastSeen), server.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert server: %w", err)
	}
	return nil
}

func (s *SQLiteServerStore) Get(ctx context.Context, id string) (*fleet.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE id = ?`
	server, err := scanServer(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fleet.ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query server: %w", err)
	}
	return server, nil
}

func (s *SQLiteServerStore) List(ctx context.Context, filter fleet.Filter) ([]fleet.Server, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM servers"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count servers: %w", err)
	}

	query := `SELECT ` + serverColumns + ` FROM servers` + where + " ORDER BY name ASC"
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
		return nil, 0, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	var servers []fleet.Server
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan server: %w", err)
		}
		servers = append(servers, *server)
	}
	return servers, total, rows.Err()
}

func (s *SQLiteServerStore) Update(ctx context.Context, server *fleet.Server) error {
	query := `UPDATE servers SET name = ?, status = ?, is_paused = ?, last_seen = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query,
		server.Name, string(server.Status), server.IsPaused,
		timeToNS(server.LastSeen), server.ID,
	)
	if err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fleet.ErrServerNotFound
	}
	return nil
}

func (s *SQLiteServerStore) SetPaused(ctx context.Context, id string, paused bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE servers SET is_paused = ? WHERE id = ?`, paused, id)
	if err != nil {
		return fmt.Errorf("set server paused: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fleet.ErrServerNotFound
	}
	return nil
}

func (s *SQLiteServerStore) Touch(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE servers SET last_seen = ?, status = ? WHERE id = ?`,
		at.UnixNano(), string(fleet.StatusOnline), id,
	)
	if err != nil {
		return fmt.Errorf("touch server: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fleet.ErrServerNotFound
	}
	return nil
}

func (s *SQLiteServerStore) ListOnlineStale(ctx context.Context, cutoff time.Time) ([]fleet.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers
		WHERE status = ? AND last_seen IS NOT NULL AND last_seen < ?
		ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, query, string(fleet.StatusOnline), cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query stale servers: %w", err)
	}
	defer rows.Close()

	var servers []fleet.Server
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		servers = append(servers, *server)
	}
	return servers, rows.Err()
}

func scanServer(row rowScanner) (*fleet.Server, error) {
	var (
		server    fleet.Server
		status    string
		lastSeen  sql.NullInt64
		createdNS int64
	)
	err := row.Scan(&server.ID, &server.Name, &status, &server.IsPaused, &lastSeen, &createdNS)
	if err != nil {
		return nil, err
	}
	server.Status = fleet.ServerStatus(status)
	server.LastSeen = nsToTime(lastSeen)
	server.CreatedAt = nsToTimeValue(createdNS)
	return &server, nil
}
