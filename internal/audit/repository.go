// Package audit records every device update the bridge sends to MELCloud
// in the command_log table.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcomes stored in Command.Outcome.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed-width so that created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Command is a single device update and how MELCloud answered it.
type Command struct {
	ID             string    `json:"id"`
	DeviceID       int       `json:"device_id"`
	BuildingID     int       `json:"building_id"`
	Characteristic string    `json:"characteristic"`
	Value          float64   `json:"value"`
	EffectiveFlags int       `json:"effective_flags"`
	Outcome        string    `json:"outcome"`
	Error          string    `json:"error,omitempty"`
	Source         string    `json:"source,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter controls which commands to return.
type Filter struct {
	DeviceID int    // optional: 0 means all devices
	Outcome  string // optional: ok or failed
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains a page of commands.
type ListResult struct {
	Commands []Command `json:"commands"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Repository defines the interface for command log operations.
type Repository interface {
	Create(ctx context.Context, cmd *Command) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores commands in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new command log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a command. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, cmd *Command) error {
	if cmd.ID == "" {
		cmd.ID = "cmd-" + uuid.NewString()[:8]
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	if cmd.Outcome == "" {
		cmd.Outcome = OutcomeOK
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, device_id, building_id, characteristic, value,
		     effective_flags, outcome, error, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, cmd.DeviceID, cmd.BuildingID, cmd.Characteristic, cmd.Value,
		cmd.EffectiveFlags, cmd.Outcome,
		nullableString(cmd.Error), nullableString(cmd.Source),
		cmd.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns commands matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.DeviceID != 0 {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_log " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting commands: %w", err)
	}

	query := `SELECT id, device_id, building_id, characteristic, value, effective_flags,
	                 outcome, error, source, created_at
	          FROM command_log ` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?` //nolint:gosec // as above
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	commands := []Command{}
	for rows.Next() {
		var cmd Command
		var errText, source sql.NullString
		var createdAt string

		if err := rows.Scan(&cmd.ID, &cmd.DeviceID, &cmd.BuildingID, &cmd.Characteristic, &cmd.Value,
			&cmd.EffectiveFlags, &cmd.Outcome, &errText, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		cmd.Error = errText.String
		cmd.Source = source.String

		cmd.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command timestamp %q: %w", createdAt, err)
		}
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}

	return &ListResult{
		Commands: commands,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}
