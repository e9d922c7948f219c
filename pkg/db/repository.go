package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/gamermine/convertisseur/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the tool manifest
type Repository struct {
	db *sql.DB
}

// NewRepository opens the manifest and creates the schema if needed
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Debug("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Upsert inserts a tool or replaces the row with the same name
func (r *Repository) Upsert(ctx context.Context, tool *Tool) error {
	slog.Info("database_upsert_tool", "name", tool.Name, "status", tool.Status)

	query := `
		INSERT INTO tools (name, path, source_url, sha256, size, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
		    path = excluded.path,
		    source_url = excluded.source_url,
		    sha256 = excluded.sha256,
		    size = excluded.size,
		    status = excluded.status,
		    error_message = excluded.error_message,
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query,
		tool.Name, tool.Path, tool.SourceURL, tool.SHA256, tool.Size, tool.Status, tool.ErrorMessage)
	if err != nil {
		slog.Error("database_upsert_failed", "name", tool.Name, "error", err)
		return errors.Wrap(err, "failed to upsert tool")
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM tools WHERE name = ?`, tool.Name).Scan(&id); err != nil {
		return errors.Wrap(err, "failed to read tool id")
	}
	tool.ID = id
	return nil
}

const toolColumns = `id, name, path, source_url, sha256, size, status, error_message, checked_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTool(row scanner) (*Tool, error) {
	var tool Tool
	var errorMessage, checkedAt sql.NullString
	err := row.Scan(&tool.ID, &tool.Name, &tool.Path, &tool.SourceURL, &tool.SHA256, &tool.Size,
		&tool.Status, &errorMessage, &checkedAt, &tool.CreatedAt, &tool.UpdatedAt)
	if err != nil {
		return nil, err
	}
	tool.ErrorMessage = errorMessage.String
	tool.CheckedAt = checkedAt.String
	return &tool, nil
}

// GetByName retrieves a tool by name. A missing tool yields nil, nil.
func (r *Repository) GetByName(ctx context.Context, name string) (*Tool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE name = ?`, name)
	tool, err := scanTool(row)
	if err == sql.ErrNoRows {
		slog.Debug("database_tool_not_found", "name", name)
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "name", name, "error", err)
		return nil, errors.Wrap(err, "failed to query tool")
	}
	return tool, nil
}

// UpdateStatus updates only the status field
func (r *Repository) UpdateStatus(ctx context.Context, name, status, errorMessage string) error {
	slog.Info("database_update_status", "name", name, "status", status)

	query := `UPDATE tools SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ?`
	result, err := r.db.ExecContext(ctx, query, status, errorMessage, name)
	if err != nil {
		slog.Error("database_status_update_failed", "name", name, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("tool not found: %s", name)
	}
	return nil
}

// MarkChecked stamps the time of the last self-update check
func (r *Repository) MarkChecked(ctx context.Context, name string) error {
	query := `UPDATE tools SET checked_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE name = ?`
	if _, err := r.db.ExecContext(ctx, query, name); err != nil {
		slog.Error("database_mark_checked_failed", "name", name, "error", err)
		return errors.Wrap(err, "failed to mark tool checked")
	}
	return nil
}

// List retrieves all tools
func (r *Repository) List(ctx context.Context) ([]*Tool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+toolColumns+` FROM tools ORDER BY name`)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list tools")
	}
	defer rows.Close()

	var tools []*Tool
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		tools = append(tools, tool)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return tools, nil
}

// Delete deletes a tool by ID
func (r *Repository) Delete(ctx context.Context, id int64) error {
	slog.Info("database_delete_tool", "tool_id", id)

	if _, err := r.db.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id); err != nil {
		slog.Error("database_delete_failed", "tool_id", id, "error", err)
		return errors.Wrap(err, "failed to delete tool")
	}
	return nil
}

// StartRun records the beginning of a provisioning run
func (r *Repository) StartRun(ctx context.Context, id, libsDir string) error {
	query := `INSERT INTO provision_runs (id, libs_dir, status) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, id, libsDir, RunRunning); err != nil {
		slog.Error("database_run_insert_failed", "run_id", id, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}
	return nil
}

// FinishRun stores the outcome of a provisioning run
func (r *Repository) FinishRun(ctx context.Context, id, status, failedStep, errorMessage string) error {
	query := `
		UPDATE provision_runs
		SET status = ?, failed_step = ?, error_message = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query, status, failedStep, errorMessage, id)
	if err != nil {
		slog.Error("database_run_update_failed", "run_id", id, "error", err)
		return errors.Wrap(err, "failed to update run")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT id, libs_dir, status, failed_step, error_message, started_at, finished_at
		FROM provision_runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var failedStep, errorMessage, finishedAt sql.NullString
		if err := rows.Scan(&run.ID, &run.LibsDir, &run.Status, &failedStep, &errorMessage,
			&run.StartedAt, &finishedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		run.FailedStep = failedStep.String
		run.ErrorMessage = errorMessage.String
		run.FinishedAt = finishedAt.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
