package store

import (
	"context"
	"database/sql"
	"fmt"

	"nichescout/models"
)

// CreateTask records the start of a pipeline invocation and returns its id.
func (s *Store) CreateTask(ctx context.Context, keyword, parameters string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_tasks (keyword, parameters, status)
		VALUES (?, ?, ?)`, keyword, parameters, string(models.TaskPending))
	if err != nil {
		return 0, fmt.Errorf("store: create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: task id: %w", err)
	}
	return id, nil
}

// AdvanceTask moves a task to the given stage.
func (s *Store) AdvanceTask(ctx context.Context, taskID int64, status models.TaskStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrape_tasks
		SET status = ?, last_stage = status, updated_at = datetime('now')
		WHERE task_id = ?`, string(status), taskID)
	if err != nil {
		return fmt.Errorf("store: advance task %d: %w", taskID, err)
	}
	return nil
}

// FailTask marks a task failed, keeping the last completed stage for
// inspection or resume.
func (s *Store) FailTask(ctx context.Context, taskID int64, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrape_tasks
		SET last_stage = status, status = ?, error_message = ?, updated_at = datetime('now')
		WHERE task_id = ?`, string(models.TaskFailed), message, taskID)
	if err != nil {
		return fmt.Errorf("store: fail task %d: %w", taskID, err)
	}
	return nil
}

// Task loads one task row.
func (s *Store) Task(ctx context.Context, taskID int64) (*models.ScrapeTask, error) {
	var (
		t         models.ScrapeTask
		lastStage sql.NullString
		errMsg    sql.NullString
		params    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, keyword, parameters, status, last_stage, error_message, created_at, updated_at
		FROM scrape_tasks WHERE task_id = ?`, taskID).
		Scan(&t.ID, &t.Keyword, &params, (*string)(&t.Status), &lastStage, &errMsg, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: load task %d: %w", taskID, err)
	}
	t.Parameters = params.String
	t.LastStage = models.TaskStatus(lastStage.String)
	t.ErrorMessage = errMsg.String
	return &t, nil
}
