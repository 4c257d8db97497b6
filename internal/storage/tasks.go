package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TaskStatus mirrors the lifecycle states of an AnalysisTask row.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskType tags the kind of deferred computation an AnalysisTask performs.
type TaskType string

const (
	TaskStock          TaskType = "stock_analysis"
	TaskOption         TaskType = "option_analysis"
	TaskOptionEnhanced TaskType = "enhanced_option_analysis"
)

// AnalysisTask is a unit of deferred computation tracked from PENDING through
// a terminal COMPLETED or FAILED state.
type AnalysisTask struct {
	ID                 uuid.UUID       `db:"id"`
	UserID             string          `db:"user_id"`
	TaskType           string          `db:"task_type"`
	Status             TaskStatus      `db:"status"`
	Priority           int             `db:"priority"`
	InputParams        json.RawMessage `db:"input_params"`
	ProgressPercent    int             `db:"progress_percent"`
	CurrentStep        sql.NullString  `db:"current_step"`
	ResultData         json.RawMessage `db:"result_data"`
	ErrorMessage       sql.NullString  `db:"error_message"`
	CreatedAt          time.Time       `db:"created_at"`
	StartedAt          sql.NullTime    `db:"started_at"`
	CompletedAt        sql.NullTime    `db:"completed_at"`
	RelatedHistoryID   sql.NullInt64   `db:"related_history_id"`
	RelatedHistoryType sql.NullString  `db:"related_history_type"`
}

// TaskRepository persists AnalysisTask rows and tracks their progress.
type TaskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *AnalysisTask) error {
	const q = `
		INSERT INTO analysis_tasks
			(id, user_id, task_type, status, priority, input_params, progress_percent, created_at)
		VALUES
			(:id, :user_id, :task_type, :status, :priority, :input_params, :progress_percent, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, task)
	return err
}

func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (*AnalysisTask, error) {
	var task AnalysisTask
	const q = `SELECT * FROM analysis_tasks WHERE id = $1`
	if err := r.db.GetContext(ctx, &task, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// ListByUser returns a user's tasks, newest first, for the task-status/history surface.
func (r *TaskRepository) ListByUser(ctx context.Context, userID string, limit int) ([]AnalysisTask, error) {
	const q = `
		SELECT * FROM analysis_tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	var tasks []AnalysisTask
	if err := r.db.SelectContext(ctx, &tasks, q, userID, limit); err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkProcessing transitions a task from PENDING to PROCESSING, stamping
// started_at only on this first transition.
func (r *TaskRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE analysis_tasks
		SET status = $2, started_at = COALESCE(started_at, now())
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, TaskProcessing)
	return err
}

// truncate matches _update_task_status's bounded-field rules: current_step is
// capped at 1000 chars, error_message at 5000 chars, both with a "..." tail.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// UpdateProgress records a progress-percent/step-message pair for a task
// currently in PROCESSING. current_step is truncated to 1000 characters.
func (r *TaskRepository) UpdateProgress(ctx context.Context, id uuid.UUID, percent int, step string) error {
	const q = `
		UPDATE analysis_tasks
		SET progress_percent = $2, current_step = $3
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, percent, truncate(step, 1000))
	return err
}

// Complete transitions a task to COMPLETED, recording its result payload,
// optional link to a history row, and the final step message.
func (r *TaskRepository) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage, historyID *int64, historyType, step string) error {
	const q = `
		UPDATE analysis_tasks
		SET status = $2, progress_percent = 100, current_step = $3, result_data = $4,
		    related_history_id = $5, related_history_type = $6, completed_at = now()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, TaskCompleted, truncate(step, 1000), result, historyID, nullIfEmpty(historyType))
	return err
}

// Fail transitions a task to FAILED, matching _update_task_status's
// failure-path behavior: progress resets to 0 and both current_step and
// error_message carry the (independently truncated) failure text.
func (r *TaskRepository) Fail(ctx context.Context, id uuid.UUID, step, errMsg string) error {
	const q = `
		UPDATE analysis_tasks
		SET status = $2, progress_percent = 0, current_step = $3, error_message = $4, completed_at = now()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, TaskFailed, truncate(step, 1000), truncate(errMsg, 5000))
	return err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
