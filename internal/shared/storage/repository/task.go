// Package repository SubmissionTask 相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gov-submit-admin/internal/model"
	"gov-submit-admin/internal/shared/storage"
)

var _ storage.TaskStore = (*Store)(nil)

const taskColumns = `id, account_id, target_site, mode, template_code, input_fields, file_name,
	status, failure_kind, failure_detail, screenshot_ref, fallback_data,
	created_at, updated_at, completed_at`

// CreateTask 创建任务
func (s *Store) CreateTask(ctx context.Context, task *model.SubmissionTask) error {
	fieldsJSON, _ := json.Marshal(task.InputFields)

	query := s.rebind(`
		INSERT INTO submission_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`)
	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.AccountID, task.TargetSite, task.Mode, task.TemplateCode,
		string(fieldsJSON), task.FileName,
		task.Status, task.FailureKind, task.FailureDetail, task.ScreenshotRef, task.FallbackData,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt)
	if err != nil {
		if isDuplicateErr(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask 获取任务
func (s *Store) GetTask(ctx context.Context, id string) (*model.SubmissionTask, error) {
	query := s.rebind(`SELECT ` + taskColumns + ` FROM submission_tasks WHERE id = $1`)
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return task, nil
}

// UpdateTask 全量更新任务
func (s *Store) UpdateTask(ctx context.Context, task *model.SubmissionTask) error {
	fieldsJSON, _ := json.Marshal(task.InputFields)

	query := s.rebind(`
		UPDATE submission_tasks SET
			status = $1, failure_kind = $2, failure_detail = $3,
			screenshot_ref = $4, fallback_data = $5, input_fields = $6,
			file_name = $7, updated_at = $8, completed_at = $9
		WHERE id = $10
	`)
	result, err := s.db.ExecContext(ctx, query,
		task.Status, task.FailureKind, task.FailureDetail,
		task.ScreenshotRef, task.FallbackData, string(fieldsJSON),
		task.FileName, task.UpdatedAt, task.CompletedAt, task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListTasks 列出任务，按创建时间倒序
func (s *Store) ListTasks(ctx context.Context, accountID string, status model.SubmissionStatus, limit, offset int) ([]*model.SubmissionTask, error) {
	var conditions []string
	var args []interface{}

	if accountID != "" {
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", len(args)+1))
		args = append(args, accountID)
	}
	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, status)
	}

	query := `SELECT ` + taskColumns + ` FROM submission_tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.SubmissionTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// FailInFlightTasks 进程启动恢复：所有非终态任务标记失败
func (s *Store) FailInFlightTasks(ctx context.Context, reason string) (int, error) {
	query := s.rebind(fmt.Sprintf(`
		UPDATE submission_tasks SET
			status = $1, failure_kind = $2, failure_detail = $3,
			updated_at = %s, completed_at = %s
		WHERE status NOT IN ($4, $5)
	`, s.dialect.CurrentTimestamp(), s.dialect.CurrentTimestamp()))

	result, err := s.db.ExecContext(ctx, query,
		model.StatusFailed, "process_restart", reason,
		model.StatusSubmitted, model.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to mark in-flight tasks: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// scanTask 从数据库行扫描 SubmissionTask
func scanTask(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.SubmissionTask, error) {
	task := &model.SubmissionTask{}
	var fieldsJSON sql.NullString
	var templateCode, fileName, failureKind, failureDetail, screenshotRef, fallbackData sql.NullString
	var completedAt sql.NullTime

	err := scanner.Scan(
		&task.ID, &task.AccountID, &task.TargetSite, &task.Mode, &templateCode,
		&fieldsJSON, &fileName,
		&task.Status, &failureKind, &failureDetail, &screenshotRef, &fallbackData,
		&task.CreatedAt, &task.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	task.TemplateCode = templateCode.String
	task.FileName = fileName.String
	task.FailureKind = failureKind.String
	task.FailureDetail = failureDetail.String
	task.ScreenshotRef = screenshotRef.String
	task.FallbackData = fallbackData.String
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	if fieldsJSON.Valid && fieldsJSON.String != "" && fieldsJSON.String != "null" {
		json.Unmarshal([]byte(fieldsJSON.String), &task.InputFields)
	}
	return task, nil
}

// isDuplicateErr 判断唯一键冲突（pg 23505 / sqlite UNIQUE constraint）
func isDuplicateErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint")
}
