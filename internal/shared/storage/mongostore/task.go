package mongostore

import (
	"context"
	"errors"
	"time"

	"gov-submit-admin/internal/model"
	"gov-submit-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var _ storage.TaskStore = (*Store)(nil)

// wrapError 将 MongoDB 错误转换为领域错误
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	return err
}

// CreateTask 创建任务
func (s *Store) CreateTask(ctx context.Context, task *model.SubmissionTask) error {
	_, err := s.col(ColSubmissionTasks).InsertOne(ctx, task)
	return wrapError(err)
}

// GetTask 按ID取任务
func (s *Store) GetTask(ctx context.Context, id string) (*model.SubmissionTask, error) {
	var task model.SubmissionTask
	err := s.col(ColSubmissionTasks).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&task)
	if err != nil {
		return nil, wrapError(err)
	}
	return &task, nil
}

// UpdateTask 全量更新任务
func (s *Store) UpdateTask(ctx context.Context, task *model.SubmissionTask) error {
	res, err := s.col(ColSubmissionTasks).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: task.ID}}, task)
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListTasks 按账号/状态过滤任务，按创建时间倒序
func (s *Store) ListTasks(ctx context.Context, accountID string, status model.SubmissionStatus, limit, offset int) ([]*model.SubmissionTask, error) {
	filter := bson.D{}
	if accountID != "" {
		filter = append(filter, bson.E{Key: "account_id", Value: accountID})
	}
	if status != "" {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cursor, err := s.col(ColSubmissionTasks).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	var tasks []*model.SubmissionTask
	for cursor.Next(ctx) {
		var task model.SubmissionTask
		if err := cursor.Decode(&task); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, cursor.Err()
}

// FailInFlightTasks 进程启动恢复：所有非终态任务标记失败
func (s *Store) FailInFlightTasks(ctx context.Context, reason string) (int, error) {
	now := time.Now()
	res, err := s.col(ColSubmissionTasks).UpdateMany(ctx,
		bson.D{{Key: "status", Value: bson.D{{Key: "$nin", Value: bson.A{
			model.StatusSubmitted, model.StatusFailed,
		}}}}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: model.StatusFailed},
			{Key: "failure_kind", Value: "process_restart"},
			{Key: "failure_detail", Value: reason},
			{Key: "updated_at", Value: now},
			{Key: "completed_at", Value: now},
		}}})
	if err != nil {
		return 0, wrapError(err)
	}
	return int(res.ModifiedCount), nil
}
