// Package redis TaskEvents 事件总线操作
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"gov-submit-admin/internal/shared/eventbus"
)

var _ eventbus.TaskEventBus = (*Store)(nil)

// PublishTaskEvent 发布任务事件
func (s *Store) PublishTaskEvent(ctx context.Context, taskID string, event *eventbus.TaskEvent) error {
	key := eventbus.KeyTaskEvents + taskID

	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: key,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"type":      event.Type,
			"timestamp": event.Timestamp.Format(time.RFC3339Nano),
			"data":      string(dataJSON),
		},
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Printf("[Redis/EventBus] Published event: task=%s seq=%s type=%s", taskID, id, event.Type)
	return nil
}

// GetTaskEvents 获取任务事件列表
func (s *Store) GetTaskEvents(ctx context.Context, taskID string, fromID string, count int64) ([]*eventbus.TaskEvent, error) {
	key := eventbus.KeyTaskEvents + taskID

	if fromID == "" {
		fromID = "0"
	}

	msgs, err := s.client.XRange(ctx, key, fromID, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	var events []*eventbus.TaskEvent
	for _, msg := range msgs {
		events = append(events, decodeMessage(taskID, msg))
		if count > 0 && int64(len(events)) >= count {
			break
		}
	}
	return events, nil
}

// SubscribeTaskEvents 订阅任务事件
func (s *Store) SubscribeTaskEvents(ctx context.Context, taskID string) (<-chan *eventbus.TaskEvent, error) {
	key := eventbus.KeyTaskEvents + taskID
	ch := make(chan *eventbus.TaskEvent, 100)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{key, lastID},
				Count:   10,
				Block:   5 * time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Redis/EventBus] Event subscription error: %v", err)
				return
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					select {
					case ch <- decodeMessage(taskID, msg):
					case <-ctx.Done():
						return
					}
					lastID = msg.ID
				}
			}
		}
	}()

	return ch, nil
}

// DeleteTaskEvents 删除任务的事件流
func (s *Store) DeleteTaskEvents(ctx context.Context, taskID string) error {
	return s.client.Del(ctx, eventbus.KeyTaskEvents+taskID).Err()
}

// decodeMessage 将 Stream 消息解码为 TaskEvent
func decodeMessage(taskID string, msg redis.XMessage) *eventbus.TaskEvent {
	event := &eventbus.TaskEvent{
		ID:     msg.ID,
		TaskID: taskID,
	}
	if t, ok := msg.Values["type"].(string); ok {
		event.Type = t
	}
	if ts, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Timestamp = t
		}
	}
	if dataStr, ok := msg.Values["data"].(string); ok {
		var data map[string]string
		if err := json.Unmarshal([]byte(dataStr), &data); err == nil {
			event.Data = data
		}
	}
	return event
}
