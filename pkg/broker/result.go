/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const (
	taskMetaPrefix  = "celery-task-meta-"
	activeTasksKey  = "active-tasks"
	workerStatsKey  = "worker-stats"
	heartbeatExpiry = 5 * time.Minute
)

// ResultBackend stores task states and results in redis, keyed the way the
// task endpoints expect to read them back.
type ResultBackend struct {
	client *redis.Client
}

// NewResultBackend parses the backend URL and connects.
func NewResultBackend(ctx context.Context, rawUrl string) (*ResultBackend, error) {
	opts, err := redis.ParseURL(rawUrl)
	if err != nil {
		return nil, commonerrors.NewBrokerUnavailable("invalid result backend url").WithError(err)
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, commonerrors.NewBrokerUnavailable("failed to ping result backend").WithError(err)
	}
	klog.Infof("init result backend successfully! addr: %s", opts.Addr)
	return &ResultBackend{client: client}, nil
}

// SetState writes the task meta record. Results persist without expiry so a
// job's outcome stays queryable.
func (b *ResultBackend) SetState(ctx context.Context, meta *TaskMeta) error {
	if meta == nil || meta.TaskId == "" {
		return commonerrors.NewBadRequest("the task meta is incomplete")
	}
	if meta.DateDone == "" && (meta.Status == StateSuccess || meta.Status == StateFailure) {
		meta.DateDone = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return commonerrors.NewInternalError("failed to marshal task meta").WithError(err)
	}
	err = b.client.Set(ctx, taskMetaPrefix+meta.TaskId, payload, 0).Err()
	if err != nil {
		return commonerrors.NewBrokerUnavailable("failed to write task meta").WithError(err)
	}
	return nil
}

// GetState reads the task meta record. A task the backend has never seen
// reads back as PENDING, matching the submit-before-execute window.
func (b *ResultBackend) GetState(ctx context.Context, taskId string) (*TaskMeta, error) {
	if taskId == "" {
		return nil, commonerrors.NewBadRequest("taskId is empty")
	}
	payload, err := b.client.Get(ctx, taskMetaPrefix+taskId).Bytes()
	if err == redis.Nil {
		return &TaskMeta{TaskId: taskId, Status: StatePending}, nil
	}
	if err != nil {
		return nil, commonerrors.NewBrokerUnavailable("failed to read task meta").WithError(err)
	}
	meta := &TaskMeta{}
	if err = json.Unmarshal(payload, meta); err != nil {
		return nil, commonerrors.NewInternalError("corrupt task meta").WithError(err)
	}
	return meta, nil
}

// MarkActive registers a task as executing on a worker.
func (b *ResultBackend) MarkActive(ctx context.Context, task *ActiveTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return commonerrors.NewInternalError("failed to marshal active task").WithError(err)
	}
	err = b.client.HSet(ctx, activeTasksKey, task.TaskId, payload).Err()
	if err != nil {
		return commonerrors.NewBrokerUnavailable("failed to mark task active").WithError(err)
	}
	return nil
}

// ClearActive removes a task from the active set.
func (b *ResultBackend) ClearActive(ctx context.Context, taskId string) error {
	err := b.client.HDel(ctx, activeTasksKey, taskId).Err()
	if err != nil {
		return commonerrors.NewBrokerUnavailable("failed to clear active task").WithError(err)
	}
	return nil
}

// ListActive returns all tasks currently marked active, across workers.
func (b *ResultBackend) ListActive(ctx context.Context) ([]*ActiveTask, error) {
	entries, err := b.client.HGetAll(ctx, activeTasksKey).Result()
	if err != nil {
		return nil, commonerrors.NewBrokerUnavailable("failed to list active tasks").WithError(err)
	}
	tasks := make([]*ActiveTask, 0, len(entries))
	for taskId, payload := range entries {
		task := &ActiveTask{}
		if err = json.Unmarshal([]byte(payload), task); err != nil {
			klog.Warningf("skipping corrupt active task entry, id: %s", taskId)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// ReportWorkerStats publishes a worker's heartbeat. Entries expire so a dead
// worker drops out of the stats listing.
func (b *ResultBackend) ReportWorkerStats(ctx context.Context, stats *WorkerStats) error {
	if stats == nil || stats.Hostname == "" {
		return commonerrors.NewBadRequest("the worker stats are incomplete")
	}
	stats.LastHeartbeat = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(stats)
	if err != nil {
		return commonerrors.NewInternalError("failed to marshal worker stats").WithError(err)
	}
	key := fmt.Sprintf("%s:%s", workerStatsKey, stats.Hostname)
	err = b.client.Set(ctx, key, payload, heartbeatExpiry).Err()
	if err != nil {
		return commonerrors.NewBrokerUnavailable("failed to report worker stats").WithError(err)
	}
	return nil
}

// ListWorkerStats returns the stats of every live worker.
func (b *ResultBackend) ListWorkerStats(ctx context.Context) (map[string]*WorkerStats, error) {
	var cursor uint64
	stats := make(map[string]*WorkerStats)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, workerStatsKey+":*", 100).Result()
		if err != nil {
			return nil, commonerrors.NewBrokerUnavailable("failed to scan worker stats").WithError(err)
		}
		for _, key := range keys {
			payload, err := b.client.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, commonerrors.NewBrokerUnavailable("failed to read worker stats").WithError(err)
			}
			entry := &WorkerStats{}
			if err = json.Unmarshal(payload, entry); err != nil {
				klog.Warningf("skipping corrupt worker stats entry, key: %s", key)
				continue
			}
			stats[entry.Hostname] = entry
		}
		cursor = next
		if cursor == 0 {
			return stats, nil
		}
	}
}

// Close releases the redis connection.
func (b *ResultBackend) Close() {
	if err := b.client.Close(); err != nil {
		klog.ErrorS(err, "failed to close result backend")
	}
}
