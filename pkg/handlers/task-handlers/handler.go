/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package task_handlers serves the task introspection API: listings of
// all known tasks, currently running tasks, owner-scoped variants of
// both, and worker statistics.
package task_handlers

import (
	"context"

	sqrl "github.com/Masterminds/squirrel"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	dbclient "github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/client"
)

// jobRegistry is the registry slice the listings need.
type jobRegistry interface {
	GetJob(ctx context.Context, jobId string) (*dbclient.TrainingJob, error)
	ListJobsByOwner(ctx context.Context, ownerId string) ([]*dbclient.TrainingJob, error)
	SelectJobs(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*dbclient.TrainingJob, error)
}

// resultBackend reads task state and worker liveness records.
type resultBackend interface {
	GetState(ctx context.Context, taskId string) (*broker.TaskMeta, error)
	ListActive(ctx context.Context) ([]*broker.ActiveTask, error)
	ListWorkerStats(ctx context.Context) (map[string]*broker.WorkerStats, error)
}

// Handler handles HTTP requests for task and worker introspection.
type Handler struct {
	registry jobRegistry
	results  resultBackend
}

// NewHandler creates a new task handler.
func NewHandler(registry jobRegistry, results resultBackend) *Handler {
	return &Handler{registry: registry, results: results}
}
