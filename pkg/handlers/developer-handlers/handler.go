/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package developer_handlers serves the job submission API: multipart
// upload of the three training materials, staging to the blob store,
// task submission, and owner-scoped job queries.
package developer_handlers

import (
	"context"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	dbclient "github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/client"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/storage"
)

// jobRegistry is the registry slice the handlers use.
type jobRegistry interface {
	CreateJob(ctx context.Context, job *dbclient.TrainingJob) error
	GetJob(ctx context.Context, jobId string) (*dbclient.TrainingJob, error)
}

// taskSubmitter enqueues training tasks.
type taskSubmitter interface {
	SubmitTraining(ctx context.Context, task *broker.TrainingTask) (string, error)
}

// resultReader reads task state from the result backend.
type resultReader interface {
	GetState(ctx context.Context, taskId string) (*broker.TaskMeta, error)
}

// Config carries the handler settings.
type Config struct {
	TrainingBucket      string
	PresignExpireSecond int
	SupportedFrameworks []string
}

// Handler handles HTTP requests for job submission and job queries.
type Handler struct {
	cfg       Config
	store     storage.Interface
	registry  jobRegistry
	submitter taskSubmitter
	results   resultReader
}

// NewHandler creates a new developer handler.
func NewHandler(cfg Config, store storage.Interface, registry jobRegistry,
	submitter taskSubmitter, results resultReader) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		submitter: submitter,
		results:   results,
	}
}
