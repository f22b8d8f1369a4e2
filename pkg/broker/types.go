/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package broker

import (
	"encoding/json"
)

const (
	TasksExchange = "tasks"

	TrainingQueue      = "training_queue"
	TrainingBinding    = "training.#"
	TrainingRoutingKey = "training.default"
	TrainingTaskName   = "tasks.run_training"

	ScannerQueue      = "scanner_queue"
	ScannerBinding    = "scanner.#"
	ScannerRoutingKey = "scanner.default"
	ScannerTaskName   = "tasks.scan_worker_and_self_images"

	retriesHeader = "retries"
	taskHeader    = "task"
	idHeader      = "id"
)

// TaskState is the raw backend state of a task.
type TaskState string

const (
	StatePending TaskState = "PENDING"
	StateStarted TaskState = "STARTED"
	StateRetry   TaskState = "RETRY"
	StateSuccess TaskState = "SUCCESS"
	StateFailure TaskState = "FAILURE"
)

// JobStatus is the user-facing status derived from the backend state.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// StateToJobStatus folds backend states into the four user-facing statuses.
// Unknown task ids read back as PENDING, so they surface as pending too.
func StateToJobStatus(state TaskState) JobStatus {
	switch state {
	case StateStarted, StateRetry:
		return JobStatusRunning
	case StateSuccess:
		return JobStatusSucceeded
	case StateFailure:
		return JobStatusFailed
	default:
		return JobStatusPending
	}
}

// TrainingTask is the message body published on the training queue.
type TrainingTask struct {
	StagingDir     string                 `json:"staging_dir"`
	ModelUrl       string                 `json:"model_url"`
	DatasetUrl     string                 `json:"dataset_url"`
	DefinitionUrl  string                 `json:"definition_url"`
	OptionalParams map[string]string      `json:"optional_params,omitempty"`
	FitParams      map[string]interface{} `json:"fit_params,omitempty"`
}

// TaskMeta is the result-backend record for a task, stored as JSON under
// celery-task-meta-<id>.
type TaskMeta struct {
	TaskId    string          `json:"task_id"`
	Name      string          `json:"name,omitempty"`
	Status    TaskState       `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Traceback string          `json:"traceback,omitempty"`
	DateDone  string          `json:"date_done,omitempty"`
	Worker    string          `json:"worker,omitempty"`
	Retries   int             `json:"retries"`
	Queue     string          `json:"queue,omitempty"`
}

// ActiveTask describes a task a worker is currently executing.
type ActiveTask struct {
	TaskId    string `json:"task_id"`
	Name      string `json:"name"`
	Worker    string `json:"worker"`
	TimeStart string `json:"time_start"`
}

// WorkerStats is a worker's self-reported runtime profile.
type WorkerStats struct {
	Hostname      string `json:"hostname"`
	Pid           int    `json:"pid"`
	Concurrency   int    `json:"concurrency"`
	TasksExecuted int64  `json:"tasks_executed"`
	Uptime        string `json:"uptime"`
	LastHeartbeat string `json:"last_heartbeat"`
}
