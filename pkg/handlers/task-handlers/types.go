/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package task_handlers

import (
	"encoding/json"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
)

// TaskDetail is the full result-backend view of a task. Result is only
// populated for succeeded tasks and Traceback only for failed ones.
type TaskDetail struct {
	Id        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	State     string          `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	Traceback string          `json:"traceback,omitempty"`
	DateDone  string          `json:"date_done,omitempty"`
	Worker    string          `json:"worker,omitempty"`
	Retries   int             `json:"retries"`
	Queue     string          `json:"queue,omitempty"`
}

// RunningTask is the live view of a task a worker is executing.
type RunningTask struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Worker    string `json:"worker"`
	TimeStart string `json:"time_start,omitempty"`
}

func taskDetail(meta *broker.TaskMeta) *TaskDetail {
	detail := &TaskDetail{
		Id:       meta.TaskId,
		Name:     meta.Name,
		State:    string(meta.Status),
		DateDone: meta.DateDone,
		Worker:   meta.Worker,
		Retries:  meta.Retries,
		Queue:    meta.Queue,
	}
	switch meta.Status {
	case broker.StateSuccess:
		detail.Result = meta.Result
	case broker.StateFailure:
		detail.Traceback = meta.Traceback
	}
	return detail
}

func runningTask(task *broker.ActiveTask) *RunningTask {
	return &RunningTask{
		Id:        task.TaskId,
		Name:      task.Name,
		State:     "active",
		Worker:    task.Worker,
		TimeStart: task.TimeStart,
	}
}
