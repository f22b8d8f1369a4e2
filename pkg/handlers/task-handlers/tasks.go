/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package task_handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/apiutils"
	dbclient "github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/client"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/authority"
)

// AllTasks lists every known task with its result-backend state.
func (h *Handler) AllTasks(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		jobs, err := h.registry.SelectJobs(c.Request.Context(), nil, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return h.detailsOf(c.Request.Context(), jobs)
	})
}

// MyTasks lists the caller's tasks with their result-backend states.
func (h *Handler) MyTasks(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		jobs, err := h.registry.ListJobsByOwner(c.Request.Context(), authority.Subject(c))
		if err != nil {
			return nil, err
		}
		return h.detailsOf(c.Request.Context(), jobs)
	})
}

// RunningTasks lists every task a worker is currently executing.
func (h *Handler) RunningTasks(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		active, err := h.results.ListActive(c.Request.Context())
		if err != nil {
			return nil, err
		}
		running := []*RunningTask{}
		for _, task := range active {
			running = append(running, runningTask(task))
		}
		return running, nil
	})
}

// MyRunningTasks lists the currently executing tasks owned by the caller.
func (h *Handler) MyRunningTasks(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		jobs, err := h.registry.ListJobsByOwner(c.Request.Context(), authority.Subject(c))
		if err != nil {
			return nil, err
		}
		owned := map[string]bool{}
		for _, job := range jobs {
			owned[job.JobId] = true
		}
		active, err := h.results.ListActive(c.Request.Context())
		if err != nil {
			return nil, err
		}
		running := []*RunningTask{}
		for _, task := range active {
			if owned[task.TaskId] {
				running = append(running, runningTask(task))
			}
		}
		return running, nil
	})
}

// MyTask reports one owned task's result-backend state.
func (h *Handler) MyTask(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		job, err := h.ownedJob(c)
		if err != nil {
			return nil, err
		}
		meta, err := h.results.GetState(c.Request.Context(), job.JobId)
		if err != nil {
			return nil, err
		}
		return taskDetail(meta), nil
	})
}

// MyRunningTask reports one owned task if a worker is executing it now.
func (h *Handler) MyRunningTask(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		job, err := h.ownedJob(c)
		if err != nil {
			return nil, err
		}
		active, err := h.results.ListActive(c.Request.Context())
		if err != nil {
			return nil, err
		}
		for _, task := range active {
			if task.TaskId == job.JobId {
				return runningTask(task), nil
			}
		}
		return nil, commonerrors.NewNotFoundWithMessage("Task is not currently running.")
	})
}

// WorkerStats reports the statistics every live worker heartbeats into
// the result backend.
func (h *Handler) WorkerStats(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		stats, err := h.results.ListWorkerStats(c.Request.Context())
		if err != nil {
			return nil, err
		}
		if len(stats) == 0 {
			return nil, commonerrors.NewNotFoundWithMessage("No workers are currently running or reachable.")
		}
		return stats, nil
	})
}

func (h *Handler) detailsOf(ctx context.Context, jobs []*dbclient.TrainingJob) ([]*TaskDetail, error) {
	details := []*TaskDetail{}
	for _, job := range jobs {
		meta, err := h.results.GetState(ctx, job.JobId)
		if err != nil {
			return nil, err
		}
		details = append(details, taskDetail(meta))
	}
	return details, nil
}

func (h *Handler) ownedJob(c *gin.Context) (*dbclient.TrainingJob, error) {
	job, err := h.registry.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		if commonerrors.IsNotFound(err) {
			return nil, commonerrors.NewNotFoundWithMessage("Task not found or does not belong to the current user.")
		}
		return nil, err
	}
	if job.OwnerId != authority.Subject(c) {
		return nil, commonerrors.NewNotFoundWithMessage("Task not found or does not belong to the current user.")
	}
	return job, nil
}
