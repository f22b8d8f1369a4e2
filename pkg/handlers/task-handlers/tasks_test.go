/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package task_handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	dbclient "github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/client"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/authority"
)

type fakeRegistry struct {
	jobs []*dbclient.TrainingJob
}

func (f *fakeRegistry) GetJob(ctx context.Context, jobId string) (*dbclient.TrainingJob, error) {
	for _, job := range f.jobs {
		if job.JobId == jobId {
			return job, nil
		}
	}
	return nil, commonerrors.NewNotFoundWithMessage("job " + jobId + " not found")
}

func (f *fakeRegistry) ListJobsByOwner(ctx context.Context, ownerId string) ([]*dbclient.TrainingJob, error) {
	owned := []*dbclient.TrainingJob{}
	for _, job := range f.jobs {
		if job.OwnerId == ownerId {
			owned = append(owned, job)
		}
	}
	return owned, nil
}

func (f *fakeRegistry) SelectJobs(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*dbclient.TrainingJob, error) {
	return f.jobs, nil
}

type fakeResults struct {
	metas  map[string]*broker.TaskMeta
	active []*broker.ActiveTask
	stats  map[string]*broker.WorkerStats
}

func (f *fakeResults) GetState(ctx context.Context, taskId string) (*broker.TaskMeta, error) {
	if meta, ok := f.metas[taskId]; ok {
		return meta, nil
	}
	return &broker.TaskMeta{TaskId: taskId, Status: broker.StatePending}, nil
}

func (f *fakeResults) ListActive(ctx context.Context) ([]*broker.ActiveTask, error) {
	return f.active, nil
}

func (f *fakeResults) ListWorkerStats(ctx context.Context) (map[string]*broker.WorkerStats, error) {
	return f.stats, nil
}

func newFixture(t *testing.T) (*gin.Engine, *fakeRegistry, *fakeResults) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := &fakeRegistry{}
	results := &fakeResults{
		metas: map[string]*broker.TaskMeta{},
		stats: map[string]*broker.WorkerStats{},
	}
	engine := gin.New()
	InitTaskRouters(engine, NewHandler(registry, results), &authority.Authenticator{})
	return engine, registry, results
}

func getJson(t *testing.T, engine *gin.Engine, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestAllTasks(t *testing.T) {
	engine, registry, results := newFixture(t)
	registry.jobs = []*dbclient.TrainingJob{
		{JobId: "task-1", OwnerId: "anonymous"},
		{JobId: "task-2", OwnerId: "someone-else"},
	}
	results.metas["task-1"] = &broker.TaskMeta{
		TaskId: "task-1",
		Status: broker.StateSuccess,
		Result: json.RawMessage(`{"status":"done"}`),
	}
	results.metas["task-2"] = &broker.TaskMeta{
		TaskId:    "task-2",
		Status:    broker.StateFailure,
		Traceback: "boom",
	}

	var details []TaskDetail
	rec := getJson(t, engine, "/celery_utils/tasks", &details)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, details, 2)
	assert.Equal(t, "SUCCESS", details[0].State)
	assert.NotEmpty(t, details[0].Result)
	assert.Empty(t, details[0].Traceback)
	assert.Equal(t, "FAILURE", details[1].State)
	assert.Equal(t, "boom", details[1].Traceback)
	assert.Empty(t, details[1].Result)
}

func TestMyTasksScopedToCaller(t *testing.T) {
	engine, registry, _ := newFixture(t)
	registry.jobs = []*dbclient.TrainingJob{
		{JobId: "task-1", OwnerId: authority.AnonymousSubject},
		{JobId: "task-2", OwnerId: "someone-else"},
	}

	var details []TaskDetail
	rec := getJson(t, engine, "/celery_utils/tasks/my", &details)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, details, 1)
	assert.Equal(t, "task-1", details[0].Id)
	assert.Equal(t, "PENDING", details[0].State)
}

func TestRunningTasks(t *testing.T) {
	engine, _, results := newFixture(t)
	results.active = []*broker.ActiveTask{
		{TaskId: "task-1", Name: broker.TrainingTaskName, Worker: "worker-a", TimeStart: "2026-08-26T10:00:00Z"},
	}

	var running []RunningTask
	rec := getJson(t, engine, "/celery_utils/tasks/running", &running)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, running, 1)
	assert.Equal(t, "active", running[0].State)
	assert.Equal(t, "worker-a", running[0].Worker)
}

func TestMyRunningTasksFiltersByOwner(t *testing.T) {
	engine, registry, results := newFixture(t)
	registry.jobs = []*dbclient.TrainingJob{
		{JobId: "task-1", OwnerId: authority.AnonymousSubject},
		{JobId: "task-2", OwnerId: "someone-else"},
	}
	results.active = []*broker.ActiveTask{
		{TaskId: "task-1", Name: broker.TrainingTaskName, Worker: "worker-a"},
		{TaskId: "task-2", Name: broker.TrainingTaskName, Worker: "worker-b"},
	}

	var running []RunningTask
	rec := getJson(t, engine, "/celery_utils/tasks/running/my", &running)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, running, 1)
	assert.Equal(t, "task-1", running[0].Id)
}

func TestMyTaskEnforcesOwnership(t *testing.T) {
	engine, registry, _ := newFixture(t)
	registry.jobs = []*dbclient.TrainingJob{
		{JobId: "task-2", OwnerId: "someone-else"},
	}

	rec := getJson(t, engine, "/celery_utils/tasks/my/task-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = getJson(t, engine, "/celery_utils/tasks/my/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMyRunningTaskNotRunning(t *testing.T) {
	engine, registry, _ := newFixture(t)
	registry.jobs = []*dbclient.TrainingJob{
		{JobId: "task-1", OwnerId: authority.AnonymousSubject},
	}

	rec := getJson(t, engine, "/celery_utils/tasks/running/my/task-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not currently running")
}

func TestWorkerStats(t *testing.T) {
	engine, _, results := newFixture(t)
	rec := getJson(t, engine, "/celery_utils/workers/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	results.stats["worker-a"] = &broker.WorkerStats{
		Hostname: "worker-a", Pid: 17, Concurrency: 1, TasksExecuted: 3,
	}
	var stats map[string]broker.WorkerStats
	rec = getJson(t, engine, "/celery_utils/workers/stats", &stats)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, stats["worker-a"].TasksExecuted)
}
