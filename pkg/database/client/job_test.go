/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"gotest.tools/v3/assert"

	dbutils "github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/utils"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NilError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Client{
		db:       sqlx.NewDb(db, "postgres"),
		DBConfig: &dbutils.DBConfig{},
	}, mock
}

func TestGetTrainingJobFieldTags(t *testing.T) {
	tags := GetTrainingJobFieldTags()

	assert.Equal(t, GetFieldTag(tags, "JobId"), "job_id")
	assert.Equal(t, GetFieldTag(tags, "OwnerId"), "owner_id")
	assert.Equal(t, GetFieldTag(tags, "StagingDir"), "staging_dir")
	assert.Equal(t, GetFieldTag(tags, "CreationTime"), "creation_time")
}

func TestGenInsertTrainingJobCmd(t *testing.T) {
	job := TrainingJob{}
	cmd := generateCommand(job, insertTrainingJobFormat, "id")

	assert.Assert(t, len(cmd) > 0, "Command should not be empty")
	assert.Assert(t, !strings.Contains(cmd, ":id"), "Serial column must be skipped")
	assert.Assert(t, strings.Contains(cmd, "job_id"))
	assert.Assert(t, strings.Contains(cmd, "owner_id"))
	assert.Assert(t, strings.Contains(cmd, "staging_dir"))
}

func TestCreateJob(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectExec(`INSERT INTO training_job`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := c.CreateJob(context.Background(), &TrainingJob{
		JobId:      "6c1f6f0e-8f7a-4f5c-9a3e-2b1d5e4c7a90",
		OwnerId:    "auth0|dev",
		StagingDir: "6c1f6f0e-8f7a-4f5c-9a3e-2b1d5e4c7a90",
	})
	assert.NilError(t, err)
	assert.NilError(t, mock.ExpectationsWereMet())
}

func TestCreateJobRejectsIncompleteRecord(t *testing.T) {
	c, _ := newMockClient(t)

	err := c.CreateJob(context.Background(), &TrainingJob{JobId: "id-only"})
	assert.Assert(t, commonerrors.IsBadRequest(err))

	err = c.CreateJob(context.Background(), nil)
	assert.Assert(t, commonerrors.IsBadRequest(err))
}

func TestCreateJobDuplicate(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectExec(`INSERT INTO training_job`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := c.CreateJob(context.Background(), &TrainingJob{
		JobId:      "dup",
		OwnerId:    "auth0|dev",
		StagingDir: "dup",
	})
	assert.Assert(t, commonerrors.IsAlreadyExist(err))
	assert.NilError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	c, mock := newMockClient(t)

	rows := sqlmock.NewRows([]string{"id", "job_id", "owner_id", "staging_dir", "creation_time"}).
		AddRow(int64(1), "job-1", "auth0|dev", "job-1", time.Now().UTC())
	mock.ExpectQuery(`SELECT \* FROM training_job`).
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := c.GetJob(context.Background(), "job-1")
	assert.NilError(t, err)
	assert.Equal(t, job.JobId, "job-1")
	assert.Equal(t, job.OwnerId, "auth0|dev")
	assert.NilError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT \* FROM training_job`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "owner_id", "staging_dir", "creation_time"}))

	_, err := c.GetJob(context.Background(), "missing")
	assert.Assert(t, commonerrors.IsNotFound(err))
}

func TestListJobsByOwner(t *testing.T) {
	c, mock := newMockClient(t)

	rows := sqlmock.NewRows([]string{"id", "job_id", "owner_id", "staging_dir", "creation_time"}).
		AddRow(int64(2), "job-2", "auth0|dev", "job-2", time.Now().UTC()).
		AddRow(int64(1), "job-1", "auth0|dev", "job-1", time.Now().UTC().Add(-time.Hour))
	mock.ExpectQuery(`SELECT \* FROM training_job`).
		WithArgs("auth0|dev").
		WillReturnRows(rows)

	jobs, err := c.ListJobsByOwner(context.Background(), "auth0|dev")
	assert.NilError(t, err)
	assert.Equal(t, len(jobs), 2)
	assert.Equal(t, jobs[0].JobId, "job-2")
}
