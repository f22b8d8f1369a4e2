/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"k8s.io/klog/v2"

	dbutils "github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/utils"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const (
	TTrainingJob = "training_job"

	uniqueViolation = pq.ErrorCode("23505")
)

var (
	insertTrainingJobFormat = `INSERT INTO ` + TTrainingJob + ` (%s) VALUES (%s)`
)

// CreateJob inserts a new job record. The job_id column carries a unique
// constraint so a duplicate task id surfaces as AlreadyExist.
func (c *Client) CreateJob(ctx context.Context, job *TrainingJob) error {
	if job == nil || job.JobId == "" || job.OwnerId == "" || job.StagingDir == "" {
		return commonerrors.NewBadRequest("the job record is incomplete")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if !job.CreationTime.Valid {
		job.CreationTime = dbutils.NullTime(time.Now().UTC())
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*job, insertTrainingJobFormat, "id"), job)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return commonerrors.NewAlreadyExist(fmt.Sprintf("job %s already exists", job.JobId))
		}
		klog.ErrorS(err, "failed to insert job db", "id", job.JobId)
		return commonerrors.NewStoreUnavailable("failed to insert job").WithError(err)
	}
	return nil
}

// SelectJobs retrieves multiple job records.
func (c *Client) SelectJobs(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*TrainingJob, error) {
	startTime := time.Now().UTC()
	defer func() {
		if query != nil {
			strQuery := dbutils.CvtToSqlStr(query)
			klog.Infof("select job, query: %s, orderBy: %v, limit: %d, offset: %d, cost (%v)",
				strQuery, orderBy, limit, offset, time.Since(startTime))
		}
	}()
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}

	builder := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TTrainingJob).
		Where(query).
		OrderBy(orderBy...).
		Offset(uint64(offset))
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var jobs []*TrainingJob
	if c.RequestTimeout > 0 {
		ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
		err = db.SelectContext(ctx2, &jobs, sql, args...)
	} else {
		err = db.SelectContext(ctx, &jobs, sql, args...)
	}
	return jobs, err
}

// GetJob retrieves a job record by its task id.
func (c *Client) GetJob(ctx context.Context, jobId string) (*TrainingJob, error) {
	if jobId == "" {
		return nil, commonerrors.NewBadRequest("jobId is empty")
	}
	dbTags := GetTrainingJobFieldTags()
	dbSql := sqrl.Eq{GetFieldTag(dbTags, "JobId"): jobId}
	jobs, err := c.SelectJobs(ctx, dbSql, nil, 1, 0)
	if err != nil {
		klog.ErrorS(err, "failed to select job", "sql", dbutils.CvtToSqlStr(dbSql))
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, commonerrors.NewNotFoundWithMessage(fmt.Sprintf("job %s not found", jobId))
	}
	return jobs[0], nil
}

// ListJobsByOwner returns every job record owned by the given subject,
// newest first.
func (c *Client) ListJobsByOwner(ctx context.Context, ownerId string) ([]*TrainingJob, error) {
	if ownerId == "" {
		return nil, commonerrors.NewBadRequest("ownerId is empty")
	}
	dbTags := GetTrainingJobFieldTags()
	dbSql := sqrl.Eq{GetFieldTag(dbTags, "OwnerId"): ownerId}
	return c.SelectJobs(ctx, dbSql, []string{"creation_time DESC"}, 0, 0)
}

// CountJobs returns the total count of jobs matching the criteria.
func (c *Client) CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TTrainingJob).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}
