/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package developer_handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/apiutils"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	dbclient "github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/client"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/dataset"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/authority"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/training"
)

// SubmitJob ingests the three training materials, stages them to the blob
// store, enqueues the training task and records the job in the registry.
func (h *Handler) SubmitJob(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		return h.submitJob(c)
	})
}

func (h *Handler) submitJob(c *gin.Context) (interface{}, error) {
	owner := authority.Subject(c)

	optionalParams, err := h.collectMetadata(c)
	if err != nil {
		return nil, err
	}
	fitParams, err := collectFitParams(c)
	if err != nil {
		return nil, err
	}

	// Uploads are streamed to a private scratch dir, never held in memory.
	stagingDir := uuid.NewString()
	tempDir, err := os.MkdirTemp("", "submit-"+stagingDir)
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to create scratch dir").WithError(err)
	}
	defer os.RemoveAll(tempDir)

	modelPath, modelName, err := saveUpload(c, "model", tempDir)
	if err != nil {
		return nil, err
	}
	datasetPath, datasetName, err := saveUpload(c, "dataset", tempDir)
	if err != nil {
		return nil, err
	}
	definitionPath, definitionName, err := saveUpload(c, "dataset_definition", tempDir)
	if err != nil {
		return nil, err
	}

	def, err := dataset.LoadDefinition(definitionPath)
	if err != nil {
		return nil, err
	}
	if def.Type == dataset.KindImage {
		if err = dataset.ValidateZipEntries(datasetPath); err != nil {
			return nil, err
		}
	}

	ctx := c.Request.Context()
	modelUrl, err := h.store.PutFile(ctx, h.cfg.TrainingBucket,
		stagingDir+"/model/"+modelName, modelPath)
	if err != nil {
		return nil, err
	}
	datasetUrl, err := h.store.PutFile(ctx, h.cfg.TrainingBucket,
		stagingDir+"/dataset/"+datasetName, datasetPath)
	if err != nil {
		return nil, err
	}
	definitionUrl, err := h.store.PutFile(ctx, h.cfg.TrainingBucket,
		stagingDir+"/definition/"+definitionName, definitionPath)
	if err != nil {
		return nil, err
	}

	jobId, err := h.submitter.SubmitTraining(ctx, &broker.TrainingTask{
		StagingDir:     stagingDir,
		ModelUrl:       modelUrl,
		DatasetUrl:     datasetUrl,
		DefinitionUrl:  definitionUrl,
		OptionalParams: optionalParams,
		FitParams:      fitParams,
	})
	if err != nil {
		return nil, err
	}

	err = h.registry.CreateJob(ctx, &dbclient.TrainingJob{
		JobId:      jobId,
		OwnerId:    owner,
		StagingDir: stagingDir,
	})
	if err != nil {
		return nil, err
	}
	klog.Infof("job %s submitted by %s, stagingDir: %s", jobId, owner, stagingDir)
	return &SubmitResponse{
		JobId:     jobId,
		Status:    "Training started",
		UniqueDir: stagingDir,
	}, nil
}

// collectMetadata validates the framework literal and gathers the optional
// model-card fields.
func (h *Handler) collectMetadata(c *gin.Context) (map[string]string, error) {
	framework := c.PostForm("framework")
	if framework == "" {
		return nil, commonerrors.NewBadRequest("the framework field is required")
	}
	supported := false
	for _, candidate := range h.cfg.SupportedFrameworks {
		if candidate == framework {
			supported = true
			break
		}
	}
	if !supported {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("unsupported framework %q, supported: %s",
			framework, strings.Join(h.cfg.SupportedFrameworks, ", ")))
	}

	params := map[string]string{"framework": framework}
	for _, field := range metadataFields {
		if value := c.PostForm(field); value != "" {
			params[field] = value
		}
	}
	return params, nil
}

// collectFitParams parses the fit form fields and validates them with the
// same rules the worker applies.
func collectFitParams(c *gin.Context) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	for _, field := range intFitFields {
		raw := c.PostForm(field)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, commonerrors.NewBadRequest(fmt.Sprintf("%s must be an integer", field))
		}
		params[field] = value
	}
	for _, field := range floatFitFields {
		raw := c.PostForm(field)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, commonerrors.NewBadRequest(fmt.Sprintf("%s must be a number", field))
		}
		params[field] = value
	}
	if _, err := training.ParseFitParams(params); err != nil {
		return nil, err
	}
	return params, nil
}

func saveUpload(c *gin.Context, field, dir string) (path, name string, err error) {
	file, err := c.FormFile(field)
	if err != nil {
		return "", "", commonerrors.NewBadRequest(fmt.Sprintf("the %s file is required", field))
	}
	name = filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) {
		return "", "", commonerrors.NewBadRequest(fmt.Sprintf("the %s filename is invalid", field))
	}
	path = filepath.Join(dir, field+"-"+name)
	if err = c.SaveUploadedFile(file, path); err != nil {
		return "", "", commonerrors.NewInternalError("failed to save uploaded file").WithError(err)
	}
	return path, name, nil
}

// JobStatus reports the lifecycle status of an owned job.
func (h *Handler) JobStatus(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		job, err := h.ownedJob(c)
		if err != nil {
			return nil, err
		}
		meta, err := h.results.GetState(c.Request.Context(), job.JobId)
		if err != nil {
			return nil, err
		}
		return &StatusResponse{
			Status: string(broker.StateToJobStatus(meta.Status)),
			Result: meta.Result,
		}, nil
	})
}

// JobArtifacts lists the object keys staged under an owned job's directory.
func (h *Handler) JobArtifacts(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		job, err := h.ownedJob(c)
		if err != nil {
			return nil, err
		}
		artifacts, err := h.store.List(c.Request.Context(), h.cfg.TrainingBucket, job.StagingDir+"/")
		if err != nil {
			return nil, err
		}
		if len(artifacts) == 0 {
			return nil, commonerrors.NewNotFoundWithMessage("No artifacts found for this job.")
		}
		return &ArtifactsResponse{JobId: job.JobId, Artifacts: artifacts}, nil
	})
}

// DownloadArtifact redirects to a presigned URL for one artifact, or
// returns the URL as JSON when redirect=false.
func (h *Handler) DownloadArtifact(c *gin.Context) {
	job, err := h.ownedJob(c)
	if err != nil {
		apiutils.AbortWithApiError(c, err)
		return
	}
	artifactName := c.Param("artifact_name")

	all, err := h.store.List(c.Request.Context(), h.cfg.TrainingBucket, job.StagingDir+"/")
	if err != nil {
		apiutils.AbortWithApiError(c, err)
		return
	}
	matching := []string{}
	for _, key := range all {
		if strings.HasSuffix(key, "/"+artifactName) {
			matching = append(matching, key)
		}
	}
	if len(matching) == 0 {
		apiutils.AbortWithApiError(c,
			commonerrors.NewNotFoundWithMessage(fmt.Sprintf("Artifact %q not found.", artifactName)))
		return
	}
	if len(matching) > 1 {
		apiutils.AbortWithApiError(c,
			commonerrors.NewBadRequest(fmt.Sprintf("multiple artifacts named %q found", artifactName)))
		return
	}

	url, err := h.store.Presign(c.Request.Context(), h.cfg.TrainingBucket,
		matching[0], h.cfg.PresignExpireSecond)
	if err != nil {
		apiutils.AbortWithApiError(c, err)
		return
	}
	if c.DefaultQuery("redirect", "true") == "false" {
		c.JSON(http.StatusOK, &ArtifactUrlResponse{ArtifactName: artifactName, Url: url})
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// ownedJob loads the job of the path parameter and enforces ownership.
func (h *Handler) ownedJob(c *gin.Context) (*dbclient.TrainingJob, error) {
	jobId := c.Param("job_id")
	job, err := h.registry.GetJob(c.Request.Context(), jobId)
	if err != nil {
		if commonerrors.IsNotFound(err) {
			return nil, commonerrors.NewNotFoundWithMessage("Job not found.")
		}
		return nil, err
	}
	if job.OwnerId != authority.Subject(c) {
		return nil, commonerrors.NewForbidden("You do not have permission to access this job.")
	}
	return job, nil
}
