/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package developer_handlers

// metadataFields are the optional model-card form fields forwarded to the
// worker verbatim. framework is bound separately because it is required.
var metadataFields = []string{
	"model_name",
	"model_version",
	"model_description",
	"author",
	"model_type",
	"base_model",
	"base_model_source",
	"intended_use",
	"out_of_scope",
	"misuse_or_malicious",
	"license_name",
}

// intFitFields and floatFitFields are the fit-parameter form fields and
// their target types.
var intFitFields = []string{
	"epochs",
	"initial_epoch",
	"batch_size",
	"steps_per_epoch",
	"validation_steps",
	"validation_freq",
}

var floatFitFields = []string{
	"validation_split",
}

// SubmitResponse is returned by the submission endpoint.
type SubmitResponse struct {
	JobId     string `json:"job_id"`
	Status    string `json:"status"`
	UniqueDir string `json:"unique_dir"`
}

// StatusResponse reports the lifecycle status of a job together with the
// raw task result.
type StatusResponse struct {
	Status string      `json:"status"`
	Result interface{} `json:"result"`
}

// ArtifactsResponse lists the object keys staged under a job's directory.
type ArtifactsResponse struct {
	JobId     string   `json:"job_id"`
	Artifacts []string `json:"artifacts"`
}

// ArtifactUrlResponse carries the presigned download URL of one artifact.
type ArtifactUrlResponse struct {
	ArtifactName string `json:"artifact_name"`
	Url          string `json:"url"`
}
