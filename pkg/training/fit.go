/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package training runs the actual model fit for a job and reports the
// resulting metrics.
package training

import (
	"encoding/json"
	"fmt"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// FitSpec holds the fit parameters for a training run. Unset submission
// values fall back to the defaults from DefaultFitSpec.
type FitSpec struct {
	Epochs          int     `json:"epochs"`
	ValidationSplit float64 `json:"validation_split"`
	InitialEpoch    int     `json:"initial_epoch"`
	BatchSize       int     `json:"batch_size"`
	StepsPerEpoch   *int    `json:"steps_per_epoch"`
	ValidationSteps *int    `json:"validation_steps"`
	ValidationFreq  int     `json:"validation_freq"`
}

// DefaultFitSpec returns the fit parameters used when a submission leaves
// them out.
func DefaultFitSpec() FitSpec {
	return FitSpec{
		Epochs:          50,
		ValidationSplit: 0.2,
		InitialEpoch:    0,
		BatchSize:       32,
		ValidationFreq:  1,
	}
}

// ParseFitParams merges submitted fit parameters over the defaults.
// Unknown keys are rejected so a typo never silently trains with defaults.
func ParseFitParams(params map[string]interface{}) (FitSpec, error) {
	spec := DefaultFitSpec()
	if len(params) == 0 {
		return spec, nil
	}
	known := map[string]bool{
		"epochs": true, "validation_split": true, "initial_epoch": true,
		"batch_size": true, "steps_per_epoch": true, "validation_steps": true,
		"validation_freq": true,
	}
	for key := range params {
		if !known[key] {
			return spec, commonerrors.NewBadRequest(fmt.Sprintf("unknown fit parameter %q", key))
		}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return spec, commonerrors.NewBadRequest("fit parameters are not serializable").WithError(err)
	}
	if err = json.Unmarshal(raw, &spec); err != nil {
		return spec, commonerrors.NewBadRequest("invalid fit parameter value").WithError(err)
	}
	return spec, spec.validate()
}

func (s FitSpec) validate() error {
	// Zero epochs is allowed: fit runs no epochs and the job produces an
	// untrained model.
	if s.Epochs < 0 {
		return commonerrors.NewBadRequest("epochs must not be negative")
	}
	if s.ValidationSplit < 0 || s.ValidationSplit >= 1 {
		return commonerrors.NewBadRequest("validation_split must be in [0, 1)")
	}
	if s.InitialEpoch < 0 || (s.Epochs > 0 && s.InitialEpoch >= s.Epochs) {
		return commonerrors.NewBadRequest("initial_epoch must be in [0, epochs)")
	}
	if s.BatchSize <= 0 {
		return commonerrors.NewBadRequest("batch_size must be positive")
	}
	if s.ValidationFreq <= 0 {
		return commonerrors.NewBadRequest("validation_freq must be positive")
	}
	return nil
}

// Describe lists the effective parameters for recording in the AIBOM.
func (s FitSpec) Describe() map[string]string {
	out := map[string]string{
		"epochs":           fmt.Sprintf("%d", s.Epochs),
		"validation_split": fmt.Sprintf("%g", s.ValidationSplit),
		"initial_epoch":    fmt.Sprintf("%d", s.InitialEpoch),
		"batch_size":       fmt.Sprintf("%d", s.BatchSize),
		"validation_freq":  fmt.Sprintf("%d", s.ValidationFreq),
	}
	if s.StepsPerEpoch != nil {
		out["steps_per_epoch"] = fmt.Sprintf("%d", *s.StepsPerEpoch)
	}
	if s.ValidationSteps != nil {
		out["validation_steps"] = fmt.Sprintf("%d", *s.ValidationSteps)
	}
	return out
}
