/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package training

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"k8s.io/klog/v2"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const (
	// ModelOutputName is the trained model product written by a run.
	ModelOutputName = "trained_model.keras"
	// MetricsOutputName is the metrics product written by a run.
	MetricsOutputName = "metrics.json"
	// fitSpecName is the parameter file handed to the fit process.
	fitSpecName = "fit_params.json"

	// stderr tail kept in error messages
	maxErrorOutput = 4096
)

// RunSpec describes one training run inside a staged job directory.
type RunSpec struct {
	Dir            string
	ModelPath      string
	DatasetPath    string
	DefinitionPath string
	Fit            FitSpec
	OptionalParams map[string]string
}

// Result is the outcome of a completed run.
type Result struct {
	Metrics     map[string]float64
	History     map[string][]float64
	ModelPath   string
	MetricsPath string
	Output      string
}

// Executor performs a training run.
type Executor interface {
	Run(ctx context.Context, spec RunSpec) (*Result, error)
}

// CommandExecutor runs training as a subprocess in the job directory.
// The command is configured per deployment and receives the model,
// dataset and definition paths as arguments after its own argv.
type CommandExecutor struct {
	Command []string
}

func NewCommandExecutor(command []string) (*CommandExecutor, error) {
	if len(command) == 0 {
		return nil, commonerrors.NewInternalError("executor command is not configured")
	}
	return &CommandExecutor{Command: command}, nil
}

func (e *CommandExecutor) Run(ctx context.Context, spec RunSpec) (*Result, error) {
	if err := writeFitSpec(spec); err != nil {
		return nil, err
	}

	args := append([]string{}, e.Command[1:]...)
	args = append(args, spec.ModelPath, spec.DatasetPath, spec.DefinitionPath)
	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	cmd.Dir = spec.Dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	klog.Infof("starting training run in %s: %v", spec.Dir, e.Command)
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, commonerrors.NewInternalError("training run exceeded the time limit").WithError(ctx.Err())
		}
		tail := output.String()
		if len(tail) > maxErrorOutput {
			tail = tail[len(tail)-maxErrorOutput:]
		}
		return nil, commonerrors.NewInternalError(
			fmt.Sprintf("training run failed: %s", tail)).WithError(err)
	}

	result := &Result{
		ModelPath:   filepath.Join(spec.Dir, ModelOutputName),
		MetricsPath: filepath.Join(spec.Dir, MetricsOutputName),
		Output:      output.String(),
	}
	for _, product := range []string{result.ModelPath, result.MetricsPath} {
		if _, err := os.Stat(product); err != nil {
			return nil, commonerrors.NewInternalError(
				fmt.Sprintf("training run did not produce %s", filepath.Base(product)))
		}
	}
	metrics, history, err := LoadMetrics(result.MetricsPath)
	if err != nil {
		return nil, err
	}
	result.Metrics = metrics
	result.History = history
	return result, nil
}

// writeFitSpec stores the effective fit parameters in the job directory
// so the fit process picks them up without argument plumbing.
func writeFitSpec(spec RunSpec) error {
	raw, err := json.MarshalIndent(spec.Fit, "", "  ")
	if err != nil {
		return commonerrors.NewInternalError("failed to encode fit parameters").WithError(err)
	}
	path := filepath.Join(spec.Dir, fitSpecName)
	if err = os.WriteFile(path, raw, 0644); err != nil {
		return commonerrors.NewInternalError("failed to write fit parameters").WithError(err)
	}
	return nil
}

// LoadMetrics parses a metrics product. Scalar values become final
// metrics. Array values are per-epoch history, with the last entry also
// surfaced as the final metric.
func LoadMetrics(path string) (map[string]float64, map[string][]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, commonerrors.NewInternalError("failed to read metrics file").WithError(err)
	}
	var doc map[string]interface{}
	if err = json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, commonerrors.NewInternalError("metrics file is not valid JSON").WithError(err)
	}

	metrics := map[string]float64{}
	history := map[string][]float64{}
	for key, value := range doc {
		switch v := value.(type) {
		case float64:
			metrics[key] = v
		case []interface{}:
			series := make([]float64, 0, len(v))
			for _, item := range v {
				if f, ok := item.(float64); ok {
					series = append(series, f)
				}
			}
			if len(series) > 0 {
				history[key] = series
				metrics[key] = series[len(series)-1]
			}
		}
	}
	return metrics, history, nil
}
