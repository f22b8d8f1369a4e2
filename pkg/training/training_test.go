/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package training

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

func TestParseFitParamsDefaults(t *testing.T) {
	spec, err := ParseFitParams(nil)
	require.NoError(t, err)
	assert.Equal(t, 50, spec.Epochs)
	assert.Equal(t, 0.2, spec.ValidationSplit)
	assert.Equal(t, 0, spec.InitialEpoch)
	assert.Equal(t, 32, spec.BatchSize)
	assert.Equal(t, 1, spec.ValidationFreq)
	assert.Nil(t, spec.StepsPerEpoch)
	assert.Nil(t, spec.ValidationSteps)
}

func TestParseFitParamsOverride(t *testing.T) {
	spec, err := ParseFitParams(map[string]interface{}{
		"epochs":          float64(10),
		"batch_size":      float64(8),
		"steps_per_epoch": float64(100),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, spec.Epochs)
	assert.Equal(t, 8, spec.BatchSize)
	require.NotNil(t, spec.StepsPerEpoch)
	assert.Equal(t, 100, *spec.StepsPerEpoch)
	// untouched keys keep their defaults
	assert.Equal(t, 0.2, spec.ValidationSplit)
}

func TestParseFitParamsUnknownKey(t *testing.T) {
	_, err := ParseFitParams(map[string]interface{}{"epoch": float64(10)})
	require.Error(t, err)
	assert.True(t, commonerrors.IsBadRequest(err))
}

func TestParseFitParamsZeroEpochs(t *testing.T) {
	spec, err := ParseFitParams(map[string]interface{}{"epochs": float64(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, spec.Epochs)
	assert.Equal(t, 0, spec.InitialEpoch)
}

func TestParseFitParamsInvalidValues(t *testing.T) {
	for _, params := range []map[string]interface{}{
		{"epochs": float64(-1)},
		{"validation_split": float64(1.5)},
		{"initial_epoch": float64(60)},
		{"batch_size": float64(-1)},
		{"validation_freq": float64(0)},
	} {
		_, err := ParseFitParams(params)
		assert.Error(t, err, "params %v", params)
		assert.True(t, commonerrors.IsBadRequest(err))
	}
}

func TestFitSpecDescribe(t *testing.T) {
	steps := 12
	spec := DefaultFitSpec()
	spec.StepsPerEpoch = &steps

	desc := spec.Describe()
	assert.Equal(t, "50", desc["epochs"])
	assert.Equal(t, "0.2", desc["validation_split"])
	assert.Equal(t, "12", desc["steps_per_epoch"])
	_, ok := desc["validation_steps"]
	assert.False(t, ok)
}

func TestLoadMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"loss": [0.9, 0.4, 0.2], "accuracy": [0.5, 0.8, 0.95], "test_loss": 0.25}`), 0644))

	metrics, history, err := LoadMetrics(path)
	require.NoError(t, err)
	assert.Equal(t, 0.2, metrics["loss"])
	assert.Equal(t, 0.95, metrics["accuracy"])
	assert.Equal(t, 0.25, metrics["test_loss"])
	assert.Equal(t, []float64{0.9, 0.4, 0.2}, history["loss"])
	_, ok := history["test_loss"]
	assert.False(t, ok)
}

func TestLoadMetricsInvalidJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte("oops"), 0644))

	_, _, err := LoadMetrics(path)
	require.Error(t, err)
	assert.True(t, commonerrors.IsInternal(err))
}

func TestSelectDevice(t *testing.T) {
	origProbe, origCount := gpuProbe, cpuCount
	defer func() { gpuProbe, cpuCount = origProbe, origCount }()

	gpuProbe = func() bool { return true }
	device, err := SelectDevice()
	require.NoError(t, err)
	assert.Equal(t, DeviceGpu, device)

	gpuProbe = func() bool { return false }
	cpuCount = func() int { return 4 }
	device, err = SelectDevice()
	require.NoError(t, err)
	assert.Equal(t, DeviceCpu, device)

	cpuCount = func() int { return 0 }
	_, err = SelectDevice()
	require.Error(t, err)
	assert.Equal(t, commonerrors.NoDeviceAvailable, commonerrors.ReasonForError(err))
}

func TestNewCommandExecutorEmpty(t *testing.T) {
	_, err := NewCommandExecutor(nil)
	require.Error(t, err)
	assert.True(t, commonerrors.IsInternal(err))
}
