/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package training

import (
	"os/exec"
	"runtime"

	"k8s.io/klog/v2"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// Device is the compute device a run executes on.
type Device string

const (
	DeviceGpu Device = "gpu"
	DeviceCpu Device = "cpu"
)

// gpuProbe is swapped out in tests.
var gpuProbe = func() bool {
	return exec.Command("nvidia-smi", "-L").Run() == nil
}

// cpuCount is swapped out in tests.
var cpuCount = runtime.NumCPU

// SelectDevice picks the device for a run. A GPU wins when one is
// visible, otherwise the run falls back to CPU.
func SelectDevice() (Device, error) {
	if gpuProbe() {
		klog.Infof("GPU detected, training on gpu")
		return DeviceGpu, nil
	}
	if cpuCount() > 0 {
		klog.Infof("no GPU detected, training on cpu")
		return DeviceCpu, nil
	}
	return "", commonerrors.NewNoDeviceAvailable("no usable training device found")
}
