/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package environment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/storage"
)

const (
	mib = 1024 * 1024

	timeFormat = "2006-01-02 15:04:05"
)

// Timestamps are the phase boundaries of one job, used to derive durations.
type Timestamps struct {
	TaskStart     time.Time
	TrainingStart time.Time
	BomStart      time.Time
}

// Extractor collects environment facts for the BOM. Collection never fails:
// any fact that cannot be determined is recorded as Unknown and logged.
type Extractor struct {
	store            storage.Interface
	scansBucket      string
	imageName        string
	frameworkVersion string
}

// NewExtractor creates an extractor. imageName is the worker's own image
// reference and frameworkVersion the training framework it embeds.
func NewExtractor(store storage.Interface, scansBucket, imageName, frameworkVersion string) *Extractor {
	return &Extractor{
		store:            store,
		scansBucket:      scansBucket,
		imageName:        imageName,
		frameworkVersion: frameworkVersion,
	}
}

// Extract gathers every environment fact for the given job.
func (e *Extractor) Extract(ctx context.Context, jobId, stagingDir string, task *TaskInfo, times Timestamps) *Details {
	details := &Details{
		Os:                e.osIdentifier(),
		RuntimeVersion:    runtime.Version(),
		FrameworkVersion:  e.frameworkVersion,
		Gpus:              e.gpuInfo(),
		Task:              task,
		Container:         e.containerInfo(),
		RequestTime:       times.TaskStart.UTC().Format(timeFormat),
		StartTrainingTime: times.TrainingStart.UTC().Format(timeFormat),
		StartBomTime:      times.BomStart.UTC().Format(timeFormat),
		TrainingSeconds:   times.BomStart.Sub(times.TrainingStart).Seconds(),
		JobId:             jobId,
		StagingDir:        stagingDir,
	}
	if details.FrameworkVersion == "" {
		details.FrameworkVersion = Unknown
	}

	if count, err := cpu.Counts(true); err == nil {
		details.CpuCount = count
	} else {
		klog.Warningf("failed to count cpus: %v", err)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		details.MemoryTotalMb = vm.Total / mib
	} else {
		klog.Warningf("failed to read memory info: %v", err)
	}
	if usage, err := disk.Usage("/"); err == nil {
		details.DiskTotalMb = usage.Total / mib
	} else {
		klog.Warningf("failed to read disk usage: %v", err)
	}

	summary, err := e.latestVulnerabilityScan(ctx)
	if err != nil {
		klog.Warningf("failed to fetch vulnerability scan: %v", err)
		details.VulnerabilityNote = fmt.Sprintf("Error fetching vulnerability scan results: %v", err)
	} else {
		details.VulnerabilityScan = summary
	}
	return details
}

func (e *Extractor) osIdentifier() string {
	info, err := host.Info()
	if err != nil {
		klog.Warningf("failed to read host info: %v", err)
		return Unknown
	}
	name := info.OS
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return fmt.Sprintf("%s %s", name, info.KernelVersion)
}

// gpuInfo shells out to nvidia-smi. An empty slice means no device visible.
func (e *Extractor) gpuInfo() []GpuInfo {
	out, err := exec.Command("nvidia-smi",
		"--query-gpu=name,memory.total,memory.used",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		klog.V(2).Infof("nvidia-smi not available: %v", err)
		return nil
	}
	return parseGpuCsv(string(out))
}

func parseGpuCsv(out string) []GpuInfo {
	var gpus []GpuInfo
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			continue
		}
		total, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			continue
		}
		used, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			continue
		}
		gpus = append(gpus, GpuInfo{
			Name:          strings.TrimSpace(fields[0]),
			MemoryTotalMb: total,
			MemoryUsedMb:  used,
		})
	}
	return gpus
}

// containerInfo identifies the surrounding container. Outside a container
// every field reads Unknown.
func (e *Extractor) containerInfo() *ContainerInfo {
	info := &ContainerInfo{
		ContainerId: Unknown,
		ImageName:   Unknown,
		ImageId:     Unknown,
	}
	if _, err := os.Stat("/.dockerenv"); err != nil {
		return info
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		info.ContainerId = hostname
	}
	if e.imageName != "" {
		info.ImageName = e.imageName
	}
	if imageId := readContainerImageId(); imageId != "" {
		info.ImageId = imageId
	}
	return info
}

// readContainerImageId resolves the container id from the cgroup path. Only
// cgroup v1 paths carry it; v2 returns empty and the field stays Unknown.
func readContainerImageId() string {
	raw, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(raw), "\n") {
		idx := strings.LastIndex(line, "/")
		if idx < 0 {
			continue
		}
		id := line[idx+1:]
		if len(id) == 64 {
			return id
		}
	}
	return ""
}
