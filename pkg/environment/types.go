/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package environment

// Unknown is the recorded value for any fact that could not be collected.
const Unknown = "Unknown"

// GpuInfo describes one visible GPU device.
type GpuInfo struct {
	Name          string `json:"name"`
	MemoryTotalMb uint64 `json:"memory_total"`
	MemoryUsedMb  uint64 `json:"memory_used"`
}

// TaskInfo is the broker task descriptor of the running job.
type TaskInfo struct {
	TaskId   string `json:"task_id"`
	TaskName string `json:"task_name"`
	Queue    string `json:"queue"`
}

// ContainerInfo identifies the container the worker runs in.
type ContainerInfo struct {
	ContainerId string `json:"container_id"`
	ImageName   string `json:"image_name"`
	ImageId     string `json:"image_id"`
}

// Details is the full set of environment facts captured for one job. Every
// field is best-effort; a missing value is the literal "Unknown".
type Details struct {
	Os                string         `json:"os"`
	RuntimeVersion    string         `json:"runtime_version"`
	FrameworkVersion  string         `json:"framework_version"`
	CpuCount          int            `json:"cpu_count"`
	MemoryTotalMb     uint64         `json:"memory_total"`
	DiskTotalMb       uint64         `json:"disk_usage"`
	Gpus              []GpuInfo      `json:"gpu_info"`
	Task              *TaskInfo      `json:"celery_task_info,omitempty"`
	Container         *ContainerInfo `json:"docker_info,omitempty"`
	VulnerabilityScan map[string]int `json:"vulnerability_scan,omitempty"`
	VulnerabilityNote string         `json:"vulnerability_note,omitempty"`
	RequestTime       string         `json:"request_time"`
	StartTrainingTime string         `json:"start_training_time"`
	StartBomTime      string         `json:"start_aibom_time"`
	TrainingSeconds   float64        `json:"training_time"`
	JobId             string         `json:"job_id"`
	StagingDir        string         `json:"unique_dir"`
}
