/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package scanner runs periodic vulnerability scans of the worker image and
// the scanner's own image, and publishes the reports to the blob store where
// the worker picks them up for the AIBOM environment component.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/storage"
)

const (
	// WorkerScanPrefix is where worker image reports land in the worker
	// scans bucket.
	WorkerScanPrefix = "worker-vulnerability-scans"
	// ScannerScanPrefix is where self-scan reports land in the scanner
	// scans bucket.
	ScannerScanPrefix = "scanner-vulnerability-scans"

	// Report keys end in this timestamp so the lexicographic maximum is
	// the newest report.
	scanStampFormat = "20060102T150405"
)

// resultStore is the slice of the result backend the scanner writes to.
type resultStore interface {
	SetState(ctx context.Context, meta *broker.TaskMeta) error
	MarkActive(ctx context.Context, task *broker.ActiveTask) error
	ClearActive(ctx context.Context, taskId string) error
}

// Config carries the per-deployment scanner settings.
type Config struct {
	// WorkerImage is the image reference of the training worker.
	WorkerImage string
	// ScannerImage is the scanner's own image reference.
	ScannerImage string
	// WorkerBucket and ScannerBucket receive the respective reports.
	WorkerBucket  string
	ScannerBucket string
	// Command is the scan command vector; the image reference is appended
	// as the final argument and the report is read from stdout.
	Command []string
}

// Scanner executes image scans on demand and records their outcomes in the
// result backend.
type Scanner struct {
	cfg     Config
	store   storage.Interface
	results resultStore

	runScan  func(ctx context.Context, image string) ([]byte, error)
	hostname string
}

func New(cfg Config, store storage.Interface, results resultStore) (*Scanner, error) {
	if len(cfg.Command) == 0 {
		return nil, commonerrors.NewBadRequest("the scan command is empty")
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-scanner"
	}
	s := &Scanner{
		cfg:      cfg,
		store:    store,
		results:  results,
		hostname: hostname,
	}
	s.runScan = s.execScan
	return s, nil
}

// Report summarises one completed scan round.
type Report struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Keys    []string `json:"report_keys"`
}

// Scan runs one full round: the worker image into the worker scans bucket,
// then the scanner's own image into the scanner scans bucket.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	if s.cfg.WorkerImage == "" {
		return nil, commonerrors.NewBadRequest("the worker image name is not configured")
	}
	if s.cfg.ScannerImage == "" {
		return nil, commonerrors.NewBadRequest("the scanner image name could not be determined")
	}
	if err := s.store.EnsureBucket(ctx, s.cfg.WorkerBucket); err != nil {
		return nil, err
	}
	if err := s.store.EnsureBucket(ctx, s.cfg.ScannerBucket); err != nil {
		return nil, err
	}

	workerKey, err := s.scanImage(ctx, s.cfg.WorkerImage, s.cfg.WorkerBucket, WorkerScanPrefix)
	if err != nil {
		return nil, err
	}
	scannerKey, err := s.scanImage(ctx, s.cfg.ScannerImage, s.cfg.ScannerBucket, ScannerScanPrefix)
	if err != nil {
		return nil, err
	}
	return &Report{
		Status:  "success",
		Message: "Both images scanned and reports uploaded.",
		Keys:    []string{workerKey, scannerKey},
	}, nil
}

// scanImage runs the scan command for one image and uploads the report.
func (s *Scanner) scanImage(ctx context.Context, image, bucket, prefix string) (string, error) {
	klog.Infof("scanning image %s", image)
	raw, err := s.runScan(ctx, image)
	if err != nil {
		return "", err
	}

	// Re-indent through a round trip so every stored report reads the same
	// regardless of the scan tool's output formatting.
	var decoded interface{}
	if err = json.Unmarshal(raw, &decoded); err != nil {
		return "", commonerrors.NewInternalError(
			fmt.Sprintf("scan output for %s is not valid JSON", image)).WithError(err)
	}
	report, err := json.MarshalIndent(decoded, "", "    ")
	if err != nil {
		return "", commonerrors.NewInternalError("failed to serialize scan report").WithError(err)
	}

	key := fmt.Sprintf("%s/%s_vulnerabilities_%s.json",
		prefix, sanitizeImageName(image), time.Now().UTC().Format(scanStampFormat))
	if _, err = s.store.PutBytes(ctx, bucket, key, report); err != nil {
		return "", err
	}
	klog.Infof("uploaded scan report %s/%s", bucket, key)
	return key, nil
}

func (s *Scanner) execScan(ctx context.Context, image string) ([]byte, error) {
	args := append(append([]string{}, s.cfg.Command[1:]...), image)
	out, err := exec.CommandContext(ctx, s.cfg.Command[0], args...).Output()
	if err != nil {
		return nil, commonerrors.NewInternalError(
			fmt.Sprintf("vulnerability scan failed for %s", image)).WithError(err)
	}
	return out, nil
}

func sanitizeImageName(image string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_")
	return replacer.Replace(image)
}

// Handler returns the broker consumer callback for the scanner queue.
func (s *Scanner) Handler() broker.Handler {
	return func(ctx context.Context, taskId string, retries int, body []byte) error {
		return s.Run(ctx, taskId, retries, body)
	}
}

// Run executes one scan task. The task body may carry an images override,
// first entry for the worker image and second for the scanner image;
// otherwise the configured references are scanned.
func (s *Scanner) Run(ctx context.Context, taskId string, retries int, body []byte) error {
	var override struct {
		Images []string `json:"images"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &override); err != nil {
			werr := commonerrors.NewBadRequest("task body is not a valid scan task").WithError(err)
			s.recordFailure(ctx, taskId, retries, werr)
			return werr
		}
	}
	if len(override.Images) > 0 {
		s.cfg.WorkerImage = override.Images[0]
	}
	if len(override.Images) > 1 {
		s.cfg.ScannerImage = override.Images[1]
	}

	s.markStarted(ctx, taskId, retries)
	defer s.clearActive(ctx, taskId)

	report, err := s.Scan(ctx)
	if err != nil {
		s.recordFailure(ctx, taskId, retries, err)
		return err
	}

	result, _ := json.Marshal(report)
	meta := &broker.TaskMeta{
		TaskId:  taskId,
		Name:    broker.ScannerTaskName,
		Status:  broker.StateSuccess,
		Result:  result,
		Worker:  s.hostname,
		Retries: retries,
		Queue:   broker.ScannerQueue,
	}
	if err = s.results.SetState(ctx, meta); err != nil {
		klog.ErrorS(err, "failed to record scan success", "taskId", taskId)
	}
	return nil
}

func (s *Scanner) markStarted(ctx context.Context, taskId string, retries int) {
	meta := &broker.TaskMeta{
		TaskId:  taskId,
		Name:    broker.ScannerTaskName,
		Status:  broker.StateStarted,
		Worker:  s.hostname,
		Retries: retries,
		Queue:   broker.ScannerQueue,
	}
	if err := s.results.SetState(ctx, meta); err != nil {
		klog.ErrorS(err, "failed to record scan start", "taskId", taskId)
	}
	err := s.results.MarkActive(ctx, &broker.ActiveTask{
		TaskId:    taskId,
		Name:      broker.ScannerTaskName,
		Worker:    s.hostname,
		TimeStart: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		klog.ErrorS(err, "failed to mark scan active", "taskId", taskId)
	}
}

func (s *Scanner) clearActive(ctx context.Context, taskId string) {
	if err := s.results.ClearActive(ctx, taskId); err != nil {
		klog.ErrorS(err, "failed to clear active scan", "taskId", taskId)
	}
}

func (s *Scanner) recordFailure(ctx context.Context, taskId string, retries int, scanErr error) {
	result, _ := json.Marshal(map[string]string{
		"status":  "error",
		"message": scanErr.Error(),
	})
	meta := &broker.TaskMeta{
		TaskId:    taskId,
		Name:      broker.ScannerTaskName,
		Status:    broker.StateFailure,
		Result:    result,
		Traceback: scanErr.Error(),
		Worker:    s.hostname,
		Retries:   retries,
		Queue:     broker.ScannerQueue,
	}
	if err := s.results.SetState(ctx, meta); err != nil {
		klog.ErrorS(err, "failed to record scan failure", "taskId", taskId)
	}
}
