/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package worker executes training jobs pulled from the broker: it stages
// the materials, validates them, runs the fit, and publishes the products
// together with their attestation and AIBOM.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/attestation"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/bom"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	commoncrypto "github.com/wiebe-vandendriessche/AIBoMGen/pkg/crypto"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/dataset"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/environment"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/model"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/storage"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/training"
)

// State is the phase a job run is in.
type State string

const (
	StateIdle       State = "Idle"
	StateFetching   State = "Fetching"
	StateLoading    State = "Loading"
	StateTraining   State = "Training"
	StateCapturing  State = "Capturing"
	StateAttesting  State = "Attesting"
	StatePublishing State = "Publishing"
	StateDone       State = "Done"
	StateFailing    State = "Failing"
)

const (
	modelDir      = "model"
	datasetDir    = "dataset"
	definitionDir = "definition"
	outputDir     = "output"

	logsName      = "logs.log"
	errorLogsName = "error_logs.txt"
	bomName       = "cyclonedx_bom.json"
)

// resultStore is the slice of the result backend the worker writes to.
type resultStore interface {
	SetState(ctx context.Context, meta *broker.TaskMeta) error
	MarkActive(ctx context.Context, task *broker.ActiveTask) error
	ClearActive(ctx context.Context, taskId string) error
	ReportWorkerStats(ctx context.Context, stats *broker.WorkerStats) error
}

// factGatherer collects environment facts for the AIBOM.
type factGatherer interface {
	Extract(ctx context.Context, jobId, stagingDir string, task *environment.TaskInfo, times environment.Timestamps) *environment.Details
}

// Config carries the per-deployment worker settings.
type Config struct {
	Bucket    string
	Command   []string
	TimeLimit time.Duration
}

// Worker owns one execution slot. It consumes training tasks one at a
// time and runs each through the job state machine.
type Worker struct {
	cfg          Config
	store        storage.Interface
	results      resultStore
	linkBuilder  *attestation.Builder
	bomSigner    *commoncrypto.Signer
	executor     training.Executor
	introspector model.Introspector
	extractor    factGatherer
	assembler    *bom.Assembler

	hostname      string
	started       time.Time
	tasksExecuted atomic.Int64
}

func New(cfg Config, store storage.Interface, results resultStore, linkBuilder *attestation.Builder,
	bomSigner *commoncrypto.Signer, executor training.Executor, extractor factGatherer) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-worker"
	}
	return &Worker{
		cfg:          cfg,
		store:        store,
		results:      results,
		linkBuilder:  linkBuilder,
		bomSigner:    bomSigner,
		executor:     executor,
		introspector: model.KerasIntrospector{},
		extractor:    extractor,
		assembler:    bom.NewAssembler(),
		hostname:     hostname,
		started:      time.Now(),
	}
}

// Handler returns the broker consumer callback for the training queue.
func (w *Worker) Handler() broker.Handler {
	return func(ctx context.Context, taskId string, retries int, body []byte) error {
		return w.Run(ctx, taskId, retries, body)
	}
}

// Run executes one training task end to end.
func (w *Worker) Run(ctx context.Context, taskId string, retries int, body []byte) error {
	task := &broker.TrainingTask{}
	if err := json.Unmarshal(body, task); err != nil {
		// Nothing to publish without a staging dir; just record the failure.
		werr := commonerrors.NewBadRequest("task body is not a valid training task").WithError(err)
		w.recordFailure(ctx, taskId, retries, werr, "")
		return werr
	}
	if task.StagingDir == "" {
		werr := commonerrors.NewBadRequest("task carries no staging dir")
		w.recordFailure(ctx, taskId, retries, werr, "")
		return werr
	}

	runCtx := ctx
	if w.cfg.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.TimeLimit)
		defer cancel()
	}

	w.markStarted(ctx, taskId, retries)
	defer w.clearActive(ctx, taskId)
	w.tasksExecuted.Add(1)

	run := &jobRun{
		worker:    w,
		taskId:    taskId,
		task:      task,
		state:     StateIdle,
		taskStart: time.Now(),
	}
	if err := run.execute(runCtx); err != nil {
		run.fail(ctx, err)
		w.recordFailure(ctx, taskId, retries, err, task.StagingDir)
		return err
	}

	result, _ := json.Marshal(map[string]string{
		"status":     "Training completed successfully",
		"job_id":     taskId,
		"unique_dir": task.StagingDir,
	})
	meta := &broker.TaskMeta{
		TaskId:  taskId,
		Name:    broker.TrainingTaskName,
		Status:  broker.StateSuccess,
		Result:  result,
		Worker:  w.hostname,
		Retries: retries,
		Queue:   broker.TrainingQueue,
	}
	if err := w.results.SetState(ctx, meta); err != nil {
		klog.ErrorS(err, "failed to record task success", "taskId", taskId)
	}
	return nil
}

// Heartbeat publishes the worker's runtime profile to the result backend.
func (w *Worker) Heartbeat(ctx context.Context) error {
	return w.results.ReportWorkerStats(ctx, &broker.WorkerStats{
		Hostname:      w.hostname,
		Pid:           os.Getpid(),
		Concurrency:   1,
		TasksExecuted: w.tasksExecuted.Load(),
		Uptime:        time.Since(w.started).Round(time.Second).String(),
	})
}

func (w *Worker) markStarted(ctx context.Context, taskId string, retries int) {
	meta := &broker.TaskMeta{
		TaskId:  taskId,
		Name:    broker.TrainingTaskName,
		Status:  broker.StateStarted,
		Worker:  w.hostname,
		Retries: retries,
		Queue:   broker.TrainingQueue,
	}
	if err := w.results.SetState(ctx, meta); err != nil {
		klog.ErrorS(err, "failed to record task start", "taskId", taskId)
	}
	err := w.results.MarkActive(ctx, &broker.ActiveTask{
		TaskId:    taskId,
		Name:      broker.TrainingTaskName,
		Worker:    w.hostname,
		TimeStart: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		klog.ErrorS(err, "failed to mark task active", "taskId", taskId)
	}
}

func (w *Worker) clearActive(ctx context.Context, taskId string) {
	if err := w.results.ClearActive(ctx, taskId); err != nil {
		klog.ErrorS(err, "failed to clear active task", "taskId", taskId)
	}
}

func (w *Worker) recordFailure(ctx context.Context, taskId string, retries int, failure error, stagingDir string) {
	result, _ := json.Marshal(map[string]string{
		"status":     "failed",
		"job_id":     taskId,
		"unique_dir": stagingDir,
		"error":      failure.Error(),
	})
	meta := &broker.TaskMeta{
		TaskId:    taskId,
		Name:      broker.TrainingTaskName,
		Status:    broker.StateFailure,
		Result:    result,
		Traceback: failure.Error(),
		Worker:    w.hostname,
		Retries:   retries,
		Queue:     broker.TrainingQueue,
	}
	if err := w.results.SetState(ctx, meta); err != nil {
		klog.ErrorS(err, "failed to record task failure", "taskId", taskId)
	}
}

// jobRun is the state machine for a single job.
type jobRun struct {
	worker *Worker
	taskId string
	task   *broker.TrainingTask
	state  State

	workDir   string
	materials map[string]string // bucket key -> local path
	runResult *training.Result
	fitSpec   training.FitSpec
	logs      []string

	taskStart     time.Time
	trainingStart time.Time
	bomStart      time.Time
}

func (r *jobRun) transition(next State) {
	r.logf("state %s -> %s", r.state, next)
	r.state = next
}

func (r *jobRun) logf(format string, args ...interface{}) {
	line := fmt.Sprintf("%s %s", time.Now().UTC().Format("2006-01-02 15:04:05"),
		fmt.Sprintf(format, args...))
	r.logs = append(r.logs, line)
	klog.Infof("job %s: %s", r.taskId, fmt.Sprintf(format, args...))
}

func (r *jobRun) execute(ctx context.Context) error {
	workDir, err := os.MkdirTemp("", "job-"+r.taskId+"-")
	if err != nil {
		return commonerrors.NewInternalError("failed to create job directory").WithError(err)
	}
	r.workDir = workDir
	defer os.RemoveAll(workDir)

	if err := r.fetch(ctx); err != nil {
		return err
	}
	def, err := r.load(ctx)
	if err != nil {
		return err
	}
	if err := r.train(ctx, def); err != nil {
		return err
	}
	if err := r.capture(); err != nil {
		return err
	}
	linkKey, err := r.attest(ctx)
	if err != nil {
		return err
	}
	if err := r.publish(ctx, linkKey); err != nil {
		return err
	}
	r.transition(StateDone)
	return nil
}

// fetch downloads the three materials from the staging dir.
func (r *jobRun) fetch(ctx context.Context) error {
	r.transition(StateFetching)
	r.materials = make(map[string]string, 3)
	for _, sub := range []string{modelDir, datasetDir, definitionDir} {
		key, err := r.singleObject(ctx, sub)
		if err != nil {
			return err
		}
		localPath := filepath.Join(r.workDir, sub, path.Base(key))
		if err = r.worker.store.DownloadFile(ctx, r.worker.cfg.Bucket, key, localPath); err != nil {
			if commonerrors.IsRetryable(err) {
				return err
			}
			return commonerrors.NewInputMissing(
				fmt.Sprintf("failed to fetch material %s", key)).WithError(err)
		}
		r.materials[key] = localPath
		r.logf("fetched %s", key)
	}
	return nil
}

// singleObject resolves the one object staged under <staging_dir>/<sub>/.
func (r *jobRun) singleObject(ctx context.Context, sub string) (string, error) {
	prefix := r.task.StagingDir + "/" + sub + "/"
	keys, err := r.worker.store.List(ctx, r.worker.cfg.Bucket, prefix)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", commonerrors.NewInputMissing(fmt.Sprintf("no object staged under %s", prefix))
	}
	if len(keys) > 1 {
		return "", commonerrors.NewBadRequest(fmt.Sprintf("multiple objects staged under %s", prefix))
	}
	return keys[0], nil
}

// load parses the definition and validates the dataset against it.
func (r *jobRun) load(ctx context.Context) (*dataset.Definition, error) {
	r.transition(StateLoading)
	definitionPath := r.localMaterial(definitionDir)
	datasetPath := r.localMaterial(datasetDir)

	def, err := dataset.LoadDefinition(definitionPath)
	if err != nil {
		return nil, err
	}
	switch def.Type {
	case dataset.KindCsv:
		data, err := dataset.LoadCsv(datasetPath, def)
		if err != nil {
			return nil, err
		}
		r.logf("loaded csv dataset: %d samples, %d classes", data.NumSamples(), data.NumClasses())
	case dataset.KindImage:
		extractTo := filepath.Join(r.workDir, "dataset_extracted")
		if err := dataset.ValidateAndExtractZip(datasetPath, extractTo); err != nil {
			return nil, err
		}
		data, err := dataset.LoadImageDirectory(extractTo, def)
		if err != nil {
			return nil, err
		}
		r.logf("loaded image dataset: %d images, %d classes", data.NumSamples(), data.NumClasses())
	case dataset.KindTfrecord:
		data, err := dataset.LoadTfrecord(datasetPath, def)
		if err != nil {
			return nil, err
		}
		r.logf("loaded tfrecord dataset: %d records", data.NumRecords)
	}
	return def, nil
}

// train validates the model shapes and runs the fit.
func (r *jobRun) train(ctx context.Context, def *dataset.Definition) error {
	r.transition(StateTraining)
	modelPath := r.localMaterial(modelDir)

	info, err := r.worker.introspector.Inspect(modelPath)
	if err != nil {
		return err
	}
	if err = model.ValidateShapes(info, def); err != nil {
		return err
	}
	device, err := training.SelectDevice()
	if err != nil {
		return err
	}
	r.logf("training %s on %s", info.Name, device)

	r.fitSpec, err = training.ParseFitParams(r.task.FitParams)
	if err != nil {
		return err
	}
	r.trainingStart = time.Now()
	result, err := r.worker.executor.Run(ctx, training.RunSpec{
		Dir:            r.workDir,
		ModelPath:      modelPath,
		DatasetPath:    r.localMaterial(datasetDir),
		DefinitionPath: r.localMaterial(definitionDir),
		Fit:            r.fitSpec,
		OptionalParams: r.task.OptionalParams,
	})
	if err != nil {
		return err
	}
	r.runResult = result
	return nil
}

// capture persists the run log next to the executor products.
func (r *jobRun) capture() error {
	r.transition(StateCapturing)
	for key, value := range r.runResult.Metrics {
		r.logf("metric %s = %g", key, value)
	}
	logsPath := filepath.Join(r.workDir, logsName)
	if err := os.WriteFile(logsPath, []byte(strings.Join(r.logs, "\n")+"\n"), 0644); err != nil {
		return commonerrors.NewInternalError("failed to write run log").WithError(err)
	}
	return nil
}

// attest digests the materials and products, builds the signed link and
// publishes it.
func (r *jobRun) attest(ctx context.Context) (string, error) {
	r.transition(StateAttesting)

	materials := make(map[string]string, len(r.materials))
	for key, localPath := range r.materials {
		digest, err := commoncrypto.Sha256File(localPath)
		if err != nil {
			return "", err
		}
		materials[key] = digest
	}

	products := make(map[string]string, 2)
	for _, localPath := range []string{r.runResult.ModelPath, r.runResult.MetricsPath} {
		digest, err := commoncrypto.Sha256File(localPath)
		if err != nil {
			return "", err
		}
		products[r.outputKey(filepath.Base(localPath))] = digest
	}

	mb, err := r.worker.linkBuilder.BuildLink(
		attestation.StepRunTraining, materials, products, r.worker.cfg.Command)
	if err != nil {
		return "", err
	}
	payload, err := attestation.Encode(mb)
	if err != nil {
		return "", err
	}
	linkKey := r.outputKey(r.worker.linkBuilder.LinkFileName(attestation.StepRunTraining))
	if _, err = r.worker.store.PutBytes(ctx, r.worker.cfg.Bucket, linkKey, payload); err != nil {
		return "", err
	}
	r.logf("published attestation %s", linkKey)
	return linkKey, nil
}

// publish assembles and signs the AIBOM and uploads all remaining outputs.
func (r *jobRun) publish(ctx context.Context, linkKey string) error {
	r.transition(StatePublishing)
	r.bomStart = time.Now()

	env := r.worker.extractor.Extract(ctx, r.taskId, r.task.StagingDir,
		&environment.TaskInfo{
			TaskId:   r.taskId,
			TaskName: broker.TrainingTaskName,
			Queue:    broker.TrainingQueue,
		},
		environment.Timestamps{
			TaskStart:     r.taskStart,
			TrainingStart: r.trainingStart,
			BomStart:      r.bomStart,
		})

	data := bom.Data{
		Environment:    env,
		FitParams:      r.fitSpec.Describe(),
		OptionalParams: r.task.OptionalParams,
		Attestation: &bom.AttestationRef{
			StorePath:   linkKey,
			Description: "in-toto link file for artifact integrity verification",
		},
	}
	for key, localPath := range r.materials {
		digest, err := commoncrypto.Sha256File(localPath)
		if err != nil {
			return err
		}
		data.Materials = append(data.Materials, bom.Artifact{
			StorePath: key, Sha256: digest, LocalPath: localPath,
		})
	}
	for _, localPath := range []string{r.runResult.ModelPath, r.runResult.MetricsPath} {
		digest, err := commoncrypto.Sha256File(localPath)
		if err != nil {
			return err
		}
		data.Products = append(data.Products, bom.Artifact{
			StorePath: r.outputKey(filepath.Base(localPath)),
			Sha256:    digest,
			LocalPath: localPath,
		})
	}

	doc, err := r.worker.assembler.Assemble(data)
	if err != nil {
		return err
	}
	if err = bom.Sign(doc, r.worker.bomSigner); err != nil {
		return err
	}
	doc.Metadata.Timestamp = r.bomStart.UTC().Format(time.RFC3339)
	payload, err := bom.Encode(doc)
	if err != nil {
		return err
	}
	if err = bom.ValidateJson(payload); err != nil {
		return err
	}
	if _, err = r.worker.store.PutBytes(ctx, r.worker.cfg.Bucket, r.outputKey(bomName), payload); err != nil {
		return err
	}

	uploads := map[string]string{
		r.outputKey(filepath.Base(r.runResult.ModelPath)):   r.runResult.ModelPath,
		r.outputKey(filepath.Base(r.runResult.MetricsPath)): r.runResult.MetricsPath,
		r.outputKey(logsName):                               filepath.Join(r.workDir, logsName),
	}
	for key, localPath := range uploads {
		if _, err = r.worker.store.PutFile(ctx, r.worker.cfg.Bucket, key, localPath); err != nil {
			return err
		}
	}
	r.logf("published outputs for %s", r.task.StagingDir)
	return nil
}

// fail writes and publishes the run log and the error log. Publication is
// best-effort; the job is already failed.
func (r *jobRun) fail(ctx context.Context, failure error) {
	failedIn := r.state
	r.transition(StateFailing)
	if r.task.StagingDir == "" {
		return
	}
	logs := strings.Join(r.logs, "\n") + "\n"
	errorLog := fmt.Sprintf("Job %s failed in state %s:\n%v\n", r.taskId, failedIn, failure)

	if _, err := r.worker.store.PutBytes(ctx, r.worker.cfg.Bucket, r.outputKey(logsName), []byte(logs)); err != nil {
		klog.ErrorS(err, "failed to publish run log", "taskId", r.taskId)
	}
	if _, err := r.worker.store.PutBytes(ctx, r.worker.cfg.Bucket, r.outputKey(errorLogsName), []byte(errorLog)); err != nil {
		klog.ErrorS(err, "failed to publish error log", "taskId", r.taskId)
	}
}

func (r *jobRun) outputKey(name string) string {
	return path.Join(r.task.StagingDir, outputDir, name)
}

// localMaterial returns the downloaded path of the material staged under
// the given subdirectory.
func (r *jobRun) localMaterial(sub string) string {
	for key, localPath := range r.materials {
		if strings.HasPrefix(key, r.task.StagingDir+"/"+sub+"/") {
			return localPath
		}
	}
	return ""
}
