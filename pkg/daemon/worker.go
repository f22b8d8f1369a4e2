/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package daemon bootstraps the background processes: the training worker
// and the vulnerability scanner.
package daemon

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/attestation"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/config"
	commoncrypto "github.com/wiebe-vandendriessche/AIBoMGen/pkg/crypto"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/environment"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/storage"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/training"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/worker"
)

const heartbeatInterval = 30 * time.Second

// WorkerDaemon is the training worker process: one consumer slot on the
// training queue plus a heartbeat loop.
type WorkerDaemon struct {
	worker   *worker.Worker
	consumer *broker.Consumer
	results  *broker.ResultBackend
	ctx      context.Context
	cancel   context.CancelFunc
	isInited bool
}

// NewWorkerDaemon parses flags, loads the configuration and connects the
// worker's backing services.
func NewWorkerDaemon() (*WorkerDaemon, error) {
	d := &WorkerDaemon{}
	d.ctx, d.cancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *WorkerDaemon) init() error {
	if err := initConfig(); err != nil {
		klog.ErrorS(err, "failed to init config")
		return err
	}

	store, err := storage.NewClient(d.ctx)
	if err != nil {
		return err
	}
	if err = store.EnsureBucket(d.ctx, config.GetTrainingBucket()); err != nil {
		return err
	}
	if d.results, err = broker.NewResultBackend(d.ctx, config.GetResultBackendUrl()); err != nil {
		return err
	}

	linkBuilder, err := attestation.NewBuilder(config.GetWorkerPrivateKeyPath())
	if err != nil {
		return err
	}
	bomSigner, err := commoncrypto.LoadSigner(config.GetWorkerPrivateKeyPath(), config.GetWorkerPublicKeyPath())
	if err != nil {
		return err
	}
	executor, err := training.NewCommandExecutor(config.GetExecutorCommand())
	if err != nil {
		return err
	}
	frameworks := config.GetSupportedFrameworks()
	extractor := environment.NewExtractor(store, config.GetWorkerScansBucket(),
		config.GetWorkerImageName(), frameworks[0])

	d.worker = worker.New(worker.Config{
		Bucket:    config.GetTrainingBucket(),
		Command:   config.GetExecutorCommand(),
		TimeLimit: time.Duration(config.GetTaskTimeLimitSecond()) * time.Second,
	}, store, d.results, linkBuilder, bomSigner, executor, extractor)

	d.consumer, err = broker.NewConsumer(config.GetBrokerUrl(), broker.ConsumerOptions{
		Queue:      broker.TrainingQueue,
		MaxRetries: config.GetTaskMaxRetries(),
		RetryDelay: time.Duration(config.GetTaskRetryDelaySecond()) * time.Second,
	})
	if err != nil {
		return err
	}
	d.isInited = true
	return nil
}

// Start consumes training tasks until the process receives a stop signal.
func (d *WorkerDaemon) Start() {
	if !d.isInited {
		klog.Errorf("please init worker daemon first")
		return
	}
	klog.Infof("starting training worker")
	go d.heartbeatLoop()

	if err := d.consumer.Run(d.ctx, d.worker.Handler()); err != nil && d.ctx.Err() == nil {
		klog.ErrorS(err, "consumer stopped")
	}
	d.Stop()
}

// Stop releases the broker clients.
func (d *WorkerDaemon) Stop() {
	defer d.cancel()
	d.consumer.Close()
	d.results.Close()
	klog.Info("training worker is stopped")
	klog.Flush()
}

func (d *WorkerDaemon) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		if err := d.worker.Heartbeat(d.ctx); err != nil {
			klog.ErrorS(err, "failed to report worker stats")
		}
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func initConfig() error {
	klog.InitFlags(nil)
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()
	if *configPath == "" {
		return config.LoadConfig("")
	}
	fullPath, err := filepath.Abs(*configPath)
	if err != nil {
		return err
	}
	if err = config.LoadConfig(fullPath); err != nil {
		return fmt.Errorf("config path: %s, err: %v", fullPath, err)
	}
	return nil
}
