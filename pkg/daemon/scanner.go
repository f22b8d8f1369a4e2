/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package daemon

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/config"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/scanner"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/storage"
)

// ScannerDaemon is the vulnerability scanner process: a consumer on the
// scanner queue plus the cron beat that enqueues the periodic scans.
type ScannerDaemon struct {
	scanner   *scanner.Scanner
	beat      *scanner.Beat
	consumer  *broker.Consumer
	publisher *broker.Publisher
	results   *broker.ResultBackend
	ctx       context.Context
	cancel    context.CancelFunc
	isInited  bool
}

// NewScannerDaemon parses flags, loads the configuration and connects the
// scanner's backing services.
func NewScannerDaemon() (*ScannerDaemon, error) {
	d := &ScannerDaemon{}
	d.ctx, d.cancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *ScannerDaemon) init() error {
	if err := initConfig(); err != nil {
		klog.ErrorS(err, "failed to init config")
		return err
	}

	store, err := storage.NewClient(d.ctx)
	if err != nil {
		return err
	}
	if d.results, err = broker.NewResultBackend(d.ctx, config.GetResultBackendUrl()); err != nil {
		return err
	}
	if d.publisher, err = broker.NewPublisher(config.GetBrokerUrl()); err != nil {
		return err
	}

	d.scanner, err = scanner.New(scanner.Config{
		WorkerImage:   config.GetWorkerImageName(),
		ScannerImage:  config.GetScannerImageName(),
		WorkerBucket:  config.GetWorkerScansBucket(),
		ScannerBucket: config.GetScannerScansBucket(),
		Command:       config.GetScannerCommand(),
	}, store, d.results)
	if err != nil {
		return err
	}
	if d.beat, err = scanner.NewBeat(config.GetScannerSchedule(), d.publisher); err != nil {
		return err
	}

	d.consumer, err = broker.NewConsumer(config.GetBrokerUrl(), broker.ConsumerOptions{
		Queue:      broker.ScannerQueue,
		MaxRetries: config.GetTaskMaxRetries(),
		RetryDelay: time.Duration(config.GetTaskRetryDelaySecond()) * time.Second,
	})
	if err != nil {
		return err
	}
	d.isInited = true
	return nil
}

// Start consumes scan tasks until the process receives a stop signal.
func (d *ScannerDaemon) Start() {
	if !d.isInited {
		klog.Errorf("please init scanner daemon first")
		return
	}
	klog.Infof("starting vulnerability scanner, schedule: %s", config.GetScannerSchedule())
	d.beat.Start()

	if err := d.consumer.Run(d.ctx, d.scanner.Handler()); err != nil && d.ctx.Err() == nil {
		klog.ErrorS(err, "consumer stopped")
	}
	d.Stop()
}

// Stop halts the beat and releases the broker clients.
func (d *ScannerDaemon) Stop() {
	defer d.cancel()
	d.beat.Stop()
	d.consumer.Close()
	d.publisher.Close()
	d.results.Close()
	klog.Info("vulnerability scanner is stopped")
	klog.Flush()
}
