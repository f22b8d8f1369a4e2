/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package scanner

import (
	"context"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// scanSubmitter publishes scan tasks to the broker.
type scanSubmitter interface {
	SubmitScan(ctx context.Context, images []string) (string, error)
}

// Beat periodically enqueues a scan task, the counterpart of the scanner's
// hourly schedule. The task itself resolves the image references, so the
// published body carries none.
type Beat struct {
	cron      *cron.Cron
	submitter scanSubmitter
}

// NewBeat wires the schedule, a standard 5-field cron expression, to the
// submitter.
func NewBeat(schedule string, submitter scanSubmitter) (*Beat, error) {
	b := &Beat{
		cron:      cron.New(),
		submitter: submitter,
	}
	_, err := b.cron.AddFunc(schedule, b.tick)
	if err != nil {
		return nil, commonerrors.NewBadRequest("invalid scanner schedule").WithError(err)
	}
	return b, nil
}

func (b *Beat) tick() {
	taskId, err := b.submitter.SubmitScan(context.Background(), nil)
	if err != nil {
		klog.ErrorS(err, "failed to enqueue scan task")
		return
	}
	klog.Infof("enqueued periodic scan task, id: %s", taskId)
}

// Start begins firing on the schedule.
func (b *Beat) Start() {
	b.cron.Start()
}

// Stop waits for an in-flight tick and stops the schedule.
func (b *Beat) Stop() {
	<-b.cron.Stop().Done()
}
