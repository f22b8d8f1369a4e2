/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"k8s.io/klog/v2"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// Publisher submits tasks onto the routed broker queues. One publisher is
// shared per process; the amqp channel is not safe for concurrent publish so
// callers serialize through SubmitTraining/SubmitScan.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher dials the broker and declares the task topology.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, commonerrors.NewBrokerUnavailable("failed to dial broker").WithError(err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, commonerrors.NewBrokerUnavailable("failed to open channel").WithError(err)
	}
	if err = declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	klog.Infof("init broker publisher successfully! url: %s", redactUrl(url))
	return &Publisher{conn: conn, channel: channel}, nil
}

// declareTopology declares the topic exchange and both routed queues.
// Declaration is idempotent so publisher and workers can race on startup.
func declareTopology(channel *amqp.Channel) error {
	if err := channel.ExchangeDeclare(TasksExchange, "topic", true, false, false, false, nil); err != nil {
		return commonerrors.NewBrokerUnavailable("failed to declare exchange").WithError(err)
	}
	for _, q := range []struct {
		name    string
		binding string
	}{
		{TrainingQueue, TrainingBinding},
		{ScannerQueue, ScannerBinding},
	} {
		if _, err := channel.QueueDeclare(q.name, true, false, false, false, nil); err != nil {
			return commonerrors.NewBrokerUnavailable(
				fmt.Sprintf("failed to declare queue %s", q.name)).WithError(err)
		}
		if err := channel.QueueBind(q.name, q.binding, TasksExchange, false, nil); err != nil {
			return commonerrors.NewBrokerUnavailable(
				fmt.Sprintf("failed to bind queue %s", q.name)).WithError(err)
		}
	}
	return nil
}

// SubmitTraining publishes a training task and returns its task id. The id
// doubles as the job id in the registry.
func (p *Publisher) SubmitTraining(ctx context.Context, task *TrainingTask) (string, error) {
	if task == nil || task.StagingDir == "" {
		return "", commonerrors.NewBadRequest("the training task is incomplete")
	}
	taskId := uuid.NewString()
	if err := p.publish(ctx, TrainingRoutingKey, TrainingTaskName, taskId, task); err != nil {
		return "", err
	}
	klog.Infof("submitted training task, id: %s, stagingDir: %s", taskId, task.StagingDir)
	return taskId, nil
}

// SubmitScan publishes an image scan task and returns its task id.
func (p *Publisher) SubmitScan(ctx context.Context, images []string) (string, error) {
	taskId := uuid.NewString()
	body := map[string]interface{}{"images": images}
	if err := p.publish(ctx, ScannerRoutingKey, ScannerTaskName, taskId, body); err != nil {
		return "", err
	}
	klog.Infof("submitted scan task, id: %s, images: %v", taskId, images)
	return taskId, nil
}

func (p *Publisher) publish(ctx context.Context, routingKey, taskName, taskId string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return commonerrors.NewInternalError("failed to marshal task body").WithError(err)
	}
	err = p.channel.PublishWithContext(ctx, TasksExchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    taskId,
		Headers: amqp.Table{
			taskHeader:    taskName,
			idHeader:      taskId,
			retriesHeader: int32(0),
		},
		Body: payload,
	})
	if err != nil {
		return commonerrors.NewBrokerUnavailable("failed to publish task").WithError(err)
	}
	return nil
}

// redactUrl strips credentials from a broker URL before logging.
func redactUrl(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return "<invalid url>"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.Redacted()
}

// Close releases the broker channel and connection.
func (p *Publisher) Close() {
	if err := p.channel.Close(); err != nil {
		klog.ErrorS(err, "failed to close broker channel")
	}
	if err := p.conn.Close(); err != nil {
		klog.ErrorS(err, "failed to close broker connection")
	}
}
