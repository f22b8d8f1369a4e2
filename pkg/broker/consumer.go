/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package broker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"k8s.io/klog/v2"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// Handler processes one delivered task. A nil return acknowledges the
// message; an error triggers the retry policy.
type Handler func(ctx context.Context, taskId string, retries int, body []byte) error

// ConsumerOptions bounds the retry policy of a consumer.
type ConsumerOptions struct {
	Queue      string
	MaxRetries int
	RetryDelay time.Duration
}

// Consumer pulls tasks off one queue with prefetch 1 and manual ack, so an
// unacknowledged task is requeued when the worker is lost.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	opts    ConsumerOptions
}

// NewConsumer dials the broker, declares the topology and sets Qos.
func NewConsumer(url string, opts ConsumerOptions) (*Consumer, error) {
	if opts.Queue == "" {
		return nil, commonerrors.NewBadRequest("the consumer queue is empty")
	}
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
	if err = channel.Qos(1, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, commonerrors.NewBrokerUnavailable("failed to set qos").WithError(err)
	}
	klog.Infof("init broker consumer successfully! queue: %s, maxRetries: %d", opts.Queue, opts.MaxRetries)
	return &Consumer{conn: conn, channel: channel, opts: opts}, nil
}

// Run consumes deliveries until the context is cancelled or the channel
// closes. Failed tasks are republished with an incremented retry counter
// after the retry delay; a task that exhausts its retries is dropped and the
// handler's result-backend failure record is the terminal trace.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	deliveries, err := c.channel.Consume(c.opts.Queue, "", false, false, false, false, nil)
	if err != nil {
		return commonerrors.NewBrokerUnavailable("failed to start consuming").WithError(err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return commonerrors.NewBrokerUnavailable("delivery channel closed")
			}
			c.handleDelivery(ctx, handler, delivery)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, handler Handler, delivery amqp.Delivery) {
	taskId := deliveryTaskId(delivery)
	retries := deliveryRetries(delivery)

	err := handler(ctx, taskId, retries, delivery.Body)
	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			klog.ErrorS(ackErr, "failed to ack task", "id", taskId)
		}
		return
	}

	klog.ErrorS(err, "task failed", "id", taskId, "retries", retries)
	if retries < c.opts.MaxRetries && commonerrors.IsRetryable(err) {
		c.republish(ctx, delivery, taskId, retries+1)
	}
	if ackErr := delivery.Ack(false); ackErr != nil {
		klog.ErrorS(ackErr, "failed to ack failed task", "id", taskId)
	}
}

// republish re-enqueues the delivery with an incremented retry counter.
// The delay runs inline: the consumer has prefetch 1 and no other task can
// be worked during the backoff anyway.
func (c *Consumer) republish(ctx context.Context, delivery amqp.Delivery, taskId string, retries int) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(c.opts.RetryDelay):
	}
	headers := amqp.Table{}
	for k, v := range delivery.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries)
	err := c.channel.PublishWithContext(ctx, TasksExchange, delivery.RoutingKey, false, false, amqp.Publishing{
		ContentType:  delivery.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    delivery.MessageId,
		Headers:      headers,
		Body:         delivery.Body,
	})
	if err != nil {
		klog.ErrorS(err, "failed to republish task", "id", taskId, "retries", retries)
		return
	}
	klog.Infof("republished task for retry, id: %s, attempt: %d", taskId, retries)
}

// Close performs the Close operation.
func (c *Consumer) Close() {
	if err := c.channel.Close(); err != nil {
		klog.ErrorS(err, "failed to close broker channel")
	}
	if err := c.conn.Close(); err != nil {
		klog.ErrorS(err, "failed to close broker connection")
	}
}

// deliveryTaskId reads the task id header, falling back to the message id.
func deliveryTaskId(delivery amqp.Delivery) string {
	if id, ok := delivery.Headers[idHeader].(string); ok && id != "" {
		return id
	}
	return delivery.MessageId
}

// deliveryRetries reads the retry counter header. amqp decodes small ints
// with varying widths, so every integer type is accepted.
func deliveryRetries(delivery amqp.Delivery) int {
	switch v := delivery.Headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int16:
		return int(v)
	case int8:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
