/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const (
	DefaultTimeout = 180

	partSize           = 100 * 1024 * 1024  // 100MB per part
	largeFileThreshold = 1024 * 1024 * 1024 // Files larger than 1GB use concurrent download
)

// Client wraps the S3 SDK client with the bucket operations the platform
// needs: upload, download, list and presign of immutable artifacts.
type Client struct {
	*Config
	s3Client *s3.Client
}

// NewClient creates and returns a new Client instance using system-wide
// settings.
func NewClient(ctx context.Context) (Interface, error) {
	config, err := NewConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewClientFromConfig(config), nil
}

// NewClientFromConfig creates and returns a new Client instance using config.
func NewClientFromConfig(config *Config) Interface {
	s3Client := s3.NewFromConfig(config.Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(config.Endpoint)
		o.UsePathStyle = true
	})
	return &Client{
		Config:   config,
		s3Client: s3Client,
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	timeoutCtx, cancel := WithOptionalTimeout(ctx, DefaultTimeout)
	defer cancel()

	_, err := c.s3Client.HeadBucket(timeoutCtx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}
	_, err = c.s3Client.CreateBucket(timeoutCtx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return mapStoreError(err, fmt.Sprintf("failed to create bucket %s", bucket))
	}
	return nil
}

// PutFile uploads a local file and returns the object URL.
func (c *Client) PutFile(ctx context.Context, bucket, key, localPath string) (string, error) {
	if key == "" || localPath == "" {
		return "", commonerrors.NewBadRequest("the object key or file path is empty")
	}
	file, err := os.Open(localPath)
	if err != nil {
		return "", commonerrors.NewInputMissing(fmt.Sprintf("failed to open %s", localPath)).WithError(err)
	}
	defer file.Close()

	timeoutCtx, cancel := WithOptionalTimeout(ctx, DefaultTimeout)
	defer cancel()

	_, err = c.s3Client.PutObject(timeoutCtx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", mapStoreError(err, fmt.Sprintf("failed to upload %s", key))
	}
	return c.objectUrl(bucket, key), nil
}

// PutBytes uploads an in-memory payload and returns the object URL.
func (c *Client) PutBytes(ctx context.Context, bucket, key string, value []byte) (string, error) {
	if key == "" {
		return "", commonerrors.NewBadRequest("the object key is empty")
	}
	timeoutCtx, cancel := WithOptionalTimeout(ctx, DefaultTimeout)
	defer cancel()

	_, err := c.s3Client.PutObject(timeoutCtx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return "", mapStoreError(err, fmt.Sprintf("failed to upload %s", key))
	}
	return c.objectUrl(bucket, key), nil
}

// DownloadFile downloads an object to the exact local path. Chooses between a
// simple download for small objects and a concurrent download for large ones.
func (c *Client) DownloadFile(ctx context.Context, bucket, key, localPath string) error {
	head, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapStoreError(err, fmt.Sprintf("failed to stat %s", key))
	}
	if aws.ToInt64(head.ContentLength) < largeFileThreshold {
		return c.downloadSmallFile(ctx, bucket, key, localPath)
	}
	return c.downloadLargeFile(ctx, bucket, key, localPath)
}

func (c *Client) downloadSmallFile(ctx context.Context, bucket, key, localPath string) error {
	resp, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapStoreError(err, fmt.Sprintf("failed to download %s", key))
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return commonerrors.NewInternalError("failed to create directory").WithError(err)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return commonerrors.NewInternalError("failed to create file").WithError(err)
	}
	defer file.Close()

	if _, err = io.Copy(file, resp.Body); err != nil {
		os.Remove(localPath)
		return mapStoreError(err, fmt.Sprintf("failed to download %s", key))
	}
	return nil
}

func (c *Client) downloadLargeFile(ctx context.Context, bucket, key, localPath string) error {
	downloader := manager.NewDownloader(c.s3Client, func(d *manager.Downloader) {
		d.PartSize = partSize
		d.Concurrency = 5
	})
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return commonerrors.NewInternalError("failed to create directory").WithError(err)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return commonerrors.NewInternalError("failed to create file").WithError(err)
	}
	defer file.Close()

	_, err = downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(localPath)
		return mapStoreError(err, fmt.Sprintf("failed to download %s", key))
	}
	return nil
}

// List returns all object keys under the prefix. Keys come back sorted
// lexicographically; callers may not assume any other order.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapStoreError(err, fmt.Sprintf("failed to list prefix %s", prefix))
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Presign returns a temporary GET URL for the object.
func (c *Client) Presign(ctx context.Context, bucket, key string, expireSecond int) (string, error) {
	presigner := s3.NewPresignClient(c.s3Client)

	resp, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = time.Duration(expireSecond) * time.Second
	})
	if err != nil {
		return "", mapStoreError(err, fmt.Sprintf("failed to presign %s", key))
	}
	return resp.URL, nil
}

func (c *Client) objectUrl(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", c.Endpoint, bucket, key)
}

// mapStoreError folds SDK errors into the platform taxonomy: credential and
// request failures are non-retryable rejects, everything else is a retryable
// availability error.
func mapStoreError(err error, message string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "QuotaExceeded":
			return commonerrors.NewStoreRejected(message).WithError(err)
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return commonerrors.NewNotFoundWithMessage(message).WithError(err)
		}
	}
	return commonerrors.NewStoreUnavailable(message).WithError(err)
}

// WithOptionalTimeout adds an optional timeout to context.
func WithOptionalTimeout(parent context.Context, timeout int64) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, time.Duration(timeout)*time.Second)
}
