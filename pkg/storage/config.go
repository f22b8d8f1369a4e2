/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	commonconfig "github.com/wiebe-vandendriessche/AIBoMGen/pkg/config"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// Config carries the resolved AWS configuration plus the endpoint the client
// talks to. MinIO and any S3-compatible store are addressed path-style.
type Config struct {
	aws.Config
	Endpoint string
}

// NewConfig builds the store configuration from system-wide settings.
func NewConfig(ctx context.Context) (*Config, error) {
	endpoint := commonconfig.GetS3Endpoint()
	accessKey := commonconfig.GetS3AccessKey()
	secretKey := commonconfig.GetS3SecretKey()
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, commonerrors.NewStoreRejected("the blob store endpoint or credentials are not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(commonconfig.GetS3Region()),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, commonerrors.NewStoreRejected("failed to load blob store credentials").WithError(err)
	}
	return &Config{Config: awsCfg, Endpoint: endpoint}, nil
}
