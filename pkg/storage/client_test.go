/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

func TestMapStoreError(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		retryable bool
		notFound  bool
	}{
		{
			name:      "access denied is a reject",
			err:       &smithy.GenericAPIError{Code: "AccessDenied", Message: "access denied"},
			retryable: false,
		},
		{
			name:      "bad credentials is a reject",
			err:       &smithy.GenericAPIError{Code: "InvalidAccessKeyId", Message: "unknown key"},
			retryable: false,
		},
		{
			name:     "missing object is not found",
			err:      &smithy.GenericAPIError{Code: "NoSuchKey", Message: "no such key"},
			notFound: true,
		},
		{
			name:      "connectivity failure is retryable",
			err:       context.DeadlineExceeded,
			retryable: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapStoreError(tc.err, "operation failed")
			assert.Error(t, mapped)
			if tc.notFound {
				assert.True(t, commonerrors.IsNotFound(mapped))
				return
			}
			assert.Equal(t, tc.retryable, commonerrors.IsRetryable(mapped))
		})
	}
}

func TestWithOptionalTimeout(t *testing.T) {
	ctx, cancel := WithOptionalTimeout(context.Background(), 30)
	defer cancel()
	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, time.Second)

	ctx, cancel = WithOptionalTimeout(context.Background(), 0)
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok)
}

func TestObjectUrl(t *testing.T) {
	c := &Client{Config: &Config{Endpoint: "http://minio:9000"}}
	assert.Equal(t, "http://minio:9000/training-jobs/abc/output/metrics.json",
		c.objectUrl("training-jobs", "abc/output/metrics.json"))
}
