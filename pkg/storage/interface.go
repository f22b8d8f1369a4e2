/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package storage

import "context"

// Interface is the bucket-scoped blob store surface shared by the submission
// service, the worker, the verifier and the scanner. Every object is written
// exactly once; listing is lexicographic by key.
type Interface interface {
	// EnsureBucket creates the bucket when it does not exist yet. Idempotent.
	EnsureBucket(ctx context.Context, bucket string) error
	// PutFile uploads a local file and returns the object URL.
	PutFile(ctx context.Context, bucket, key, localPath string) (string, error)
	// PutBytes uploads an in-memory payload and returns the object URL.
	PutBytes(ctx context.Context, bucket, key string, value []byte) (string, error)
	// DownloadFile fetches an object to the exact local path.
	DownloadFile(ctx context.Context, bucket, key, localPath string) error
	// List returns all object keys under the prefix, lexicographically.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	// Presign returns a temporary GET URL for the object.
	Presign(ctx context.Context, bucket, key string, expireSecond int) (string, error)
}
