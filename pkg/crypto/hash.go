/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const hashChunkSize = 8192

// Sha256File streams a file through sha256 and returns the hex digest.
// Artifacts can be multi-gigabyte models, so the file is never read whole.
func Sha256File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", commonerrors.NewInputMissing(fmt.Sprintf("failed to open %s", path)).WithError(err)
	}
	defer file.Close()

	digest := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err = io.CopyBuffer(digest, file, buf); err != nil {
		return "", commonerrors.NewInternalError(fmt.Sprintf("failed to hash %s", path)).WithError(err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// Sha256Bytes returns the hex sha256 digest of an in-memory payload.
func Sha256Bytes(payload []byte) string {
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:])
}
