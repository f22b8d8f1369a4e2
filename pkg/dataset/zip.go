/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package dataset

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const (
	MaxZipFileSize           = 100 * 1024 * 1024 // 100 MB
	MaxTotalUncompressedSize = 500 * 1024 * 1024 // 500 MB
	MaxUncompressedEntrySize = 50 * 1024 * 1024  // 50 MB
)

// allowedZipExtensions is the archive entry allow-list.
var allowedZipExtensions = map[string]bool{
	".jpg": true,
	".png": true,
	".csv": true,
}

// ValidateZipFile checks the archive size and that the file really is a zip.
// Called at submission time before the dataset is staged.
func ValidateZipFile(zipPath string) error {
	info, err := os.Stat(zipPath)
	if err != nil {
		return commonerrors.NewInputMissing(fmt.Sprintf("failed to stat %s", zipPath)).WithError(err)
	}
	if info.Size() > MaxZipFileSize {
		return commonerrors.NewRequestEntityTooLargeError("Uploaded .zip file is too large.")
	}
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return commonerrors.NewBadRequest("Uploaded file is not a valid .zip archive.").WithError(err)
	}
	return reader.Close()
}

// ValidateZipEntries walks every entry of the archive and applies the
// admission policy without extracting: extension allow-list, per-entry and
// total uncompressed size limits, and path traversal rejection. Called at
// submission time so bad archives never reach the object store.
func ValidateZipEntries(zipPath string) error {
	if err := ValidateZipFile(zipPath); err != nil {
		return err
	}
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return commonerrors.NewBadRequest("Uploaded file is not a valid .zip archive.").WithError(err)
	}
	defer reader.Close()

	var totalUncompressed uint64
	for _, member := range reader.File {
		if _, err = safeJoin("staging", member.Name); err != nil {
			return err
		}
		if member.FileInfo().IsDir() {
			continue
		}
		if err = checkMember(member, &totalUncompressed); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAndExtractZip validates the archive in full and extracts it.
// Every entry must pass the extension allow-list, the per-entry and total
// uncompressed size limits, and resolve inside extractTo.
func ValidateAndExtractZip(zipPath, extractTo string) error {
	if err := ValidateZipFile(zipPath); err != nil {
		return err
	}
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return commonerrors.NewBadRequest("Uploaded file is not a valid .zip archive.").WithError(err)
	}
	defer reader.Close()

	var totalUncompressed uint64
	for _, member := range reader.File {
		memberPath, err := safeJoin(extractTo, member.Name)
		if err != nil {
			return err
		}
		if member.FileInfo().IsDir() {
			continue
		}
		if err = checkMember(member, &totalUncompressed); err != nil {
			return err
		}
		if err = extractMember(member, memberPath); err != nil {
			return err
		}
	}
	return nil
}

// checkMember enforces the per-entry policy and accumulates the running
// uncompressed total.
func checkMember(member *zip.File, totalUncompressed *uint64) error {
	ext := strings.ToLower(filepath.Ext(member.Name))
	if !allowedZipExtensions[ext] {
		return commonerrors.NewBadRequest(
			fmt.Sprintf("Invalid file type in .zip file: %s", member.Name))
	}
	if member.UncompressedSize64 > MaxUncompressedEntrySize {
		return commonerrors.NewRequestEntityTooLargeError(
			fmt.Sprintf("File %s exceeds the maximum allowed size of %d bytes.",
				member.Name, MaxUncompressedEntrySize))
	}
	*totalUncompressed += member.UncompressedSize64
	if *totalUncompressed > MaxTotalUncompressedSize {
		return commonerrors.NewRequestEntityTooLargeError(
			"The total uncompressed size of the .zip file exceeds the allowed limit.")
	}
	return nil
}

// safeJoin resolves an archive entry name under base, rejecting traversal.
func safeJoin(base, name string) (string, error) {
	resolved := filepath.Join(base, name)
	if !strings.HasPrefix(resolved, filepath.Clean(base)+string(os.PathSeparator)) &&
		resolved != filepath.Clean(base) {
		return "", commonerrors.NewBadRequest("Path traversal detected in .zip file!")
	}
	return resolved, nil
}

func extractMember(member *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return commonerrors.NewInternalError("failed to create extraction directory").WithError(err)
	}
	src, err := member.Open()
	if err != nil {
		return commonerrors.NewBadRequest(
			fmt.Sprintf("failed to read archive entry %s", member.Name)).WithError(err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return commonerrors.NewInternalError("failed to create extracted file").WithError(err)
	}
	defer dst.Close()

	// LimitReader guards against entries whose header lies about their size.
	limited := io.LimitReader(src, MaxUncompressedEntrySize+1)
	written, err := io.Copy(dst, limited)
	if err != nil {
		return commonerrors.NewInternalError("failed to extract archive entry").WithError(err)
	}
	if written > MaxUncompressedEntrySize {
		os.Remove(destPath)
		return commonerrors.NewRequestEntityTooLargeError(
			fmt.Sprintf("File %s exceeds the maximum allowed size of %d bytes.",
				member.Name, MaxUncompressedEntrySize))
	}
	return nil
}
