/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package environment

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// ScanKeyPrefix is where the periodic scanner publishes worker image reports.
const ScanKeyPrefix = "worker-vulnerability-scans/"

// scanReport is the subset of a scanner report the summary needs.
type scanReport struct {
	Results []struct {
		Vulnerabilities []struct {
			Severity string `json:"Severity"`
		} `json:"Vulnerabilities"`
	} `json:"Results"`
}

// latestVulnerabilityScan downloads the newest scan report and folds it into
// severity counts. Report keys end in a timestamp, so the lexicographic
// maximum is the newest.
func (e *Extractor) latestVulnerabilityScan(ctx context.Context) (map[string]int, error) {
	keys, err := e.store.List(ctx, e.scansBucket, ScanKeyPrefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, commonerrors.NewNotFoundWithMessage("no vulnerability scan files found")
	}
	latest := latestScanKey(keys)

	localPath := filepath.Join(os.TempDir(), filepath.Base(latest))
	if err = e.store.DownloadFile(ctx, e.scansBucket, latest, localPath); err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	raw, err := os.ReadFile(localPath)
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to read scan report").WithError(err)
	}
	return summarizeScan(raw)
}

// latestScanKey picks the key with the greatest trailing timestamp segment.
func latestScanKey(keys []string) string {
	latest := keys[0]
	latestStamp := scanTimestamp(latest)
	for _, key := range keys[1:] {
		if stamp := scanTimestamp(key); stamp > latestStamp {
			latest = key
			latestStamp = stamp
		}
	}
	return latest
}

func scanTimestamp(key string) string {
	base := strings.TrimSuffix(filepath.Base(key), ".json")
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return base
	}
	return base[idx+1:]
}

// summarizeScan counts vulnerabilities by severity.
func summarizeScan(raw []byte) (map[string]int, error) {
	report := &scanReport{}
	if err := json.Unmarshal(raw, report); err != nil {
		return nil, commonerrors.NewBadRequest("failed to parse scan report").WithError(err)
	}
	summary := map[string]int{}
	for _, result := range report.Results {
		for _, vuln := range result.Vulnerabilities {
			severity := vuln.Severity
			if severity == "" {
				severity = "UNKNOWN"
			}
			summary[severity]++
		}
	}
	return summary, nil
}
