/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package dataset

import "math"

// ApplyPreprocessing applies the configured steps to feature rows in order:
// per-column standardization, then scaling, then clipping. rows is modified
// in place and returned for chaining.
func ApplyPreprocessing(rows [][]float64, p *Preprocessing) [][]float64 {
	if p == nil {
		return rows
	}
	if p.Normalize {
		standardizeColumns(rows)
	}
	if p.Scale != nil {
		scale := *p.Scale
		for _, row := range rows {
			for i := range row {
				row[i] *= scale
			}
		}
	}
	if len(p.Clip) == 2 {
		lo, hi := p.Clip[0], p.Clip[1]
		for _, row := range rows {
			for i := range row {
				row[i] = math.Min(math.Max(row[i], lo), hi)
			}
		}
	}
	return rows
}

// standardizeColumns centers every feature column to zero mean and unit
// variance: (x - mean) / (std + 1e-8), with the population std computed
// over all rows. The epsilon keeps constant columns finite.
func standardizeColumns(rows [][]float64) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}
	cols := len(rows[0])
	mean := make([]float64, cols)
	for _, row := range rows {
		for i, v := range row {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(rows))
	}
	std := make([]float64, cols)
	for _, row := range rows {
		for i, v := range row {
			d := v - mean[i]
			std[i] += d * d
		}
	}
	for i := range std {
		std[i] = math.Sqrt(std[i] / float64(len(rows)))
	}
	for _, row := range rows {
		for i := range row {
			row[i] = (row[i] - mean[i]) / (std[i] + 1e-8)
		}
	}
}

// Describe summarizes the preprocessing steps for recording in model
// provenance documents.
func (p *Preprocessing) Describe() string {
	if p == nil {
		return "none"
	}
	out := ""
	if p.Normalize {
		out = "normalize"
	}
	if p.Scale != nil {
		if out != "" {
			out += ", "
		}
		out += "scale"
	}
	if len(p.Clip) == 2 {
		if out != "" {
			out += ", "
		}
		out += "clip"
	}
	if out == "" {
		return "none"
	}
	return out
}
