/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// CsvData holds a tabular dataset split into features and labels.
// Labels are remapped to contiguous 0-based class indices; ClassNames
// maps each index back to the original label value.
type CsvData struct {
	FeatureNames []string
	Features     [][]float64
	Labels       []int
	ClassNames   []string
}

// NumSamples returns the number of rows.
func (d *CsvData) NumSamples() int {
	return len(d.Features)
}

// NumClasses returns the number of distinct label values.
func (d *CsvData) NumClasses() int {
	return len(d.ClassNames)
}

// LoadCsv reads path and validates it against def, which must be a csv
// definition. Columns named in the definition must all be present.
func LoadCsv(path string, def *Definition) (*CsvData, error) {
	if def.Type != KindCsv {
		return nil, commonerrors.NewBadRequest(
			fmt.Sprintf("dataset definition type is %s, expected %s", def.Type, KindCsv))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, commonerrors.NewInputMissing(fmt.Sprintf("failed to open %s", path)).WithError(err)
	}
	defer f.Close()
	return parseCsv(f, def)
}

func parseCsv(r io.Reader, def *Definition) (*CsvData, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, commonerrors.NewSchemaMismatch("dataset file is empty or not valid CSV").WithError(err)
	}
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[name] = i
	}
	for name := range def.Columns {
		if _, ok := colIndex[name]; !ok {
			return nil, commonerrors.NewSchemaMismatch(
				fmt.Sprintf("column %q from the dataset definition is missing in the dataset", name))
		}
	}

	featureNames := def.FeatureColumns()
	sort.Strings(featureNames)
	labelIdx := colIndex[def.Label]

	data := &CsvData{FeatureNames: featureNames}
	labelIndex := map[string]int{}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, commonerrors.NewSchemaMismatch(
				fmt.Sprintf("failed to parse CSV at line %d", line)).WithError(err)
		}
		row := make([]float64, 0, len(featureNames))
		for _, name := range featureNames {
			value, err := strconv.ParseFloat(record[colIndex[name]], 64)
			if err != nil {
				return nil, commonerrors.NewSchemaMismatch(
					fmt.Sprintf("non-numeric value %q in column %q at line %d",
						record[colIndex[name]], name, line))
			}
			row = append(row, value)
		}
		label := record[labelIdx]
		idx, ok := labelIndex[label]
		if !ok {
			idx = len(data.ClassNames)
			labelIndex[label] = idx
			data.ClassNames = append(data.ClassNames, label)
		}
		data.Features = append(data.Features, row)
		data.Labels = append(data.Labels, idx)
	}
	if len(data.Features) == 0 {
		return nil, commonerrors.NewSchemaMismatch("dataset contains no data rows")
	}

	data.Features = ApplyPreprocessing(data.Features, def.Preprocessing)
	return data, nil
}
