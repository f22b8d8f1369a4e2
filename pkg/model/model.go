/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package model inspects submitted model artifacts and checks that their
// architecture agrees with the dataset definition before training starts.
package model

import (
	"fmt"
	"strings"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/dataset"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// Layer is one layer of an inspected model.
type Layer struct {
	ClassName string
	Name      string
	Units     int
}

// Info is the architecture extracted from a model artifact.
type Info struct {
	Name        string
	Layers      []Layer
	InputShape  []int
	OutputShape []int
}

// Introspector extracts an Info from a model file on disk.
type Introspector interface {
	Inspect(path string) (*Info, error)
}

// Summary renders a human-readable architecture listing. It ends up as a
// property on the model component of the generated AIBOM.
func (i *Info) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %s\n", i.Name)
	for _, layer := range i.Layers {
		if layer.Units > 0 {
			fmt.Fprintf(&b, "  %s (%s, units=%d)\n", layer.ClassName, layer.Name, layer.Units)
		} else {
			fmt.Fprintf(&b, "  %s (%s)\n", layer.ClassName, layer.Name)
		}
	}
	fmt.Fprintf(&b, "Input shape: %v\nOutput shape: %v\n", i.InputShape, i.OutputShape)
	return b.String()
}

// ValidateShapes checks the model architecture against the shapes declared
// in the dataset definition. Shapes the definition leaves out are skipped.
func ValidateShapes(info *Info, def *dataset.Definition) error {
	if len(def.InputShape) > 0 && !equalShape(info.InputShape, def.InputShape) {
		return commonerrors.NewShapeMismatch(fmt.Sprintf(
			"model input shape %v does not match dataset input shape %v",
			info.InputShape, def.InputShape))
	}
	if len(def.OutputShape) > 0 && !equalShape(info.OutputShape, def.OutputShape) {
		return commonerrors.NewShapeMismatch(fmt.Sprintf(
			"model output shape %v does not match dataset output shape %v",
			info.OutputShape, def.OutputShape))
	}
	return nil
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
