/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// Kind is the closed set of supported dataset formats.
type Kind string

const (
	KindCsv      Kind = "csv"
	KindImage    Kind = "image"
	KindTfrecord Kind = "tfrecord"
)

// FeatureSpec describes one tfrecord feature: its element type and shape.
// In the definition file it is written as a two-element list, e.g.
// `feature: ["float", [10]]`; a bare dtype means a scalar feature.
type FeatureSpec struct {
	DType string
	Shape []int
}

// UnmarshalYAML accepts both the tuple form and a bare dtype string.
func (s *FeatureSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&s.DType)
	}
	var tuple []yaml.Node
	if err := node.Decode(&tuple); err != nil {
		return err
	}
	if len(tuple) == 0 || len(tuple) > 2 {
		return fmt.Errorf("feature spec must be [dtype] or [dtype, shape]")
	}
	if err := tuple[0].Decode(&s.DType); err != nil {
		return err
	}
	if len(tuple) == 2 {
		if err := tuple[1].Decode(&s.Shape); err != nil {
			return err
		}
	}
	return nil
}

// Preprocessing is the optional transformation block of a definition.
// Steps apply in declaration order: normalize, scale, clip.
type Preprocessing struct {
	Normalize bool      `yaml:"normalize"`
	Scale     *float64  `yaml:"scale"`
	Clip      []float64 `yaml:"clip"`
}

// Definition is the parsed dataset-definition document. Which fields are
// required depends on Type.
type Definition struct {
	Type            Kind                   `yaml:"type"`
	Columns         map[string]string      `yaml:"columns"`
	Label           string                 `yaml:"label"`
	ImageSize       []int                  `yaml:"image_size"`
	Features        map[string]FeatureSpec `yaml:"features"`
	FlattenFeatures *bool                  `yaml:"flatten_features"`
	InputShape      []int                  `yaml:"input_shape"`
	OutputShape     []int                  `yaml:"output_shape"`
	Preprocessing   *Preprocessing         `yaml:"preprocessing"`
}

// LoadDefinition reads and validates a definition file.
func LoadDefinition(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, commonerrors.NewInputMissing(fmt.Sprintf("failed to read %s", path)).WithError(err)
	}
	return ParseDefinition(raw)
}

// ParseDefinition parses a definition document and applies defaults.
func ParseDefinition(raw []byte) (*Definition, error) {
	def := &Definition{}
	if err := yaml.Unmarshal(raw, def); err != nil {
		return nil, commonerrors.NewSchemaMismatch("failed to parse dataset definition").WithError(err)
	}
	if def.Type == "" {
		def.Type = KindCsv
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate checks the per-kind required fields.
func (d *Definition) Validate() error {
	switch d.Type {
	case KindCsv:
		if len(d.Columns) == 0 {
			return commonerrors.NewSchemaMismatch("a csv definition requires columns")
		}
		if d.Label == "" {
			return commonerrors.NewSchemaMismatch("a csv definition requires a label column")
		}
		if _, ok := d.Columns[d.Label]; !ok {
			return commonerrors.NewSchemaMismatch(
				fmt.Sprintf("label column %q is not declared in columns", d.Label))
		}
	case KindImage:
		if len(d.ImageSize) == 0 {
			d.ImageSize = []int{224, 224}
		}
		if len(d.ImageSize) != 2 {
			return commonerrors.NewSchemaMismatch("image_size must be [height, width]")
		}
	case KindTfrecord:
		if len(d.Features) == 0 {
			return commonerrors.NewSchemaMismatch("a tfrecord definition requires features")
		}
		if d.Label == "" {
			return commonerrors.NewSchemaMismatch("a tfrecord definition requires a label feature")
		}
		for name, spec := range d.Features {
			if spec.DType != "float" && spec.DType != "int" {
				return commonerrors.NewSchemaMismatch(
					fmt.Sprintf("feature %q has unsupported dtype %q", name, spec.DType))
			}
		}
	default:
		return commonerrors.NewSchemaMismatch(fmt.Sprintf("unsupported dataset type %q", d.Type))
	}
	return nil
}

// FeatureColumns returns the csv feature columns, label excluded.
func (d *Definition) FeatureColumns() []string {
	columns := make([]string, 0, len(d.Columns))
	for name := range d.Columns {
		if name != d.Label {
			columns = append(columns, name)
		}
	}
	return columns
}

// Flatten reports whether tfrecord features concatenate into one vector.
// Defaults to true like the training pipeline expects.
func (d *Definition) Flatten() bool {
	if d.FlattenFeatures == nil {
		return true
	}
	return *d.FlattenFeatures
}
