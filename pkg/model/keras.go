/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package model

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const kerasConfigName = "config.json"

// maxConfigSize bounds the architecture document read from the archive.
const maxConfigSize = 16 * 1024 * 1024

// KerasIntrospector reads the architecture out of a .keras archive.
// The archive stores the model topology as config.json next to the
// weights; the weights themselves are never opened.
type KerasIntrospector struct{}

type kerasConfig struct {
	ClassName string `json:"class_name"`
	Config    struct {
		Name            string        `json:"name"`
		Layers          []kerasLayer  `json:"layers"`
		BuildInputShape []interface{} `json:"build_input_shape"`
	} `json:"config"`
}

type kerasLayer struct {
	ClassName string `json:"class_name"`
	Config    struct {
		Name       string        `json:"name"`
		Units      int           `json:"units"`
		BatchShape []interface{} `json:"batch_shape"`
	} `json:"config"`
}

// Inspect opens the archive at path and extracts the model architecture.
func (KerasIntrospector) Inspect(path string) (*Info, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, commonerrors.NewBadRequest("model file is not a valid .keras archive").WithError(err)
	}
	defer reader.Close()

	for _, member := range reader.File {
		if member.Name != kerasConfigName {
			continue
		}
		src, err := member.Open()
		if err != nil {
			return nil, commonerrors.NewBadRequest("failed to read model config").WithError(err)
		}
		defer src.Close()
		raw, err := io.ReadAll(io.LimitReader(src, maxConfigSize))
		if err != nil {
			return nil, commonerrors.NewBadRequest("failed to read model config").WithError(err)
		}
		return parseKerasConfig(raw)
	}
	return nil, commonerrors.NewBadRequest(
		fmt.Sprintf("model archive does not contain %s", kerasConfigName))
}

func parseKerasConfig(raw []byte) (*Info, error) {
	var cfg kerasConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, commonerrors.NewBadRequest("model config is not valid JSON").WithError(err)
	}
	info := &Info{Name: cfg.Config.Name}
	if info.Name == "" {
		info.Name = cfg.ClassName
	}
	for _, layer := range cfg.Config.Layers {
		info.Layers = append(info.Layers, Layer{
			ClassName: layer.ClassName,
			Name:      layer.Config.Name,
			Units:     layer.Config.Units,
		})
		if layer.ClassName == "InputLayer" && info.InputShape == nil {
			info.InputShape = dropBatchDim(layer.Config.BatchShape)
		}
		if layer.Config.Units > 0 {
			info.OutputShape = []int{layer.Config.Units}
		}
	}
	if info.InputShape == nil {
		info.InputShape = dropBatchDim(cfg.Config.BuildInputShape)
	}
	if len(info.Layers) == 0 {
		return nil, commonerrors.NewBadRequest("model config declares no layers")
	}
	return info, nil
}

// dropBatchDim converts a serialized shape like [null, 4] to [4].
// The leading batch dimension is serialized as JSON null.
func dropBatchDim(shape []interface{}) []int {
	if len(shape) == 0 {
		return nil
	}
	out := make([]int, 0, len(shape)-1)
	for i, dim := range shape {
		if i == 0 && dim == nil {
			continue
		}
		if v, ok := dim.(float64); ok {
			out = append(out, int(v))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
