/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package attestation

import (
	"encoding/json"
	"os"
	"time"

	"github.com/in-toto/in-toto-golang/in_toto"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const (
	layoutType = "layout"

	// ExpiryDays is how long a generated layout stays valid.
	ExpiryDays = 90

	expiresFormat = "2006-01-02T15:04:05Z"
)

// BuildLayout creates the supply-chain layout for the training pipeline: a
// single run_training step executed by the worker functionary, with material
// rules matching the staged inputs and product rules covering every output
// the worker publishes.
func BuildLayout(workerKey in_toto.Key, now time.Time) in_toto.Layout {
	publicKey := workerKey
	publicKey.KeyVal.Private = ""

	step := in_toto.Step{
		Type:            "step",
		PubKeys:         []string{workerKey.KeyID},
		ExpectedCommand: []string{"python", "tasks.py", "run_training"},
		Threshold:       1,
		SupplyChainItem: in_toto.SupplyChainItem{
			Name: StepRunTraining,
			ExpectedMaterials: [][]string{
				{"MATCH", "model", "WITH", "PRODUCTS", "FROM", "api"},
				{"MATCH", "dataset", "WITH", "PRODUCTS", "FROM", "api"},
				{"MATCH", "dataset_definition", "WITH", "PRODUCTS", "FROM", "api"},
			},
			ExpectedProducts: [][]string{
				{"CREATE", "trained_model.keras"},
				{"CREATE", "metrics.json"},
				{"CREATE", "cyclonedx_bom.json"},
			},
		},
	}
	return in_toto.Layout{
		Type:    layoutType,
		Expires: now.AddDate(0, 0, ExpiryDays).UTC().Format(expiresFormat),
		Readme:  "This layout defines the steps for the run_training task.",
		Steps:   []in_toto.Step{step},
		Inspect: []in_toto.Inspection{},
		Keys: map[string]in_toto.Key{
			workerKey.KeyID: publicKey,
		},
	}
}

// SignLayout wraps a layout in a metablock and signs it.
func SignLayout(layout in_toto.Layout, key in_toto.Key) (*in_toto.Metablock, error) {
	mb := &in_toto.Metablock{Signed: layout}
	if err := mb.Sign(key); err != nil {
		return nil, commonerrors.NewInternalError("failed to sign layout").WithError(err)
	}
	return mb, nil
}

// LoadLayout reads a signed layout from disk. The layout ships as a mounted
// secret next to the worker public key.
func LoadLayout(path string) (*in_toto.Metablock, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, commonerrors.NewInputMissing("failed to read signed layout").WithError(err)
	}
	// Metablock.Load decodes the signed payload into a concrete Layout,
	// which the verification workflow asserts on.
	mb := &in_toto.Metablock{}
	if err := mb.Load(path); err != nil {
		return nil, commonerrors.NewBadRequest("failed to decode signed layout").WithError(err)
	}
	return mb, nil
}

// ParseLayout extracts the layout payload from a decoded metablock.
func ParseLayout(mb *in_toto.Metablock) (*in_toto.Layout, error) {
	raw, err := json.Marshal(mb.Signed)
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to re-encode layout payload").WithError(err)
	}
	layout := &in_toto.Layout{}
	if err = json.Unmarshal(raw, layout); err != nil {
		return nil, commonerrors.NewBadRequest("the metadata does not carry a layout payload").WithError(err)
	}
	return layout, nil
}

// LayoutExpired reports whether the layout's expiry has passed.
func LayoutExpired(layout *in_toto.Layout, now time.Time) (bool, error) {
	expires, err := time.Parse(expiresFormat, layout.Expires)
	if err != nil {
		return false, commonerrors.NewBadRequest("the layout carries an invalid expiry").WithError(err)
	}
	return now.After(expires), nil
}
