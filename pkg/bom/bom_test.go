/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package bom

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commoncrypto "github.com/wiebe-vandendriessche/AIBoMGen/pkg/crypto"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/environment"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/model"
)

type fakeIntrospector struct{}

func (fakeIntrospector) Inspect(path string) (*model.Info, error) {
	return &model.Info{
		Name:        "sequential",
		Layers:      []model.Layer{{ClassName: "Dense", Name: "dense", Units: 3}},
		InputShape:  []int{4},
		OutputShape: []int{3},
	}, nil
}

func sampleData(t *testing.T) Data {
	t.Helper()
	dir := t.TempDir()
	definitionPath := filepath.Join(dir, "definition.yaml")
	require.NoError(t, os.WriteFile(definitionPath, []byte(`
type: csv
columns:
  x: float
  y: str
label: y
input_shape: [1]
output_shape: [2]
`), 0644))
	metricsPath := filepath.Join(dir, "metrics.json")
	require.NoError(t, os.WriteFile(metricsPath, []byte(`{"loss": 0.2, "accuracy": 0.95}`), 0644))

	return Data{
		Environment: &environment.Details{
			Os:                "Linux 6.1",
			RuntimeVersion:    "go1.24",
			FrameworkVersion:  "2.16",
			CpuCount:          8,
			MemoryTotalMb:     16000,
			JobId:             "job-1",
			StagingDir:        "20260826_job-1",
			VulnerabilityScan: map[string]int{"HIGH": 2, "LOW": 5},
		},
		Materials: []Artifact{
			{StorePath: "20260826_job-1/model/model.keras", Sha256: "aa11", LocalPath: "missing"},
			{StorePath: "20260826_job-1/dataset/data.csv", Sha256: "bb22"},
			{StorePath: "20260826_job-1/dataset_definition/definition.yaml", Sha256: "cc33", LocalPath: definitionPath},
		},
		Products: []Artifact{
			{StorePath: "20260826_job-1/output/trained_model.keras", Sha256: "dd44"},
			{StorePath: "20260826_job-1/output/metrics.json", Sha256: "ee55", LocalPath: metricsPath},
		},
		FitParams:      map[string]string{"epochs": "50", "batch_size": "32"},
		OptionalParams: map[string]string{"model_name": "iris-classifier", "framework": "tensorflow"},
		Attestation: &AttestationRef{
			StorePath: "20260826_job-1/output/run_training.6ba2e2e1.link",
		},
	}
}

func findComponent(t *testing.T, doc *cdx.BOM, name string) cdx.Component {
	t.Helper()
	require.NotNil(t, doc.Components)
	for _, c := range *doc.Components {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("component %q not found", name)
	return cdx.Component{}
}

func propertyValue(c cdx.Component, name string) string {
	if c.Properties == nil {
		return ""
	}
	for _, p := range *c.Properties {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

func TestAssemble(t *testing.T) {
	assembler := &Assembler{Introspector: fakeIntrospector{}}
	doc, err := assembler.Assemble(sampleData(t))
	require.NoError(t, err)

	env := findComponent(t, doc, "Training Environment")
	assert.Equal(t, cdx.ComponentTypeContainer, env.Type)
	assert.Equal(t, "Linux 6.1", propertyValue(env, "OS"))
	assert.Equal(t, "2", propertyValue(env, "Vulnerability Scan HIGH"))
	assert.Equal(t, "Unknown", propertyValue(env, "Container ID"))
	assert.Equal(t, "8", propertyValue(env, "CPU Count"))
	assert.Equal(t, "16000", propertyValue(env, "Memory Total (MB)"))

	data := findComponent(t, doc, "Training Dataset")
	assert.Equal(t, cdx.ComponentTypeData, data.Type)
	assert.Equal(t, "bb22", propertyValue(data, "Dataset Hash"))
	assert.Equal(t, "cc33", propertyValue(data, "Dataset Definition Hash"))
	assert.Equal(t, "[1]", propertyValue(data, "Input Shape"))

	mlm := findComponent(t, doc, "iris-classifier")
	assert.Equal(t, cdx.ComponentTypeMachineLearningModel, mlm.Type)
	assert.Equal(t, "dd44", propertyValue(mlm, "Trained Model Hash"))
	assert.Equal(t, "0.95", propertyValue(mlm, "Metric: accuracy"))
	assert.Equal(t, "50", propertyValue(mlm, "Fit Param: epochs"))
	assert.Equal(t, "iris-classifier", propertyValue(mlm, "Optional Param: model_name"))
	assert.Contains(t, propertyValue(mlm, "Architecture Summary"), "Dense")

	require.NotNil(t, doc.ExternalReferences)
	require.Len(t, *doc.ExternalReferences, 1)
	assert.Equal(t, cdx.ERTypeAttestation, (*doc.ExternalReferences)[0].Type)

	require.NotNil(t, doc.Dependencies)
	require.Len(t, *doc.Dependencies, 1)
	assert.Equal(t, refModel, (*doc.Dependencies)[0].Ref)
	assert.ElementsMatch(t, []string{refDataset, refEnvironment}, *(*doc.Dependencies)[0].Dependencies)
}

func TestAssembleWithoutDatasetMaterials(t *testing.T) {
	assembler := &Assembler{Introspector: fakeIntrospector{}}
	doc, err := assembler.Assemble(Data{Environment: &environment.Details{}})
	require.NoError(t, err)

	require.NotNil(t, doc.Components)
	assert.Len(t, *doc.Components, 2)
	assert.Nil(t, doc.Dependencies)
}

func TestAssembleUncapturedFactsRenderUnknown(t *testing.T) {
	assembler := &Assembler{Introspector: fakeIntrospector{}}
	doc, err := assembler.Assemble(Data{Environment: &environment.Details{
		Os:   "Linux 6.1",
		Gpus: []environment.GpuInfo{{}},
	}})
	require.NoError(t, err)

	env := findComponent(t, doc, "Training Environment")
	assert.Equal(t, "Unknown", propertyValue(env, "CPU Count"))
	assert.Equal(t, "Unknown", propertyValue(env, "Memory Total (MB)"))
	assert.Equal(t, "Unknown", propertyValue(env, "Disk Usage (MB)"))
	assert.Equal(t, "Unknown", propertyValue(env, "Training Time (seconds)"))
	assert.Equal(t, "Unknown", propertyValue(env, "GPU Memory Total (MB)"))
	assert.Equal(t, "Linux 6.1", propertyValue(env, "OS"))
}

func TestValidateAssembledDocument(t *testing.T) {
	assembler := &Assembler{Introspector: fakeIntrospector{}}
	doc, err := assembler.Assemble(sampleData(t))
	require.NoError(t, err)

	raw, err := Encode(doc)
	require.NoError(t, err)
	assert.NoError(t, ValidateJson(raw))
}

func TestValidateRejectsWrongFormat(t *testing.T) {
	err := ValidateJson([]byte(`{"bomFormat": "SPDX", "specVersion": "1.6", "version": 1, "components": [{"type": "data", "name": "x"}]}`))
	require.Error(t, err)
	assert.Equal(t, commonerrors.BomInvalid, commonerrors.ReasonForError(err))

	err = ValidateJson([]byte("not json"))
	require.Error(t, err)
	assert.Equal(t, commonerrors.BomInvalid, commonerrors.ReasonForError(err))
}

func TestSignAndVerify(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := &commoncrypto.Signer{PrivateKey: privateKey, PublicKey: publicKey, KeyId: "test"}

	assembler := &Assembler{Introspector: fakeIntrospector{}}
	doc, err := assembler.Assemble(sampleData(t))
	require.NoError(t, err)
	doc.Metadata.Timestamp = "2026-08-26T12:00:00Z"

	require.NoError(t, Sign(doc, signer))
	assert.NotEmpty(t, embeddedSignature(doc))
	assert.NoError(t, VerifySignature(doc, publicKey))

	// the signature survives a serialization round trip
	raw, err := Encode(doc)
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.NoError(t, VerifySignature(decoded, publicKey))

	// changing the timestamp alone does not break the signature
	decoded.Metadata.Timestamp = "2026-08-27T00:00:00Z"
	assert.NoError(t, VerifySignature(decoded, publicKey))

	// tampering with content does
	(*decoded.Components)[0].Name = "tampered"
	err = VerifySignature(decoded, publicKey)
	require.Error(t, err)
	assert.Equal(t, commonerrors.SignatureInvalid, commonerrors.ReasonForError(err))
}

func TestSignAndVerifyWithoutMetadata(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := &commoncrypto.Signer{PrivateKey: privateKey, PublicKey: publicKey, KeyId: "test"}

	// a minimal document with no metadata section gains one to host the
	// signature; verification must strip it back out of the canonical form
	doc := cdx.NewBOM()
	require.NoError(t, Sign(doc, signer))
	assert.NoError(t, VerifySignature(doc, publicKey))

	raw, err := Encode(doc)
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.NoError(t, VerifySignature(decoded, publicKey))
}

func TestVerifyWithoutSignature(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	assembler := &Assembler{Introspector: fakeIntrospector{}}
	doc, err := assembler.Assemble(sampleData(t))
	require.NoError(t, err)

	err = VerifySignature(doc, publicKey)
	require.Error(t, err)
	assert.Equal(t, commonerrors.SignatureInvalid, commonerrors.ReasonForError(err))
}
