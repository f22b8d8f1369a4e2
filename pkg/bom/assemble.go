/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package bom assembles, signs and validates the CycloneDX AIBOM that a
// worker produces for every completed training job.
package bom

import (
	"fmt"
	"os"
	"sort"
	"strings"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/dataset"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/environment"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/model"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/training"
)

const (
	platformName    = "AIBoMGen"
	platformVersion = "0.1.0"
	supplierName    = "IDLab from Imec, Ghent University"
	supplierUrl     = "https://www.idlab.ugent.be"
	contactName     = "Wiebe Vandendriessche"
	contactEmail    = "wiebe.vandendriessche@ugent.be"
	contactPhone    = "+32 9 264 92 00"

	refEnvironment = "training-environment"
	refDataset     = "training-dataset"
	refModel       = "trained-model"
)

// Artifact is one material or product entry: its object-store path, its
// digest, and where the file sits locally so optional facts can be read
// out of it.
type Artifact struct {
	StorePath string
	Sha256    string
	LocalPath string
}

// AttestationRef points at the published link file for the job.
type AttestationRef struct {
	StorePath   string
	Description string
}

// Data is everything the assembler folds into the AIBOM.
type Data struct {
	Environment    *environment.Details
	Materials      []Artifact
	Products       []Artifact
	FitParams      map[string]string
	OptionalParams map[string]string
	Attestation    *AttestationRef
}

// Assembler builds the AIBOM document. The introspector is used to
// recover the architecture summary from the submitted model material.
type Assembler struct {
	Introspector model.Introspector
}

func NewAssembler() *Assembler {
	return &Assembler{Introspector: model.KerasIntrospector{}}
}

// Assemble builds the CycloneDX document for one job. Facts that cannot
// be read from the staged files degrade to "Unknown" rather than failing
// the job.
func (a *Assembler) Assemble(data Data) (*cdx.BOM, error) {
	doc := cdx.NewBOM()
	doc.SerialNumber = "urn:uuid:" + uuid.NewString()
	doc.Version = 1
	doc.SpecVersion = cdx.SpecVersion1_6
	doc.Metadata = a.metadata()

	envComponent := environmentComponent(data.Environment)
	dataComponent := datasetComponent(data.Materials)
	modelComponent := a.modelComponent(data)

	components := []cdx.Component{envComponent}
	if dataComponent != nil {
		components = append(components, *dataComponent)
	}
	components = append(components, modelComponent)
	doc.Components = &components

	if data.Attestation != nil {
		comment := data.Attestation.Description
		if comment == "" {
			comment = "Attestation file for artifact integrity verification"
		}
		doc.ExternalReferences = &[]cdx.ExternalReference{{
			Type:    cdx.ERTypeAttestation,
			URL:     data.Attestation.StorePath,
			Comment: comment,
		}}
	}

	if dataComponent != nil {
		deps := []string{refDataset, refEnvironment}
		doc.Dependencies = &[]cdx.Dependency{{Ref: refModel, Dependencies: &deps}}
	}
	return doc, nil
}

func (a *Assembler) metadata() *cdx.Metadata {
	platform := cdx.Component{
		Type:        cdx.ComponentTypePlatform,
		Name:        platformName,
		Version:     platformVersion,
		Description: "A platform for AI training and generating trusted AIBOMs",
		Group:       "IDLab from Imec and Ghent University",
		Supplier: &cdx.OrganizationalEntity{
			Name: supplierName,
			URL:  &[]string{supplierUrl},
			Contact: &[]cdx.OrganizationalContact{{
				Name:  contactName,
				Email: contactEmail,
				Phone: contactPhone,
			}},
		},
		Licenses: &cdx.Licenses{{License: &cdx.License{ID: "MIT"}}},
	}
	return &cdx.Metadata{
		Tools: &cdx.ToolsChoice{Components: &[]cdx.Component{platform}},
		Authors: &[]cdx.OrganizationalContact{{
			Name:  "AIBoMGen by " + contactName,
			Email: contactEmail,
		}},
		Supplier: &cdx.OrganizationalEntity{
			Name: supplierName,
			URL:  &[]string{supplierUrl},
		},
		Manufacturer: &cdx.OrganizationalEntity{
			Name: supplierName,
			URL:  &[]string{supplierUrl},
		},
	}
}

// environmentComponent flattens the captured environment facts into
// properties on a container component.
func environmentComponent(env *environment.Details) cdx.Component {
	if env == nil {
		env = &environment.Details{}
	}
	props := []cdx.Property{
		{Name: "OS", Value: orUnknown(env.Os)},
		{Name: "Runtime Version", Value: orUnknown(env.RuntimeVersion)},
		{Name: "Framework Version", Value: orUnknown(env.FrameworkVersion)},
		{Name: "CPU Count", Value: countOrUnknown(uint64(env.CpuCount))},
		{Name: "Memory Total (MB)", Value: countOrUnknown(env.MemoryTotalMb)},
		{Name: "Disk Usage (MB)", Value: countOrUnknown(env.DiskTotalMb)},
		{Name: "Request Time", Value: orUnknown(env.RequestTime)},
		{Name: "Start Training Time", Value: orUnknown(env.StartTrainingTime)},
		{Name: "Start AIBoM Time", Value: orUnknown(env.StartBomTime)},
		{Name: "Training Time (seconds)", Value: secondsOrUnknown(env.TrainingSeconds)},
		{Name: "Job ID", Value: orUnknown(env.JobId)},
		{Name: "Unique Directory", Value: orUnknown(env.StagingDir)},
	}
	for _, gpu := range env.Gpus {
		props = append(props,
			cdx.Property{Name: "GPU Name", Value: orUnknown(gpu.Name)},
			cdx.Property{Name: "GPU Memory Total (MB)", Value: countOrUnknown(gpu.MemoryTotalMb)},
			cdx.Property{Name: "GPU Memory Used (MB)", Value: countOrUnknown(gpu.MemoryUsedMb)},
		)
	}
	task := env.Task
	if task == nil {
		task = &environment.TaskInfo{}
	}
	props = append(props,
		cdx.Property{Name: "Task ID", Value: orUnknown(task.TaskId)},
		cdx.Property{Name: "Task Name", Value: orUnknown(task.TaskName)},
		cdx.Property{Name: "Queue", Value: orUnknown(task.Queue)},
	)
	container := env.Container
	if container == nil {
		container = &environment.ContainerInfo{}
	}
	props = append(props,
		cdx.Property{Name: "Container ID", Value: orUnknown(container.ContainerId)},
		cdx.Property{Name: "Image Name", Value: orUnknown(container.ImageName)},
		cdx.Property{Name: "Image ID", Value: orUnknown(container.ImageId)},
	)
	if env.VulnerabilityNote != "" {
		props = append(props, cdx.Property{Name: "Vulnerability Scan Note", Value: env.VulnerabilityNote})
	} else {
		severities := make([]string, 0, len(env.VulnerabilityScan))
		for severity := range env.VulnerabilityScan {
			severities = append(severities, severity)
		}
		sort.Strings(severities)
		for _, severity := range severities {
			props = append(props, cdx.Property{
				Name:  "Vulnerability Scan " + severity,
				Value: fmt.Sprintf("%d", env.VulnerabilityScan[severity]),
			})
		}
	}
	return cdx.Component{
		BOMRef:      refEnvironment,
		Type:        cdx.ComponentTypeContainer,
		Name:        "Training Environment",
		Description: "Details of the environment used for training",
		Properties:  &props,
	}
}

// datasetComponent folds the dataset and its definition into one DATA
// component. Returns nil when either material is absent.
func datasetComponent(materials []Artifact) *cdx.Component {
	var datasetHash, definitionHash string
	props := []cdx.Property{}

	for _, m := range materials {
		switch {
		case strings.HasSuffix(m.StorePath, ".zip") || strings.HasSuffix(m.StorePath, ".csv") ||
			strings.HasSuffix(m.StorePath, ".tfrecord"):
			datasetHash = m.Sha256
			props = append(props, cdx.Property{Name: "Dataset Path", Value: m.StorePath})
		case strings.HasSuffix(m.StorePath, ".yaml") || strings.HasSuffix(m.StorePath, ".yml"):
			definitionHash = m.Sha256
			props = append(props, definitionProperties(m.LocalPath)...)
		}
	}
	if datasetHash == "" || definitionHash == "" {
		return nil
	}
	props = append(props,
		cdx.Property{Name: "Dataset Hash", Value: datasetHash},
		cdx.Property{Name: "Dataset Definition Hash", Value: definitionHash},
	)
	return &cdx.Component{
		BOMRef:      refDataset,
		Type:        cdx.ComponentTypeData,
		Name:        "Training Dataset",
		Description: "Dataset and dataset definition used for training",
		Hashes: &[]cdx.Hash{
			{Algorithm: cdx.HashAlgoSHA256, Value: datasetHash},
			{Algorithm: cdx.HashAlgoSHA256, Value: definitionHash},
		},
		Properties: &props,
	}
}

func definitionProperties(localPath string) []cdx.Property {
	if localPath == "" {
		return nil
	}
	def, err := dataset.LoadDefinition(localPath)
	if err != nil {
		klog.Warningf("failed to read dataset definition from %s: %v", localPath, err)
		return nil
	}
	return []cdx.Property{
		{Name: "Input Shape", Value: fmt.Sprintf("%v", def.InputShape)},
		{Name: "Output Shape", Value: fmt.Sprintf("%v", def.OutputShape)},
		{Name: "Preprocessing", Value: def.Preprocessing.Describe()},
	}
}

func (a *Assembler) modelComponent(data Data) cdx.Component {
	var trainedModelHash, metricsHash string
	var metricsProps []cdx.Property
	architecture := environment.Unknown

	for _, m := range data.Materials {
		if strings.HasSuffix(m.StorePath, "model.keras") && m.LocalPath != "" {
			info, err := a.Introspector.Inspect(m.LocalPath)
			if err != nil {
				klog.Warningf("failed to extract architecture summary from %s: %v", m.LocalPath, err)
				continue
			}
			architecture = info.Summary()
		}
	}
	for _, p := range data.Products {
		switch {
		case strings.HasSuffix(p.StorePath, training.ModelOutputName):
			trainedModelHash = p.Sha256
		case strings.HasSuffix(p.StorePath, training.MetricsOutputName):
			metricsHash = p.Sha256
			metricsProps = metricProperties(p.LocalPath)
		}
	}

	props := []cdx.Property{
		{Name: "Framework", Value: orUnknown(data.OptionalParams["framework"])},
		{Name: "License", Value: orUnknown(data.OptionalParams["license_name"])},
		{Name: "Architecture Summary", Value: architecture},
		{Name: "Trained Model Hash", Value: trainedModelHash},
		{Name: "Metrics Hash", Value: metricsHash},
	}
	props = append(props, metricsProps...)
	props = append(props, paramProperties("Fit Param: ", data.FitParams)...)
	props = append(props, paramProperties("Optional Param: ", data.OptionalParams)...)

	name := data.OptionalParams["model_name"]
	if name == "" {
		name = "Trained Model"
	}
	version := data.OptionalParams["model_version"]
	if version == "" {
		version = "1.0"
	}
	description := data.OptionalParams["model_description"]
	if description == "" {
		description = "A trained machine learning model"
	}
	return cdx.Component{
		BOMRef:      refModel,
		Type:        cdx.ComponentTypeMachineLearningModel,
		Name:        name,
		Version:     version,
		Description: description,
		Hashes: &[]cdx.Hash{
			{Algorithm: cdx.HashAlgoSHA256, Value: trainedModelHash},
			{Algorithm: cdx.HashAlgoSHA256, Value: metricsHash},
		},
		Properties: &props,
	}
}

func metricProperties(localPath string) []cdx.Property {
	if localPath == "" {
		return nil
	}
	if _, err := os.Stat(localPath); err != nil {
		return nil
	}
	metrics, _, err := training.LoadMetrics(localPath)
	if err != nil {
		klog.Warningf("failed to read metrics from %s: %v", localPath, err)
		return nil
	}
	keys := make([]string, 0, len(metrics))
	for key := range metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	props := make([]cdx.Property, 0, len(keys))
	for _, key := range keys {
		props = append(props, cdx.Property{
			Name:  "Metric: " + key,
			Value: fmt.Sprintf("%g", metrics[key]),
		})
	}
	return props
}

func paramProperties(prefix string, params map[string]string) []cdx.Property {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	props := make([]cdx.Property, 0, len(keys))
	for _, key := range keys {
		props = append(props, cdx.Property{Name: prefix + key, Value: params[key]})
	}
	return props
}

func orUnknown(value string) string {
	if value == "" {
		return environment.Unknown
	}
	return value
}

// countOrUnknown renders an environment measurement, with zero meaning the
// fact could not be captured.
func countOrUnknown(value uint64) string {
	if value == 0 {
		return environment.Unknown
	}
	return fmt.Sprintf("%d", value)
}

func secondsOrUnknown(value float64) string {
	if value <= 0 {
		return environment.Unknown
	}
	return fmt.Sprintf("%g", value)
}
