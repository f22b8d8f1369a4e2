/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package bom

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// The full CycloneDX 1.6 schema pulls in remote SPDX and JSF documents,
// so validation runs against an embedded core schema covering the
// structural requirements every AIBOM must meet.
//
//go:embed schema.json
var coreSchema []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(coreSchema)); err != nil {
		panic(fmt.Sprintf("bom: invalid embedded schema: %v", err))
	}
	return compiler.MustCompile("schema.json")
}

// ValidateJson checks raw against the embedded schema.
func ValidateJson(raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return commonerrors.NewBomInvalid("document is not valid JSON").WithError(err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return commonerrors.NewBomInvalid(fmt.Sprintf("schema validation failed: %v", err))
	}
	return nil
}
