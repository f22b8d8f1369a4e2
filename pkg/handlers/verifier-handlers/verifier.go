/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package verifier_handlers

import (
	"os"

	"github.com/gin-gonic/gin"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/apiutils"
)

// VerifyLink verifies an uploaded link attestation against the supply
// chain layout.
func (h *Handler) VerifyLink(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		payload, err := formFileBytes(c, "link_file")
		if err != nil {
			return nil, err
		}
		return h.service.VerifyLink(payload)
	})
}

// VerifyFileHash checks an uploaded artifact against the hash its link
// attestation recorded for the same file name.
func (h *Handler) VerifyFileHash(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		payload, err := formFileBytes(c, "link_file")
		if err != nil {
			return nil, err
		}
		scratch, err := os.MkdirTemp("", "verify-hash-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(scratch)
		path, name, err := saveFormFile(c, "uploaded_file", scratch)
		if err != nil {
			return nil, err
		}
		return h.service.VerifyFileHash(payload, path, name)
	})
}

// VerifyStagedArtifacts re-downloads every artifact a link attestation
// names from the blob store and compares the hashes.
func (h *Handler) VerifyStagedArtifacts(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		payload, err := formFileBytes(c, "link_file")
		if err != nil {
			return nil, err
		}
		return h.service.VerifyStagedArtifacts(c.Request.Context(), payload)
	})
}

// VerifyBomAndLink validates and verifies an uploaded BOM document, then
// fetches and verifies the link attestation it references.
func (h *Handler) VerifyBomAndLink(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		payload, err := formFileBytes(c, "bom_file")
		if err != nil {
			return nil, err
		}
		return h.service.VerifyBomAndLink(c.Request.Context(), payload)
	})
}
