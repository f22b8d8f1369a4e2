/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package verifier_handlers

import (
	"github.com/gin-gonic/gin"
)

// InitVerifierRouters registers the verification routes. The routes are
// public so any party holding an attestation can check it.
func InitVerifierRouters(e *gin.Engine, h *Handler) {
	group := e.Group("/verifier")
	{
		group.POST("verify_in-toto_link", h.VerifyLink)
		group.POST("verify_file_hash", h.VerifyFileHash)
		group.POST("verify_minio_artifacts", h.VerifyStagedArtifacts)
		group.POST("verify_bom_and_link", h.VerifyBomAndLink)
	}
}
