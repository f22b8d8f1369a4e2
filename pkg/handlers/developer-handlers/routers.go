/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package developer_handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/authority"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/middleware"
)

// InitDeveloperRouters registers the developer API routes. Every route is
// authenticated; submission is additionally rate limited per client.
func InitDeveloperRouters(e *gin.Engine, h *Handler, auth *authority.Authenticator, ratePerMinute int) {
	group := e.Group("/developer", auth.Middleware())
	{
		group.POST("submit_job_by_model_and_data", middleware.RateLimit(ratePerMinute), h.SubmitJob)
		group.GET("job_status/:job_id", h.JobStatus)
		group.GET("job_artifacts/:job_id", h.JobArtifacts)
		group.GET("job_artifacts/:job_id/:artifact_name", h.DownloadArtifact)
	}
}
