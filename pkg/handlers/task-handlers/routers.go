/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package task_handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/authority"
)

// InitTaskRouters registers the task introspection routes. The global
// listings and worker stats are public; the my-scoped routes require
// authentication.
func InitTaskRouters(e *gin.Engine, h *Handler, auth *authority.Authenticator) {
	group := e.Group("/celery_utils")
	{
		group.GET("tasks", h.AllTasks)
		group.GET("tasks/running", h.RunningTasks)
		group.GET("workers/stats", h.WorkerStats)

		my := group.Group("", auth.Middleware())
		{
			my.GET("tasks/my", h.MyTasks)
			my.GET("tasks/running/my", h.MyRunningTasks)
			my.GET("tasks/my/:job_id", h.MyTask)
			my.GET("tasks/running/my/:job_id", h.MyRunningTask)
		}
	}
}
