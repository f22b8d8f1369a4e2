/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package handlers assembles the HTTP surface of the API server.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/apiutils"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/config"
	dbclient "github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/client"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/authority"
	developer_handlers "github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/developer-handlers"
	task_handlers "github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/task-handlers"
	verifier_handlers "github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers/verifier-handlers"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/storage"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/verifier"
)

// InitHttpHandlers initializes the HTTP handlers for the API server.
// It creates a new Gin engine, sets up logging and recovery middleware,
// and wires the developer, verifier and task routes.
// Returns the configured Gin engine or an error if initialization fails.
func InitHttpHandlers(ctx context.Context, store storage.Interface, registry *dbclient.Client,
	publisher *broker.Publisher, results *broker.ResultBackend) (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(apiutils.Logger(), gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		apiutils.AbortWithApiError(c, commonerrors.NewNotFoundWithMessage(c.Request.RequestURI+" not found"))
	})

	auth, err := authority.NewAuthenticator(ctx)
	if err != nil {
		return nil, err
	}

	developerHandler := developer_handlers.NewHandler(developer_handlers.Config{
		TrainingBucket:      config.GetTrainingBucket(),
		PresignExpireSecond: config.GetPresignExpireSecond(),
		SupportedFrameworks: config.GetSupportedFrameworks(),
	}, store, registry, publisher, results)
	developer_handlers.InitDeveloperRouters(engine, developerHandler, auth, config.GetRateLimitPerMinute())

	verifierService, err := verifier.NewService(store, config.GetTrainingBucket(),
		config.GetSignedLayoutPath(), config.GetWorkerPublicKeyPath())
	if err != nil {
		return nil, err
	}
	verifier_handlers.InitVerifierRouters(engine, verifier_handlers.NewHandler(verifierService))

	task_handlers.InitTaskRouters(engine, task_handlers.NewHandler(registry, results), auth)

	return engine, nil
}
