/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package server bootstraps the API server process.
package server

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/broker"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/config"
	dbclient "github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/client"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/handlers"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/storage"
)

// Server is the API server process: the HTTP surface plus the store,
// registry and broker clients it serves from.
type Server struct {
	configPath string
	httpServer *http.Server
	store      storage.Interface
	registry   *dbclient.Client
	publisher  *broker.Publisher
	results    *broker.ResultBackend
	ctx        context.Context
	cancel     context.CancelFunc
	isInited   bool
}

// NewServer parses flags, loads the configuration and connects the
// backing services.
func NewServer() (*Server, error) {
	s := &Server{}
	s.ctx, s.cancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) init() error {
	gin.SetMode(gin.ReleaseMode)
	klog.InitFlags(nil)
	flag.StringVar(&s.configPath, "config", "", "path to the configuration file")
	flag.Parse()

	if err := s.initConfig(); err != nil {
		klog.ErrorS(err, "failed to init config")
		return err
	}
	if err := s.initClients(); err != nil {
		klog.ErrorS(err, "failed to init backing clients")
		return err
	}
	s.isInited = true
	return nil
}

func (s *Server) initConfig() error {
	if s.configPath == "" {
		return config.LoadConfig("")
	}
	fullPath, err := filepath.Abs(s.configPath)
	if err != nil {
		return err
	}
	if err = config.LoadConfig(fullPath); err != nil {
		return fmt.Errorf("config path: %s, err: %v", fullPath, err)
	}
	return nil
}

func (s *Server) initClients() error {
	var err error
	if s.store, err = storage.NewClient(s.ctx); err != nil {
		return err
	}
	if err = s.store.EnsureBucket(s.ctx, config.GetTrainingBucket()); err != nil {
		return err
	}
	s.registry, err = dbclient.NewClientWithRetry(s.ctx, dbclient.NewConfig(),
		config.GetDBConnectRetries(), time.Duration(config.GetDBConnectRetryDelaySecond())*time.Second)
	if err != nil {
		return err
	}
	if s.publisher, err = broker.NewPublisher(config.GetBrokerUrl()); err != nil {
		return err
	}
	if s.results, err = broker.NewResultBackend(s.ctx, config.GetResultBackendUrl()); err != nil {
		return err
	}
	return nil
}

// Start runs the HTTP server until the process receives a stop signal.
func (s *Server) Start() {
	if !s.isInited {
		klog.Errorf("please init api-server first")
		return
	}
	klog.Infof("starting api-server")
	go func() {
		if err := s.startHttpServer(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "failed to start http-server")
			os.Exit(-1)
		}
	}()

	<-s.ctx.Done()
	s.Stop()
}

// Stop shuts the HTTP server down and releases the broker clients.
func (s *Server) Stop() {
	defer s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "failed to shutdown httpserver")
		}
	}
	s.publisher.Close()
	s.results.Close()
	klog.Info("api-server is stopped")
	klog.Flush()
}

func (s *Server) startHttpServer() error {
	if config.GetServerPort() <= 0 {
		return fmt.Errorf("the apiserver port is not defined")
	}
	handler, err := handlers.InitHttpHandlers(s.ctx, s.store, s.registry, s.publisher, s.results)
	if err != nil {
		return err
	}
	addr := fmt.Sprintf(":%d", config.GetServerPort())
	s.httpServer = &http.Server{Addr: addr, Handler: handler}
	klog.Infof("http-server listen port: %d", config.GetServerPort())
	return s.httpServer.ListenAndServe()
}
