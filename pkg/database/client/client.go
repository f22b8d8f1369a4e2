/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	commonconfig "github.com/wiebe-vandendriessche/AIBoMGen/pkg/config"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/database/utils"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// Client represents a database client that manages the sqlx connection pool.
// It encapsulates the database configuration and provides methods to interact
// with the job registry.
type Client struct {
	db              *sqlx.DB
	*utils.DBConfig // Embedded database configuration
}

// NewConfig builds the database configuration from system-wide settings.
func NewConfig() *utils.DBConfig {
	return &utils.DBConfig{
		DBName:         commonconfig.GetDBName(),
		Username:       commonconfig.GetDBUser(),
		Password:       commonconfig.GetDBPassword(),
		Host:           commonconfig.GetDBHost(),
		Port:           commonconfig.GetDBPort(),
		SSLMode:        commonconfig.GetDBSslMode(),
		MaxOpenConns:   commonconfig.GetDBMaxOpenConns(),
		MaxIdleConns:   commonconfig.GetDBMaxIdleConns(),
		MaxLifetime:    time.Duration(commonconfig.GetDBMaxLifetimeSecond()) * time.Second,
		MaxIdleTime:    time.Duration(commonconfig.GetDBMaxIdleTimeSecond()) * time.Second,
		ConnectTimeout: commonconfig.GetDBConnectTimeoutSecond(),
		RequestTimeout: time.Duration(commonconfig.GetDBRequestTimeoutSecond()) * time.Second,
	}
}

// NewClient creates a database client from the given configuration.
// It validates the parameters and establishes the sqlx connection pool.
func NewClient(cfg *utils.DBConfig) (*Client, error) {
	if err := checkParams(cfg); err != nil {
		return nil, commonerrors.NewInternalError("invalid db params").WithError(err)
	}
	db, err := utils.Connect(cfg, utils.PgDriver)
	if err != nil {
		return nil, commonerrors.NewStoreUnavailable("failed to connect db").WithError(err)
	}
	if err = db.Ping(); err != nil {
		return nil, commonerrors.NewStoreUnavailable("failed to ping db").WithError(err)
	}
	klog.Infof("init db-client successfully! conn-timeout: %d(s), request-timeout: %v",
		cfg.ConnectTimeout, cfg.RequestTimeout)
	return &Client{db: db, DBConfig: cfg}, nil
}

// NewClientWithRetry creates a database client, retrying connection with
// linear backoff until the attempt budget is exhausted. The database may come
// up after the service in a compose deployment.
func NewClientWithRetry(ctx context.Context, cfg *utils.DBConfig, attempts int, delay time.Duration) (*Client, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		client, err := NewClient(cfg)
		if err == nil {
			return client, nil
		}
		lastErr = err
		klog.Warningf("db connection attempt %d/%d failed: %v", i+1, attempts, err)
		select {
		case <-ctx.Done():
			return nil, commonerrors.NewStoreUnavailable("db connection cancelled").WithError(ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, commonerrors.NewStoreUnavailable(
		fmt.Sprintf("db unreachable after %d attempts", attempts)).WithError(lastErr)
}

// Close performs the Close operation.
func (c *Client) Close() {
	err := c.db.Close()
	if err != nil {
		klog.ErrorS(err, "failed to close db connection")
	}
}

// getDB retrieves DB for internal use.
func (c *Client) getDB() (*sqlx.DB, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	return c.db.Unsafe(), nil
}

// checkParams checks Params and returns the result.
func checkParams(cfg *utils.DBConfig) error {
	var errs []error
	if cfg.DBName == "" {
		errs = append(errs, fmt.Errorf("dbname not found"))
	}
	if cfg.Username == "" {
		errs = append(errs, fmt.Errorf("username not found"))
	}
	if cfg.Password == "" {
		errs = append(errs, fmt.Errorf("password not found"))
	}
	if cfg.Host == "" {
		errs = append(errs, fmt.Errorf("host not found"))
	}
	if cfg.SSLMode == "" {
		errs = append(errs, fmt.Errorf("ssl_mode not found"))
	}
	if cfg.Port == 0 {
		errs = append(errs, fmt.Errorf("port not found"))
	}
	return errors.Join(errs...)
}
