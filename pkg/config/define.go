/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package config

const (
	// server
	serverPrefix        = "server."
	serverPort          = serverPrefix + "port"
	serverRateLimit     = serverPrefix + "rate_limit_per_minute"
	serverPresignExpire = serverPrefix + "presign_expire_second"

	// auth
	authPrefix   = "auth."
	authEnable   = authPrefix + "enable"
	authIssuer   = authPrefix + "issuer"
	authClientId = authPrefix + "client_id"

	// db
	dbPrefix               = "db."
	dbHost                 = dbPrefix + "host"
	dbPort                 = dbPrefix + "port"
	dbName                 = dbPrefix + "name"
	dbUser                 = dbPrefix + "user"
	dbPassword             = dbPrefix + "password"
	dbSslMode              = dbPrefix + "ssl_mode"
	dbMaxOpenConns         = dbPrefix + "max_open_conns"
	dbMaxIdleConns         = dbPrefix + "max_idle_conns"
	dbMaxLifetimeSecond    = dbPrefix + "max_lifetime_second"
	dbMaxIdleTimeSecond    = dbPrefix + "max_idle_time_second"
	dbConnectTimeoutSecond = dbPrefix + "connect_timeout_second"
	dbConnectRetries       = dbPrefix + "connect_retries"
	dbConnectRetryDelay    = dbPrefix + "connect_retry_delay_second"
	dbRequestTimeoutSecond = dbPrefix + "request_timeout_second"

	// s3 (MinIO or any S3-compatible endpoint)
	s3Prefix        = "s3."
	s3Endpoint      = s3Prefix + "endpoint"
	s3AccessKey     = s3Prefix + "access_key"
	s3SecretKey     = s3Prefix + "secret_key"
	s3Region        = s3Prefix + "region"
	trainingBucket  = s3Prefix + "training_bucket"
	workerScansBkt  = s3Prefix + "worker_scans_bucket"
	scannerScansBkt = s3Prefix + "scanner_scans_bucket"

	// broker
	brokerPrefix  = "broker."
	brokerUrl     = brokerPrefix + "url"
	resultBackend = brokerPrefix + "result_backend"

	// worker
	workerPrefix            = "worker."
	workerPrivateKeyPath    = workerPrefix + "private_key_path"
	workerPublicKeyPath     = workerPrefix + "public_key_path"
	workerSignedLayoutPath  = workerPrefix + "signed_layout_path"
	workerTaskTimeLimit     = workerPrefix + "task_time_limit_second"
	workerTaskMaxRetries    = workerPrefix + "task_max_retries"
	workerTaskRetryDelay    = workerPrefix + "task_retry_delay_second"
	workerExecutorCommand   = workerPrefix + "executor_command"
	workerImageName         = workerPrefix + "image_name"
	workerFrameworkLiterals = workerPrefix + "frameworks"

	// scanner
	scannerPrefix    = "scanner."
	scannerSchedule  = scannerPrefix + "schedule"
	scannerCommand   = scannerPrefix + "command"
	scannerImageName = scannerPrefix + "image_name"
)

// Environment variable bindings. The deployment environment overrides config
// file values through these names.
var envBindings = map[string]string{
	brokerUrl:        "CELERY_BROKER_URL",
	resultBackend:    "CELERY_RESULT_BACKEND",
	dbHost:           "DB_HOST",
	dbPort:           "DB_PORT",
	dbName:           "DB_NAME",
	dbUser:           "DB_USER",
	dbPassword:       "DB_PASSWORD",
	s3Endpoint:       "MINIO_ENDPOINT",
	s3AccessKey:      "MINIO_ROOT_USER",
	s3SecretKey:      "MINIO_ROOT_PASSWORD",
	trainingBucket:   "TRAINING_BUCKET",
	workerScansBkt:   "WORKER_SCANS_BUCKET",
	scannerScansBkt:  "SCANNER_SCANS_BUCKET",
	authEnable:       "AUTH_ENABLED",
	authClientId:     "APP_CLIENT_ID",
	authIssuer:       "OPENID_ISSUER",
	workerImageName:  "WORKER_IMAGE_NAME",
	scannerImageName: "SCANNER_IMAGE_NAME",
}
