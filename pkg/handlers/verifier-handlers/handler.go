/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package verifier_handlers exposes the public verification API. The
// endpoints accept multipart uploads of link and BOM documents and
// report signature, expiry and artifact integrity verdicts.
package verifier_handlers

import (
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/verifier"
)

// Handler handles HTTP requests for attestation verification.
type Handler struct {
	service *verifier.Service
}

// NewHandler creates a new verifier handler.
func NewHandler(service *verifier.Service) *Handler {
	return &Handler{service: service}
}

// formFileBytes reads an uploaded form file fully into memory.
func formFileBytes(c *gin.Context, field string) ([]byte, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, commonerrors.NewBadRequest("the " + field + " upload is required").WithError(err)
	}
	file, err := header.Open()
	if err != nil {
		return nil, commonerrors.NewBadRequest("failed to open the " + field + " upload").WithError(err)
	}
	defer file.Close()
	payload, err := io.ReadAll(file)
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to read the " + field + " upload").WithError(err)
	}
	return payload, nil
}

// saveFormFile stages an uploaded form file under dir and returns its
// local path together with the client-supplied file name.
func saveFormFile(c *gin.Context, field, dir string) (string, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return "", "", commonerrors.NewBadRequest("the " + field + " upload is required").WithError(err)
	}
	name := filepath.Base(header.Filename)
	path := filepath.Join(dir, name)
	if err = saveUpload(header, path); err != nil {
		return "", "", err
	}
	return path, name, nil
}

func saveUpload(header *multipart.FileHeader, path string) error {
	src, err := header.Open()
	if err != nil {
		return commonerrors.NewBadRequest("failed to open the uploaded file").WithError(err)
	}
	defer src.Close()
	dst, err := os.Create(path)
	if err != nil {
		return commonerrors.NewInternalError("failed to stage the uploaded file").WithError(err)
	}
	defer dst.Close()
	if _, err = io.Copy(dst, src); err != nil {
		return commonerrors.NewInternalError("failed to stage the uploaded file").WithError(err)
	}
	return nil
}
