/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package apiutils carries the shared gin plumbing of the API server: the
// unified error response, the handler wrapper and the request logger.
package apiutils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// ApiError is the unified error response body, including HTTP code, error
// code, and error message.
type ApiError struct {
	HttpCode     int    `json:"-"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Error returns the error message string.
func (err *ApiError) Error() string {
	return err.ErrorMessage
}

// AbortWithApiError converts the error into the unified format and aborts
// the request with a JSON error response.
func AbortWithApiError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	rsp := convertToErrResponse(err)
	c.AbortWithStatusJSON(rsp.HttpCode, rsp)
}

// convertToErrResponse folds any error into an ApiError. StatusErrors keep
// their code and reason; everything else becomes an internal error.
func convertToErrResponse(err error) ApiError {
	var result *ApiError
	if errors.As(err, &result) {
		return *result
	}
	var statusErr *commonerrors.StatusError
	if !errors.As(err, &statusErr) {
		statusErr = commonerrors.NewInternalError(err.Error())
	}
	return ApiError{
		HttpCode:     statusErr.Code,
		ErrorCode:    statusErr.Reason,
		ErrorMessage: statusErr.Error(),
	}
}

// Handle is the common wrapper for HTTP handlers returning (result, error).
func Handle(c *gin.Context, fn func(c *gin.Context) (interface{}, error)) {
	result, err := fn(c)
	if err != nil {
		AbortWithApiError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
