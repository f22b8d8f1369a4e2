/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package middleware carries the cross-cutting gin middleware of the API
// server.
package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/apiutils"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// clientLimiters tracks one token bucket per client address.
type clientLimiters struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	perMinute int
}

func (c *clientLimiters) get(addr string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[addr]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.perMinute)), c.perMinute)
		c.limiters[addr] = limiter
	}
	return limiter
}

// RateLimit limits each client address to perMinute requests per minute on
// the routes it guards.
func RateLimit(perMinute int) gin.HandlerFunc {
	limiters := &clientLimiters{
		limiters:  map[string]*rate.Limiter{},
		perMinute: perMinute,
	}
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			apiutils.AbortWithApiError(c, commonerrors.NewTooManyRequests("rate limit exceeded, try again later"))
			return
		}
		c.Next()
	}
}
