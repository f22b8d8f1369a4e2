/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package authority validates bearer tokens on the API surface. With auth
// disabled every request runs as the anonymous subject.
package authority

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/apiutils"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/config"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// AnonymousSubject is the owner id used when authentication is disabled.
const AnonymousSubject = "anonymous"

const subjectKey = "aibomgen/subject"

// Authenticator resolves the requesting subject from a bearer token.
type Authenticator struct {
	// verify returns the stable subject id for a raw token. Nil means
	// authentication is disabled.
	verify func(ctx context.Context, rawToken string) (string, error)
}

// NewAuthenticator builds the authenticator from configuration. With auth
// enabled it discovers the OpenID provider and pins the audience to the
// configured client id.
func NewAuthenticator(ctx context.Context) (*Authenticator, error) {
	if !config.IsAuthEnable() {
		klog.Warning("authentication is disabled, requests run as anonymous")
		return &Authenticator{}, nil
	}
	provider, err := oidc.NewProvider(ctx, config.GetAuthIssuer())
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to discover the OpenID provider").WithError(err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: config.GetAuthClientId()})
	return &Authenticator{verify: oidcSubject(verifier)}, nil
}

// oidcSubject extracts the subject from a verified token, preferring the
// oid claim over sub.
func oidcSubject(verifier *oidc.IDTokenVerifier) func(ctx context.Context, rawToken string) (string, error) {
	return func(ctx context.Context, rawToken string) (string, error) {
		token, err := verifier.Verify(ctx, rawToken)
		if err != nil {
			return "", commonerrors.NewUnauthorized("invalid bearer token").WithError(err)
		}
		var claims struct {
			Oid string `json:"oid"`
			Sub string `json:"sub"`
		}
		if err = token.Claims(&claims); err != nil {
			return "", commonerrors.NewUnauthorized("failed to parse token claims").WithError(err)
		}
		if claims.Oid != "" {
			return claims.Oid, nil
		}
		if claims.Sub != "" {
			return claims.Sub, nil
		}
		return "", commonerrors.NewUnauthorized("token carries no subject")
	}
}

// Middleware authenticates the request and stores the subject in the
// context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.verify == nil {
			c.Set(subjectKey, AnonymousSubject)
			c.Next()
			return
		}
		rawToken, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			apiutils.AbortWithApiError(c, commonerrors.NewUnauthorized("missing bearer token"))
			return
		}
		subject, err := a.verify(c.Request.Context(), rawToken)
		if err != nil {
			apiutils.AbortWithApiError(c, err)
			return
		}
		c.Set(subjectKey, subject)
		c.Next()
	}
}

// Subject returns the authenticated subject of the request, empty when the
// middleware did not run.
func Subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}
