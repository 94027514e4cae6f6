// Package middleware holds the fastglue middleware of the admin API.
package middleware

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/database"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/valyala/fasthttp"
	"github.com/zerodha/fastglue"
	"github.com/zerodha/logf"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Context keys
const (
	ContextKeyUserID         = "user_id"
	ContextKeyAPIKeyID       = "api_key_id"
	ContextKeyOrganizationID = "organization_id"
	ContextKeyRole           = "role"
	ContextKeyOrganization   = "organization"

	contextKeyRequestStart = "request_start"
)

// Roles
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// JWTClaims are the claims of dashboard-issued tokens
type JWTClaims struct {
	UserID         uuid.UUID `json:"user_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Role           string    `json:"role"`
	jwt.RegisteredClaims
}

// RequestLogger records when a request started. AccessLog reads it back.
func RequestLogger() fastglue.FastMiddleware {
	return func(r *fastglue.Request) *fastglue.Request {
		r.RequestCtx.SetUserValue(contextKeyRequestStart, time.Now())
		return r
	}
}

// AccessLog logs a finished request. Register it with fastglue's After.
func AccessLog(log logf.Logger) fastglue.FastMiddleware {
	return func(r *fastglue.Request) *fastglue.Request {
		var took time.Duration
		if start, ok := r.RequestCtx.UserValue(contextKeyRequestStart).(time.Time); ok {
			took = time.Since(start)
		}
		log.Info("Request",
			"method", string(r.RequestCtx.Method()),
			"path", string(r.RequestCtx.Path()),
			"status", r.RequestCtx.Response.StatusCode(),
			"took", took.String(),
		)
		return r
	}
}

// Recover wraps a handler and turns a panic into a 500 envelope.
func Recover(log logf.Logger, h fastglue.FastRequestHandler) fastglue.FastRequestHandler {
	return func(r *fastglue.Request) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("Panic recovered", "error", rec, "path", string(r.RequestCtx.Path()))
				err = r.SendErrorEnvelope(fasthttp.StatusInternalServerError, "Internal server error", nil, "")
			}
		}()
		return h(r)
	}
}

// Auth accepts either an organization API key (X-API-Key) or a dashboard
// bearer token. db may be nil to accept tokens only.
func Auth(secret string, db *gorm.DB) fastglue.FastMiddleware {
	return func(r *fastglue.Request) *fastglue.Request {
		if apiKey := string(r.RequestCtx.Request.Header.Peek("X-API-Key")); apiKey != "" && db != nil {
			if validateAPIKey(r, apiKey, db) {
				return r
			}
			_ = r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Invalid API key", nil, "")
			return nil
		}

		authHeader := string(r.RequestCtx.Request.Header.Peek("Authorization"))
		if authHeader == "" {
			_ = r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Missing authorization header", nil, "")
			return nil
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			_ = r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Invalid authorization header format", nil, "")
			return nil
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			_ = r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Invalid or expired token", nil, "")
			return nil
		}
		if claims.OrganizationID == uuid.Nil {
			_ = r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Invalid token claims", nil, "")
			return nil
		}

		r.RequestCtx.SetUserValue(ContextKeyUserID, claims.UserID)
		r.RequestCtx.SetUserValue(ContextKeyOrganizationID, claims.OrganizationID)
		r.RequestCtx.SetUserValue(ContextKeyRole, claims.Role)
		return r
	}
}

// validateAPIKey checks key against the active keys sharing its prefix.
func validateAPIKey(r *fastglue.Request, key string, db *gorm.DB) bool {
	if len(key) != 36 || !strings.HasPrefix(key, database.APIKeyPrefix) {
		return false
	}
	keyPrefix := key[4:12]

	var apiKeys []models.APIKey
	if err := db.WithContext(r.RequestCtx).
		Where("key_prefix = ? AND is_active = ?", keyPrefix, true).
		Find(&apiKeys).Error; err != nil {
		return false
	}

	for _, apiKey := range apiKeys {
		if bcrypt.CompareHashAndPassword([]byte(apiKey.KeyHash), []byte(key)) != nil {
			continue
		}
		if apiKey.ExpiresAt != nil && time.Now().After(*apiKey.ExpiresAt) {
			return false
		}

		go func(id uuid.UUID) {
			db.Model(&models.APIKey{}).Where("id = ?", id).Update("last_used_at", time.Now())
		}(apiKey.ID)

		r.RequestCtx.SetUserValue(ContextKeyAPIKeyID, apiKey.ID)
		r.RequestCtx.SetUserValue(ContextKeyOrganizationID, apiKey.OrganizationID)
		r.RequestCtx.SetUserValue(ContextKeyRole, apiKey.Role)
		return true
	}
	return false
}

// OrganizationContext loads the authenticated organization.
func OrganizationContext(db *gorm.DB) fastglue.FastMiddleware {
	return func(r *fastglue.Request) *fastglue.Request {
		orgID, ok := GetOrganizationID(r)
		if !ok {
			_ = r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Organization ID not found in context", nil, "")
			return nil
		}

		var org models.Organization
		if err := db.WithContext(r.RequestCtx).Where("id = ?", orgID).First(&org).Error; err != nil {
			_ = r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Organization not found", nil, "")
			return nil
		}

		r.RequestCtx.SetUserValue(ContextKeyOrganization, &org)
		return r
	}
}

// RequireRole checks if the caller has one of roles
func RequireRole(roles ...string) fastglue.FastMiddleware {
	return func(r *fastglue.Request) *fastglue.Request {
		role, ok := r.RequestCtx.UserValue(ContextKeyRole).(string)
		if !ok {
			_ = r.SendErrorEnvelope(fasthttp.StatusForbidden, "Role not found", nil, "")
			return nil
		}

		for _, allowedRole := range roles {
			if role == allowedRole {
				return r
			}
		}

		_ = r.SendErrorEnvelope(fasthttp.StatusForbidden, "Insufficient permissions", nil, "")
		return nil
	}
}

// GetOrganizationID extracts organization ID from request context
func GetOrganizationID(r *fastglue.Request) (uuid.UUID, bool) {
	orgID, ok := r.RequestCtx.UserValue(ContextKeyOrganizationID).(uuid.UUID)
	return orgID, ok
}

// GetPrincipalID returns the user or API key behind the request.
func GetPrincipalID(r *fastglue.Request) (uuid.UUID, bool) {
	if id, ok := r.RequestCtx.UserValue(ContextKeyUserID).(uuid.UUID); ok {
		return id, true
	}
	id, ok := r.RequestCtx.UserValue(ContextKeyAPIKeyID).(uuid.UUID)
	return id, ok
}

// GetOrganization extracts organization from request context
func GetOrganization(r *fastglue.Request) (*models.Organization, bool) {
	org, ok := r.RequestCtx.UserValue(ContextKeyOrganization).(*models.Organization)
	return org, ok
}
