package middleware_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/middleware"
	"github.com/shridarpatil/queuebot/internal/models"
	fixtures "github.com/shridarpatil/queuebot/test/fixtures/models"
	"github.com/shridarpatil/queuebot/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/zerodha/fastglue"
)

const testSecret = "test-secret"

func newRequest(headers map[string]string) *fastglue.Request {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/api/conversations/15551234567")
	for k, v := range headers {
		ctx.Request.Header.Set(k, v)
	}
	return &fastglue.Request{RequestCtx: ctx}
}

func signToken(t *testing.T, claims middleware.JWTClaims, method jwt.SigningMethod, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func operatorClaims(orgID uuid.UUID, expires time.Time) middleware.JWTClaims {
	return middleware.JWTClaims{
		UserID:         uuid.New(),
		OrganizationID: orgID,
		Role:           middleware.RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
}

func TestAuth_BearerToken(t *testing.T) {
	t.Parallel()

	orgID := uuid.New()
	claims := operatorClaims(orgID, time.Now().Add(time.Hour))
	req := newRequest(map[string]string{
		"Authorization": "Bearer " + signToken(t, claims, jwt.SigningMethodHS256, testSecret),
	})

	out := middleware.Auth(testSecret, nil)(req)
	require.NotNil(t, out)

	gotOrg, ok := middleware.GetOrganizationID(out)
	require.True(t, ok)
	assert.Equal(t, orgID, gotOrg)

	principal, ok := middleware.GetPrincipalID(out)
	require.True(t, ok)
	assert.Equal(t, claims.UserID, principal)
	assert.Equal(t, middleware.RoleOperator, out.RequestCtx.UserValue(middleware.ContextKeyRole))
}

func TestAuth_Rejects(t *testing.T) {
	t.Parallel()

	orgID := uuid.New()
	valid := operatorClaims(orgID, time.Now().Add(time.Hour))
	noOrg := operatorClaims(uuid.Nil, time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		headers map[string]string
		message string
	}{
		{
			name:    "missing header",
			headers: nil,
			message: "Missing authorization header",
		},
		{
			name:    "not bearer",
			headers: map[string]string{"Authorization": "Basic abc"},
			message: "Invalid authorization header format",
		},
		{
			name:    "empty bearer",
			headers: map[string]string{"Authorization": "Bearer "},
			message: "Invalid authorization header format",
		},
		{
			name: "expired",
			headers: map[string]string{"Authorization": "Bearer " + signToken(t,
				operatorClaims(orgID, time.Now().Add(-time.Minute)), jwt.SigningMethodHS256, testSecret)},
			message: "Invalid or expired token",
		},
		{
			name: "wrong secret",
			headers: map[string]string{"Authorization": "Bearer " + signToken(t,
				valid, jwt.SigningMethodHS256, "other-secret")},
			message: "Invalid or expired token",
		},
		{
			name: "other hmac algorithm",
			headers: map[string]string{"Authorization": "Bearer " + signToken(t,
				valid, jwt.SigningMethodHS512, testSecret)},
			message: "Invalid or expired token",
		},
		{
			name: "no organization",
			headers: map[string]string{"Authorization": "Bearer " + signToken(t,
				noOrg, jwt.SigningMethodHS256, testSecret)},
			message: "Invalid token claims",
		},
		{
			name:    "malformed api key without db",
			headers: map[string]string{"X-API-Key": "qbk_short"},
			message: "Missing authorization header",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := newRequest(tt.headers)
			assert.Nil(t, middleware.Auth(testSecret, nil)(req))
			assert.Equal(t, fasthttp.StatusUnauthorized, req.RequestCtx.Response.StatusCode())
			assert.Contains(t, string(req.RequestCtx.Response.Body()), tt.message)
		})
	}
}

func TestAuth_APIKey(t *testing.T) {
	db := testutil.SetupTestDB(t)

	org := fixtures.NewOrganization().Build()
	require.NoError(t, db.Create(&org).Error)

	// the prefix is shared test state, keep it unique per run
	plain := "qbk_" + uuid.NewString()[:8] + "89abcdef0123456789abcdef"
	fresh := fixtures.NewAPIKey(org.ID, plain, middleware.RoleAdmin)
	require.NoError(t, db.Create(&fresh).Error)

	t.Run("valid", func(t *testing.T) {
		req := newRequest(map[string]string{"X-API-Key": plain})
		out := middleware.Auth(testSecret, db)(req)
		require.NotNil(t, out)

		gotOrg, ok := middleware.GetOrganizationID(out)
		require.True(t, ok)
		assert.Equal(t, org.ID, gotOrg)

		principal, ok := middleware.GetPrincipalID(out)
		require.True(t, ok)
		assert.Equal(t, fresh.ID, principal)
		assert.Equal(t, middleware.RoleAdmin, out.RequestCtx.UserValue(middleware.ContextKeyRole))

		testutil.AssertEventually(t, func() bool {
			var stored models.APIKey
			return db.Where("id = ?", fresh.ID).First(&stored).Error == nil && stored.LastUsedAt != nil
		}, 2*time.Second, "last_used_at should be recorded")
	})

	t.Run("wrong secret part", func(t *testing.T) {
		req := newRequest(map[string]string{"X-API-Key": "qbk_" + fresh.KeyPrefix + "ffffffffffffffffffffffff"})
		assert.Nil(t, middleware.Auth(testSecret, db)(req))
		assert.Equal(t, fasthttp.StatusUnauthorized, req.RequestCtx.Response.StatusCode())
	})

	t.Run("wrong shape", func(t *testing.T) {
		req := newRequest(map[string]string{"X-API-Key": "sk_" + fresh.KeyPrefix})
		assert.Nil(t, middleware.Auth(testSecret, db)(req))
	})

	t.Run("expired", func(t *testing.T) {
		expiredPlain := "qbk_" + uuid.NewString()[:8] + "0000000000000000aaaaaaaa"
		expired := fixtures.NewAPIKey(org.ID, expiredPlain, middleware.RoleOperator)
		past := time.Now().Add(-time.Hour)
		expired.ExpiresAt = &past
		require.NoError(t, db.Create(&expired).Error)

		req := newRequest(map[string]string{"X-API-Key": expiredPlain})
		assert.Nil(t, middleware.Auth(testSecret, db)(req))
	})
}

func TestOrganizationContext(t *testing.T) {
	db := testutil.SetupTestDB(t)

	org := fixtures.NewOrganization().WithName("Lagos Bank").Build()
	require.NoError(t, db.Create(&org).Error)

	req := newRequest(nil)
	req.RequestCtx.SetUserValue(middleware.ContextKeyOrganizationID, org.ID)
	out := middleware.OrganizationContext(db)(req)
	require.NotNil(t, out)

	got, ok := middleware.GetOrganization(out)
	require.True(t, ok)
	assert.Equal(t, "Lagos Bank", got.Name)

	missing := newRequest(nil)
	missing.RequestCtx.SetUserValue(middleware.ContextKeyOrganizationID, uuid.New())
	assert.Nil(t, middleware.OrganizationContext(db)(missing))
	assert.Equal(t, fasthttp.StatusUnauthorized, missing.RequestCtx.Response.StatusCode())
}

func TestOrganizationContext_NoOrganizationID(t *testing.T) {
	t.Parallel()

	req := newRequest(nil)
	assert.Nil(t, middleware.OrganizationContext(nil)(req))
	assert.Equal(t, fasthttp.StatusUnauthorized, req.RequestCtx.Response.StatusCode())
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		role    any
		allowed []string
		pass    bool
	}{
		{"admin allowed", middleware.RoleAdmin, []string{middleware.RoleAdmin}, true},
		{"operator among several", middleware.RoleOperator, []string{middleware.RoleAdmin, middleware.RoleOperator}, true},
		{"operator denied", middleware.RoleOperator, []string{middleware.RoleAdmin}, false},
		{"no role", nil, []string{middleware.RoleAdmin}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := newRequest(nil)
			if tt.role != nil {
				req.RequestCtx.SetUserValue(middleware.ContextKeyRole, tt.role)
			}
			out := middleware.RequireRole(tt.allowed...)(req)
			if tt.pass {
				assert.NotNil(t, out)
				return
			}
			assert.Nil(t, out)
			assert.Equal(t, fasthttp.StatusForbidden, req.RequestCtx.Response.StatusCode())
		})
	}
}

func TestRecover(t *testing.T) {
	t.Parallel()

	h := middleware.Recover(testutil.NopLogger(), func(r *fastglue.Request) error {
		panic("boom")
	})

	req := newRequest(nil)
	require.NoError(t, h(req))
	assert.Equal(t, fasthttp.StatusInternalServerError, req.RequestCtx.Response.StatusCode())

	ok := middleware.Recover(testutil.NopLogger(), func(r *fastglue.Request) error {
		return r.SendEnvelope("fine")
	})
	req = newRequest(nil)
	require.NoError(t, ok(req))
	assert.Equal(t, fasthttp.StatusOK, req.RequestCtx.Response.StatusCode())
}

func TestRequestLoggerAndAccessLog(t *testing.T) {
	t.Parallel()

	req := newRequest(nil)
	out := middleware.RequestLogger()(req)
	require.NotNil(t, out)
	_, ok := out.RequestCtx.UserValue("request_start").(time.Time)
	assert.True(t, ok)

	assert.NotNil(t, middleware.AccessLog(testutil.NopLogger())(out))
	// a request that skipped RequestLogger still passes through
	assert.NotNil(t, middleware.AccessLog(testutil.NopLogger())(newRequest(nil)))
}

func TestGetPrincipalID_APIKey(t *testing.T) {
	t.Parallel()

	keyID := uuid.New()
	req := newRequest(nil)
	req.RequestCtx.SetUserValue(middleware.ContextKeyAPIKeyID, keyID)

	got, ok := middleware.GetPrincipalID(req)
	require.True(t, ok)
	assert.Equal(t, keyID, got)

	_, ok = middleware.GetPrincipalID(newRequest(nil))
	assert.False(t, ok)
}
