package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/identity-gateway/app"
	"github.com/upb/identity-gateway/config"
	"github.com/upb/identity-gateway/jwks"
	"github.com/upb/identity-gateway/principal"
	"github.com/upb/identity-gateway/routes"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

const (
	testAudience = "api://identity-gateway"
	testIssuer   = "https://sts.windows.net/test-tenant/"
	testKid      = "test-kid"
)

func TestMain(m *testing.M) {
	// Setup
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("LOG_LEVEL", "error")

	// Run tests
	code := m.Run()

	// Teardown
	os.Exit(code)
}

func TestInitLogger(t *testing.T) {
	withLogging := func(level, format string) *config.Config {
		cfg := testConfig(config.AuthModePrincipal)
		cfg.Observability.LogLevel = level
		cfg.Observability.LogFormat = format
		return cfg
	}

	t.Run("default json logger", func(t *testing.T) {
		logger, err := initLogger(withLogging("info", "json"))
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()

		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("development console logger", func(t *testing.T) {
		logger, err := initLogger(withLogging("debug", "console"))
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()

		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("invalid log level", func(t *testing.T) {
		logger, err := initLogger(withLogging("invalid", "json"))
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("level from .env file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
			[]byte("AUTH_MODE=principal\nLOG_LEVEL=debug\nLOG_FORMAT=console\n"), 0o600))
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		// godotenv never overrides variables that are already set, even to "".
		for _, key := range []string{"AUTH_MODE", "LOG_LEVEL", "LOG_FORMAT"} {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}

		cfg, err := config.New(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Observability.LogLevel)

		logger, err := initLogger(cfg)
		require.NoError(t, err)
		defer logger.Sync()

		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})
}

func TestBearerFlow(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks.JWKS{Keys: []jwks.JWK{jwks.NewRSAJWK(testKid, &key.PublicKey)}})
	}))
	defer keyServer.Close()

	cfg := testConfig(config.AuthModeBearer)
	cfg.Auth.JWKSURL = keyServer.URL

	ctx := context.Background()
	deps, err := app.NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	reader := signToken(t, key, testKid, claimsWithRoles("READ"))
	writer := signToken(t, key, testKid, claimsWithRoles("READ", "WRITE"))
	forged := signToken(t, otherKey, testKid, claimsWithRoles("READ", "WRITE"))
	unknownKid := signToken(t, key, "rotated-kid", claimsWithRoles("READ"))

	expired := claimsWithRoles("READ")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongAudience := claimsWithRoles("READ")
	wrongAudience["aud"] = "api://someone-else"

	testCases := []struct {
		name           string
		method         string
		path           string
		token          string
		expectedStatus int
		expectedMsg    string
	}{
		{"hello is public", http.MethodGet, "/", "", http.StatusOK, "Hello, World!"},
		{"whoami without token", http.MethodGet, "/whoami", "", http.StatusUnauthorized, "Not authenticated"},
		{"whoami with forged signature", http.MethodGet, "/whoami", forged, http.StatusUnauthorized, "Invalid token: signature is invalid"},
		{"whoami with unknown kid", http.MethodGet, "/whoami", unknownKid, http.StatusUnauthorized, "Public key not found."},
		{"whoami with expired token", http.MethodGet, "/whoami", signToken(t, key, testKid, expired), http.StatusUnauthorized, "Invalid token: token has expired"},
		{"whoami with wrong audience", http.MethodGet, "/whoami", signToken(t, key, testKid, wrongAudience), http.StatusUnauthorized, "Invalid token: invalid audience"},
		{"read-data as reader", http.MethodGet, "/read-data", reader, http.StatusOK, "You have READ access."},
		{"write-data as reader", http.MethodPost, "/write-data", reader, http.StatusForbidden, "Missing role: WRITE"},
		{"write-data as writer", http.MethodPost, "/write-data", writer, http.StatusOK, "You have WRITE access."},
		{"not found", http.MethodGet, "/api/v1/nonexistent", "", http.StatusNotFound, "endpoint not found"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, tc.method, ts.URL+tc.path, map[string]string{"Authorization": bearer(tc.token)})
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.expectedMsg, body["message"])
		})
	}

	t.Run("whoami returns the verified identity", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/whoami", map[string]string{"Authorization": bearer(writer)})
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "user-123", body["sub"])
		assert.Equal(t, "Test User", body["name"])
		assert.Equal(t, []interface{}{"READ", "WRITE"}, body["roles"])
	})

	t.Run("signing keys are cached after first use", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/readyz", nil)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		checks := body["checks"].(map[string]interface{})
		assert.Equal(t, "healthy", checks["signing_keys"])
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/metrics", nil)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestBearerFlowKeyFetchFailure(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer keyServer.Close()

	cfg := testConfig(config.AuthModeBearer)
	cfg.Auth.JWKSURL = keyServer.URL

	ctx := context.Background()
	deps, err := app.NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	token := signToken(t, key, testKid, claimsWithRoles("READ"))
	resp := do(t, http.MethodGet, ts.URL+"/read-data", map[string]string{"Authorization": bearer(token)})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	ready := do(t, http.MethodGet, ts.URL+"/readyz", nil)
	defer ready.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, ready.StatusCode)
}

func TestPrincipalFlow(t *testing.T) {
	cfg := testConfig(config.AuthModePrincipal)
	cfg.Observability.MetricsEnabled = false

	ctx := context.Background()
	deps, err := app.NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	alice := base64.StdEncoding.EncodeToString([]byte(
		`{"auth_typ":"aad","claims":[{"typ":"name","val":"Alice"},{"typ":"roles","val":"READ"}]}`))

	testCases := []struct {
		name           string
		method         string
		path           string
		header         string
		expectedStatus int
	}{
		{"secure endpoint without header", http.MethodGet, "/secure-endpoint", "", http.StatusUnauthorized},
		{"secure endpoint with garbage", http.MethodGet, "/secure-endpoint", "%%%not-base64%%%", http.StatusUnauthorized},
		{"secure endpoint", http.MethodGet, "/secure-endpoint", alice, http.StatusOK},
		{"whoami", http.MethodGet, "/whoami", alice, http.StatusOK},
		{"read-data with READ", http.MethodGet, "/read-data", alice, http.StatusOK},
		{"write-data without WRITE", http.MethodPost, "/write-data", alice, http.StatusForbidden},
		{"metrics disabled", http.MethodGet, "/metrics", "", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers[principal.DefaultHeader] = tc.header
			}
			resp := do(t, tc.method, ts.URL+tc.path, headers)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
		})
	}

	t.Run("whoami body", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/whoami", map[string]string{principal.DefaultHeader: alice})
		defer resp.Body.Close()

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Alice", body["name"])
		assert.Nil(t, body["email"])
		assert.Equal(t, []interface{}{"READ"}, body["roles"])
	})
}

// Test helpers

func testConfig(mode config.AuthMode) *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Auth: config.AuthConfig{
			Mode:             mode,
			TenantID:         "test-tenant",
			AuthorityHost:    "https://login.microsoftonline.com",
			Audience:         testAudience,
			Issuer:           testIssuer,
			JWKSFetchTimeout: 5 * time.Second,
			PrincipalHeader:  principal.DefaultHeader,
		},
		CORS: config.CORSConfig{
			AllowedOrigins:   []string{"http://localhost:5173"},
			AllowCredentials: true,
			MaxAge:           300,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func claimsWithRoles(roles ...string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "user-123",
		"name":  "Test User",
		"aud":   testAudience,
		"iss":   testIssuer,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
		"roles": roles,
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

func do(t *testing.T, method, url string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}
