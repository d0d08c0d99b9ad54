//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbhandle/internal/middleware"
)

func TestHTTP_RoundTrip(t *testing.T) {
	env := setupHTTPServer(t, nil)
	table := peopleTable(t, env.Handle)
	base := env.Server.URL

	resp, body := doRequest(t, http.MethodPost, base+"/v1/commit", "", map[string]any{
		"sql":  "INSERT INTO " + table + " (name) VALUES (?)",
		"args": []any{"d"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])

	resp, body = doRequest(t, http.MethodPost, base+"/v1/fetch-one", "", map[string]any{
		"sql":  "SELECT name FROM " + table + " WHERE id = ?",
		"args": []any{4},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"name": "d"}, body["row"])

	resp, body = doRequest(t, http.MethodPost, base+"/v1/fetch-all", "", map[string]any{
		"sql": "SELECT id FROM " + table + " ORDER BY id",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 4, body["row_count"], 0.001)

	resp, body = doRequest(t, http.MethodPost, base+"/v1/fetch-all", "", map[string]any{"sql": "SELEC 1"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "EXECUTION_ERROR", body["code"])
}

func TestHTTP_BearerAuth(t *testing.T) {
	v, err := middleware.NewHS256Validator("integration-secret")
	require.NoError(t, err)
	env := setupHTTPServer(t, v)

	tests := []struct {
		name       string
		secret     string
		wantStatus int
	}{
		{"valid_token_200", "integration-secret", http.StatusOK},
		{"wrong_secret_401", "other-secret", http.StatusUnauthorized},
		{"no_token_401", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var token string
			if tc.secret != "" {
				token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "it"}).SignedString([]byte(tc.secret))
				require.NoError(t, err)
			}
			resp, _ := doRequest(t, http.MethodPost, env.Server.URL+"/v1/fetch-one", token, map[string]any{"sql": "SELECT 1 AS one"})
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
		})
	}

	resp, _ := doRequest(t, http.MethodGet, env.Server.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
