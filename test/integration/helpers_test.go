//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"dbhandle/internal/api"
	"dbhandle/internal/config"
	"dbhandle/internal/handle"
	"dbhandle/internal/middleware"
)

// The MySQL suite runs against a live server named by MYSQL_TEST_* variables:
//
//	MYSQL_TEST_HOST=127.0.0.1 MYSQL_TEST_USER=root MYSQL_TEST_PASSWORD=secret \
//	MYSQL_TEST_DATABASE=test go test -tags integration ./test/integration/...
func mysqlConfig(t *testing.T) handle.Config {
	t.Helper()
	host := os.Getenv("MYSQL_TEST_HOST")
	if host == "" {
		t.Skip("MYSQL_TEST_HOST not set, skipping MySQL integration test")
	}
	port := handle.DefaultPort
	if v := os.Getenv("MYSQL_TEST_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		require.NoError(t, err, "MYSQL_TEST_PORT")
		port = p
	}
	return handle.Config{
		Driver:   "mysql",
		Host:     host,
		Port:     port,
		User:     envOr("MYSQL_TEST_USER", "root"),
		Password: os.Getenv("MYSQL_TEST_PASSWORD"),
		Database: envOr("MYSQL_TEST_DATABASE", "test"),
		Logger:   config.NewLogger("text", config.ParseLevel(os.Getenv("LOG_LEVEL"))),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openMySQL opens a handle and registers its Close with t.
func openMySQL(t *testing.T, cfg handle.Config) *handle.Handle {
	t.Helper()
	h, err := handle.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// peopleTable creates a uniquely named table seeded with rows a, b, c and
// drops it when the test ends.
func peopleTable(t *testing.T, h *handle.Handle) string {
	t.Helper()
	ctx := context.Background()
	name := "it_people_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	_, err := h.Commit(ctx, "CREATE TABLE "+name+" (id INT AUTO_INCREMENT PRIMARY KEY, name VARCHAR(64) NOT NULL UNIQUE)")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = h.Commit(context.Background(), "DROP TABLE IF EXISTS "+name)
	})
	_, err = h.Commit(ctx, "INSERT INTO "+name+" (name) VALUES (?), (?), (?)", "a", "b", "c")
	require.NoError(t, err)
	return name
}

type httpEnv struct {
	Server *httptest.Server
	Handle *handle.Handle
}

// setupHTTPServer serves a MySQL-backed handle through the full gateway
// middleware stack.
func setupHTTPServer(t *testing.T, auth *middleware.HS256Validator) *httpEnv {
	t.Helper()
	h := openMySQL(t, mysqlConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := api.NewRouter(ctx, api.NewHandler(h, nil), api.RouterOptions{
		CORSAllowedOrigins: []string{"*"},
		RateLimit:          middleware.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		Auth:               auth,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &httpEnv{Server: srv, Handle: h}
}

// doRequest sends a JSON request and decodes the JSON response body.
func doRequest(t *testing.T, method, url, token string, body any) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}
