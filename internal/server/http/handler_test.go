package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questlog/internal/logging"
	"questlog/internal/server/core"
	apihttp "questlog/internal/server/http"
	"questlog/internal/server/metrics"
	"questlog/internal/server/service"
	"questlog/internal/server/storage"
	"questlog/internal/server/storage/sqlite"
)

type fastHasher struct{}

func (fastHasher) Hash(password string) (string, error) { return "h:" + password, nil }

func (fastHasher) Verify(password, hash string) error {
	if hash != "h:"+password {
		return errors.New("mismatch")
	}
	return nil
}

type testEnv struct {
	app     *fiber.App
	store   storage.Store
	metrics *metrics.Metrics
}

func newEnv(t *testing.T, opts apihttp.Options) *testEnv {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	logger := logging.Discard()
	svc := service.New(store.Users(), store.Progress(), fastHasher{}, logger, time.Second)
	m := metrics.New()
	opts.AccessLog = io.Discard

	return &testEnv{
		app:     apihttp.NewFiberApp(svc, store, m, logger, opts),
		store:   store,
		metrics: m,
	}
}

func newAppWith(t *testing.T, svc apihttp.Service, pinger apihttp.Pinger) *fiber.App {
	t.Helper()
	return apihttp.NewFiberApp(svc, pinger, metrics.New(), logging.Discard(), apihttp.Options{AccessLog: io.Discard})
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func TestEndToEnd(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	status, body := do(t, env.app, "POST", "/api/register", `{"username":"alice","email":"a@b.com","password":"secret"}`)
	require.Equal(t, nethttp.StatusCreated, status, body)
	assert.Equal(t, "created", body["message"])
	id := body["id"]
	require.NotNil(t, id)

	status, body = do(t, env.app, "POST", "/api/login", `{"email":"a@b.com","password":"secret"}`)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "a@b.com", body["email"])
	assert.NotContains(t, body, "password_hash")

	status, first := do(t, env.app, "POST", "/api/progress", `{"email":"a@b.com","questId":"typing-0","progress":40,"data":"{\"typed\":\"ab\"}"}`)
	require.Equal(t, nethttp.StatusOK, status, first)
	assert.Equal(t, "ok", first["message"])

	status, second := do(t, env.app, "POST", "/api/progress", `{"email":"a@b.com","questId":"typing-0","progress":100}`)
	require.Equal(t, nethttp.StatusOK, status, second)
	assert.Equal(t, first["id"], second["id"])

	rows, err := env.store.Progress().ListByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 100.0, rows[0].Progress)
	assert.Equal(t, "null", string(rows[0].Data))
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing password", `{"email":"a@b.com"}`, "email and password required"},
		{"missing email", `{"password":"pw"}`, "email and password required"},
		{"empty body", ``, "email and password required"},
		{"bad email", `{"email":"not-an-email","password":"pw"}`, "invalid email format"},
		{"malformed json", `{"email":`, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, apihttp.Options{})

			status, body := do(t, env.app, "POST", "/api/register", tt.body)
			assert.Equal(t, nethttp.StatusBadRequest, status)
			assert.Equal(t, tt.wantMsg, body["error"])
			assert.Equal(t, core.ErrInvalidRequest, body["code"])

			users, err := env.store.Users().List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, users, "rejected request must not write")
		})
	}
}

func TestRegister_EmailForms(t *testing.T) {
	tests := []struct {
		email string
		want  int
	}{
		{"user@localhost", nethttp.StatusCreated},
		{"user@bücher.example", nethttp.StatusCreated},
		{"first.last+tag@sub.example.org", nethttp.StatusCreated},
		{"not-an-email", nethttp.StatusBadRequest},
		{"Alice <a@b.com>", nethttp.StatusBadRequest},
		{"a@b.com trailing", nethttp.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			env := newEnv(t, apihttp.Options{})

			payload, err := json.Marshal(map[string]string{"email": tt.email, "password": "pw"})
			require.NoError(t, err)
			status, body := do(t, env.app, "POST", "/api/register", string(payload))
			assert.Equal(t, tt.want, status)
			if tt.want == nethttp.StatusBadRequest {
				assert.Equal(t, "invalid email format", body["error"])
				assert.Equal(t, "email must be a valid email address", body["details"])
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	status, _ := do(t, env.app, "POST", "/api/register", `{"email":"a@b.com","password":"pw"}`)
	require.Equal(t, nethttp.StatusCreated, status)

	status, body := do(t, env.app, "POST", "/api/register", `{"email":"a@b.com","password":"other"}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "email already registered", body["error"])
	assert.Equal(t, core.ErrAlreadyRegistered, body["code"])
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newEnv(t, apihttp.Options{})
	status, _ := do(t, env.app, "POST", "/api/register", `{"email":"a@b.com","password":"secret"}`)
	require.Equal(t, nethttp.StatusCreated, status)

	wrongStatus, wrongBody := do(t, env.app, "POST", "/api/login", `{"email":"a@b.com","password":"nope"}`)
	unknownStatus, unknownBody := do(t, env.app, "POST", "/api/login", `{"email":"ghost@b.com","password":"secret"}`)

	assert.Equal(t, nethttp.StatusUnauthorized, wrongStatus)
	assert.Equal(t, nethttp.StatusUnauthorized, unknownStatus)
	assert.Equal(t, wrongBody, unknownBody)
	assert.Equal(t, "invalid credentials", wrongBody["error"])
}

func TestLogin_MissingFields(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	status, body := do(t, env.app, "POST", "/api/login", `{"email":"a@b.com"}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "email and password required", body["error"])
}

func TestProgress_Validation(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	status, body := do(t, env.app, "POST", "/api/progress", `{"email":"a@b.com","progress":5}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "email and questId required", body["error"])

	status, body = do(t, env.app, "POST", "/api/progress", `{"email":"a@b.com","questId":"q1","data":"not json"}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "data must be valid JSON", body["error"])

	rows, err := env.store.Progress().ListByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestProgress_StoresObjectData(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	status, _ := do(t, env.app, "POST", "/api/progress", `{"email":"a@b.com","questId":"fill-1","progress":50,"data":{"answers":["x", "y"]}}`)
	require.Equal(t, nethttp.StatusOK, status)

	rows, err := env.store.Progress().ListByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"answers":["x","y"]}`, string(rows[0].Data))
}

func TestUnsupportedContentType(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	req := httptest.NewRequest("POST", "/api/register", strings.NewReader(`email=a@b.com`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusUnsupportedMediaType, resp.StatusCode)

	req = httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"email":"a@b.com","password":"x"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
}

func TestOptions(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	resp, err := env.app.Test(httptest.NewRequest("OPTIONS", "/api/progress", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusNoContent, resp.StatusCode)

	req := httptest.NewRequest("OPTIONS", "/api/register", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSHeaderOnSimpleRequest(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	req := httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"email":"a@b.com","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSHeadersOnEveryResponse(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	login := httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"email":"a@b.com","password":"x"}`))
	login.Header.Set("Content-Type", "application/json")
	tests := []struct {
		name   string
		req    *nethttp.Request
		status int
	}{
		{"post without origin", login, nethttp.StatusUnauthorized},
		{"bare options", httptest.NewRequest("OPTIONS", "/api/register", nil), nethttp.StatusNoContent},
		{"health", httptest.NewRequest("GET", "/health", nil), nethttp.StatusOK},
		{"not found", httptest.NewRequest("GET", "/nope", nil), nethttp.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := env.app.Test(tt.req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET,POST,PUT,DELETE,OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type,Authorization", resp.Header.Get("Access-Control-Allow-Headers"))
		})
	}
}

func TestMixedCasePaths(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	status, body := do(t, env.app, "POST", "/api/Register", `{"email":"a@b.com","password":"secret"}`)
	require.Equal(t, nethttp.StatusCreated, status)
	assert.NotZero(t, body["id"])

	status, body = do(t, env.app, "POST", "/API/Login", `{"email":"a@b.com","password":"secret"}`)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "a@b.com", body["email"])

	status, _ = do(t, env.app, "POST", "/API/progress", `{"email":"a@b.com","questId":"q1","progress":10}`)
	assert.Equal(t, nethttp.StatusOK, status)

	// Validation still applies on the mixed-case spelling.
	status, body = do(t, env.app, "POST", "/Api/Progress/", `{"email":"a@b.com"}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "email and questId required", body["error"])
}

func TestRateLimit(t *testing.T) {
	env := newEnv(t, apihttp.Options{LoginRateLimit: 2})

	for range 2 {
		status, _ := do(t, env.app, "POST", "/api/login", `{"email":"a@b.com","password":"x"}`)
		require.Equal(t, nethttp.StatusUnauthorized, status)
	}
	status, body := do(t, env.app, "POST", "/api/login", `{"email":"a@b.com","password":"x"}`)
	assert.Equal(t, nethttp.StatusTooManyRequests, status)
	assert.Equal(t, core.ErrRateLimitExceeded, body["code"])

	// Other routes are unaffected.
	status, _ = do(t, env.app, "POST", "/api/progress", `{"email":"a@b.com","questId":"q"}`)
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestHealth(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	status, body := do(t, env.app, "GET", "/health", "")
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["storage"])
	assert.NotZero(t, body["time"])

	app := newAppWith(t, &stubService{}, failingPinger{})
	status, body = do(t, app, "GET", "/health", "")
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "degraded", body["storage"])
}

func TestMetrics(t *testing.T) {
	env := newEnv(t, apihttp.Options{})
	do(t, env.app, "POST", "/api/login", `{"email":"a@b.com","password":"x"}`)

	resp, err := env.app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `questlog_http_requests_total{method="POST",route="/api/login",status="401"} 1`)
	assert.Contains(t, string(raw), `questlog_auth_attempts_total{operation="login",outcome="rejected"} 1`)
}

func TestNotFound(t *testing.T) {
	env := newEnv(t, apihttp.Options{})

	status, body := do(t, env.app, "GET", "/api/nope", "")
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, core.ErrNotFound, body["code"])
}
