package http

import (
	"bytes"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatline/chatline-server/internal/auth"
	"github.com/chatline/chatline-server/internal/config"
	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/log"
	"github.com/chatline/chatline-server/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)
	hub := core.NewHub(st, nil)

	cfg := config.Default()
	cfg.WSEventsPerMinute = 0 // no cap in tests

	logger := log.New("error")
	srv := NewServer(hub, authService, st, &cfg, logger)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// apiCall performs a JSON request against the test server, returning the
// status code and raw body.
func apiCall(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := stdhttp.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, respBody
}

// registerUser registers a user and returns their token.
func registerUser(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()

	status, body := apiCall(t, ts, stdhttp.MethodPost, "/api/v1/users/register", "", RegisterRequest{
		Username: username,
		FullName: username + " name",
		Email:    username + "@example.com",
		Password: "password123",
	})
	if status != stdhttp.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", username, status, body)
	}

	var resp AuthResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		t.Fatalf("register %s: bad response %s", username, body)
	}
	return resp.Token
}

// whoAmI resolves the token to the user behind it.
func whoAmI(t *testing.T, ts *httptest.Server, token string) UserResponse {
	t.Helper()

	status, body := apiCall(t, ts, stdhttp.MethodGet, "/api/v1/users/me", token, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("me: status %d, body %s", status, body)
	}

	var user UserResponse
	if err := json.Unmarshal(body, &user); err != nil {
		t.Fatalf("me: bad response %s", body)
	}
	return user
}

// createGroup creates a chat group and returns its wire address.
func createGroup(t *testing.T, ts *httptest.Server, token, name string, memberIDs ...int64) GroupResponse {
	t.Helper()

	status, body := apiCall(t, ts, stdhttp.MethodPost, "/api/v1/chat-group", token, CreateGroupRequest{
		Name:      name,
		MemberIDs: memberIDs,
	})
	if status != stdhttp.StatusCreated {
		t.Fatalf("create group %s: status %d, body %s", name, status, body)
	}

	var group GroupResponse
	if err := json.Unmarshal(body, &group); err != nil || group.GroupID == "" {
		t.Fatalf("create group %s: bad response %s", name, body)
	}
	return group
}
