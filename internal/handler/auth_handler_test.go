package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/eaglebank/accounts/internal/service"
	"github.com/eaglebank/accounts/shared/cqrs"
)

// ---- mock implementation ----

type mockAuthQuerier struct {
	loginFn func(cqrs.LoginCommand) (string, error)
}

func (m *mockAuthQuerier) Login(_ context.Context, cmd cqrs.LoginCommand) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(cmd)
	}
	return "", fmt.Errorf("not configured")
}

// ---- helper ----

func newAuthTestRouter(qrys AuthQuerier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAuthHandler(qrys)
	r.POST("/api/login", h.Login)
	return r
}

// ---- tests ----

func TestLogin(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		loginFn        func(cqrs.LoginCommand) (string, error)
		expectedStatus int
	}{
		{
			name:           "success - valid credentials return token",
			body:           map[string]string{"username": "alice", "password": "pw123"},
			loginFn:        func(cmd cqrs.LoginCommand) (string, error) { return "mock.jwt.token", nil },
			expectedStatus: http.StatusOK,
		},
		{
			name: "bad request - wrong password",
			body: map[string]string{"username": "alice", "password": "wrong"},
			loginFn: func(cmd cqrs.LoginCommand) (string, error) {
				return "", service.Failure(service.InvalidCredentials, "password mismatch")
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad request - unknown user",
			body: map[string]string{"username": "mallory", "password": "pw123"},
			loginFn: func(cmd cqrs.LoginCommand) (string, error) {
				return "", service.Failure(service.InvalidCredentials, "unknown username")
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - missing password",
			body:           map[string]string{"username": "alice"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "server error - store failure",
			body:           map[string]string{"username": "alice", "password": "pw123"},
			loginFn:        func(cmd cqrs.LoginCommand) (string, error) { return "", fmt.Errorf("store io failure") },
			expectedStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAuthTestRouter(&mockAuthQuerier{loginFn: tt.loginFn})
			w := doRequest(router, http.MethodPost, "/api/login", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestLogin_FailureBodiesMatch(t *testing.T) {
	reasons := map[string]string{"alice": "password mismatch", "mallory": "unknown username"}
	router := newAuthTestRouter(&mockAuthQuerier{loginFn: func(cmd cqrs.LoginCommand) (string, error) {
		return "", service.Failure(service.InvalidCredentials, reasons[cmd.Username])
	}})

	wrongPassword := doRequest(router, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "x"})
	unknownUser := doRequest(router, http.MethodPost, "/api/login", map[string]string{"username": "mallory", "password": "x"})

	if wrongPassword.Code != unknownUser.Code || wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Errorf("responses differ: %d %s vs %d %s",
			wrongPassword.Code, wrongPassword.Body.String(), unknownUser.Code, unknownUser.Body.String())
	}
}

func TestLogin_ReturnsToken(t *testing.T) {
	router := newAuthTestRouter(&mockAuthQuerier{loginFn: func(cqrs.LoginCommand) (string, error) {
		return "mock.jwt.token", nil
	}})

	w := doRequest(router, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "pw123"})
	var resp AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Token != "mock.jwt.token" {
		t.Errorf("expected token in response, got %q", resp.Token)
	}
}
