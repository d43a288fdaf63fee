package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "satsync/internal/errors"
	"satsync/internal/metrics"
	"satsync/internal/middleware"
	"satsync/internal/service"
)

type MockCommandSender struct {
	mock.Mock
}

func (m *MockCommandSender) Submit(ctx context.Context, req service.SubmitRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func newTestServer(sender commandSender, store pinger, signer *middleware.Signer) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return NewServer(0, sender, store, metrics.New(false), events, signer, logger)
}

func TestServer_HandleHealth(t *testing.T) {
	server := newTestServer(new(MockCommandSender), stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestServer_HandleHealth_DatabaseDown(t *testing.T) {
	server := newTestServer(new(MockCommandSender), stubPinger{err: errors.New("connection refused")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestServer_Metrics(t *testing.T) {
	server := newTestServer(new(MockCommandSender), stubPinger{}, nil)

	// one request first so the HTTP series exist
	server.router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "satsync_http_requests_total")
}

func TestServer_ListCommands(t *testing.T) {
	server := newTestServer(new(MockCommandSender), stubPinger{}, nil)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Commands []commandInfo `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Commands, commandInfo{Name: "getLocation", SIN: 0, MIN: 72})
	assert.Contains(t, body.Commands, commandInfo{Name: "pingModem", SIN: 0, MIN: 112})
}

func TestServer_SubmitCommand(t *testing.T) {
	sender := new(MockCommandSender)
	server := newTestServer(sender, stubPinger{}, nil)

	want := service.SubmitRequest{MobileID: "01174907SKYFDA4", Command: "getLocation", UserMessageID: 7}
	sender.On("Submit", mock.Anything, want).Return(int64(501), nil).Once()

	body := `{"mobile_id":"01174907SKYFDA4","command":"getLocation","user_message_id":7}`
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(501), resp.ForwardID)
	assert.NotEmpty(t, resp.RequestID)
	sender.AssertExpectations(t)
}

func TestServer_SubmitCommand_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", apperrors.NewValidationError("mobile_id", "x", "is not a valid mobile id"), http.StatusBadRequest},
		{"unknown mobile", apperrors.NewDataIntegrityError("mobile", "0117****", "mobile has no known mailbox"), http.StatusNotFound},
		{"rejected", apperrors.Wrap(service.ErrSubmissionRejected, apperrors.ErrCodeGatewayRejected, "submission rejected"), http.StatusUnprocessableEntity},
		{"gateway down", apperrors.NewTransportError("gateway.example.com", "submit_messages", 0, errors.New("refused")), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := new(MockCommandSender)
			server := newTestServer(sender, stubPinger{}, nil)
			sender.On("Submit", mock.Anything, mock.Anything).Return(int64(0), tt.err).Once()

			body := `{"mobile_id":"01174907SKYFDA4","command":"getLocation"}`
			w := httptest.NewRecorder()
			server.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)))

			assert.Equal(t, tt.status, w.Code)
			var resp apperrors.HTTPErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error.Code)
		})
	}
}

func TestServer_SubmitCommand_MalformedBody(t *testing.T) {
	sender := new(MockCommandSender)
	server := newTestServer(sender, stubPinger{}, nil)

	for _, body := range []string{`{`, `{"mobile_id":"01174907SKYFDA4","unexpected":true}`} {
		w := httptest.NewRecorder()
		server.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	oversized := bytes.Repeat([]byte("a"), 70*1024)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/commands", bytes.NewReader(oversized)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sender.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestServer_RequiresBearerToken(t *testing.T) {
	sender := new(MockCommandSender)
	signer := &middleware.Signer{Secret: []byte("0123456789abcdef0123456789abcdef"), TTL: time.Hour}
	server := newTestServer(sender, stubPinger{}, signer)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := signer.Sign("ops")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// health and metrics stay open
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_EventsRoute(t *testing.T) {
	server := newTestServer(new(MockCommandSender), stubPinger{}, nil)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	server := newTestServer(new(MockCommandSender), stubPinger{}, nil)
	assert.NoError(t, server.Shutdown(context.Background()))
}
