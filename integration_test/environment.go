package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"satsync/internal/database"
	"satsync/internal/lock"
	"satsync/internal/metrics"
	"satsync/internal/models"
	"satsync/internal/notify"
	"satsync/internal/service"
	"satsync/pkg/circuitbreaker"
	"satsync/pkg/idp"
	"satsync/pkg/idp/types"
)

const (
	accessID = "70000934"
	password = "integration-password"
	mobileID = "01174907SKYFDA4"
)

// FakeGateway serves the subset of the gateway REST API the engine uses.
// Responses are queued per endpoint; an empty queue answers with an empty
// page.
type FakeGateway struct {
	mu         sync.Mutex
	server     *httptest.Server
	returns    []types.ReturnMessagesResponse
	statuses   []types.ForwardStatusesResponse
	submits    []types.SubmitResponse
	submitted  []types.SubmitRequest
	failStatus int
	calls      map[string]int
}

func NewFakeGateway(t *testing.T) *FakeGateway {
	t.Helper()
	g := &FakeGateway{calls: make(map[string]int)}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.server.Close)
	return g
}

// URL returns the base URL configured for the gateway
func (g *FakeGateway) URL() string {
	return g.server.URL + "/GLGW/2/RestMessages.svc/JSON/"
}

func (g *FakeGateway) QueueReturnMessages(resp types.ReturnMessagesResponse) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.returns = append(g.returns, resp)
}

func (g *FakeGateway) QueueStatuses(resp types.ForwardStatusesResponse) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses = append(g.statuses, resp)
}

func (g *FakeGateway) QueueSubmit(resp types.SubmitResponse) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits = append(g.submits, resp)
}

// FailWith makes every request answer with the given HTTP status; zero
// restores normal service.
func (g *FakeGateway) FailWith(status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failStatus = status
}

func (g *FakeGateway) Calls(endpoint string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[endpoint]
}

func (g *FakeGateway) Submitted() []types.SubmitRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.SubmitRequest(nil), g.submitted...)
}

func (g *FakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	endpoint := r.URL.Path[strings.LastIndex(strings.TrimSuffix(r.URL.Path, "/"), "/")+1:]
	endpoint = strings.TrimSuffix(endpoint, "/")
	g.calls[endpoint]++

	if g.failStatus != 0 {
		http.Error(w, http.StatusText(g.failStatus), g.failStatus)
		return
	}

	var body interface{}
	switch endpoint {
	case "get_return_messages.json":
		body = types.ReturnMessagesResponse{}
		if len(g.returns) > 0 {
			body, g.returns = g.returns[0], g.returns[1:]
		}
	case "get_forward_statuses.json":
		body = types.ForwardStatusesResponse{}
		if len(g.statuses) > 0 {
			body, g.statuses = g.statuses[0], g.statuses[1:]
		}
	case "submit_messages.json":
		var req types.SubmitRequest
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.submitted = append(g.submitted, req)
		body = types.SubmitResponse{}
		if len(g.submits) > 0 {
			body, g.submits = g.submits[0], g.submits[1:]
		}
	case "info_errors.json":
		body = []types.ErrorDefinition{
			{ID: 0, Name: "NO_ERRORS"},
			{ID: 12309, Name: "ERR_DELIVERY_TIMED_OUT"},
			{ID: 21785, Name: "ERR_SUBMIT_MESSAGE_RATE_EXCEEDED"},
		}
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// TestEnvironment is one engine wired to a fake gateway and a fresh sqlite
// database
type TestEnvironment struct {
	Gateway  *FakeGateway
	DB       *database.DB
	Engine   *service.Engine
	Metrics  *metrics.Metrics
	Recorder *EventRecorder
}

func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gateway := NewFakeGateway(t)
	db, err := database.Open(context.Background(), models.DatabaseConfig{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "satsync.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := metrics.New(false)
	client := idp.NewClient(idp.Options{
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
		Breaker:           circuitbreaker.Config{MaxFailures: 100, Timeout: time.Second},
		ErrorCacheTTL:     time.Minute,
		Logger:            logger,
	})

	recorder := &EventRecorder{}
	engine := service.NewEngine(db, client, service.EngineOptions{
		Notifier:    notify.Multi{notify.NewLogNotifier(logger), recorder},
		Locker:      lock.NewMemoryLocker(),
		Metrics:     m,
		Logger:      logger,
		MaxCallLogs: 100,
	})

	enabled := true
	require.NoError(t, engine.ProvisionFromConfig(context.Background(), &models.Config{
		Gateways: []models.GatewayConfig{{Name: "primary", URL: gateway.URL()}},
		Mailboxes: []models.MailboxConfig{{
			AccessID: accessID,
			Password: password,
			Gateway:  "primary",
			Enabled:  &enabled,
		}},
	}))

	return &TestEnvironment{
		Gateway:  gateway,
		DB:       db,
		Engine:   engine,
		Metrics:  m,
		Recorder: recorder,
	}
}

// Session acquires a store session released when the test ends
func (env *TestEnvironment) Session(t *testing.T) *database.Session {
	t.Helper()
	s, err := env.DB.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release() })
	return s
}

// EventRecorder keeps every event it is notified of
type EventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *EventRecorder) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *EventRecorder) Types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
