package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"satsync/internal/database"
	"satsync/internal/models"
	"satsync/internal/notify"
	"satsync/pkg/idp/types"
)

const (
	testGatewayName = "primary"
	testGatewayURL  = "https://gateway.example.com/GLGW/2/RestMessages.svc/JSON/"
	testAccessID    = "70000934"
	testPassword    = "password"
	testMobileID    = "01174907SKYFDA4"
)

// Mock gateway client
type mockGatewayClient struct {
	mock.Mock
}

func (m *mockGatewayClient) GetReturnMessages(ctx context.Context, gatewayURL string, auth types.Auth, filter types.Filter) (*types.ReturnMessagesResponse, error) {
	args := m.Called(ctx, gatewayURL, auth, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ReturnMessagesResponse), args.Error(1)
}

func (m *mockGatewayClient) GetForwardStatuses(ctx context.Context, gatewayURL string, auth types.Auth, filter types.Filter) (*types.ForwardStatusesResponse, error) {
	args := m.Called(ctx, gatewayURL, auth, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ForwardStatusesResponse), args.Error(1)
}

func (m *mockGatewayClient) SubmitForwardMessages(ctx context.Context, gatewayURL string, auth types.Auth, messages []types.ForwardMessage) (*types.SubmitResponse, error) {
	args := m.Called(ctx, gatewayURL, auth, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SubmitResponse), args.Error(1)
}

func (m *mockGatewayClient) ErrorName(ctx context.Context, gatewayURL string, errorID int) string {
	args := m.Called(ctx, gatewayURL, errorID)
	return args.String(0)
}

// recordingNotifier keeps every event it receives
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) ofType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// openTestDB opens a migrated sqlite database with one gateway and one mailbox
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	return openTestDBWithPool(t, 0)
}

// openTestDBWithPool is openTestDB with a capped connection pool
func openTestDBWithPool(t *testing.T, maxOpenConns int) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "satsync.db")
	db, err := database.Open(context.Background(), models.DatabaseConfig{
		Driver:       database.DriverSQLite,
		Path:         path,
		MaxOpenConns: maxOpenConns,
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := db.Acquire(context.Background())
	require.NoError(t, err)
	defer s.Release()
	require.NoError(t, s.ProvisionGateway(context.Background(), models.Gateway{Name: testGatewayName, URL: testGatewayURL}))
	require.NoError(t, s.ProvisionMailbox(context.Background(), testMailbox()))
	return db
}

func openTestSession(t *testing.T) (*database.DB, *database.Session) {
	t.Helper()
	db := openTestDB(t)
	s, err := db.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release() })
	return db, s
}

func testMailbox() models.Mailbox {
	return models.Mailbox{
		AccessID:    testAccessID,
		Password:    testPassword,
		GatewayName: testGatewayName,
		Enabled:     true,
	}
}

func testAuth() types.Auth {
	return types.Auth{AccessID: testAccessID, Password: testPassword}
}

// fixedNow is a wall clock time truncated to the gateway's precision
func fixedNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
