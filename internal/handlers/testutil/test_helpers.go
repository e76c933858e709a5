package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/api"
	"github.com/campuskit/notifier/internal/app"
	"github.com/campuskit/notifier/internal/cache"
	sharedtestutil "github.com/campuskit/notifier/internal/database/testutil"
	"github.com/campuskit/notifier/internal/engine"
	"github.com/campuskit/notifier/internal/realtime"
	"github.com/campuskit/notifier/internal/transport"
	"github.com/campuskit/notifier/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database
// for handler tests. Every transport channel is backed by a memory sink so
// dispatch outcomes can be asserted without network access.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	Engine *engine.Engine
	Hub    *realtime.Hub
	Sinks  map[transport.Channel]*transport.MemorySink
}

// NewEnv provisions a fresh handler test environment with migrations and seed
// data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	sinks := make(map[transport.Channel]*transport.MemorySink, len(transport.AllChannels()))
	registered := make([]transport.Sink, 0, len(transport.AllChannels()))
	for _, channel := range transport.AllChannels() {
		sink := transport.NewMemorySink(channel)
		sinks[channel] = sink
		registered = append(registered, sink)
	}

	cacheStore := cache.NewDatabaseStore(db)

	eng, err := engine.New(db, cacheStore, transport.NewRegistry(registered...), engine.Config{
		CacheTTL: time.Minute,
	})
	require.NoError(t, err)

	hub := realtime.NewHub()

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Health: app.HealthConfig{Enabled: true},
		},
	}

	router, err := api.NewRouter(db, eng, hub, cfg)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		Engine: eng,
		Hub:    hub,
		Sinks:  sinks,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding automatically. A non-empty userID is sent as the X-User-ID header
// the way the upstream gateway would.
func (e *Env) Request(method, path string, body any, userID string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
