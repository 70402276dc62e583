package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel-rate-monitor/internal/database"
	"hotel-rate-monitor/internal/models"
	"hotel-rate-monitor/internal/provider"
	"hotel-rate-monitor/internal/ratelimit"
	"hotel-rate-monitor/internal/reconcile"
	"hotel-rate-monitor/internal/rooms"
	"hotel-rate-monitor/internal/scanner"
	"hotel-rate-monitor/internal/snapshot"
)

type fakeSessions struct {
	sessions map[string]*models.ScanSession
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*models.ScanSession, error) {
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeSessions) ListSessions(context.Context, int) ([]models.ScanSession, error) {
	out := make([]models.ScanSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeSessions) ListMerges(context.Context, string, int) ([]models.MergeLog, error) {
	return []models.MergeLog{{DuplicateID: "b", SurvivorID: "a"}}, nil
}

type fakeSnapshots struct {
	latest *models.PriceSnapshot
}

func (f *fakeSnapshots) History(context.Context, string, int) ([]models.PriceSnapshot, error) {
	if f.latest == nil {
		return nil, nil
	}
	return []models.PriceSnapshot{*f.latest}, nil
}

func (f *fakeSnapshots) Latest(context.Context, string) (*models.PriceSnapshot, error) {
	if f.latest == nil {
		return nil, snapshot.ErrNoSnapshot
	}
	return f.latest, nil
}

func (f *fakeSnapshots) Changes(context.Context, string, int) ([]models.PriceChange, error) {
	return nil, nil
}

type fakeSweeper struct {
	scopes  chan scanner.Scope
	block   chan struct{}
	running atomic.Bool
}

func (f *fakeSweeper) StartSweep(ctx context.Context, scope scanner.Scope, done func(*models.ScanSession, error)) error {
	if !f.running.CompareAndSwap(false, true) {
		return scanner.ErrSweepInProgress
	}
	go func() {
		defer f.running.Store(false)
		f.scopes <- scope
		if f.block != nil {
			<-f.block
		}
		done(&models.ScanSession{ID: "s-new", Status: models.ScanStatusCompleted}, nil)
	}()
	return nil
}

func (f *fakeSweeper) Running() bool { return f.running.Load() }

type fakeReconciler struct {
	planned, ran bool
	err          error
}

func (f *fakeReconciler) Reconcile(context.Context, string) (*reconcile.MergeReport, error) {
	f.ran = true
	return &reconcile.MergeReport{GroupsMerged: 1}, f.err
}

func (f *fakeReconciler) Plan(context.Context, string) (*reconcile.MergeReport, error) {
	f.planned = true
	return &reconcile.MergeReport{DryRun: true}, nil
}

type testServer struct {
	router     *gin.Engine
	sweeper    *fakeSweeper
	reconciler *fakeReconciler
	snapshots  *fakeSnapshots
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	price := decimal.RequireFromString("150")
	deluxe := decimal.RequireFromString("240")

	ts := &testServer{
		router:     gin.New(),
		sweeper:    &fakeSweeper{scopes: make(chan scanner.Scope, 4)},
		reconciler: &fakeReconciler{},
		snapshots: &fakeSnapshots{latest: &models.PriceSnapshot{
			PropertyID: "p1",
			CapturedAt: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			Price:      &price,
			Currency:   "EUR",
			Offers: []models.RoomOffer{
				{Name: "Standard Double", Price: &price},
				{Name: "Deluxe Sea View", Price: &deluxe},
			},
		}},
	}
	h := NewAdminHandler(context.Background(), AdminDeps{
		Sessions: &fakeSessions{sessions: map[string]*models.ScanSession{
			"s1": {ID: "s1", Status: models.ScanStatusPartial, Outcomes: []models.ScanOutcome{{PropertyID: "p1", Success: true}}},
		}},
		Snapshots:  ts.snapshots,
		Selector:   rooms.NewSelector(),
		Sweeper:    ts.sweeper,
		Reconciler: ts.reconciler,
		Limiter:    ratelimit.NewWindowLimiter(10, 100, 1000, true),
		Breaker:    provider.NewCircuitBreaker("test", 3, time.Minute),
		Permits:    ratelimit.NewPermits(4),
	})
	h.RegisterRoutes(ts.router)
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestTriggerSweep(t *testing.T) {
	ts := newTestServer(t)
	ts.sweeper.block = make(chan struct{})

	w := ts.do(http.MethodPost, "/api/admin/sweeps", `{"owner_id":"o1"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case scope := <-ts.sweeper.scopes:
		assert.Equal(t, "o1", scope.OwnerID)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep was not started")
	}

	w = ts.do(http.MethodPost, "/api/admin/sweeps", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(http.MethodGet, "/api/admin/sweeps", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["running"])
	close(ts.sweeper.block)
}

func TestTriggerSweepRejectsBadBody(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/api/admin/sweeps", `{"owner_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSweep(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/admin/sweeps/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "partial", body["status"])
	assert.Len(t, body["outcomes"], 1)

	w = ts.do(http.MethodGet, "/api/admin/sweeps/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/admin/sweeps", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

func TestRunReconcile(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/admin/reconcile", `{"dry_run":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["dry_run"])
	assert.True(t, ts.reconciler.planned)
	assert.False(t, ts.reconciler.ran)

	w = ts.do(http.MethodPost, "/api/admin/reconcile", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["groups_merged"])
	assert.True(t, ts.reconciler.ran)

	ts.reconciler.err = errors.New("safety check failed")
	w = ts.do(http.MethodPost, "/api/admin/reconcile", `{"owner_id":"o1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetRoomPrice(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/admin/properties/p1/price?category=deluxe", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	sel := body["selection"].(map[string]interface{})
	assert.True(t, decimal.RequireFromString(sel["amount"].(string)).Equal(decimal.NewFromInt(240)))
	assert.Equal(t, "Deluxe Sea View", sel["offer_name"])

	w = ts.do(http.MethodGet, "/api/admin/properties/p1/price?category=presidential+penthouse", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unknown", decode(t, w)["status"])

	ts.snapshots.latest = nil
	w = ts.do(http.MethodGet, "/api/admin/properties/p1/price?category=deluxe", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRateLimitStats(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/admin/ratelimit/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Contains(t, body, "rate_limit")
	assert.Contains(t, body, "circuit_breaker")
	permits := body["permits"].(map[string]interface{})
	assert.EqualValues(t, 4, permits["size"])
}

func TestGetMergeLogs(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/admin/merges?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}
