package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pulseboard/platform/pkg/appstore/store"
	appsync "github.com/pulseboard/platform/pkg/appstore/sync"
	"github.com/pulseboard/platform/pkg/common/logger"
	"github.com/pulseboard/platform/pkg/common/models"
	gatewayauth "github.com/pulseboard/platform/pkg/gateway/auth"
	"github.com/pulseboard/platform/pkg/gateway/middleware"
)

func TestMain(m *testing.M) {
	logger.Init("routes-test")
	os.Exit(m.Run())
}

type fakeSyncStore struct {
	logs []appsync.LogEntry
}

func (s *fakeSyncStore) UpsertSales(ctx context.Context, rec appsync.SalesUpsert) (bool, error) {
	return false, nil
}

func (s *fakeSyncStore) UpsertDownloadMetrics(ctx context.Context, date time.Time, downloads, redownloads int64) (bool, error) {
	return false, nil
}

func (s *fakeSyncStore) UpsertUsageMetrics(ctx context.Context, date time.Time, totals appsync.UsageTotals) (bool, error) {
	return false, nil
}

func (s *fakeSyncStore) InsertReviewIfAbsent(ctx context.Context, review appsync.Review) (bool, error) {
	return false, nil
}

func (s *fakeSyncStore) AppendSyncLog(ctx context.Context, entry appsync.LogEntry) error {
	s.logs = append(s.logs, entry)
	return nil
}

type fakeDashboardStore struct {
	metrics []store.MetricsRecord
	sales   []store.SalesRecord
	reviews []store.ReviewRecord
	syncLog []store.SyncLog
}

func (s *fakeDashboardStore) MetricsRange(ctx context.Context, from, to time.Time) ([]store.MetricsRecord, error) {
	return s.metrics, nil
}

func (s *fakeDashboardStore) SalesByDate(ctx context.Context, date time.Time) ([]store.SalesRecord, error) {
	return s.sales, nil
}

func (s *fakeDashboardStore) RecentReviews(ctx context.Context, limit int) ([]store.ReviewRecord, error) {
	return s.reviews, nil
}

func (s *fakeDashboardStore) RecentSyncLogs(ctx context.Context, limit int) ([]store.SyncLog, error) {
	return s.syncLog, nil
}

type routesFixture struct {
	router      *mux.Router
	signer      *gatewayauth.JWTManager
	syncStore   *fakeSyncStore
	adminToken  string
	viewerToken string
}

func newRoutesFixture(t *testing.T) *routesFixture {
	t.Helper()

	signer, err := gatewayauth.NewJWTManager("routes-test-session-secret", "pulseboard", "pulseboard-dashboard", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}

	syncStore := &fakeSyncStore{}
	coordinator := appsync.NewCoordinator(syncStore, appsync.Credentials{}, "http://unused", &http.Client{Timeout: time.Second})

	dashStore := &fakeDashboardStore{
		metrics: []store.MetricsRecord{{Date: time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), Downloads: 12}},
	}

	router := mux.NewRouter()
	protected := router.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(signer))
	NewAppStoreHandler(coordinator, dashStore, nil, nil, time.Minute).Register(protected)

	adminToken, err := signer.IssueToken(models.User{ID: uuid.New(), Email: "admin@example.com", Role: "admin"})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	viewerToken, err := signer.IssueToken(models.User{ID: uuid.New(), Email: "viewer@example.com", Role: "viewer"})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	return &routesFixture{
		router:      router,
		signer:      signer,
		syncStore:   syncStore,
		adminToken:  adminToken,
		viewerToken: viewerToken,
	}
}

func (f *routesFixture) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestMetricsEndpointRequiresAuth(t *testing.T) {
	f := newRoutesFixture(t)

	if rec := f.do(http.MethodGet, "/appstore/metrics", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec := f.do(http.MethodGet, "/appstore/metrics", f.viewerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}

	var records []store.MetricsRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(records) != 1 || records[0].Downloads != 12 {
		t.Fatalf("unexpected metrics payload: %+v", records)
	}
}

func TestMetricsEndpointRejectsBadRange(t *testing.T) {
	f := newRoutesFixture(t)

	if rec := f.do(http.MethodGet, "/appstore/metrics?days=0", f.viewerToken, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for days=0, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/appstore/metrics?days=9999", f.viewerToken, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for days=9999, got %d", rec.Code)
	}
}

func TestSyncTriggerRequiresAdmin(t *testing.T) {
	f := newRoutesFixture(t)
	body := []byte(`{"action":"sync-all"}`)

	if rec := f.do(http.MethodPost, "/appstore/sync", f.viewerToken, body); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", rec.Code)
	}
	if len(f.syncStore.logs) != 0 {
		t.Fatal("rejected trigger must not run a sync")
	}

	rec := f.do(http.MethodPost, "/appstore/sync", f.adminToken, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary appsync.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Success {
		t.Fatal("expected unsuccessful summary without credentials")
	}
	if len(f.syncStore.logs) != 1 {
		t.Fatalf("expected one audit log entry, got %d", len(f.syncStore.logs))
	}
}

func TestSyncTriggerRejectsUnknownAction(t *testing.T) {
	f := newRoutesFixture(t)

	rec := f.do(http.MethodPost, "/appstore/sync", f.adminToken, []byte(`{"action":"sync-everything"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}
	if len(f.syncStore.logs) != 0 {
		t.Fatal("invalid action must not reach the coordinator")
	}
}

func TestSyncTriggerDefaultsToSyncAll(t *testing.T) {
	f := newRoutesFixture(t)

	rec := f.do(http.MethodPost, "/appstore/sync", f.adminToken, []byte(`{}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(f.syncStore.logs) != 1 {
		t.Fatalf("expected one audit log entry, got %d", len(f.syncStore.logs))
	}
	if f.syncStore.logs[0].SyncType != appsync.ActionAll {
		t.Fatalf("expected default action %q, got %q", appsync.ActionAll, f.syncStore.logs[0].SyncType)
	}
}
