package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/platform/pkg/appstore/store"
	appsync "github.com/pulseboard/platform/pkg/appstore/sync"
	"github.com/pulseboard/platform/pkg/common/kafka"
	"github.com/pulseboard/platform/pkg/common/logger"
	"github.com/pulseboard/platform/pkg/common/models"
	"github.com/pulseboard/platform/pkg/gateway/middleware"
	"github.com/pulseboard/platform/pkg/observability/metrics"
)

const (
	cacheKeyPrefix     = "dashboard:"
	defaultMetricsDays = 30
	maxMetricsDays     = 365
	defaultListLimit   = 50
)

// DashboardStore is the slice of the repository the read endpoints
// need.
type DashboardStore interface {
	MetricsRange(ctx context.Context, from, to time.Time) ([]store.MetricsRecord, error)
	SalesByDate(ctx context.Context, date time.Time) ([]store.SalesRecord, error)
	RecentReviews(ctx context.Context, limit int) ([]store.ReviewRecord, error)
	RecentSyncLogs(ctx context.Context, limit int) ([]store.SyncLog, error)
}

// AppStoreHandler serves the dashboard read endpoints and the sync
// trigger. Read endpoints are cached in Redis because the underlying
// tables only change when a sync runs.
type AppStoreHandler struct {
	coordinator *appsync.Coordinator
	repo        DashboardStore
	cache       *redis.Client
	producer    *kafka.Producer
	cacheTTL    time.Duration
}

func NewAppStoreHandler(coordinator *appsync.Coordinator, repo DashboardStore, cache *redis.Client, producer *kafka.Producer, cacheTTL time.Duration) *AppStoreHandler {
	return &AppStoreHandler{
		coordinator: coordinator,
		repo:        repo,
		cache:       cache,
		producer:    producer,
		cacheTTL:    cacheTTL,
	}
}

func (h *AppStoreHandler) Register(r *mux.Router) {
	r.HandleFunc("/appstore/metrics", h.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/appstore/sales", h.handleSales).Methods(http.MethodGet)
	r.HandleFunc("/appstore/reviews", h.handleReviews).Methods(http.MethodGet)
	r.HandleFunc("/appstore/sync-logs", h.handleSyncLogs).Methods(http.MethodGet)

	admin := r.NewRoute().Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/appstore/sync", h.handleSync).Methods(http.MethodPost)
}

func (h *AppStoreHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	var req models.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Action == "" {
		req.Action = appsync.ActionAll
	}
	if !appsync.ValidAction(req.Action) {
		http.Error(w, "unknown sync action", http.StatusBadRequest)
		return
	}

	summary := h.coordinator.Run(r.Context(), req.Action)
	metrics.ObserveSyncRun(summary.Success, summary.RecordsSynced)

	h.invalidateCache(r.Context())
	h.publishSyncEvent(r.Context(), req.Action, summary)

	respondJSON(w, http.StatusOK, summary)
}

func (h *AppStoreHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultMetricsDays)
	if days < 1 || days > maxMetricsDays {
		http.Error(w, "days out of range", http.StatusBadRequest)
		return
	}

	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -days)

	key := cacheKeyPrefix + "metrics:" + strconv.Itoa(days)
	h.respondCached(w, r, key, func(ctx context.Context) (interface{}, error) {
		return h.repo.MetricsRange(ctx, from, to)
	})
}

func (h *AppStoreHandler) handleSales(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	key := cacheKeyPrefix + "sales:" + date.Format("2006-01-02")
	h.respondCached(w, r, key, func(ctx context.Context) (interface{}, error) {
		return h.repo.SalesByDate(ctx, date)
	})
}

func (h *AppStoreHandler) handleReviews(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit < 1 || limit > 200 {
		http.Error(w, "limit out of range", http.StatusBadRequest)
		return
	}

	key := cacheKeyPrefix + "reviews:" + strconv.Itoa(limit)
	h.respondCached(w, r, key, func(ctx context.Context) (interface{}, error) {
		return h.repo.RecentReviews(ctx, limit)
	})
}

func (h *AppStoreHandler) handleSyncLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit < 1 || limit > 200 {
		http.Error(w, "limit out of range", http.StatusBadRequest)
		return
	}

	// Sync logs are not cached so a just-triggered run shows up
	// immediately.
	logs, err := h.repo.RecentSyncLogs(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to load sync logs")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// respondCached serves key from Redis when possible and falls back to
// fetch on a miss or any cache error. The cache is best effort; a down
// Redis never makes the dashboard unavailable.
func (h *AppStoreHandler) respondCached(w http.ResponseWriter, r *http.Request, key string, fetch func(context.Context) (interface{}, error)) {
	ctx := r.Context()

	if h.cache != nil {
		cached, err := h.cache.Get(ctx, key).Bytes()
		if err == nil {
			metrics.ObserveCacheHit()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
		if !errors.Is(err, redis.Nil) {
			logger.Log.WithError(err).WithField("key", key).Warn("cache read failed")
		}
	}
	metrics.ObserveCacheMiss()

	payload, err := fetch(ctx)
	if err != nil {
		logger.Log.WithError(err).WithField("key", key).Error("dashboard query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, encoded, h.cacheTTL).Err(); err != nil {
			logger.Log.WithError(err).WithField("key", key).Warn("cache write failed")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded)
}

// invalidateCache drops every dashboard key after a sync so readers see
// fresh data on the next request.
func (h *AppStoreHandler) invalidateCache(ctx context.Context) {
	if h.cache == nil {
		return
	}

	iter := h.cache.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Log.WithError(err).Warn("cache invalidation scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := h.cache.Del(ctx, keys...).Err(); err != nil {
		logger.Log.WithError(err).Warn("cache invalidation failed")
	}
}

func (h *AppStoreHandler) publishSyncEvent(ctx context.Context, action string, summary appsync.Summary) {
	if h.producer == nil {
		return
	}

	err := h.producer.PublishEvent(ctx, "sync.completed", "dashboard-service", map[string]interface{}{
		"action":         action,
		"success":        summary.Success,
		"records_synced": summary.RecordsSynced,
		"message":        summary.Message,
	})
	if err != nil {
		logger.Log.WithError(err).Warn("failed to publish sync event")
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return value
}
