package sync

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	stdsync "sync"
	"testing"
	"time"

	"github.com/pulseboard/platform/pkg/appstore/connect"
	"github.com/pulseboard/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init("sync-test")
	os.Exit(m.Run())
}

func notFoundErr() error {
	return &connect.UpstreamError{Status: http.StatusNotFound, Code: "NOT_FOUND", Detail: "Report not available"}
}

func serverErr() error {
	return &connect.UpstreamError{Status: http.StatusInternalServerError, Detail: "upstream exploded"}
}

func gzipReport(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		t.Fatalf("failed to compress fixture: %v", err)
	}
	zw.Close()
	return buf.Bytes()
}

// memStore is an in-memory Store with the same idempotency and
// merge semantics the real repository implements.
type memStore struct {
	mu      stdsync.Mutex
	sales   map[string]SalesUpsert
	metrics map[string]*UsageTotals
	reviews map[string]Review
	logs    []LogEntry

	failSales bool
}

func newMemStore() *memStore {
	return &memStore{
		sales:   make(map[string]SalesUpsert),
		metrics: make(map[string]*UsageTotals),
		reviews: make(map[string]Review),
	}
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (m *memStore) UpsertSales(ctx context.Context, rec SalesUpsert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSales {
		return false, fmt.Errorf("store unavailable")
	}

	key := dayKey(rec.Date) + "|" + rec.ProductName + "|" + rec.CountryCode
	existing, ok := m.sales[key]
	if ok && existing.Units == rec.Units && existing.Proceeds == rec.Proceeds {
		return false, nil
	}
	m.sales[key] = rec
	return true, nil
}

func (m *memStore) UpsertDownloadMetrics(ctx context.Context, date time.Time, downloads, redownloads int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dayKey(date)
	existing, ok := m.metrics[key]
	if !ok {
		m.metrics[key] = &UsageTotals{Downloads: downloads, Redownloads: redownloads}
		return true, nil
	}
	if existing.Downloads == downloads && existing.Redownloads == redownloads {
		return false, nil
	}
	existing.Downloads = downloads
	existing.Redownloads = redownloads
	return true, nil
}

func (m *memStore) UpsertUsageMetrics(ctx context.Context, date time.Time, totals UsageTotals) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dayKey(date)
	existing, ok := m.metrics[key]
	if !ok {
		copied := totals
		m.metrics[key] = &copied
		return true, nil
	}

	changed := false
	set := func(current *int64, next int64) {
		if *current != next {
			*current = next
			changed = true
		}
	}
	set(&existing.Impressions, totals.Impressions)
	set(&existing.PageViews, totals.PageViews)
	set(&existing.Sessions, totals.Sessions)
	set(&existing.ActiveDevices, totals.ActiveDevices)
	set(&existing.Crashes, totals.Crashes)
	if totals.Downloads > 0 {
		set(&existing.Downloads, totals.Downloads)
	}
	if totals.Redownloads > 0 {
		set(&existing.Redownloads, totals.Redownloads)
	}
	return changed, nil
}

func (m *memStore) InsertReviewIfAbsent(ctx context.Context, review Review) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reviews[review.ExternalID]; ok {
		return false, nil
	}
	m.reviews[review.ExternalID] = review
	return true, nil
}

func (m *memStore) AppendSyncLog(ctx context.Context, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

// fakeTransport scripts upstream responses per path (for JSON calls),
// per report date (for sales reports) and per URL (for segments).
type fakeTransport struct {
	json       map[string]string // path -> response body
	jsonErr    map[string]error
	reports    map[string][]byte // filter[reportDate] -> raw payload
	reportErr  map[string]error
	urls       map[string][]byte
	urlErr     map[string]error
	postBodies []interface{}
	postPaths  []string
	postJSON   map[string]string

	getJSONCalls   []string
	getReportCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		json:      make(map[string]string),
		jsonErr:   make(map[string]error),
		reports:   make(map[string][]byte),
		reportErr: make(map[string]error),
		urls:      make(map[string][]byte),
		urlErr:    make(map[string]error),
		postJSON:  make(map[string]string),
	}
}

func (f *fakeTransport) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	f.getJSONCalls = append(f.getJSONCalls, path)
	if err, ok := f.jsonErr[path]; ok {
		return err
	}
	body, ok := f.json[path]
	if !ok {
		body = `{"data":[]}`
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeTransport) PostJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	f.postPaths = append(f.postPaths, path)
	f.postBodies = append(f.postBodies, payload)
	body, ok := f.postJSON[path]
	if !ok {
		body = `{"data":{"id":"new-request","attributes":{"accessType":"ONGOING"}}}`
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeTransport) GetReport(ctx context.Context, path string, query url.Values) ([]byte, error) {
	f.getReportCalls++
	date := query.Get("filter[reportDate]")
	if err, ok := f.reportErr[date]; ok {
		return nil, err
	}
	if raw, ok := f.reports[date]; ok {
		return raw, nil
	}
	if raw, ok := f.reports["*"]; ok {
		return raw, nil
	}
	if err, ok := f.reportErr["*"]; ok {
		return nil, err
	}
	return nil, notFoundErr()
}

func (f *fakeTransport) GetURL(ctx context.Context, rawURL string) ([]byte, error) {
	if err, ok := f.urlErr[rawURL]; ok {
		return nil, err
	}
	if raw, ok := f.urls[rawURL]; ok {
		return raw, nil
	}
	return nil, fmt.Errorf("no fixture for %s", rawURL)
}
