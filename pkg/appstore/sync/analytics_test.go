package sync

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func analyticsFixture() *fakeTransport {
	transport := newFakeTransport()
	transport.json["/v1/apps"] = `{"data":[{"id":"app1","attributes":{"name":"Widget","bundleId":"com.example.widget"}}]}`
	return transport
}

func TestAnalyticsCreatesReportRequestWhenMissing(t *testing.T) {
	transport := analyticsFixture()
	transport.json["/v1/apps/app1/analyticsReportRequests"] = `{"data":[]}`

	result, err := NewAnalyticsSync(transport, newMemStore()).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(transport.postPaths) != 1 || transport.postPaths[0] != "/v1/analyticsReportRequests" {
		t.Fatalf("expected one report request creation, got %v", transport.postPaths)
	}
	if result.Records != 1 {
		t.Errorf("creating the request counts as one synced unit, got %d", result.Records)
	}
}

func TestAnalyticsAggregatesUsageByDate(t *testing.T) {
	transport := analyticsFixture()
	store := newMemStore()

	transport.json["/v1/apps/app1/analyticsReportRequests"] = `{"data":[{"id":"req1","attributes":{"accessType":"ONGOING"}}]}`
	transport.json["/v1/analyticsReportRequests/req1/reports"] = `{"data":[
		{"id":"rep1","attributes":{"name":"App Store Installation and Deletion","category":"APP_USAGE"}},
		{"id":"rep2","attributes":{"name":"App Store Discovery and Engagement","category":"APP_STORE_ENGAGEMENT"}},
		{"id":"rep3","attributes":{"name":"Framework Usage","category":"FRAMEWORK_USAGE"}}]}`
	transport.json["/v1/analyticsReports/rep1/instances"] = `{"data":[{"id":"inst1","attributes":{"granularity":"DAILY","processingDate":"2024-03-01"}}]}`
	transport.json["/v1/analyticsReports/rep2/instances"] = `{"data":[{"id":"inst2","attributes":{"granularity":"DAILY","processingDate":"2024-03-01"}}]}`
	transport.json["/v1/analyticsReportInstances/inst1/segments"] = `{"data":[{"id":"seg1","attributes":{"url":"https://cdn/seg1","checksum":"abc","sizeInBytes":10}}]}`
	transport.json["/v1/analyticsReportInstances/inst2/segments"] = `{"data":[{"id":"seg2","attributes":{"url":"https://cdn/seg2","checksum":"def","sizeInBytes":10}}]}`
	transport.urls["https://cdn/seg1"] = []byte("Date\tTotal Downloads\tRedownloads\tSessions\n2024-03-01\t10\t4\t3\n")
	transport.urls["https://cdn/seg2"] = []byte("Date\tImpressions\tProduct Page Views\n2024-03-01\t500\t77\n")

	result, err := NewAnalyticsSync(transport, store).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Records != 1 {
		t.Fatalf("both reports cover one date, expected 1 record, got %d", result.Records)
	}

	totals, ok := store.metrics["2024-03-01"]
	if !ok {
		t.Fatal("expected metrics for 2024-03-01")
	}
	if totals.Downloads != 10 || totals.Redownloads != 4 || totals.Sessions != 3 {
		t.Errorf("unexpected usage totals: %+v", totals)
	}
	if totals.Impressions != 500 || totals.PageViews != 77 {
		t.Errorf("second report's counters must merge, got %+v", totals)
	}

	// The framework-usage report is irrelevant and must not be listed.
	for _, path := range transport.getJSONCalls {
		if path == "/v1/analyticsReports/rep3/instances" {
			t.Error("irrelevant category must be ignored")
		}
	}
}

func TestAnalyticsBoundsInstancesPerReport(t *testing.T) {
	transport := analyticsFixture()
	transport.json["/v1/apps/app1/analyticsReportRequests"] = `{"data":[{"id":"req1","attributes":{"accessType":"ONGOING"}}]}`
	transport.json["/v1/analyticsReportRequests/req1/reports"] = `{"data":[{"id":"rep1","attributes":{"name":"App Sessions","category":"APP_USAGE"}}]}`

	instances := `{"data":[`
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		if i > 0 {
			instances += ","
		}
		day := base.AddDate(0, 0, i).Format("2006-01-02")
		instances += fmt.Sprintf(`{"id":"inst%d","attributes":{"granularity":"DAILY","processingDate":"%s"}}`, i, day)
	}
	instances += `]}`
	transport.json["/v1/analyticsReports/rep1/instances"] = instances

	if _, err := NewAnalyticsSync(transport, newMemStore()).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	segmentLists := 0
	oldestListed := false
	for _, path := range transport.getJSONCalls {
		if len(path) > len("/v1/analyticsReportInstances/") && path[:len("/v1/analyticsReportInstances/")] == "/v1/analyticsReportInstances/" {
			segmentLists++
		}
		if path == "/v1/analyticsReportInstances/inst0/segments" {
			oldestListed = true
		}
	}
	if segmentLists != maxInstancesPerReport {
		t.Errorf("expected %d instances downloaded, got %d", maxInstancesPerReport, segmentLists)
	}
	if oldestListed {
		t.Error("the slice must keep the most recent instances, not the oldest")
	}
}

func TestAnalyticsToleratesSegmentLoss(t *testing.T) {
	transport := analyticsFixture()
	store := newMemStore()

	transport.json["/v1/apps/app1/analyticsReportRequests"] = `{"data":[{"id":"req1","attributes":{"accessType":"ONGOING"}}]}`
	transport.json["/v1/analyticsReportRequests/req1/reports"] = `{"data":[{"id":"rep1","attributes":{"name":"App Sessions","category":"APP_USAGE"}}]}`
	transport.json["/v1/analyticsReports/rep1/instances"] = `{"data":[{"id":"inst1","attributes":{"granularity":"DAILY","processingDate":"2024-03-01"}}]}`
	transport.json["/v1/analyticsReportInstances/inst1/segments"] = `{"data":[
		{"id":"seg1","attributes":{"url":"","checksum":"","sizeInBytes":0}},
		{"id":"seg2","attributes":{"url":"https://cdn/expired","checksum":"x","sizeInBytes":1}},
		{"id":"seg3","attributes":{"url":"https://cdn/good","checksum":"y","sizeInBytes":1}}]}`
	transport.urlErr["https://cdn/expired"] = fmt.Errorf("403 expired")
	transport.urls["https://cdn/good"] = []byte("Date\tSessions\n2024-03-01\t9\n")

	result, err := NewAnalyticsSync(transport, store).Run(context.Background())
	if err != nil {
		t.Fatalf("segment loss must not abort the date: %v", err)
	}
	if result.Records != 1 {
		t.Fatalf("expected surviving segment to produce a record, got %d", result.Records)
	}
	if totals := store.metrics["2024-03-01"]; totals == nil || totals.Sessions != 9 {
		t.Errorf("unexpected totals: %+v", totals)
	}
}

func TestAnalyticsListAppsFailureIsFatal(t *testing.T) {
	transport := newFakeTransport()
	transport.jsonErr["/v1/apps"] = serverErr()

	if _, err := NewAnalyticsSync(transport, newMemStore()).Run(context.Background()); err == nil {
		t.Fatal("expected fatal error when the app listing itself fails")
	}
}

func TestAnalyticsAndSalesMergeSafely(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.UpsertDownloadMetrics(ctx, date, 10, 0); err != nil {
		t.Fatalf("sales write failed: %v", err)
	}
	if _, err := store.UpsertUsageMetrics(ctx, date, UsageTotals{Impressions: 500}); err != nil {
		t.Fatalf("analytics write failed: %v", err)
	}

	totals := store.metrics["2024-01-01"]
	if totals.Downloads != 10 {
		t.Errorf("analytics writer must not erase sales downloads, got %d", totals.Downloads)
	}
	if totals.Impressions != 500 {
		t.Errorf("expected impressions 500, got %d", totals.Impressions)
	}
}
