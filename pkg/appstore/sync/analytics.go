package sync

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/pulseboard/platform/pkg/appstore/connect"
	"github.com/pulseboard/platform/pkg/appstore/report"
	"github.com/pulseboard/platform/pkg/common/logger"
)

// maxInstancesPerReport bounds how many dated instances of one report
// are downloaded per run, newest first.
const maxInstancesPerReport = 30

// relevantCategories selects the report categories that feed the usage
// and engagement counters; everything else upstream is ignored.
var relevantCategories = map[string]bool{
	"APP_USAGE":            true,
	"APP_STORE_ENGAGEMENT": true,
}

// AnalyticsSync manages the longer-lived analytics report request
// resources, discovers generated report instances and aggregates their
// segments into per-date usage metrics. Losing a segment degrades
// completeness for its date but never aborts the sweep.
type AnalyticsSync struct {
	transport Transport
	store     Store
	columns   *report.Columns
}

func NewAnalyticsSync(transport Transport, store Store) *AnalyticsSync {
	return &AnalyticsSync{
		transport: transport,
		store:     store,
		columns:   report.DefaultColumns(),
	}
}

func (a *AnalyticsSync) Name() string { return "analytics" }

func (a *AnalyticsSync) Run(ctx context.Context) (Result, error) {
	var apps connect.AppsResponse
	if err := a.transport.GetJSON(ctx, "/v1/apps", nil, &apps); err != nil {
		return Result{}, fmt.Errorf("list apps: %w", err)
	}

	result := Result{}
	totalsByDate := make(map[string]*UsageTotals)

	for _, app := range apps.Data {
		if ctx.Err() != nil {
			break
		}
		a.syncApp(ctx, app, totalsByDate, &result)
	}

	// One write per date keeps a second report covering the same date
	// from overwriting the first one's contribution.
	dates := make([]string, 0, len(totalsByDate))
	for day := range totalsByDate {
		dates = append(dates, day)
	}
	sort.Strings(dates)

	for _, day := range dates {
		totals := totalsByDate[day]
		if totals.IsZero() {
			continue
		}
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			result.Errors = appendBounded(result.Errors, fmt.Sprintf("bad processing date %q", day))
			continue
		}
		changed, err := a.store.UpsertUsageMetrics(ctx, date, *totals)
		if err != nil {
			result.Errors = appendBounded(result.Errors, fmt.Sprintf("%s: store: %v", day, err))
			continue
		}
		if changed {
			result.Records++
		}
	}

	result.Message = fmt.Sprintf("%d metric records synced", result.Records)
	return result, nil
}

func (a *AnalyticsSync) syncApp(ctx context.Context, app connect.App, totalsByDate map[string]*UsageTotals, result *Result) {
	var requests connect.AnalyticsReportRequestsResponse
	path := fmt.Sprintf("/v1/apps/%s/analyticsReportRequests", app.ID)
	if err := a.transport.GetJSON(ctx, path, nil, &requests); err != nil {
		result.Errors = appendBounded(result.Errors, fmt.Sprintf("app %s: list report requests: %v", app.ID, err))
		return
	}

	ongoing := requests.Data[:0:0]
	for _, req := range requests.Data {
		if req.Attributes.AccessType == "ONGOING" {
			ongoing = append(ongoing, req)
		}
	}

	if len(ongoing) == 0 {
		// Provisioning the request is the synced unit; the generated
		// reports only become downloadable on a later run.
		var created connect.AnalyticsReportRequestResponse
		if err := a.transport.PostJSON(ctx, "/v1/analyticsReportRequests", connect.NewReportRequestBody(app.ID), &created); err != nil {
			result.Errors = appendBounded(result.Errors, fmt.Sprintf("app %s: create report request: %v", app.ID, err))
			return
		}
		logger.Log.WithFields(map[string]interface{}{
			"app_id":     app.ID,
			"request_id": created.Data.ID,
		}).Info("Created ongoing analytics report request")
		result.Records++
		return
	}

	for _, req := range ongoing {
		if ctx.Err() != nil {
			return
		}
		a.syncReportRequest(ctx, req.ID, totalsByDate, result)
	}
}

func (a *AnalyticsSync) syncReportRequest(ctx context.Context, requestID string, totalsByDate map[string]*UsageTotals, result *Result) {
	var reports connect.AnalyticsReportsResponse
	path := fmt.Sprintf("/v1/analyticsReportRequests/%s/reports", requestID)
	if err := a.transport.GetJSON(ctx, path, nil, &reports); err != nil {
		result.Errors = appendBounded(result.Errors, fmt.Sprintf("request %s: list reports: %v", requestID, err))
		return
	}

	for _, rep := range reports.Data {
		if !relevantCategories[rep.Attributes.Category] {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		a.syncReport(ctx, rep, totalsByDate, result)
	}
}

func (a *AnalyticsSync) syncReport(ctx context.Context, rep connect.AnalyticsReport, totalsByDate map[string]*UsageTotals, result *Result) {
	var instances connect.AnalyticsReportInstancesResponse
	path := fmt.Sprintf("/v1/analyticsReports/%s/instances", rep.ID)
	query := url.Values{}
	query.Set("filter[granularity]", "DAILY")
	if err := a.transport.GetJSON(ctx, path, query, &instances); err != nil {
		result.Errors = appendBounded(result.Errors, fmt.Sprintf("report %s: list instances: %v", rep.ID, err))
		return
	}

	sorted := append([]connect.AnalyticsReportInstance(nil), instances.Data...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Attributes.ProcessingDate > sorted[j].Attributes.ProcessingDate
	})
	if len(sorted) > maxInstancesPerReport {
		sorted = sorted[:maxInstancesPerReport]
	}

	for _, instance := range sorted {
		if ctx.Err() != nil {
			return
		}
		a.syncInstance(ctx, instance, totalsByDate, result)
	}
}

func (a *AnalyticsSync) syncInstance(ctx context.Context, instance connect.AnalyticsReportInstance, totalsByDate map[string]*UsageTotals, result *Result) {
	day := instance.Attributes.ProcessingDate
	if day == "" {
		return
	}

	var segments connect.AnalyticsReportSegmentsResponse
	path := fmt.Sprintf("/v1/analyticsReportInstances/%s/segments", instance.ID)
	if err := a.transport.GetJSON(ctx, path, nil, &segments); err != nil {
		result.Errors = appendBounded(result.Errors, fmt.Sprintf("instance %s: list segments: %v", instance.ID, err))
		return
	}

	for _, segment := range segments.Data {
		if segment.Attributes.URL == "" {
			continue
		}

		raw, err := a.transport.GetURL(ctx, segment.Attributes.URL)
		if err != nil {
			// Segment URLs are time-limited; an expired one is routine.
			logger.Log.WithError(err).WithField("segment_id", segment.ID).Warn("Skipping analytics segment")
			continue
		}

		rows, err := report.Decode(raw)
		if err != nil {
			logger.Log.WithError(err).WithField("segment_id", segment.ID).Warn("Skipping undecodable analytics segment")
			continue
		}

		totals, ok := totalsByDate[day]
		if !ok {
			totals = &UsageTotals{}
			totalsByDate[day] = totals
		}
		for _, row := range rows {
			totals.add(a.rowTotals(row))
		}
	}
}

func (a *AnalyticsSync) rowTotals(row report.Row) UsageTotals {
	return UsageTotals{
		Downloads:     a.columns.Int(row, "downloads"),
		Redownloads:   a.columns.Int(row, "redownloads"),
		Impressions:   a.columns.Int(row, "impressions"),
		PageViews:     a.columns.Int(row, "pageViews"),
		Sessions:      a.columns.Int(row, "sessions"),
		ActiveDevices: a.columns.Int(row, "activeDevices"),
		Crashes:       a.columns.Int(row, "crashes"),
	}
}
