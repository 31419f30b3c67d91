package sync

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pulseboard/platform/pkg/appstore/connect"
	"github.com/pulseboard/platform/pkg/appstore/report"
	"github.com/pulseboard/platform/pkg/common/logger"
)

const salesReportsPath = "/v1/salesReports"

// SalesSync walks the lookback window day by day, classifies each daily
// sales report, reconciles rows into storage and derives the
// download-related metrics for the date. A failed date never blocks
// the rest of the window.
type SalesSync struct {
	transport    Transport
	store        Store
	columns      *report.Columns
	vendorNumber string
	nowFunc      func() time.Time
}

func NewSalesSync(transport Transport, store Store, vendorNumber string) *SalesSync {
	return &SalesSync{
		transport:    transport,
		store:        store,
		columns:      report.DefaultColumns(),
		vendorNumber: vendorNumber,
		nowFunc:      time.Now,
	}
}

func (s *SalesSync) Name() string { return "sales" }

func (s *SalesSync) Run(ctx context.Context) (Result, error) {
	if s.vendorNumber == "" {
		return Result{
			Message: "vendor number not configured, skipping sales reports",
		}, nil
	}

	status := &SalesStatus{}
	records := 0
	yesterday := s.nowFunc().UTC().Truncate(24*time.Hour).AddDate(0, 0, -1)

	for offset := 0; offset < LookbackDays; offset++ {
		if ctx.Err() != nil {
			break
		}

		date := yesterday.AddDate(0, 0, -offset)
		outcome, synced := s.syncDate(ctx, date, status)
		records += synced

		logger.Log.WithFields(map[string]interface{}{
			"date":    date.Format("2006-01-02"),
			"outcome": string(outcome),
			"records": synced,
		}).Debug("Sales report processed")
	}

	return Result{
		Records: records,
		Message: s.composeMessage(records, status),
		Errors:  status.Messages,
		Sales:   status,
	}, nil
}

// syncDate fetches and reconciles one date. All failures are absorbed
// into the status tally.
func (s *SalesSync) syncDate(ctx context.Context, date time.Time, status *SalesStatus) (Outcome, int) {
	day := date.Format("2006-01-02")

	query := url.Values{}
	query.Set("filter[frequency]", "DAILY")
	query.Set("filter[reportType]", "SALES")
	query.Set("filter[reportSubType]", "SUMMARY")
	query.Set("filter[reportDate]", day)
	query.Set("filter[vendorNumber]", s.vendorNumber)

	raw, err := s.transport.GetReport(ctx, salesReportsPath, query)
	if err != nil {
		if connect.IsNotFound(err) {
			status.NotAvailable++
			return OutcomeNotAvailable, 0
		}
		status.recordError(fmt.Sprintf("%s: %v", day, err))
		return OutcomeError, 0
	}

	rows, err := report.Decode(raw)
	if err != nil {
		status.recordError(fmt.Sprintf("%s: %v", day, err))
		return OutcomeError, 0
	}
	if len(rows) == 0 {
		status.Available++
		return OutcomeEmpty, 0
	}

	status.Available++
	records := 0
	var downloads, redownloads int64

	for _, row := range rows {
		title := s.columns.Text(row, "title")
		if title == "" {
			title = s.columns.Text(row, "sku")
		}
		country := s.columns.Text(row, "country")
		if country == "" {
			country = "ALL"
		}
		units := s.columns.Int(row, "units")
		productType := s.columns.Text(row, "productType")

		changed, err := s.store.UpsertSales(ctx, SalesUpsert{
			Date:        date,
			ProductName: title,
			CountryCode: country,
			ProductType: productType,
			Units:       units,
			Proceeds:    s.columns.Float(row, "proceeds"),
			Currency:    s.columns.Text(row, "currency"),
		})
		if err != nil {
			status.recordError(fmt.Sprintf("%s: store: %v", day, err))
			continue
		}
		if changed {
			records++
		}

		if s.columns.IsFirstDownload(productType) {
			downloads += units
		}
		if s.columns.IsRedownload(productType) {
			redownloads += units
		}
	}

	if downloads > 0 || redownloads > 0 {
		changed, err := s.store.UpsertDownloadMetrics(ctx, date, downloads, redownloads)
		if err != nil {
			status.recordError(fmt.Sprintf("%s: store: %v", day, err))
		} else if changed {
			records++
		}
	}

	return OutcomeSuccess, records
}

func (s *SalesSync) composeMessage(records int, status *SalesStatus) string {
	switch {
	case status.Available == 0 && status.Errors == 0 && status.NotAvailable > 0:
		return "no sales reports available yet, Apple may take 24-72h to publish reports for a new app"
	case status.Errors > 0 && status.Available == 0:
		return fmt.Sprintf("sales sync failed for all dates (%d errors)", status.Errors)
	default:
		return fmt.Sprintf("%d sales records synced", records)
	}
}
