// Package store persists the records the report-sync engine produces.
// All writes are idempotent upserts by natural key.
package store

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	appsync "github.com/pulseboard/platform/pkg/appstore/sync"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db    *gorm.DB
	locks keyedMutex
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&SalesRecord{}, &MetricsRecord{}, &ReviewRecord{}, &SyncLog{})
}

// dateOnly strips the time of day so every writer addresses a calendar
// date the same way.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *Repository) UpsertSales(ctx context.Context, rec appsync.SalesUpsert) (bool, error) {
	date := dateOnly(rec.Date)
	unlock := r.locks.lock(fmt.Sprintf("sales|%s|%s|%s", date.Format("2006-01-02"), rec.ProductName, rec.CountryCode))
	defer unlock()

	var existing SalesRecord
	err := r.db.WithContext(ctx).
		Where("date = ? AND product_name = ? AND country_code = ?", date, rec.ProductName, rec.CountryCode).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		record := SalesRecord{
			Date:        date,
			ProductName: rec.ProductName,
			CountryCode: rec.CountryCode,
			ProductType: rec.ProductType,
			Units:       rec.Units,
			Proceeds:    rec.Proceeds,
			Currency:    rec.Currency,
		}
		if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
			return false, fmt.Errorf("insert sales record: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load sales record: %w", err)
	}

	// Unchanged rows are not rewritten, so updated_at stays honest.
	if existing.Units == rec.Units && existing.Proceeds == rec.Proceeds {
		return false, nil
	}

	updates := map[string]interface{}{
		"units":        rec.Units,
		"proceeds":     rec.Proceeds,
		"product_type": rec.ProductType,
		"currency":     rec.Currency,
	}
	if err := r.db.WithContext(ctx).Model(&SalesRecord{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("update sales record: %w", err)
	}
	return true, nil
}

func (r *Repository) UpsertDownloadMetrics(ctx context.Context, date time.Time, downloads, redownloads int64) (bool, error) {
	day := dateOnly(date)
	unlock := r.locks.lock("metrics|" + day.Format("2006-01-02"))
	defer unlock()

	var existing MetricsRecord
	err := r.db.WithContext(ctx).Where("date = ?", day).First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		record := MetricsRecord{Date: day, Downloads: downloads, Redownloads: redownloads}
		if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
			return false, fmt.Errorf("insert metrics record: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load metrics record: %w", err)
	}

	if existing.Downloads == downloads && existing.Redownloads == redownloads {
		return false, nil
	}

	updates := map[string]interface{}{"downloads": downloads, "redownloads": redownloads}
	if err := r.db.WithContext(ctx).Model(&MetricsRecord{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("update metrics record: %w", err)
	}
	return true, nil
}

func (r *Repository) UpsertUsageMetrics(ctx context.Context, date time.Time, totals appsync.UsageTotals) (bool, error) {
	day := dateOnly(date)
	unlock := r.locks.lock("metrics|" + day.Format("2006-01-02"))
	defer unlock()

	var existing MetricsRecord
	err := r.db.WithContext(ctx).Where("date = ?", day).First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		record := MetricsRecord{
			Date:          day,
			Downloads:     totals.Downloads,
			Redownloads:   totals.Redownloads,
			Impressions:   totals.Impressions,
			PageViews:     totals.PageViews,
			Sessions:      totals.Sessions,
			ActiveDevices: totals.ActiveDevices,
			Crashes:       totals.Crashes,
		}
		if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
			return false, fmt.Errorf("insert metrics record: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load metrics record: %w", err)
	}

	updates := map[string]interface{}{}
	setIfChanged := func(column string, current, next int64) {
		if current != next {
			updates[column] = next
		}
	}
	setIfChanged("impressions", existing.Impressions, totals.Impressions)
	setIfChanged("page_views", existing.PageViews, totals.PageViews)
	setIfChanged("sessions", existing.Sessions, totals.Sessions)
	setIfChanged("active_devices", existing.ActiveDevices, totals.ActiveDevices)
	setIfChanged("crashes", existing.Crashes, totals.Crashes)

	// The download pair may already hold sales-derived values; analytics
	// only overwrites it when it actually observed downloads.
	if totals.Downloads > 0 {
		setIfChanged("downloads", existing.Downloads, totals.Downloads)
	}
	if totals.Redownloads > 0 {
		setIfChanged("redownloads", existing.Redownloads, totals.Redownloads)
	}

	if len(updates) == 0 {
		return false, nil
	}
	if err := r.db.WithContext(ctx).Model(&MetricsRecord{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("update metrics record: %w", err)
	}
	return true, nil
}

func (r *Repository) InsertReviewIfAbsent(ctx context.Context, review appsync.Review) (bool, error) {
	var existing ReviewRecord
	err := r.db.WithContext(ctx).Where("external_id = ?", review.ExternalID).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("load review record: %w", err)
	}

	record := ReviewRecord{
		ExternalID:  review.ExternalID,
		AuthorName:  review.AuthorName,
		Title:       review.Title,
		Body:        review.Body,
		Rating:      review.Rating,
		ReviewDate:  review.ReviewDate,
		CountryCode: review.CountryCode,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return false, fmt.Errorf("insert review record: %w", err)
	}
	return true, nil
}

func (r *Repository) AppendSyncLog(ctx context.Context, entry appsync.LogEntry) error {
	record := SyncLog{
		ID:            entry.ID,
		SyncType:      entry.SyncType,
		Status:        entry.Status,
		RecordsSynced: entry.RecordsSynced,
		ErrorMessage:  entry.ErrorMessage,
		Details:       datatypes.JSONMap(entry.Details),
		Timestamp:     entry.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	return nil
}

// Dashboard reads.

func (r *Repository) MetricsRange(ctx context.Context, from, to time.Time) ([]MetricsRecord, error) {
	var records []MetricsRecord
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", dateOnly(from), dateOnly(to)).
		Order("date ASC").
		Find(&records).Error
	return records, err
}

func (r *Repository) SalesByDate(ctx context.Context, date time.Time) ([]SalesRecord, error) {
	var records []SalesRecord
	err := r.db.WithContext(ctx).
		Where("date = ?", dateOnly(date)).
		Order("units DESC").
		Find(&records).Error
	return records, err
}

func (r *Repository) RecentReviews(ctx context.Context, limit int) ([]ReviewRecord, error) {
	var records []ReviewRecord
	err := r.db.WithContext(ctx).
		Order("review_date DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *Repository) RecentSyncLogs(ctx context.Context, limit int) ([]SyncLog, error) {
	var records []SyncLog
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// keyedMutex serializes same-key upserts so the read-then-write check
// stays correct if strategies ever fan out concurrently.
type keyedMutex struct {
	mu    stdsync.Mutex
	locks map[string]*stdsync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*stdsync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &stdsync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
