package store

import (
	"time"

	"gorm.io/datatypes"
)

// SalesRecord holds one day's sales for one product in one territory.
// The composite unique index is the natural key for upserts.
type SalesRecord struct {
	ID          uint      `json:"-" gorm:"primaryKey"`
	Date        time.Time `json:"date" gorm:"type:date;column:date;uniqueIndex:idx_sales_natural_key,priority:1"`
	ProductName string    `json:"product_name" gorm:"size:256;column:product_name;uniqueIndex:idx_sales_natural_key,priority:2"`
	CountryCode string    `json:"country_code" gorm:"size:8;column:country_code;uniqueIndex:idx_sales_natural_key,priority:3"`
	ProductType string    `json:"product_type" gorm:"size:8;column:product_type"`
	Units       int64     `json:"units" gorm:"column:units"`
	Proceeds    float64   `json:"proceeds" gorm:"column:proceeds"`
	Currency    string    `json:"currency" gorm:"size:8;column:currency"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (SalesRecord) TableName() string {
	return "appstore_sales"
}

// MetricsRecord holds the canonical daily counters. The download pair
// comes from sales reports, the rest from analytics reports; both
// writers touch only their own columns.
type MetricsRecord struct {
	ID            uint      `json:"-" gorm:"primaryKey"`
	Date          time.Time `json:"date" gorm:"type:date;column:date;uniqueIndex"`
	Downloads     int64     `json:"downloads" gorm:"column:downloads"`
	Redownloads   int64     `json:"redownloads" gorm:"column:redownloads"`
	Impressions   int64     `json:"impressions" gorm:"column:impressions"`
	PageViews     int64     `json:"page_views" gorm:"column:page_views"`
	Sessions      int64     `json:"sessions" gorm:"column:sessions"`
	ActiveDevices int64     `json:"active_devices" gorm:"column:active_devices"`
	Crashes       int64     `json:"crashes" gorm:"column:crashes"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (MetricsRecord) TableName() string {
	return "appstore_metrics"
}

// ReviewRecord is write-once, keyed by the id the App Store issues.
type ReviewRecord struct {
	ExternalID  string    `json:"external_id" gorm:"primaryKey;column:external_id"`
	AuthorName  string    `json:"author_name" gorm:"column:author_name"`
	Title       string    `json:"title" gorm:"column:title"`
	Body        string    `json:"body" gorm:"column:body"`
	Rating      int       `json:"rating" gorm:"column:rating"`
	ReviewDate  time.Time `json:"review_date" gorm:"column:review_date"`
	CountryCode string    `json:"country_code" gorm:"size:8;column:country_code"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
}

func (ReviewRecord) TableName() string {
	return "appstore_reviews"
}

// SyncLog is the append-only audit trail, one row per invocation.
type SyncLog struct {
	ID            string            `json:"id" gorm:"primaryKey;column:id"`
	SyncType      string            `json:"sync_type" gorm:"size:32;column:sync_type"`
	Status        string            `json:"status" gorm:"size:16;column:status"`
	RecordsSynced int               `json:"records_synced" gorm:"column:records_synced"`
	ErrorMessage  string            `json:"error_message,omitempty" gorm:"column:error_message"`
	Details       datatypes.JSONMap `json:"details,omitempty" gorm:"column:details"`
	Timestamp     time.Time         `json:"timestamp" gorm:"column:timestamp;index"`
}

func (SyncLog) TableName() string {
	return "appstore_sync_logs"
}
