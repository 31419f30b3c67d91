// Package sync implements the App Store Connect report-sync engine: a
// strategy per report family plus a coordinator that runs the requested
// subset and writes one audit entry per invocation.
package sync

import (
	"context"
	"net/url"
	"time"
)

// LookbackDays is the fixed rolling window of daily sales reports,
// walking backward from yesterday. Apple never publishes a report for
// the current day.
const LookbackDays = 30

// Outcome classifies one date's report fetch. Absence is not failure;
// a brand-new app legitimately has nothing upstream for days.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeEmpty        Outcome = "empty"
	OutcomeNotAvailable Outcome = "not_available"
	OutcomeError        Outcome = "error"
)

// maxErrorMessages bounds how many absorbed error messages are retained
// verbatim for the summary.
const maxErrorMessages = 5

// Transport is the slice of the upstream client the strategies consume.
// *connect.Client satisfies it.
type Transport interface {
	GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error
	PostJSON(ctx context.Context, path string, payload interface{}, out interface{}) error
	GetReport(ctx context.Context, path string, query url.Values) ([]byte, error)
	GetURL(ctx context.Context, rawURL string) ([]byte, error)
}

// SalesUpsert carries one sales row keyed by (date, product, country).
type SalesUpsert struct {
	Date        time.Time
	ProductName string
	CountryCode string
	ProductType string
	Units       int64
	Proceeds    float64
	Currency    string
}

// UsageTotals aggregates one date's analytics counters.
type UsageTotals struct {
	Downloads     int64
	Redownloads   int64
	Impressions   int64
	PageViews     int64
	Sessions      int64
	ActiveDevices int64
	Crashes       int64
}

// IsZero reports whether every counter is zero, in which case no
// metrics record is written for the date.
func (u UsageTotals) IsZero() bool {
	return u == UsageTotals{}
}

func (u *UsageTotals) add(other UsageTotals) {
	u.Downloads += other.Downloads
	u.Redownloads += other.Redownloads
	u.Impressions += other.Impressions
	u.PageViews += other.PageViews
	u.Sessions += other.Sessions
	u.ActiveDevices += other.ActiveDevices
	u.Crashes += other.Crashes
}

// Review is one customer review keyed by its externally issued id.
type Review struct {
	ExternalID  string
	AuthorName  string
	Title       string
	Body        string
	Rating      int
	ReviewDate  time.Time
	CountryCode string
}

// LogEntry is the audit row written once per coordinator invocation.
type LogEntry struct {
	ID            string
	SyncType      string
	Status        string // success or error
	RecordsSynced int
	ErrorMessage  string
	Details       map[string]interface{}
	Timestamp     time.Time
}

// Store is the persistence collaborator. Every write is an idempotent
// upsert by natural key; the boolean return reports whether a row was
// actually inserted or changed.
type Store interface {
	// UpsertSales inserts or updates a row keyed by
	// (date, product, country), touching nothing when units and
	// proceeds already match.
	UpsertSales(ctx context.Context, rec SalesUpsert) (bool, error)

	// UpsertDownloadMetrics writes the sales-derived download counters
	// for a date, leaving analytics-sourced fields untouched.
	UpsertDownloadMetrics(ctx context.Context, date time.Time, downloads, redownloads int64) (bool, error)

	// UpsertUsageMetrics writes the analytics-derived counters for a
	// date without clobbering sales-derived downloads: the download
	// pair is only overwritten when the analytics totals are nonzero.
	UpsertUsageMetrics(ctx context.Context, date time.Time, totals UsageTotals) (bool, error)

	// InsertReviewIfAbsent writes a review once; an existing external
	// id is never re-inserted or mutated.
	InsertReviewIfAbsent(ctx context.Context, review Review) (bool, error)

	// AppendSyncLog appends one audit row.
	AppendSyncLog(ctx context.Context, entry LogEntry) error
}

// Result is what every strategy returns: a count of rows actually
// written plus the errors it absorbed along the way.
type Result struct {
	Records int
	Message string
	Errors  []string

	// Sales carries the per-date outcome tally; only the sales
	// strategy populates it.
	Sales *SalesStatus
}

// SalesStatus tallies per-date classifications across the lookback
// window. Empty reports count as available: the report exists, it just
// has nothing to say.
type SalesStatus struct {
	Available    int      `json:"available"`
	NotAvailable int      `json:"notAvailable"`
	Errors       int      `json:"errors"`
	Messages     []string `json:"messages,omitempty"`
}

func (s *SalesStatus) recordError(message string) {
	s.Errors++
	if len(s.Messages) < maxErrorMessages {
		s.Messages = append(s.Messages, message)
	}
}

// SubSync is the common contract every strategy implements: run to
// completion, absorb per-unit failures, and report what happened. A
// returned error is reserved for fatal conditions that invalidate the
// whole invocation.
type SubSync interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

func appendBounded(messages []string, message string) []string {
	if len(messages) >= maxErrorMessages {
		return messages
	}
	return append(messages, message)
}
