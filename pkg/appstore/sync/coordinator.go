package sync

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pulseboard/platform/pkg/appstore/connect"
	"github.com/pulseboard/platform/pkg/appstore/token"
	"github.com/pulseboard/platform/pkg/common/logger"
)

const (
	ActionAll     = "sync-all"
	ActionSales   = "sync-sales"
	ActionReviews = "sync-reviews"
	ActionMetrics = "sync-metrics"
)

// Credentials are the App Store Connect secrets the engine needs. The
// vendor number is optional; without it the sales strategy degrades to
// a no-op with an explanatory message.
type Credentials struct {
	IssuerID     string
	KeyID        string
	PrivateKey   string
	VendorNumber string
}

// Summary is the structured result returned to the trigger caller.
type Summary struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	RecordsSynced int          `json:"recordsSynced"`
	SalesStatus   *SalesStatus `json:"salesStatus,omitempty"`
}

// Coordinator dispatches the requested action to its strategies, sums
// their results and writes exactly one audit entry per invocation.
type Coordinator struct {
	store   Store
	creds   Credentials
	baseURL string
	nowFunc func() time.Time

	// newTransport and newSubs are replaceable seams for tests.
	newTransport func(provider connect.TokenProvider) Transport
	newSubs      func(action string, transport Transport) []SubSync
}

func NewCoordinator(store Store, creds Credentials, baseURL string, httpClient *http.Client) *Coordinator {
	c := &Coordinator{
		store:   store,
		creds:   creds,
		baseURL: baseURL,
		nowFunc: time.Now,
	}
	c.newTransport = func(provider connect.TokenProvider) Transport {
		return connect.NewClient(baseURL, httpClient, provider)
	}
	c.newSubs = c.defaultSubs
	return c
}

func (c *Coordinator) defaultSubs(action string, transport Transport) []SubSync {
	var subs []SubSync
	if action == ActionAll || action == ActionSales {
		subs = append(subs, NewSalesSync(transport, c.store, c.creds.VendorNumber))
	}
	if action == ActionAll || action == ActionReviews {
		subs = append(subs, NewReviewSync(transport, c.store))
	}
	if action == ActionAll || action == ActionMetrics {
		subs = append(subs, NewAnalyticsSync(transport, c.store))
	}
	return subs
}

// ValidAction reports whether the requested action names a known sync.
func ValidAction(action string) bool {
	switch action {
	case ActionAll, ActionSales, ActionReviews, ActionMetrics:
		return true
	}
	return false
}

// Run executes one sync invocation end to end. Configuration failures
// short-circuit before any network call; everything else is absorbed
// by the strategies and reflected in the summary.
func (c *Coordinator) Run(ctx context.Context, action string) Summary {
	if !ValidAction(action) {
		summary := Summary{Message: fmt.Sprintf("unknown sync action %q", action)}
		c.audit(ctx, action, summary, fmt.Sprintf("unknown sync action %q", action), nil)
		return summary
	}

	signer, err := token.NewSigner(c.creds.IssuerID, c.creds.KeyID, c.creds.PrivateKey)
	if err != nil {
		summary := Summary{Message: "App Store Connect credentials not configured"}
		c.audit(ctx, action, summary, err.Error(), nil)
		return summary
	}

	// One token per invocation. Strategies needing a token for longer
	// than its 20 minute window would take signer.Token itself as the
	// provider instead.
	bearer, err := signer.Token()
	if err != nil {
		summary := Summary{Message: "App Store Connect credentials not configured"}
		c.audit(ctx, action, summary, err.Error(), nil)
		return summary
	}

	transport := c.newTransport(connect.StaticToken(bearer))

	total := 0
	var firstFatal error
	var salesResult *Result
	var results []Result
	var absorbed []string
	started := c.nowFunc()

	for _, sub := range c.newSubs(action, transport) {
		result, err := sub.Run(ctx)
		if err != nil {
			logger.Log.WithError(err).WithField("sub_sync", sub.Name()).Error("Sub-sync failed")
			if firstFatal == nil {
				firstFatal = fmt.Errorf("%s sync: %w", sub.Name(), err)
			}
			continue
		}

		total += result.Records
		results = append(results, result)
		for _, msg := range result.Errors {
			absorbed = appendBounded(absorbed, msg)
		}
		if sub.Name() == "sales" {
			r := result
			salesResult = &r
		}

		logger.Log.WithFields(map[string]interface{}{
			"sub_sync": sub.Name(),
			"records":  result.Records,
			"errors":   len(result.Errors),
		}).Info("Sub-sync finished")
	}

	summary := Summary{
		Success:       firstFatal == nil,
		RecordsSynced: total,
		Message:       c.composeMessage(action, total, firstFatal, salesResult, results),
	}
	if salesResult != nil {
		summary.SalesStatus = salesResult.Sales
	}

	errorMessage := ""
	if firstFatal != nil {
		errorMessage = firstFatal.Error()
	}
	c.audit(ctx, action, summary, errorMessage, absorbed)

	logger.Log.WithFields(map[string]interface{}{
		"action":   action,
		"records":  total,
		"success":  summary.Success,
		"duration": time.Since(started).Milliseconds(),
	}).Info("Sync invocation complete")

	return summary
}

func (c *Coordinator) composeMessage(action string, total int, fatal error, sales *Result, results []Result) string {
	if fatal != nil {
		return fatal.Error()
	}

	// Single-strategy actions speak with that strategy's voice.
	if action != ActionAll && len(results) == 1 && results[0].Message != "" {
		return results[0].Message
	}

	message := fmt.Sprintf("%d records synced", total)
	if sales == nil {
		return message
	}

	salesIdle := sales.Records == 0 && (sales.Sales == nil ||
		(sales.Sales.Available == 0 && sales.Sales.NotAvailable > 0 && sales.Sales.Errors == 0))
	if salesIdle && sales.Message != "" {
		if total == 0 {
			return sales.Message
		}
		return fmt.Sprintf("%s; %s", message, sales.Message)
	}
	return message
}

// audit writes the single log entry for this invocation. A failed
// audit write is logged but never masks the sync outcome.
func (c *Coordinator) audit(ctx context.Context, action string, summary Summary, errorMessage string, absorbed []string) {
	status := "success"
	if !summary.Success {
		status = "error"
	}

	details := map[string]interface{}{}
	if summary.SalesStatus != nil {
		details["salesStatus"] = summary.SalesStatus
	}
	if len(absorbed) > 0 {
		details["absorbedErrors"] = absorbed
	}

	entry := LogEntry{
		ID:            uuid.New().String(),
		SyncType:      action,
		Status:        status,
		RecordsSynced: summary.RecordsSynced,
		ErrorMessage:  errorMessage,
		Details:       details,
		Timestamp:     c.nowFunc().UTC(),
	}

	if err := c.store.AppendSyncLog(ctx, entry); err != nil {
		logger.Log.WithError(err).Error("Failed to append sync log entry")
	}
}
