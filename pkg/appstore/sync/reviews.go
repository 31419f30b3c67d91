package sync

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pulseboard/platform/pkg/appstore/connect"
	"github.com/pulseboard/platform/pkg/common/logger"
)

const reviewPageSize = 50

// defaultAuthorName substitutes for reviews whose nickname is blank.
const defaultAuthorName = "App Store User"

// ReviewSync captures the most recent customer reviews per app.
// Reviews are write-once: an id already stored is never touched again.
type ReviewSync struct {
	transport Transport
	store     Store
}

func NewReviewSync(transport Transport, store Store) *ReviewSync {
	return &ReviewSync{transport: transport, store: store}
}

func (r *ReviewSync) Name() string { return "reviews" }

func (r *ReviewSync) Run(ctx context.Context) (Result, error) {
	var apps connect.AppsResponse
	if err := r.transport.GetJSON(ctx, "/v1/apps", nil, &apps); err != nil {
		return Result{}, fmt.Errorf("list apps: %w", err)
	}

	result := Result{}
	for _, app := range apps.Data {
		if ctx.Err() != nil {
			break
		}
		r.syncApp(ctx, app.ID, &result)
	}

	result.Message = fmt.Sprintf("%d new reviews captured", result.Records)
	return result, nil
}

func (r *ReviewSync) syncApp(ctx context.Context, appID string, result *Result) {
	query := url.Values{}
	query.Set("sort", "-createdDate")
	query.Set("limit", fmt.Sprintf("%d", reviewPageSize))

	var reviews connect.CustomerReviewsResponse
	path := fmt.Sprintf("/v1/apps/%s/customerReviews", appID)
	if err := r.transport.GetJSON(ctx, path, query, &reviews); err != nil {
		result.Errors = appendBounded(result.Errors, fmt.Sprintf("app %s: list reviews: %v", appID, err))
		return
	}

	for _, review := range reviews.Data {
		author := review.Attributes.ReviewerNickname
		if author == "" {
			author = defaultAuthorName
		}

		reviewDate, err := time.Parse(time.RFC3339, review.Attributes.CreatedDate)
		if err != nil {
			// Some territories return date-only stamps.
			reviewDate, _ = time.Parse("2006-01-02", review.Attributes.CreatedDate)
		}

		inserted, err := r.store.InsertReviewIfAbsent(ctx, Review{
			ExternalID:  review.ID,
			AuthorName:  author,
			Title:       review.Attributes.Title,
			Body:        review.Attributes.Body,
			Rating:      review.Attributes.Rating,
			ReviewDate:  reviewDate,
			CountryCode: review.Attributes.Territory,
		})
		if err != nil {
			result.Errors = appendBounded(result.Errors, fmt.Sprintf("review %s: store: %v", review.ID, err))
			continue
		}
		if inserted {
			result.Records++
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"app_id":  appID,
		"fetched": len(reviews.Data),
	}).Debug("Reviews page processed")
}
