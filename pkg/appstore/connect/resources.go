package connect

// Typed views over the API's {data: [...]} envelopes. Only the
// attributes the sync engine reads are declared.

type App struct {
	ID         string `json:"id"`
	Attributes struct {
		Name     string `json:"name"`
		BundleID string `json:"bundleId"`
	} `json:"attributes"`
}

type AppsResponse struct {
	Data []App `json:"data"`
}

type CustomerReview struct {
	ID         string `json:"id"`
	Attributes struct {
		Rating           int    `json:"rating"`
		Title            string `json:"title"`
		Body             string `json:"body"`
		ReviewerNickname string `json:"reviewerNickname"`
		CreatedDate      string `json:"createdDate"`
		Territory        string `json:"territory"`
	} `json:"attributes"`
}

type CustomerReviewsResponse struct {
	Data []CustomerReview `json:"data"`
}

type AnalyticsReportRequest struct {
	ID         string `json:"id"`
	Attributes struct {
		AccessType string `json:"accessType"`
	} `json:"attributes"`
}

type AnalyticsReportRequestsResponse struct {
	Data []AnalyticsReportRequest `json:"data"`
}

type AnalyticsReportRequestResponse struct {
	Data AnalyticsReportRequest `json:"data"`
}

type AnalyticsReport struct {
	ID         string `json:"id"`
	Attributes struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	} `json:"attributes"`
}

type AnalyticsReportsResponse struct {
	Data []AnalyticsReport `json:"data"`
}

type AnalyticsReportInstance struct {
	ID         string `json:"id"`
	Attributes struct {
		Granularity    string `json:"granularity"`
		ProcessingDate string `json:"processingDate"`
	} `json:"attributes"`
}

type AnalyticsReportInstancesResponse struct {
	Data []AnalyticsReportInstance `json:"data"`
}

type AnalyticsReportSegment struct {
	ID         string `json:"id"`
	Attributes struct {
		URL         string `json:"url"`
		Checksum    string `json:"checksum"`
		SizeInBytes int64  `json:"sizeInBytes"`
	} `json:"attributes"`
}

type AnalyticsReportSegmentsResponse struct {
	Data []AnalyticsReportSegment `json:"data"`
}

// NewReportRequestBody builds the payload that provisions an ONGOING
// analytics report request for an app.
func NewReportRequestBody(appID string) map[string]interface{} {
	return map[string]interface{}{
		"data": map[string]interface{}{
			"type": "analyticsReportRequests",
			"attributes": map[string]interface{}{
				"accessType": "ONGOING",
			},
			"relationships": map[string]interface{}{
				"app": map[string]interface{}{
					"data": map[string]interface{}{
						"type": "apps",
						"id":   appID,
					},
				},
			},
		},
	}
}
