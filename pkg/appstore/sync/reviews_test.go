package sync

import (
	"context"
	"testing"
)

func reviewsFixture() *fakeTransport {
	transport := newFakeTransport()
	transport.json["/v1/apps"] = `{"data":[{"id":"app1","attributes":{"name":"Widget","bundleId":"com.example.widget"}}]}`
	transport.json["/v1/apps/app1/customerReviews"] = `{"data":[
		{"id":"rev1","attributes":{"rating":5,"title":"Love it","body":"Great app","reviewerNickname":"happyuser","createdDate":"2024-03-01T10:00:00Z","territory":"USA"}},
		{"id":"rev2","attributes":{"rating":2,"title":"Meh","body":"","reviewerNickname":"","createdDate":"2024-03-02T11:00:00Z","territory":"GBR"}}]}`
	return transport
}

func TestReviewSyncInsertsUnseenReviews(t *testing.T) {
	store := newMemStore()

	result, err := NewReviewSync(reviewsFixture(), store).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Records != 2 {
		t.Fatalf("expected 2 new reviews, got %d", result.Records)
	}

	review, ok := store.reviews["rev2"]
	if !ok {
		t.Fatal("expected rev2 to be stored")
	}
	if review.AuthorName != defaultAuthorName {
		t.Errorf("blank nickname must default, got %q", review.AuthorName)
	}
	if review.Rating != 2 || review.CountryCode != "GBR" {
		t.Errorf("unexpected review fields: %+v", review)
	}
}

func TestReviewSyncIsWriteOnce(t *testing.T) {
	store := newMemStore()

	if _, err := NewReviewSync(reviewsFixture(), store).Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Mutate a stored review; a second run must not restore or touch it.
	stored := store.reviews["rev1"]
	stored.Title = "edited locally"
	store.reviews["rev1"] = stored

	second, err := NewReviewSync(reviewsFixture(), store).Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Records != 0 {
		t.Errorf("expected no new reviews on second run, got %d", second.Records)
	}
	if store.reviews["rev1"].Title != "edited locally" {
		t.Error("existing reviews must never be mutated")
	}
}

func TestReviewSyncAbsorbsPerAppFailures(t *testing.T) {
	transport := newFakeTransport()
	transport.json["/v1/apps"] = `{"data":[
		{"id":"bad","attributes":{"name":"Broken","bundleId":"com.example.broken"}},
		{"id":"app1","attributes":{"name":"Widget","bundleId":"com.example.widget"}}]}`
	transport.jsonErr["/v1/apps/bad/customerReviews"] = serverErr()
	transport.json["/v1/apps/app1/customerReviews"] = `{"data":[{"id":"rev1","attributes":{"rating":4,"title":"ok","body":"fine","reviewerNickname":"u","createdDate":"2024-03-01T10:00:00Z","territory":"USA"}}]}`

	result, err := NewReviewSync(transport, newMemStore()).Run(context.Background())
	if err != nil {
		t.Fatalf("per-app failure must be absorbed: %v", err)
	}
	if result.Records != 1 {
		t.Errorf("healthy app must still sync, got %d records", result.Records)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected one absorbed error, got %v", result.Errors)
	}
}
