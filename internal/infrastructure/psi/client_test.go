package psi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

const sampleResponse = `{
  "lighthouseResult": {
    "categories": {
      "performance": {"score": 0.87}
    },
    "audits": {
      "largest-contentful-paint": {"numericValue": 2431.5},
      "first-contentful-paint": {"numericValue": 1200.0}
    }
  }
}`

func TestMeasure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("url"); got != "https://acme.example/pricing" {
			t.Errorf("url param = %q", got)
		}
		if got := q.Get("strategy"); got != "mobile" {
			t.Errorf("strategy param = %q, want mobile", got)
		}
		if got := q.Get("key"); got != "test-key" {
			t.Errorf("key param = %q", got)
		}
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "")
	sample, err := c.Measure(context.Background(), "https://acme.example/pricing")
	if err != nil {
		t.Fatalf("Measure returned error: %v", err)
	}

	if sample.PerformanceScore != 87 {
		t.Errorf("PerformanceScore = %v, want 87", sample.PerformanceScore)
	}
	if sample.LCPMillis != 2431.5 {
		t.Errorf("LCPMillis = %v, want 2431.5", sample.LCPMillis)
	}
	if sample.URL != "https://acme.example/pricing" {
		t.Errorf("URL = %q", sample.URL)
	}
	if sample.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestMeasureServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "desktop")
	_, err := c.Measure(context.Background(), "https://acme.example/")

	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *domain.FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", fetchErr.StatusCode)
	}
	if !fetchErr.Transient() {
		t.Error("a 5xx from the API should be retried")
	}
}

func TestMeasureQuotaExceededIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	_, err := c.Measure(context.Background(), "https://acme.example/")

	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *domain.FetchError, got %v", err)
	}
	if fetchErr.Transient() {
		t.Error("a quota rejection must not be retried")
	}
}

func TestMeasureMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	if _, err := c.Measure(context.Background(), "https://acme.example/"); err == nil {
		t.Fatal("expected a decode error")
	}
}
