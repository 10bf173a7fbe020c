package usecase

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

func TestRetentionPurgesExpiredCancellations(t *testing.T) {
	t.Parallel()

	stores := newFakeStores()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	addCustomer(stores, "active")

	expired := addCustomer(stores, "expired")
	fresh := addCustomer(stores, "fresh")
	cancelAt := func(id string, at time.Time) {
		for i := range stores.customers {
			if stores.customers[i].ID == id {
				stores.customers[i].Status = domain.CustomerCancelled
				stores.customers[i].CancelledAt = &at
			}
		}
	}
	cancelAt(expired.ID, now.AddDate(0, 0, -40))
	cancelAt(fresh.ID, now.AddDate(0, 0, -5))

	retention := NewRetention(stores, stores, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
	retention.now = func() time.Time { return now }

	purged, err := retention.Purge(context.Background())
	if err != nil {
		t.Fatalf("Purge returned error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if len(stores.purged) != 1 || stores.purged[0] != "expired" {
		t.Errorf("purged customers = %v", stores.purged)
	}

	// A second pass finds nothing left to do.
	purged, err = retention.Purge(context.Background())
	if err != nil {
		t.Fatalf("second Purge returned error: %v", err)
	}
	if purged != 0 {
		t.Errorf("second pass purged = %d, want 0", purged)
	}
}

func TestRetentionDefaultWindow(t *testing.T) {
	t.Parallel()

	r := NewRetention(newFakeStores(), newFakeStores(), 0, nil)
	if r.days != DefaultRetentionDays {
		t.Fatalf("days = %d, want default %d", r.days, DefaultRetentionDays)
	}
}
