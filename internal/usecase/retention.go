package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/ports"
)

// DefaultRetentionDays is how long a cancelled customer's data is kept
// before the purge removes it.
const DefaultRetentionDays = 30

// Retention removes stored data of customers whose cancellation has aged
// past the retention window.
type Retention struct {
	customers ports.CustomerStore
	purger    ports.Purger
	days      int
	log       *slog.Logger
	now       func() time.Time
}

// NewRetention builds the purge use case; days <= 0 selects the default
// window.
func NewRetention(customers ports.CustomerStore, purger ports.Purger, days int, logger *slog.Logger) *Retention {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		customers: customers,
		purger:    purger,
		days:      days,
		log:       logger,
		now:       time.Now,
	}
}

// Purge deletes every expired customer's data and reports how many
// customers were purged. A failing purge stops the pass; already purged
// customers stay purged.
func (r *Retention) Purge(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-time.Duration(r.days) * 24 * time.Hour)
	customers, err := r.customers.ListCancelledBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list cancelled customers: %w", err)
	}

	purged := 0
	for _, customer := range customers {
		if err := r.purger.PurgeCustomerData(ctx, customer.ID); err != nil {
			return purged, fmt.Errorf("purge customer %s: %w", customer.ID, err)
		}
		purged++
		r.log.Info("customer data purged",
			"customer_id", customer.ID, "cancelled_at", customer.CancelledAt)
	}
	return purged, nil
}
