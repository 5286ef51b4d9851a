package reconcile

import (
	"context"
	"time"

	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/sirupsen/logrus"
)

type IntentSource interface {
	ListOpenIntents(ctx context.Context, before time.Time, limit int) ([]models.CheckoutIntent, error)
}

type Resumer interface {
	ResumeCheckout(ctx context.Context, intent models.CheckoutIntent) (models.IntentStatus, error)
}

type Config struct {
	Interval    time.Duration
	GracePeriod time.Duration
	BatchSize   int
}

// Reconciler finishes checkouts whose intent stayed open longer than the
// grace period, which happens when the process died or the database failed
// partway through PlaceOrder.
type Reconciler struct {
	intents IntentSource
	resumer Resumer
	cfg     Config
	now     func() time.Time
	log     *logrus.Logger
}

func New(intents IntentSource, resumer Resumer, cfg Config, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		intents: intents,
		resumer: resumer,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger,
	}
}

// Run sweeps once per interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.log.WithError(err).Error("Reconcile sweep failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep resumes one batch of stale intents and returns how many it closed.
// An intent that fails is logged and left for the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.cfg.GracePeriod)

	intents, err := r.intents.ListOpenIntents(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, intent := range intents {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}

		logger := r.log.WithFields(logrus.Fields{
			"checkout_id": intent.ID,
			"buyer_id":    intent.BuyerID,
		})

		status, err := r.resumer.ResumeCheckout(ctx, intent)
		if err != nil {
			logger.WithError(err).Warn("Could not resume checkout intent")
			continue
		}
		if status != models.IntentOpen {
			closed++
			logger.WithField("status", status).Info("Checkout intent reconciled")
		}
	}

	return closed, nil
}
