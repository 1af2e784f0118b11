package sweep

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fieldvine/fieldvine/pkg/audit"
	"github.com/fieldvine/fieldvine/pkg/billing"
	"github.com/fieldvine/fieldvine/pkg/observability"
	"github.com/fieldvine/fieldvine/pkg/schedule"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// Config controls the scope and parallelism of a sweep run
type Config struct {
	// Workers bounds concurrent per-subscription work within each phase
	Workers int
	// LeadDays is how far ahead of the scheduled date entries are
	// materialized into jobs
	LeadDays int
	// WindowMonths is how far ahead the pending schedule window is kept
	// topped up
	WindowMonths int
	// BatchSize is the keyset pagination page size when listing
	// subscriptions
	BatchSize int
	// BusinessID restricts the sweep to a single business; zero sweeps all
	BusinessID int64
}

// DefaultConfig returns the sweep configuration used in production
func DefaultConfig() Config {
	return Config{
		Workers:      8,
		LeadDays:     3,
		WindowMonths: subscriptions.DefaultWindowMonths,
		BatchSize:    500,
	}
}

// Result summarizes a completed sweep run
type Result struct {
	SubscriptionsSwept int64 `json:"subscriptions_swept"`
	EntriesGenerated   int64 `json:"entries_generated"`
	JobsCreated        int64 `json:"jobs_created"`
	ClaimsLost         int64 `json:"claims_lost"`
	InvoicesIssued     int64 `json:"invoices_issued"`
	Completed          int64 `json:"completed"`
	Errors             int64 `json:"errors"`
}

// Sweeper runs the maintenance pass over subscriptions
type Sweeper struct {
	db        *sql.DB
	subs      subscriptions.Service
	generator *schedule.Generator
	executor  *schedule.Executor
	billing   *billing.Generator
	metrics   *observability.Metrics
	logger    *logrus.Logger
	cfg       Config
}

// NewSweeper creates a sweeper wired to the given services
func NewSweeper(db *sql.DB, subs subscriptions.Service, generator *schedule.Generator, executor *schedule.Executor, invoices *billing.Generator, metrics *observability.Metrics, logger *logrus.Logger, cfg Config) *Sweeper {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.LeadDays <= 0 {
		cfg.LeadDays = DefaultConfig().LeadDays
	}
	if cfg.WindowMonths <= 0 {
		cfg.WindowMonths = DefaultConfig().WindowMonths
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Sweeper{
		db:        db,
		subs:      subs,
		generator: generator,
		executor:  executor,
		billing:   invoices,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run performs one full sweep. Phase-level listing failures abort the run;
// per-subscription failures are counted in Result.Errors and logged.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	s.metrics.SweepRunsTotal.Inc()

	res := &Result{}

	if err := s.topUpWindows(ctx, res); err != nil {
		return res, fmt.Errorf("failed to top up schedule windows: %w", err)
	}
	if err := s.materializeDue(ctx, res); err != nil {
		return res, fmt.Errorf("failed to materialize due entries: %w", err)
	}
	if err := s.issueInvoices(ctx, res); err != nil {
		return res, fmt.Errorf("failed to issue invoices: %w", err)
	}
	if err := s.completeExpired(ctx, res); err != nil {
		return res, fmt.Errorf("failed to complete expired subscriptions: %w", err)
	}

	s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	s.logger.WithFields(logrus.Fields{
		"subscriptions": res.SubscriptionsSwept,
		"generated":     res.EntriesGenerated,
		"jobs":          res.JobsCreated,
		"claims_lost":   res.ClaimsLost,
		"invoices":      res.InvoicesIssued,
		"completed":     res.Completed,
		"errors":        res.Errors,
		"duration":      time.Since(start).String(),
	}).Info("sweep finished")
	return res, nil
}

// topUpWindows extends the pending window for every active subscription
func (s *Sweeper) topUpWindows(ctx context.Context, res *Result) error {
	var lastID int64
	for {
		ids, err := s.activeSubscriptionIDs(ctx, lastID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		lastID = ids[len(ids)-1]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Workers)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				inserted, err := s.generator.Generate(gctx, id, s.cfg.WindowMonths)
				if err != nil {
					s.recordError("generate", err, logrus.Fields{"subscription_id": id}, res)
					return nil
				}
				atomic.AddInt64(&res.SubscriptionsSwept, 1)
				s.metrics.SweepSubscriptionsSwept.Inc()
				if inserted > 0 {
					atomic.AddInt64(&res.EntriesGenerated, int64(inserted))
					s.metrics.SweepEntriesGenerated.Add(float64(inserted))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// materializeDue converts pending entries inside the lead window into jobs
func (s *Sweeper) materializeDue(ctx context.Context, res *Result) error {
	for {
		ids, err := s.executor.DueEntries(ctx, s.cfg.BusinessID, s.cfg.LeadDays, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		var resolved int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Workers)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				job, err := s.executor.MaterializeJob(gctx, id)
				switch {
				case err != nil:
					// A failed entry stays pending and would be re-listed,
					// so it must not count as progress.
					s.recordError("materialize", err, logrus.Fields{"schedule_entry_id": id}, res)
				case job == nil:
					// Another worker claimed the entry first.
					atomic.AddInt64(&res.ClaimsLost, 1)
					s.metrics.SweepClaimConflicts.Inc()
					atomic.AddInt64(&resolved, 1)
				default:
					atomic.AddInt64(&res.JobsCreated, 1)
					s.metrics.SweepMaterializedJobs.Inc()
					atomic.AddInt64(&resolved, 1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		// Only claims, won or lost, remove entries from the due set. A
		// round that resolves nothing re-lists the same failing entries
		// forever, so stop and let the next run retry them.
		if resolved == 0 || len(ids) < s.cfg.BatchSize {
			return nil
		}
	}
}

// issueInvoices generates an invoice for every subscription whose next
// billing date has arrived
func (s *Sweeper) issueInvoices(ctx context.Context, res *Result) error {
	ids, err := s.billingDueIDs(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := s.billing.GenerateInvoice(gctx, &billing.GenerateInvoiceRequest{SubscriptionID: id}, audit.System())
			if err != nil {
				s.recordError("invoice", err, logrus.Fields{"subscription_id": id}, res)
				return nil
			}
			atomic.AddInt64(&res.InvoicesIssued, 1)
			s.metrics.SweepInvoicesIssued.Inc()
			return nil
		})
	}
	return g.Wait()
}

// completeExpired closes fixed-term subscriptions whose end date has passed
func (s *Sweeper) completeExpired(ctx context.Context, res *Result) error {
	ids, err := s.expiredIDs(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			done, err := s.subs.CompleteIfExpired(gctx, id, audit.System())
			if err != nil {
				s.recordError("complete", err, logrus.Fields{"subscription_id": id}, res)
				return nil
			}
			if done {
				atomic.AddInt64(&res.Completed, 1)
				s.metrics.SweepCompletions.Inc()
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Sweeper) activeSubscriptionIDs(ctx context.Context, afterID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM subscriptions
		WHERE status = 'active'
		  AND ($1 = 0 OR business_id = $1)
		  AND id > $2
		ORDER BY id
		LIMIT $3
	`, s.cfg.BusinessID, afterID, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *Sweeper) billingDueIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM subscriptions
		WHERE status = 'active'
		  AND next_billing_date IS NOT NULL
		  AND next_billing_date <= CURRENT_DATE
		  AND ($1 = 0 OR business_id = $1)
		ORDER BY id
	`, s.cfg.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing-due subscriptions: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *Sweeper) expiredIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM subscriptions
		WHERE status IN ('active', 'paused')
		  AND end_date IS NOT NULL
		  AND end_date < CURRENT_DATE
		  AND ($1 = 0 OR business_id = $1)
		ORDER BY id
	`, s.cfg.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired subscriptions: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *Sweeper) recordError(stage string, err error, fields logrus.Fields, res *Result) {
	atomic.AddInt64(&res.Errors, 1)
	s.metrics.SweepErrors.WithLabelValues(stage).Inc()
	s.logger.WithFields(fields).WithError(err).Warnf("sweep %s failed", stage)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
