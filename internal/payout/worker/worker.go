package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	auditcontext "github.com/smallbiznis/creatorpay/internal/auditcontext"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	"github.com/smallbiznis/creatorpay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobName = "payout_requests"

	// lockKey serializes ticks across replicas. Losing the lock is safe:
	// transfers stay single-shot through the per-request idempotency key.
	lockKey = "payout:worker"

	releaseTimeout = 5 * time.Second
)

var ErrInvalidConfig = errors.New("worker_invalid_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	RequestRepo requestdomain.Repository
	PayoutSvc   payoutdomain.Service
	Holder      *config.PayoutConfigHolder
	Clock       clock.Clock
	Locker      *ratelimit.Locker
}

// Worker drains claimed payment requests that are due and pushes each one
// through the payout service. SKIP LOCKED only keeps concurrent batch
// selects from blocking on each other; the select transaction commits
// before processing starts, so double-pay safety rests on the redis tick
// lock, the conditional mark-paid update, and the per-request idempotency
// key the processor sees.
type Worker struct {
	db          *gorm.DB
	log         *zap.Logger
	requestRepo requestdomain.Repository
	payoutSvc   payoutdomain.Service
	holder      *config.PayoutConfigHolder
	clock       clock.Clock
	locker      *ratelimit.Locker
}

func New(p Params) (*Worker, error) {
	if p.DB == nil || p.Log == nil || p.RequestRepo == nil || p.PayoutSvc == nil || p.Holder == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Worker{
		db:          p.DB,
		log:         p.Log.Named("payout.worker").With(zap.String("component", "payout-worker")),
		requestRepo: p.RequestRepo,
		payoutSvc:   p.PayoutSvc,
		holder:      p.Holder,
		clock:       p.Clock,
		locker:      p.Locker,
	}, nil
}

// RunForever re-reads the worker config every tick, so interval, batch size
// and the enabled flag follow payout.yml reloads without a restart.
func (w *Worker) RunForever(ctx context.Context) {
	workerMetrics := obsmetrics.Worker()
	nextRun := w.clock.Now()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			workerMetrics.ObserveRunLoopLag(lag)
		}

		cfg := w.holder.Get().Worker
		if cfg.Enabled {
			if err := w.RunOnce(ctx); err != nil {
				w.log.Warn("payout run failed", zap.Error(err))
			}
		}
		nextRun = w.clock.Now().Add(cfg.Interval)

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Interval):
		}
	}
}

func (w *Worker) RunOnce(parent context.Context) error {
	cfg := w.holder.Get().Worker
	return w.runJob(parent, jobName, cfg, w.processDueRequests)
}

func (w *Worker) runJob(
	parent context.Context,
	name string,
	cfg config.WorkerConfig,
	fn func(ctx context.Context, cfg config.WorkerConfig) error,
) error {
	start := w.clock.Now()
	ctx, cancel := context.WithTimeout(parent, cfg.JobTimeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "payout-worker")

	workerMetrics := obsmetrics.Worker()
	workerMetrics.IncJobRun(name)

	err := fn(ctx, cfg)
	workerMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		workerMetrics.IncJobTimeout(name)
	}
	workerMetrics.IncJobError(name, err)
	if isTimeout {
		w.log.Warn("payout job timed out",
			zap.Duration("timeout", cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (w *Worker) processDueRequests(ctx context.Context, cfg config.WorkerConfig) error {
	workerMetrics := obsmetrics.Worker()

	if w.locker != nil {
		token, acquired, err := w.locker.TryLock(ctx, lockKey, cfg.LockTTL)
		if err != nil {
			// Locking is advisory; the idempotency key keeps racing
			// replicas from paying twice, so a lock outage must not
			// stop payouts.
			w.log.Warn("payout lock unavailable, continuing unlocked", zap.Error(err))
		} else if !acquired {
			workerMetrics.IncBatchDeferred(jobName, "lock_held")
			return nil
		} else {
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
				defer cancel()
				if err := w.locker.Release(releaseCtx, lockKey, token); err != nil {
					w.log.Warn("payout lock release failed", zap.Error(err))
				}
			}()
		}
	}

	now := w.clock.Now()
	minimum := cfg.MinimumPayout()

	var due []*requestdomain.PaymentRequest
	lockStart := time.Now()
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := w.requestRepo.FindDueForPayout(ctx, tx, now, cfg.BatchSize)
		if err != nil {
			return err
		}
		due = batch
		return nil
	})
	workerMetrics.ObserveDBLockWait(obsmetrics.LockResourceRequestsForPayout, time.Since(lockStart))
	if err != nil {
		return err
	}
	if len(due) == 0 {
		workerMetrics.IncBatchDeferred(jobName, "skip_locked_empty")
		return nil
	}

	var jobErr error
	processed := 0
	for _, request := range due {
		if ctx.Err() != nil {
			jobErr = errors.Join(jobErr, ctx.Err())
			break
		}
		if minimum.IsPositive() && request.TotalAmount.LessThan(minimum) {
			workerMetrics.IncBatchDeferred(jobName, "below_minimum")
			continue
		}
		if err := w.processOne(ctx, request); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		processed++
	}
	workerMetrics.AddBatchProcessed(jobName, "payment_request", processed)
	return jobErr
}

// processOne isolates panics so one poisoned request cannot take down the
// whole batch.
func (w *Worker) processOne(ctx context.Context, request *requestdomain.PaymentRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("payout panic: %v", r)
			w.log.Error("payout processing panicked",
				zap.String("payment_request_id", request.ID.String()),
				zap.Any("panic", r),
			)
		}
	}()

	_, err = w.payoutSvc.Process(ctx, request.ID.String())
	if err == nil {
		return nil
	}

	// Guard outcomes wait for operator action; retrying them every tick
	// only burns processor quota.
	if errors.Is(err, payoutdomain.ErrNotPayable) ||
		errors.Is(err, payoutdomain.ErrPayoutsDisabled) ||
		errors.Is(err, payoutdomain.ErrNoPayoutAccount) ||
		errors.Is(err, payoutdomain.ErrBelowMinimum) {
		w.log.Debug("payout skipped",
			zap.String("payment_request_id", request.ID.String()),
			zap.String("reason", err.Error()),
		)
		return nil
	}

	w.log.Error("payout attempt failed",
		zap.String("payment_request_id", request.ID.String()),
		zap.Error(err),
	)
	return err
}
