package workers

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bounty-escrow-system/models"
)

// Outbox is the part of the escrow engine the dispatcher drains.
type Outbox interface {
	PendingTransfers(ctx context.Context, limit int) ([]models.PendingTransfer, error)
	MarkDelivered(ctx context.Context, id uint64) (*models.PendingTransfer, error)
	RecordFailure(ctx context.Context, id uint64, reason string, maxAttempts int) (*models.PendingTransfer, error)
}

// Ledger moves funds.
type Ledger interface {
	Transfer(ctx context.Context, t models.PendingTransfer) error
}

// Archiver stores the receipt of a bounty whose payout is complete.
type Archiver interface {
	Archive(ctx context.Context, bountyID uint64) error
}

// DispatcherConfig tunes delivery.
type DispatcherConfig struct {
	Interval    time.Duration // time between runs
	Batch       int           // transfers fetched per run
	MaxAttempts int           // failed runs before a transfer is given up
	// RetryInterval and RetriesPerRun shape the backoff inside one run
	RetryInterval time.Duration
	RetriesPerRun uint64
}

// TransferDispatcher delivers outbox entries to the ledger in id order.
type TransferDispatcher struct {
	outbox   Outbox
	ledger   Ledger
	archiver Archiver
	cfg      DispatcherConfig
	log      *zap.Logger
}

// NewTransferDispatcher wires a dispatcher. archiver may be nil.
func NewTransferDispatcher(outbox Outbox, ledger Ledger, archiver Archiver, cfg DispatcherConfig, log *zap.Logger) *TransferDispatcher {
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TransferDispatcher{
		outbox:   outbox,
		ledger:   ledger,
		archiver: archiver,
		cfg:      cfg,
		log:      log,
	}
}

// Start schedules RunOnce every Interval until ctx is done. The returned
// scheduler must be shut down by the caller.
func (d *TransferDispatcher) Start(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "create dispatcher scheduler")
	}
	_, err = sched.NewJob(
		gocron.DurationJob(d.cfg.Interval),
		gocron.NewTask(func() {
			if _, err := d.RunOnce(ctx); err != nil {
				d.log.Warn("dispatch run stopped", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, errors.Wrap(err, "schedule dispatcher")
	}
	sched.Start()
	d.log.Info("transfer dispatcher started", zap.Duration("interval", d.cfg.Interval))
	return sched, nil
}

// RunOnce delivers pending transfers in order. It stops at the first
// transfer that still fails and can be retried, so later transfers never
// overtake it. It returns the number delivered.
func (d *TransferDispatcher) RunOnce(ctx context.Context) (int, error) {
	pending, err := d.outbox.PendingTransfers(ctx, d.cfg.Batch)
	if err != nil {
		_dispatchRunsMtc.WithLabelValues("error").Inc()
		return 0, errors.Wrap(err, "load pending transfers")
	}

	delivered := 0
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			_dispatchRunsMtc.WithLabelValues("cancelled").Inc()
			return delivered, err
		}
		sendErr := d.send(ctx, t)
		if sendErr == nil {
			if _, err := d.outbox.MarkDelivered(ctx, t.ID); err != nil {
				_dispatchRunsMtc.WithLabelValues("error").Inc()
				return delivered, errors.Wrapf(err, "mark transfer %d delivered", t.ID)
			}
			_transfersMtc.WithLabelValues(string(t.Kind), "delivered").Inc()
			delivered++
			d.log.Info("transfer delivered",
				zap.Uint64("transfer", t.ID),
				zap.Uint64("bounty", t.BountyID),
				zap.String("recipient", t.Recipient),
				zap.Stringer("amount", t.Amount))
			d.archiveIfFinal(ctx, t)
			continue
		}

		rec, err := d.outbox.RecordFailure(ctx, t.ID, sendErr.Error(), d.cfg.MaxAttempts)
		if err != nil {
			_dispatchRunsMtc.WithLabelValues("error").Inc()
			return delivered, errors.Wrapf(err, "record failure of transfer %d", t.ID)
		}
		if rec.Status == models.TransferStatusFailed {
			_transfersMtc.WithLabelValues(string(t.Kind), "failed").Inc()
			d.log.Error("transfer given up",
				zap.Uint64("transfer", t.ID),
				zap.Uint64("bounty", t.BountyID),
				zap.Int("attempts", rec.Attempts),
				zap.Error(sendErr))
			d.archiveIfFinal(ctx, t)
			continue
		}
		_transfersMtc.WithLabelValues(string(t.Kind), "retry").Inc()
		_dispatchRunsMtc.WithLabelValues("blocked").Inc()
		return delivered, errors.Wrapf(sendErr, "transfer %d attempt %d", t.ID, rec.Attempts)
	}
	_dispatchRunsMtc.WithLabelValues("ok").Inc()
	return delivered, nil
}

func (d *TransferDispatcher) send(ctx context.Context, t models.PendingTransfer) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.RetryInterval
	bo.MaxElapsedTime = 0
	return backoff.Retry(func() error {
		return d.ledger.Transfer(ctx, t)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, d.cfg.RetriesPerRun), ctx))
}

func (d *TransferDispatcher) archiveIfFinal(ctx context.Context, t models.PendingTransfer) {
	if !t.Final || d.archiver == nil {
		return
	}
	if err := d.archiver.Archive(ctx, t.BountyID); err != nil {
		d.log.Error("settlement archive failed", zap.Uint64("bounty", t.BountyID), zap.Error(err))
	}
}
