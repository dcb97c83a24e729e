// Package escrow implements the bounty lifecycle: creators lock prizes,
// participants join, and the creator names winners, which queues the payout
// transfers (minus the owner fee) in an outbox.
//
// Every entry point runs under one lock on a fresh working set and commits all
// of its writes in a single batch, or none of them.
package escrow

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bounty-escrow-system/models"
	"bounty-escrow-system/store"
)

// Engine is the escrow state machine over a KV store.
type Engine struct {
	mu         sync.Mutex
	kv         store.KVStore
	defaultFee uint64
	clock      func() time.Time
	log        *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultFee sets the fee percentage used while none is stored.
func WithDefaultFee(pct uint64) Option {
	return func(e *Engine) { e.defaultFee = pct }
}

// WithClock overrides the time source for record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine returns an engine persisting into kv. kv must be started.
func NewEngine(kv store.KVStore, opts ...Option) (*Engine, error) {
	e := &Engine{
		kv:         kv,
		defaultFee: DefaultFeePercentage,
		clock:      time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultFee > MaxFeePercentage {
		return nil, errors.Errorf("default fee percentage %d out of [0, %d]", e.defaultFee, MaxFeePercentage)
	}
	return e, nil
}

func (e *Engine) newCallState() *callState {
	return &callState{
		ws:         store.NewWorkingSet(e.kv),
		defaultFee: e.defaultFee,
		now:        e.clock().UTC(),
	}
}

// execute runs fn and commits its writes if it succeeds.
func (e *Engine) execute(ctx context.Context, op string, fn func(*callState) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cs := e.newCallState()
	err := fn(cs)
	if err == nil {
		err = cs.ws.Commit(ctx)
	}
	_bountyOpsMtc.WithLabelValues(op, Kind(err)).Inc()
	if err != nil && Kind(err) == "Internal" {
		e.log.Error("escrow call failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

// view runs fn against committed state and drops whatever it wrote.
func (e *Engine) view(fn func(*callState) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.newCallState())
}

func caller(ctx context.Context) (CallCtx, error) {
	cc, ok := GetCallCtx(ctx)
	if !ok || cc.Caller == "" {
		return CallCtx{}, errors.Wrap(ErrUnauthorized, "anonymous caller")
	}
	return cc, nil
}

// CreateBounty locks the payment attached to ctx for the given prizes.
func (e *Engine) CreateBounty(ctx context.Context, prizes []models.Amount) (uint64, error) {
	cc, err := caller(ctx)
	if err != nil {
		return 0, err
	}
	var id uint64
	err = e.execute(ctx, "create", func(cs *callState) error {
		var err error
		id, err = cs.createBounty(ctx, prizes, cc.Payment, cc.Caller)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.log.Info("bounty created",
		zap.Uint64("bounty", id),
		zap.String("creator", cc.Caller),
		zap.Stringer("total", cc.Payment),
		zap.Int("prizes", len(prizes)))
	return id, nil
}

// Participate registers the caller. Joining twice is a no-op.
func (e *Engine) Participate(ctx context.Context, id uint64) error {
	cc, err := caller(ctx)
	if err != nil {
		return err
	}
	var joined bool
	err = e.execute(ctx, "participate", func(cs *callState) error {
		var err error
		joined, err = cs.participate(ctx, id, cc.Caller)
		return err
	})
	if err == nil && joined {
		e.log.Debug("participant joined", zap.Uint64("bounty", id), zap.String("participant", cc.Caller))
	}
	return err
}

// FinalizeResult is the closed bounty together with its queued transfers.
type FinalizeResult struct {
	Bounty    *models.Bounty           `json:"bounty"`
	Transfers []models.PendingTransfer `json:"transfers"`
}

// Finalize names the winners, closes the bounty and queues the payout.
func (e *Engine) Finalize(ctx context.Context, id uint64, winners []string) (*FinalizeResult, error) {
	cc, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	res := &FinalizeResult{}
	err = e.execute(ctx, "finalize", func(cs *callState) error {
		var err error
		res.Bounty, res.Transfers, err = cs.finalize(ctx, id, cc.Caller, winners)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("bounty finalized",
		zap.Uint64("bounty", id),
		zap.Strings("winners", winners),
		zap.Int("transfers", len(res.Transfers)))
	return res, nil
}

// SetOwner claims ownership when none is set, otherwise lets the owner hand
// it over to newOwner. It returns the owner after the call.
func (e *Engine) SetOwner(ctx context.Context, newOwner string) (string, error) {
	cc, err := caller(ctx)
	if err != nil {
		return "", err
	}
	var owner string
	err = e.execute(ctx, "set_owner", func(cs *callState) error {
		var err error
		owner, err = cs.requireOwnerOrBootstrap(ctx, cc.Caller, newOwner)
		return err
	})
	if err != nil {
		return "", err
	}
	e.log.Info("owner set", zap.String("caller", cc.Caller), zap.String("owner", owner))
	return owner, nil
}

// UpdateFeePercentage changes the owner fee. Owner only.
func (e *Engine) UpdateFeePercentage(ctx context.Context, pct uint64) error {
	cc, err := caller(ctx)
	if err != nil {
		return err
	}
	err = e.execute(ctx, "update_fee", func(cs *callState) error {
		if err := cs.requireOwner(ctx, cc.Caller); err != nil {
			return err
		}
		return cs.setFeePercentage(pct)
	})
	if err == nil {
		e.log.Info("fee percentage updated", zap.Uint64("fee_percentage", pct))
	}
	return err
}

// GetBounty returns a bounty by id.
func (e *Engine) GetBounty(ctx context.Context, id uint64) (*models.Bounty, error) {
	var b *models.Bounty
	err := e.view(func(cs *callState) error {
		var err error
		b, err = cs.bounty(ctx, id)
		return err
	})
	return b, err
}

func (e *Engine) scan(ctx context.Context, match func(*models.Bounty) bool) ([]*models.Bounty, error) {
	var out []*models.Bounty
	err := e.view(func(cs *callState) error {
		var err error
		out, err = cs.scanBounties(ctx, match)
		return err
	})
	return out, err
}

// GetAllBounties returns every bounty in id order.
func (e *Engine) GetAllBounties(ctx context.Context) ([]*models.Bounty, error) {
	return e.scan(ctx, nil)
}

// GetBountiesByParticipant returns the bounties identity joined.
func (e *Engine) GetBountiesByParticipant(ctx context.Context, identity string) ([]*models.Bounty, error) {
	return e.scan(ctx, byParticipant(identity))
}

// GetBountiesByCreator returns the bounties identity created.
func (e *Engine) GetBountiesByCreator(ctx context.Context, identity string) ([]*models.Bounty, error) {
	return e.scan(ctx, byCreator(identity))
}

// FeeInfo returns the owner and the fee percentage in effect.
func (e *Engine) FeeInfo(ctx context.Context) (models.FeeInfo, error) {
	var info models.FeeInfo
	err := e.view(func(cs *callState) error {
		owner, err := cs.owner(ctx)
		if err != nil {
			return err
		}
		pct, err := cs.feePercentage(ctx)
		if err != nil {
			return err
		}
		info = models.FeeInfo{Owner: owner, FeePercentage: pct}
		return nil
	})
	return info, err
}

// Count returns the number of bounties ever created.
func (e *Engine) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.view(func(cs *callState) error {
		var err error
		n, err = cs.bountyCount(ctx)
		return err
	})
	return n, err
}

// PendingTransfers returns up to limit undelivered outbox entries in id order.
func (e *Engine) PendingTransfers(ctx context.Context, limit int) ([]models.PendingTransfer, error) {
	var out []models.PendingTransfer
	err := e.view(func(cs *callState) error {
		var err error
		out, err = cs.pendingTransfers(ctx, limit)
		return err
	})
	return out, err
}

// MarkDelivered records that the ledger applied transfer id.
func (e *Engine) MarkDelivered(ctx context.Context, id uint64) (*models.PendingTransfer, error) {
	var t *models.PendingTransfer
	err := e.execute(ctx, "mark_delivered", func(cs *callState) error {
		var err error
		t, err = cs.markDelivered(ctx, id)
		return err
	})
	return t, err
}

// RecordFailure records a failed delivery of transfer id.
func (e *Engine) RecordFailure(ctx context.Context, id uint64, reason string, maxAttempts int) (*models.PendingTransfer, error) {
	var t *models.PendingTransfer
	err := e.execute(ctx, "record_failure", func(cs *callState) error {
		var err error
		t, err = cs.recordFailure(ctx, id, reason, maxAttempts)
		return err
	})
	return t, err
}

// GetTransfer returns an outbox entry.
func (e *Engine) GetTransfer(ctx context.Context, id uint64) (*models.PendingTransfer, error) {
	var t *models.PendingTransfer
	err := e.view(func(cs *callState) error {
		var err error
		t, err = cs.transfer(ctx, id)
		return err
	})
	return t, err
}

// ListTransfers returns the outbox entries of a bounty in id order.
func (e *Engine) ListTransfers(ctx context.Context, bountyID uint64) ([]models.PendingTransfer, error) {
	var out []models.PendingTransfer
	err := e.view(func(cs *callState) error {
		if _, err := cs.bounty(ctx, bountyID); err != nil {
			return err
		}
		var err error
		out, err = cs.bountyTransfers(ctx, bountyID)
		return err
	})
	return out, err
}

// RetryTransfer re-queues a failed transfer. Owner only.
func (e *Engine) RetryTransfer(ctx context.Context, id uint64) (*models.PendingTransfer, error) {
	cc, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	var t *models.PendingTransfer
	err = e.execute(ctx, "retry_transfer", func(cs *callState) error {
		var err error
		t, err = cs.retryTransfer(ctx, cc.Caller, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("transfer re-queued", zap.Uint64("transfer", t.ID), zap.Uint64("retry_of", id))
	return t, nil
}

// Settlement returns the receipt of a finalized bounty.
func (e *Engine) Settlement(ctx context.Context, bountyID uint64) (*models.Settlement, error) {
	var s *models.Settlement
	err := e.view(func(cs *callState) error {
		var err error
		s, err = cs.settlement(ctx, bountyID)
		return err
	})
	return s, err
}
