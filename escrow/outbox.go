package escrow

import (
	"context"

	"github.com/pkg/errors"

	"bounty-escrow-system/models"
	"bounty-escrow-system/store"
)

// The outbox keeps every transfer the engine owes under a dense id. Entries
// before transfer.head are all delivered or failed.

// enqueueTransfers assigns ids to ts and stores them as pending.
func (cs *callState) enqueueTransfers(
	ctx context.Context,
	bountyID uint64,
	ts []models.PendingTransfer,
) ([]models.PendingTransfer, error) {
	next, err := cs.readUint(ctx, _metaNS, _transferNextKey, 0)
	if err != nil {
		return nil, err
	}
	ids, err := cs.bountyTransferIDs(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingTransfer, 0, len(ts))
	for _, t := range ts {
		t.ID = next
		t.Status = models.TransferStatusPending
		t.CreatedAt = cs.now
		t.UpdatedAt = cs.now
		if err := cs.putTransfer(&t); err != nil {
			return nil, err
		}
		ids = append(ids, t.ID)
		out = append(out, t)
		next++
	}
	cs.writeUint(_metaNS, _transferNextKey, next)
	if err := cs.writeJSON(_bountyTransfersNS, idKey(bountyID), ids); err != nil {
		return nil, err
	}
	return out, nil
}

func (cs *callState) transfer(ctx context.Context, id uint64) (*models.PendingTransfer, error) {
	var t models.PendingTransfer
	err := cs.readJSON(ctx, _transferNS, idKey(id), &t)
	if errors.Cause(err) == store.ErrNotExist {
		return nil, errors.Wrapf(ErrNotFound, "transfer %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (cs *callState) putTransfer(t *models.PendingTransfer) error {
	return cs.writeJSON(_transferNS, idKey(t.ID), t)
}

func (cs *callState) bountyTransferIDs(ctx context.Context, bountyID uint64) ([]uint64, error) {
	var ids []uint64
	err := cs.readJSON(ctx, _bountyTransfersNS, idKey(bountyID), &ids)
	if errors.Cause(err) == store.ErrNotExist {
		return []uint64{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (cs *callState) bountyTransfers(ctx context.Context, bountyID uint64) ([]models.PendingTransfer, error) {
	ids, err := cs.bountyTransferIDs(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingTransfer, 0, len(ids))
	for _, id := range ids {
		t, err := cs.transfer(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// pendingTransfers returns up to limit undelivered entries in id order.
func (cs *callState) pendingTransfers(ctx context.Context, limit int) ([]models.PendingTransfer, error) {
	head, err := cs.readUint(ctx, _metaNS, _transferHeadKey, 0)
	if err != nil {
		return nil, err
	}
	next, err := cs.readUint(ctx, _metaNS, _transferNextKey, 0)
	if err != nil {
		return nil, err
	}
	out := []models.PendingTransfer{}
	for id := head; id < next && len(out) < limit; id++ {
		t, err := cs.transfer(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !t.Done() {
			out = append(out, *t)
		}
	}
	return out, nil
}

// advanceHead moves transfer.head past every leading finished entry.
func (cs *callState) advanceHead(ctx context.Context) error {
	head, err := cs.readUint(ctx, _metaNS, _transferHeadKey, 0)
	if err != nil {
		return err
	}
	next, err := cs.readUint(ctx, _metaNS, _transferNextKey, 0)
	if err != nil {
		return err
	}
	start := head
	for ; head < next; head++ {
		t, err := cs.transfer(ctx, head)
		if err != nil {
			return err
		}
		if !t.Done() {
			break
		}
	}
	if head != start {
		cs.writeUint(_metaNS, _transferHeadKey, head)
	}
	return nil
}

func (cs *callState) markDelivered(ctx context.Context, id uint64) (*models.PendingTransfer, error) {
	t, err := cs.transfer(ctx, id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case models.TransferStatusDelivered:
		return t, nil
	case models.TransferStatusFailed:
		return nil, errors.Wrapf(ErrInvalidInput, "transfer %d already failed", id)
	}
	t.Status = models.TransferStatusDelivered
	t.Attempts++
	t.LastError = ""
	t.UpdatedAt = cs.now
	if err := cs.putTransfer(t); err != nil {
		return nil, err
	}
	return t, cs.advanceHead(ctx)
}

// recordFailure counts a failed delivery. The entry is marked failed once it
// reaches maxAttempts.
func (cs *callState) recordFailure(
	ctx context.Context,
	id uint64,
	reason string,
	maxAttempts int,
) (*models.PendingTransfer, error) {
	t, err := cs.transfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Done() {
		return nil, errors.Wrapf(ErrInvalidInput, "transfer %d is already %s", id, t.Status)
	}
	t.Attempts++
	t.LastError = reason
	t.UpdatedAt = cs.now
	if maxAttempts > 0 && t.Attempts >= maxAttempts {
		t.Status = models.TransferStatusFailed
	}
	if err := cs.putTransfer(t); err != nil {
		return nil, err
	}
	return t, cs.advanceHead(ctx)
}

// retryTransfer re-issues a failed transfer as a new pending entry.
func (cs *callState) retryTransfer(ctx context.Context, caller string, id uint64) (*models.PendingTransfer, error) {
	if err := cs.requireOwner(ctx, caller); err != nil {
		return nil, err
	}
	t, err := cs.transfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TransferStatusFailed {
		return nil, errors.Wrapf(ErrInvalidInput, "transfer %d is %s, only failed transfers can be retried", id, t.Status)
	}
	retry := models.PendingTransfer{
		BountyID:   t.BountyID,
		Kind:       t.Kind,
		PrizeIndex: t.PrizeIndex,
		Recipient:  t.Recipient,
		Amount:     t.Amount,
		RetryOf:    t.ID,
	}
	out, err := cs.enqueueTransfers(ctx, t.BountyID, []models.PendingTransfer{retry})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// settlement assembles the receipt of a finalized bounty.
func (cs *callState) settlement(ctx context.Context, bountyID uint64) (*models.Settlement, error) {
	b, err := cs.bounty(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	if b.IsActive {
		return nil, errors.Wrapf(ErrInvalidInput, "bounty %d is still open", bountyID)
	}
	ts, err := cs.bountyTransfers(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	var fee models.Amount
	for _, t := range ts {
		if t.Kind == models.TransferKindFee && t.RetryOf == 0 {
			fee = fee.Add(t.Amount)
		}
	}
	return &models.Settlement{
		Bounty:    b,
		Transfers: ts,
		TotalFee:  fee,
		SettledAt: cs.now,
	}, nil
}
