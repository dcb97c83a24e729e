package escrow

import (
	"context"

	"github.com/pkg/errors"

	"bounty-escrow-system/models"
)

func requireOpen(b *models.Bounty) error {
	if !b.IsActive {
		return errors.Wrapf(ErrBountyClosed, "bounty %d was finalized", b.ID)
	}
	return nil
}

// participate registers caller. It reports false when caller had already
// joined, in which case nothing is written.
func (cs *callState) participate(ctx context.Context, id uint64, caller string) (bool, error) {
	b, err := cs.bounty(ctx, id)
	if err != nil {
		return false, err
	}
	if err := requireOpen(b); err != nil {
		return false, err
	}
	if b.HasParticipant(caller) {
		return false, nil
	}
	b.Participants = append(b.Participants, caller)
	return true, cs.putBounty(b)
}

// finalize closes the bounty with the given winners and queues its payout.
func (cs *callState) finalize(
	ctx context.Context,
	id uint64,
	caller string,
	winners []string,
) (*models.Bounty, []models.PendingTransfer, error) {
	b, err := cs.bounty(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := requireOpen(b); err != nil {
		return nil, nil, err
	}
	if err := requireCreator(caller, b); err != nil {
		return nil, nil, err
	}
	if len(winners) == 0 {
		return nil, nil, errors.Wrap(ErrInvalidInput, "winners must not be empty")
	}
	if len(winners) != len(b.Prizes) {
		return nil, nil, errors.Wrapf(
			ErrPrizeCountMismatch, "%d winners for %d prizes", len(winners), len(b.Prizes),
		)
	}
	for _, w := range winners {
		if !b.HasParticipant(w) {
			return nil, nil, errors.Wrapf(ErrNotAParticipant, "%s", w)
		}
	}

	finalizedAt := cs.now
	b.Winners = append([]string(nil), winners...)
	b.IsActive = false
	b.FinalizedAt = &finalizedAt
	if err := cs.putBounty(b); err != nil {
		return nil, nil, err
	}

	owner, err := cs.owner(ctx)
	if err != nil {
		return nil, nil, err
	}
	pct, err := cs.feePercentage(ctx)
	if err != nil {
		return nil, nil, err
	}
	transfers, err := cs.enqueueTransfers(ctx, b.ID, Distribute(b, owner, pct).Transfers)
	if err != nil {
		return nil, nil, err
	}
	return b, transfers, nil
}
