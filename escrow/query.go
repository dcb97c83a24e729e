package escrow

import (
	"context"

	"github.com/pkg/errors"

	"bounty-escrow-system/models"
)

// scanBounties walks ids 0..count-1 in order and keeps the bounties that
// match. Missing ids are skipped.
func (cs *callState) scanBounties(ctx context.Context, match func(*models.Bounty) bool) ([]*models.Bounty, error) {
	count, err := cs.bountyCount(ctx)
	if err != nil {
		return nil, err
	}
	out := []*models.Bounty{}
	for id := uint64(0); id < count; id++ {
		b, err := cs.bounty(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if match == nil || match(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func byParticipant(identity string) func(*models.Bounty) bool {
	return func(b *models.Bounty) bool { return b.HasParticipant(identity) }
}

func byCreator(identity string) func(*models.Bounty) bool {
	return func(b *models.Bounty) bool { return b.Creator == identity }
}
