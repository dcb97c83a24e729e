package escrow

import (
	"context"

	"github.com/pkg/errors"

	"bounty-escrow-system/models"
)

// MaxFeePercentage bounds the owner fee.
const MaxFeePercentage = 100

// DefaultFeePercentage applies until the owner stores another value.
const DefaultFeePercentage = 2

// Distribution is the payout plan of a finalized bounty. Transfers are in
// winner order with the aggregated fee last. IDs are assigned by the outbox.
type Distribution struct {
	Transfers []models.PendingTransfer
	TotalFee  models.Amount
}

// Distribute splits every prize between its winner and the owner. Each fee is
// truncated on its own, so the owner may get slightly less than pct of the
// total. An empty owner means no fee is withheld at all.
func Distribute(b *models.Bounty, owner string, pct uint64) Distribution {
	var d Distribution
	for i, winner := range b.Winners {
		prize := b.Prizes[i]
		var fee models.Amount
		if owner != "" {
			fee = prize.Percent(pct)
		}
		d.TotalFee = d.TotalFee.Add(fee)
		d.Transfers = append(d.Transfers, models.PendingTransfer{
			BountyID:   b.ID,
			Kind:       models.TransferKindPrize,
			PrizeIndex: i,
			Recipient:  winner,
			Amount:     prize.Sub(fee),
			Status:     models.TransferStatusPending,
		})
	}
	if d.TotalFee.Sign() > 0 {
		d.Transfers = append(d.Transfers, models.PendingTransfer{
			BountyID:   b.ID,
			Kind:       models.TransferKindFee,
			PrizeIndex: -1,
			Recipient:  owner,
			Amount:     d.TotalFee,
			Status:     models.TransferStatusPending,
		})
	}
	if n := len(d.Transfers); n > 0 {
		d.Transfers[n-1].Final = true
	}
	return d
}

func (cs *callState) feePercentage(ctx context.Context) (uint64, error) {
	return cs.readUint(ctx, _metaNS, _feeKey, cs.defaultFee)
}

func (cs *callState) setFeePercentage(pct uint64) error {
	if pct > MaxFeePercentage {
		return errors.Wrapf(ErrInvalidInput, "fee percentage %d out of [0, %d]", pct, MaxFeePercentage)
	}
	cs.writeUint(_metaNS, _feeKey, pct)
	return nil
}
