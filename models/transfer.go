package models

import "time"

// TransferKind tells a winner payout apart from the aggregated owner fee.
type TransferKind string

const (
	TransferKindPrize TransferKind = "prize"
	TransferKindFee   TransferKind = "fee"
)

// TransferStatus tracks an outbox entry through delivery.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusDelivered TransferStatus = "delivered"
	TransferStatusFailed    TransferStatus = "failed"
)

// PendingTransfer is a value transfer the engine owes to a recipient. Entries
// are written to the outbox in the same commit that finalizes the bounty and
// are delivered to the ledger later, in ID order.
type PendingTransfer struct {
	ID         uint64         `json:"id"`
	BountyID   uint64         `json:"bounty_id"`
	Kind       TransferKind   `json:"kind"`
	PrizeIndex int            `json:"prize_index"` // -1 for the fee transfer
	Recipient  string         `json:"recipient"`
	Amount     Amount         `json:"amount"`
	Final      bool           `json:"final"` // last transfer emitted by a finalize
	RetryOf    uint64         `json:"retry_of,omitempty"`
	Status     TransferStatus `json:"status"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"last_error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Done reports whether the dispatcher is finished with the entry.
func (t *PendingTransfer) Done() bool {
	return t.Status == TransferStatusDelivered || t.Status == TransferStatusFailed
}
