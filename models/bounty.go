package models

import "time"

// BountyState is the lifecycle state derived from Bounty.IsActive.
type BountyState string

const (
	BountyStateOpen      BountyState = "open"
	BountyStateFinalized BountyState = "finalized"
)

// Bounty locks TotalPrize for a set of positional prizes until the creator
// names the winners.
type Bounty struct {
	ID           uint64     `json:"id"`
	Creator      string     `json:"creator"`
	Prizes       []Amount   `json:"prizes"`
	TotalPrize   Amount     `json:"total_prize"`
	Participants []string   `json:"participants"`
	Winners      []string   `json:"winners"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
}

// State returns open while the bounty accepts participants, finalized after.
func (b *Bounty) State() BountyState {
	if b.IsActive {
		return BountyStateOpen
	}
	return BountyStateFinalized
}

// HasParticipant reports whether id already registered.
func (b *Bounty) HasParticipant(id string) bool {
	for _, p := range b.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// FeeInfo is the process-wide fee configuration. Owner is empty until someone
// claims ownership.
type FeeInfo struct {
	Owner         string `json:"owner"`
	FeePercentage uint64 `json:"fee_percentage"`
}

// Settlement is the receipt archived once every transfer of a finalized
// bounty has been delivered.
type Settlement struct {
	Bounty    *Bounty           `json:"bounty"`
	Transfers []PendingTransfer `json:"transfers"`
	TotalFee  Amount            `json:"total_fee"`
	SettledAt time.Time         `json:"settled_at"`
}
