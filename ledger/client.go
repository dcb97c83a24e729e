// Package ledger talks to the external ledger service that actually moves
// funds to a recipient.
package ledger

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"bounty-escrow-system/models"
)

// ErrRejected means the ledger answered but refused the transfer.
var ErrRejected = errors.New("ledger rejected transfer")

// Client posts transfers to {baseURL}/transfers.
type Client struct {
	http *resty.Client
}

type transferRequest struct {
	TransferID uint64        `json:"transfer_id"`
	Recipient  string        `json:"recipient"`
	Amount     models.Amount `json:"amount"`
	Memo       string        `json:"memo"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient returns a ledger client authenticating with token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("X-Service-Token", token).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c}
}

// IdempotencyKey is the key the ledger deduplicates transfer t on.
func IdempotencyKey(t models.PendingTransfer) string {
	return fmt.Sprintf("escrow-transfer-%d", t.ID)
}

// Transfer asks the ledger to apply t. A conflict means the ledger already
// applied it under the same idempotency key, which counts as success.
func (c *Client) Transfer(ctx context.Context, t models.PendingTransfer) error {
	var failure errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", IdempotencyKey(t)).
		SetHeader("X-Request-ID", uuid.NewString()).
		SetBody(transferRequest{
			TransferID: t.ID,
			Recipient:  t.Recipient,
			Amount:     t.Amount,
			Memo:       memo(t),
		}).
		SetError(&failure).
		Post("/transfers")
	if err != nil {
		return errors.Wrapf(err, "post transfer %d", t.ID)
	}

	switch {
	case resp.IsSuccess(), resp.StatusCode() == http.StatusConflict:
		return nil
	case failure.Error != "":
		return errors.Wrapf(ErrRejected, "transfer %d: status %d: %s", t.ID, resp.StatusCode(), failure.Error)
	default:
		return errors.Wrapf(ErrRejected, "transfer %d: status %d", t.ID, resp.StatusCode())
	}
}

func memo(t models.PendingTransfer) string {
	if t.Kind == models.TransferKindFee {
		return fmt.Sprintf("bounty %d platform fee", t.BountyID)
	}
	return fmt.Sprintf("bounty %d prize %d", t.BountyID, t.PrizeIndex)
}
