package escrow

import (
	"github.com/pkg/errors"
)

// Error kinds returned by the engine. Detail is attached with errors.Wrapf so
// callers classify with errors.Cause or errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrPaymentMismatch    = errors.New("payment does not match total prize")
	ErrNotFound           = errors.New("not found")
	ErrBountyClosed       = errors.New("bounty is closed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrOwnerNotSet        = errors.New("owner not set")
	ErrPrizeCountMismatch = errors.New("winner count does not match prize count")
	ErrNotAParticipant    = errors.New("winner is not a participant")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, "InvalidInput"},
	{ErrPaymentMismatch, "PaymentMismatch"},
	{ErrNotFound, "NotFound"},
	{ErrBountyClosed, "BountyClosed"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrOwnerNotSet, "OwnerNotSet"},
	{ErrPrizeCountMismatch, "PrizeCountMismatch"},
	{ErrNotAParticipant, "NotAParticipant"},
}

// Kind names the error kind of err. Errors outside the engine's kinds are
// "Internal"; a nil error is "ok".
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
