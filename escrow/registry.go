package escrow

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"bounty-escrow-system/models"
	"bounty-escrow-system/store"
)

const (
	_metaNS            = "meta"
	_bountyNS          = "bounty"
	_transferNS        = "transfer"
	_bountyTransfersNS = "bounty_transfers"
)

var (
	_bountyNextKey   = []byte("bounty.next")
	_ownerKey        = []byte("owner")
	_feeKey          = []byte("fee")
	_transferNextKey = []byte("transfer.next")
	_transferHeadKey = []byte("transfer.head")
)

// callState is the view one entry point has of persisted state. Every write
// goes to the working set and becomes visible to others only on commit.
type callState struct {
	ws         *store.WorkingSet
	defaultFee uint64
	now        time.Time
}

func idKey(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}

// readUint reads a decimal counter, returning def when the key is absent.
func (cs *callState) readUint(ctx context.Context, ns string, key []byte, def uint64) (uint64, error) {
	v, err := cs.ws.Get(ctx, ns, key)
	if errors.Cause(err) == store.ErrNotExist {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(store.ErrIO, "corrupt counter %s/%s: %v", ns, key, err)
	}
	return n, nil
}

func (cs *callState) writeUint(ns string, key []byte, n uint64) {
	cs.ws.Put(ns, key, []byte(strconv.FormatUint(n, 10)))
}

func (cs *callState) readJSON(ctx context.Context, ns string, key []byte, v interface{}) error {
	data, err := cs.ws.Get(ctx, ns, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(store.ErrIO, "corrupt record %s/%s: %v", ns, key, err)
	}
	return nil
}

func (cs *callState) writeJSON(ns string, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode record %s/%s", ns, key)
	}
	cs.ws.Put(ns, key, data)
	return nil
}

// createBounty validates prizes against the attached payment and stores a new
// open bounty under the next id.
func (cs *callState) createBounty(
	ctx context.Context,
	prizes []models.Amount,
	payment models.Amount,
	creator string,
) (uint64, error) {
	if len(prizes) == 0 {
		return 0, errors.Wrap(ErrInvalidInput, "prizes must not be empty")
	}
	for i, p := range prizes {
		if p.Sign() <= 0 {
			return 0, errors.Wrapf(ErrInvalidInput, "prize %d must be positive, got %s", i, p)
		}
	}
	total := models.SumAmounts(prizes)
	if payment.Cmp(total) != 0 {
		return 0, errors.Wrapf(ErrPaymentMismatch, "attached %s, prizes sum to %s", payment, total)
	}

	id, err := cs.readUint(ctx, _metaNS, _bountyNextKey, 0)
	if err != nil {
		return 0, err
	}
	b := &models.Bounty{
		ID:           id,
		Creator:      creator,
		Prizes:       append([]models.Amount(nil), prizes...),
		TotalPrize:   total,
		Participants: []string{},
		Winners:      []string{},
		IsActive:     true,
		CreatedAt:    cs.now,
	}
	if err := cs.putBounty(b); err != nil {
		return 0, err
	}
	cs.writeUint(_metaNS, _bountyNextKey, id+1)
	return id, nil
}

func (cs *callState) bounty(ctx context.Context, id uint64) (*models.Bounty, error) {
	var b models.Bounty
	err := cs.readJSON(ctx, _bountyNS, idKey(id), &b)
	if errors.Cause(err) == store.ErrNotExist {
		return nil, errors.Wrapf(ErrNotFound, "bounty %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (cs *callState) putBounty(b *models.Bounty) error {
	return cs.writeJSON(_bountyNS, idKey(b.ID), b)
}

// bountyCount is the number of bounties ever created.
func (cs *callState) bountyCount(ctx context.Context) (uint64, error) {
	return cs.readUint(ctx, _metaNS, _bountyNextKey, 0)
}
