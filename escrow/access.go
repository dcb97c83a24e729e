package escrow

import (
	"context"

	"github.com/pkg/errors"

	"bounty-escrow-system/models"
	"bounty-escrow-system/store"
)

// owner returns the current owner, or "" when nobody has claimed ownership.
func (cs *callState) owner(ctx context.Context) (string, error) {
	v, err := cs.ws.Get(ctx, _metaNS, _ownerKey)
	if errors.Cause(err) == store.ErrNotExist {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// requireOwnerOrBootstrap lets the first caller claim ownership. After that
// only the owner passes, and a non-empty requested identity takes over.
func (cs *callState) requireOwnerOrBootstrap(ctx context.Context, caller, requested string) (string, error) {
	current, err := cs.owner(ctx)
	if err != nil {
		return "", err
	}
	if current == "" {
		cs.ws.Put(_metaNS, _ownerKey, []byte(caller))
		return caller, nil
	}
	if caller != current {
		return "", errors.Wrapf(ErrUnauthorized, "%s is not the owner", caller)
	}
	if requested != "" && requested != current {
		cs.ws.Put(_metaNS, _ownerKey, []byte(requested))
		return requested, nil
	}
	return current, nil
}

func (cs *callState) requireOwner(ctx context.Context, caller string) error {
	current, err := cs.owner(ctx)
	if err != nil {
		return err
	}
	if current == "" {
		return ErrOwnerNotSet
	}
	if caller != current {
		return errors.Wrapf(ErrUnauthorized, "%s is not the owner", caller)
	}
	return nil
}

func requireCreator(caller string, b *models.Bounty) error {
	if caller != b.Creator {
		return errors.Wrapf(ErrUnauthorized, "%s is not the creator of bounty %d", caller, b.ID)
	}
	return nil
}
