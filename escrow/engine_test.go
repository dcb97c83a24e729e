package escrow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bounty-escrow-system/models"
	"bounty-escrow-system/store"
)

const (
	_oneUnit  = "1000000000000000000000000"
	_halfUnit = "500000000000000000000000"
)

func amt(t *testing.T, s string) models.Amount {
	t.Helper()
	a, err := models.ParseAmount(s)
	require.NoError(t, err)
	return a
}

func as(caller string) context.Context {
	return WithCallCtx(context.Background(), CallCtx{Caller: caller})
}

func paying(t *testing.T, caller, payment string) context.Context {
	return WithCallCtx(context.Background(), CallCtx{Caller: caller, Payment: amt(t, payment)})
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, store.KVStore) {
	t.Helper()
	kv := store.NewMemKVStore()
	require.NoError(t, kv.Start(context.Background()))
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return clock })}, opts...)
	e, err := NewEngine(kv, opts...)
	require.NoError(t, err)
	return e, kv
}

func TestCreateBountyPayment(t *testing.T) {
	require := require.New(t)
	e, _ := newTestEngine(t)
	prizes := []models.Amount{amt(t, _oneUnit), amt(t, _halfUnit)}

	_, err := e.CreateBounty(paying(t, "carol", "1499999999999999999999999"), prizes)
	require.Equal(ErrPaymentMismatch, errors.Cause(err))
	n, err := e.Count(context.Background())
	require.NoError(err)
	require.Zero(n)

	id, err := e.CreateBounty(paying(t, "carol", "1500000000000000000000000"), prizes)
	require.NoError(err)
	require.Zero(id)
	n, err = e.Count(context.Background())
	require.NoError(err)
	require.EqualValues(1, n)

	id, err = e.CreateBounty(paying(t, "dave", "7"), []models.Amount{models.NewAmount(7)})
	require.NoError(err)
	require.EqualValues(1, id)

	b, err := e.GetBounty(context.Background(), 0)
	require.NoError(err)
	assert.Equal(t, "carol", b.Creator)
	assert.Equal(t, "1500000000000000000000000", b.TotalPrize.String())
	assert.True(t, b.IsActive)
	assert.Empty(t, b.Participants)
	assert.Empty(t, b.Winners)
	assert.Equal(t, models.BountyStateOpen, b.State())
}

func TestCreateBountyInvalidInput(t *testing.T) {
	e, _ := newTestEngine(t)
	for name, prizes := range map[string][]models.Amount{
		"empty":    nil,
		"zero":     {models.NewAmount(5), models.NewAmount(0)},
		"negative": {models.NewAmount(-1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.CreateBounty(paying(t, "carol", "5"), prizes)
			require.Equal(t, ErrInvalidInput, errors.Cause(err))
		})
	}
	n, err := e.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAnonymousCaller(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateBounty(context.Background(), []models.Amount{models.NewAmount(1)})
	require.Equal(t, ErrUnauthorized, errors.Cause(err))
	_, err = e.SetOwner(as(""), "")
	require.Equal(t, ErrUnauthorized, errors.Cause(err))
}

func TestParticipateIdempotent(t *testing.T) {
	require := require.New(t)
	e, _ := newTestEngine(t)
	id, err := e.CreateBounty(paying(t, "carol", "10"), []models.Amount{models.NewAmount(10)})
	require.NoError(err)

	require.NoError(e.Participate(as("alice"), id))
	require.NoError(e.Participate(as("alice"), id))
	require.NoError(e.Participate(as("bob"), id))

	b, err := e.GetBounty(context.Background(), id)
	require.NoError(err)
	require.Equal([]string{"alice", "bob"}, b.Participants)

	err = e.Participate(as("alice"), 42)
	require.Equal(ErrNotFound, errors.Cause(err))
}

func TestFinalizeChecks(t *testing.T) {
	e, _ := newTestEngine(t)
	id, err := e.CreateBounty(paying(t, "carol", "30"), []models.Amount{models.NewAmount(20), models.NewAmount(10)})
	require.NoError(t, err)
	require.NoError(t, e.Participate(as("alice"), id))
	require.NoError(t, e.Participate(as("bob"), id))

	tests := []struct {
		name    string
		caller  string
		id      uint64
		winners []string
		want    error
	}{
		{"unknown bounty", "carol", 9, []string{"alice", "bob"}, ErrNotFound},
		{"not creator", "alice", id, []string{"alice", "bob"}, ErrUnauthorized},
		{"no winners", "carol", id, nil, ErrInvalidInput},
		{"too few winners", "carol", id, []string{"alice"}, ErrPrizeCountMismatch},
		{"too many winners", "carol", id, []string{"alice", "bob", "alice"}, ErrPrizeCountMismatch},
		{"outsider", "carol", id, []string{"alice", "mallory"}, ErrNotAParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Finalize(as(tt.caller), tt.id, tt.winners)
			require.Equal(t, tt.want, errors.Cause(err))
		})
	}

	_, err = e.Finalize(as("carol"), id, []string{"alice", "mallory"})
	assert.Contains(t, err.Error(), "mallory")

	b, err := e.GetBounty(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, b.IsActive)
	assert.Empty(t, b.Winners)
}

func TestFinalizeIsTerminal(t *testing.T) {
	require := require.New(t)
	e, _ := newTestEngine(t)
	id, err := e.CreateBounty(paying(t, "carol", "10"), []models.Amount{models.NewAmount(10)})
	require.NoError(err)
	require.NoError(e.Participate(as("alice"), id))

	res, err := e.Finalize(as("carol"), id, []string{"alice"})
	require.NoError(err)
	require.False(res.Bounty.IsActive)
	require.NotNil(res.Bounty.FinalizedAt)

	_, err = e.Finalize(as("carol"), id, []string{"alice"})
	require.Equal(ErrBountyClosed, errors.Cause(err))
	// closed is reported before the creator check
	_, err = e.Finalize(as("alice"), id, []string{"alice"})
	require.Equal(ErrBountyClosed, errors.Cause(err))
	err = e.Participate(as("bob"), id)
	require.Equal(ErrBountyClosed, errors.Cause(err))

	b, err := e.GetBounty(context.Background(), id)
	require.NoError(err)
	require.Equal(models.BountyStateFinalized, b.State())
	require.Equal([]string{"alice"}, b.Winners)
	require.Equal([]string{"alice"}, b.Participants)
}

func TestSetOwnerBootstrap(t *testing.T) {
	require := require.New(t)
	e, _ := newTestEngine(t)

	// the requested owner is ignored while bootstrapping
	owner, err := e.SetOwner(as("alice"), "bob")
	require.NoError(err)
	require.Equal("alice", owner)

	_, err = e.SetOwner(as("mallory"), "")
	require.Equal(ErrUnauthorized, errors.Cause(err))
	_, err = e.SetOwner(as("mallory"), "mallory")
	require.Equal(ErrUnauthorized, errors.Cause(err))

	owner, err = e.SetOwner(as("alice"), "")
	require.NoError(err)
	require.Equal("alice", owner)

	owner, err = e.SetOwner(as("alice"), "bob")
	require.NoError(err)
	require.Equal("bob", owner)
	_, err = e.SetOwner(as("alice"), "alice")
	require.Equal(ErrUnauthorized, errors.Cause(err))

	info, err := e.FeeInfo(context.Background())
	require.NoError(err)
	require.Equal(models.FeeInfo{Owner: "bob", FeePercentage: DefaultFeePercentage}, info)
}

func TestUpdateFeePercentage(t *testing.T) {
	require := require.New(t)
	e, _ := newTestEngine(t)

	err := e.UpdateFeePercentage(as("alice"), 5)
	require.Equal(ErrOwnerNotSet, errors.Cause(err))

	_, err = e.SetOwner(as("alice"), "")
	require.NoError(err)
	err = e.UpdateFeePercentage(as("bob"), 5)
	require.Equal(ErrUnauthorized, errors.Cause(err))
	err = e.UpdateFeePercentage(as("alice"), 101)
	require.Equal(ErrInvalidInput, errors.Cause(err))

	require.NoError(e.UpdateFeePercentage(as("alice"), 100))
	require.NoError(e.UpdateFeePercentage(as("alice"), 0))
	info, err := e.FeeInfo(context.Background())
	require.NoError(err)
	require.Zero(info.FeePercentage)
}

func TestDefaultFeeOption(t *testing.T) {
	e, _ := newTestEngine(t, WithDefaultFee(7))
	info, err := e.FeeInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.FeeInfo{FeePercentage: 7}, info)

	_, err = NewEngine(store.NewMemKVStore(), WithDefaultFee(101))
	require.Error(t, err)
}

func TestScenarioTwoWinnersWithOwner(t *testing.T) {
	require := require.New(t)
	e, _ := newTestEngine(t)
	_, err := e.SetOwner(as("owner"), "")
	require.NoError(err)

	id, err := e.CreateBounty(
		paying(t, "carol", "1500000000000000000000000"),
		[]models.Amount{amt(t, _oneUnit), amt(t, _halfUnit)},
	)
	require.NoError(err)
	require.Zero(id)
	require.NoError(e.Participate(as("alice"), id))
	require.NoError(e.Participate(as("bob"), id))

	res, err := e.Finalize(as("carol"), id, []string{"alice", "bob"})
	require.NoError(err)
	require.False(res.Bounty.IsActive)
	require.Equal([]string{"alice", "bob"}, res.Bounty.Winners)

	require.Len(res.Transfers, 3)
	want := []struct {
		kind      models.TransferKind
		recipient string
		amount    string
	}{
		{models.TransferKindPrize, "alice", "980000000000000000000000"},
		{models.TransferKindPrize, "bob", "490000000000000000000000"},
		{models.TransferKindFee, "owner", "30000000000000000000000"},
	}
	var total models.Amount
	for i, w := range want {
		tr := res.Transfers[i]
		assert.EqualValues(t, i, tr.ID)
		assert.Equal(t, w.kind, tr.Kind)
		assert.Equal(t, w.recipient, tr.Recipient)
		assert.Equal(t, w.amount, tr.Amount.String())
		assert.Equal(t, models.TransferStatusPending, tr.Status)
		assert.Equal(t, i == len(want)-1, tr.Final)
		total = total.Add(tr.Amount)
	}
	require.Zero(total.Cmp(res.Bounty.TotalPrize))

	listed, err := e.ListTransfers(context.Background(), id)
	require.NoError(err)
	require.Equal(res.Transfers, listed)
}

func TestFinalizeWithoutOwnerSkipsFee(t *testing.T) {
	e, _ := newTestEngine(t)
	id, err := e.CreateBounty(paying(t, "carol", _oneUnit), []models.Amount{amt(t, _oneUnit)})
	require.NoError(t, err)
	require.NoError(t, e.Participate(as("alice"), id))

	res, err := e.Finalize(as("carol"), id, []string{"alice"})
	require.NoError(t, err)
	require.Len(t, res.Transfers, 1)
	assert.Equal(t, _oneUnit, res.Transfers[0].Amount.String())
	assert.True(t, res.Transfers[0].Final)
}

func TestSameWinnerForSeveralPrizes(t *testing.T) {
	e, _ := newTestEngine(t)
	id, err := e.CreateBounty(paying(t, "carol", "300"), []models.Amount{models.NewAmount(200), models.NewAmount(100)})
	require.NoError(t, err)
	require.NoError(t, e.Participate(as("alice"), id))

	res, err := e.Finalize(as("carol"), id, []string{"alice", "alice"})
	require.NoError(t, err)
	require.Len(t, res.Transfers, 2)
	assert.Equal(t, "200", res.Transfers[0].Amount.String())
	assert.Equal(t, "100", res.Transfers[1].Amount.String())
}

func TestQueries(t *testing.T) {
	require := require.New(t)
	e, kv := newTestEngine(t)
	ctx := context.Background()

	all, err := e.GetAllBounties(ctx)
	require.NoError(err)
	require.Empty(all)

	for _, creator := range []string{"carol", "dave", "carol"} {
		_, err := e.CreateBounty(paying(t, creator, "1"), []models.Amount{models.NewAmount(1)})
		require.NoError(err)
	}
	require.NoError(e.Participate(as("alice"), 1))
	require.NoError(e.Participate(as("alice"), 2))

	all, err = e.GetAllBounties(ctx)
	require.NoError(err)
	require.Len(all, 3)
	for i, b := range all {
		require.EqualValues(i, b.ID)
	}

	byCarol, err := e.GetBountiesByCreator(ctx, "carol")
	require.NoError(err)
	require.Len(byCarol, 2)
	require.EqualValues(0, byCarol[0].ID)
	require.EqualValues(2, byCarol[1].ID)

	byAlice, err := e.GetBountiesByParticipant(ctx, "alice")
	require.NoError(err)
	require.Len(byAlice, 2)
	require.EqualValues(1, byAlice[0].ID)

	none, err := e.GetBountiesByParticipant(ctx, "nobody")
	require.NoError(err)
	require.Empty(none)

	// holes in the id range are skipped
	hole := store.NewBatch()
	hole.Delete(_bountyNS, idKey(1))
	require.NoError(kv.Commit(ctx, hole))
	all, err = e.GetAllBounties(ctx)
	require.NoError(err)
	require.Len(all, 2)
	n, err := e.Count(ctx)
	require.NoError(err)
	require.EqualValues(3, n)

	_, err = e.GetBounty(ctx, 1)
	require.Equal(ErrNotFound, errors.Cause(err))
}

// failingKV accepts reads and rejects every commit.
type failingKV struct {
	store.KVStore
}

func (failingKV) Commit(context.Context, *store.Batch) error {
	return errors.Wrap(store.ErrIO, "disk full")
}

func TestFailedCommitLeavesStateUnchanged(t *testing.T) {
	kv := store.NewMemKVStore()
	e, err := NewEngine(failingKV{kv})
	require.NoError(t, err)

	_, err = e.CreateBounty(paying(t, "carol", "1"), []models.Amount{models.NewAmount(1)})
	require.Equal(t, store.ErrIO, errors.Cause(err))
	assert.Equal(t, "Internal", Kind(err))

	n, err := e.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = kv.Get(context.Background(), _bountyNS, idKey(0))
	require.Equal(t, store.ErrNotExist, errors.Cause(err))
}

func TestCancelledCallCommitsNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(paying(t, "carol", "1"))
	cancel()
	_, err := e.CreateBounty(ctx, []models.Amount{models.NewAmount(1)})
	require.Error(t, err)

	n, err := e.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "NotAParticipant", Kind(errors.Wrapf(ErrNotAParticipant, "mallory")))
	assert.Equal(t, "OwnerNotSet", Kind(ErrOwnerNotSet))
	assert.Equal(t, "Internal", Kind(errors.New("boom")))
}

func TestNamespacesDoNotShareKeyPrefix(t *testing.T) {
	namespaces := []string{_metaNS, _bountyNS, _transferNS, _bountyTransfersNS}
	for _, a := range namespaces {
		for _, b := range namespaces {
			if a == b {
				continue
			}
			assert.False(t, strings.HasPrefix(b, a+"."), "%q nests under %q", b, a)
		}
	}
}
