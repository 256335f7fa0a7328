package chain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_ReserveCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := NewFake()
	f.AddModel(1, common.HexToAddress("0x01"), "QmQAModelBasicQuestions", big.NewInt(1000))

	sink := make(chan *PaymentRequested, 1)
	sub, err := f.SubscribePaymentRequests(ctx, sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	res, err := f.Reserve(ctx, big.NewInt(1), 60, big.NewInt(60_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RequestID.Int64())

	select {
	case ev := <-sink:
		assert.Equal(t, res.RequestID, ev.RequestID)
		assert.Equal(t, int64(60), ev.Minutes.Int64())
	case <-time.After(time.Second):
		t.Fatal("expected an InferenceRequested event")
	}

	_, err = f.Commit(ctx, res.RequestID)
	require.NoError(t, err)

	_, err = f.Commit(ctx, res.RequestID)
	rev, ok := IsRevert(err)
	require.True(t, ok)
	assert.Equal(t, "Already fulfilled", rev.Reason)
	assert.Equal(t, 1, f.Commits(res.RequestID))

	status, err := f.RequestStatus(ctx, res.RequestID)
	require.NoError(t, err)
	assert.True(t, status.Fulfilled)
}

func TestFake_ReserveRejectsUnderpayment(t *testing.T) {
	t.Parallel()

	f := NewFake()
	f.AddModel(1, common.HexToAddress("0x01"), "cid", big.NewInt(1000))

	_, err := f.Reserve(context.Background(), big.NewInt(1), 2, big.NewInt(1999))
	_, ok := IsRevert(err)
	assert.True(t, ok)
}

func TestFake_RegisterAndPrice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := NewFake()
	next, err := f.NextModelID(ctx)
	require.NoError(t, err)

	id, _, err := f.RegisterModel(ctx, "cid", big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, next.String(), id.String())

	_, err = f.UpdatePrice(ctx, id, big.NewInt(9))
	require.NoError(t, err)

	price, err := f.ResolvePrice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(9), price.Int64())

	_, err = f.ResolvePrice(ctx, big.NewInt(99))
	assert.ErrorIs(t, err, ErrModelNotOnChain)
}

func TestFake_Nodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := NewFake()
	node := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	ok, _ := f.IsApproved(ctx, node)
	assert.False(t, ok)

	_, err := f.AddNode(ctx, node)
	require.NoError(t, err)
	ok, _ = f.IsApproved(ctx, node)
	assert.True(t, ok)

	_, err = f.RemoveNode(ctx, node)
	require.NoError(t, err)
	ok, _ = f.IsApproved(ctx, node)
	assert.False(t, ok)
}
