package lighter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

func TestPaperClientLifecycle(t *testing.T) {
	client := NewPaperClient(zaptest.NewLogger(t))
	ctx := context.Background()

	hash, err := client.SubmitOrder(ctx, &domain.OrderSubmission{ClientOrderID: "A", ClientOrderIndex: 1})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "0x"))

	_, err = client.SubmitOrder(ctx, &domain.OrderSubmission{ClientOrderID: "B", ClientOrderIndex: 1})
	assert.Error(t, err, "client order index reuse")

	_, err = client.SubmitOrder(ctx, &domain.OrderSubmission{ClientOrderID: "C", ClientOrderIndex: 2})
	require.NoError(t, err)

	state, err := client.QueryOrder(ctx, &domain.OrderRecord{ClientOrderIndex: 1})
	require.NoError(t, err)
	assert.True(t, state.Found)
	assert.Equal(t, domain.OrderStatus_Acknowledged, state.Status)

	_, err = client.CancelOrder(ctx, &domain.CancelSubmission{ClientOrderIndex: 1})
	require.NoError(t, err)
	state, _ = client.QueryOrder(ctx, &domain.OrderRecord{ClientOrderIndex: 1})
	assert.Equal(t, domain.OrderStatus_Cancelled, state.Status)

	_, err = client.CancelOrder(ctx, &domain.CancelSubmission{ClientOrderIndex: 9})
	assert.Error(t, err)

	require.NoError(t, client.CancelAll(ctx, domain.CancelAllScope{}))
	state, _ = client.QueryOrder(ctx, &domain.OrderRecord{ClientOrderIndex: 2})
	assert.Equal(t, domain.OrderStatus_Cancelled, state.Status)

	state, err = client.QueryOrder(ctx, &domain.OrderRecord{ClientOrderIndex: 3})
	require.NoError(t, err)
	assert.False(t, state.Found)
}

func TestPaperClientHonoursContext(t *testing.T) {
	client := NewPaperClient(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SubmitOrder(ctx, &domain.OrderSubmission{ClientOrderIndex: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
