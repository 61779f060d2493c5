//go:build integration

package ledger_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmatrace/internal/ledger"
	"pharmatrace/pkg/testutil/containers"
)

func newKafkaLedger(t *testing.T) *ledger.Kafka {
	t.Helper()
	broker := containers.NewRedpandaContainer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	k, err := ledger.NewKafka(ctx, broker.Brokers, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(k.Close)
	return k
}

func TestKafkaLedgerAssignsIncreasingSequences(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	k := newKafkaLedger(t)
	ctx := context.Background()

	topicID, err := k.CreateTopic(ctx, "BATCH-1001")
	require.NoError(t, err)
	assert.Equal(t, "batch.BATCH-1001.events", topicID)

	seq, err := k.AppendEvent(ctx, topicID, ledger.EventBatchCreated, []byte(`{"batch_id":"BATCH-1001"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq, "first append takes the topic's first offset")

	for want := int64(1); want <= 3; want++ {
		seq, err := k.AppendEvent(ctx, topicID, ledger.EventUnitRegistered, []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}
}

func TestKafkaLedgerTopicsAreIndependent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	k := newKafkaLedger(t)
	ctx := context.Background()

	topicA, err := k.CreateTopic(ctx, "BATCH-1001")
	require.NoError(t, err)
	topicB, err := k.CreateTopic(ctx, "BATCH-1002")
	require.NoError(t, err)

	_, err = k.AppendEvent(ctx, topicA, ledger.EventBatchCreated, []byte(`{}`))
	require.NoError(t, err)
	_, err = k.AppendEvent(ctx, topicA, ledger.EventUnitRegistered, []byte(`{}`))
	require.NoError(t, err)

	seq, err := k.AppendEvent(ctx, topicB, ledger.EventBatchCreated, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq, "each batch topic counts from zero")
}
