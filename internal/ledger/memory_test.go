package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmatrace/pkg/platform/sentinel"
)

func TestInMemoryCreateTopic(t *testing.T) {
	l := NewInMemory()

	topic, err := l.CreateTopic(context.Background(), "BATCH-1001")
	require.NoError(t, err)
	assert.Equal(t, "batch.BATCH-1001.events", topic)

	_, err = l.CreateTopic(context.Background(), "BATCH-1001")
	assert.ErrorIs(t, err, sentinel.ErrConflict, "topic assignment happens exactly once")
}

func TestInMemoryAppendAssignsIncreasingSequences(t *testing.T) {
	l := NewInMemory()
	topic, err := l.CreateTopic(context.Background(), "BATCH-1001")
	require.NoError(t, err)

	var seqs []int64
	for i := 0; i < 5; i++ {
		seq, err := l.AppendEvent(context.Background(), topic, EventUnitRegistered, []byte("u"))
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}

	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1], "sequences must be strictly increasing")
	}
}

func TestInMemorySharedTopicLeavesGapsBetweenUnitEvents(t *testing.T) {
	l := NewInMemory()
	topic, err := l.CreateTopic(context.Background(), "BATCH-1001")
	require.NoError(t, err)

	// One counter per batch topic: a BATCH_CREATED event interleaved between
	// unit registrations consumes a sequence number, leaving a gap in the
	// unit-event sequence. Gaps are within contract.
	_, err = l.AppendEvent(context.Background(), topic, EventUnitRegistered, []byte("u1"))
	require.NoError(t, err)
	_, err = l.AppendEvent(context.Background(), topic, EventBatchCreated, []byte("b"))
	require.NoError(t, err)
	_, err = l.AppendEvent(context.Background(), topic, EventUnitRegistered, []byte("u2"))
	require.NoError(t, err)

	unitSeqs := l.Sequences(topic, EventUnitRegistered)
	require.Len(t, unitSeqs, 2)
	assert.Equal(t, []int64{0, 2}, unitSeqs)
}

func TestInMemoryAppendUnknownTopic(t *testing.T) {
	l := NewInMemory()
	_, err := l.AppendEvent(context.Background(), "batch.NOPE.events", EventUnitRegistered, nil)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryFaultInjection(t *testing.T) {
	l := NewInMemory()
	topic, err := l.CreateTopic(context.Background(), "BATCH-1001")
	require.NoError(t, err)

	l.FailNext(sentinel.ErrUnavailable)
	_, err = l.AppendEvent(context.Background(), topic, EventUnitRegistered, nil)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)

	// Next call succeeds again.
	_, err = l.AppendEvent(context.Background(), topic, EventUnitRegistered, nil)
	assert.NoError(t, err)
}
