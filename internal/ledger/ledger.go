// Package ledger is the boundary to the append-only event ledger.
//
// Each batch gets a dedicated topic at creation time; every identity-issuing
// event for that batch is appended to its topic and receives the sequence
// number assigned by the ledger. Sequence numbers are strictly increasing per
// topic. Gaps are acceptable (several event types share a batch's topic and
// the same counter); duplicates or decreases are a contract violation the
// engine cannot recover from and are surfaced as sentinel.ErrIntegrity.
package ledger

import (
	"context"

	id "pharmatrace/pkg/domain"
)

// EventType tags an appended ledger event.
type EventType string

const (
	EventBatchCreated   EventType = "BATCH_CREATED"
	EventUnitRegistered EventType = "UNIT_REGISTERED"
)

// Ledger appends events to per-batch topics.
//
// CreateTopic provisions the batch's event stream and must succeed before any
// unit is minted; failures are returned wrapped around sentinel.ErrUnavailable
// so callers can abort batch creation cleanly.
//
// AppendEvent records one event and returns the ledger-assigned sequence
// number. Timeouts and unreachable brokers wrap sentinel.ErrUnavailable;
// non-monotonic sequences wrap sentinel.ErrIntegrity.
type Ledger interface {
	CreateTopic(ctx context.Context, batchID id.BatchID) (string, error)
	AppendEvent(ctx context.Context, topicID string, eventType EventType, payload []byte) (int64, error)
}

// TopicID returns the canonical topic name for a batch's event stream.
func TopicID(batchID id.BatchID) string {
	return "batch." + string(batchID) + ".events"
}
