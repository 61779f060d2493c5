package ledger

import (
	"context"
	"fmt"
	"sync"

	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
)

// memoryEvent is one appended event, retained for test assertions.
type memoryEvent struct {
	Sequence  int64
	EventType EventType
	Payload   []byte
}

// InMemory implements Ledger in process for tests and dev mode. Sequences
// start at 0 and increase by one per append, matching the Kafka offset
// semantics. Fault injection hooks let tests exercise the partial-failure
// paths of bulk minting.
type InMemory struct {
	mu      sync.Mutex
	topics  map[string][]memoryEvent
	nextSeq map[string]int64

	failNext   error
	failEveryN int // when >0, every Nth append fails
	appends    int
}

// NewInMemory constructs an empty in-memory ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		topics:  make(map[string][]memoryEvent),
		nextSeq: make(map[string]int64),
	}
}

func (l *InMemory) CreateTopic(_ context.Context, batchID id.BatchID) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return "", err
	}

	topic := TopicID(batchID)
	if _, exists := l.topics[topic]; exists {
		return "", fmt.Errorf("topic %s already exists: %w", topic, sentinel.ErrConflict)
	}
	l.topics[topic] = nil
	l.nextSeq[topic] = 0
	return topic, nil
}

func (l *InMemory) AppendEvent(_ context.Context, topicID string, eventType EventType, payload []byte) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return 0, err
	}
	l.appends++
	if l.failEveryN > 0 && l.appends%l.failEveryN == 0 {
		return 0, fmt.Errorf("injected append failure: %w", sentinel.ErrUnavailable)
	}

	if _, exists := l.topics[topicID]; !exists {
		return 0, fmt.Errorf("topic %s not found: %w", topicID, sentinel.ErrNotFound)
	}

	seq := l.nextSeq[topicID]
	l.nextSeq[topicID] = seq + 1
	l.topics[topicID] = append(l.topics[topicID], memoryEvent{
		Sequence:  seq,
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
	})
	return seq, nil
}

// FailNext makes the next CreateTopic or AppendEvent call return err.
func (l *InMemory) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// FailEveryN makes every Nth append fail with ErrUnavailable. Zero disables
// injection.
func (l *InMemory) FailEveryN(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failEveryN = n
	l.appends = 0
}

// EventCount returns how many events a topic holds.
func (l *InMemory) EventCount(topicID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.topics[topicID])
}

// Sequences returns the assigned sequence numbers for a topic, filtered by
// event type when eventType is non-empty.
func (l *InMemory) Sequences(topicID string, eventType EventType) []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var seqs []int64
	for _, ev := range l.topics[topicID] {
		if eventType != "" && ev.EventType != eventType {
			continue
		}
		seqs = append(seqs, ev.Sequence)
	}
	return seqs
}

var _ Ledger = (*InMemory)(nil)
