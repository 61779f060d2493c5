package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	ledgermetrics "pharmatrace/internal/ledger/metrics"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/circuit"
	"pharmatrace/pkg/platform/sentinel"
)

// Kafka implements Ledger on top of a Kafka-compatible log. Every batch owns
// a single-partition topic; the produced record's offset is the ledger
// sequence number, which Kafka guarantees to be strictly increasing within a
// partition.
//
// A consecutive-failure circuit breaker sits in front of the producer so a
// dead broker fails fast instead of stalling every mint request on its
// timeout.
type Kafka struct {
	client  *kgo.Client
	admin   *kadm.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *ledgermetrics.Metrics

	mu      sync.Mutex
	lastSeq map[string]int64 // per-topic monotonicity guard
}

// KafkaOption configures a Kafka ledger.
type KafkaOption func(*Kafka)

// WithMetrics attaches ledger metrics.
func WithMetrics(m *ledgermetrics.Metrics) KafkaOption {
	return func(k *Kafka) { k.metrics = m }
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(k *Kafka) {
		if b != nil {
			k.breaker = b
		}
	}
}

// NewKafka connects to the given seed brokers and returns a Kafka-backed
// ledger. The returned error wraps sentinel.ErrUnavailable when the brokers
// cannot be reached.
func NewKafka(ctx context.Context, seedBrokers []string, logger *slog.Logger, opts ...KafkaOption) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(seedBrokers...),
		kgo.ProducerLinger(0),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger client: %v: %w", err, sentinel.ErrUnavailable)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger ping: %v: %w", err, sentinel.ErrUnavailable)
	}

	k := &Kafka{
		client:  client,
		admin:   kadm.NewClient(client),
		breaker: circuit.New("ledger", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:  logger,
		lastSeq: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Close releases the underlying client.
func (k *Kafka) Close() {
	k.client.Close()
}

// CreateTopic provisions the batch's dedicated single-partition topic. The
// topic must exist before any unit is minted; an already-existing topic is a
// conflict because topic assignment happens exactly once, at batch creation.
func (k *Kafka) CreateTopic(ctx context.Context, batchID id.BatchID) (string, error) {
	topic := TopicID(batchID)

	resp, err := k.admin.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return "", fmt.Errorf("create topic %s: %v: %w", topic, err, sentinel.ErrUnavailable)
	}
	res, ok := resp[topic]
	if !ok {
		return "", fmt.Errorf("create topic %s: no response: %w", topic, sentinel.ErrUnavailable)
	}
	if res.Err != nil {
		return "", fmt.Errorf("create topic %s: %v: %w", topic, res.Err, sentinel.ErrUnavailable)
	}

	if k.metrics != nil {
		k.metrics.IncrementTopicsCreated()
	}
	k.logger.InfoContext(ctx, "ledger topic created", "topic", topic, "batch_id", batchID)
	return topic, nil
}

// AppendEvent produces one event to the batch topic and returns the record
// offset as the ledger sequence number.
func (k *Kafka) AppendEvent(ctx context.Context, topicID string, eventType EventType, payload []byte) (int64, error) {
	if k.breaker.IsOpen() {
		k.recordFailure(eventType)
		return 0, fmt.Errorf("ledger circuit open: %w", sentinel.ErrUnavailable)
	}

	record := &kgo.Record{
		Topic: topicID,
		Key:   []byte(eventType),
		Value: payload,
	}
	res, err := k.client.ProduceSync(ctx, record).First()
	if err != nil {
		k.recordFailure(eventType)
		_, change := k.breaker.RecordFailure()
		if change.Opened {
			k.logger.WarnContext(ctx, "ledger circuit opened", "topic", topicID, "error", err)
		}
		k.setBreakerGauge()
		return 0, fmt.Errorf("append %s to %s: %v: %w", eventType, topicID, err, sentinel.ErrUnavailable)
	}

	_, change := k.breaker.RecordSuccess()
	if change.Closed {
		k.logger.InfoContext(ctx, "ledger circuit closed", "topic", topicID)
	}
	k.setBreakerGauge()

	seq := res.Offset
	if err := k.checkMonotonic(topicID, seq); err != nil {
		return 0, err
	}

	if k.metrics != nil {
		k.metrics.IncrementEventsAppended(string(eventType))
	}
	return seq, nil
}

// checkMonotonic enforces the strictly-increasing-per-topic contract. A
// duplicate or decreasing sequence means the ledger (or its configuration)
// is broken in a way verification semantics cannot survive.
func (k *Kafka) checkMonotonic(topicID string, seq int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if last, seen := k.lastSeq[topicID]; seen && seq <= last {
		return fmt.Errorf("ledger returned sequence %d after %d for topic %s: %w",
			seq, last, topicID, sentinel.ErrIntegrity)
	}
	k.lastSeq[topicID] = seq
	return nil
}

func (k *Kafka) recordFailure(eventType EventType) {
	if k.metrics != nil {
		k.metrics.IncrementAppendFailures(string(eventType))
	}
}

func (k *Kafka) setBreakerGauge() {
	if k.metrics != nil {
		k.metrics.SetBreakerOpen(k.breaker.IsOpen())
	}
}

var _ Ledger = (*Kafka)(nil)
