package verifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"pharmatrace/internal/registry/models"
	id "pharmatrace/pkg/domain"
)

// RecordCache is a Redis-backed read cache for batch and unit records on the
// verification hot path. Records are immutable in their identity fields, so a
// short TTL only bounds memory, not correctness. Cache failures degrade to
// store reads; they are logged and otherwise ignored.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRecordCache constructs a cache over the given Redis client.
func NewRecordCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RecordCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RecordCache{client: client, ttl: ttl, logger: logger}
}

func (c *RecordCache) GetBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, bool) {
	raw, err := c.client.Get(ctx, batchKey(batchID)).Bytes()
	if err != nil {
		return nil, false
	}
	var batch models.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		c.logger.WarnContext(ctx, "corrupt cached batch record dropped", "batch_id", batchID, "error", err)
		c.client.Del(ctx, batchKey(batchID))
		return nil, false
	}
	return &batch, true
}

func (c *RecordCache) PutBatch(ctx context.Context, batch *models.Batch) {
	raw, err := json.Marshal(batch)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, batchKey(batch.ID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "failed to cache batch record", "batch_id", batch.ID, "error", err)
	}
}

func (c *RecordCache) GetUnit(ctx context.Context, serial id.SerialNumber) (*models.Unit, bool) {
	raw, err := c.client.Get(ctx, unitKey(serial)).Bytes()
	if err != nil {
		return nil, false
	}
	var unit models.Unit
	if err := json.Unmarshal(raw, &unit); err != nil {
		c.logger.WarnContext(ctx, "corrupt cached unit record dropped", "serial_number", serial, "error", err)
		c.client.Del(ctx, unitKey(serial))
		return nil, false
	}
	return &unit, true
}

func (c *RecordCache) PutUnit(ctx context.Context, unit *models.Unit) {
	raw, err := json.Marshal(unit)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, unitKey(unit.SerialNumber), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "failed to cache unit record", "serial_number", unit.SerialNumber, "error", err)
	}
}

func batchKey(batchID id.BatchID) string    { return "verify:batch:" + string(batchID) }
func unitKey(serial id.SerialNumber) string { return "verify:unit:" + string(serial) }
