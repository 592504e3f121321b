package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/listing-harvester/pkg/pagination"
	"github.com/redis/go-redis/v9"
)

// pushChunk bounds the number of values per RPUSH command.
const pushChunk = 1000

// RedisSink stores each run as a list of records plus a metadata hash.
type RedisSink struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSink creates a sink on redisClient. A ttl of zero keeps keys forever.
func NewRedisSink(redisClient *redis.Client, prefix string, ttl time.Duration) *RedisSink {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisSink{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Name implements Sink.
func (s *RedisSink) Name() string {
	return "redis"
}

// Key returns the key set used for b.
func (s *RedisSink) Key(b Batch) RunKey {
	return RunKey{Prefix: s.prefix, RunID: b.RunID, Partial: b.Partial}
}

// Export implements Sink. The previous records of the same run are replaced
// inside one MULTI/EXEC transaction.
func (s *RedisSink) Export(ctx context.Context, b Batch) (err error) {
	defer func() { observe(s.Name(), len(b.Records), err) }()

	if err := b.validate(); err != nil {
		return err
	}

	key := s.Key(b)
	failed, err := json.Marshal(metaOf(b).FailedPages)
	if err != nil {
		return fmt.Errorf("marshal failed pages: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key.Records(), key.Meta())

		for start := 0; start < len(b.Records); start += pushChunk {
			end := min(start+pushChunk, len(b.Records))
			values := make([]interface{}, 0, end-start)
			for _, rec := range b.Records[start:end] {
				values = append(values, []byte(rec))
			}
			pipe.RPush(ctx, key.Records(), values...)
		}

		pipe.HSet(ctx, key.Meta(), map[string]interface{}{
			"run_id":       b.RunID,
			"endpoint":     b.Endpoint,
			"status":       b.Status(),
			"records":      len(b.Records),
			"last_page":    b.LastPage,
			"total_items":  b.TotalItems,
			"failed_pages": string(failed),
			"started_at":   b.StartedAt.UTC().Format(time.RFC3339Nano),
			"duration_ms":  b.Duration.Milliseconds(),
		})

		if s.ttl > 0 {
			if len(b.Records) > 0 {
				pipe.Expire(ctx, key.Records(), s.ttl)
			}
			pipe.Expire(ctx, key.Meta(), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis export: %w", err)
	}
	return nil
}

// Records loads the exported records of a run.
func (s *RedisSink) Records(ctx context.Context, key RunKey) ([]pagination.Record, error) {
	values, err := s.redis.LRange(ctx, key.Records(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	records := make([]pagination.Record, len(values))
	for i, v := range values {
		records[i] = pagination.Record(v)
	}
	return records, nil
}

// Meta loads the metadata hash of a run.
func (s *RedisSink) Meta(ctx context.Context, key RunKey) (map[string]string, error) {
	meta, err := s.redis.HGetAll(ctx, key.Meta()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	return meta, nil
}

// RecordCount returns the number of exported records of a run.
func (s *RedisSink) RecordCount(ctx context.Context, key RunKey) (int, error) {
	meta, err := s.Meta(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(meta["records"])
	if err != nil {
		return 0, fmt.Errorf("run %s has no meta: %w", key, err)
	}
	return n, nil
}
