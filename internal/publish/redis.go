package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/fleaprice/internal/models"
)

// Redis mirrors each run into hashes:
//
//	<prefix>averages    item -> history average
//	<prefix>latest      item -> price from this run
//	<prefix>base        item -> base price
//	<prefix>updated_at  RFC 3339 finish time of the run
//	<prefix>run_id      id of the run
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server. Keys are written under prefix.
func NewRedis(addr, password string, db int, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) Name() string { return "redis" }

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Publish replaces all hashes in one MULTI/EXEC so readers never see a mix of runs.
func (r *Redis) Publish(ctx context.Context, report *models.RunReport) error {
	updated := report.FinishedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		replaceHash(ctx, pipe, r.prefix+"averages", report.Averages)
		replaceHash(ctx, pipe, r.prefix+"latest", report.Snapshot.Prices)
		replaceHash(ctx, pipe, r.prefix+"base", report.BasePrices)
		pipe.Set(ctx, r.prefix+"updated_at", updated.UTC().Format(time.RFC3339), 0)
		pipe.Set(ctx, r.prefix+"run_id", report.RunID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func replaceHash(ctx context.Context, pipe redis.Pipeliner, key string, values map[string]int64) {
	pipe.Del(ctx, key)
	if len(values) == 0 {
		return
	}
	fields := make(map[string]interface{}, len(values))
	for id, v := range values {
		fields[id] = v
	}
	pipe.HSet(ctx, key, fields)
}
