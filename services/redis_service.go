package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hookrunner-server/models"
)

const (
	LastFailureKeyPrefix = "last_failure:"
	LastFailureTTL       = 10 * time.Minute
)

// RedisService keeps the most recent failure per URI, TTL-bounded. This is
// the only execution history the host retains.
type RedisService struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisService(host string, port int, log *zap.Logger) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
	})
	return &RedisService{client: client, log: log}
}

// RecordFailure stores the failure record for its URI. Best-effort: a cache
// write problem must never affect the dispatch outcome.
func (r *RedisService) RecordFailure(ctx context.Context, rec models.FailureRecord) {
	xray.Capture(ctx, "Redis.Set", func(ctx1 context.Context) error {
		jsonData, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		key := LastFailureKeyPrefix + rec.URI
		err = r.client.Set(ctx, key, jsonData, LastFailureTTL).Err()
		if err != nil {
			r.log.Warn("failed to record last failure",
				zap.String("uri", rec.URI),
				zap.Error(err))
		}

		// Add metadata to subsegment
		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", key)
			seg.AddMetadata("redis.operation", "SET")
		}

		return err
	})
}

// LastFailure retrieves the most recent failure record for a URI, or nil if
// none is cached.
func (r *RedisService) LastFailure(ctx context.Context, uri string) (*models.FailureRecord, error) {
	var result *models.FailureRecord
	var finalErr error

	xray.Capture(ctx, "Redis.Get", func(ctx1 context.Context) error {
		key := LastFailureKeyPrefix + uri
		jsonData, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			result = nil
			finalErr = nil
			return nil
		}
		if err != nil {
			finalErr = err
			return err
		}

		var rec models.FailureRecord
		if err := json.Unmarshal([]byte(jsonData), &rec); err != nil {
			finalErr = err
			return err
		}
		result = &rec
		finalErr = nil

		// Add metadata to subsegment
		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", key)
			seg.AddMetadata("redis.operation", "GET")
		}

		return nil
	})

	return result, finalErr
}

// Ping checks Redis connection
func (r *RedisService) Ping(ctx context.Context) error {
	var err error
	xray.Capture(ctx, "Redis.Ping", func(ctx1 context.Context) error {
		err = r.client.Ping(ctx).Err()

		// Add metadata to subsegment
		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.operation", "PING")
		}

		return err
	})
	return err
}
