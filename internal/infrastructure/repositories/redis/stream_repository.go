package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisStreamRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisStreamRepository(client *redis.Client) ports.StreamRepository {
	return &RedisStreamRepository{
		client: client,
		prefix: "livecast:stream:",
	}
}

func (r *RedisStreamRepository) streamKey(id domain.StreamID) string {
	return r.prefix + string(id)
}

func (r *RedisStreamRepository) activeStreamsKey() string {
	return r.prefix + "active"
}

func (r *RedisStreamRepository) Create(ctx context.Context, stream *domain.Stream) error {
	data, err := json.Marshal(stream)
	if err != nil {
		return fmt.Errorf("failed to marshal stream: %w", err)
	}

	key := r.streamKey(stream.ID)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set stream in Redis: %w", err)
	}

	if stream.Active {
		if err := r.client.SAdd(ctx, r.activeStreamsKey(), string(stream.ID)).Err(); err != nil {
			return fmt.Errorf("failed to add stream to active set: %w", err)
		}
	}

	return nil
}

func (r *RedisStreamRepository) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	key := r.streamKey(id)
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, domain.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream from Redis: %w", err)
	}

	var stream domain.Stream
	if err := json.Unmarshal([]byte(data), &stream); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream: %w", err)
	}

	return &stream, nil
}

func (r *RedisStreamRepository) Update(ctx context.Context, stream *domain.Stream) error {
	if _, err := r.GetByID(ctx, stream.ID); err != nil {
		return err
	}

	data, err := json.Marshal(stream)
	if err != nil {
		return fmt.Errorf("failed to marshal stream: %w", err)
	}

	key := r.streamKey(stream.ID)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update stream in Redis: %w", err)
	}

	activeKey := r.activeStreamsKey()
	if stream.Active {
		if err := r.client.SAdd(ctx, activeKey, string(stream.ID)).Err(); err != nil {
			return fmt.Errorf("failed to add stream to active set: %w", err)
		}
	} else {
		if err := r.client.SRem(ctx, activeKey, string(stream.ID)).Err(); err != nil {
			return fmt.Errorf("failed to remove stream from active set: %w", err)
		}
	}

	return nil
}

func (r *RedisStreamRepository) Delete(ctx context.Context, id domain.StreamID) error {
	if err := r.client.SRem(ctx, r.activeStreamsKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove stream from active set: %w", err)
	}

	if err := r.client.Del(ctx, r.streamKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete stream from Redis: %w", err)
	}

	return nil
}

func (r *RedisStreamRepository) ListActive(ctx context.Context) ([]*domain.Stream, error) {
	streamIDs, err := r.client.SMembers(ctx, r.activeStreamsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active streams from Redis: %w", err)
	}

	var streams []*domain.Stream
	for _, streamIDStr := range streamIDs {
		stream, err := r.GetByID(ctx, domain.StreamID(streamIDStr))
		if err != nil {
			// Skip streams that no longer exist
			continue
		}
		if stream.Active {
			streams = append(streams, stream)
		}
	}

	return streams, nil
}
