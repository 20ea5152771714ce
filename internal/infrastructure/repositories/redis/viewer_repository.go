package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisViewerRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisViewerRepository(client *redis.Client) ports.ViewerRepository {
	return &RedisViewerRepository{
		client: client,
		prefix: "livecast:viewer:",
	}
}

func (r *RedisViewerRepository) viewerKey(id domain.ViewerID) string {
	return r.prefix + string(id)
}

func (r *RedisViewerRepository) streamViewersKey(streamID domain.StreamID) string {
	return fmt.Sprintf("livecast:stream:%s:viewers", streamID)
}

func (r *RedisViewerRepository) Add(ctx context.Context, viewer *domain.Viewer) error {
	data, err := json.Marshal(viewer)
	if err != nil {
		return fmt.Errorf("failed to marshal viewer: %w", err)
	}

	key := r.viewerKey(viewer.ID)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set viewer in Redis: %w", err)
	}

	if viewer.StreamID != "" {
		streamKey := r.streamViewersKey(viewer.StreamID)
		if err := r.client.SAdd(ctx, streamKey, string(viewer.ID)).Err(); err != nil {
			return fmt.Errorf("failed to add viewer to stream set: %w", err)
		}
	}

	return nil
}

func (r *RedisViewerRepository) GetByID(ctx context.Context, id domain.ViewerID) (*domain.Viewer, error) {
	key := r.viewerKey(id)
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, domain.ErrViewerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get viewer from Redis: %w", err)
	}

	var viewer domain.Viewer
	if err := json.Unmarshal([]byte(data), &viewer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal viewer: %w", err)
	}

	return &viewer, nil
}

func (r *RedisViewerRepository) Remove(ctx context.Context, id domain.ViewerID) error {
	viewer, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if viewer.StreamID != "" {
		streamKey := r.streamViewersKey(viewer.StreamID)
		if err := r.client.SRem(ctx, streamKey, string(id)).Err(); err != nil {
			return fmt.Errorf("failed to remove viewer from stream set: %w", err)
		}
	}

	if err := r.client.Del(ctx, r.viewerKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete viewer from Redis: %w", err)
	}

	return nil
}

func (r *RedisViewerRepository) FindByStream(ctx context.Context, streamID domain.StreamID) ([]*domain.Viewer, error) {
	streamKey := r.streamViewersKey(streamID)
	viewerIDs, err := r.client.SMembers(ctx, streamKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stream viewers from Redis: %w", err)
	}

	var viewers []*domain.Viewer
	for _, viewerIDStr := range viewerIDs {
		viewer, err := r.GetByID(ctx, domain.ViewerID(viewerIDStr))
		if err != nil {
			// Skip viewers that no longer exist
			continue
		}
		viewers = append(viewers, viewer)
	}

	return viewers, nil
}

func (r *RedisViewerRepository) Touch(ctx context.Context, id domain.ViewerID) error {
	viewer, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	viewer.LastSeen = time.Now()
	return r.Add(ctx, viewer)
}
