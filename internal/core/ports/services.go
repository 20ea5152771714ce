package ports

import (
	"context"

	"livecast/internal/core/domain"
)

type StreamService interface {
	CreateStream(ctx context.Context, name string, broadcaster domain.BroadcasterID, maxViewers int) (*domain.Stream, error)
	GetStream(ctx context.Context, streamID domain.StreamID) (*domain.Stream, error)
	EndStream(ctx context.Context, streamID domain.StreamID) error
	ListStreams(ctx context.Context) ([]*domain.Stream, error)
	RegisterViewerJoin(ctx context.Context, streamID domain.StreamID, viewerID domain.ViewerID) error
	RegisterViewerLeave(ctx context.Context, streamID domain.StreamID, viewerID domain.ViewerID) error
	GetStreamStats(ctx context.Context, streamID domain.StreamID) (*domain.StreamMetrics, error)
}
