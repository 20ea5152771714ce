package ports

import (
	"context"

	"livecast/internal/core/domain"
)

type StreamRepository interface {
	Create(ctx context.Context, stream *domain.Stream) error
	GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error)
	Update(ctx context.Context, stream *domain.Stream) error
	Delete(ctx context.Context, id domain.StreamID) error
	ListActive(ctx context.Context) ([]*domain.Stream, error)
}

type ViewerRepository interface {
	Add(ctx context.Context, viewer *domain.Viewer) error
	GetByID(ctx context.Context, id domain.ViewerID) (*domain.Viewer, error)
	Remove(ctx context.Context, id domain.ViewerID) error
	FindByStream(ctx context.Context, streamID domain.StreamID) ([]*domain.Viewer, error)
	Touch(ctx context.Context, id domain.ViewerID) error
}
