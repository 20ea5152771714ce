package services

import (
	"context"
	"fmt"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/pkg/utils"
)

type streamService struct {
	streamRepo     ports.StreamRepository
	viewerRepo     ports.ViewerRepository
	metricsService *MetricsService
}

func NewStreamService(
	streamRepo ports.StreamRepository,
	viewerRepo ports.ViewerRepository,
	metricsService *MetricsService,
) ports.StreamService {
	return &streamService{
		streamRepo:     streamRepo,
		viewerRepo:     viewerRepo,
		metricsService: metricsService,
	}
}

func (s *streamService) CreateStream(ctx context.Context, name string, broadcaster domain.BroadcasterID, maxViewers int) (*domain.Stream, error) {
	stream := &domain.Stream{
		ID:          domain.StreamID(utils.GenerateStreamID()),
		Name:        name,
		Broadcaster: broadcaster,
		Active:      true,
		CreatedAt:   time.Now(),
		MaxViewers:  maxViewers,
	}

	if err := s.streamRepo.Create(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	s.metricsService.RecordStreamCreated(stream.ID)
	return stream, nil
}

func (s *streamService) GetStream(ctx context.Context, streamID domain.StreamID) (*domain.Stream, error) {
	return s.streamRepo.GetByID(ctx, streamID)
}

func (s *streamService) ListStreams(ctx context.Context) ([]*domain.Stream, error) {
	return s.streamRepo.ListActive(ctx)
}

func (s *streamService) EndStream(ctx context.Context, streamID domain.StreamID) error {
	stream, err := s.streamRepo.GetByID(ctx, streamID)
	if err != nil {
		return err
	}

	stream.Active = false
	stream.EndedAt = time.Now()
	if err := s.streamRepo.Update(ctx, stream); err != nil {
		return fmt.Errorf("failed to end stream: %w", err)
	}

	// Viewer registry entries die with the stream.
	viewers, err := s.viewerRepo.FindByStream(ctx, streamID)
	if err == nil {
		for _, viewer := range viewers {
			s.viewerRepo.Remove(ctx, viewer.ID)
		}
	}

	s.metricsService.RecordStreamEnded(streamID)
	return nil
}

// RegisterViewerJoin records a join notification. The count moves on the
// notification itself, not on negotiation success.
func (s *streamService) RegisterViewerJoin(ctx context.Context, streamID domain.StreamID, viewerID domain.ViewerID) error {
	stream, err := s.streamRepo.GetByID(ctx, streamID)
	if err != nil {
		return err
	}
	if !stream.Active {
		return domain.ErrStreamEnded
	}

	if stream.MaxViewers > 0 {
		current, err := s.viewerRepo.FindByStream(ctx, streamID)
		if err != nil {
			return err
		}
		if len(current) >= stream.MaxViewers {
			return domain.ErrStreamFull
		}
	}

	viewer := &domain.Viewer{
		ID:       viewerID,
		StreamID: streamID,
		JoinedAt: time.Now(),
		LastSeen: time.Now(),
	}
	if err := s.viewerRepo.Add(ctx, viewer); err != nil {
		return fmt.Errorf("failed to add viewer: %w", err)
	}

	s.metricsService.RecordViewerJoin(streamID)
	return nil
}

// RegisterViewerLeave removes the viewer. Removing an id that already left is
// a no-op; the count never goes negative.
func (s *streamService) RegisterViewerLeave(ctx context.Context, streamID domain.StreamID, viewerID domain.ViewerID) error {
	if err := s.viewerRepo.Remove(ctx, viewerID); err != nil {
		if err == domain.ErrViewerNotFound {
			return nil
		}
		return err
	}

	s.metricsService.RecordViewerLeave(streamID)
	return nil
}

func (s *streamService) GetStreamStats(ctx context.Context, streamID domain.StreamID) (*domain.StreamMetrics, error) {
	stream, err := s.streamRepo.GetByID(ctx, streamID)
	if err != nil {
		return nil, err
	}

	metrics := s.metricsService.GetStreamMetrics(streamID)
	metrics.BroadcasterLive = stream.Active
	if stream.Active {
		metrics.Uptime = time.Since(stream.CreatedAt)
	} else if !stream.EndedAt.IsZero() {
		metrics.Uptime = stream.EndedAt.Sub(stream.CreatedAt)
	}
	return metrics, nil
}
