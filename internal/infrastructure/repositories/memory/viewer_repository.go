package memory

import (
	"context"
	"sync"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
)

type MemoryViewerRepository struct {
	viewers map[domain.ViewerID]*domain.Viewer
	mu      sync.RWMutex
}

func NewMemoryViewerRepository() ports.ViewerRepository {
	return &MemoryViewerRepository{
		viewers: make(map[domain.ViewerID]*domain.Viewer),
	}
}

func (r *MemoryViewerRepository) Add(ctx context.Context, viewer *domain.Viewer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.viewers[viewer.ID] = viewer
	return nil
}

func (r *MemoryViewerRepository) GetByID(ctx context.Context, id domain.ViewerID) (*domain.Viewer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	viewer, exists := r.viewers[id]
	if !exists {
		return nil, domain.ErrViewerNotFound
	}

	return viewer, nil
}

func (r *MemoryViewerRepository) Remove(ctx context.Context, id domain.ViewerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.viewers[id]; !exists {
		return domain.ErrViewerNotFound
	}

	delete(r.viewers, id)
	return nil
}

func (r *MemoryViewerRepository) FindByStream(ctx context.Context, streamID domain.StreamID) ([]*domain.Viewer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var viewers []*domain.Viewer
	for _, viewer := range r.viewers {
		if viewer.StreamID == streamID {
			viewers = append(viewers, viewer)
		}
	}

	return viewers, nil
}

func (r *MemoryViewerRepository) Touch(ctx context.Context, id domain.ViewerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	viewer, exists := r.viewers[id]
	if !exists {
		return domain.ErrViewerNotFound
	}

	viewer.LastSeen = time.Now()
	return nil
}
