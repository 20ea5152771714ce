package services

import (
	"sync"

	"livecast/internal/core/domain"
)

// MetricsService keeps per-stream join/leave bookkeeping. The viewer count is
// optimistic (join notifications, not confirmed media) and floored at zero.
type MetricsService struct {
	mu sync.RWMutex

	viewerCount map[domain.StreamID]int
	totalJoins  map[domain.StreamID]int
	totalLeaves map[domain.StreamID]int
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		viewerCount: make(map[domain.StreamID]int),
		totalJoins:  make(map[domain.StreamID]int),
		totalLeaves: make(map[domain.StreamID]int),
	}
}

func (m *MetricsService) RecordStreamCreated(streamID domain.StreamID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewerCount[streamID] = 0
}

func (m *MetricsService) RecordStreamEnded(streamID domain.StreamID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.viewerCount, streamID)
	delete(m.totalJoins, streamID)
	delete(m.totalLeaves, streamID)
}

func (m *MetricsService) RecordViewerJoin(streamID domain.StreamID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewerCount[streamID]++
	m.totalJoins[streamID]++
}

func (m *MetricsService) RecordViewerLeave(streamID domain.StreamID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewerCount[streamID] > 0 {
		m.viewerCount[streamID]--
	}
	m.totalLeaves[streamID]++
}

func (m *MetricsService) GetStreamMetrics(streamID domain.StreamID) *domain.StreamMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &domain.StreamMetrics{
		StreamID:    streamID,
		ViewerCount: m.viewerCount[streamID],
		TotalJoins:  m.totalJoins[streamID],
		TotalLeaves: m.totalLeaves[streamID],
	}
}
