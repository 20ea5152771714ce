package http

import (
	"net/http"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/pkg/cache"
	"livecast/pkg/errors"
	"livecast/pkg/validation"

	"github.com/gin-gonic/gin"
)

const streamListCacheKey = "streams:list"

type StreamHandler struct {
	streamService ports.StreamService
	listCache     *cache.Cache
	listCacheTTL  time.Duration
}

func NewStreamHandler(streamService ports.StreamService, listCache *cache.Cache) *StreamHandler {
	return &StreamHandler{
		streamService: streamService,
		listCache:     listCache,
		listCacheTTL:  2 * time.Second,
	}
}

func (h *StreamHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/streams", h.CreateStream)
		api.GET("/streams", h.ListStreams)
		api.GET("/streams/:id", h.GetStream)
		api.DELETE("/streams/:id", h.EndStream)
		api.GET("/streams/:id/stats", h.GetStreamStats)
	}
}

func (h *StreamHandler) CreateStream(c *gin.Context) {
	var req struct {
		Name        string               `json:"name" binding:"required,min=3,max=100"`
		Broadcaster domain.BroadcasterID `json:"broadcaster" binding:"required"`
		MaxViewers  int                  `json:"max_viewers" binding:"min=0,max=10000"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	stream, err := h.streamService.CreateStream(c.Request.Context(), req.Name, req.Broadcaster, req.MaxViewers)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.listCache != nil {
		h.listCache.Delete(streamListCacheKey)
	}

	c.JSON(http.StatusCreated, gin.H{
		"stream": stream,
	})
}

func (h *StreamHandler) GetStream(c *gin.Context) {
	streamID := domain.StreamID(c.Param("id"))
	if err := validation.ValidateStreamID(string(streamID)); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	stream, err := h.streamService.GetStream(c.Request.Context(), streamID)
	if err != nil {
		if err == domain.ErrStreamNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Stream not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stream": stream,
	})
}

func (h *StreamHandler) EndStream(c *gin.Context) {
	streamID := domain.StreamID(c.Param("id"))

	if err := h.streamService.EndStream(c.Request.Context(), streamID); err != nil {
		if err == domain.ErrStreamNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Stream not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.listCache != nil {
		h.listCache.Delete(streamListCacheKey)
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ended",
	})
}

func (h *StreamHandler) ListStreams(c *gin.Context) {
	if h.listCache != nil {
		if cached, ok := h.listCache.Get(streamListCacheKey); ok {
			streams := cached.([]*domain.Stream)
			c.JSON(http.StatusOK, gin.H{
				"streams": streams,
				"count":   len(streams),
				"cached":  true,
			})
			return
		}
	}

	streams, err := h.streamService.ListStreams(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.listCache != nil {
		h.listCache.SetWithTTL(streamListCacheKey, streams, h.listCacheTTL)
	}

	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
		"count":   len(streams),
	})
}

func (h *StreamHandler) GetStreamStats(c *gin.Context) {
	streamID := domain.StreamID(c.Param("id"))

	stats, err := h.streamService.GetStreamStats(c.Request.Context(), streamID)
	if err != nil {
		if err == domain.ErrStreamNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Stream not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stream_id":        stats.StreamID,
		"viewer_count":     stats.ViewerCount,
		"total_joins":      stats.TotalJoins,
		"total_leaves":     stats.TotalLeaves,
		"broadcaster_live": stats.BroadcasterLive,
		"uptime_seconds":   int(stats.Uptime.Seconds()),
	})
}
