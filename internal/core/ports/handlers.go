package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	CreateStream(c *gin.Context)
	GetStream(c *gin.Context)
	EndStream(c *gin.Context)
	ListStreams(c *gin.Context)
	GetStreamStats(c *gin.Context)
}
