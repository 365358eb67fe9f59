package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
)

type RouterConfig struct {
	SearchHandler   *SearchHandler
	BackfillHandler *BackfillHandler
	StatusHandler   *StatusHandler

	CORSOrigins []string
	Logger      *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(CORS(cfg.CORSOrigins))

	r.GET("/healthcheck", HealthCheck)

	api := r.Group("/api")
	{
		if cfg.SearchHandler != nil {
			api.GET("/programs/search", cfg.SearchHandler.Search)
		}
		if cfg.BackfillHandler != nil {
			api.POST("/embeddings/backfill", cfg.BackfillHandler.Run)
		}
		if cfg.StatusHandler != nil {
			api.GET("/status", cfg.StatusHandler.Status)
		}
	}

	return r
}
