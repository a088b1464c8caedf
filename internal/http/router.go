// Package httpapi wires the status API transport (Gin) to the rescue
// board, middleware, and route handlers. The API is read-mostly: it
// exposes the board, the recently-closed cache and the local archive,
// and lets an operator trigger a full resync. Case mutation stays with
// the chat-driven board.
//
// Middleware order: tracing first, then correlation IDs, structured
// logging, panic recovery, metrics, compression, CORS.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mfreire/go-rescue-board/internal/config"
	"github.com/mfreire/go-rescue-board/internal/http/handlers"
	"github.com/mfreire/go-rescue-board/internal/http/middleware"
)

// RegisterRoutes attaches all middleware and endpoints to the engine.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB); the API accepts no large bodies.
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics endpoint (board collectors register globally)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression for the JSON listings
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 8) CORS posture (allow all when none configured: dashboards only read)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:   []string{"X-Request-ID", "Content-Length"},
			MaxAge:          12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Status API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/cases", h.ListCases)
		api.GET("/cases/recent", h.ListRecent)
		api.GET("/cases/:id", h.GetCase)
		api.GET("/board", h.BoardStatus)
		api.POST("/board/sync", h.TriggerSync)
		api.GET("/archive", h.ListArchive)
	}
}

// limitBody caps the request body size using http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
