package router

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/mahidalhan/axon/internal/handlers"
	"github.com/mahidalhan/axon/internal/observability"
	"go.uber.org/zap"
)

// Handlers groups the route handlers. Scores is nil when no database is
// configured; its routes are then not registered.
type Handlers struct {
	Realtime *handlers.RealtimeHandler
	Sessions *handlers.SessionHandler
	Scores   *handlers.ScoresHandler
}

type Options struct {
	// RateLimit is the per-client budget per minute of the expensive
	// endpoints (connect, analyze). Zero disables limiting.
	RateLimit int
	Metrics   *observability.Metrics
}

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       "Too many requests. Try again later.",
		"retry_after": time.Until(info.ResetTime).Round(time.Second).String(),
	})
}

func Setup(log *zap.Logger, h Handlers, opts Options) *gin.Engine {
	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.GinMiddleware())
	}
	router.Use(SecureHeaders())
	router.Use(CORS())

	limiter := func(c *gin.Context) { c.Next() }
	if opts.RateLimit > 0 {
		store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Minute,
			Limit: uint(opts.RateLimit),
		})
		limiter = ratelimit.RateLimiter(store, &ratelimit.Options{
			ErrorHandler: errorHandler,
			KeyFunc:      keyFunc,
		})
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	api := router.Group("/api")

	if h.Realtime != nil {
		muse := api.Group("/muse")
		{
			muse.GET("/discover", h.Realtime.Discover)
			muse.POST("/connect", limiter, h.Realtime.Connect)
			muse.GET("/connections", h.Realtime.List)
			muse.POST("/:id/disconnect", h.Realtime.Disconnect)
			muse.GET("/:id/status", h.Realtime.Status)
			muse.GET("/:id/lri/current", h.Realtime.CurrentLRI)
			muse.GET("/:id/bandpower/current", h.Realtime.CurrentBandPower)
			muse.GET("/:id/ws/lri", h.Realtime.LRIStream)
			muse.GET("/:id/ws/bandpower", h.Realtime.BandPowerStream)
		}
	}

	if h.Sessions != nil {
		sessions := api.Group("/sessions")
		{
			sessions.POST("/analyze", limiter, h.Sessions.Analyze)
			sessions.GET("", h.Sessions.List)
			sessions.GET("/:id", h.Sessions.Get)
		}
	}

	if h.Scores != nil {
		api.GET("/lri/current", h.Scores.LatestLRI)
		api.GET("/lri/recent", h.Scores.RecentLRI)
		api.GET("/dnos/:date", h.Scores.DNOS)
		api.GET("/brain-score/current", h.Scores.CurrentBrainScore)
		api.GET("/sleep/recent", h.Scores.RecentSleep)
		api.POST("/sleep", h.Scores.SaveSleep)
		api.POST("/exercise", h.Scores.SaveExercise)
		api.POST("/rollup/:date", limiter, h.Scores.Rollup)
	}

	return router
}
