// Package api contains the boundary endpoints this core owns: signed
// upload URL issuance, session sync triggering and bucket lookups. The
// full tenant CRUD API lives in another service.
package api

import (
	"time"

	"webora/storage-sync/internal"
	"webora/storage-sync/middleware"

	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

type API struct {
	Deps   *internal.Deps
	Router *gin.Engine
}

func NewRouter(d *internal.Deps) *API {
	a := &API{Deps: d}

	makeLogger()

	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true

	main := router.Group("/api")
	{
		// HEAD /api/heartbeat		-> Used to check if the server is alive
		main.HEAD("/heartbeat", a.Heartbeat)
	}

	buckets := main.Group("/buckets", middleware.BodySizeLimiter(1<<20), middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: 20,
		Burst:             40,
	}))
	{
		// GET /api/buckets/:bucketUuid					-> Returns the public view of a bucket
		buckets.GET("/:bucketUuid", a.BucketFetch)

		// GET /api/buckets/:bucketUuid/files				-> Lists the bucket's active files
		buckets.GET("/:bucketUuid/files", a.BucketFiles)

		// DELETE /api/buckets/:bucketUuid				-> Marks a bucket for deletion
		buckets.DELETE("/:bucketUuid", a.BucketMarkForDeletion)

		// POST /api/buckets/:bucketUuid/sessions/:sessionUuid/upload-url -> Records an upload request, returns a signed URL
		buckets.POST("/:bucketUuid/sessions/:sessionUuid/upload-url", a.SessionUploadURL)

		// POST /api/buckets/:bucketUuid/sessions/:sessionUuid/sync	-> Ends a session and propagates its content
		buckets.POST("/:bucketUuid/sessions/:sessionUuid/sync", a.SessionSync)
	}

	admin := main.Group("/admin")
	{
		// GET /api/admin/buckets/:bucketUuid	-> Operator view including counters and status
		admin.GET("/buckets/:bucketUuid", a.AdminBucketFetch)
	}

	return a
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}
