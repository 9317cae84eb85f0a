package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceauth/internal/api/handlers"
	"github.com/your-org/faceauth/internal/api/ws"
	"github.com/your-org/faceauth/internal/auth"
	"github.com/your-org/faceauth/internal/face"
	"github.com/your-org/faceauth/internal/storage"
)

type RouterConfig struct {
	APIKey  string
	Service *face.Service
	Store   storage.Store
	Blobs   storage.BlobStore
	Hub     *ws.Hub
	// Checks are extra readiness probes, keyed by name (e.g. "nats").
	Checks map[string]handlers.Pinger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Store, cfg.Blobs)
	for name, p := range cfg.Checks {
		systemH.AddCheck(name, p)
	}
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Face endpoints (no auth; the face itself is the credential)
	faceH := handlers.NewFaceHandler(cfg.Service)
	r.GET("/health", faceH.Health)
	r.POST("/enroll", faceH.Enroll)
	r.POST("/auth", faceH.Authenticate)
	r.POST("/login", faceH.Login)

	// Admin API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	userH := handlers.NewUserHandler(cfg.Service, cfg.Store)
	v1.GET("/users", userH.List)
	v1.GET("/users/:id", userH.Get)
	v1.DELETE("/users/:id", userH.Delete)

	return r
}
