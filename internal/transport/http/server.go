package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatnest-server/internal/auth"
	"github.com/vovakirdan/chatnest-server/internal/blob"
	"github.com/vovakirdan/chatnest-server/internal/config"
	"github.com/vovakirdan/chatnest-server/internal/core"
	"github.com/vovakirdan/chatnest-server/internal/store"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Hub    core.Hub
	Auth   *auth.Service
	Store  store.Store
	Blobs  *blob.Store
	Router MessageRouter
}

// NewServer builds the HTTP server: the /ws endpoint plus the REST glue
// around it.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware(cfg.CORS.Origin))

	var origins []string
	if cfg.CORS.Origin != "" {
		origins = []string{cfg.CORS.Origin}
	}
	ws := NewWSHandler(deps.Hub, deps.Auth, deps.Router, WSConfig{
		OriginPatterns:    origins,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		HeartbeatTimeout:  cfg.Heartbeat.Timeout,
		RequireAuth:       cfg.Auth.Require,
		RateLimit: RateLimitConfig{
			PerSecond: cfg.RateLimit.PerSecond,
			Burst:     cfg.RateLimit.Burst,
		},
	}, logger)

	r.GET("/health", healthHandler)
	r.GET("/ws", gin.WrapH(ws))
	r.StaticFS("/uploads", deps.Blobs.HTTPFileSystem())

	apiHandlers := NewAPIHandlers(deps.Auth, cfg.JWT.TTL, logger)
	userHandlers := NewUserHandlers(deps.Store, deps.Hub, logger)
	messageHandlers := NewMessageHandlers(deps.Store, deps.Blobs, cfg.MaxMessageBytes, logger)

	api := r.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)
	api.POST("/logout", apiHandlers.Logout)

	authed := api.Group("")
	authed.Use(AuthMiddleware(deps.Auth, logger))
	authed.GET("/profile", userHandlers.Profile)
	authed.GET("/people", userHandlers.People)
	authed.GET("/online", userHandlers.Online)
	authed.GET("/messages/:userId", messageHandlers.History)
	authed.POST("/upload", messageHandlers.Upload)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
