package http

import (
	"context"
	"errors"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/auth"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/config"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/core"
)

// Server is the HTTP server together with the WebSocket sessions it has hijacked.
type Server struct {
	*stdhttp.Server
	ws *WSHandler
}

// NewServer builds the HTTP server exposing the WebSocket endpoints and health routes.
func NewServer(hub *core.Hub, resolver *auth.Resolver, cfg *config.Config, logger *zerolog.Logger) *Server {
	ws := NewWSHandler(hub, resolver, cfg.WS, logger)

	// WebSocket upgrades bypass gin: its writer refuses to hijack once the 101 is written.
	mux := stdhttp.NewServeMux()
	mux.Handle("GET /ws", ws)
	mux.Handle("GET /ws/messages/{user_id}", ws)
	mux.Handle("GET /ws/messages/{user_id}/{$}", ws)
	mux.Handle("/", NewRouter(hub, resolver, logger))

	return &Server{
		Server: &stdhttp.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		ws: ws,
	}
}

// Shutdown stops accepting requests and then waits until every WebSocket session has torn down.
// Hijacked connections are invisible to http.Server.Shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	return errors.Join(err, s.ws.Wait(ctx))
}

// NewRouter registers the plain HTTP routes on a fresh gin engine.
func NewRouter(hub *core.Hub, resolver *auth.Resolver, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(hub, logger)

	router.GET("/health", api.Health)
	router.GET("/ping", api.Ping)

	presence := router.Group("/api/presence")
	if resolver.Required() {
		presence.Use(AuthMiddleware(resolver, logger))
	}
	presence.GET("", api.OnlineUsers)
	presence.GET("/:user_id", api.UserPresence)

	return router
}
