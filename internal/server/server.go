package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/config"
	"github.com/thereayou/marketchat/internal/database"
	"github.com/thereayou/marketchat/internal/handlers"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/middleware"
	"github.com/thereayou/marketchat/internal/websocket"
	"github.com/thereayou/marketchat/pkg/auth"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server справочный сервер протокола чата
type Server struct {
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	Hub        *websocket.Hub
	JWTManager *auth.JWTManager

	port   string
	logger zerolog.Logger
}

// Deps внешние зависимости; Redis необязателен
type Deps struct {
	DB     *database.Database
	Redis  *redis.Client
	Logger zerolog.Logger
}

// NewServer собирает роутер; ctx ограничивает жизнь сокетов и хаба
func NewServer(ctx context.Context, cfg *config.ServerConfig, deps Deps) *Server {
	logger := logging.Component(deps.Logger, "server")

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	var blacklist middleware.Blacklist = middleware.NoBlacklist{}
	if deps.Redis != nil {
		blacklist = middleware.NewRedisBlacklist(deps.Redis)
	}
	authn := middleware.NewAuthenticator(jwtMgr, blacklist, deps.DB, deps.Logger)

	hub := websocket.NewHub(deps.Logger)
	chatH := handlers.NewChatHandler(deps.DB, cfg.HistoryPageSize, deps.Logger)
	userH := handlers.NewUserHandler(deps.DB)
	msgH := handlers.NewMessageHandler(deps.DB, hub, deps.Logger)
	wsH := handlers.NewWebSocketHandler(ctx, deps.DB, hub, msgH, websocket.TimingsFrom(cfg.WebSocket), deps.Logger)

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	APIEndpoints(router, authn, chatH, userH, wsH)

	return &Server{
		Router:     router,
		DB:         deps.DB,
		Redis:      deps.Redis,
		Hub:        hub,
		JWTManager: jwtMgr,
		port:       cfg.Port,
		logger:     logger,
	}
}

// Run держит хаб и HTTP-сервер до отмены ctx, затем корректно останавливает оба
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Hub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		s.logger.Info().Str("port", s.port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info().Msg("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
