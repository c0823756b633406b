package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/yardline/internal/config"
	"github.com/yardline/internal/realtime"
)

// Server represents the API server
type Server struct {
	echo     *echo.Echo
	port     int
	registry *realtime.Registry
}

// NewServer creates a new API server wired to the messaging core.
func NewServer(cfg *config.Config, messaging MessagingService, notifications NotificationService, registry *realtime.Registry) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:     e,
		port:     cfg.Server.Port,
		registry: registry,
	}

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// API v1 group, everything behind bearer auth
	v1 := e.Group("/api/v1")
	v1.Use(RequireAuth(cfg.Auth.JWTSecret))

	limiter := newSendLimiter(cfg.Messaging.SendRatePerMinute, cfg.Messaging.SendBurst)

	messagesHandler := NewMessagesHandler(messaging)
	v1.POST("/subjects/:kind/:id/messages", messagesHandler.SendMessage, limiter.Middleware())
	v1.POST("/conversations/:id/messages", messagesHandler.AppendMessage, limiter.Middleware())
	v1.GET("/conversations", messagesHandler.ListConversations)
	v1.GET("/conversations/unread-count", messagesHandler.UnreadCount)
	v1.GET("/conversations/:id/messages", messagesHandler.ListMessages)
	v1.POST("/messages/:id/read", messagesHandler.MarkRead)

	notificationsHandler := NewNotificationsHandler(notifications)
	v1.GET("/notifications", notificationsHandler.List)
	v1.GET("/notifications/counts", notificationsHandler.Counts)
	v1.POST("/notifications/:id/read", notificationsHandler.MarkRead)
	v1.POST("/notifications/read-all", notificationsHandler.MarkAllRead)

	wsHandler := NewWSHandler(registry)
	v1.GET("/ws", wsHandler.Attach)

	return server
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins the API server and blocks until an interrupt, then
// shuts the HTTP listener down and drains live connections.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info().Msg("shutting down, draining live connections")
	if s.registry != nil {
		s.registry.Drain()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
