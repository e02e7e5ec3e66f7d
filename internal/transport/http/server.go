package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/auth"
	"github.com/chatline/chatline-server/internal/config"
	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/store"
)

// NewServer builds the HTTP server: REST API, health check and the
// WebSocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, cfg.WSEventsPerMinute, logger)))

	apiHandlers := NewAPIHandlers(authService, st, logger)
	userHandlers := NewUserHandlers(st, logger)
	groupHandlers := NewGroupHandlers(st, logger)
	messageHandlers := NewMessageHandlers(st, logger)

	authed := AuthMiddleware(authService, logger)

	users := router.Group("/api/v1/users")
	{
		users.POST("/register", apiHandlers.Register)
		users.POST("/login", apiHandlers.Login)
		users.GET("/me", authed, apiHandlers.CurrentUser)
		users.PATCH("/password", authed, apiHandlers.ChangePassword)
		users.PATCH("/email", authed, apiHandlers.ChangeEmail)
		users.PATCH("/name", authed, apiHandlers.ChangeName)
		users.GET("/search", authed, userHandlers.SearchUsers)
	}

	groups := router.Group("/api/v1/chat-group", authed)
	{
		groups.POST("", groupHandlers.CreateGroup)
		groups.POST("/direct", groupHandlers.StartDirectChat)
		groups.GET("", groupHandlers.ListGroups)
		groups.GET("/:groupId", groupHandlers.GetGroup)
		groups.PATCH("/:groupId/name", groupHandlers.RenameGroup)
		groups.PATCH("/:groupId/members", groupHandlers.AddMembers)
		groups.DELETE("/:groupId/members/:userId", groupHandlers.RemoveMember)
		groups.DELETE("/:groupId", groupHandlers.DeleteGroup)
	}

	messages := router.Group("/api/v1/messages", authed)
	{
		messages.GET("/:groupId", messageHandlers.ListMessages)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	fmt.Fprint(c.Writer, "ok")
}
