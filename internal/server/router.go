package server

import (
	"github.com/gin-gonic/gin"
	"github.com/thereayou/marketchat/internal/handlers"
	"github.com/thereayou/marketchat/internal/middleware"
	"github.com/thereayou/marketchat/internal/protocol"
)

// APIEndpoints пути совпадают с теми, что вызывает клиент, включая завершающие слэши
func APIEndpoints(r *gin.Engine, authn *middleware.Authenticator, chatH *handlers.ChatHandler, userH *handlers.UserHandler, wsH *handlers.WebSocketHandler) {
	api := r.Group("/", authn.AuthMiddleware())
	{
		api.POST(protocol.PathGetOrCreateRoom, chatH.GetOrCreateRoom)
		api.GET(protocol.PathMyRooms, chatH.GetMyRooms)
		api.GET(protocol.PathRoomHistory+":room_id", chatH.GetRoomHistory)
		api.PATCH(protocol.PathMarkSeen+":room_id", chatH.MarkSeen)

		api.GET("/api/users/me", userH.GetMe)
		api.PATCH("/api/users/me", userH.UpdateMe)
	}

	r.GET(protocol.PathSocket+":room_id", authn.WSAuthMiddleware(), wsH.HandleWebSocket)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
