package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Bluerat1/uniclaim-server/internal/app/controllers"
	"github.com/Bluerat1/uniclaim-server/internal/middleware"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/websocket"
)

// SetupRouter configures all application routes
func SetupRouter(
	router *gin.Engine,
	authController *controllers.AuthController,
	postController *controllers.PostController,
	conversationController *controllers.ConversationController,
	requestController *controllers.RequestController,
	wsHandler *websocket.Handler,
	authMiddleware *middleware.AuthMiddleware,
) {
	// API version group
	v1 := router.Group("/api/v1")

	// --- Public Auth routes ---
	auth := v1.Group("/auth")
	{
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
		auth.POST("/refresh", authController.Refresh)
	}

	// --- Public Post routes ---
	v1.GET("/posts", postController.ListPosts)
	v1.GET("/posts/:id", postController.GetPost)

	// --- Authenticated Routes Group ---
	authenticated := v1.Group("")
	authenticated.Use(authMiddleware.JWTAuth())
	{
		authProtected := authenticated.Group("/auth")
		{
			authProtected.POST("/logout", authController.Logout)
			authProtected.GET("/me", authController.Me)
			authProtected.DELETE("/me", authController.DeleteAccount)
			authProtected.POST("/push-token", authController.RegisterPushToken)
		}

		posts := authenticated.Group("/posts")
		{
			posts.POST("", postController.CreatePost)
			posts.PATCH("/:id/status", postController.UpdateStatus)
			posts.PATCH("/:id/moderate", postController.ModeratePost)
			posts.DELETE("/:id", postController.DeletePost)
		}

		conversations := authenticated.Group("/conversations")
		{
			conversations.POST("", conversationController.StartConversation)
			conversations.GET("", conversationController.ListConversations)
			conversations.GET("/:id", conversationController.GetConversation)
			conversations.DELETE("/:id", conversationController.DeleteConversation)
			conversations.POST("/:id/messages", conversationController.SendMessage)
			conversations.GET("/:id/messages", conversationController.ListMessages)
			conversations.POST("/:id/read", conversationController.MarkRead)

			// Request lifecycle
			conversations.POST("/:id/handover", requestController.ProposeHandover)
			conversations.POST("/:id/claim", requestController.ProposeClaim)

			// Real-time events
			conversations.GET("/:id/ws", wsHandler.HandleConnection)
		}

		messages := authenticated.Group("/messages")
		{
			messages.DELETE("/:messageId", conversationController.DeleteMessage)
			messages.POST("/:messageId/reject", requestController.RejectRequest)
			messages.POST("/:messageId/accept", requestController.AcceptRequest)
			messages.POST("/:messageId/confirm", requestController.ConfirmRequest)
		}
	}
}
