package websocket

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/app/repositories"
)

// Handler upgrades authenticated participants onto the event hub.
type Handler struct {
	hub           *Hub
	conversations *repositories.ConversationRepository
	logger        zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, conversations *repositories.ConversationRepository, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:           hub,
		conversations: conversations,
		logger:        logger,
	}
}

// HandleConnection godoc
// @Summary Establish a WebSocket connection for real-time conversation events
// @Description Upgrades the HTTP connection to a WebSocket delivering new-message and request-update events
// @Tags conversations, websocket
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 101 {string} string "Switching Protocols to WebSocket"
// @Failure 400 {object} gin.H "Invalid conversation ID"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 403 {object} gin.H "Forbidden: not a participant"
// @Router /conversations/{id}/ws [get]
func (h *Handler) HandleConnection(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	userIDValue, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in context"})
		return
	}
	userID, ok := userIDValue.(int64)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user ID format"})
		return
	}

	conversation, err := h.conversations.GetByID(c, conversationID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if !conversation.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not a participant in this conversation"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().
			Err(err).
			Int64("conversationID", conversationID).
			Int64("userID", userID).
			Msg("Failed to upgrade connection to WebSocket")
		return
	}

	client := &Client{
		hub:            h.hub,
		conn:           conn,
		send:           make(chan []byte, 256),
		userID:         userID,
		conversationID: conversationID,
		logger:         h.logger,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	h.logger.Info().
		Int64("conversationID", conversationID).
		Int64("userID", userID).
		Msg("WebSocket connection established")
}
