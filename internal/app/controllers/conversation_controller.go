package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/app/services"
	"github.com/Bluerat1/uniclaim-server/internal/middleware"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/websocket"
)

// ConversationController handles conversation and message endpoints
type ConversationController struct {
	conversationService services.ConversationService
	hub                 *websocket.Hub
	logger              zerolog.Logger
}

// NewConversationController creates a new ConversationController
func NewConversationController(conversationService services.ConversationService, hub *websocket.Hub, logger zerolog.Logger) *ConversationController {
	return &ConversationController{
		conversationService: conversationService,
		hub:                 hub,
		logger:              logger,
	}
}

// StartConversation godoc
// @Summary Open a conversation about a post
// @Description Returns the existing conversation between the caller and the post owner, creating it on first contact
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.StartConversationRequest true "Conversation payload"
// @Success 200 {object} dto.APIResponse{data=dto.ConversationResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /conversations [post]
func (ctrl *ConversationController) StartConversation(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req dto.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid conversation payload").
			WithDetails(err.Error())
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	conversation, err := ctrl.conversationService.StartConversation(c.Request.Context(), userID, req.PostID)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ToConversationResponse(conversation)))
}

// ListConversations godoc
// @Summary List the caller's conversations
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=[]dto.ConversationResponse}
// @Router /conversations [get]
func (ctrl *ConversationController) ListConversations(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}

	conversations, err := ctrl.conversationService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	items := make([]dto.ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		items = append(items, dto.ToConversationResponse(conversation))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(items))
}

// GetConversation godoc
// @Summary Get a conversation
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} dto.APIResponse{data=dto.ConversationResponse}
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /conversations/{id} [get]
func (ctrl *ConversationController) GetConversation(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	conversation, err := ctrl.conversationService.GetConversation(c.Request.Context(), userID, id)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ToConversationResponse(conversation)))
}

// SendMessage godoc
// @Summary Send a text message
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param request body dto.SendMessageRequest true "Message payload"
// @Success 201 {object} dto.APIResponse{data=dto.MessageResponse}
// @Failure 403 {object} dto.ErrorResponse
// @Router /conversations/{id}/messages [post]
func (ctrl *ConversationController) SendMessage(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid message payload").
			WithDetails(err.Error())
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	message, err := ctrl.conversationService.SendMessage(c.Request.Context(), userID, id, &req)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	ctrl.hub.BroadcastToConversation(&websocket.Event{
		Type:           "new_message",
		ConversationID: id,
		SenderID:       userID,
		MessageID:      message.ID,
		Content:        message.Text,
	})

	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.ToMessageResponse(message)))
}

// ListMessages godoc
// @Summary List messages
// @Description Lists messages newest first; pass before=<messageId> for older pages
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param before query int false "Message-id cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=[]dto.MessageResponse}
// @Failure 403 {object} dto.ErrorResponse
// @Router /conversations/{id}/messages [get]
func (ctrl *ConversationController) ListMessages(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	filter := &dto.ListMessagesRequest{}
	filter.Before, _ = strconv.ParseInt(c.Query("before"), 10, 64)
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := ctrl.conversationService.ListMessages(c.Request.Context(), userID, id, filter)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	items := make([]dto.MessageResponse, 0, len(messages))
	for _, message := range messages {
		items = append(items, dto.ToMessageResponse(message))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(items))
}

// MarkRead godoc
// @Summary Mark a conversation read
// @Description Zeroes the caller's unread counter and stamps them into unread messages
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} dto.APIResponse
// @Router /conversations/{id}/read [post]
func (ctrl *ConversationController) MarkRead(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := ctrl.conversationService.MarkRead(c.Request.Context(), userID, id); err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMessageResponse("Conversation marked read"))
}

// DeleteMessage godoc
// @Summary Delete own message
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param messageId path int true "Message ID"
// @Success 200 {object} dto.APIResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /messages/{messageId} [delete]
func (ctrl *ConversationController) DeleteMessage(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return
	}

	if err := ctrl.conversationService.DeleteMessage(c.Request.Context(), userID, messageID); err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMessageResponse("Message deleted"))
}

// DeleteConversation godoc
// @Summary Delete a conversation
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} dto.APIResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /conversations/{id} [delete]
func (ctrl *ConversationController) DeleteConversation(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := ctrl.conversationService.DeleteConversation(c.Request.Context(), userID, id); err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	ctrl.hub.BroadcastToConversation(&websocket.Event{
		Type:           "conversation_deleted",
		ConversationID: id,
		SenderID:       userID,
	})

	c.JSON(http.StatusOK, dto.NewMessageResponse("Conversation deleted"))
}

func unauthorized(c *gin.Context) {
	errorDetail := dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")
	c.JSON(http.StatusUnauthorized, dto.NewErrorResponse(errorDetail))
}
