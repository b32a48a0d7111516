package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/app/services"
	"github.com/Bluerat1/uniclaim-server/internal/middleware"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/websocket"
)

// RequestController handles handover and claim lifecycle endpoints
type RequestController struct {
	requestService services.RequestService
	hub            *websocket.Hub
	logger         zerolog.Logger
}

// NewRequestController creates a new RequestController
func NewRequestController(requestService services.RequestService, hub *websocket.Hub, logger zerolog.Logger) *RequestController {
	return &RequestController{
		requestService: requestService,
		hub:            hub,
		logger:         logger,
	}
}

// ProposeHandover godoc
// @Summary Propose a handover
// @Description Appends a pending handover request to the conversation
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param request body dto.ProposeHandoverRequest true "Handover payload"
// @Success 201 {object} dto.APIResponse{data=dto.MessageResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "A handover request is already open"
// @Router /conversations/{id}/handover [post]
func (ctrl *RequestController) ProposeHandover(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req dto.ProposeHandoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid handover payload").
			WithDetails(err.Error())
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	message, err := ctrl.requestService.ProposeHandover(c.Request.Context(), userID, conversationID, &req)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	ctrl.broadcastUpdate(conversationID, userID, message)
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.ToMessageResponse(message)))
}

// ProposeClaim godoc
// @Summary Propose a claim
// @Description Appends a pending claim request with ID photo and evidence photos
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param request body dto.ProposeClaimRequest true "Claim payload"
// @Success 201 {object} dto.APIResponse{data=dto.MessageResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "A claim request is already open"
// @Router /conversations/{id}/claim [post]
func (ctrl *RequestController) ProposeClaim(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req dto.ProposeClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid claim payload").
			WithDetails(err.Error())
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	message, err := ctrl.requestService.ProposeClaim(c.Request.Context(), userID, conversationID, &req)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	ctrl.broadcastUpdate(conversationID, userID, message)
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.ToMessageResponse(message)))
}

// RejectRequest godoc
// @Summary Reject a pending request
// @Description Declines a pending handover or claim; payload photos are removed
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Param messageId path int true "Request message ID"
// @Success 200 {object} dto.APIResponse{data=dto.RequestActionResponse}
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Request is no longer pending"
// @Router /messages/{messageId}/reject [post]
func (ctrl *RequestController) RejectRequest(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return
	}

	message, err := ctrl.requestService.Reject(c.Request.Context(), userID, messageID)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	ctrl.broadcastUpdate(message.ConversationID, userID, message)
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.RequestActionResponse{
		MessageID: message.ID,
		Status:    string(models.RequestStatusRejected),
	}))
}

// AcceptRequest godoc
// @Summary Accept a pending request
// @Description Uploads the responder's ID photo and moves the request to pending confirmation. Nothing persists when the upload fails.
// @Tags requests
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param messageId path int true "Request message ID"
// @Param idPhoto formData file true "Responder's ID photo"
// @Success 200 {object} dto.APIResponse{data=dto.RequestActionResponse}
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Request is no longer pending"
// @Failure 502 {object} dto.ErrorResponse "ID photo upload failed"
// @Router /messages/{messageId}/accept [post]
func (ctrl *RequestController) AcceptRequest(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return
	}

	fileHeader, err := c.FormFile("idPhoto")
	if err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "An ID photo is required to accept a request").
			WithField("idPhoto")
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Failed to read uploaded ID photo")
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}
	defer file.Close()

	message, err := ctrl.requestService.AcceptWithPhoto(c.Request.Context(), userID, messageID, file)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	ctrl.broadcastUpdate(message.ConversationID, userID, message)
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.RequestActionResponse{
		MessageID: message.ID,
		Status:    string(models.RequestStatusPendingConfirmation),
	}))
}

// ConfirmRequest godoc
// @Summary Confirm an accepted request
// @Description Finalizes the exchange: resolves the post, archives the transcript, deletes the conversation. Idempotent.
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Param messageId path int true "Request message ID"
// @Success 200 {object} dto.APIResponse{data=dto.RequestActionResponse}
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Request is not awaiting confirmation"
// @Router /messages/{messageId}/confirm [post]
func (ctrl *RequestController) ConfirmRequest(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthorized(c)
		return
	}
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return
	}

	if err := ctrl.requestService.Confirm(c.Request.Context(), userID, messageID); err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.RequestActionResponse{
		MessageID: messageID,
		Status:    string(models.RequestStatusConfirmed),
	}))
}

func (ctrl *RequestController) broadcastUpdate(conversationID, userID int64, message *models.Message) {
	event := &websocket.Event{
		Type:           "request_update",
		ConversationID: conversationID,
		SenderID:       userID,
		MessageID:      message.ID,
	}
	if message.RequestStatus != nil {
		event.RequestStatus = string(*message.RequestStatus)
	}
	ctrl.hub.BroadcastToConversation(event)
}
