package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/app/services"
	"github.com/Bluerat1/uniclaim-server/internal/middleware"
)

// PostController handles lost/found post endpoints
type PostController struct {
	postService services.PostService
	logger      zerolog.Logger
}

// NewPostController creates a new PostController
func NewPostController(postService services.PostService, logger zerolog.Logger) *PostController {
	return &PostController{
		postService: postService,
		logger:      logger,
	}
}

// CreatePost godoc
// @Summary Report a lost or found item
// @Description Creates a post with up to 3 images uploaded as multipart files
// @Tags posts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param description formData string true "Description"
// @Param category formData string true "Category"
// @Param location formData string true "Location"
// @Param type formData string true "Post type (lost or found)"
// @Param foundAction formData string false "What the finder did with the item"
// @Param images formData file false "Item images"
// @Success 201 {object} dto.APIResponse{data=dto.PostResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Router /posts [post]
func (ctrl *PostController) CreatePost(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")
		c.JSON(http.StatusUnauthorized, dto.NewErrorResponse(errorDetail))
		return
	}

	var req dto.CreatePostRequest
	if err := c.ShouldBind(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid post payload").
			WithDetails(err.Error())
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid multipart form").
			WithDetails(err.Error())
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}
	images := form.File["images"]

	post, err := ctrl.postService.CreatePost(c.Request.Context(), userID, &req, images)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.ToPostResponse(post)))
}

// GetPost godoc
// @Summary Get a post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} dto.APIResponse{data=dto.PostResponse}
// @Failure 404 {object} dto.ErrorResponse
// @Router /posts/{id} [get]
func (ctrl *PostController) GetPost(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	post, err := ctrl.postService.GetPost(c.Request.Context(), id)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ToPostResponse(post)))
}

// ListPosts godoc
// @Summary List posts
// @Description Lists posts with optional filters and pagination
// @Tags posts
// @Produce json
// @Param type query string false "Post type (lost or found)"
// @Param category query string false "Category"
// @Param status query string false "Status"
// @Param creatorId query int false "Creator ID"
// @Param search query string false "Title/description search"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.PagedResponse}
// @Router /posts [get]
func (ctrl *PostController) ListPosts(c *gin.Context) {
	filter := &dto.PostFilter{
		Type:     c.Query("type"),
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
	}
	if creatorStr := c.Query("creatorId"); creatorStr != "" {
		if creatorID, err := strconv.ParseInt(creatorStr, 10, 64); err == nil {
			filter.CreatorID = &creatorID
		}
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	posts, total, err := ctrl.postService.ListPosts(c.Request.Context(), filter)
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	items := make([]dto.PostResponse, 0, len(posts))
	for _, post := range posts {
		items = append(items, dto.ToPostResponse(post))
	}

	size := filter.Size
	if size <= 0 || size > 100 {
		size = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	totalPages := int((total + int64(size) - 1) / int64(size))

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PagedResponse{
		Items: items,
		Pagination: dto.PaginationInfo{
			CurrentPage: page,
			PageSize:    size,
			TotalItems:  total,
			TotalPages:  totalPages,
		},
	}))
}

// UpdateStatus godoc
// @Summary Change a post's resolution status
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body dto.UpdatePostStatusRequest true "Status payload"
// @Success 200 {object} dto.APIResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /posts/{id}/status [patch]
func (ctrl *PostController) UpdateStatus(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")
		c.JSON(http.StatusUnauthorized, dto.NewErrorResponse(errorDetail))
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req dto.UpdatePostStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid status payload").
			WithDetails(err.Error())
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	err = ctrl.postService.UpdateStatus(c.Request.Context(), userID, id, models.PostStatus(req.Status))
	if err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMessageResponse("Post status updated"))
}

// ModeratePost godoc
// @Summary Hide or flag a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body dto.ModeratePostRequest true "Moderation payload"
// @Success 200 {object} dto.APIResponse
// @Router /posts/{id}/moderate [patch]
func (ctrl *PostController) ModeratePost(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req dto.ModeratePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid moderation payload").
			WithDetails(err.Error())
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	if err := ctrl.postService.ModeratePost(c.Request.Context(), id, req.Hidden, req.Flagged); err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMessageResponse("Post moderated"))
}

// DeletePost godoc
// @Summary Delete a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} dto.APIResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /posts/{id} [delete]
func (ctrl *PostController) DeletePost(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")
		c.JSON(http.StatusUnauthorized, dto.NewErrorResponse(errorDetail))
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := ctrl.postService.DeletePost(c.Request.Context(), userID, id); err != nil {
		middleware.HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMessageResponse("Post deleted"))
}

// parseIDParam parses a path id, writing the error response itself.
func parseIDParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeInvalidRequest, "Invalid "+name+" parameter")
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return 0, err
	}
	return id, nil
}
