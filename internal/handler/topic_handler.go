package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campuslab/capstone-api/internal/models"
	"github.com/campuslab/capstone-api/internal/service"
	appErrors "github.com/campuslab/capstone-api/pkg/errors"
	"github.com/campuslab/capstone-api/pkg/response"
)

// TopicHandler wires HTTP endpoints to the topic service.
type TopicHandler struct {
	service *service.TopicService
}

// NewTopicHandler creates a new handler.
func NewTopicHandler(svc *service.TopicService) *TopicHandler {
	return &TopicHandler{service: svc}
}

// Submit godoc
// @Summary Submit topic
// @Description Submit a new project topic for coordinator review
// @Tags Topics
// @Accept json
// @Produce json
// @Param payload body service.SubmitTopicRequest true "Topic payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /topics [post]
func (h *TopicHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid topic payload"))
		return
	}

	topic, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, topic)
}

// Review godoc
// @Summary Review topic
// @Description Approve or reject a pending topic (coordinator only)
// @Tags Topics
// @Accept json
// @Produce json
// @Param id path string true "Topic ID"
// @Param payload body service.ReviewTopicRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /topics/{id}/review [post]
func (h *TopicHandler) Review(c *gin.Context) {
	var req service.ReviewTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}

	topic, err := h.service.Review(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, topic, nil)
}

// List godoc
// @Summary List topics
// @Description List topics with optional status and search filters
// @Tags Topics
// @Produce json
// @Param status query string false "Filter by status"
// @Param search query string false "Search by title or technology"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /topics [get]
func (h *TopicHandler) List(c *gin.Context) {
	filter := models.TopicFilter{
		Status:      models.TopicStatus(c.Query("status")),
		SubmitterID: c.Query("submitter_id"),
		Search:      c.Query("search"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	topics, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, topics, pagination)
}

// Catalog godoc
// @Summary Approved topic catalog
// @Description Student-facing catalog of approved topics split into available and taken
// @Tags Topics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /topics/catalog [get]
func (h *TopicHandler) Catalog(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	catalog, err := h.service.Catalog(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, catalog, nil)
}

// Delete godoc
// @Summary Delete topic
// @Description Delete an unallocated topic (admin only)
// @Tags Topics
// @Produce json
// @Param id path string true "Topic ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /topics/{id} [delete]
func (h *TopicHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
