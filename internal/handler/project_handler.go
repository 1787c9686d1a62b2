package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuslab/capstone-api/internal/service"
	appErrors "github.com/campuslab/capstone-api/pkg/errors"
	"github.com/campuslab/capstone-api/pkg/response"
)

// ProjectHandler wires HTTP endpoints to the allocation service.
type ProjectHandler struct {
	service *service.AllocationService
}

// NewProjectHandler creates a new handler.
func NewProjectHandler(svc *service.AllocationService) *ProjectHandler {
	return &ProjectHandler{service: svc}
}

// SelectTopic godoc
// @Summary Select topic
// @Description Bind an approved topic to the caller, or to every accepted member of the caller's group
// @Tags Projects
// @Accept json
// @Produce json
// @Param payload body object true "Topic selection"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/select-topic [post]
func (h *ProjectHandler) SelectTopic(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		TopicID string `json:"topic_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "topic_id required"))
		return
	}

	projects, err := h.service.SelectTopic(c.Request.Context(), claims.UserID, payload.TopicID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, projects)
}

// UpdateProgress godoc
// @Summary Update progress
// @Description Set the completion percentage for a project
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body object true "Progress"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /projects/{id}/progress [put]
func (h *ProjectHandler) UpdateProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Progress *int `json:"progress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "progress required"))
		return
	}

	project, err := h.service.UpdateProgress(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), *payload.Progress)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, project, nil)
}

// My godoc
// @Summary My project
// @Description Return the caller's project with topic context
// @Tags Projects
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/my [get]
func (h *ProjectHandler) My(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	project, err := h.service.MyProject(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, project, nil)
}
