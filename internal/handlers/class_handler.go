package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/services"
	"github.com/classable/classable/pkg/response"
)

// ClassHandler exposes class CRUD and roster management for teachers.
type ClassHandler struct {
	classes *services.ClassService
}

func NewClassHandler(classes *services.ClassService) *ClassHandler {
	return &ClassHandler{classes: classes}
}

type createClassRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Subject string `json:"subject" validate:"max=200"`
}

// Create handles POST /api/classes.
func (h *ClassHandler) Create(c *gin.Context) {
	var req createClassRequest
	if !bindAndValidate(c, &req) {
		return
	}

	class, err := h.classes.Create(c.Request.Context(), currentIdentity(c), services.CreateClassInput{
		Name:    req.Name,
		Subject: req.Subject,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, class)
}

// ListOwned handles GET /api/classes.
func (h *ClassHandler) ListOwned(c *gin.Context) {
	classes, err := h.classes.ListOwned(c.Request.Context(), currentIdentity(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, classes)
}

// ListJoined handles GET /api/classes/joined.
func (h *ClassHandler) ListJoined(c *gin.Context) {
	classes, err := h.classes.ListJoined(c.Request.Context(), currentIdentity(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, classes)
}

// Roster handles GET /api/classes/:id/roster.
func (h *ClassHandler) Roster(c *gin.Context) {
	members, err := h.classes.Roster(c.Request.Context(), currentIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

// RemoveMember handles DELETE /api/classes/:id/roster/:userID.
func (h *ClassHandler) RemoveMember(c *gin.Context) {
	err := h.classes.RemoveMember(c.Request.Context(), currentIdentity(c), c.Param("id"), c.Param("userID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// Archive handles POST /api/classes/:id/archive.
func (h *ClassHandler) Archive(c *gin.Context) {
	err := h.classes.Archive(c.Request.Context(), currentIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"archived": true})
}
