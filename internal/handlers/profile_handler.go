package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/models"
	"github.com/classable/classable/internal/services"
	"github.com/classable/classable/pkg/response"
)

// ProfileHandler exposes profile reads, track selection and superadmin
// account administration.
type ProfileHandler struct {
	profiles *services.ProfileService
	accounts *services.AccountService
}

func NewProfileHandler(profiles *services.ProfileService, accounts *services.AccountService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, accounts: accounts}
}

type setTrackRequest struct {
	Track string `json:"track" validate:"required,track"`
}

type provisionTeacherRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// SetTrack handles POST /api/profile/track. Students pick their track once.
func (h *ProfileHandler) SetTrack(c *gin.Context) {
	var req setTrackRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, err := h.profiles.SetTrack(c.Request.Context(), currentIdentity(c).ID, models.Track(req.Track))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// Get handles GET /api/profiles/:id for superadmins.
func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profiles.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// ProvisionTeacher handles POST /api/admin/teachers: creates a teacher
// account with an emailed temporary credential.
func (h *ProfileHandler) ProvisionTeacher(c *gin.Context) {
	var req provisionTeacherRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, err := h.accounts.ProvisionTeacher(c.Request.Context(), currentIdentity(c), services.ProvisionTeacherInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, profile)
}

// SetActive handles POST /api/admin/profiles/:id/active for superadmins to
// suspend or reinstate accounts.
func (h *ProfileHandler) SetActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" validate:"required"`
	}
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.profiles.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"active": *req.Active})
}
