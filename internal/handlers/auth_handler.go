package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/models"
	"github.com/classable/classable/internal/services"
	"github.com/classable/classable/pkg/response"
)

// AuthHandler exposes login, invite-gated registration and password
// management.
type AuthHandler struct {
	accounts *services.AccountService
	profiles *services.ProfileService
}

func NewAuthHandler(accounts *services.AccountService, profiles *services.ProfileService) *AuthHandler {
	return &AuthHandler{accounts: accounts, profiles: profiles}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	InviteCode string `json:"invite_code" validate:"required"`
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"max=100"`
	Track      string `json:"track" validate:"omitempty,track"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type authResponse struct {
	Token   string          `json:"token"`
	Profile *models.Profile `json:"profile"`
	Class   *classSummary   `json:"class,omitempty"`
}

type classSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, authResponse{
		Token:   result.Token,
		Profile: result.Profile,
	})
}

// Register handles POST /api/auth/register. The invite code in the body
// authorises the signup and decides the granted role.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		InviteCode: req.InviteCode,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
	}
	if req.Track != "" {
		track := models.Track(req.Track)
		input.Track = &track
	}

	result, err := h.accounts.Register(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := authResponse{Token: result.Token, Profile: result.Profile}
	if result.Redemption != nil && result.Redemption.ClassID != "" {
		resp.Class = &classSummary{ID: result.Redemption.ClassID, Name: result.Redemption.ClassName}
	}
	response.Success(c, http.StatusCreated, resp)
}

// ChangePassword handles POST /api/auth/password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	identity := currentIdentity(c)
	err := h.accounts.ChangePassword(c.Request.Context(), identity.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"changed": true})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	identity := currentIdentity(c)
	profile, err := h.profiles.GetByID(c.Request.Context(), identity.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}
