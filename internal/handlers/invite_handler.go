package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/models"
	"github.com/classable/classable/internal/services"
	"github.com/classable/classable/pkg/response"
)

// InviteHandler exposes invite issuance, validation and revocation.
// Redemption itself happens through registration (new accounts) or the
// authenticated redeem endpoint (existing accounts joining a class).
type InviteHandler struct {
	invites *services.InviteService
}

func NewInviteHandler(invites *services.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

type issueInviteRequest struct {
	Kind        string `json:"kind" validate:"required,invitekind"`
	Email       string `json:"email" validate:"omitempty,email"`
	ClassID     string `json:"class_id" validate:"omitempty,uuid"`
	Track       string `json:"track" validate:"omitempty,track"`
	MaxUses     int    `json:"max_uses" validate:"omitempty,min=1,max=500"`
	ExpiresDays int    `json:"expires_days" validate:"omitempty,min=1,max=365"`
}

type validateInviteRequest struct {
	Code  string `json:"code" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

type validateInviteResponse struct {
	Valid  bool          `json:"valid"`
	Role   models.Role   `json:"role,omitempty"`
	Track  *models.Track `json:"track,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

type redeemInviteRequest struct {
	Code      string `json:"code" validate:"required"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
}

type inviteView struct {
	ID        string        `json:"id"`
	Code      string        `json:"code"`
	Kind      string        `json:"kind"`
	Email     string        `json:"email,omitempty"`
	ClassID   *string       `json:"class_id,omitempty"`
	Track     *models.Track `json:"track,omitempty"`
	MaxUses   int           `json:"max_uses"`
	UsedCount int           `json:"used_count"`
	ExpiresAt time.Time     `json:"expires_at"`
	Active    bool          `json:"active"`
	RevokedAt *time.Time    `json:"revoked_at,omitempty"`
	Link      string        `json:"link"`
	CreatedAt time.Time     `json:"created_at"`
}

// Issue handles POST /api/invites.
func (h *InviteHandler) Issue(c *gin.Context) {
	var req issueInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.IssueInviteInput{
		Kind:    models.InviteKind(req.Kind),
		Email:   req.Email,
		ClassID: req.ClassID,
		MaxUses: req.MaxUses,
	}
	if req.Track != "" {
		track := models.Track(req.Track)
		input.Track = &track
	}
	if req.ExpiresDays > 0 {
		input.ExpiresIn = time.Duration(req.ExpiresDays) * 24 * time.Hour
	}

	invite, err := h.invites.Issue(c.Request.Context(), currentIdentity(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, h.view(invite))
}

// Validate handles POST /api/auth/invites/validate. Public: a prospective
// user checks a code before filling in the signup form. Never consumes a use.
func (h *InviteHandler) Validate(c *gin.Context) {
	var req validateInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.invites.Validate(c.Request.Context(), req.Code, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, validateInviteResponse{
		Valid:  result.Valid,
		Role:   result.Role,
		Track:  result.Track,
		Reason: string(result.Reason),
	})
}

// Redeem handles POST /api/invites/redeem for authenticated users joining a
// class with an existing account.
func (h *InviteHandler) Redeem(c *gin.Context) {
	var req redeemInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.invites.Redeem(c.Request.Context(), currentIdentity(c), req.Code, services.ProvisionInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := gin.H{"role": result.Role, "rejoined": result.Rejoined}
	if result.ClassID != "" {
		resp["class"] = classSummary{ID: result.ClassID, Name: result.ClassName}
	}
	response.Success(c, http.StatusOK, resp)
}

// List handles GET /api/invites, returning the caller's issued invites.
func (h *InviteHandler) List(c *gin.Context) {
	invites, err := h.invites.ListByIssuer(c.Request.Context(), currentIdentity(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	views := make([]inviteView, len(invites))
	for i := range invites {
		views[i] = h.view(&invites[i])
	}
	response.Success(c, http.StatusOK, views)
}

// Revoke handles DELETE /api/invites/:id.
func (h *InviteHandler) Revoke(c *gin.Context) {
	err := h.invites.Revoke(c.Request.Context(), currentIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

func (h *InviteHandler) view(invite *models.Invite) inviteView {
	return inviteView{
		ID:        invite.ID,
		Code:      invite.Code,
		Kind:      string(invite.Kind),
		Email:     invite.Email,
		ClassID:   invite.ClassID,
		Track:     invite.Track,
		MaxUses:   invite.MaxUses,
		UsedCount: invite.UsedCount,
		ExpiresAt: invite.ExpiresAt,
		Active:    invite.Active,
		RevokedAt: invite.RevokedAt,
		Link:      h.invites.InviteLink(invite.Code),
		CreatedAt: invite.CreatedAt,
	}
}
