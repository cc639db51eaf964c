package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/services"
	"github.com/classable/classable/pkg/response"
)

// OnboardingHandler exposes the survey submission and generated profile.
type OnboardingHandler struct {
	onboarding *services.OnboardingService
}

func NewOnboardingHandler(onboarding *services.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{onboarding: onboarding}
}

type surveyRequest struct {
	Goals      string `json:"goals" validate:"required,max=2000"`
	Background string `json:"background" validate:"max=2000"`
	HoursPerWk int    `json:"hours_per_week" validate:"omitempty,min=1,max=80"`
	Interests  string `json:"interests" validate:"max=2000"`
}

// Complete handles POST /api/onboarding.
func (h *OnboardingHandler) Complete(c *gin.Context) {
	var req surveyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	record, err := h.onboarding.Complete(c.Request.Context(), currentIdentity(c).ID, services.Survey{
		Goals:      req.Goals,
		Background: req.Background,
		HoursPerWk: req.HoursPerWk,
		Interests:  req.Interests,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, record)
}

// Get handles GET /api/onboarding.
func (h *OnboardingHandler) Get(c *gin.Context) {
	record, err := h.onboarding.Get(c.Request.Context(), currentIdentity(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}
