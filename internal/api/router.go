package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/classable/classable/internal/auth"
	"github.com/classable/classable/internal/handlers"
	"github.com/classable/classable/internal/middleware"
	"github.com/classable/classable/internal/models"
	"github.com/classable/classable/internal/services"
)

// Services bundles the service layer consumed by the router.
type Services struct {
	Accounts   *services.AccountService
	Profiles   *services.ProfileService
	Invites    *services.InviteService
	Classes    *services.ClassService
	Billing    *services.BillingService
	Storage    *services.StorageService
	Onboarding *services.OnboardingService
	Audit      *services.AuditService
}

// NewRouter assembles the HTTP surface. Public endpoints cover login,
// invite-gated registration and read-only invite validation; everything else
// sits behind bearer auth with role gates.
func NewRouter(db *gorm.DB, jwtService *auth.JWTService, svc Services, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.Recovery(log),
		middleware.RequestLogger(log),
		middleware.Metrics(),
	)

	authHandler := handlers.NewAuthHandler(svc.Accounts, svc.Profiles)
	inviteHandler := handlers.NewInviteHandler(svc.Invites)
	classHandler := handlers.NewClassHandler(svc.Classes)
	profileHandler := handlers.NewProfileHandler(svc.Profiles, svc.Accounts)
	billingHandler := handlers.NewBillingHandler(svc.Billing)
	storageHandler := handlers.NewStorageHandler(svc.Storage, svc.Classes)
	onboardingHandler := handlers.NewOnboardingHandler(svc.Onboarding)
	auditHandler := handlers.NewAuditHandler(svc.Audit)
	healthHandler := handlers.NewHealthHandler(db)

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/webhooks/stripe", billingHandler.Webhook)

	publicLimit := middleware.RateLimit(30, time.Minute)

	public := router.Group("/api/auth")
	{
		public.POST("/login", publicLimit, authHandler.Login)
		public.POST("/register", publicLimit, authHandler.Register)
		public.POST("/invites/validate", publicLimit, inviteHandler.Validate)
	}

	authed := router.Group("/api", middleware.AuthRequired(jwtService))
	{
		authed.GET("/auth/me", authHandler.Me)
		authed.POST("/auth/password", authHandler.ChangePassword)

		authed.POST("/invites/redeem", inviteHandler.Redeem)
		authed.POST("/profile/track", profileHandler.SetTrack)

		authed.POST("/onboarding", onboardingHandler.Complete)
		authed.GET("/onboarding", onboardingHandler.Get)

		authed.GET("/classes/joined", classHandler.ListJoined)
		authed.POST("/storage/downloads", storageHandler.PresignDownload)
	}

	staff := authed.Group("", middleware.RequireRole(
		string(models.RoleTeacher), string(models.RoleSuperadmin),
	))
	{
		staff.POST("/invites", inviteHandler.Issue)
		staff.GET("/invites", inviteHandler.List)
		staff.DELETE("/invites/:id", inviteHandler.Revoke)

		staff.POST("/classes", classHandler.Create)
		staff.GET("/classes", classHandler.ListOwned)
		staff.GET("/classes/:id/roster", classHandler.Roster)
		staff.DELETE("/classes/:id/roster/:userID", classHandler.RemoveMember)
		staff.POST("/classes/:id/archive", classHandler.Archive)

		staff.POST("/storage/uploads", storageHandler.PresignUpload)

		staff.POST("/billing/checkout", billingHandler.CreateCheckout)
		staff.GET("/billing/subscription", billingHandler.GetSubscription)
	}

	admin := authed.Group("/admin", middleware.RequireRole(string(models.RoleSuperadmin)))
	{
		admin.POST("/teachers", profileHandler.ProvisionTeacher)
		admin.GET("/profiles/:id", profileHandler.Get)
		admin.POST("/profiles/:id/active", profileHandler.SetActive)
		admin.GET("/audit", auditHandler.List)
	}

	return router
}
