package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/classable/classable/internal/auth"
	"github.com/classable/classable/internal/models"
	"github.com/classable/classable/pkg/crypto"
	apperrors "github.com/classable/classable/pkg/errors"
	"github.com/classable/classable/pkg/mail"
	"github.com/classable/classable/pkg/metrics"
)

// ErrEmailTaken indicates the email already belongs to an account.
var ErrEmailTaken = apperrors.New("EMAIL_TAKEN", "An account with this email already exists", 409)

// RegisterInput carries the signup form: credentials plus the invite code
// that authorises the registration.
type RegisterInput struct {
	Email      string
	Password   string
	InviteCode string
	FirstName  string
	LastName   string
	Track      *models.Track
}

// AuthResult bundles a signed token with the authenticated identity.
type AuthResult struct {
	Token      string
	Account    *models.Account
	Profile    *models.Profile
	Redemption *RedemptionResult
}

// AccountService owns credential storage and the registration flow. Every
// registration is invite-gated: no invite, no account.
type AccountService struct {
	db      *gorm.DB
	invites *InviteService
	jwt     *auth.JWTService
	mailer  mail.Mailer
	audit   *AuditService
	log     *zap.Logger
}

func NewAccountService(db *gorm.DB, invites *InviteService, jwt *auth.JWTService, mailer mail.Mailer, audit *AuditService, log *zap.Logger) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	if invites == nil {
		return nil, errors.New("account service: invite service is required")
	}
	if jwt == nil {
		return nil, errors.New("account service: jwt service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{
		db:      db,
		invites: invites,
		jwt:     jwt,
		mailer:  mailer,
		audit:   audit,
		log:     log,
	}, nil
}

// Register creates an account and redeems the invite that authorises it. If
// redemption fails the freshly created account is removed again, so a bad
// code never leaves an orphaned credential row behind.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewBadRequest("password must be at least 8 characters")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}

	account := models.Account{Email: email, Password: hash, IsActive: true}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}

	identity := Identity{ID: account.ID, Email: account.Email}
	redemption, err := s.invites.Redeem(ctx, identity, input.InviteCode, ProvisionInput{
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Track:     input.Track,
	})
	if err != nil {
		if delErr := s.db.WithContext(ctx).Delete(&models.Account{}, "id = ?", account.ID).Error; delErr != nil {
			s.log.Error("failed to roll back account after redemption failure",
				zap.String("account_id", account.ID),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	profile, err := s.loadProfile(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateAccessToken(auth.AccessTokenInput{
		UserID: account.ID,
		Email:  account.Email,
		Role:   string(profile.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("account service: sign token: %w", err)
	}

	return &AuthResult{
		Token:      token,
		Account:    &account,
		Profile:    profile,
		Redemption: redemption,
	}, nil
}

// Authenticate verifies credentials and returns a signed access token.
func (s *AccountService) Authenticate(ctx context.Context, email, password, clientIP string) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "email = ?", normaliseEmail(email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}

	if !account.IsActive || !crypto.VerifyPassword(account.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	profile, err := s.loadProfile(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if !profile.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	now := time.Now()
	updates := map[string]any{"last_login_at": now, "last_login_ip": clientIP}
	if err := s.db.WithContext(ctx).Model(&account).Updates(updates).Error; err != nil {
		s.log.Warn("failed to record login", zap.String("account_id", account.ID), zap.Error(err))
	}

	token, err := s.jwt.GenerateAccessToken(auth.AccessTokenInput{
		UserID: account.ID,
		Email:  account.Email,
		Role:   string(profile.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("account service: sign token: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &AuthResult{Token: token, Account: &account, Profile: profile}, nil
}

// ChangePassword rotates the account password after verifying the current
// one, and flips the profile's password_changed flag. Teachers provisioned
// with a temporary credential clear their forced-rotation state here.
func (s *AccountService) ChangePassword(ctx context.Context, id, current, next string) error {
	ctx = ensureContext(ctx)

	if len(next) < 8 {
		return apperrors.NewBadRequest("password must be at least 8 characters")
	}

	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrStoreUnavailable.WithInternal(err)
	}

	if !crypto.VerifyPassword(account.Password, current) {
		return apperrors.ErrInvalidCredentials
	}

	hash, err := crypto.HashPassword(next)
	if err != nil {
		return fmt.Errorf("account service: hash password: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&account).Update("password", hash).Error; err != nil {
			return apperrors.ErrStoreUnavailable.WithInternal(err)
		}
		if err := tx.Model(&models.Profile{}).
			Where("id = ?", account.ID).
			Update("password_changed", true).Error; err != nil {
			return apperrors.ErrStoreUnavailable.WithInternal(err)
		}
		return nil
	})
}

// ProvisionTeacherInput describes a directly provisioned teacher account.
type ProvisionTeacherInput struct {
	Email     string
	FirstName string
	LastName  string
}

// ProvisionTeacher creates a teacher account with a generated temporary
// password, superadmin only. The profile starts with password_changed false
// so the UI can force a rotation on first login; the credential is emailed
// best-effort.
func (s *AccountService) ProvisionTeacher(ctx context.Context, actor Identity, input ProvisionTeacherInput) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	var actorProfile models.Profile
	if err := s.db.WithContext(ctx).First(&actorProfile, "id = ?", actor.ID).Error; err != nil {
		return nil, apperrors.ErrForbidden
	}
	if actorProfile.Role != models.RoleSuperadmin {
		return nil, apperrors.ErrForbidden
	}

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	tempPassword, err := crypto.GenerateTempPassword()
	if err != nil {
		return nil, fmt.Errorf("account service: generate password: %w", err)
	}
	hash, err := crypto.HashPassword(tempPassword)
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}

	var profile models.Profile
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account := models.Account{Email: email, Password: hash, IsActive: true}
		if err := tx.Create(&account).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailTaken
			}
			return apperrors.ErrStoreUnavailable.WithInternal(err)
		}

		profile = models.Profile{
			ID:        account.ID,
			Role:      models.RoleTeacher,
			FirstName: strings.TrimSpace(input.FirstName),
			LastName:  strings.TrimSpace(input.LastName),
			IsActive:  true,
			// PasswordChanged stays false until the teacher rotates the
			// temporary credential.
		}
		if err := tx.Create(&profile).Error; err != nil {
			return apperrors.ErrStoreUnavailable.WithInternal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		entry := AuditEntry{
			UserID:   &actor.ID,
			Action:   AuditTeacherProvisioned,
			Resource: profile.ID,
			Result:   "success",
		}
		if auditErr := s.audit.Log(ctx, entry); auditErr != nil {
			s.log.Warn("audit write failed", zap.Error(auditErr))
		}
	}

	if s.mailer != nil {
		go func() {
			body := fmt.Sprintf(
				"Welcome to Classable.\n\nA teacher account has been created for you.\n\nEmail: %s\nTemporary password: %s\n\nYou will be asked to choose a new password on first login.\n",
				email, tempPassword,
			)
			err := s.mailer.Send(context.Background(), mail.Message{
				To:      []string{email},
				Subject: "Your Classable teacher account",
				Body:    body,
			})
			if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
				s.log.Warn("teacher credential email failed", zap.String("email", email), zap.Error(err))
			}
		}()
	}

	return &profile, nil
}

// GetAccount loads an account by id.
func (s *AccountService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	ctx = ensureContext(ctx)

	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return &account, nil
}

func (s *AccountService) loadProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return &profile, nil
}
