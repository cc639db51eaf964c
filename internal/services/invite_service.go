package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classable/classable/internal/models"
	"github.com/classable/classable/pkg/crypto"
	apperrors "github.com/classable/classable/pkg/errors"
	"github.com/classable/classable/pkg/mail"
	"github.com/classable/classable/pkg/metrics"
)

const (
	codeCollisionRetries = 5
	defaultClassMaxUses  = 30
)

// InvalidReason labels why a code failed validation or redemption. Values
// match the machine-readable reasons exposed over the API.
type InvalidReason string

const (
	ReasonNotFound      InvalidReason = "NOT_FOUND"
	ReasonExpired       InvalidReason = "EXPIRED"
	ReasonExhausted     InvalidReason = "EXHAUSTED"
	ReasonRevoked       InvalidReason = "REVOKED"
	ReasonEmailMismatch InvalidReason = "EMAIL_MISMATCH"
)

// IssueInviteInput describes a new invite to create.
type IssueInviteInput struct {
	Kind      models.InviteKind
	Email     string
	ClassID   string
	Track     *models.Track
	MaxUses   int
	ExpiresIn time.Duration
}

// ValidationResult is the read-only answer to "can this code be redeemed".
type ValidationResult struct {
	Valid  bool
	Role   models.Role
	Track  *models.Track
	Reason InvalidReason
}

// RedemptionResult reports a successful redemption.
type RedemptionResult struct {
	Role      models.Role
	ClassID   string
	ClassName string
	Rejoined  bool
}

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteBaseURL configures the base URL used to build invite hyperlinks.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithInviteCodeLength adjusts generated code length.
func WithInviteCodeLength(length int) InviteOption {
	return func(s *InviteService) {
		if length > 0 {
			s.codeLength = length
		}
	}
}

// WithSynchronousMail delivers invite email inline instead of in a goroutine.
// Tests use this to observe dispatch without racing the test exit.
func WithSynchronousMail() InviteOption {
	return func(s *InviteService) {
		s.syncMail = true
	}
}

// InviteService owns the invite lifecycle: issuance, validation, redemption
// and revocation. Redemption is the only writer of used_count.
type InviteService struct {
	db         *gorm.DB
	mailer     mail.Mailer
	audit      *AuditService
	log        *zap.Logger
	baseURL    string
	codeLength int
	syncMail   bool
	now        func() time.Time
}

// NewInviteService constructs an InviteService with the provided dependencies.
// The mailer and audit service are optional collaborators.
func NewInviteService(db *gorm.DB, mailer mail.Mailer, audit *AuditService, log *zap.Logger, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	service := &InviteService{
		db:         db,
		mailer:     mailer,
		audit:      audit,
		log:        log,
		codeLength: crypto.DefaultInviteCodeLength,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Issue creates a new invite on behalf of the issuer. Authorisation rules:
// superadmins issue teacher invites (and anything else); teachers issue
// student and class invites, class invites only for classes they own.
func (s *InviteService) Issue(ctx context.Context, issuer Identity, input IssueInviteInput) (*models.Invite, error) {
	ctx = ensureContext(ctx)

	issuerProfile, err := s.loadIssuer(ctx, issuer)
	if err != nil {
		return nil, err
	}

	invite, err := s.buildInvite(ctx, issuerProfile, input)
	if err != nil {
		return nil, err
	}

	if err := s.createWithFreshCode(ctx, invite); err != nil {
		return nil, err
	}

	metrics.InvitesIssued.WithLabelValues(string(invite.Kind)).Inc()
	s.auditLog(ctx, issuer.ID, AuditInviteIssued, invite.ID, "success", map[string]any{
		"kind":     invite.Kind,
		"max_uses": invite.MaxUses,
	})

	// Email dispatch is best-effort and happens after the row is committed.
	// Failures are logged, never propagated, and never roll back issuance.
	if invite.Email != "" && s.mailer != nil {
		if s.syncMail {
			s.dispatchInviteMail(ctx, invite)
		} else {
			go s.dispatchInviteMail(context.Background(), invite)
		}
	}

	return invite, nil
}

// Validate answers whether a code is currently redeemable without consuming
// it. It never mutates state and may observe state that a concurrent
// redemption immediately invalidates.
func (s *InviteService) Validate(ctx context.Context, code, email string) (ValidationResult, error) {
	ctx = ensureContext(ctx)

	invite, err := s.findByCode(s.db.WithContext(ctx), code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ValidationResult{Reason: ReasonNotFound}, nil
		}
		return ValidationResult{}, apperrors.ErrStoreUnavailable.WithInternal(err)
	}

	if reason, ok := s.classify(invite, s.now()); !ok {
		return ValidationResult{Reason: reason}, nil
	}

	if invite.Kind == models.InviteKindTeacher && !strings.EqualFold(normaliseEmail(email), invite.Email) {
		return ValidationResult{Reason: ReasonEmailMismatch}, nil
	}

	return ValidationResult{
		Valid: true,
		Role:  invite.RoleGranted,
		Track: invite.Track,
	}, nil
}

// Redeem atomically consumes one use of the invite and provisions the
// redeemer's profile (and class membership for class invites). At most
// MaxUses redemptions succeed regardless of concurrency: the counter
// increment is guarded by the full redeemable invariant in its WHERE clause
// and runs inside one transaction with the provisioning writes.
func (s *InviteService) Redeem(ctx context.Context, redeemer Identity, code string, display ProvisionInput) (*RedemptionResult, error) {
	ctx = ensureContext(ctx)

	var (
		result RedemptionResult
		kind   models.InviteKind
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invite, err := s.findByCodeLocked(tx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrInviteNotFound
			}
			return apperrors.ErrStoreUnavailable.WithInternal(err)
		}
		kind = invite.Kind

		now := s.now()
		if reason, ok := s.classify(invite, now); !ok {
			return reasonError(reason)
		}

		if invite.Kind == models.InviteKindTeacher &&
			!strings.EqualFold(normaliseEmail(redeemer.Email), invite.Email) {
			return apperrors.ErrInviteEmailMismatch
		}

		// Re-joining a class with the same identity is a no-op success and
		// must not burn another use.
		if invite.Kind == models.InviteKindClass && invite.ClassID != nil {
			var existing models.ClassMembership
			err := tx.Where("class_id = ? AND user_id = ?", *invite.ClassID, redeemer.ID).
				First(&existing).Error
			switch {
			case err == nil:
				class, classErr := s.loadClass(tx, *invite.ClassID)
				if classErr != nil {
					return classErr
				}
				result = RedemptionResult{
					Role:      invite.RoleGranted,
					ClassID:   class.ID,
					ClassName: class.Name,
					Rejoined:  true,
				}
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return apperrors.ErrStoreUnavailable.WithInternal(err)
			}
		}

		// Conditional increment: the concurrency backstop. Zero rows means
		// another transaction consumed the remaining budget (or revoked the
		// invite) after our read.
		res := tx.Model(&models.Invite{}).
			Where("id = ? AND active = ? AND revoked_at IS NULL AND expires_at > ? AND used_count < max_uses",
				invite.ID, true, now).
			UpdateColumn("used_count", gorm.Expr("used_count + 1"))
		if res.Error != nil {
			return apperrors.ErrStoreUnavailable.WithInternal(res.Error)
		}
		if res.RowsAffected == 0 {
			var current models.Invite
			if err := tx.First(&current, "id = ?", invite.ID).Error; err == nil {
				if reason, ok := s.classify(&current, now); !ok {
					return reasonError(reason)
				}
			}
			return apperrors.ErrConcurrentConflict
		}

		provision := display
		provision.Identity = redeemer
		provision.Role = invite.RoleGranted
		if provision.Track == nil {
			provision.Track = invite.Track
		}
		if _, err := provisionProfile(tx, provision); err != nil {
			return err
		}

		result = RedemptionResult{Role: invite.RoleGranted}

		if invite.Kind == models.InviteKindClass && invite.ClassID != nil {
			membership := models.ClassMembership{
				ClassID: *invite.ClassID,
				UserID:  redeemer.ID,
				Role:    "student",
			}
			if err := tx.Create(&membership).Error; err != nil && !isUniqueConstraintError(err) {
				return apperrors.ErrStoreUnavailable.WithInternal(err)
			}
			class, classErr := s.loadClass(tx, *invite.ClassID)
			if classErr != nil {
				return classErr
			}
			result.ClassID = class.ID
			result.ClassName = class.Name
		}

		return nil
	})

	outcome := "success"
	if err != nil {
		outcome = redemptionOutcome(err)
	}
	metrics.InviteRedemptions.WithLabelValues(string(kind), outcome).Inc()

	if err != nil {
		return nil, err
	}

	s.auditLog(ctx, redeemer.ID, AuditInviteRedeemed, code, "success", map[string]any{
		"kind": kind,
		"role": result.Role,
	})
	return &result, nil
}

// Revoke deactivates an invite ahead of its expiry. Only the issuer or a
// superadmin may revoke; remaining uses are forfeited but the row stays.
func (s *InviteService) Revoke(ctx context.Context, actor Identity, inviteID string) error {
	ctx = ensureContext(ctx)

	var invite models.Invite
	if err := s.db.WithContext(ctx).First(&invite, "id = ?", strings.TrimSpace(inviteID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrInviteNotFound
		}
		return apperrors.ErrStoreUnavailable.WithInternal(err)
	}

	actorProfile, err := s.loadIssuer(ctx, actor)
	if err != nil {
		return err
	}
	if invite.CreatedBy != actor.ID && actorProfile.Role != models.RoleSuperadmin {
		return apperrors.ErrForbidden
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&invite).Updates(map[string]any{
		"active":     false,
		"revoked_at": now,
	}).Error; err != nil {
		return apperrors.ErrStoreUnavailable.WithInternal(err)
	}

	s.auditLog(ctx, actor.ID, AuditInviteRevoked, invite.ID, "success", nil)
	return nil
}

// ListByIssuer returns invites created by the given identity, newest first.
func (s *InviteService) ListByIssuer(ctx context.Context, issuerID string) ([]models.Invite, error) {
	ctx = ensureContext(ctx)

	var invites []models.Invite
	err := s.db.WithContext(ctx).
		Preload("Class").
		Where("created_by = ?", issuerID).
		Order("created_at DESC").
		Find(&invites).Error
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return invites, nil
}

// DeactivateExpired flips active off for invites past their expiry. Invoked
// by the maintenance scheduler; redemption does not depend on it because the
// invariant checks expires_at directly.
func (s *InviteService) DeactivateExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Model(&models.Invite{}).
		Where("active = ? AND expires_at <= ?", true, s.now()).
		UpdateColumn("active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("invite service: deactivate expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// InviteLink renders the join URL distributed to invitees.
func (s *InviteService) InviteLink(code string) string {
	if s.baseURL == "" {
		return code
	}
	return fmt.Sprintf("%s/join?code=%s", s.baseURL, code)
}

func (s *InviteService) buildInvite(ctx context.Context, issuer *models.Profile, input IssueInviteInput) (*models.Invite, error) {
	invite := &models.Invite{
		Kind:      input.Kind,
		Email:     normaliseEmail(input.Email),
		Track:     input.Track,
		MaxUses:   input.MaxUses,
		Active:    true,
		CreatedBy: issuer.ID,
	}

	switch input.Kind {
	case models.InviteKindTeacher:
		if issuer.Role != models.RoleSuperadmin {
			return nil, apperrors.ErrForbidden
		}
		if invite.Email == "" {
			return nil, apperrors.NewBadRequest("teacher invites must be bound to an email address")
		}
		invite.RoleGranted = models.RoleTeacher
		invite.MaxUses = 1
		invite.ExpiresAt = s.now().Add(defaultExpiry(input.ExpiresIn, models.TeacherInviteExpiry))

	case models.InviteKindStudent:
		if issuer.Role != models.RoleTeacher && issuer.Role != models.RoleSuperadmin {
			return nil, apperrors.ErrForbidden
		}
		invite.RoleGranted = models.RoleStudent
		invite.MaxUses = 1
		invite.ExpiresAt = s.now().Add(defaultExpiry(input.ExpiresIn, models.StudentInviteExpiry))

	case models.InviteKindClass:
		if issuer.Role != models.RoleTeacher && issuer.Role != models.RoleSuperadmin {
			return nil, apperrors.ErrForbidden
		}
		classID := strings.TrimSpace(input.ClassID)
		if classID == "" {
			return nil, apperrors.NewBadRequest("class invites require a class id")
		}
		class, err := s.loadClass(s.db.WithContext(ctx), classID)
		if err != nil {
			return nil, err
		}
		if class.OwnerID != issuer.ID && issuer.Role != models.RoleSuperadmin {
			return nil, apperrors.ErrForbidden
		}
		invite.ClassID = &class.ID
		invite.RoleGranted = models.RoleStudent
		if invite.MaxUses <= 0 {
			invite.MaxUses = defaultClassMaxUses
		}
		invite.ExpiresAt = s.now().Add(defaultExpiry(input.ExpiresIn, models.ClassInviteExpiry))

	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown invite kind %q", input.Kind))
	}

	return invite, nil
}

// createWithFreshCode persists the invite, regenerating the code on the
// astronomically unlikely uniqueness collision.
func (s *InviteService) createWithFreshCode(ctx context.Context, invite *models.Invite) error {
	for attempt := 0; attempt < codeCollisionRetries; attempt++ {
		code, err := crypto.GenerateInviteCode(s.codeLength)
		if err != nil {
			return fmt.Errorf("invite service: generate code: %w", err)
		}
		invite.Code = code

		err = s.db.WithContext(ctx).Create(invite).Error
		if err == nil {
			return nil
		}
		if !isUniqueConstraintError(err) {
			return apperrors.ErrStoreUnavailable.WithInternal(err)
		}
		invite.ID = ""
	}
	return errors.New("invite service: exhausted code generation attempts")
}

func (s *InviteService) findByCode(tx *gorm.DB, code string) (*models.Invite, error) {
	return s.lookupCode(tx, code)
}

// findByCodeLocked row-locks the invite for the duration of the redemption
// transaction on engines that support it. SQLite serialises writers at BEGIN
// instead (see the _txlock DSN parameter).
func (s *InviteService) findByCodeLocked(tx *gorm.DB, code string) (*models.Invite, error) {
	if tx.Dialector.Name() != "sqlite" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return s.lookupCode(tx, code)
}

// lookupCode selects at most one row deterministically even if the unique
// index were ever violated: newest invite wins.
func (s *InviteService) lookupCode(tx *gorm.DB, code string) (*models.Invite, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, gorm.ErrRecordNotFound
	}

	var invite models.Invite
	err := tx.Where("code = ?", code).
		Order("created_at DESC").
		First(&invite).Error
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

// classify evaluates the redeemable invariant, returning the first failing
// reason in a fixed order: revoked, expired, exhausted.
func (s *InviteService) classify(invite *models.Invite, now time.Time) (InvalidReason, bool) {
	switch {
	case !invite.Active || invite.RevokedAt != nil:
		return ReasonRevoked, false
	case !now.Before(invite.ExpiresAt):
		return ReasonExpired, false
	case invite.UsedCount >= invite.MaxUses:
		return ReasonExhausted, false
	}
	return "", true
}

func (s *InviteService) loadClass(tx *gorm.DB, id string) (*models.Class, error) {
	var class models.Class
	if err := tx.First(&class, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassNotFound
		}
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return &class, nil
}

func (s *InviteService) loadIssuer(ctx context.Context, issuer Identity) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", issuer.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrForbidden
		}
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	if !profile.IsActive {
		return nil, apperrors.ErrForbidden
	}
	return &profile, nil
}

func (s *InviteService) dispatchInviteMail(ctx context.Context, invite *models.Invite) {
	subject := "You're invited to Classable"
	body := fmt.Sprintf(
		"Hello,\n\nYou have been invited to join Classable as a %s. Use this code to join:\n\n    %s\n\nOr follow the link: %s\n\nThe code expires on %s.\n",
		invite.RoleGranted, invite.Code, s.InviteLink(invite.Code), invite.ExpiresAt.Format(time.RFC1123),
	)

	err := s.mailer.Send(ctx, mail.Message{
		To:      []string{invite.Email},
		Subject: subject,
		Body:    body,
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("invite email delivery failed",
			zap.String("invite_id", invite.ID),
			zap.Error(err),
		)
	}
}

func (s *InviteService) auditLog(ctx context.Context, userID, action, resource, result string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := AuditEntry{
		Action:   action,
		Resource: resource,
		Result:   result,
		Metadata: meta,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func defaultExpiry(requested, fallback time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return fallback
}

func reasonError(reason InvalidReason) error {
	switch reason {
	case ReasonNotFound:
		return apperrors.ErrInviteNotFound
	case ReasonExpired:
		return apperrors.ErrInviteExpired
	case ReasonExhausted:
		return apperrors.ErrInviteExhausted
	case ReasonRevoked:
		return apperrors.ErrInviteRevoked
	case ReasonEmailMismatch:
		return apperrors.ErrInviteEmailMismatch
	default:
		return apperrors.ErrInternalServer
	}
}

func redemptionOutcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInviteNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInviteExpired):
		return "expired"
	case errors.Is(err, apperrors.ErrInviteExhausted):
		return "exhausted"
	case errors.Is(err, apperrors.ErrInviteRevoked):
		return "revoked"
	case errors.Is(err, apperrors.ErrInviteEmailMismatch):
		return "email_mismatch"
	case errors.Is(err, apperrors.ErrConcurrentConflict):
		return "conflict"
	default:
		return "error"
	}
}
