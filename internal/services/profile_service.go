package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classable/classable/internal/models"
	apperrors "github.com/classable/classable/pkg/errors"
)

var (
	// ErrProfileNotFound indicates no profile exists for the identity.
	ErrProfileNotFound = apperrors.New("PROFILE_NOT_FOUND", "Profile not found", http.StatusNotFound)
	// ErrTrackAlreadySet prevents re-running onboarding for a student.
	ErrTrackAlreadySet = apperrors.New("TRACK_ALREADY_SET", "Learning track has already been chosen", http.StatusConflict)
)

// ProvisionInput describes a profile provisioning request.
type ProvisionInput struct {
	Identity  Identity
	Role      models.Role
	FirstName string
	LastName  string
	Track     *models.Track
}

// ProfileService owns the role-tagged profile records bound 1:1 to accounts.
type ProfileService struct {
	db *gorm.DB
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB) (*ProfileService, error) {
	if db == nil {
		return nil, errors.New("profile service: db is required")
	}
	return &ProfileService{db: db}, nil
}

// EnsureProfile guarantees a profile row exists for the identity with the
// given role granted. Existing fields are left untouched except the role,
// which is only raised, never silently downgraded. Safe to call concurrently
// for the same identity.
func (s *ProfileService) EnsureProfile(ctx context.Context, input ProvisionInput) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	var profile *models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		profile, txErr = provisionProfile(tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// provisionProfile performs the upsert inside the caller's transaction so
// invite redemption can compose it atomically with the counter increment.
func provisionProfile(tx *gorm.DB, input ProvisionInput) (*models.Profile, error) {
	id := strings.TrimSpace(input.Identity.ID)
	if id == "" {
		return nil, apperrors.NewBadRequest("identity id is required")
	}
	if !input.Role.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", input.Role))
	}

	fresh := models.Profile{
		ID:        id,
		Role:      input.Role,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Track:     input.Track,
		IsActive:  true,
	}

	// Insert-if-absent keyed by identity id. A concurrent provisioning call
	// for the same identity degrades to the update path below.
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil && !isUniqueConstraintError(err) {
		return nil, fmt.Errorf("provision profile: upsert: %w", err)
	}

	var profile models.Profile
	if err := tx.First(&profile, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("provision profile: reload: %w", err)
	}

	updates := map[string]any{}
	if input.Role.Rank() > profile.Role.Rank() {
		updates["role"] = input.Role
	}
	if profile.Track == nil && input.Track != nil && profile.Role == models.RoleStudent {
		updates["track"] = *input.Track
	}
	if len(updates) > 0 {
		if err := tx.Model(&profile).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("provision profile: apply grant: %w", err)
		}
	}

	return &profile, nil
}

// GetByID loads a profile for the given identity id.
func (s *ProfileService) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	var profile models.Profile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profile service: load: %w", err)
	}
	return &profile, nil
}

// SetTrack records the learner track chosen during onboarding. Student-only
// and immutable once set.
func (s *ProfileService) SetTrack(ctx context.Context, id string, track models.Track) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	if track != models.TrackGeneral && track != models.TrackBusiness {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown track %q", track))
	}

	profile, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile.Role != models.RoleStudent {
		return nil, apperrors.ErrForbidden
	}
	if profile.Track != nil {
		return nil, ErrTrackAlreadySet
	}

	if err := s.db.WithContext(ctx).Model(profile).Update("track", track).Error; err != nil {
		return nil, fmt.Errorf("profile service: set track: %w", err)
	}
	profile.Track = &track
	return profile, nil
}

// MarkPasswordChanged flips the temporary-credential flag for teachers.
func (s *ProfileService) MarkPasswordChanged(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", strings.TrimSpace(id)).
		Update("password_changed", true)
	if res.Error != nil {
		return fmt.Errorf("profile service: mark password changed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SetActive soft-enables or disables a profile. Superadmin action only;
// authorisation is enforced at the handler layer.
func (s *ProfileService) SetActive(ctx context.Context, id string, active bool) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", strings.TrimSpace(id)).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("profile service: set active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}
