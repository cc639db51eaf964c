package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/classable/classable/internal/models"
	apperrors "github.com/classable/classable/pkg/errors"
)

// ErrClassNotFound indicates the requested class does not exist.
var ErrClassNotFound = apperrors.New("CLASS_NOT_FOUND", "Class not found", 404)

// CreateClassInput describes a new class.
type CreateClassInput struct {
	Name    string
	Subject string
}

// ClassService manages classes and their rosters.
type ClassService struct {
	db *gorm.DB
}

func NewClassService(db *gorm.DB) (*ClassService, error) {
	if db == nil {
		return nil, errors.New("class service: db is required")
	}
	return &ClassService{db: db}, nil
}

// Create registers a class owned by the given teacher.
func (s *ClassService) Create(ctx context.Context, owner Identity, input CreateClassInput) (*models.Class, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("class name is required")
	}

	class := models.Class{
		Name:    name,
		Subject: strings.TrimSpace(input.Subject),
		OwnerID: owner.ID,
	}
	if err := s.db.WithContext(ctx).Create(&class).Error; err != nil {
		return nil, fmt.Errorf("class service: create: %w", err)
	}
	return &class, nil
}

// GetByID loads a class by id.
func (s *ClassService) GetByID(ctx context.Context, id string) (*models.Class, error) {
	ctx = ensureContext(ctx)

	var class models.Class
	err := s.db.WithContext(ctx).First(&class, "id = ?", strings.TrimSpace(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("class service: load: %w", err)
	}
	return &class, nil
}

// ListOwned returns classes owned by the identity, newest first.
func (s *ClassService) ListOwned(ctx context.Context, ownerID string) ([]models.Class, error) {
	ctx = ensureContext(ctx)

	var classes []models.Class
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&classes).Error
	if err != nil {
		return nil, fmt.Errorf("class service: list owned: %w", err)
	}
	return classes, nil
}

// ListJoined returns classes the identity is a member of.
func (s *ClassService) ListJoined(ctx context.Context, userID string) ([]models.Class, error) {
	ctx = ensureContext(ctx)

	var classes []models.Class
	err := s.db.WithContext(ctx).
		Joins("JOIN class_memberships ON class_memberships.class_id = classes.id").
		Where("class_memberships.user_id = ?", userID).
		Order("classes.created_at DESC").
		Find(&classes).Error
	if err != nil {
		return nil, fmt.Errorf("class service: list joined: %w", err)
	}
	return classes, nil
}

// Roster returns the memberships of a class with profiles preloaded. Only
// the owner or a superadmin may read a roster.
func (s *ClassService) Roster(ctx context.Context, actor Identity, classID string) ([]models.ClassMembership, error) {
	ctx = ensureContext(ctx)

	class, err := s.GetByID(ctx, classID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOrAdmin(ctx, actor, class); err != nil {
		return nil, err
	}

	var members []models.ClassMembership
	err = s.db.WithContext(ctx).
		Preload("Profile").
		Where("class_id = ?", class.ID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("class service: roster: %w", err)
	}
	return members, nil
}

// RemoveMember drops a student from the roster. Idempotent.
func (s *ClassService) RemoveMember(ctx context.Context, actor Identity, classID, userID string) error {
	ctx = ensureContext(ctx)

	class, err := s.GetByID(ctx, classID)
	if err != nil {
		return err
	}
	if err := s.requireOwnerOrAdmin(ctx, actor, class); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).
		Where("class_id = ? AND user_id = ?", class.ID, userID).
		Delete(&models.ClassMembership{}).Error
	if err != nil {
		return fmt.Errorf("class service: remove member: %w", err)
	}
	return nil
}

// Archive hides a class from active listings without deleting its history.
func (s *ClassService) Archive(ctx context.Context, actor Identity, classID string) error {
	ctx = ensureContext(ctx)

	class, err := s.GetByID(ctx, classID)
	if err != nil {
		return err
	}
	if err := s.requireOwnerOrAdmin(ctx, actor, class); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(class).Update("archived", true).Error; err != nil {
		return fmt.Errorf("class service: archive: %w", err)
	}
	return nil
}

func (s *ClassService) requireOwnerOrAdmin(ctx context.Context, actor Identity, class *models.Class) error {
	if class.OwnerID == actor.ID {
		return nil
	}
	var profile models.Profile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", actor.ID).Error; err != nil {
		return apperrors.ErrForbidden
	}
	if profile.Role != models.RoleSuperadmin {
		return apperrors.ErrForbidden
	}
	return nil
}
