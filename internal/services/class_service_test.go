package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classable/classable/internal/database/testutil"
	"github.com/classable/classable/internal/models"
	apperrors "github.com/classable/classable/pkg/errors"
)

func newClassTestEnv(t *testing.T) (*gorm.DB, *ClassService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewClassService(db)
	require.NoError(t, err)
	return db, svc
}

func seedProfile(t *testing.T, db *gorm.DB, email string, role models.Role) Identity {
	t.Helper()

	identity := newAccount(t, db, email)
	require.NoError(t, db.Create(&models.Profile{ID: identity.ID, Role: role, IsActive: true}).Error)
	return identity
}

func TestCreateAndListClasses(t *testing.T) {
	db, svc := newClassTestEnv(t)
	ctx := context.Background()

	teacher := seedProfile(t, db, "teacher@example.com", models.RoleTeacher)

	class, err := svc.Create(ctx, teacher, CreateClassInput{Name: "Physics", Subject: "Science"})
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, class.OwnerID)

	_, err = svc.Create(ctx, teacher, CreateClassInput{Name: "   "})
	assert.Error(t, err)

	owned, err := svc.ListOwned(ctx, teacher.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "Physics", owned[0].Name)
}

func TestRosterRequiresOwnership(t *testing.T) {
	db, svc := newClassTestEnv(t)
	ctx := context.Background()

	owner := seedProfile(t, db, "owner@example.com", models.RoleTeacher)
	other := seedProfile(t, db, "other@example.com", models.RoleTeacher)
	admin := seedProfile(t, db, "admin@example.com", models.RoleSuperadmin)
	student := seedProfile(t, db, "student@example.com", models.RoleStudent)

	class, err := svc.Create(ctx, owner, CreateClassInput{Name: "History"})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.ClassMembership{
		ClassID: class.ID,
		UserID:  student.ID,
		Role:    "student",
	}).Error)

	members, err := svc.Roster(ctx, owner, class.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, student.ID, members[0].UserID)
	require.NotNil(t, members[0].Profile)

	_, err = svc.Roster(ctx, other, class.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	// Superadmins bypass the ownership check.
	_, err = svc.Roster(ctx, admin, class.ID)
	assert.NoError(t, err)
}

func TestListJoined(t *testing.T) {
	db, svc := newClassTestEnv(t)
	ctx := context.Background()

	teacher := seedProfile(t, db, "teacher@example.com", models.RoleTeacher)
	student := seedProfile(t, db, "student@example.com", models.RoleStudent)

	class, err := svc.Create(ctx, teacher, CreateClassInput{Name: "Chemistry"})
	require.NoError(t, err)

	joined, err := svc.ListJoined(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, joined)

	require.NoError(t, db.Create(&models.ClassMembership{
		ClassID: class.ID,
		UserID:  student.ID,
		Role:    "student",
	}).Error)

	joined, err = svc.ListJoined(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, class.ID, joined[0].ID)
}

func TestRemoveMemberAndArchive(t *testing.T) {
	db, svc := newClassTestEnv(t)
	ctx := context.Background()

	owner := seedProfile(t, db, "owner@example.com", models.RoleTeacher)
	student := seedProfile(t, db, "student@example.com", models.RoleStudent)

	class, err := svc.Create(ctx, owner, CreateClassInput{Name: "Art"})
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.ClassMembership{
		ClassID: class.ID,
		UserID:  student.ID,
		Role:    "student",
	}).Error)

	require.NoError(t, svc.RemoveMember(ctx, owner, class.ID, student.ID))
	// Removing an absent member is a no-op.
	require.NoError(t, svc.RemoveMember(ctx, owner, class.ID, student.ID))

	var count int64
	require.NoError(t, db.Model(&models.ClassMembership{}).Where("class_id = ?", class.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	require.NoError(t, svc.Archive(ctx, owner, class.ID))
	reloaded, err := svc.GetByID(ctx, class.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Archived)
}

func TestGetByIDUnknownClass(t *testing.T) {
	_, svc := newClassTestEnv(t)

	_, err := svc.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrClassNotFound)
}
