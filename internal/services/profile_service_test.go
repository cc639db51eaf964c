package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classable/classable/internal/database/testutil"
	"github.com/classable/classable/internal/models"
	"github.com/classable/classable/pkg/crypto"
	apperrors "github.com/classable/classable/pkg/errors"
)

func newProfileTestEnv(t *testing.T) (*gorm.DB, *ProfileService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewProfileService(db)
	require.NoError(t, err)
	return db, svc
}

func newAccount(t *testing.T, db *gorm.DB, email string) Identity {
	t.Helper()

	hash, err := crypto.HashPassword("test-password-1")
	require.NoError(t, err)
	account := models.Account{Email: email, Password: hash, IsActive: true}
	require.NoError(t, db.Create(&account).Error)
	return Identity{ID: account.ID, Email: account.Email}
}

func TestEnsureProfileCreatesOnce(t *testing.T) {
	db, svc := newProfileTestEnv(t)
	ctx := context.Background()

	identity := newAccount(t, db, "alice@example.com")
	profile, err := svc.EnsureProfile(ctx, ProvisionInput{
		Identity:  identity,
		Role:      models.RoleStudent,
		FirstName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, identity.ID, profile.ID)
	assert.Equal(t, models.RoleStudent, profile.Role)
	assert.Equal(t, "Alice", profile.FirstName)

	// A second call with different display data leaves the row untouched.
	again, err := svc.EnsureProfile(ctx, ProvisionInput{
		Identity:  identity,
		Role:      models.RoleStudent,
		FirstName: "Alicia",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.FirstName)

	var count int64
	require.NoError(t, db.Model(&models.Profile{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnsureProfileUpgradesButNeverDowngrades(t *testing.T) {
	db, svc := newProfileTestEnv(t)
	ctx := context.Background()

	identity := newAccount(t, db, "bob@example.com")
	_, err := svc.EnsureProfile(ctx, ProvisionInput{Identity: identity, Role: models.RoleStudent})
	require.NoError(t, err)

	// Student -> teacher is an upgrade.
	_, err = svc.EnsureProfile(ctx, ProvisionInput{Identity: identity, Role: models.RoleTeacher})
	require.NoError(t, err)

	reloaded, err := svc.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, reloaded.Role)

	// Teacher -> student must not downgrade.
	_, err = svc.EnsureProfile(ctx, ProvisionInput{Identity: identity, Role: models.RoleStudent})
	require.NoError(t, err)

	reloaded, err = svc.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, reloaded.Role)
}

func TestEnsureProfileConcurrentCallsYieldOneRow(t *testing.T) {
	db, svc := newProfileTestEnv(t)
	ctx := context.Background()

	identity := newAccount(t, db, "carol@example.com")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.EnsureProfile(ctx, ProvisionInput{
				Identity: identity,
				Role:     models.RoleStudent,
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.Profile{}).Where("id = ?", identity.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSetTrackIsStudentOnlyAndImmutable(t *testing.T) {
	db, svc := newProfileTestEnv(t)
	ctx := context.Background()

	student := newAccount(t, db, "student@example.com")
	_, err := svc.EnsureProfile(ctx, ProvisionInput{Identity: student, Role: models.RoleStudent})
	require.NoError(t, err)

	profile, err := svc.SetTrack(ctx, student.ID, models.TrackBusiness)
	require.NoError(t, err)
	require.NotNil(t, profile.Track)
	assert.Equal(t, models.TrackBusiness, *profile.Track)

	_, err = svc.SetTrack(ctx, student.ID, models.TrackGeneral)
	assert.ErrorIs(t, err, ErrTrackAlreadySet)

	teacher := newAccount(t, db, "teacher@example.com")
	_, err = svc.EnsureProfile(ctx, ProvisionInput{Identity: teacher, Role: models.RoleTeacher})
	require.NoError(t, err)

	_, err = svc.SetTrack(ctx, teacher.ID, models.TrackGeneral)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestTrackSetOnceDuringProvisioning(t *testing.T) {
	db, svc := newProfileTestEnv(t)
	ctx := context.Background()

	identity := newAccount(t, db, "dan@example.com")
	general := models.TrackGeneral
	business := models.TrackBusiness

	_, err := svc.EnsureProfile(ctx, ProvisionInput{
		Identity: identity,
		Role:     models.RoleStudent,
		Track:    &general,
	})
	require.NoError(t, err)

	// Provisioning again with another track does not overwrite.
	_, err = svc.EnsureProfile(ctx, ProvisionInput{
		Identity: identity,
		Role:     models.RoleStudent,
		Track:    &business,
	})
	require.NoError(t, err)

	profile, err := svc.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.Track)
	assert.Equal(t, models.TrackGeneral, *profile.Track)
}

func TestMarkPasswordChanged(t *testing.T) {
	db, svc := newProfileTestEnv(t)
	ctx := context.Background()

	identity := newAccount(t, db, "teacher@example.com")
	_, err := svc.EnsureProfile(ctx, ProvisionInput{Identity: identity, Role: models.RoleTeacher})
	require.NoError(t, err)

	require.NoError(t, svc.MarkPasswordChanged(ctx, identity.ID))

	profile, err := svc.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.True(t, profile.PasswordChanged)

	assert.ErrorIs(t, svc.MarkPasswordChanged(ctx, "00000000-0000-0000-0000-000000000000"), ErrProfileNotFound)
}
