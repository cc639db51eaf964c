package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classable/classable/internal/database/testutil"
	"github.com/classable/classable/internal/models"
)

func TestStaticGeneratorPicksTrackFromKeywords(t *testing.T) {
	gen := StaticGenerator{}

	business, err := gen.Generate(context.Background(), Survey{
		Goals: "I want to improve my business negotiation skills",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TrackBusiness, business.RecommendedTrack)
	assert.NotEmpty(t, business.Summary)

	general, err := gen.Generate(context.Background(), Survey{
		Goals: "Everyday conversation practice",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TrackGeneral, general.RecommendedTrack)
}

func TestOnboardingCompleteStoresAndUpserts(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewOnboardingService(db, nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	student := newAccount(t, db, "student@example.com")
	require.NoError(t, db.Create(&models.Profile{
		ID: student.ID, Role: models.RoleStudent, IsActive: true,
	}).Error)

	first, err := svc.Complete(ctx, student.ID, Survey{Goals: "pass my exams", HoursPerWk: 5})
	require.NoError(t, err)
	assert.Equal(t, "static", first.Generator)
	assert.Equal(t, models.TrackGeneral, first.Track)

	// Re-running the survey replaces the stored answers, not adds a row.
	second, err := svc.Complete(ctx, student.ID, Survey{Goals: "business english", HoursPerWk: 3})
	require.NoError(t, err)
	assert.Equal(t, models.TrackBusiness, second.Track)

	var count int64
	require.NoError(t, db.Model(&models.OnboardingProfile{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	stored, err := svc.Get(ctx, student.ID)
	require.NoError(t, err)
	assert.Contains(t, string(stored.Survey), "business english")
}

type failingGenerator struct{}

func (failingGenerator) Name() string { return "failing" }
func (failingGenerator) Generate(context.Context, Survey) (*GeneratedProfile, error) {
	return nil, errors.New("model unavailable")
}

func TestOnboardingFallsBackWhenGeneratorFails(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewOnboardingService(db, failingGenerator{}, zap.NewNop())
	require.NoError(t, err)

	student := newAccount(t, db, "student@example.com")
	require.NoError(t, db.Create(&models.Profile{
		ID: student.ID, Role: models.RoleStudent, IsActive: true,
	}).Error)

	record, err := svc.Complete(context.Background(), student.ID, Survey{Goals: "learn"})
	require.NoError(t, err)
	assert.Equal(t, "static", record.Generator)
	assert.NotEmpty(t, record.Summary)
}

func TestOpenAIGenerator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": `{"summary":"A motivated learner.","recommended_track":"business"}`,
				}},
			},
		})
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(OpenAIGeneratorConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
	require.NoError(t, err)
	assert.Equal(t, "openai:test-model", gen.Name())

	profile, err := gen.Generate(context.Background(), Survey{Goals: "close deals"})
	require.NoError(t, err)
	assert.Equal(t, "A motivated learner.", profile.Summary)
	assert.Equal(t, models.TrackBusiness, profile.RecommendedTrack)
}

func TestOpenAIGeneratorErrorPaths(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		gen, err := NewOpenAIGenerator(OpenAIGeneratorConfig{BaseURL: server.URL, Model: "m"})
		require.NoError(t, err)

		_, err = gen.Generate(context.Background(), Survey{})
		assert.Error(t, err)
	})

	t.Run("unknown track falls back to general", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{
						"role":    "assistant",
						"content": `{"summary":"ok","recommended_track":"advanced"}`,
					}},
				},
			})
		}))
		defer server.Close()

		gen, err := NewOpenAIGenerator(OpenAIGeneratorConfig{BaseURL: server.URL, Model: "m"})
		require.NoError(t, err)

		profile, err := gen.Generate(context.Background(), Survey{})
		require.NoError(t, err)
		assert.Equal(t, models.TrackGeneral, profile.RecommendedTrack)
	})
}
