package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classable/classable/internal/models"
	apperrors "github.com/classable/classable/pkg/errors"
)

// Survey is the onboarding questionnaire a new student fills in.
type Survey struct {
	Goals      string `json:"goals"`
	Background string `json:"background"`
	HoursPerWk int    `json:"hours_per_week"`
	Interests  string `json:"interests"`
}

// GeneratedProfile is the learning-profile summary produced from a survey.
type GeneratedProfile struct {
	Summary          string       `json:"summary"`
	RecommendedTrack models.Track `json:"recommended_track"`
}

// ProfileGenerator turns a survey into a learning profile. Implementations
// must be safe for concurrent use.
type ProfileGenerator interface {
	Generate(ctx context.Context, survey Survey) (*GeneratedProfile, error)
	Name() string
}

// OnboardingService stores survey answers and the generated learning
// profile. Generation failures fall back to a heuristic so onboarding never
// blocks on an upstream model.
type OnboardingService struct {
	db        *gorm.DB
	generator ProfileGenerator
	fallback  ProfileGenerator
	log       *zap.Logger
}

func NewOnboardingService(db *gorm.DB, generator ProfileGenerator, log *zap.Logger) (*OnboardingService, error) {
	if db == nil {
		return nil, errors.New("onboarding service: db is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OnboardingService{
		db:        db,
		generator: generator,
		fallback:  StaticGenerator{},
		log:       log,
	}, nil
}

// Complete records the survey and produces the learning profile. Calling it
// again replaces the previous answers and summary.
func (s *OnboardingService) Complete(ctx context.Context, userID string, survey Survey) (*models.OnboardingProfile, error) {
	ctx = ensureContext(ctx)

	generated, generatorName := s.generate(ctx, survey)

	raw, err := json.Marshal(survey)
	if err != nil {
		return nil, fmt.Errorf("onboarding service: marshal survey: %w", err)
	}

	record := models.OnboardingProfile{
		UserID:    userID,
		Survey:    datatypes.JSON(raw),
		Summary:   generated.Summary,
		Track:     generated.RecommendedTrack,
		Generator: generatorName,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"survey", "summary", "track", "generator", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return &record, nil
}

// Get loads the stored onboarding profile for a user.
func (s *OnboardingService) Get(ctx context.Context, userID string) (*models.OnboardingProfile, error) {
	ctx = ensureContext(ctx)

	var record models.OnboardingProfile
	err := s.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return &record, nil
}

func (s *OnboardingService) generate(ctx context.Context, survey Survey) (*GeneratedProfile, string) {
	if s.generator != nil {
		generated, err := s.generator.Generate(ctx, survey)
		if err == nil && generated != nil {
			return generated, s.generator.Name()
		}
		if err != nil {
			s.log.Warn("profile generation failed, using fallback",
				zap.String("generator", s.generator.Name()),
				zap.Error(err),
			)
		}
	}

	generated, _ := s.fallback.Generate(ctx, survey)
	return generated, s.fallback.Name()
}

// StaticGenerator is a deterministic heuristic used when no model backend is
// configured or the backend fails.
type StaticGenerator struct{}

func (StaticGenerator) Name() string { return "static" }

func (StaticGenerator) Generate(_ context.Context, survey Survey) (*GeneratedProfile, error) {
	track := models.TrackGeneral
	lowered := strings.ToLower(survey.Goals + " " + survey.Interests)
	for _, hint := range []string{"business", "finance", "marketing", "negotiation", "sales"} {
		if strings.Contains(lowered, hint) {
			track = models.TrackBusiness
			break
		}
	}

	summary := fmt.Sprintf(
		"Learner goals: %s. Recommended starting point: the %s track with roughly %d hours per week.",
		firstNonEmpty(survey.Goals, "not specified"), track, max(survey.HoursPerWk, 1),
	)
	return &GeneratedProfile{Summary: summary, RecommendedTrack: track}, nil
}

// OpenAIGeneratorConfig configures the chat-completions backed generator.
// Any OpenAI-compatible endpoint works.
type OpenAIGeneratorConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIGenerator asks a chat-completions endpoint to summarise the survey
// into a learning profile.
type OpenAIGenerator struct {
	cfg    OpenAIGeneratorConfig
	client *http.Client
}

func NewOpenAIGenerator(cfg OpenAIGeneratorConfig) (*OpenAIGenerator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("openai generator: base url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai generator: model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIGenerator{cfg: cfg, client: &http.Client{Timeout: timeout}}, nil
}

func (g *OpenAIGenerator) Name() string { return "openai:" + g.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const profilePrompt = `You prepare concise learning profiles for an education platform.
Given a student's onboarding survey, reply with a JSON object with exactly two keys:
"summary" (2-3 sentences describing the learner and a suggested starting point) and
"recommended_track" (either "general" or "business").`

func (g *OpenAIGenerator) Generate(ctx context.Context, survey Survey) (*GeneratedProfile, error) {
	surveyJSON, err := json.Marshal(survey)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: profilePrompt},
			{Role: "user", Content: string(surveyJSON)},
		},
		ResponseFormat: json.RawMessage(`{"type":"json_object"}`),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai generator: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("openai generator: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai generator: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("openai generator: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai generator: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("openai generator: empty choices")
	}

	var generated GeneratedProfile
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &generated); err != nil {
		return nil, fmt.Errorf("openai generator: decode profile: %w", err)
	}
	if generated.RecommendedTrack != models.TrackGeneral && generated.RecommendedTrack != models.TrackBusiness {
		generated.RecommendedTrack = models.TrackGeneral
	}
	if strings.TrimSpace(generated.Summary) == "" {
		return nil, errors.New("openai generator: empty summary")
	}
	return &generated, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
