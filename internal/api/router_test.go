package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classable/classable/internal/auth"
	"github.com/classable/classable/internal/database/testutil"
	"github.com/classable/classable/internal/services"
	"github.com/classable/classable/pkg/mail"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiEnv struct {
	t      *testing.T
	router *gin.Engine
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedAdmin())
	log := zap.NewNop()

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret: "api-test-secret",
		Issuer: "classable-test",
	})
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	invites, err := services.NewInviteService(db, mail.NewLogMailer(log), audit, log,
		services.WithSynchronousMail(),
	)
	require.NoError(t, err)
	profiles, err := services.NewProfileService(db)
	require.NoError(t, err)
	accounts, err := services.NewAccountService(db, invites, jwtService, mail.NewLogMailer(log), audit, log)
	require.NoError(t, err)
	classes, err := services.NewClassService(db)
	require.NoError(t, err)
	billing, err := services.NewBillingService(db, services.BillingConfig{}, log)
	require.NoError(t, err)
	storage, err := services.NewStorageService(services.StorageConfig{})
	require.NoError(t, err)
	onboarding, err := services.NewOnboardingService(db, nil, log)
	require.NoError(t, err)

	router := NewRouter(db, jwtService, Services{
		Accounts:   accounts,
		Profiles:   profiles,
		Invites:    invites,
		Classes:    classes,
		Billing:    billing,
		Storage:    storage,
		Onboarding: onboarding,
		Audit:      audit,
	}, log)

	return &apiEnv{t: t, router: router}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *apiEnv) do(method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	e.t.Helper()

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func (e *apiEnv) login(email, password string) string {
	e.t.Helper()

	w, resp := e.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    email,
		"password": password,
	})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(e.t, json.Unmarshal(resp.Data, &data))
	return data.Token
}

func TestFullProvisioningFlow(t *testing.T) {
	env := newAPIEnv(t)

	adminToken := env.login(testutil.SeedAdminEmail, testutil.SeedAdminPassword)

	// Admin issues a teacher invite bound to an email.
	w, resp := env.do(http.MethodPost, "/api/invites", adminToken, gin.H{
		"kind":  "teacher",
		"email": "teacher@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var teacherInvite struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &teacherInvite))
	require.NotEmpty(t, teacherInvite.Code)

	// The prospective teacher validates the code before signing up.
	w, resp = env.do(http.MethodPost, "/api/auth/invites/validate", "", gin.H{
		"code":  teacherInvite.Code,
		"email": "teacher@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var validation struct {
		Valid bool   `json:"valid"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &validation))
	assert.True(t, validation.Valid)
	assert.Equal(t, "teacher", validation.Role)

	// Registration with the invite grants the teacher role and a token.
	w, resp = env.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email":       "teacher@example.com",
		"password":    "teacher-pw-123",
		"invite_code": teacherInvite.Code,
		"first_name":  "Tess",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var teacherAuth struct {
		Token   string `json:"token"`
		Profile struct {
			Role string `json:"role"`
		} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &teacherAuth))
	assert.Equal(t, "teacher", teacherAuth.Profile.Role)

	// Teacher creates a class and a bounded class invite.
	w, resp = env.do(http.MethodPost, "/api/classes", teacherAuth.Token, gin.H{
		"name":    "Spanish 101",
		"subject": "Languages",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var class struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &class))

	w, resp = env.do(http.MethodPost, "/api/invites", teacherAuth.Token, gin.H{
		"kind":     "class",
		"class_id": class.ID,
		"max_uses": 5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var classInvite struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &classInvite))

	// A student registers through the class invite and lands in the class.
	w, resp = env.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email":       "student@example.com",
		"password":    "student-pw-123",
		"invite_code": classInvite.Code,
		"first_name":  "Sam",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var studentAuth struct {
		Token   string `json:"token"`
		Profile struct {
			Role string `json:"role"`
		} `json:"profile"`
		Class struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"class"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &studentAuth))
	assert.Equal(t, "student", studentAuth.Profile.Role)
	assert.Equal(t, class.ID, studentAuth.Class.ID)
	assert.Equal(t, "Spanish 101", studentAuth.Class.Name)

	// The roster shows the new member to the owner.
	w, resp = env.do(http.MethodGet, fmt.Sprintf("/api/classes/%s/roster", class.ID), teacherAuth.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var roster []json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Data, &roster))
	assert.Len(t, roster, 1)

	// The student picks a track once.
	w, _ = env.do(http.MethodPost, "/api/profile/track", studentAuth.Token, gin.H{"track": "business"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, resp = env.do(http.MethodPost, "/api/profile/track", studentAuth.Token, gin.H{"track": "general"})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TRACK_ALREADY_SET", resp.Error.Code)

	// Students cannot reach staff endpoints.
	w, _ = env.do(http.MethodPost, "/api/invites", studentAuth.Token, gin.H{"kind": "student"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The admin sees the audit trail.
	w, resp = env.do(http.MethodGet, "/api/admin/audit", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var logs []json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Data, &logs))
	assert.NotEmpty(t, logs)

	// Teachers do not.
	w, _ = env.do(http.MethodGet, "/api/admin/audit", teacherAuth.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInvalidInviteResponses(t *testing.T) {
	env := newAPIEnv(t)

	// Unknown code: generic message, machine-readable reason.
	w, resp := env.do(http.MethodPost, "/api/auth/invites/validate", "", gin.H{
		"code": "NOSUCHCODE99",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var validation struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &validation))
	assert.False(t, validation.Valid)
	assert.Equal(t, "NOT_FOUND", validation.Reason)

	// Registration with a bad code surfaces the generic invalid message.
	w, resp = env.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email":       "nobody@example.com",
		"password":    "whatever-pw-1",
		"invite_code": "NOSUCHCODE99",
		"first_name":  "No",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVITE_NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "Invite code is invalid", resp.Error.Message)
}

func TestIssueInviteRejectsUnknownKind(t *testing.T) {
	env := newAPIEnv(t)
	adminToken := env.login(testutil.SeedAdminEmail, testutil.SeedAdminPassword)

	w, resp := env.do(http.MethodPost, "/api/invites", adminToken, gin.H{"kind": "principal"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "kind must be teacher, student or class")
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	w, _ := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "classable_")
}

func TestDisabledIntegrationsReturnNotImplemented(t *testing.T) {
	env := newAPIEnv(t)
	adminToken := env.login(testutil.SeedAdminEmail, testutil.SeedAdminPassword)

	w, resp := env.do(http.MethodPost, "/api/billing/checkout", adminToken, gin.H{"plan": "pro"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BILLING_DISABLED", resp.Error.Code)

	w, _ = env.do(http.MethodPost, "/api/storage/downloads", adminToken, gin.H{"object_key": "classes/x/y.pdf"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
