package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/platform/channel"
	"github.com/ammar0101/campus-security-system/internal/platform/dispatch"
	"github.com/ammar0101/campus-security-system/internal/platform/realtime"
	"github.com/ammar0101/campus-security-system/internal/repository/memory"
	"github.com/ammar0101/campus-security-system/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPassword = "correct-horse"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := service.HashPassword(testPassword)
	require.NoError(t, err)
	mk := func(id string, role entity.UserRole, status entity.UserStatus) entity.User {
		return entity.User{ID: id, Name: "User " + id, Email: id + "@campus.edu", PasswordHash: hash, Role: role, Status: status}
	}
	users := memory.NewUserRepository(
		mk("admin", entity.RoleAdmin, entity.UserActive),
		mk("guard", entity.RoleSecurityStaff, entity.UserActive),
		mk("alice", entity.RoleStudent, entity.UserActive),
		mk("bob", entity.RoleStudent, entity.UserActive),
		mk("sam", entity.RoleStudent, entity.UserSuspended),
	)

	logger := zap.NewNop()
	hub := realtime.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	incidents := memory.NewIncidentRepository()
	alerts := memory.NewAlertStore()
	locations := memory.NewLocationRepository()
	audit := service.NewAuditService(memory.NewAuditLogRepository(), dispatch.Inline{}, logger)
	fx := &service.Effects{
		Gateway:    channel.NewGateway(channel.NewLogPusher(logger), channel.NewLogMailer(logger)),
		Notifier:   hub,
		Dispatcher: dispatch.Inline{},
		Logger:     logger,
	}

	router := NewRouter(RouterDeps{
		Audit:     audit,
		Auth:      service.NewAuthService(users, audit, "test-secret", time.Hour, logger),
		Incidents: service.NewIncidentService(incidents, users, locations, audit, fx, service.IncidentConfig{}),
		Alerts:    service.NewAlertService(alerts, alerts, users, incidents, locations, audit, fx, service.AlertConfig{}),
		Analytics: service.NewAnalyticsService(incidents, alerts, users, logger, nil),
		Hub:       hub,
		Logger:    logger,
	})
	return &testServer{t: t, router: router, tokens: map[string]string{}}
}

func (s *testServer) do(method, path, user string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(user))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (s *testServer) token(user string) string {
	if tok, ok := s.tokens[user]; ok {
		return tok
	}
	w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": user + "@campus.edu", "password": testPassword})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var res service.LoginResult
	require.NoError(s.t, json.Unmarshal(env.Data, &res))
	s.tokens[user] = res.Token
	return res.Token
}

func (s *testServer) createIncident(user string) entity.Incident {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/v1/incidents", user, gin.H{
		"incident_type": "Theft",
		"description":   "Laptop stolen from the library study room",
		"location":      "Main Library, 2nd floor",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var inc entity.Incident
	require.NoError(s.t, json.Unmarshal(env.Data, &inc))
	return inc
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	t.Run("wrong password", func(t *testing.T) {
		w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@campus.edu", "password": "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
	})

	t.Run("suspended account", func(t *testing.T) {
		w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "sam@campus.edu", "password": testPassword})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "ACCOUNT_INACTIVE", env.Error.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@campus.edu"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	})

	t.Run("success", func(t *testing.T) {
		assert.NotEmpty(t, s.token("alice"))
	})
}

func TestIncidentRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/api/v1/incidents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	inc := s.createIncident("alice")
	assert.Equal(t, entity.IncidentNew, inc.Status)

	t.Run("short description is rejected", func(t *testing.T) {
		w, env := s.do(http.MethodPost, "/api/v1/incidents", "alice", gin.H{
			"incident_type": "Theft", "description": "short", "location": "Gym",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		assert.Equal(t, "description", env.Error.Details["field"])
	})

	t.Run("students cannot transition", func(t *testing.T) {
		w, env := s.do(http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status", "alice", gin.H{"status": "In Progress"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", env.Error.Code)
	})

	t.Run("other students cannot read it", func(t *testing.T) {
		w, env := s.do(http.MethodGet, "/api/v1/incidents/"+inc.ID, "bob", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", env.Error.Code)
	})

	t.Run("skipping a state is a conflict", func(t *testing.T) {
		w, env := s.do(http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status", "guard", gin.H{
			"status": "Resolved", "resolution_notes": "Laptop returned to owner",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
		assert.Equal(t, "New", env.Error.Details["current_status"])
	})

	t.Run("staff moves it forward", func(t *testing.T) {
		w, _ := s.do(http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status", "guard", gin.H{"status": "In Progress"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w, env := s.do(http.MethodGet, "/api/v1/incidents/"+inc.ID, "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got struct {
			Incident entity.Incident `json:"incident"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, entity.IncidentInProgress, got.Incident.Status)
		assert.NotNil(t, got.Incident.ResponseTime)
	})

	t.Run("reporter can no longer cancel", func(t *testing.T) {
		w, env := s.do(http.MethodPost, "/api/v1/incidents/"+inc.ID+"/cancel", "alice", gin.H{"reason": "Found it myself"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
	})

	t.Run("unknown incident", func(t *testing.T) {
		w, env := s.do(http.MethodGet, "/api/v1/incidents/INC_missing", "guard", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", env.Error.Code)
	})
}

func TestIncidentListMine(t *testing.T) {
	s := newTestServer(t)
	s.createIncident("alice")
	s.createIncident("bob")

	w, env := s.do(http.MethodGet, "/api/v1/incidents/mine", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list service.IncidentList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)

	w, env = s.do(http.MethodGet, "/api/v1/incidents?limit=abc", "guard", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestPanicRequiresCoordinates(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/v1/incidents/emergency", "alice", gin.H{"latitude": 40.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, env = s.do(http.MethodPost, "/api/v1/incidents/emergency", "alice", gin.H{"latitude": 40.0, "longitude": -74.0})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Incident entity.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, entity.PriorityCritical, out.Incident.Priority)
}

func TestUploadURLWithoutStorage(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/api/v1/incidents/upload-url?file_name=a.jpg", "alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "STORAGE_UNAVAILABLE", env.Error.Code)
}

func TestAlertAcknowledgementOverHTTP(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/v1/alerts", "alice", gin.H{})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, env = s.do(http.MethodPost, "/api/v1/alerts", "guard", gin.H{
		"message":                 "Shelter in place near the science building",
		"alert_type":              "Security Threat",
		"severity":                "High",
		"target_audience":         gin.H{"roles": []string{"Student"}},
		"expires_at":              time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"requires_acknowledgment": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created service.AlertCreated
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, 2, created.TargetCount)

	path := "/api/v1/alerts/" + created.AlertID + "/acknowledge"

	w, _ = s.do(http.MethodPost, path, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(http.MethodPost, path, "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_ACKNOWLEDGED", env.Error.Code)

	w, env = s.do(http.MethodPost, path, "guard", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RECIPIENT_NOT_FOUND", env.Error.Code)

	t.Run("expired alert is rejected", func(t *testing.T) {
		w, env := s.do(http.MethodPost, "/api/v1/alerts", "guard", gin.H{
			"message":         "Old news",
			"alert_type":      "General",
			"severity":        "Low",
			"target_audience": gin.H{"roles": []string{"Student"}},
			"expires_at":      time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	})
}

func TestAnalyticsAccess(t *testing.T) {
	s := newTestServer(t)
	s.createIncident("alice")

	w, env := s.do(http.MethodGet, "/api/v1/analytics/dashboard", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/analytics/dashboard", "guard", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do(http.MethodGet, "/api/v1/analytics/export?format=xlsx", "guard", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/analytics/export?format=xlsx", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	w, env = s.do(http.MethodGet, "/api/v1/analytics/incidents?from=yesterday", "guard", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestAdminAuditLogs(t *testing.T) {
	s := newTestServer(t)
	s.createIncident("alice")

	w, _ := s.do(http.MethodGet, "/api/v1/admin/audit-logs", "guard", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(http.MethodGet, "/api/v1/admin/audit-logs?limit=10", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Logs  []entity.AuditLog `json:"logs"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	actions := make([]string, 0, len(out.Logs))
	for _, l := range out.Logs {
		actions = append(actions, l.ActionType)
	}
	assert.Contains(t, actions, service.ActionIncidentCreate)
	assert.Contains(t, actions, service.ActionUserLogin)
}
