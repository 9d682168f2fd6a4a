package rbac

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/open-audit/open-audit/internal/shared"
)

func newRolesRouter(t *testing.T, service *Service, userID int64) http.Handler {
	t.Helper()
	mw := Middleware{Service: service}
	handler := NewRolesHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), service, mw)

	manager := shared.NewSessionManager(nil, "test_session", "secret", time.Hour, false)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := manager.Load(context.Background(), req)
			require.NoError(t, err)
			if userID != 0 {
				sess.SetUser(strconv.FormatInt(userID, 10))
			}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/api/roles", handler.MountRoutes)
	return r
}

func TestRolesEndpointListsSeededRoles(t *testing.T) {
	service, store := seededService(t)
	adminID := store.addUser("admin2@openaudit.com")
	require.NoError(t, service.AssignRole(context.Background(), adminID, "administrator"))

	router := newRolesRouter(t, service, adminID)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/roles/", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		Roles []roleResponse `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Len(t, payload.Roles, 4)
	require.Equal(t, "administrator", payload.Roles[0].Name)
	require.True(t, payload.Roles[0].Unrestricted)
}

func TestRolesEndpointDefineRole(t *testing.T) {
	service, store := seededService(t)
	adminID := store.addUser("admin2@openaudit.com")
	require.NoError(t, service.AssignRole(context.Background(), adminID, "administrator"))

	router := newRolesRouter(t, service, adminID)

	body := `{"name":"reviewer","description":"Reviews reports","permissions":["reports.read"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/roles/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusCreated, res.Code)

	names, err := service.PermissionsOf(context.Background(), "reviewer")
	require.NoError(t, err)
	require.Equal(t, []string{"reports.read"}, names)
}

func TestRolesEndpointGetRoleResolvesPermissions(t *testing.T) {
	service, store := seededService(t)
	adminID := store.addUser("admin2@openaudit.com")
	require.NoError(t, service.AssignRole(context.Background(), adminID, "administrator"))

	router := newRolesRouter(t, service, adminID)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/roles/stakeholder", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var payload roleDetailResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Equal(t, []string{"audits.read", "reports.read"}, payload.Permissions)
}

func TestRolesEndpointForbiddenWithoutSettingsPermission(t *testing.T) {
	service, store := seededService(t)
	userID := store.addUser("stakeholder2@openaudit.com")
	require.NoError(t, service.AssignRole(context.Background(), userID, "stakeholder"))

	router := newRolesRouter(t, service, userID)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/roles/", nil))
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestRolesEndpointDeleteSystemRoleRejected(t *testing.T) {
	service, store := seededService(t)
	adminID := store.addUser("admin2@openaudit.com")
	require.NoError(t, service.AssignRole(context.Background(), adminID, "administrator"))

	router := newRolesRouter(t, service, adminID)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/api/roles/auditor", nil))
	require.Equal(t, http.StatusForbidden, res.Code)

	_, err := service.GetRole(context.Background(), "auditor")
	require.NoError(t, err)
}
