package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-audit/open-audit/internal/shared"
)

func requestWithSessionUser(t *testing.T, userID int64) *http.Request {
	t.Helper()
	manager := shared.NewSessionManager(nil, "test_session", "secret", time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	sess, err := manager.Load(context.Background(), req)
	require.NoError(t, err)
	if userID != 0 {
		sess.SetUser(strconv.FormatInt(userID, 10))
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestMiddlewareAllowsGrantedPermission(t *testing.T) {
	service, store := seededService(t)
	userID := store.addUser("auditor@openaudit.com")
	require.NoError(t, service.AssignRole(context.Background(), userID, "auditor"))

	mw := Middleware{Service: service}
	handler := mw.Require("checklists.complete")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestWithSessionUser(t, userID))
	require.Equal(t, http.StatusOK, res.Code)
}

func TestMiddlewareDeniesMissingPermission(t *testing.T) {
	service, store := seededService(t)
	userID := store.addUser("stakeholder@openaudit.com")
	require.NoError(t, service.AssignRole(context.Background(), userID, "stakeholder"))

	mw := Middleware{Service: service}
	handler := mw.Require("audits.delete")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestWithSessionUser(t, userID))
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestMiddlewareDeniesAnonymous(t *testing.T) {
	service, _ := seededService(t)

	mw := Middleware{Service: service}
	handler := mw.Require("audits.read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestWithSessionUser(t, 0))
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestMiddlewareUnrestrictedRolePassesAll(t *testing.T) {
	service, store := seededService(t)
	userID := store.addUser("admin2@openaudit.com")
	require.NoError(t, service.AssignRole(context.Background(), userID, "administrator"))

	mw := Middleware{Service: service}
	handler := mw.RequireAll("audits.delete", "settings.update", "users.assign_roles")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestWithSessionUser(t, userID))
	require.Equal(t, http.StatusOK, res.Code)
}
