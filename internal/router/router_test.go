package router

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/database"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/handler"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/repository"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/service"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/testutil"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/utils"
)

const secret = "router-test-secret"

type api struct {
	t  *testing.T
	e  *echo.Echo
	db *sql.DB
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := testutil.NewSQLite(t)
	events := repository.NewEventRepo(db, database.SQLite)
	regs := service.NewRegistrationService(db, events,
		repository.NewRegistrationRepo(db, database.SQLite),
		repository.NewUserRepo(db, database.SQLite),
		service.Options{})

	e := NewEcho(nil)
	Register(e, Deps{
		JWTSecret:     secret,
		Health:        handler.Health{DB: db},
		Events:        handler.NewEventHandler(service.NewEventService(db, events, 0, regs.InvalidateAnalytics), nil),
		Registrations: handler.NewRegistrationHandler(regs),
	})
	return &api{t: t, e: e, db: db}
}

func (a *api) do(method, path string, who *model.Identity, body any) (int, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if who != nil {
		tok, err := utils.NewAccessToken(secret, *who, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set(echo.HeaderAuthorization, tok.BearerHeader())
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	out := map[string]any{}
	if ct := rec.Header().Get(echo.HeaderContentType); rec.Body.Len() > 0 && strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func ptr(id model.Identity) *model.Identity { return &id }

func TestHealthz(t *testing.T) {
	a := newAPI(t)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAuthBoundaries(t *testing.T) {
	a := newAPI(t)
	ev := testutil.SeedEvent(t, a.db)
	member := ptr(testutil.Member())
	path := fmt.Sprintf("/v1/events/%d/registrations", ev.ID)

	code, _ := a.do(http.MethodPost, path, nil, map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodGet, path, member, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodPost, "/v1/events", member, map[string]any{"organiser": "x", "title": "y"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, "/v1/events", nil, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestCapacityScenarioOverHTTP(t *testing.T) {
	a := newAPI(t)
	committee := ptr(testutil.Committee())

	code, body := a.do(http.MethodPost, "/v1/events", committee, map[string]any{
		"organiser": "compsoc", "title": "Intro to Rust", "capacity": 1, "state": "published",
	})
	require.Equal(t, http.StatusCreated, code, body)
	id := uint64(body["id"].(float64))
	regs := fmt.Sprintf("/v1/events/%d/registrations", id)

	alice, bob := ptr(testutil.Member()), ptr(testutil.Member())
	code, body = a.do(http.MethodPost, regs, alice, map[string]any{})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "pending", body["status"])
	code, body = a.do(http.MethodPost, regs, bob, map[string]any{})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "pending", body["status"])

	code, _ = a.do(http.MethodPost, regs, alice, map[string]any{})
	assert.Equal(t, http.StatusConflict, code)

	code, body = a.do(http.MethodPut, regs+"/"+alice.UserID, committee, map[string]any{"status": "accepted"})
	require.Equal(t, http.StatusOK, code, body)
	code, body = a.do(http.MethodPut, regs+"/"+bob.UserID, committee, map[string]any{"status": "accepted"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "event capacity reached", body["error"])

	carol := ptr(testutil.Member())
	code, body = a.do(http.MethodPost, regs, carol, map[string]any{})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "waitlist", body["status"])

	code, body = a.do(http.MethodGet, regs+"/me", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", body["status"])

	code, _ = a.do(http.MethodGet, regs+"/"+bob.UserID, alice, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(http.MethodDelete, regs+"/me", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "accepted", body["status"])
	code, _ = a.do(http.MethodDelete, regs+"/me", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = a.do(http.MethodPost, regs+"/accept", committee, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["accepted"])
	assert.Equal(t, []any{bob.UserID}, body["user_ids"])

	code, body = a.do(http.MethodGet, fmt.Sprintf("/v1/events/%d/analytics", id), committee, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])

	code, body = a.do(http.MethodGet, "/v1/me/registrations", carol, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["registrations"], 1)
}

func TestBatchStatusOverHTTP(t *testing.T) {
	a := newAPI(t)
	ev := testutil.SeedEvent(t, a.db)
	committee := ptr(testutil.Committee())
	u1, u2 := testutil.Member(), testutil.Member()
	testutil.SeedRegistration(t, a.db, ev.ID, u1, model.StatusPending, time.Now())
	testutil.SeedRegistration(t, a.db, ev.ID, u2, model.StatusWaitlist, time.Now())
	path := fmt.Sprintf("/v1/events/%d/registrations/batch-status", ev.ID)

	code, body := a.do(http.MethodPost, path, committee, map[string]any{"user_ids": []string{u1.UserID, u2.UserID}, "status": "rejected"})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 2, body["updated"])

	code, body = a.do(http.MethodGet, fmt.Sprintf("/v1/events/%d/registrations?status=rejected", ev.ID), committee, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["registrations"], 2)
}

func TestValidationErrorsCarryFields(t *testing.T) {
	a := newAPI(t)
	committee := ptr(testutil.Committee())

	code, body := a.do(http.MethodPost, "/v1/events", committee, map[string]any{"title": "", "capacity": 0})
	require.Equal(t, http.StatusBadRequest, code)
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "organiser")
	assert.Contains(t, fields, "title")

	ev := testutil.SeedEvent(t, a.db)
	code, body = a.do(http.MethodPut, fmt.Sprintf("/v1/events/%d/registrations/x", ev.ID), committee, map[string]any{"status": "maybe"})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["fields"], "status")

	code, _ = a.do(http.MethodGet, "/v1/events/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDraftsHiddenOverHTTP(t *testing.T) {
	a := newAPI(t)
	ev := testutil.SeedEvent(t, a.db, testutil.Draft())
	path := fmt.Sprintf("/v1/events/%d", ev.ID)

	code, _ := a.do(http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(http.MethodGet, path, ptr(testutil.Member()), nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(http.MethodGet, path, ptr(testutil.Committee()), nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodPost, path+"/registrations", ptr(testutil.Member()), map[string]any{})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestShrinkingCapacityBelowAcceptedConflicts(t *testing.T) {
	a := newAPI(t)
	committee := ptr(testutil.Committee())
	ev := testutil.SeedEvent(t, a.db, testutil.WithCapacity(2))
	testutil.SeedRegistration(t, a.db, ev.ID, testutil.Member(), model.StatusAccepted, time.Now())
	testutil.SeedRegistration(t, a.db, ev.ID, testutil.Member(), model.StatusAccepted, time.Now())
	path := fmt.Sprintf("/v1/events/%d", ev.ID)

	code, body := a.do(http.MethodPut, path, committee, map[string]any{
		"organiser": ev.Organiser, "title": ev.Title, "capacity": 1, "state": "published",
	})
	require.Equal(t, http.StatusConflict, code, body)
	assert.Equal(t, 2, testutil.CountStatus(t, a.db, ev.ID, model.StatusAccepted))

	code, body = a.do(http.MethodGet, path, committee, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["capacity"])
}
