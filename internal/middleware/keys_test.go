package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/config"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

func newCtx(method, target, path string, id *model.Identity) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath(path)
	if id != nil {
		c.Set(identityKey, *id)
	}
	return c
}

func TestRateKeyStrategies(t *testing.T) {
	who := &model.Identity{UserID: "s1", Role: model.RoleMember}
	c := newCtx(http.MethodPost, "/v1/events/3/registrations", "/v1/events/:id/registrations", who)

	tests := []struct {
		strategy string
		want     string
	}{
		{"ip", "rl:ip:10.0.0.7"},
		{"user", "rl:user:s1"},
		{"route", "rl:route:POST /v1/events/:id/registrations"},
		{"user_route", "rl:user:s1:route:POST /v1/events/:id/registrations"},
		{"", "rl:ip:10.0.0.7:user:s1:route:POST /v1/events/:id/registrations"},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			assert.Equal(t, tt.want, rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: tt.strategy}, c))
		})
	}

	anon := newCtx(http.MethodPost, "/v1/events/3/registrations", "/v1/events/:id/registrations", nil)
	assert.Equal(t, "rl:user:anon", rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, anon))
}

func TestResponseKeySeparatesRoles(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache"}
	member := &model.Identity{UserID: "a", Role: model.RoleMember}
	otherMember := &model.Identity{UserID: "b", Role: model.RoleMember}
	committee := &model.Identity{UserID: "c", Role: model.RoleCommittee}

	km := responseKey(cfg, newCtx(http.MethodGet, "/v1/events?page=1", "/v1/events", member))
	kb := responseKey(cfg, newCtx(http.MethodGet, "/v1/events?page=1", "/v1/events", otherMember))
	kc := responseKey(cfg, newCtx(http.MethodGet, "/v1/events?page=1", "/v1/events", committee))
	ka := responseKey(cfg, newCtx(http.MethodGet, "/v1/events?page=1", "/v1/events", nil))
	kq := responseKey(cfg, newCtx(http.MethodGet, "/v1/events?page=2", "/v1/events", member))

	assert.Equal(t, km, kb)
	assert.NotEqual(t, km, kc)
	assert.NotEqual(t, km, ka)
	assert.NotEqual(t, km, kq)
	assert.Regexp(t, `^cache:[0-9a-f]{40}$`, km)
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	for name, mw := range map[string]echo.MiddlewareFunc{
		"ratelimit": RateLimit(config.RateLimitConfig{Enabled: true}, nil, nil),
		"cache":     ResponseCache(config.CacheConfig{Enabled: true}, nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			rec, _ := serve(mw, "")
			assert.Equal(t, http.StatusNoContent, rec.Code)
		})
	}
}
