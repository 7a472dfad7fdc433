package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maisondore/newsletter/internal/backup"
	"github.com/maisondore/newsletter/internal/cache"
	"github.com/maisondore/newsletter/internal/domain"
	"github.com/maisondore/newsletter/internal/reconcile"
	"github.com/maisondore/newsletter/internal/service/subscription"
	"github.com/maisondore/newsletter/internal/token"
	"github.com/maisondore/newsletter/internal/unsubscribe"
)

type capturingTokens struct {
	*token.Service
	mu     sync.Mutex
	issued []string
}

func (c *capturingTokens) Issue(ctx context.Context, email string) (string, error) {
	tok, err := c.Service.Issue(ctx, email)
	if err == nil {
		c.mu.Lock()
		c.issued = append(c.issued, tok)
		c.mu.Unlock()
	}
	return tok, err
}

func (c *capturingTokens) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.issued)
	return c.issued[len(c.issued)-1]
}

type testAPI struct {
	handler http.Handler
	tokens  *capturingTokens
}

func newTestAPI() *testAPI {
	log := backup.NewLog(time.Second, backup.NewMemoryBackend())
	tokens := &capturingTokens{Service: token.NewService(nil, 24*time.Hour)}
	registry := unsubscribe.NewRegistry(nil, time.Second)
	c := cache.NewMemoryCache()

	svc := subscription.NewService(nil, log, tokens, registry, c, nil, "https://example.com/confirm")
	agg := reconcile.NewAggregator(nil, log, registry, c, 30*time.Second, time.Second)
	h := NewHandlers(svc, agg, NewHealthChecker(nil, nil, tokens.Service, registry), false, 5*time.Second)
	return &testAPI{handler: SetupRoutes(h), tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeListing(t *testing.T, rec *httptest.ResponseRecorder) listResponse {
	t.Helper()
	var res listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestSubscribe_RejectsInvalidEmail(t *testing.T) {
	a := newTestAPI()

	rec := a.do(t, http.MethodPost, "/api/newsletter/subscribe", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "valid email")

	rec = a.do(t, http.MethodPost, "/api/newsletter/subscribe", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscribeConfirmListFlow(t *testing.T) {
	a := newTestAPI()

	rec := a.do(t, http.MethodPost, "/api/newsletter/subscribe", `{"email":"A@X.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "check your inbox")

	// Unconfirmed signups appear in the default listing.
	rec = a.do(t, http.MethodGet, "/api/newsletter/list?nocache=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeListing(t, rec)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "a@x.com", res.Data[0].Email)
	assert.False(t, res.Data[0].Confirmed)
	assert.Equal(t, 1, res.Stats.Pending)

	// But not in the confirmed-only listing.
	rec = a.do(t, http.MethodGet, "/api/newsletter/list?confirmed=true&nocache=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeListing(t, rec).Data)

	rec = a.do(t, http.MethodPost, "/api/newsletter/confirm", `{"token":"`+a.tokens.last(t)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var confirmed confirmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.True(t, confirmed.Success)
	assert.Equal(t, "a@x.com", confirmed.Email)

	rec = a.do(t, http.MethodGet, "/api/newsletter/list?confirmed=true&nocache=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeListing(t, rec)
	require.Len(t, res.Data, 1)
	assert.True(t, res.Data[0].Confirmed)
	assert.Equal(t, 1, res.Stats.Confirmed)
}

func TestConfirm_TokenSingleUse(t *testing.T) {
	a := newTestAPI()

	rec := a.do(t, http.MethodPost, "/api/newsletter/subscribe", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	tok := a.tokens.last(t)

	rec = a.do(t, http.MethodGet, "/api/newsletter/confirm?token="+tok, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/newsletter/confirm?token="+tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or has expired")
}

func TestConfirm_MissingToken(t *testing.T) {
	a := newTestAPI()
	rec := a.do(t, http.MethodGet, "/api/newsletter/confirm", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnsubscribeFlow(t *testing.T) {
	a := newTestAPI()

	rec := a.do(t, http.MethodPost, "/api/newsletter/subscribe", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodPost, "/api/newsletter/confirm", `{"token":"`+a.tokens.last(t)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/newsletter/unsubscribe", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Idempotent.
	rec = a.do(t, http.MethodPost, "/api/newsletter/unsubscribe", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/newsletter/list?nocache=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeListing(t, rec).Data)

	rec = a.do(t, http.MethodGet, "/api/newsletter/all?include_unsubscribed=true&nocache=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeListing(t, rec)
	require.Len(t, res.Data, 1)
	assert.True(t, res.Data[0].Unsubscribed)
	assert.Equal(t, 1, res.Stats.Unsubscribed)
	assert.Equal(t, res.Stats.Total-res.Stats.Unsubscribed, res.Stats.Confirmed+res.Stats.Pending)
}

func TestUnsubscribeProbe(t *testing.T) {
	a := newTestAPI()

	rec := a.do(t, http.MethodGet, "/api/newsletter/unsubscribe?email=nobody@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var probe probeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &probe))
	assert.False(t, probe.Exists)

	rec = a.do(t, http.MethodPost, "/api/newsletter/subscribe", `{"email":"here@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/newsletter/unsubscribe?email=here@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &probe))
	assert.True(t, probe.Exists)

	rec = a.do(t, http.MethodGet, "/api/newsletter/unsubscribe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCaching(t *testing.T) {
	a := newTestAPI()

	rec := a.do(t, http.MethodPost, "/api/newsletter/subscribe", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/newsletter/list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeListing(t, rec).Cached)

	rec = a.do(t, http.MethodGet, "/api/newsletter/list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeListing(t, rec).Cached)

	rec = a.do(t, http.MethodGet, "/api/newsletter/list?nocache=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeListing(t, rec).Cached)
}

func TestHealthCheck(t *testing.T) {
	a := newTestAPI()

	rec := a.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "not_configured", status.Checks["postgres"].Status)
}

func TestListResponseShape(t *testing.T) {
	a := newTestAPI()

	rec := a.do(t, http.MethodGet, "/api/newsletter/list", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Empty listings serialize as [] rather than null.
	assert.Contains(t, rec.Body.String(), `"data":[]`)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["success"])
}

func TestStatsConsistency(t *testing.T) {
	a := newTestAPI()

	for _, email := range []string{"one@x.com", "two@x.com", "three@x.com"} {
		rec := a.do(t, http.MethodPost, "/api/newsletter/subscribe", `{"email":"`+email+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := a.do(t, http.MethodPost, "/api/newsletter/confirm", `{"token":"`+a.tokens.last(t)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodPost, "/api/newsletter/unsubscribe", `{"email":"one@x.com","reason":"`+domain.UnsubscribeUserRequest+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/newsletter/all?include_unsubscribed=true&nocache=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeListing(t, rec)
	assert.Equal(t, len(res.Data), res.Stats.Total)
	assert.Equal(t, res.Stats.Total-res.Stats.Unsubscribed, res.Stats.Confirmed+res.Stats.Pending)
}
