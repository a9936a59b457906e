package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satori-http/satori"
	"github.com/satori-http/satori/request"
	"github.com/satori-http/satori/session"
)

type client struct {
	t       *testing.T
	handler http.Handler
	cookie  *http.Cookie
}

func newClient(t *testing.T) *client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := satori.New(nil)
	s.ServeBackground(ctx)
	return &client{t: t, handler: New(s, nil).Routes()}
}

func (c *client) do(method, target string, body url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(body.Encode())
	}
	r := httptest.NewRequest(method, target, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.cookie != nil {
		r.AddCookie(c.cookie)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, r)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.DefaultName {
			c.cookie = cookie
		}
	}
	return rec
}

func (c *client) contents(rec *httptest.ResponseRecorder) *Contents {
	c.t.Helper()
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	var out Contents
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return &out
}

func TestWhoami(t *testing.T) {
	c := newClient(t)
	r := httptest.NewRequest("GET", "http://example.com:8080/whoami?a=b", nil)
	r.Header.Set("Accept", "text/html;q=0.9, */*;q=0.1")
	r.Header.Set("Accept-Encoding", "gzip, br;q=0")
	r.Header.Set("Referer", "http://elsewhere.example/")
	r.Header.Set("User-Agent", "satori-test")

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "GET", snap.Method)
	assert.Equal(t, "http", snap.Scheme)
	assert.Equal(t, "example.com:8080", snap.Host)
	assert.Equal(t, "/whoami", snap.Path)
	assert.Equal(t, "a=b", snap.Query)
	assert.Equal(t, "satori-test", snap.UserAgent)
	assert.Equal(t, "http://elsewhere.example/", snap.UntrustedReferrer)
	assert.True(t, snap.AcceptsHTML)
	assert.True(t, snap.AcceptsJSON, "*/* covers JSON")
	assert.True(t, snap.AcceptsGzip)
	assert.False(t, snap.Secure)
}

func TestSecurityHeaders(t *testing.T) {
	c := newClient(t)
	rec := c.do("GET", "/whoami", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}

func TestRequestID(t *testing.T) {
	c := newClient(t)

	rec := c.do("GET", "/whoami", nil)
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err, "no request ID minted")

	id := uuid.NewString()
	r := httptest.NewRequest("GET", "/whoami", nil)
	r.Header.Set(RequestIDHeader, id)
	rec = httptest.NewRecorder()
	c.handler.ServeHTTP(rec, r)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	r.Header.Set(RequestIDHeader, "<script>")
	rec = httptest.NewRecorder()
	c.handler.ServeHTTP(rec, r)
	assert.NotEqual(t, "<script>", rec.Header().Get(RequestIDHeader))
}

func TestSessionLifecycle(t *testing.T) {
	c := newClient(t)

	out := c.contents(c.do("POST", "/session/values/user", url.Values{"value": {"jbowers"}}))
	assert.Equal(t, map[string]any{"user": "jbowers"}, out.Values)
	require.NotNil(t, c.cookie, "no session cookie issued")
	first := c.cookie.Value

	out = c.contents(c.do("PUT", "/session/values/color", url.Values{"value": {"blue"}}))
	assert.Equal(t, map[string]any{"user": "jbowers", "color": "blue"}, out.Values)
	assert.Equal(t, first, c.cookie.Value, "cookie changed without regeneration")

	rec := c.do("GET", "/session/values/color", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"color":"blue"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, c.do("GET", "/session/values/nothing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, c.do("POST", "/session/values/x", url.Values{}).Code)

	out = c.contents(c.do("DELETE", "/session/values/color", nil))
	assert.Equal(t, map[string]any{"user": "jbowers"}, out.Values)

	out = c.contents(c.do("POST", "/session/regenerate", nil))
	assert.Equal(t, map[string]any{"user": "jbowers"}, out.Values)
	assert.NotEqual(t, first, c.cookie.Value, "regeneration kept the ID")

	out = c.contents(c.do("GET", "/session", nil))
	assert.Equal(t, "session", out.Name)
	assert.Equal(t, "Active", out.State)
	assert.Equal(t, map[string]any{"user": "jbowers"}, out.Values)

	rec = c.do("POST", "/session/destroy", nil)
	out = c.contents(rec)
	assert.Equal(t, "Destroyed", out.State)
	assert.Empty(t, out.Values)
	assert.Less(t, c.cookie.MaxAge, 0, "destroy didn't expire the cookie")

	// the old ID is gone; a fresh, empty session starts
	c.cookie = nil
	out = c.contents(c.do("GET", "/session", nil))
	assert.Empty(t, out.Values)
}

func TestForeignCookieIgnored(t *testing.T) {
	c := newClient(t)
	c.cookie = &http.Cookie{Name: session.DefaultName, Value: "attacker-chosen"}

	out := c.contents(c.do("GET", "/session", nil))
	assert.Empty(t, out.Values)
	assert.NotEqual(t, "attacker-chosen", c.cookie.Value)
}

func TestBodyTooLarge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := satori.New(nil)
	s.ServeBackground(ctx)
	s.RequestOptions = &request.Options{MaxBodyBytes: 8}

	handler := New(s, nil).Routes()
	r := httptest.NewRequest("POST", "/session/values/k",
		strings.NewReader("value="+strings.Repeat("x", 100)))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetrics(t *testing.T) {
	c := newClient(t)
	c.do("GET", "/session", nil)

	rec := c.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "satori_sessions_started_total")
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestWhoamiHonorsRefusals(t *testing.T) {
	c := newClient(t)
	r := httptest.NewRequest("GET", "/whoami", nil)
	r.Header.Set("Accept", "text/html;q=0, */*")
	r.Header.Set("Accept-Encoding", "gzip;q=0, *")
	r.Header.Set("Accept-Language", "en-US")

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.False(t, snap.AcceptsHTML)
	assert.True(t, snap.AcceptsJSON)
	assert.False(t, snap.AcceptsGzip)
	assert.False(t, snap.AcceptsEnglish, "en-US doesn't cover plain en")
}
