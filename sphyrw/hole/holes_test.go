package hole

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultDeny(t *testing.T) {
	h := http.Header{}
	ApplySecurityHeaders(h, nil)

	for name, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Pragma":                 "no-cache",
	} {
		if h.Get(name) != want {
			t.Fatalf("%s: got %q, want %q", name, h.Get(name), want)
		}
	}
	if h.Get("Cache-Control") == "" || h.Get("Expires") == "" {
		t.Fatal("cache headers missing")
	}
}

func TestHoles(t *testing.T) {
	h := http.Header{}
	ApplySecurityHeaders(h, SecurityHoles{
		AllowBrowserTypeGuessing(),
		NoHole(),
		SecurityHoles{AllowFraming(), AllowCaching()},
	})
	if len(h) != 0 {
		t.Fatalf("holes didn't open: %v", h)
	}
}

func TestMiddleware(t *testing.T) {
	handler := Middleware(AllowCaching())(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Header().Get("X-Frame-Options") != "SAMEORIGIN" {
		t.Fatal("handler couldn't override the policy")
	}
	if rec.Header().Get("Cache-Control") != "" {
		t.Fatal("caching hole ignored")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("nosniff missing")
	}
}
