/*

Package hole provides support for opening security holes in HTTP responses.

Responses start out default-deny: no content sniffing, no framing, and no
caching, since most responses that go through a session carry something
about the user. To do anything else you must open "holes" in that policy.

You may need to open "holes" in your security to operate, but they should
be viewed as holes, not merely "turning on features".

*/
package hole

import "net/http"

// security tracks the security requests for this response. It defaults
// to total security, and monoidally backs down the security as requests
// come in.
type security struct {
	allowBrowserTypeGuessing bool
	allowFraming             bool
	allowCaching             bool
}

func (s *security) applyHoles(holes []SecurityHole) {
	for _, hole := range holes {
		hole.applySecurityHole(s)
	}
}

// ApplySecurityHeaders takes the given SecurityHoles and applies the
// correct HTTP headers to implement the given policy.
func ApplySecurityHeaders(headers http.Header, holes SecurityHoles) {
	sec := security{}
	sec.applyHoles(holes)

	if !sec.allowBrowserTypeGuessing {
		headers.Set("X-Content-Type-Options", "nosniff")
	}
	if !sec.allowFraming {
		headers.Set("X-Frame-Options", "DENY")
	}
	if !sec.allowCaching {
		headers.Set("Cache-Control", "no-store, no-cache, must-revalidate")
		headers.Set("Pragma", "no-cache")
		headers.Set("Expires", "Thu, 19 Nov 1981 08:52:00 GMT")
	}
}

// A SecurityHole is a request to lower the security on a given
// response. Applying security policy is done by starting with the base
// "default deny" policy and applying all the relevant holes.
type SecurityHole interface {
	applySecurityHole(*security)
}

type allowBrowserTypeGuessing struct{}

func (allowBrowserTypeGuessing) applySecurityHole(s *security) {
	s.allowBrowserTypeGuessing = true
}

// AllowBrowserTypeGuessing returns a SecurityHole that allows browsers
// to guess the type of the content coming in.
//
// In HTTP terms, this suppresses X-Content-Type-Options: nosniff.
//
// In security terms, this is dangerous because browsers can be convinced
// to incorrectly sniff types, and may unexpectedly decide a page is HTML
// and allow script execution.
func AllowBrowserTypeGuessing() SecurityHole {
	return allowBrowserTypeGuessing{}
}

type allowFraming struct{}

func (allowFraming) applySecurityHole(s *security) {
	s.allowFraming = true
}

// AllowFraming suppresses X-Frame-Options: DENY, letting other sites put
// the response in a frame.
func AllowFraming() SecurityHole {
	return allowFraming{}
}

type allowCaching struct{}

func (allowCaching) applySecurityHole(s *security) {
	s.allowCaching = true
}

// AllowCaching suppresses the no-store cache headers. Only use this for
// responses that carry nothing about the session.
func AllowCaching() SecurityHole {
	return allowCaching{}
}

// The NoHole is something that conforms to the SecurityHole
// interface, but does not result in any opening of security when
// applied.
//
// This is useful to create functions that unconditionally return
// something of the type SecurityHole for simplicity, but may sometimes
// choose to return "nothing".
func NoHole() SecurityHole {
	return noHole{}
}

type noHole struct{}

func (noHole) applySecurityHole(*security) {}

// SecurityHoles is simply a slice type of SecurityHole that is augmented
// with the method to turn it into a SecurityHole itself.
//
// If you work at it, you can use this to create cycles, e.g.
//
//	holes := SecurityHoles{}
//	holes = append(holes, holes)
//
// Don't do that. The obvious will happen.
type SecurityHoles []SecurityHole

func (sh SecurityHoles) applySecurityHole(s *security) {
	for _, hole := range sh {
		hole.applySecurityHole(s)
	}
}

// Middleware applies the policy to every response before the wrapped
// handler runs, so the handler can still override individual headers.
func Middleware(holes ...SecurityHole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ApplySecurityHeaders(w.Header(), holes)
			next.ServeHTTP(w, r)
		})
	}
}
