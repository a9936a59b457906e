/*

Package cookie represents and renders cookies.

Outgoing cookies are default-deny: a cookie rendered by this package is

  * HTTPOnly (not visible to JavaScript)
  * Secure (not sent over plain HTTP)
  * Session-based (destroyed when the browser closes)
  * Strictly RFC 6265 conformant in name and value
  * Scoped to Path=/
  * SameSite=Strict

and protections are backed down per cookie with options such as Insecure
or ClientCanRead, so that a security review can grep for them.

Rendering is done here rather than by net/http because net/http silently
"fixes up" outgoing cookies, for instance dropping a Domain it dislikes,
which widens the cookie's scope without telling anyone. Illegal cookies are
rejected instead.

Incoming and outgoing cookies have separate types. The incoming parser is
loose, accepting what browsers actually send, and only ever reports
name/value pairs.

OutCookie is configured with functional options; each Option is a
func(*OutCookie) error.

When an Authenticator is supplied, the rendered value is signed over both
the cookie's name and its value, so a value cannot be lifted from one
cookie into another.

*/
package cookie

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/thejerf/abtime"

	"github.com/satori-http/satori/secret"
)

// Strict can be passed to the SameSite option to set the SameSite cookie
// flag to Strict, which is the default.
var Strict = Strictness{0}

// Lax can be passed to the SameSite option to set the SameSite cookie flag
// to Lax.
var Lax = Strictness{1}

// None sets SameSite=None. Browsers only honor it on Secure cookies.
var None = Strictness{2}

// NoSameSiteSetting can be passed to the SameSite option to entirely
// remove the SameSite setting from the cookie.
var NoSameSiteSetting = Strictness{3}

// Strictness is the SameSite setting of an OutCookie.
type Strictness struct {
	strictness byte
}

// ParseStrictness maps the configuration spellings "strict", "lax", "none"
// and "" (no attribute) onto a Strictness.
func ParseStrictness(s string) (Strictness, error) {
	switch strings.ToLower(s) {
	case "strict":
		return Strict, nil
	case "lax":
		return Lax, nil
	case "none":
		return None, nil
	case "", "unset":
		return NoSameSiteSetting, nil
	}
	return Strict, fmt.Errorf("unknown SameSite setting %q", s)
}

func (cs Strictness) render() string {
	switch cs.strictness {
	case 0:
		return "SameSite=Strict"
	case 1:
		return "SameSite=Lax"
	case 2:
		return "SameSite=None"
	default:
		return ""
	}
}

// An Option modifies an OutCookie in the given manner.
type Option func(*OutCookie) error

var clock abtime.AbstractTime = abtime.NewRealTime()

// expiredAt is what deleted cookies carry as their Expires. Any instant in
// the past works; a fixed one keeps the rendering deterministic.
var expiredAt = time.Unix(1, 0).UTC()

type errCookieInvalid struct {
	name   string
	reason string
}

func (eci *errCookieInvalid) Error() string {
	return fmt.Sprintf("can't create cookie '%s' because %s", eci.name, eci.reason)
}

// An OutCookie is a cookie which will be sent out via a Set-Cookie header.
type OutCookie struct {
	name          string
	value         string
	authenticator secret.Authenticator

	hasExpires bool
	deleted    bool
	maxAge     time.Duration
	expires    time.Time

	path               string
	domain             string
	clientAccess       bool
	insecure           bool
	sameSiteStrictness Strictness
}

// Name returns the name of the outcookie.
func (oc *OutCookie) Name() string {
	// The value is deliberately not exposed; Render is the only way out.
	return oc.name
}

// Expires returns the expiration the cookie will be rendered with, and
// whether it carries one at all. Session cookies return false.
func (oc *OutCookie) Expires() (time.Time, bool) {
	if !oc.hasExpires {
		return time.Time{}, false
	}
	if oc.deleted {
		return expiredAt, true
	}
	return oc.expires, true
}

// InCookie is a single incoming cookie.
type InCookie struct {
	name  string
	value string
}

// GoString implements the fmt.GoStringer interface.
func (ic *InCookie) GoString() string {
	return fmt.Sprintf("%s=%s", ic.name, ic.value)
}

// Name returns the name of the incoming cookie.
func (ic *InCookie) Name() string {
	return ic.name
}

// Value returns the value of the incoming cookie.
func (ic *InCookie) Value() string {
	return ic.value
}

// InCookies is the read-only set of cookies a request carried.
type InCookies struct {
	// names are restricted to ASCII tokens, so no normalization applies.
	cookies map[string]*InCookie
}

// Count returns the number of cookies in this InCookies set.
func (ic *InCookies) Count() int {
	if ic == nil {
		return 0
	}
	return len(ic.cookies)
}

// the first cookie of a given name wins; browsers send the most specific
// path first.
func (ic *InCookies) add(name, value string) {
	if ic.cookies == nil {
		ic.cookies = map[string]*InCookie{}
	}
	if _, have := ic.cookies[name]; have {
		return
	}
	ic.cookies[name] = &InCookie{name, value}
}

// Get retrieves a cookie by name, or nil if it was not sent.
func (ic *InCookies) Get(name string) *InCookie {
	if ic == nil {
		return nil
	}
	return ic.cookies[name]
}

// Names returns the sorted names of all cookies in the set.
func (ic *InCookies) Names() []string {
	if ic == nil {
		return nil
	}
	names := make([]string, 0, len(ic.cookies))
	for name := range ic.cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns a fresh name → value map of the cookies.
func (ic *InCookies) Map() map[string]string {
	m := map[string]string{}
	if ic == nil {
		return m
	}
	for name, c := range ic.cookies {
		m[name] = c.value
	}
	return m
}

// GoString gives the InCookies a nice #%v representation.
func (ic InCookies) GoString() string {
	var buf bytes.Buffer

	buf.WriteString("[InCookies: {")
	for idx, name := range ic.Names() {
		if idx > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%#v", ic.cookies[name])
	}
	buf.WriteString("}]")

	return buf.String()
}

// ParseCookies parses the values of incoming Cookie headers.
//
// Pairs with illegal names or values are dropped silently, the way a
// browser that never sent them would look. This never returns nil.
func ParseCookies(lines []string) *InCookies {
	// adapted from net/http/cookie.go
	result := &InCookies{}

	for _, line := range lines {
		parts := strings.Split(strings.TrimSpace(line), ";")
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if len(part) == 0 {
				continue
			}
			name, val, _ := strings.Cut(part, "=")

			if name == "" || !isCookieNameLoose([]byte(name)) {
				continue
			}

			if len(val) > 1 && val[0] == '"' && val[len(val)-1] == '"' {
				val = val[1 : len(val)-1]
			}
			if !isCookieValueLoose([]byte(val)) {
				continue
			}

			result.add(name, val)
		}
	}

	return result
}

// NewOut creates a cookie.
//
// The RFC6265 specification for cookie names is enforced: the name must be
// an RFC2616 "token", US ASCII without control characters or separators.
//
// The RFC6265 specification for cookie values is enforced, which requires
// "cookie octets": US ASCII excluding control characters, whitespace,
// double quotes, comma, semicolon, and backslash.
//
// If authenticator is non-nil the rendered value is signed.
//
// With only constant arguments no error can come out.
func NewOut(
	name string,
	value string,
	authenticator secret.Authenticator,
	options ...Option,
) (*OutCookie, error) {
	return newcookie(true, name, value, authenticator, options...)
}

// NewNonstandardOut creates a cookie whose value may also contain comma
// and space, which most browsers accept. Names remain strict.
//
// See https://hackerone.com/reports/14883 for what commas in values can
// lead to in combination with other bugs.
func NewNonstandardOut(
	name string,
	value string,
	authenticator secret.Authenticator,
	options ...Option,
) (*OutCookie, error) {
	return newcookie(false, name, value, authenticator, options...)
}

// ValidName reports whether name is usable as a cookie name.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range []byte(name) {
		if c <= 32 || c >= 127 {
			return false
		}
		switch c {
		// separators from RFC2616
		case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']', '?', '=', '{', '}':
			return false
		}
	}
	return true
}

func newcookie(
	strict bool,
	name string,
	value string,
	authenticator secret.Authenticator,
	options ...Option,
) (*OutCookie, error) {
	if name == "" {
		return nil, &errCookieInvalid{name, "no name given"}
	}
	if !ValidName(name) {
		return nil, &errCookieInvalid{name, "the name contains invalid characters"}
	}

	if strict {
		if !isCookieValueStrict([]byte(value)) {
			return nil, &errCookieInvalid{name, "the value contains invalid characters"}
		}
	} else if !isCookieValueLoose([]byte(value)) {
		return nil, &errCookieInvalid{name, "the value contains invalid characters"}
	}

	cookie := &OutCookie{name: name, value: value, authenticator: authenticator}

	for _, option := range options {
		if err := option(cookie); err != nil {
			return nil, err
		}
	}

	return cookie, nil
}

func isCookieNameLoose(value []byte) bool {
	for _, c := range value {
		if !cookieNameChars[c] {
			return false
		}
	}
	return true
}

func isCookieValueStrict(value []byte) bool {
	for _, c := range value {
		if c < 32 || c >= 127 {
			return false
		}
		switch c {
		case ' ', '"', ',', ';', '\\':
			return false
		}
	}
	return true
}

func isCookieValueLoose(value []byte) bool {
	for _, c := range value {
		if c < 32 || c >= 127 {
			return false
		}
		switch c {
		case '"', ';', '\\':
			return false
		}
	}
	return true
}

// Render renders the cookie into the Set-Cookie header value.
//
// Errors can only come from the authenticator; unsigned cookies always
// render.
func (oc *OutCookie) Render() (string, error) {
	v := oc.value
	if len(v) > 0 {
		if v[0] == ' ' || v[0] == ',' || v[len(v)-1] == ' ' || v[len(v)-1] == ',' {
			v = `"` + v + `"`
		}
	}

	if oc.authenticator != nil && !oc.deleted {
		signed, err := oc.authenticator.Authenticate([]byte(oc.name), []byte(oc.value))
		if err != nil {
			return "", err
		}
		v = string(signed)
	}

	chunks := []string{oc.name + "=" + v}

	switch {
	case oc.deleted:
		chunks = append(chunks, "Max-Age=0")
	case oc.maxAge != 0:
		chunks = append(chunks, fmt.Sprintf("Max-Age=%d", oc.maxAge/time.Second))
	}
	if expires, has := oc.Expires(); has {
		chunks = append(chunks, "Expires="+expires.UTC().Format(http.TimeFormat))
	}
	if oc.path != "" {
		chunks = append(chunks, "Path="+oc.path)
	} else {
		chunks = append(chunks, "Path=/")
	}
	if oc.domain != "" {
		chunks = append(chunks, "Domain="+oc.domain)
	}
	if !oc.clientAccess {
		chunks = append(chunks, "HttpOnly")
	}
	if !oc.insecure {
		chunks = append(chunks, "Secure")
	}
	if sameSite := oc.sameSiteStrictness.render(); sameSite != "" {
		chunks = append(chunks, sameSite)
	}

	return strings.Join(chunks, "; "), nil
}

// Delete instructs the client to drop the cookie: the value is emptied,
// Max-Age is zero and Expires lies in the past. Path, Domain and the
// security flags are left alone, since the client only matches the
// deletion against a cookie with the same scope.
func Delete(oc *OutCookie) error {
	oc.maxAge = 0
	oc.expires = time.Time{}
	oc.hasExpires = true
	oc.deleted = true
	oc.value = ""
	return nil
}

// Duration is the time for the cookie to be set.
//
// Both Max-Age and Expires are sent; Expires is computed from the server
// clock. Durations under a second, and durations reaching 2038, are
// rejected.
func Duration(d time.Duration) Option {
	return func(oc *OutCookie) error {
		if d < 0 {
			return &errCookieInvalid{oc.name, "duration was negative (use Delete to delete deliberately)"}
		}
		if d < time.Second {
			return &errCookieInvalid{oc.name, "duration was set to less than one second"}
		}
		if clock.Now().Add(d).Year() >= 2038 {
			return &errCookieInvalid{oc.name, "cookie's duration is too long (use Forever to set a deliberate long-lived cookie)"}
		}

		oc.hasExpires = true
		oc.deleted = false
		oc.expires = clock.Now().Add(d)
		oc.maxAge = d

		return nil
	}
}

// Session turns this into a session cookie, which is accomplished by not
// sending any expires time.
func Session(oc *OutCookie) error {
	oc.hasExpires = false
	oc.deleted = false
	oc.maxAge = 0
	return nil
}

// SameSite configures the SameSite value on the cookie.
func SameSite(cs Strictness) Option {
	return func(oc *OutCookie) error {
		oc.sameSiteStrictness = cs
		return nil
	}
}

// Forever labels the cookie as the closest to "forever" you can get.
func Forever(oc *OutCookie) error {
	oc.hasExpires = true
	oc.deleted = false
	oc.expires = time.Unix(2147483647, 0)
	oc.maxAge = 0
	return nil
}

// Path sets the path of the cookie. An empty path renders as "/".
//
// Paths in cookies are more likely to cause confusion than to add
// security: http://lcamtuf.blogspot.com/2010/10/http-cookies-or-how-not-to-design.html
func Path(path string) Option {
	return func(oc *OutCookie) error {
		for _, b := range []byte(path) {
			if b < 32 || b >= 127 || b == '"' || b == ';' || b == '\\' {
				return &errCookieInvalid{oc.name, "path is illegal"}
			}
		}
		oc.path = path
		return nil
	}
}

// Domain sets the domain of the cookie.
//
// The cookie will also go to subdomains; there is no portable way to
// prevent that. In general the best way to call this is not to.
func Domain(domain string) Option {
	return func(oc *OutCookie) error {
		if !isCookieDomainName(domain) {
			return &errCookieInvalid{oc.name, "domain is illegal"}
		}
		oc.domain = domain
		return nil
	}
}

// copied from net/http/cookie.go
func isCookieDomainName(s string) bool {
	if len(s) == 0 {
		return false
	}
	if len(s) > 255 {
		return false
	}

	if s[0] == '.' {
		// A cookie domain attribute may start with a leading dot.
		s = s[1:]
	}
	last := byte('.')
	ok := false // Ok once we've seen a letter.
	partlen := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		default:
			return false
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
			// No '_' allowed here (in contrast to package net).
			ok = true
			partlen++
		case '0' <= c && c <= '9':
			// fine
			partlen++
		case c == '-':
			// Byte before dash cannot be dot.
			if last == '.' {
				return false
			}
			partlen++
		case c == '.':
			// Byte before dot cannot be dot, dash.
			if last == '.' || last == '-' {
				return false
			}
			if partlen > 63 || partlen == 0 {
				return false
			}
			partlen = 0
		}
		last = c
	}
	if last == '-' || partlen > 63 {
		return false
	}

	return ok
}

// ClientCanRead allows the client's Javascript to see the cookie.
//
// This drops the HttpOnly flag.
func ClientCanRead(oc *OutCookie) error {
	oc.clientAccess = true
	return nil
}

// Insecure allows the cookie to be sent over HTTP, in addition to HTTPS.
//
// This is the "secure" flag on a cookie, with a name chosen to stand out
// in review.
func Insecure(oc *OutCookie) error {
	oc.insecure = true
	return nil
}

// this creates slices that can be used to lookup legal characters
func legalslice(s string) (slice [256]bool) {
	for _, v := range []byte(s) {
		slice[v] = true
	}
	return
}

var cookieNameChars = legalslice("!#$%&'*+-.0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ^_`abcdefghijklmnopqrstuvwxyz|~")
