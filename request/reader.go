package request

import (
	"net/http"
	"net/url"
	"strings"
)

// IsSecure reports whether the request came over an encrypted transport.
// Any non-empty indicator other than "off" counts.
func (r *Request) IsSecure() bool {
	return r.fields.Secure != "" && !strings.EqualFold(r.fields.Secure, "off")
}

// Method returns the request method, such as "GET".
func (r *Request) Method() string {
	return r.fields.Method
}

// Scheme returns "http" or "https".
func (r *Request) Scheme() string {
	return r.fields.Scheme
}

// ProtocolVersion returns the protocol, such as "HTTP/1.1".
func (r *Request) ProtocolVersion() string {
	return r.fields.Protocol
}

// Host returns the Host header as the client sent it.
func (r *Request) Host() string {
	return r.fields.Host
}

func (r *Request) ServerName() string {
	return r.fields.ServerName
}

func (r *Request) ServerPort() string {
	return r.fields.ServerPort
}

// URI returns the raw request URI, query included.
func (r *Request) URI() string {
	return r.fields.URI
}

// Path returns the URI with any query removed.
func (r *Request) Path() string {
	if r.fields.HasQuery {
		if idx := strings.IndexByte(r.fields.URI, '?'); idx != -1 {
			return r.fields.URI[:idx]
		}
	}
	return r.fields.URI
}

// QueryString returns the raw query string, or "" if there is none.
func (r *Request) QueryString() string {
	return r.fields.Query
}

// Header looks up a header case-insensitively. Repeated headers are joined
// with ", ".
func (r *Request) Header(name string) (string, bool) {
	values := r.fields.Header.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return strings.Join(values, ", "), true
}

// Headers returns every header under its canonical name, so
// "accept-language" comes back as "Accept-Language".
func (r *Request) Headers() map[string]string {
	headers := make(map[string]string, len(r.fields.Header))
	for name, values := range r.fields.Header {
		canonical := http.CanonicalHeaderKey(name)
		if existing, have := headers[canonical]; have {
			headers[canonical] = existing + ", " + strings.Join(values, ", ")
			continue
		}
		headers[canonical] = strings.Join(values, ", ")
	}
	return headers
}

// Parameter looks name up in the body parameters, then the query
// parameters, returning def if neither has it.
func (r *Request) Parameter(name, def string) string {
	if value, have := lookup(r.fields.BodyParams, name); have {
		return value
	}
	if value, have := lookup(r.fields.QueryParams, name); have {
		return value
	}
	return def
}

// QueryParameter only consults the query string.
func (r *Request) QueryParameter(name, def string) string {
	if value, have := lookup(r.fields.QueryParams, name); have {
		return value
	}
	return def
}

// PostParameter only consults the form body of a POST.
func (r *Request) PostParameter(name, def string) string {
	if value, have := lookup(r.fields.BodyParams, name); have {
		return value
	}
	return def
}

// PutParameter parses the raw body as a urlencoded form on every call. A
// body that does not parse yields def.
func (r *Request) PutParameter(name, def string) string {
	values, err := url.ParseQuery(string(r.fields.RawBody))
	if err != nil {
		return def
	}
	if value, have := lookup(values, name); have {
		return value
	}
	return def
}

func lookup(values url.Values, name string) (string, bool) {
	v, have := values[name]
	if !have || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// Cookie returns the value of the named cookie. Cookie values are not
// authenticated here.
func (r *Request) Cookie(name string) (string, bool) {
	c := r.fields.Cookies.Get(name)
	if c == nil {
		return "", false
	}
	return c.Value(), true
}

// UntrustedReferrer returns the Referer header. As the name suggests,
// anything may be in it.
func (r *Request) UntrustedReferrer() (string, bool) {
	return r.Header("Referer")
}

func (r *Request) Accept() (string, bool) {
	return r.Header("Accept")
}

func (r *Request) AcceptLanguage() (string, bool) {
	return r.Header("Accept-Language")
}

func (r *Request) AcceptEncoding() (string, bool) {
	return r.Header("Accept-Encoding")
}

func (r *Request) AcceptCharset() (string, bool) {
	return r.Header("Accept-Charset")
}

func (r *Request) Connection() (string, bool) {
	return r.Header("Connection")
}

func (r *Request) UserAgent() (string, bool) {
	return r.Header("User-Agent")
}
