package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/satori-http/satori/sphyrw/cookie"
)

// DefaultMaxBodyBytes is the body buffering limit used when Options does
// not set one.
const DefaultMaxBodyBytes = 10 << 20

// ErrFieldMissing is wrapped by every *FieldMissingError.
var ErrFieldMissing = errors.New("request field not populated")

// ErrBodyTooLarge is returned by New when the body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// FieldMissingError names an always-present field the host left empty.
type FieldMissingError struct {
	Field string
}

func (fme *FieldMissingError) Error() string {
	return "request: " + fme.Field + " not populated"
}

func (fme *FieldMissingError) Unwrap() error {
	return ErrFieldMissing
}

// Fields is the raw material of a Request. Hosts that do not run on
// net/http can fill one in directly and call FromFields.
type Fields struct {
	// Secure is the secure-transport indicator, such as "on" or "off".
	Secure     string
	Scheme     string
	Method     string
	Protocol   string
	Host       string
	ServerName string
	ServerPort string

	// URI is the raw request URI, including any query.
	URI      string
	Query    string
	HasQuery bool

	Header      http.Header
	QueryParams url.Values
	BodyParams  url.Values
	Cookies     *cookie.InCookies

	// RawBody is kept so PutParameter can re-parse it.
	RawBody []byte
}

// Options control how New derives Fields from an *http.Request.
type Options struct {
	// ServerName overrides the name derived from the Host header.
	ServerName string

	// TrustForwardedProto marks requests carrying
	// "X-Forwarded-Proto: https" as secure. Only set this behind a proxy
	// that strips the header from client requests.
	TrustForwardedProto bool

	// MaxBodyBytes bounds how much of the body is buffered. Zero means
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// A Request is an immutable snapshot of an inbound request.
type Request struct {
	fields Fields
	ctx    context.Context
}

// New snapshots r. The body is read in full and put back on r, so handlers
// further down the chain can still read it.
func New(r *http.Request, opts *Options) (*Request, error) {
	if opts == nil {
		opts = &Options{}
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	f := Fields{
		Method:   r.Method,
		Protocol: r.Proto,
		Host:     r.Host,
		URI:      r.RequestURI,
		Header:   canonicalHeader(r.Header),
	}
	if r.Host != "" {
		f.Header.Set("Host", r.Host)
	}
	if f.URI == "" && r.URL != nil {
		f.URI = r.URL.RequestURI()
	}

	if r.TLS != nil ||
		(opts.TrustForwardedProto &&
			strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")) {
		f.Secure = "on"
		f.Scheme = "https"
	} else {
		f.Secure = "off"
		f.Scheme = "http"
	}

	f.ServerName, f.ServerPort = serverNameAndPort(r, f.Scheme)
	if opts.ServerName != "" {
		f.ServerName = opts.ServerName
	}

	if idx := strings.IndexByte(f.URI, '?'); idx != -1 {
		f.HasQuery = true
		f.Query = f.URI[idx+1:]
	} else if r.URL != nil && r.URL.RawQuery != "" {
		f.HasQuery = true
		f.Query = r.URL.RawQuery
	}
	// a malformed pair is skipped; the rest still parse
	f.QueryParams, _ = url.ParseQuery(f.Query)

	f.Cookies = cookie.ParseCookies(r.Header["Cookie"])

	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		_ = r.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("request: reading body: %w", err)
		}
		if int64(len(body)) > maxBody {
			return nil, ErrBodyTooLarge
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		f.RawBody = body
	}

	f.BodyParams = bodyParams(r, f.RawBody, maxBody)

	return &Request{fields: f, ctx: r.Context()}, nil
}

// FromFields builds a Request from explicitly supplied fields. The maps
// and body are copied. If HasQuery is unset and URI carries a query, Query
// and HasQuery are taken from URI, and QueryParams too when it is nil.
func FromFields(f Fields) *Request {
	copied := f
	copied.Header = canonicalHeader(f.Header)
	if !copied.HasQuery {
		if _, query, found := strings.Cut(copied.URI, "?"); found {
			copied.HasQuery = true
			copied.Query = query
			if copied.QueryParams == nil {
				copied.QueryParams, _ = url.ParseQuery(query)
			}
		}
	}
	copied.QueryParams = copyValues(copied.QueryParams)
	copied.BodyParams = copyValues(f.BodyParams)
	if copied.Cookies == nil {
		copied.Cookies = cookie.ParseCookies(copied.Header["Cookie"])
	}
	copied.RawBody = append([]byte(nil), f.RawBody...)
	return &Request{fields: copied, ctx: context.Background()}
}

// Context returns the context of the request this was taken from.
func (r *Request) Context() context.Context {
	return r.ctx
}

// Validate returns a *FieldMissingError for the first always-present field
// the host failed to populate.
func (r *Request) Validate() error {
	for _, field := range []struct {
		name, value string
	}{
		{"method", r.fields.Method},
		{"uri", r.fields.URI},
		{"scheme", r.fields.Scheme},
		{"protocol", r.fields.Protocol},
		{"server name", r.fields.ServerName},
		{"server port", r.fields.ServerPort},
	} {
		if field.value == "" {
			return &FieldMissingError{field.name}
		}
	}
	return nil
}

func serverNameAndPort(r *http.Request, scheme string) (string, string) {
	host, port, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
		port = ""
	}
	host = strings.Trim(host, "[]")

	if port == "" {
		if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
			if _, localPort, err := net.SplitHostPort(addr.String()); err == nil {
				port = localPort
			}
		}
	}
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return host, port
}

// Only POST bodies of the two form content types become body
// parameters. Anything else is still reachable through PutParameter.
func bodyParams(r *http.Request, body []byte, maxBody int64) url.Values {
	if r.Method != http.MethodPost || len(body) == 0 {
		return url.Values{}
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return url.Values{}
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, _ := url.ParseQuery(string(body))
		return values

	case "multipart/form-data":
		clone := r.Clone(r.Context())
		clone.Body = io.NopCloser(bytes.NewReader(body))
		if clone.URL != nil {
			clone.URL.RawQuery = ""
		}
		if err := clone.ParseMultipartForm(maxBody); err != nil {
			return url.Values{}
		}
		if clone.MultipartForm != nil {
			_ = clone.MultipartForm.RemoveAll()
		}
		return clone.PostForm
	}

	return url.Values{}
}

func canonicalHeader(in http.Header) http.Header {
	out := http.Header{}
	for name, values := range in {
		canonical := http.CanonicalHeaderKey(name)
		out[canonical] = append(out[canonical], values...)
	}
	return out
}

func copyValues(in url.Values) url.Values {
	out := url.Values{}
	for key, values := range in {
		out[key] = append([]string(nil), values...)
	}
	return out
}
