package server

import (
	"net/http"

	"github.com/satori-http/satori/request"
	"github.com/satori-http/satori/session"
)

// Snapshot is what whoami reports about a request.
type Snapshot struct {
	Secure     bool   `json:"secure"`
	Scheme     string `json:"scheme"`
	Method     string `json:"method"`
	Protocol   string `json:"protocol"`
	Host       string `json:"host"`
	ServerName string `json:"server_name"`
	ServerPort string `json:"server_port"`
	URI        string `json:"uri"`
	Path       string `json:"path"`
	Query      string `json:"query"`

	UserAgent         string `json:"user_agent,omitempty"`
	UntrustedReferrer string `json:"untrusted_referrer,omitempty"`

	AcceptsJSON    bool `json:"accepts_json"`
	AcceptsHTML    bool `json:"accepts_html"`
	AcceptsGzip    bool `json:"accepts_gzip"`
	AcceptsUTF8    bool `json:"accepts_utf8"`
	AcceptsEnglish bool `json:"accepts_english"`
	KeepAlive      bool `json:"keep_alive"`

	Headers map[string]string `json:"headers"`
}

func snapshot(req *request.Request) *Snapshot {
	userAgent, _ := req.UserAgent()
	referrer, _ := req.UntrustedReferrer()
	return &Snapshot{
		Secure:     req.IsSecure(),
		Scheme:     req.Scheme(),
		Method:     req.Method(),
		Protocol:   req.ProtocolVersion(),
		Host:       req.Host(),
		ServerName: req.ServerName(),
		ServerPort: req.ServerPort(),
		URI:        req.URI(),
		Path:       req.Path(),
		Query:      req.QueryString(),

		UserAgent:         userAgent,
		UntrustedReferrer: referrer,

		AcceptsJSON:    req.HasAccept("application/json"),
		AcceptsHTML:    req.HasAccept("text/html"),
		AcceptsGzip:    req.HasAcceptEncoding("gzip"),
		AcceptsUTF8:    req.HasAcceptCharset("utf-8"),
		AcceptsEnglish: req.HasAcceptLanguage("en"),
		KeepAlive:      req.HasConnectionToken("keep-alive"),

		Headers: req.Headers(),
	}
}

func (s *Server) whoami(req *request.Request, _ *session.Handle, _ func(string) string) (any, error) {
	return snapshot(req), nil
}

// Contents is the session as the client may see it.
type Contents struct {
	Name   string         `json:"name"`
	State  string         `json:"state"`
	Values map[string]any `json:"values"`
}

func contents(sess *session.Handle) *Contents {
	c := &Contents{
		Name:   sess.Name(),
		State:  sess.State().String(),
		Values: map[string]any{},
	}
	for _, key := range sess.Keys() {
		c.Values[key] = sess.Get(key, nil)
	}
	return c
}

func (s *Server) sessionContents(_ *request.Request, sess *session.Handle, _ func(string) string) (any, error) {
	return contents(sess), nil
}

func (s *Server) getValue(_ *request.Request, sess *session.Handle, param func(string) string) (any, error) {
	key := param("key")
	if !sess.Has(key) {
		return nil, statusError{http.StatusNotFound, "no such session value"}
	}
	return map[string]any{key: sess.Get(key, nil)}, nil
}

// putValue stores the "value" form parameter. PUT bodies are read through
// PutParameter, since only POST bodies are parsed up front.
func (s *Server) putValue(req *request.Request, sess *session.Handle, param func(string) string) (any, error) {
	const missing = "\x00"

	value := req.Parameter("value", missing)
	if req.Method() == http.MethodPut {
		value = req.PutParameter("value", missing)
	}
	if value == missing {
		return nil, statusError{http.StatusBadRequest, "value required"}
	}

	sess.Set(param("key"), value)
	return contents(sess), nil
}

func (s *Server) removeValue(_ *request.Request, sess *session.Handle, param func(string) string) (any, error) {
	sess.Remove(param("key"))
	return contents(sess), nil
}

func (s *Server) regenerate(req *request.Request, sess *session.Handle, _ func(string) string) (any, error) {
	if !sess.Regenerate(req.Context()) {
		return nil, statusError{http.StatusServiceUnavailable, "couldn't regenerate session"}
	}
	return contents(sess), nil
}

func (s *Server) destroy(req *request.Request, sess *session.Handle, _ func(string) string) (any, error) {
	if err := sess.Destroy(req.Context()); err != nil {
		return nil, err
	}
	return contents(sess), nil
}
