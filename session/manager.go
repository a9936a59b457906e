package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/satori-http/satori/request"
	"github.com/satori-http/satori/secret"
	"github.com/satori-http/satori/sphyrw/cookie"
)

// DefaultName is the session cookie name used when Settings has none.
const DefaultName = "session"

// CookieParams are the attributes of the session cookie. Destroy reuses
// them for the expiring cookie so the client matches it to the live one.
type CookieParams struct {
	Path          string
	Domain        string
	Insecure      bool
	ClientCanRead bool
	SameSite      cookie.Strictness

	// Lifetime of zero gives a browser-session cookie.
	Lifetime time.Duration
}

func (cp CookieParams) options() []cookie.Option {
	opts := []cookie.Option{cookie.SameSite(cp.SameSite)}
	if cp.Path != "" {
		opts = append(opts, cookie.Path(cp.Path))
	}
	if cp.Domain != "" {
		opts = append(opts, cookie.Domain(cp.Domain))
	}
	if cp.Insecure {
		opts = append(opts, cookie.Insecure)
	}
	if cp.ClientCanRead {
		opts = append(opts, cookie.ClientCanRead)
	}
	if cp.Lifetime > 0 {
		opts = append(opts, cookie.Duration(cp.Lifetime))
	}
	return opts
}

// Settings configure a Manager. Once passed to NewManager they must not
// be modified.
type Settings struct {
	Name   string
	Cookie CookieParams

	// DisableCookies stops the Manager from issuing or expiring the
	// session cookie. The ID then has to travel some other way.
	DisableCookies bool

	// Signer, if set, signs the session cookie over its name and value.
	Signer secret.Signer
}

// A Manager hands out per-request Handles over a shared Store.
type Manager struct {
	store    Store
	ids      IDManager
	settings Settings
	logger   *zap.Logger
}

// NewManager returns a Manager. store and ids must not be nil. A nil
// logger discards everything.
func NewManager(store Store, ids IDManager, settings *Settings, logger *zap.Logger) *Manager {
	if store == nil {
		panic("session store required")
	}
	if ids == nil {
		panic("session IDManager required")
	}
	if settings == nil {
		settings = &Settings{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := *settings
	if s.Name == "" {
		s.Name = DefaultName
	}

	return &Manager{
		store:    store,
		ids:      ids,
		settings: s,
		logger:   logger.Named("session"),
	}
}

// Handle returns a not-yet-started Handle bound to the request. Cookies
// are read from req and written to sink; either may be nil.
func (m *Manager) Handle(req *request.Request, sink CookieSink) *Handle {
	return &Handle{
		manager: m,
		req:     req,
		sink:    sink,
		name:    m.settings.Name,
		state:   NotStarted,
	}
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Name returns the default session name.
func (m *Manager) Name() string {
	return m.settings.Name
}
