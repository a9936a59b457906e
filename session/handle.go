package session

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/satori-http/satori/internal/metrics"
	"github.com/satori-http/satori/request"
	"github.com/satori-http/satori/sphyrw/cookie"
)

// A Handle is one request's view of its session.
type Handle struct {
	manager *Manager
	req     *request.Request
	sink    CookieSink

	name   string
	id     SessionID
	values map[string]any
	state  State
}

// Start activates the session. A non-empty name replaces the session's
// name, which is also its cookie name.
//
// The client's session is resumed if its cookie carries an ID we minted
// and the store still has it. Otherwise a fresh ID and an empty map are
// used, and the new cookie is issued. Only store failures other than
// ErrSessionNotFound are returned.
//
// Starting an Active session does nothing. A Released session is reloaded
// from the store under the same ID; if name renames it, the cookie is
// issued again under the new name.
func (h *Handle) Start(ctx context.Context, name string) error {
	switch h.state {
	case Destroyed:
		return ErrSessionDestroyed
	case Active:
		return nil
	}

	renamed := false
	if name != "" {
		if !cookie.ValidName(name) {
			return fmt.Errorf("session: %q is not a usable session name", name)
		}
		renamed = h.state == Released && name != h.name
		h.name = name
	}

	candidate := h.id
	if h.state == NotStarted {
		candidate = h.clientID()
	}

	if candidate != NoSessionID {
		values, err := h.manager.store.Load(ctx, candidate)
		switch {
		case err == nil:
			if values == nil {
				values = map[string]any{}
			}
			h.id = candidate
			if renamed {
				if err := h.issueCookie(); err != nil {
					return err
				}
			}
			h.values = values
			h.state = Active
			metrics.SessionsStarted.WithLabelValues("resumed").Inc()
			h.manager.logger.Debug("session resumed", zap.String("name", h.name))
			return nil

		case errors.Is(err, ErrSessionNotFound):
			// fall through to a fresh session

		default:
			metrics.StoreErrors.WithLabelValues("load").Inc()
			h.manager.logger.Error("couldn't load session",
				zap.String("name", h.name), zap.Error(err))
			return fmt.Errorf("session: loading: %w", err)
		}
	}

	h.id = h.manager.ids.Get()
	h.values = map[string]any{}
	if err := h.issueCookie(); err != nil {
		h.id = NoSessionID
		h.values = nil
		return err
	}
	h.state = Active
	metrics.SessionsStarted.WithLabelValues("created").Inc()
	h.manager.logger.Debug("session created", zap.String("name", h.name))
	return nil
}

// clientID returns the ID the client presented, if it is one we would
// have minted.
func (h *Handle) clientID() SessionID {
	if h.req == nil {
		return NoSessionID
	}
	value, have := h.req.Cookie(h.name)
	if !have || value == "" {
		return NoSessionID
	}

	if signer := h.manager.settings.Signer; signer != nil {
		unwrapped, err := signer.UnwrapAuthentication([]byte(h.name), []byte(value))
		if err != nil {
			h.manager.logger.Debug("session cookie signature rejected",
				zap.String("name", h.name))
			return NoSessionID
		}
		value = string(unwrapped)
	}

	sessionID := SessionID(value)
	if !h.manager.ids.Check(sessionID) {
		h.manager.logger.Debug("session cookie carries a foreign ID",
			zap.String("name", h.name))
		return NoSessionID
	}
	return sessionID
}

func (h *Handle) issueCookie() error {
	settings := h.manager.settings
	if settings.DisableCookies || h.sink == nil {
		return nil
	}

	c, err := cookie.NewOut(h.name, string(h.id), settings.Signer, settings.Cookie.options()...)
	if err != nil {
		return fmt.Errorf("session: building cookie: %w", err)
	}
	h.sink.SetCookie(c)
	return nil
}

// Has reports whether key is set. A session that was never started is
// empty.
func (h *Handle) Has(key string) bool {
	_, have := h.values[key]
	return have
}

// Get returns the value under key, or def.
func (h *Handle) Get(key string, def any) any {
	if value, have := h.values[key]; have {
		return value
	}
	return def
}

// Set stores value under key. It does nothing unless the session is
// Active.
func (h *Handle) Set(key string, value any) {
	if h.state != Active {
		return
	}
	h.values[key] = value
}

// Remove deletes key. It does nothing unless the session is Active.
func (h *Handle) Remove(key string) {
	if h.state != Active {
		return
	}
	delete(h.values, key)
}

// Regenerate moves the session to a new ID, keeping its contents, and
// issues the new cookie. Call it whenever privilege changes, such as on
// login, to defeat fixation.
//
// On failure the old ID stays in place and false is returned.
func (h *Handle) Regenerate(ctx context.Context) bool {
	if h.state != Active {
		return false
	}

	newID, err := h.manager.store.RegenerateID(ctx, h.id)
	if errors.Is(err, ErrSessionNotFound) {
		// never saved; nothing to move
		newID, err = h.manager.ids.Get(), nil
	}
	if err != nil {
		metrics.SessionsRegenerated.WithLabelValues("failed").Inc()
		metrics.StoreErrors.WithLabelValues("regenerate").Inc()
		h.manager.logger.Warn("couldn't regenerate session ID",
			zap.String("name", h.name), zap.Error(err))
		return false
	}

	h.id = newID
	if err := h.issueCookie(); err != nil {
		h.manager.logger.Error("couldn't issue regenerated session cookie",
			zap.String("name", h.name), zap.Error(err))
	}
	metrics.SessionsRegenerated.WithLabelValues("ok").Inc()
	h.manager.logger.Debug("session regenerated", zap.String("name", h.name))
	return true
}

// Release writes the session back to the store. The in-memory values
// remain readable afterwards. If the save fails the session stays Active.
func (h *Handle) Release(ctx context.Context) error {
	if h.state != Active {
		return nil
	}

	if err := h.manager.store.Save(ctx, h.id, h.values); err != nil {
		metrics.StoreErrors.WithLabelValues("save").Inc()
		h.manager.logger.Error("couldn't save session",
			zap.String("name", h.name), zap.Error(err))
		return fmt.Errorf("session: saving: %w", err)
	}
	h.state = Released
	h.manager.logger.Debug("session released", zap.String("name", h.name))
	return nil
}

// Destroy clears the session, tells the client to drop the session
// cookie and deletes the store's copy. The cookie is expired with the
// same attributes it was issued with.
//
// The Handle is Destroyed even if the store fails, since the client has
// already been told to forget the ID.
func (h *Handle) Destroy(ctx context.Context) error {
	switch h.state {
	case NotStarted:
		return ErrNotStarted
	case Destroyed:
		return nil
	}

	id := h.id
	h.values = nil
	h.id = NoSessionID
	h.state = Destroyed
	metrics.SessionsDestroyed.Inc()

	var cookieErr error
	if settings := h.manager.settings; !settings.DisableCookies && h.sink != nil {
		opts := append(settings.Cookie.options(), cookie.Delete)
		c, err := cookie.NewOut(h.name, "", nil, opts...)
		if err != nil {
			cookieErr = fmt.Errorf("session: building expiring cookie: %w", err)
		} else {
			h.sink.SetCookie(c)
		}
	}

	err := h.manager.store.Delete(ctx, id)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		metrics.StoreErrors.WithLabelValues("delete").Inc()
		h.manager.logger.Error("couldn't delete session",
			zap.String("name", h.name), zap.Error(err))
		return fmt.Errorf("session: deleting: %w", err)
	}

	h.manager.logger.Debug("session destroyed", zap.String("name", h.name))
	return cookieErr
}

// ID returns the session ID, if the session has one.
func (h *Handle) ID() (SessionID, bool) {
	return h.id, h.id != NoSessionID
}

// Name returns the session name.
func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) State() State {
	return h.state
}

// Keys returns the set keys in sorted order.
func (h *Handle) Keys() []string {
	keys := make([]string, 0, len(h.values))
	for key := range h.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
