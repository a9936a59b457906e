package session

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/thejerf/abtime"
	"go.uber.org/zap"

	"github.com/satori-http/satori/internal/metrics"
)

// This file defines a session store that functions entirely in RAM.
//
// Along with being the simplest store to understand (since it has no
// serialization, network, DB, etc. concerns), RAMStore can also be a valid
// store for real deployment, if you don't mind losing all sessions upon
// process restart. Purging is done with the lock held, so it blocks
// anyone loading a session; that is trivial into the thousands of
// sessions but would be a problem past that.

// ramPurgeTicker is the abtime ID of the purge ticker.
const ramPurgeTicker = 1

// RAMStoreSettings configure a RAMStore.
type RAMStoreSettings struct {
	// Timeout is the idle time after which a session expires. Every Load
	// and Save pushes it back. Defaults to an hour.
	Timeout time.Duration

	// PurgeInterval is how often Serve sweeps out expired sessions.
	// Defaults to Timeout.
	PurgeInterval time.Duration

	abtime.AbstractTime
	Logger *zap.Logger
}

type ramEntry struct {
	values  map[string]any
	expires time.Time
}

// A RAMStore holds sessions in a map.
type RAMStore struct {
	sessions map[SessionID]*ramEntry
	ids      IDManager
	*RAMStoreSettings

	// test hook: Serve echoes on this once any pending tick is handled
	synced chan struct{}

	sync.Mutex
}

// NewRAMStore returns a RAM-based session store. Once the settings have
// been passed to this object you must not modify them.
func NewRAMStore(ids IDManager, settings *RAMStoreSettings) *RAMStore {
	if ids == nil {
		panic("IDManager required")
	}
	if settings == nil {
		settings = &RAMStoreSettings{}
	}
	if settings.Timeout == 0 {
		settings.Timeout = time.Hour
	}
	if settings.PurgeInterval == 0 {
		settings.PurgeInterval = settings.Timeout
	}
	if settings.AbstractTime == nil {
		settings.AbstractTime = abtime.NewRealTime()
	}
	if settings.Logger == nil {
		settings.Logger = zap.NewNop()
	}

	return &RAMStore{
		sessions:         map[SessionID]*ramEntry{},
		ids:              ids,
		RAMStoreSettings: settings,
		synced:           make(chan struct{}),
	}
}

func (rs *RAMStore) Load(_ context.Context, id SessionID) (map[string]any, error) {
	now := rs.Now()

	rs.Lock()
	defer rs.Unlock()

	entry := rs.sessions[id]
	if entry == nil {
		return nil, ErrSessionNotFound
	}
	if now.After(entry.expires) {
		delete(rs.sessions, id)
		return nil, ErrSessionNotFound
	}
	entry.expires = now.Add(rs.Timeout)

	// the handle mutates its map; ours stays untouched until Save
	return maps.Clone(entry.values), nil
}

func (rs *RAMStore) Save(_ context.Context, id SessionID, values map[string]any) error {
	values = maps.Clone(values)
	if values == nil {
		values = map[string]any{}
	}
	expires := rs.Now().Add(rs.Timeout)

	rs.Lock()
	rs.sessions[id] = &ramEntry{values, expires}
	rs.Unlock()
	return nil
}

func (rs *RAMStore) Delete(_ context.Context, id SessionID) error {
	rs.Lock()
	delete(rs.sessions, id)
	rs.Unlock()
	return nil
}

func (rs *RAMStore) RegenerateID(_ context.Context, id SessionID) (SessionID, error) {
	now := rs.Now()
	newID := rs.ids.Get()

	rs.Lock()
	defer rs.Unlock()

	entry := rs.sessions[id]
	if entry == nil || now.After(entry.expires) {
		delete(rs.sessions, id)
		return NoSessionID, ErrSessionNotFound
	}
	delete(rs.sessions, id)
	entry.expires = now.Add(rs.Timeout)
	rs.sessions[newID] = entry
	return newID, nil
}

// Len returns the number of sessions held, expired or not.
func (rs *RAMStore) Len() int {
	rs.Lock()
	defer rs.Unlock()
	return len(rs.sessions)
}

// Purge removes expired sessions and returns how many went.
func (rs *RAMStore) Purge() int {
	now := rs.Now()

	rs.Lock()
	defer rs.Unlock()

	purged := 0
	for id, entry := range rs.sessions {
		if now.After(entry.expires) {
			delete(rs.sessions, id)
			purged++
		}
	}
	metrics.SessionsPurged.Add(float64(purged))
	return purged
}

// Serve purges every PurgeInterval until the context is cancelled. It
// implements suture.Service.
func (rs *RAMStore) Serve(ctx context.Context) error {
	ticker := rs.NewTicker(rs.PurgeInterval, ramPurgeTicker)
	defer ticker.Stop()

	purge := func() {
		if purged := rs.Purge(); purged > 0 {
			rs.Logger.Debug("purged expired sessions", zap.Int("count", purged))
		}
	}

	for {
		select {
		case <-ticker.Channel():
			purge()
		case <-rs.synced:
			select {
			case <-ticker.Channel():
				purge()
			default:
			}
			rs.synced <- struct{}{}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (rs *RAMStore) String() string {
	return "RAM session store"
}
