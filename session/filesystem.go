package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/thejerf/abtime"
	"go.uber.org/zap"

	"github.com/satori-http/satori/internal/metrics"
)

// This file defines a session store that functions on disk.
//
// This is the second simplest store to understand, as while it is very
// simple it does have serialization and disk concerns. It is viable as a
// real store, as long as you're not going to have too many users for one
// directory to hold. You end up with one small file per session, and the
// file's modification time is its last use.

const filesystemPurgeTicker = 2

// sessionFileSuffix marks our files so Purge leaves everything else in the
// directory alone.
const sessionFileSuffix = ".session"

// FilesystemStoreSettings configure a FilesystemStore.
type FilesystemStoreSettings struct {
	// Timeout is the idle time after which a session expires. Defaults
	// to an hour.
	Timeout time.Duration

	// PurgeInterval is how often Serve sweeps out expired files. Defaults
	// to Timeout.
	PurgeInterval time.Duration

	abtime.AbstractTime
	Logger *zap.Logger
}

// A FilesystemStore keeps one JSON file per session in a directory.
type FilesystemStore struct {
	directory string
	ids       IDManager
	*FilesystemStoreSettings

	synced chan struct{}

	// synchronize all access through this, to simplify things.
	lock sync.Mutex
}

// NewFilesystemStore returns a disk-based session store in directory,
// which is created if needed. Once the settings have been passed to this
// object you must not modify them.
func NewFilesystemStore(
	directory string,
	ids IDManager,
	settings *FilesystemStoreSettings,
) (*FilesystemStore, error) {
	if ids == nil {
		panic("IDManager required")
	}
	if settings == nil {
		settings = &FilesystemStoreSettings{}
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

	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("session: creating store directory: %w", err)
	}

	return &FilesystemStore{
		directory:               directory,
		ids:                     ids,
		FilesystemStoreSettings: settings,
		synced:                  make(chan struct{}),
	}, nil
}

// this is a slightly paranoid file name replacer, to ensure that our
// session ID can be safely stored on disk. Trying to be multi-OS compliant
// but that's hard to test.
var encoder = strings.NewReplacer(
	"/", "!1",
	"\\", "!2",
	"?", "!3",
	"*", "!4",
	":", "!5",
	"\"", "!6",
	"<", "!7",
	">", "!8",
	"!", "!9",
	".", "!0",
)

func (fss *FilesystemStore) sessionToFile(id SessionID) string {
	return filepath.Join(fss.directory, encoder.Replace(string(id))+sessionFileSuffix)
}

func (fss *FilesystemStore) expired(modTime time.Time) bool {
	return modTime.Add(fss.Timeout).Before(fss.Now())
}

func (fss *FilesystemStore) Load(_ context.Context, id SessionID) (map[string]any, error) {
	fss.lock.Lock()
	defer fss.lock.Unlock()

	return fss.load(id)
}

func (fss *FilesystemStore) load(id SessionID) (map[string]any, error) {
	filename := fss.sessionToFile(id)

	stat, err := os.Stat(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if fss.expired(stat.ModTime()) {
		_ = os.Remove(filename)
		return nil, ErrSessionNotFound
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	// A mismatch can only come from case folding on a case-insensitive
	// file system. That hands this user someone else's session, so the
	// session is treated as broken rather than served.
	values, err := DecodeValues(id, data)
	if err != nil {
		return nil, err
	}

	now := fss.Now()
	if err := os.Chtimes(filename, now, now); err != nil {
		return nil, err
	}
	return values, nil
}

func (fss *FilesystemStore) Save(_ context.Context, id SessionID, values map[string]any) error {
	data, err := EncodeValues(id, values)
	if err != nil {
		return err
	}

	fss.lock.Lock()
	defer fss.lock.Unlock()

	return fss.write(id, data)
}

// write goes through a temporary file so a crash never leaves half a
// session behind.
func (fss *FilesystemStore) write(id SessionID, data []byte) error {
	filename := fss.sessionToFile(id)

	tmp, err := os.CreateTemp(fss.directory, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0o600)
	}
	if err == nil {
		now := fss.Now()
		err = os.Chtimes(tmpName, now, now)
	}
	if err == nil {
		err = os.Rename(tmpName, filename)
	}
	if err != nil {
		_ = os.Remove(tmpName)
	}
	return err
}

func (fss *FilesystemStore) Delete(_ context.Context, id SessionID) error {
	fss.lock.Lock()
	defer fss.lock.Unlock()

	err := os.Remove(fss.sessionToFile(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (fss *FilesystemStore) RegenerateID(_ context.Context, id SessionID) (SessionID, error) {
	fss.lock.Lock()
	defer fss.lock.Unlock()

	values, err := fss.load(id)
	if err != nil {
		return NoSessionID, err
	}

	newID := fss.ids.Get()
	data, err := EncodeValues(newID, values)
	if err != nil {
		return NoSessionID, err
	}
	if err := fss.write(newID, data); err != nil {
		return NoSessionID, err
	}
	if err := os.Remove(fss.sessionToFile(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		fss.Logger.Warn("couldn't remove the pre-regeneration session file", zap.Error(err))
	}
	return newID, nil
}

// Purge removes expired session files and returns how many went.
func (fss *FilesystemStore) Purge() (int, error) {
	fss.lock.Lock()
	defer fss.lock.Unlock()

	entries, err := os.ReadDir(fss.directory)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sessionFileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if fss.expired(info.ModTime()) {
			if err := os.Remove(filepath.Join(fss.directory, entry.Name())); err == nil {
				purged++
			}
		}
	}
	metrics.SessionsPurged.Add(float64(purged))
	return purged, nil
}

// Serve purges every PurgeInterval until the context is cancelled. It
// implements suture.Service.
func (fss *FilesystemStore) Serve(ctx context.Context) error {
	ticker := fss.NewTicker(fss.PurgeInterval, filesystemPurgeTicker)
	defer ticker.Stop()

	purge := func() {
		purged, err := fss.Purge()
		if err != nil {
			fss.Logger.Error("couldn't purge session directory", zap.Error(err))
			return
		}
		if purged > 0 {
			fss.Logger.Debug("purged expired sessions", zap.Int("count", purged))
		}
	}

	for {
		select {
		case <-ticker.Channel():
			purge()
		case <-fss.synced:
			select {
			case <-ticker.Channel():
				purge()
			default:
			}
			fss.synced <- struct{}{}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (fss *FilesystemStore) String() string {
	return "filesystem session store in " + fss.directory
}
