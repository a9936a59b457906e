/*

Package satori provides the default startup functionality for satori: a
supervisor running the session machinery, and the per-request wiring of
request metadata, response writer and session.

*/
package satori

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/satori-http/satori/config"
	"github.com/satori-http/satori/request"
	"github.com/satori-http/satori/session"
	"github.com/satori-http/satori/session/redisstore"
	"github.com/satori-http/satori/sphyrw"
)

// DefaultSessionTimeout is the idle timeout of the RAM store New builds
// when Args has no Store.
const DefaultSessionTimeout = 180 * time.Minute

type Satori struct {
	*suture.Supervisor

	Sessions       *session.Manager
	RequestOptions *request.Options
	Logger         *zap.Logger

	closers []io.Closer
}

type Args struct {
	IDs            session.IDManager
	Store          session.Store
	Settings       *session.Settings
	RequestOptions *request.Options
	Logger         *zap.Logger
}

// New brings up a new instance of a satori environment with some default
// parameters. Those parameters can be overridden via the passed-in Args.
//
// The biggest issue with the default arguments is that the sessions will
// be entirely in RAM, under an ID key that does not survive a restart.
//
// Any IDs or Store that is also a suture.Service is added to the
// supervisor; the caller still has to start it with Serve or
// ServeBackground.
func New(args *Args) *Satori {
	if args == nil {
		args = &Args{}
	}
	logger := args.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	supervisor := suture.New("satori root supervisor", suture.Spec{
		EventHook: func(ev suture.Event) {
			logger.Warn("supervisor event", zap.String("event", ev.String()))
		},
	})

	ids := args.IDs
	if ids == nil {
		ids = session.NewSessionIDGenerator(128, nil)
	}
	if service, isService := ids.(suture.Service); isService {
		supervisor.Add(service)
	}

	store := args.Store
	if store == nil {
		store = session.NewRAMStore(ids, &session.RAMStoreSettings{
			Timeout: DefaultSessionTimeout,
			Logger:  logger.Named("ramstore"),
		})
	}
	if service, isService := store.(suture.Service); isService {
		supervisor.Add(service)
	}

	return &Satori{
		Supervisor:     supervisor,
		Sessions:       session.NewManager(store, ids, args.Settings, logger),
		RequestOptions: args.RequestOptions,
		Logger:         logger,
	}
}

// NewFromConfig builds a Satori from a validated configuration, dialing
// the session store it names.
func NewFromConfig(ctx context.Context, c *config.Config, logger *zap.Logger) (*Satori, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings, err := c.Session.Settings()
	if err != nil {
		return nil, err
	}
	key, err := c.Session.IDKeyBytes()
	if err != nil {
		return nil, err
	}
	ids := session.NewSessionIDGenerator(c.Session.IDBuffer, key)

	args := &Args{
		IDs:            ids,
		Settings:       settings,
		RequestOptions: c.Request.Options(),
		Logger:         logger,
	}
	var closers []io.Closer

	switch c.Store.Backend {
	case config.BackendRAM:
		args.Store = session.NewRAMStore(ids, &session.RAMStoreSettings{
			Timeout:       c.Session.Timeout,
			PurgeInterval: c.Store.PurgeInterval,
			Logger:        logger.Named("ramstore"),
		})

	case config.BackendFilesystem:
		fss, err := session.NewFilesystemStore(c.Store.Directory, ids,
			&session.FilesystemStoreSettings{
				Timeout:       c.Session.Timeout,
				PurgeInterval: c.Store.PurgeInterval,
				Logger:        logger.Named("filestore"),
			})
		if err != nil {
			return nil, err
		}
		args.Store = fss

	case config.BackendRedis:
		rs, err := redisstore.Dial(ctx, c.Store.RedisAddr, ids,
			c.Store.RedisPrefix, c.Session.Timeout)
		if err != nil {
			return nil, err
		}
		args.Store = rs
		closers = append(closers, rs)

	default:
		return nil, fmt.Errorf("satori: unknown store backend %q", c.Store.Backend)
	}

	s := New(args)
	s.closers = closers
	return s, nil
}

// Begin wraps an incoming request. The returned Writer must be used for
// the response and Finished once the handler is done; the Handle is bound
// to both and not yet started.
//
// If the request can't be read, the error is returned with a Writer the
// caller can still answer on, and a nil Request and Handle.
func (s *Satori) Begin(w http.ResponseWriter, r *http.Request) (*request.Request, *sphyrw.Writer, *session.Handle, error) {
	writer := sphyrw.New(w, s.Logger)
	req, err := request.New(r, s.RequestOptions)
	if err != nil {
		return nil, writer, nil, err
	}
	return req, writer, s.Sessions.Handle(req, writer), nil
}

// Close releases any connections NewFromConfig made.
func (s *Satori) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
