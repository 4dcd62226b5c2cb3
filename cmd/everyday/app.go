package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/4tyam/everyday/internal/auth"
	"github.com/4tyam/everyday/internal/cache"
	"github.com/4tyam/everyday/internal/config"
	"github.com/4tyam/everyday/internal/media"
	"github.com/4tyam/everyday/internal/remote/postgres"
	"github.com/4tyam/everyday/internal/service"
	"github.com/4tyam/everyday/internal/store/sqlite"
	"github.com/4tyam/everyday/internal/uploader"
)

var errNoRemote = errors.New("remote sync is not configured (--remote-dsn)")

// app is the wired object graph shared by every command.
type app struct {
	cfg config.Config
	log *zap.Logger

	store    *sqlite.Store
	memRepo  *sqlite.MemoryRepo
	tripRepo *sqlite.TripRepo
	queue    *sqlite.QueueRepo

	memories *service.MemoryServiceImpl
	trips    *service.TripServiceImpl
	binder   *cache.Binder
	sessions *auth.Sessions
	userID   string

	remote *postgres.DB
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newApp wires the local stack. The database is opened lazily on first use.
func newApp(cfg config.Config) (*app, error) {
	log, err := newLogger(cfg.Dev)
	if err != nil {
		return nil, err
	}

	st := sqlite.New(cfg.DBPath(), log.Named("store"))
	a := &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		memRepo:  sqlite.NewMemoryRepo(st),
		tripRepo: sqlite.NewTripRepo(st),
		queue:    sqlite.NewQueueRepo(st),
		sessions: auth.NewSessions([]byte(cfg.TokenKey), 0),
	}
	a.memories = service.NewMemoryService(a.memRepo, media.NewFiles(cfg.MediaRoot()), media.ImagingResolver{},
		service.MemoryOptions{ColorTimeout: cfg.ColorTimeout, SkipSync: cfg.SkipSync}, log.Named("memories"))
	a.trips = service.NewTripService(a.tripRepo, a.memRepo, log.Named("trips"))

	if cfg.TokenKey != "" {
		a.userID = auth.CurrentUser(a.sessions, cfg.Token, auth.TokenPath(), log)
	}
	a.binder = cache.NewBinder(a.memories, a.trips, a.userID, log.Named("cache"))
	return a, nil
}

// mirror connects to the remote mirror on first use.
func (a *app) mirror(ctx context.Context) (*postgres.Mirror, error) {
	if a.cfg.RemoteDSN == "" {
		return nil, errNoRemote
	}
	if a.remote == nil {
		db, err := postgres.New(ctx, a.cfg.RemoteDSN)
		if err != nil {
			return nil, err
		}
		a.remote = db
	}
	return postgres.NewMirror(a.remote, a.cfg.RemoteBaseURL), nil
}

func (a *app) uploader(ctx context.Context) (*uploader.Uploader, error) {
	m, err := a.mirror(ctx)
	if err != nil {
		return nil, err
	}
	return uploader.New(a.queue, a.memRepo, m, uploader.Options{
		BatchSize:   a.cfg.SyncBatch,
		MaxAttempts: a.cfg.MaxAttempts,
	}, a.log.Named("uploader")), nil
}

func (a *app) Close() {
	if a.remote != nil {
		a.remote.Close()
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", zap.Error(err))
	}
	_ = a.log.Sync()
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(opts *rootOptions, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(opts.cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
