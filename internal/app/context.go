// Package app wires a CLI invocation: workspace, config, local database,
// session, and the remote API client.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"tasklink/internal/api"
	"tasklink/internal/config"
	"tasklink/internal/db"
	"tasklink/internal/migrate"
	"tasklink/internal/session"
)

// App bundles the per-invocation collaborators. Open builds one; Close
// releases the database handle.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Sessions  session.Store
	Client    *api.Client
	Log       *log.Logger
}

// Options tune how an App is opened.
type Options struct {
	// Workspace is the directory holding tasklink.yml and .tasklink/.
	Workspace string
	// Project overrides the configured project id when non-zero.
	Project int64
	// BaseURL overrides the configured API base URL when non-empty.
	BaseURL string
	Log     *log.Logger
}

// Open resolves config, migrates the workspace database, and builds an API
// client carrying the stored session token if one is live.
func Open(opts Options) (*App, error) {
	logger := opts.Log
	if logger == nil {
		logger = log.StandardLogger()
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}
	cfg, err := config.Load(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if opts.Project != 0 {
		cfg.Project.ID = opts.Project
	}
	if opts.BaseURL != "" {
		cfg.API.BaseURL = opts.BaseURL
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	store := &session.DBStore{DB: conn}
	client := api.New(cfg.API.BaseURL)
	client.Timeout = cfg.APITimeout()
	if sess, err := store.Get(); err == nil {
		if sess.LoggedIn(time.Now()) {
			client.Token = sess.Token
		} else {
			logger.WithField("email", sess.Email).Debug("stored session expired")
		}
	} else if !errors.Is(err, session.ErrNoSession) {
		conn.Close()
		return nil, err
	}
	return &App{
		Workspace: opts.Workspace,
		Config:    cfg,
		DB:        conn,
		Sessions:  store,
		Client:    client,
		Log:       logger,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// ActiveProject returns the project scope for board and task commands. Zero
// means unscoped.
func (a *App) ActiveProject() int64 {
	return a.Config.Project.ID
}

// SessionProvider exposes the stored session the way flows consume it.
func (a *App) SessionProvider() session.Provider {
	return session.Provider{Store: a.Sessions}
}

// ErrNotLoggedIn asks the user to authenticate first.
var ErrNotLoggedIn = errors.New("not logged in; run `tl login` first")

// RequireSession returns the live session or ErrNotLoggedIn.
func (a *App) RequireSession() (session.Session, error) {
	sess, err := a.Sessions.Get()
	if errors.Is(err, session.ErrNoSession) {
		return session.Session{}, ErrNotLoggedIn
	}
	if err != nil {
		return session.Session{}, err
	}
	if !sess.LoggedIn(time.Now()) {
		return session.Session{}, ErrNotLoggedIn
	}
	return sess, nil
}
