package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/spf13/viper"
	"github.com/uptrace/bun"

	auth "github.com/photolog/photolog-auth"
	"github.com/photolog/photolog-auth/activitymap"
	"github.com/photolog/photolog-auth/backend"
	"github.com/photolog/photolog-auth/config"
	"github.com/photolog/photolog-auth/provider/firebase"
	"github.com/photolog/photolog-auth/repository"
)

// resolveTimeout bounds how long a command waits for the first auth state.
const resolveTimeout = 15 * time.Second

// app is the wired client: provider, adapter, session store and backend.
type app struct {
	cfg      *config.Config
	logger   *slogLogger
	db       *bun.DB
	provider *firebase.Provider
	adapter  *auth.IdentityAdapter
	store    *auth.SessionStore
	guard    *auth.RouteGuard
	backend  *backend.Client
	activity auth.ActivitySink
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		if missing := (config.FirebaseConfig{
			APIKey:     viper.GetString("firebase.api_key"),
			AuthDomain: viper.GetString("firebase.auth_domain"),
			ProjectID:  viper.GetString("firebase.project_id"),
		}).Missing(); len(missing) > 0 {
			return nil, fmt.Errorf("incomplete configuration, missing %s: %w", strings.Join(missing, ", "), err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: newSlogLogger(os.Stderr, cfg.Log.Level),
	}
	a.activity = activitymap.NewLogSink(a.logger.With("component", "activity"))

	var store auth.CredentialStore
	if cfg.GetPersistence() == auth.PersistenceLocal {
		creds, db, err := openCredentialStore(ctx, cfg.Session.DBPath)
		if err != nil {
			return nil, err
		}
		a.db = db
		store = creds
	}

	a.provider = firebase.New(firebase.Config{
		APIKey:     cfg.Firebase.APIKey,
		AuthDomain: cfg.Firebase.AuthDomain,
		ProjectID:  cfg.Firebase.ProjectID,
		Store:      store,
		Logger:     a.logger.With("component", "firebase"),
	})

	a.adapter = auth.NewIdentityAdapter(a.provider).
		WithLogger(a.logger.With("component", "identity")).
		WithPersistence(cfg.GetPersistence()).
		WithActivitySink(a.activity)

	a.store = auth.NewSessionStore(auth.WithSessionLogger(a.logger.With("component", "session")))
	a.store.Bind(a.adapter)
	a.guard = auth.NewRouteGuard(a.store, auth.WithGuardLogger(a.logger.With("component", "guard")))

	a.backend = backend.New(backend.Config{
		BaseURL:     cfg.Backend.BaseURL,
		Timeout:     cfg.Backend.Timeout,
		Credentials: a.adapter,
		Logger:      a.logger.With("component", "backend"),
	})

	if err := a.adapter.Init(ctx); err != nil {
		a.logger.Warn("session restore: %v", err)
	}

	return a, nil
}

func openCredentialStore(ctx context.Context, path string) (*repository.CredentialRepository, *bun.DB, error) {
	path = os.ExpandEnv(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	db, err := repository.OpenSQLite("file:" + path + "?cache=shared")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session database: %w", err)
	}

	repo := repository.NewCredentialRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate session database: %w", err)
	}
	return repo, db, nil
}

// waitResolved blocks until the session store has its first auth state.
func (a *app) waitResolved(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	select {
	case <-a.store.Resolved():
		return nil
	case <-ctx.Done():
		return auth.NewError(auth.ErrProviderUnavailable, ctx.Err(), map[string]any{"reason": "session did not resolve"})
	}
}

// waitFor blocks until the store reports a state accepted by match.
func (a *app) waitFor(ctx context.Context, match func(auth.SessionSnapshot) bool) {
	if match(a.store.Snapshot()) {
		return
	}

	done := make(chan struct{})
	var closed bool
	cancel := a.store.Watch(func(s auth.SessionSnapshot) {
		if !closed && match(s) {
			closed = true
			close(done)
		}
	})
	defer cancel()

	if match(a.store.Snapshot()) {
		return
	}

	ctx, stop := context.WithTimeout(ctx, resolveTimeout)
	defer stop()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// requireRole evaluates the guard for path and turns a redirect into an error.
func (a *app) requireRole(ctx context.Context, path string) (*auth.User, error) {
	if err := a.waitResolved(ctx); err != nil {
		return nil, err
	}

	decision := a.guard.Evaluate(path)
	if decision.Redirect() {
		return nil, auth.NewError(auth.ErrUnauthorized, nil, map[string]any{
			"path":     path,
			"redirect": decision.Target,
		})
	}
	return a.store.CurrentUser(), nil
}

func (a *app) close() {
	_ = a.store.Close()
	if a.provider != nil {
		_ = a.provider.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// RenderError formats err for the terminal, including rich error details.
func RenderError(err error) string {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		return "Error: " + err.Error()
	}

	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(auth.UserMessage(richErr))
	for field, msg := range auth.FieldErrors(richErr) {
		fmt.Fprintf(&b, "\n  %s: %s", field, msg)
	}
	if jsonOutput && len(richErr.Metadata) > 0 {
		b.WriteString("\n")
		b.WriteString(print.MaybePrettyJSON(richErr.Metadata))
	}
	return b.String()
}
