package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/cartsync"
	"github.com/hanko-field/storefront/internal/client"
	"github.com/hanko-field/storefront/internal/platform/localstore"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/session"
)

const (
	defaultAPIURL   = "http://localhost:8080/api/v1"
	envAPIURL       = "STOREFRONT_API_URL"
	cartKeyPrefix   = "carts:"
	sessionPrefix   = "session:"
	shutdownTimeout = 15 * time.Second
)

// app holds the per-invocation wiring shared by every command.
type app struct {
	out io.Writer

	apiURL    string
	storePath string
	redisAddr string
	verbose   bool

	// openStore and httpClient are replaced in tests.
	openStore  func(ctx context.Context) (localstore.Store, func() error, error)
	httpClient *http.Client

	logger     *zap.Logger
	session    *session.Manager
	api        *client.Client
	engine     *cartsync.Engine
	closeStore func() error
	started    bool
}

func newApp(out io.Writer) *app {
	a := &app{out: out}
	a.openStore = a.defaultStore
	return a
}

func run(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.out)
	err := root.ExecuteContext(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(err, a.stop(stopCtx))
}

func (a *app) start(ctx context.Context) error {
	if a.started {
		return nil
	}
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger(observability.WithLevel(level), observability.WithOutputPaths("stderr"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.logger = logger.Named("cartctl")

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.closeStore = closeStore

	a.session, err = session.NewManager(localstore.Prefixed(store, sessionPrefix), session.WithLogger(a.logger))
	if err != nil {
		return err
	}

	opts := []client.Option{client.WithTokenSource(a.session)}
	if a.httpClient != nil {
		opts = append(opts, client.WithHTTPClient(a.httpClient))
	}
	a.api, err = client.New(a.resolvedAPIURL(), opts...)
	if err != nil {
		return err
	}

	local, err := cartsync.NewLocalCache(localstore.Prefixed(store, cartKeyPrefix), a.logger)
	if err != nil {
		return err
	}
	a.engine, err = cartsync.NewEngine(cartsync.EngineDeps{Remote: a.api, Local: local, Logger: a.logger})
	if err != nil {
		return err
	}

	// Remote writes for a departing user must land before the session drops its token.
	a.session.OnTransition(func(ctx context.Context, t cartsync.Transition) {
		a.engine.HandleTransition(ctx, t)
		if err := a.engine.Flush(ctx); err != nil {
			a.logger.Warn("cart flush after session change failed", zap.Error(err))
		}
	})

	identity, err := a.session.Restore(ctx)
	if err != nil {
		a.logger.Warn("session restore failed; continuing anonymously", zap.Error(err))
	}
	a.engine.Hydrate(ctx, identity)
	a.started = true
	return nil
}

func (a *app) stop(ctx context.Context) error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close(ctx))
		a.engine = nil
	}
	if a.closeStore != nil {
		errs = append(errs, a.closeStore())
		a.closeStore = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	a.started = false
	return errors.Join(errs...)
}

func (a *app) resolvedAPIURL() string {
	if url := strings.TrimSpace(a.apiURL); url != "" {
		return url
	}
	if url := strings.TrimSpace(os.Getenv(envAPIURL)); url != "" {
		return url
	}
	return defaultAPIURL
}

func (a *app) defaultStore(ctx context.Context) (localstore.Store, func() error, error) {
	if addr := strings.TrimSpace(a.redisAddr); addr != "" {
		store, err := localstore.DialRedis(ctx, localstore.RedisConfig{Addr: addr, Prefix: "cartctl:"})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	path := strings.TrimSpace(a.storePath)
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, nil, fmt.Errorf("locate config dir: %w", err)
		}
		dir = filepath.Join(dir, "storefront")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", dir, err)
		}
		path = filepath.Join(dir, "cartctl.db")
	}
	store, err := localstore.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cartctl",
		Short:         "Storefront cart and account client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.start(cmd.Context())
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.apiURL, "api", "", "storefront API base URL (default $"+envAPIURL+" or "+defaultAPIURL+")")
	flags.StringVar(&a.storePath, "store", "", "path of the local SQLite store")
	flags.StringVar(&a.redisAddr, "redis", "", "use the Redis server at this address as the local store")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newSignupCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newCartCmd(a),
		newCheckoutCmd(a),
		newOrdersCmd(a),
	)
	return root
}
