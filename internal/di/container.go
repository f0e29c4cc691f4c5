package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/events"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	firestorerepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/sqlite"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	passwordHashCost   = 10
	healthCheckTimeout = 2 * time.Second
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart   services.CartService
	Orders services.OrderService
	Users  services.UserService
	System services.SystemService
}

// Container wires repositories, services, and shared infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Logger        *zap.Logger
	Repositories  repositories.Registry
	Services      Services
	Tokens        *auth.TokenIssuer
	Authenticator *auth.Authenticator
	Idempotency   idempotency.Store

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	registry repositories.Registry
	logger   *zap.Logger
	build    services.BuildInfo
	redis    redis.UniversalClient
}

// WithRegistry supplies a prebuilt repository registry instead of dialling one from config.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) {
		o.build = info
	}
}

// WithRedisClient supplies the Redis client used for idempotency records and readiness checks.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

// NewContainer constructs the runtime dependencies. Firestore backs the repositories when a project
// is configured, SQLite otherwise.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (container *Container, err error) {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	reg := o.registry
	if reg == nil {
		reg, err = openRegistry(cfg)
		if err != nil {
			return nil, err
		}
	}
	c.Repositories = reg
	c.closers = append(c.closers, reg.Close)

	redisClient := o.redis
	if redisClient == nil && strings.TrimSpace(cfg.Redis.Addr) != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		redisClient = client
	}
	if redisClient != nil {
		c.Idempotency = idempotency.NewRedisStore(redisClient, cfg.Redis.Prefix+"idempotency:")
	} else {
		c.Idempotency = idempotency.NewMemoryStore()
	}

	var (
		publisher      services.CartEventPublisher
		orderPublisher services.OrderEventPublisher
	)
	if cfg.Events.Enabled() {
		client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		pub, err := events.NewPubSubCartPublisher(client.Topic(cfg.Events.CartTopic))
		if err != nil {
			return nil, fmt.Errorf("build cart publisher: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { pub.Stop(); return nil })
		publisher = pub

		orderPub, err := events.NewPubSubOrderPublisher(client.Topic(cfg.Events.OrderTopic))
		if err != nil {
			return nil, fmt.Errorf("build order publisher: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { orderPub.Stop(); return nil })
		orderPublisher = orderPub
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("build token issuer: %w", err)
	}
	c.Tokens = tokens
	chain := auth.Chain{tokens}
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		firebase, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
		chain = append(chain, firebase)
	}
	c.Authenticator = auth.NewAuthenticator(chain)

	eventLogger := observability.EventLogger(logger)

	users, err := services.NewUserService(services.UserServiceDeps{
		Users:     reg.Users(),
		Tokens:    tokens,
		Passwords: auth.NewPasswordHasher(passwordHashCost),
		Clock:     time.Now,
		Logger:    eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build user service: %w", err)
	}
	c.Services.Users = users

	carts, err := services.NewCartService(services.CartServiceDeps{
		Repository: reg.Carts(),
		Events:     publisher,
		Clock:      time.Now,
		Logger:     eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build cart service: %w", err)
	}
	c.Services.Cart = carts

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
		Events: orderPublisher,
		Clock:  time.Now,
		Logger: eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	c.Services.Orders = orders

	checks := []repositories.DependencyCheck{{Name: "database", Check: reg.Ping}}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(healthCheckTimeout))
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	build := o.build
	if build.Environment == "" {
		build.Environment = cfg.Environment
	}
	if build.StartedAt.IsZero() {
		build.StartedAt = time.Now().UTC()
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: health,
		Clock:            time.Now,
		Build:            build,
	})
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}
	c.Services.System = system

	return c, nil
}

func openRegistry(cfg config.Config) (repositories.Registry, error) {
	if cfg.Firestore.Enabled() {
		reg, err := firestorerepo.NewRegistry(pfirestore.NewProvider(cfg.Firestore))
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, nil
	}
	reg, err := sqlite.NewRegistry(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite registry: %w", err)
	}
	return reg, nil
}

// Close releases resources in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
