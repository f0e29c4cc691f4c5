package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultEnvironment       = "local"
	defaultSQLitePath        = "storefront.db"
	defaultTokenTTL          = 30 * 24 * time.Hour
	defaultTokenIssuer       = "storefront"
	minTokenSecretLength     = 16
	defaultRedisPrefix       = "storefront:"
	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultCartTopic         = "storefront-cart-events"
	defaultOrderTopic        = "storefront-order-events"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Firestore   FirestoreConfig
	SQLite      SQLiteConfig
	Auth        AuthConfig
	Firebase    FirebaseConfig
	Redis       RedisConfig
	Events      EventsConfig
	Secrets     SecretsConfig
	Idempotency IdempotencyConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirestoreConfig stores database parameters. An empty ProjectID selects the SQLite backend.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// Enabled reports whether Firestore should back the repositories.
func (c FirestoreConfig) Enabled() bool {
	return strings.TrimSpace(c.ProjectID) != ""
}

type SQLiteConfig struct {
	Path string
}

// AuthConfig controls storefront token issuance.
type AuthConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	Issuer      string
}

// FirebaseConfig enables Firebase ID tokens as an alternative bearer credential.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// RedisConfig points at an optional Redis used for idempotency records.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// EventsConfig configures Pub/Sub publication of cart and order events.
type EventsConfig struct {
	ProjectID  string
	CartTopic  string
	OrderTopic string
}

// Enabled reports whether events should be published.
func (c EventsConfig) Enabled() bool {
	return strings.TrimSpace(c.ProjectID) != ""
}

type SecretsConfig struct {
	ProjectID string
}

type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretResolver resolves secret://name references, typically against Secret Manager.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists configuration fields or keys that are missing or malformed.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field list.
func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// SecretError describes a secret reference that could not be resolved.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secrets that resolved to nothing. Only hashed names are
// exposed so the error can be logged.
type MissingSecretsError struct {
	redacted []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.redacted) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.redacted, ", "))
}

// RedactedNames returns the sorted hashed identifiers of the missing secrets.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	return slices.Clone(e.redacted)
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func defaultOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile overrides the dotenv path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap layers explicit values over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret-bearing fields, named like "Auth.TokenSecret", as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns the merged key/value view Load reads from, so callers can configure
// dependencies such as the secret fetcher before loading.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := newSource(defaultOptions(opts))
	if err != nil {
		return nil, err
	}
	return src.flatten(), nil
}

// Load builds the configuration from defaults, the dotenv file, the environment and explicit
// overrides, then resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultOptions(opts)
	src, err := newSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(src.str("STOREFRONT_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            src.str("STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:     src.duration("STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    src.duration("STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     src.duration("STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: src.duration("STOREFRONT_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.str("STOREFRONT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: src.str("STOREFRONT_FIRESTORE_EMULATOR_HOST", ""),
		},
		SQLite: SQLiteConfig{Path: src.str("STOREFRONT_SQLITE_PATH", defaultSQLitePath)},
		Auth: AuthConfig{
			TokenSecret: src.str("STOREFRONT_AUTH_TOKEN_SECRET", ""),
			TokenTTL:    src.duration("STOREFRONT_AUTH_TOKEN_TTL", defaultTokenTTL),
			Issuer:      src.str("STOREFRONT_AUTH_ISSUER", defaultTokenIssuer),
		},
		Firebase: FirebaseConfig{
			ProjectID:       src.str("STOREFRONT_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: src.str("STOREFRONT_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Redis: RedisConfig{
			Addr:     src.str("STOREFRONT_REDIS_ADDR", ""),
			Password: src.str("STOREFRONT_REDIS_PASSWORD", ""),
			DB:       src.integer("STOREFRONT_REDIS_DB", 0),
			Prefix:   src.str("STOREFRONT_REDIS_PREFIX", defaultRedisPrefix),
		},
		Events: EventsConfig{
			ProjectID:  src.str("STOREFRONT_PUBSUB_PROJECT_ID", ""),
			CartTopic:  src.str("STOREFRONT_PUBSUB_CART_TOPIC", defaultCartTopic),
			OrderTopic: src.str("STOREFRONT_PUBSUB_ORDER_TOPIC", defaultOrderTopic),
		},
		Secrets: SecretsConfig{ProjectID: src.str("STOREFRONT_SECRETS_PROJECT_ID", "")},
		Idempotency: IdempotencyConfig{
			Header: src.str("STOREFRONT_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    src.duration("STOREFRONT_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	// Pub/Sub and Secret Manager default to the Firestore project.
	if cfg.Events.ProjectID == "" && src.boolean("STOREFRONT_PUBSUB_ENABLED", false) {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	resolved, err := resolveSecrets(ctx, options.secret, map[string]*string{
		"Auth.TokenSecret": &cfg.Auth.TokenSecret,
		"Redis.Password":   &cfg.Redis.Password,
	})
	if err != nil {
		return Config{}, err
	}

	if invalid := append(src.invalid, cfg.validate()...); len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}
	if missing := missingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func (cfg Config) validate() []string {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}
	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Server.ShutdownTimeout > 0, "Server.ShutdownTimeout")
	check(cfg.Firestore.Enabled() || cfg.SQLite.Path != "", "SQLite.Path")
	check(len(strings.TrimSpace(cfg.Auth.TokenSecret)) >= minTokenSecretLength, "Auth.TokenSecret")
	check(cfg.Auth.TokenTTL > 0, "Auth.TokenTTL")
	check(!cfg.Events.Enabled() || cfg.Events.CartTopic != "", "Events.CartTopic")
	check(!cfg.Events.Enabled() || cfg.Events.OrderTopic != "", "Events.OrderTopic")
	check(cfg.Idempotency.Header != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	return invalid
}

// resolveSecrets replaces secret references in place and returns the trimmed resolved value of
// every field by name.
func resolveSecrets(ctx context.Context, resolver SecretResolver, fields map[string]*string) (map[string]string, error) {
	resolved := make(map[string]string, len(fields))
	for name, field := range fields {
		ref, ok := secretReference(*field)
		if ok {
			if resolver == nil {
				return nil, &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
			}
			value, err := resolver.ResolveSecret(ctx, ref)
			if err != nil {
				return nil, &SecretError{Ref: ref, Err: err}
			}
			*field = value
		}
		resolved[name] = strings.TrimSpace(*field)
	}
	return resolved, nil
}

// secretReference normalises sm:// to secret:// and reports whether value is a reference at all.
func secretReference(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest, true
	}
	return value, strings.HasPrefix(value, "secret://")
}

func missingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var redacted []string
	seen := make(map[string]bool)
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if resolved[name] == "" {
			redacted = append(redacted, redactSecretName(name))
		}
	}
	if len(redacted) == 0 {
		return nil
	}
	slices.Sort(redacted)
	return &MissingSecretsError{redacted: redacted}
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
