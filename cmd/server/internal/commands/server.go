package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/authn"
	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"connectrpc.com/otelconnect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/auth"
	"github.com/wolfeidau/bulkadmin/internal/bulk"
	"github.com/wolfeidau/bulkadmin/internal/directory"
	httpmiddleware "github.com/wolfeidau/bulkadmin/internal/http"
	"github.com/wolfeidau/bulkadmin/internal/logger"
	"github.com/wolfeidau/bulkadmin/internal/provider"
	"github.com/wolfeidau/bulkadmin/internal/server"
	"github.com/wolfeidau/bulkadmin/internal/ssmkeys"
	"github.com/wolfeidau/bulkadmin/internal/store"
	memorystore "github.com/wolfeidau/bulkadmin/internal/store/memory"
	postgresstore "github.com/wolfeidau/bulkadmin/internal/store/postgres"
	"github.com/wolfeidau/bulkadmin/internal/telemetry"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"BULKADMIN_LISTEN"`
	Cert   string `help:"path to TLS cert file, cleartext HTTP/2 is served when unset" default:"" env:"BULKADMIN_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"BULKADMIN_TLS_KEY"`

	HTTP HTTPFlags `embed:"" prefix:"http-"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"BULKADMIN_CORS_ORIGINS"`
	TrustProxy  bool     `help:"take client addresses from X-Forwarded-For when running behind a load balancer" default:"false" env:"BULKADMIN_TRUST_PROXY"`

	// Authentication
	NoAuth          bool   `help:"trust X-Org-ID, X-User-ID and X-Roles headers instead of bearer tokens (development only)" default:"false" env:"BULKADMIN_NO_AUTH"`
	JWTPublicKey    string `help:"path to the PEM encoded ECDSA public key verifying bearer tokens" default:"" env:"BULKADMIN_JWT_PUBLIC_KEY"`
	JWTPublicKeySSM string `help:"SSM parameter holding the JWT public key, overrides --jwt-public-key" default:"" env:"BULKADMIN_JWT_PUBLIC_KEY_SSM"`

	// Observability
	Tracing         bool          `help:"export traces over OTLP" default:"false" env:"BULKADMIN_TRACING"`
	TraceRatio      float64       `help:"trace sampling ratio" default:"1" env:"BULKADMIN_TRACE_RATIO"`
	OTLPMetrics     bool          `help:"export metrics over OTLP instead of serving /metrics" default:"false" env:"BULKADMIN_OTLP_METRICS"`
	ShutdownTimeout time.Duration `help:"time allowed for in-flight operations to finish on shutdown" default:"2m" env:"BULKADMIN_SHUTDOWN_TIMEOUT"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"BULKADMIN_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Provider      ProviderFlags      `embed:"" prefix:"provider-"`
	Engine        EngineFlags        `embed:"" prefix:"engine-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	QueryTimeout    time.Duration `help:"timeout applied to each query" default:"10s"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"BULKADMIN_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// ProviderFlags configures the external directory provider. Sync is disabled when no URL is set.
type ProviderFlags struct {
	URL               string        `help:"external directory provider base URL, empty disables external sync" env:"BULKADMIN_PROVIDER_URL"`
	TokenURL          string        `help:"OAuth2 token URL for client credentials" env:"BULKADMIN_PROVIDER_TOKEN_URL"`
	ClientID          string        `help:"OAuth2 client ID" env:"BULKADMIN_PROVIDER_CLIENT_ID"`
	ClientSecret      string        `help:"OAuth2 client secret" env:"BULKADMIN_PROVIDER_CLIENT_SECRET"`
	Token             string        `help:"static bearer token, replaces client credentials" env:"BULKADMIN_PROVIDER_TOKEN"`
	RequestsPerSecond float64       `help:"provider request rate limit" default:"10" env:"BULKADMIN_PROVIDER_RPS"`
	MaxAttempts       int           `help:"attempts for requests that time out" default:"3" env:"BULKADMIN_PROVIDER_MAX_ATTEMPTS"`
	AttemptTimeout    time.Duration `help:"deadline of a single provider request" default:"10s" env:"BULKADMIN_PROVIDER_ATTEMPT_TIMEOUT"`
}

func (p *ProviderFlags) config() provider.Config {
	return provider.Config{
		BaseURL:           p.URL,
		TokenURL:          p.TokenURL,
		ClientID:          p.ClientID,
		ClientSecret:      p.ClientSecret,
		Token:             p.Token,
		RequestsPerSecond: p.RequestsPerSecond,
		MaxAttempts:       p.MaxAttempts,
		AttemptTimeout:    p.AttemptTimeout,
	}
}

// EngineFlags configures the bulk engine.
type EngineFlags struct {
	Concurrency      int           `help:"items processed concurrently within one operation" default:"5" env:"BULKADMIN_ENGINE_CONCURRENCY"`
	ExternalTimeout  time.Duration `help:"external sync budget per item, retries included" default:"60s" env:"BULKADMIN_ENGINE_EXTERNAL_TIMEOUT"`
	SubscriberBuffer int           `help:"buffered progress events per subscriber" default:"16" env:"BULKADMIN_ENGINE_SUBSCRIBER_BUFFER"`
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zerolog.DefaultContextLogger = &log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Prometheus is the default metrics sink, OTLP replaces it when requested
	var metricsHandler http.Handler
	if !c.OTLPMetrics {
		handler, shutdown, err := telemetry.InitMetrics()
		if err != nil {
			return err
		}
		defer shutdownWithTimeout(log, "metrics", shutdown)
		metricsHandler = handler
	}

	interceptors := []connect.Interceptor{}
	if c.Tracing || c.OTLPMetrics {
		log.Info().Bool("traces", c.Tracing).Bool("metrics", c.OTLPMetrics).Msg("OTLP export is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Options{
			ServiceName: "bulkadmin-server",
			Version:     globals.Version,
			Traces:      c.Tracing,
			Metrics:     c.OTLPMetrics,
			SampleRatio: c.TraceRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without export")
		} else {
			defer shutdownWithTimeout(log, "telemetry", shutdown)
		}

		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			return fmt.Errorf("failed to create OTEL interceptor: %w", err)
		}
		interceptors = append(interceptors, otelInterceptor)
	}

	authFunc, err := c.authFunc(ctx, log)
	if err != nil {
		return err
	}

	var (
		operationStore store.OperationStore
		templateStore  store.TemplateStore
		local          directory.Directory
		notifier       bulk.Notifier
		pool           *pgxpool.Pool
	)

	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return err
		}

		pool, err = postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
			AutoMigrate:     c.PostgresStore.AutoMigrate,
		})
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()
		go postgresstore.MonitorPool(ctx, pool, time.Minute)

		storeCfg := postgresstore.StoreConfig{QueryTimeout: c.PostgresStore.QueryTimeout}
		operationStore = postgresstore.NewOperationStore(pool, storeCfg)
		templateStore = postgresstore.NewTemplateStore(pool, storeCfg)
		local = postgresstore.NewDirectoryStore(pool, storeCfg)
		notifier = postgresstore.NewNotifier(pool, storeCfg)

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		operationStore = memorystore.NewOperationStore()
		templateStore = memorystore.NewTemplateStore()
		local = directory.NewMemoryDirectory()
		log.Info().Msg("Using in-memory stores")
	}

	registry, err := c.registry(ctx, log, local)
	if err != nil {
		return err
	}

	hub := bulk.NewHub(operationStore, c.Engine.SubscriberBuffer)
	if pool != nil {
		listener := postgresstore.NewListener(pool, operationStore, hub)
		go func() {
			if err := listener.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Progress listener stopped")
			}
		}()
	}

	engine, err := bulk.NewEngine(bulk.Config{
		Concurrency:      c.Engine.Concurrency,
		ExternalTimeout:  c.Engine.ExternalTimeout,
		SubscriberBuffer: c.Engine.SubscriberBuffer,
	}, bulk.Dependencies{
		Store:     operationStore,
		Registry:  registry,
		Templates: templateStore,
		Hub:       hub,
		Notifier:  notifier,
	})
	if err != nil {
		return err
	}

	srv := server.NewServer(engine, bulk.NewTemplates(templateStore, registry), server.WithTrustProxy(c.TrustProxy))

	mux := http.NewServeMux()
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.Handle("/", withCORS(c.CORSOrigins, srv.Handler(log, authFunc, interceptors...)))

	httpServer := configureHTTPServer(c.Listen, mux, c.HTTP)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.listenAndServe(log, httpServer)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", c.ShutdownTimeout).Msg("Shutting down, draining in-flight operations")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()

	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("In-flight operations did not finish before shutdown timeout")
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}

	return nil
}

func (c *ServeCmd) listenAndServe(log zerolog.Logger, httpServer *http.Server) error {
	if c.Cert == "" || c.Key == "" {
		log.Info().Str("addr", c.Listen).Bool("auth", !c.NoAuth).Msg("Starting HTTP server (h2c)")
		httpServer.Handler = h2c.NewHandler(httpServer.Handler, &http2.Server{})
		return httpServer.ListenAndServe()
	}

	if _, err := os.Stat(c.Cert); err != nil {
		return fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, err)
	}
	if _, err := os.Stat(c.Key); err != nil {
		return fmt.Errorf("TLS key not found at %s: %w", c.Key, err)
	}

	log.Info().Str("addr", c.Listen).Bool("auth", !c.NoAuth).Msg("Starting HTTPS server")
	return httpServer.ListenAndServeTLS(c.Cert, c.Key)
}

func (c *ServeCmd) authFunc(ctx context.Context, log zerolog.Logger) (authn.AuthFunc, error) {
	if c.NoAuth {
		log.Warn().Msg("Authentication is disabled (--no-auth). This should only be used in development!")
		return auth.NewHeaderAuthFunc(), nil
	}

	src := ssmkeys.Source{Path: c.JWTPublicKey, Parameter: c.JWTPublicKeySSM}
	if !src.Configured() {
		return nil, errors.New("JWT public key is required (--jwt-public-key or --jwt-public-key-ssm) unless --no-auth is set")
	}

	pem, err := ssmkeys.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT public key: %w", err)
	}

	log.Info().Str("source", src.String()).Msg("Verifying bearer tokens")
	return auth.NewJWTAuthFunc(string(pem))
}

// registry wires the local directory and, when configured, the external provider.
func (c *ServeCmd) registry(ctx context.Context, log zerolog.Logger, local directory.Directory) (*bulk.Registry, error) {
	if c.Provider.URL == "" {
		log.Info().Msg("External provider is not configured, external sync is unavailable")
		return bulk.NewDirectoryRegistry(local, nil)
	}

	client, err := provider.New(ctx, c.Provider.config())
	if err != nil {
		return nil, err
	}

	log.Info().Str("url", c.Provider.URL).Msg("External provider sync is available")
	return bulk.NewDirectoryRegistry(local, client)
}

func shutdownWithTimeout(log zerolog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error().Err(err).Str("component", name).Msg("Failed to shutdown")
	}
}

// withCORS adds CORS support to a Connect HTTP handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: connectcors.AllowedMethods(),
		AllowedHeaders: append(connectcors.AllowedHeaders(),
			"Authorization", httpmiddleware.HeaderRequestID, auth.HeaderOrgID, auth.HeaderUserID, auth.HeaderRoles),
		ExposedHeaders: append(connectcors.ExposedHeaders(), httpmiddleware.HeaderRequestID, bulkv1.RowErrorHeader),
	})
	return middleware.Handler(h)
}
