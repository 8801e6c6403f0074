package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/wasmfetch/component"
	"github.com/kbukum/wasmfetch/config"
	"github.com/kbukum/wasmfetch/devserver"
	"github.com/kbukum/wasmfetch/logger"
	"github.com/kbukum/wasmfetch/observability"
	"github.com/kbukum/wasmfetch/version"
)

// Config is the devserver configuration file layout.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Server               devserver.Config     `yaml:"server" mapstructure:"server"`
	Observability        observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults applies defaults to every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "devserver"
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate validates every section.
func (c *Config) Validate() error {
	return errors.Join(
		c.ServiceConfig.Validate(),
		c.Server.Validate(),
		c.Observability.Validate(),
	)
}

type serveFlags struct {
	configFile string
	envFile    string
	addr       string
	static     string
	tlsCert    string
	tlsKey     string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fixture server",
		Example: `  devserver serve
  devserver serve --addr :9090 --static ./web
  devserver serve --config ./devserver.yml
  devserver serve --tls-cert cert.pem --tls-key key.pem`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "config file (default: ./cmd/devserver/config.yml or ./config.yml)")
	cmd.Flags().StringVar(&f.envFile, "env-file", "", ".env file to load")
	cmd.Flags().StringVarP(&f.addr, "addr", "a", "", "listen address, overrides server.host and server.port")
	cmd.Flags().StringVarP(&f.static, "static", "s", "", "directory served for unmatched GET requests")
	cmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "PEM certificate, enables HTTPS")
	cmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "PEM private key for --tls-cert")
	return cmd
}

func loadConfig(f serveFlags) (*Config, error) {
	var cfg Config
	opts := []config.LoaderOption{config.WithEnvPrefix("DEVSERVER")}
	if f.configFile != "" {
		opts = append(opts, config.WithConfigFile(f.configFile))
	}
	if f.envFile != "" {
		opts = append(opts, config.WithEnvFile(f.envFile))
	}
	if err := config.LoadConfig("devserver", &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if f.addr != "" {
		host, port, err := net.SplitHostPort(f.addr)
		if err != nil {
			return nil, fmt.Errorf("--addr: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("--addr: invalid port %q", port)
		}
		cfg.Server.Host, cfg.Server.Port = host, p
	}
	if f.static != "" {
		cfg.Server.StaticDir = f.static
	}
	if f.tlsCert != "" || f.tlsKey != "" {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &devserver.TLSConfig{}
		}
		cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile = f.tlsCert, f.tlsKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func serve(ctx context.Context, cfg *Config) error {
	log := cfg.Logger()
	build := version.Get()

	shutdownTelemetry, err := observability.Setup(ctx, cfg.Observability, observability.Service{
		Name:        cfg.Name,
		Version:     build.Short(),
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn("telemetry shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	registry := component.NewRegistry()
	opts := []devserver.Option{
		devserver.WithLogger(log.WithComponent("devserver")),
		devserver.WithServiceName(cfg.Name),
		devserver.WithHealthChecker(registry.HealthAll),
	}
	if cfg.Observability.Enabled {
		metrics, err := observability.NewServerMetrics(observability.Meter("devserver"))
		if err != nil {
			return err
		}
		opts = append(opts, devserver.WithMetrics(metrics))
	}

	srv, err := devserver.New(cfg.Server, opts...)
	if err != nil {
		return err
	}
	if err := registry.Register(devserver.NewComponent(srv)); err != nil {
		return err
	}

	log.Info("Starting devserver", logger.Fields("version", build.Short(), "environment", cfg.Environment))
	if err := registry.StartAll(ctx); err != nil {
		return err
	}
	for _, r := range registry.Routes() {
		log.Debug("route", logger.Fields(logger.FieldMethod, r.Method, "path", r.Path, "handler", r.Handler))
	}
	log.Info("devserver ready", logger.Fields("addr", srv.Addr()))

	<-ctx.Done()
	log.Info("Shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
	defer cancel()
	return registry.StopAll(stopCtx)
}
