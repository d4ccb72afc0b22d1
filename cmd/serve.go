package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/compresr/messages-gateway/internal/config"
	"github.com/compresr/messages-gateway/internal/credentials"
	"github.com/compresr/messages-gateway/internal/events"
	"github.com/compresr/messages-gateway/internal/gateway"
	"github.com/compresr/messages-gateway/internal/monitoring"
)

const defaultEnvFile = ".env"

var serveFlags struct {
	configPath string
	envFile    string
	addr       string
	logLevel   string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway HTTP server.

Configuration is read from --config when given; otherwise defaults apply and
keys come from ANTHROPIC_API_KEYS. Values in the config may reference
environment variables as ${VAR} or ${VAR:-default}.

Examples:
  gateway serve
  gateway serve --config gateway.yaml
  gateway serve --addr :9090 --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.configPath, "config", "c", "", "config file path")
	serveCmd.Flags().StringVar(&serveFlags.envFile, "env-file", defaultEnvFile, "dotenv file loaded before the config")
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := loadEnvFile(serveFlags.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	cfg, err := config.Load(serveFlags.configPath)
	if err != nil {
		return err
	}
	if serveFlags.addr != "" {
		cfg.Server.Addr = serveFlags.addr
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}

	logs, err := monitoring.SetupLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logs.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

// loadEnvFile applies a dotenv file without overriding variables already
// set. A missing file is only an error when it was asked for explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

// app owns every long-lived component of a running gateway.
type app struct {
	cfg     *config.Config
	gw      *gateway.Gateway
	emitter *events.Emitter
	metrics *monitoring.Metrics
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pool, err := credentials.NewPool(poolEntries(cfg.Anthropic.Keys))
	if err != nil {
		return nil, err
	}
	if pool.Size() == 0 {
		log.Warn().Str("env", config.KeysEnvVar).Msg("no API keys configured, message requests will fail")
	}

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics()
	}

	sinks, hub, err := events.BuildSinks(ctx, cfg.Events.Sinks)
	if err != nil {
		return nil, err
	}
	opts := events.Options{
		Type:           cfg.Events.Type,
		Source:         cfg.Events.Source,
		QueueSize:      cfg.Events.QueueSize,
		PublishTimeout: cfg.Events.PublishTimeout,
	}
	if metrics != nil {
		opts.Observer = metrics
	}
	emitter := events.NewEmitter(sinks, opts)

	deps := gateway.Deps{Pool: pool, Emitter: emitter, Metrics: metrics}
	if hub != nil {
		deps.UsageStream = hub
	}
	gw, err := gateway.New(cfg, deps)
	if err != nil {
		shutdownEmitter(emitter, cfg.Server.ShutdownTimeout)
		return nil, err
	}
	return &app{cfg: cfg, gw: gw, emitter: emitter, metrics: metrics}, nil
}

// run serves until ctx is done or the server fails, then drains in-flight
// requests and pending usage events.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.gw.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Dur("timeout", a.cfg.Server.ShutdownTimeout).Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		err := a.gw.Shutdown(sctx)
		if cerr := a.emitter.Close(sctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return err
	})
	return g.Wait()
}

func shutdownEmitter(e *events.Emitter, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("usage emitter did not drain")
	}
}

func poolEntries(keys []config.KeyConfig) []credentials.Entry {
	entries := make([]credentials.Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, credentials.Entry{Alias: k.Alias, Secret: k.Value})
	}
	return entries
}
