package serve

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sig-0/p2panel/cache"
	"github.com/sig-0/p2panel/cmd/env"
	"github.com/sig-0/p2panel/pricing"
	"github.com/sig-0/p2panel/provider/binance"
	"github.com/sig-0/p2panel/refresh"
	"github.com/sig-0/p2panel/relay"
	"github.com/sig-0/p2panel/server"
	"github.com/sig-0/p2panel/server/config"
	"github.com/sig-0/p2panel/storage"
)

// serveCfg wraps the serve configuration
type serveCfg struct {
	config *config.Config

	configPath string
	logFile    string
}

// NewServeCmd creates the serve subcommand
func NewServeCmd() *ffcli.Command {
	cfg := &serveCfg{
		config: config.DefaultConfig(),
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg.registerFlags(fs)

	cmd := &ffcli.Command{
		Name:       "serve",
		ShortUsage: "serve <subcommand> [flags]",
		LongHelp:   "Serves the conversion panel backend",
		FlagSet:    fs,
		Exec: func(_ context.Context, _ []string) error {
			return flag.ErrHelp
		},
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}

	cmd.Subcommands = []*ffcli.Command{
		newServeSQLCmd(cfg),
		newServeRedisCmd(cfg),
		newServeMemoryCmd(cfg),
	}

	return cmd
}

func (c *serveCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.config.ListenAddress,
		"listen",
		config.DefaultListenAddress,
		"the IP:PORT URL for the server",
	)

	fs.StringVar(
		&c.configPath,
		"config",
		"",
		"the path to the server TOML configuration, if any",
	)

	fs.StringVar(
		&c.logFile,
		"log-file",
		"",
		"the path to the rotating log file; stdout when empty",
	)
}

// loadConfig reads the TOML configuration (if any) and fills the
// missing sections with defaults
func (c *serveCfg) loadConfig() error {
	if c.configPath != "" {
		serverCfg, err := config.Read(c.configPath)
		if err != nil {
			return fmt.Errorf("unable to read server config, %w", err)
		}

		c.config = serverCfg
	}

	defaults := config.DefaultConfig()

	if c.config.ListenAddress == "" {
		c.config.ListenAddress = defaults.ListenAddress
	}

	if c.config.CORSConfig == nil {
		c.config.CORSConfig = defaults.CORSConfig
	}

	if c.config.Upstream == nil {
		c.config.Upstream = defaults.Upstream
	}

	if c.config.Pipeline == nil {
		c.config.Pipeline = defaults.Pipeline
	}

	return nil
}

// newLogger creates the service logger, rotating when a
// log file is configured
func (c *serveCfg) newLogger() *slog.Logger {
	var w io.Writer = os.Stdout

	if c.logFile != "" {
		w = &lumberjack.Logger{
			Filename:   c.logFile,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	return slog.New(slog.NewTextHandler(w, nil))
}

// buildServer wires the acquisition pipeline onto the given store
// and returns the ready server instance
func (c *serveCfg) buildServer(
	ctx context.Context,
	store storage.Storage,
	logger *slog.Logger,
) (*server.Server, error) {
	var (
		pipeline = c.config.Pipeline
		upstream = c.config.Upstream
	)

	// Upstream relay
	client := relay.NewClient(
		upstream.URL,
		time.Duration(upstream.TimeoutSeconds)*time.Second,
	)

	relayHandler := relay.NewHandler(
		client,
		relay.WithHandlerLogger(logger),
		relay.WithAllowedOrigins(c.config.CORSConfig.AllowedOrigins),
	)

	// Acquisition pipeline
	gate := binance.NewGate()

	fetcher := binance.NewFetcher(
		client,
		gate,
		binance.WithLogger(logger),
		binance.WithRows(pipeline.Rows),
	)

	aggregator := pricing.NewAggregator(
		pricing.WithMinMonthOrders(pipeline.MinMonthOrders),
		pricing.WithMinFinishRate(pipeline.MinFinishRate),
		pricing.WithSampleCap(pipeline.SampleCap),
	)

	priceCache := cache.New(
		time.Duration(pipeline.CacheTTLSeconds) * time.Second,
	)

	orchestrator := refresh.New(
		fetcher,
		aggregator,
		gate,
		priceCache,
		store,
		refresh.WithLogger(logger),
		refresh.WithMinInterval(
			time.Duration(pipeline.MinFetchIntervalSeconds)*time.Second,
		),
	)

	// Pick up a cooldown window that survived a restart
	if err := orchestrator.Restore(ctx); err != nil {
		logger.Warn(
			"unable to restore cooldown anchor",
			"err", err,
		)
	}

	return server.New(
		orchestrator,
		priceCache,
		store,
		relayHandler,
		server.WithLogger(logger),
		server.WithConfig(c.config),
	)
}
