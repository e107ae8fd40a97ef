package serve

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/p2panel/cmd/env"
	"github.com/sig-0/p2panel/storage/redis"
)

type serveRedisCfg struct {
	rootCfg *serveCfg

	redisAddr     string
	redisPassword string
	redisDB       int
}

// newServeRedisCmd creates the serve redis command
func newServeRedisCmd(rootCfg *serveCfg) *ffcli.Command {
	cfg := &serveRedisCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("redis", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)
	cfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "redis",
		ShortUsage: "serve redis [flags]",
		LongHelp:   "Serves the conversion panel backend, using a Redis datastore",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *serveRedisCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.redisAddr,
		"redis-addr",
		"127.0.0.1:6379",
		"the Redis host:port address",
	)

	fs.StringVar(
		&c.redisPassword,
		"redis-password",
		"",
		"the Redis password, if any",
	)

	fs.IntVar(
		&c.redisDB,
		"redis-db",
		0,
		"the Redis database index",
	)
}

func (c *serveRedisCfg) exec(ctx context.Context, _ []string) error {
	// Read the server configuration, if any
	if err := c.rootCfg.loadConfig(); err != nil {
		return err
	}

	logger := c.rootCfg.newLogger()

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Warn("unable to load .env file")
	}

	// Create a Redis store
	store, err := redis.NewStorage(ctx, c.redisAddr, c.redisPassword, c.redisDB)
	if err != nil {
		return fmt.Errorf("unable to create redis store, %w", err)
	}

	defer func() {
		if err := store.Close(); err != nil {
			logger.Error(
				"unable to gracefully close redis connection",
				"err", err,
			)
		}
	}()

	logger.Info("redis ping success")

	s, err := c.rootCfg.buildServer(ctx, store, logger)
	if err != nil {
		return fmt.Errorf("unable to create server, %w", err)
	}

	runCtx, cancelFn := signal.NotifyContext(
		ctx,
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer cancelFn()

	group, gCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		return s.Serve(gCtx)
	})

	return group.Wait()
}
