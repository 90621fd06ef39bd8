// Command dojominer runs the miner side of the subnet: the feedback/result
// RPC handler (internal/minerhandler), exposed over JSON-RPC
// (internal/rpcpeer), optionally backed by a simulated worker population
// instead of a live worker-platform integration.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/dojonet/subnet/internal/config"
	"github.com/dojonet/subnet/internal/dojolog"
	"github.com/dojonet/subnet/internal/minerhandler"
	"github.com/dojonet/subnet/internal/rpcpeer"
	"github.com/dojonet/subnet/internal/workerplatform"
)

func main() {
	app := &cli.App{
		Name:  "dojominer",
		Usage: "miner side of the dojo task-scoring subnet",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a toml config file"},
			&cli.BoolFlag{Name: "simulate", Usage: "serve synthetic worker results instead of a live worker-platform"},
			&cli.DurationFlag{Name: "poll-skew", Usage: "slack required between feedback TTL and task deadline", Value: 5 * time.Minute},
		},
		Action: serve,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg := config.FromEnv(config.Default())
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.FromFile(cfg, path)
		if err != nil {
			return err
		}
	}
	dojolog.Setup(dojolog.Options{Level: cfg.LogLevel, Path: cfg.LogPath})

	cache := minerhandler.NewRedisCache(redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
	}))

	var handler *minerhandler.Handler
	var err error
	pollSkew := c.Duration("poll-skew")
	if c.Bool("simulate") {
		simCfg := minerhandler.DefaultSimConfig()
		simCfg.NormalProb = cfg.SimNormalRespProb
		simCfg.NoResponseProb = cfg.SimNoRespProb
		simCfg.TimeoutProb = cfg.SimTimeoutProb
		simCfg.MinTimeout = cfg.SimMinTimeout
		simCfg.MaxTimeout = cfg.SimMaxTimeout
		handler, err = minerhandler.NewSimulated(cache, minerhandler.DefaultFeedbackTTL, cfg.Hotkey, simCfg)
	} else {
		platform := workerplatform.New(cfg.WorkerPlatformURL, cfg.DojoAPIKey)
		handler, err = minerhandler.New(cache, minerhandler.DefaultFeedbackTTL, cfg.TaskDeadline, pollSkew, cfg.Hotkey, platform, cfg.TaskMaxResults)
	}
	if err != nil {
		return err
	}

	rpcServer, err := rpcpeer.NewServer(handler)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	log.Info("dojominer: listening", "addr", cfg.MinerRPCListen, "simulated", c.Bool("simulate"))
	return http.ListenAndServe(cfg.MinerRPCListen, rpcServer)
}
