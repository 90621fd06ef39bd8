// Command dojovalidator runs the validator side of the subnet: task
// persistence (internal/store, internal/orm), optional 3D-gen ingress
// (internal/ingress), and the periodic task-result monitor (internal/monitor).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dojonet/subnet/internal/config"
	"github.com/dojonet/subnet/internal/dojolog"
	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/ingress"
	"github.com/dojonet/subnet/internal/mapper"
	"github.com/dojonet/subnet/internal/monitor"
	"github.com/dojonet/subnet/internal/orm"
	"github.com/dojonet/subnet/internal/rpcpeer"
	"github.com/dojonet/subnet/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "dojovalidator",
		Usage: "validator side of the dojo task-scoring subnet",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a toml config file"},
			&cli.StringFlag{Name: "peers", Usage: "path to a toml hotkey->rpc-endpoint peer file"},
		},
		Commands: []*cli.Command{
			{Name: "serve", Usage: "run the monitor loop and ingress HTTP server", Action: serveAction},
			{Name: "status", Usage: "print processed-task counters", Action: statusAction},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) config.Config {
	cfg := config.FromEnv(config.Default())
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.FromFile(cfg, path)
		if err != nil {
			log.Crit("dojovalidator: failed to load config file", "path", path, "err", err)
		}
	}
	dojolog.Setup(dojolog.Options{Level: cfg.LogLevel, Path: cfg.LogPath})
	return cfg
}

func openORM(cfg config.Config) *orm.ORM {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Crit("dojovalidator: failed to open database", "err", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Crit("dojovalidator: automigrate failed", "err", err)
	}
	return orm.New(store.New(db))
}

type peerFile struct {
	Peers map[string]string `toml:"peers"`
}

func loadPeerFile(path string) (map[string]string, error) {
	var pf peerFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return nil, fmt.Errorf("dojovalidator: failed to load peer file %s: %w", path, err)
	}
	return pf.Peers, nil
}

func serveAction(c *cli.Context) error {
	cfg := loadConfig(c)
	o := openORM(cfg)

	var peerAddrs map[string]string
	if path := c.String("peers"); path != "" {
		var err error
		peerAddrs, err = loadPeerFile(path)
		if err != nil {
			return err
		}
	}
	resolver := rpcpeer.NewResolver(peerAddrs)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("dojovalidator: shutting down")
		cancel()
	}()

	m := monitor.New(o, resolver, nil, cfg.Hotkey, cfg.DojoTaskMonitoring)
	go m.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/api/threed_gen/", buildIngressHandler(o))
	mux.HandleFunc("/ws/status", m.StatusStreamHandler)

	httpSrv := &http.Server{Addr: cfg.ThreeDGenListen, Handler: mux}
	go func() {
		log.Info("dojovalidator: HTTP server listening", "addr", cfg.ThreeDGenListen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("dojovalidator: HTTP server failed", "err", err)
		}
	}()

	<-ctx.Done()
	_ = httpSrv.Shutdown(context.Background())
	return nil
}

func buildIngressHandler(o *orm.ORM) http.Handler {
	srv := &ingress.Server{
		ORM: o,
		Mapper: func(t domain.TaskSynapse) (*store.ValidatorTaskRow, error) {
			return mapper.ToValidatorTaskRow(t, nil)
		},
	}
	return srv.Handler()
}

func statusAction(c *cli.Context) error {
	cfg := loadConfig(c)
	o := openORM(cfg)
	count, err := o.GetNumProcessedTasks(context.Background())
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"metric", "value"})
	table.Append([]string{color.GreenString("processed_tasks"), fmt.Sprintf("%d", count)})
	table.Render()
	return nil
}
