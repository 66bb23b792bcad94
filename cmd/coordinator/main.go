// Command coordinator runs the namespace/placement/membership authority:
// metadata, directory tree, and liveness tracking for a shardfs cluster.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	badger4 "github.com/ipfs/go-ds-badger4"
	"github.com/urfave/cli/v2"

	"shardfs/coordinator"
	"shardfs/metastore"
)

func main() {
	app := &cli.App{
		Name:  "coordinator",
		Usage: "shardfs namespace, placement, and membership authority",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Value: "localhost:8000", Usage: "address to listen on"},
			&cli.StringFlag{Name: "store", Aliases: []string{"s"}, Value: "./coordinator-data", Usage: "metadata store directory"},
			&cli.StringFlag{Name: "audit-db", Value: "", Usage: "optional path to a sqlite operation audit log"},
			&cli.IntFlag{Name: "replication-factor", Value: 3, Usage: "target copies per block"},
			&cli.DurationFlag{Name: "heartbeat-timeout", Value: 30 * time.Second, Usage: "liveness window for a registered node"},
			&cli.IntFlag{Name: "cache-size", Value: 1000, Usage: "metadata LRU cache capacity"},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:      "audit-tail",
				Usage:     "print the most recent entries from a sqlite audit log",
				ArgsUsage: "<audit-db-path>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "number of entries to show"},
				},
				Action: auditTail,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cctx *cli.Context) error {
	addr := cctx.String("addr")
	storeDir := cctx.String("store")

	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	store, err := metastore.Open(storeDir, &badger4.DefaultOptions)
	if err != nil {
		return fmt.Errorf("open metastore: %w", err)
	}
	defer store.Close()

	var audit *coordinator.AuditLog
	if path := cctx.String("audit-db"); path != "" {
		audit, err = coordinator.OpenAuditLog(path)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer audit.Close()
	}

	cfg := coordinator.DefaultConfig()
	cfg.ReplicationFactor = cctx.Int("replication-factor")
	cfg.HeartbeatTimeout = cctx.Duration("heartbeat-timeout")
	cfg.CacheCapacity = cctx.Int("cache-size")

	logger := log.New(os.Stdout, "[coordinator] ", log.LstdFlags)
	c, err := coordinator.New(cfg, store, audit, logger)
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	c.Start()
	defer c.Close()

	srv, err := coordinator.Listen(c, addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer srv.Close()

	logger.Printf("listening on %s", srv.Addr())
	return srv.Serve()
}

func auditTail(cctx *cli.Context) error {
	path := cctx.Args().First()
	if path == "" {
		return fmt.Errorf("audit-tail: requires <audit-db-path>")
	}

	audit, err := coordinator.OpenAuditLog(path)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer audit.Close()

	entries, err := audit.Recent(context.Background(), cctx.Int("limit"))
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%s [%s] %-20s %-30s %s\n", e.OccurredAt.Format(time.RFC3339), e.RequestID, e.Op, e.Path, e.Detail)
	}
	return nil
}
