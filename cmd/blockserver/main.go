// Command blockserver runs one block storage node: atomic block writes,
// async replication to peers, and read/delete service over the block
// protocol.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"shardfs/blockserver"
)

func main() {
	app := &cli.App{
		Name:  "blockserver",
		Usage: "shardfs block storage node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Required: true, Usage: "address to listen on, and advertise to the coordinator"},
			&cli.StringFlag{Name: "coordinator", Aliases: []string{"c"}, Value: "localhost:8000", Usage: "coordinator address"},
			&cli.StringFlag{Name: "data-dir", Aliases: []string{"d"}, Value: "", Usage: "block storage directory (defaults to datanode_<port>)"},
			&cli.IntFlag{Name: "replication-factor", Value: 3},
			&cli.DurationFlag{Name: "heartbeat-interval", Value: 10 * time.Second},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cctx *cli.Context) error {
	addr := cctx.String("addr")
	dataDir := cctx.String("data-dir")
	if dataDir == "" {
		dataDir = fmt.Sprintf("datanode_%s", portOf(addr))
	}

	cfg := blockserver.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.SelfAddr = addr
	cfg.CoordinatorAddr = cctx.String("coordinator")
	cfg.ReplicationFactor = cctx.Int("replication-factor")
	cfg.HeartbeatInterval = cctx.Duration("heartbeat-interval")

	logger := log.New(os.Stdout, "[blockserver] ", log.LstdFlags)
	coord := blockserver.NewCoordinatorClient(cfg.CoordinatorAddr)

	bs, err := blockserver.New(cfg, coord, logger)
	if err != nil {
		return fmt.Errorf("create block server: %w", err)
	}
	defer bs.Close()

	srv, err := blockserver.Listen(bs, addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer srv.Close()

	bs.Start()
	logger.Printf("listening on %s, coordinator at %s", srv.Addr(), cfg.CoordinatorAddr)
	return srv.Serve()
}

func portOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i+1:]
		}
	}
	return addr
}
