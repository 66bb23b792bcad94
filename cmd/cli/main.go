// Command cli drives the block-parallel transfer engine and namespace
// operations against a running coordinator: put, get, mkdir, exists, rm.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"shardfs/client"
)

func main() {
	app := &cli.App{
		Name:  "shardfs",
		Usage: "upload, download, and manage files in a shardfs cluster",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "coordinator", Aliases: []string{"c"}, Value: "localhost:8000", Usage: "coordinator address"},
			&cli.StringFlag{Name: "cwd", Value: "/", Usage: "namespace working directory"},
		},
		Commands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "upload a local file",
				ArgsUsage: "<local-path> [remote-name]",
				Action:    cmdPut,
			},
			{
				Name:      "get",
				Usage:     "download a remote file",
				ArgsUsage: "<remote-name> <local-path>",
				Action:    cmdGet,
			},
			{
				Name:      "rm",
				Usage:     "delete a remote file and its blocks",
				ArgsUsage: "<remote-name>",
				Action:    cmdRm,
			},
			{
				Name:      "mkdir",
				Usage:     "create a namespace directory",
				ArgsUsage: "<path>",
				Action:    cmdMkdir,
			},
			{
				Name:      "exists",
				Usage:     "check whether a namespace path exists",
				ArgsUsage: "<path>",
				Action:    cmdExists,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cctx *cli.Context) *client.Client {
	cfg := client.Config{
		CoordinatorAddr: cctx.String("coordinator"),
		Cwd:             cctx.String("cwd"),
	}
	return client.New(cfg, log.New(os.Stdout, "", 0))
}

func cmdPut(cctx *cli.Context) error {
	if cctx.NArg() < 1 {
		return fmt.Errorf("usage: put <local-path> [remote-name]")
	}
	localPath := cctx.Args().Get(0)
	remoteName := cctx.Args().Get(1)

	c := newClient(cctx)
	if err := c.UploadFile(localPath, remoteName); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	fmt.Println("upload complete")
	return nil
}

func cmdGet(cctx *cli.Context) error {
	if cctx.NArg() < 2 {
		return fmt.Errorf("usage: get <remote-name> <local-path>")
	}
	remoteName := cctx.Args().Get(0)
	localPath := cctx.Args().Get(1)

	c := newClient(cctx)
	if err := c.DownloadFile(remoteName, localPath); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	fmt.Println("download complete")
	return nil
}

func cmdRm(cctx *cli.Context) error {
	if cctx.NArg() < 1 {
		return fmt.Errorf("usage: rm <remote-name>")
	}
	c := newClient(cctx)
	if err := c.DeleteFile(cctx.Args().Get(0)); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Println("deleted")
	return nil
}

func cmdMkdir(cctx *cli.Context) error {
	if cctx.NArg() < 1 {
		return fmt.Errorf("usage: mkdir <path>")
	}
	c := newClient(cctx)
	ok, msg, err := c.Mkdir(cctx.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Println(msg)
	if !ok {
		os.Exit(1)
	}
	return nil
}

func cmdExists(cctx *cli.Context) error {
	if cctx.NArg() < 1 {
		return fmt.Errorf("usage: exists <path>")
	}
	c := newClient(cctx)
	exists, err := c.Exists(cctx.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Println(exists)
	return nil
}
