package client

import (
	"log"
	"os"

	"shardfs/pathkey"
)

// Config configures a transfer engine instance.
type Config struct {
	CoordinatorAddr string
	Cwd             string
}

func DefaultConfig() Config {
	return Config{CoordinatorAddr: "localhost:8000", Cwd: "/"}
}

// Client drives block-parallel uploads and downloads against one
// coordinator. It holds no connections itself; every RPC dials fresh, the
// same "fresh connection per call" posture the original uses to sidestep
// connection reuse bugs.
type Client struct {
	coord *CoordinatorClient
	cwd   string
	log   *log.Logger
}

func New(cfg Config, logger *log.Logger) *Client {
	if cfg.Cwd == "" {
		cfg.Cwd = "/"
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[client] ", log.LstdFlags)
	}
	return &Client{
		coord: NewCoordinatorClient(cfg.CoordinatorAddr),
		cwd:   pathkey.Canonicalize(cfg.Cwd),
		log:   logger,
	}
}

// Chdir updates the working directory used to resolve relative names.
func (c *Client) Chdir(path string) {
	c.cwd = pathkey.Join(c.cwd, path)
}

func (c *Client) Cwd() string { return c.cwd }

func (c *Client) Mkdir(path string) (bool, string, error) {
	return c.coord.Mkdir(pathkey.Join(c.cwd, path))
}

func (c *Client) Exists(path string) (bool, error) {
	return c.coord.Exists(pathkey.Join(c.cwd, path))
}
