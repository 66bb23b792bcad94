// Command ds is a low-level inspection tool for the badger-backed
// key-value directory underlying the coordinator's metadata store: useful
// for poking at raw keys during an incident without going through the
// control protocol.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	ds "github.com/ipfs/go-datastore"
	badger4 "github.com/ipfs/go-ds-badger4"
	"github.com/urfave/cli/v2"

	"shardfs/datastore"
)

var store datastore.Datastore

func initStore(dbPath string) error {
	if store != nil {
		return nil
	}
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	var err error
	store, err = datastore.NewDatastorage(dbPath, &badger4.DefaultOptions)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	return nil
}

func closeStore() error {
	if store != nil {
		return store.Close()
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "ds",
		Usage: "raw key-value inspection for a shardfs metadata directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Aliases: []string{"d"}, Value: ".data", Usage: "path to the badger directory", EnvVars: []string{"SHARDFS_STORE_PATH"}},
		},
		Before: func(c *cli.Context) error { return initStore(c.String("db")) },
		After:  func(c *cli.Context) error { return closeStore() },
		Commands: []*cli.Command{
			{
				Name:  "put",
				Usage: "write a raw key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true},
					&cli.StringFlag{Name: "value", Aliases: []string{"v"}, Required: true},
					&cli.DurationFlag{Name: "ttl", Aliases: []string{"t"}},
				},
				Action: putAction,
			},
			{
				Name:  "get",
				Usage: "read a raw key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true},
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}},
				},
				Action: getAction,
			},
			{
				Name:    "delete",
				Aliases: []string{"rm"},
				Usage:   "delete a raw key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true},
				},
				Action: deleteAction,
			},
			{
				Name:  "has",
				Usage: "check whether a key exists",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true},
				},
				Action: hasAction,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "list keys under a prefix",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prefix", Aliases: []string{"p"}, Value: "/"},
					&cli.BoolFlag{Name: "values", Aliases: []string{"v"}},
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 100},
				},
				Action: listAction,
			},
			{
				Name:  "clear",
				Usage: "delete every key in the store",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}},
				},
				Action: clearAction,
			},
			{
				Name:  "ttl",
				Usage: "inspect or set a key's expiration",
				Subcommands: []*cli.Command{
					{
						Name:  "set",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true},
							&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Required: true},
						},
						Action: setTTLAction,
					},
					{
						Name:   "get",
						Flags:  []cli.Flag{&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true}},
						Action: getTTLAction,
					},
				},
			},
			{
				Name:   "info",
				Usage:  "summarize the store directory",
				Action: infoAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func putAction(c *cli.Context) error {
	ctx := context.Background()
	key := ds.NewKey(c.String("key"))
	value := []byte(c.String("value"))

	if ttl := c.Duration("ttl"); ttl > 0 {
		if err := store.PutWithTTL(ctx, key, value, ttl); err != nil {
			return fmt.Errorf("put with ttl: %w", err)
		}
		fmt.Printf("put %s (ttl %v)\n", key, ttl)
		return nil
	}
	if err := store.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	fmt.Printf("put %s\n", key)
	return nil
}

func getAction(c *cli.Context) error {
	ctx := context.Background()
	key := ds.NewKey(c.String("key"))
	asJSON := c.Bool("json")

	value, err := store.Get(ctx, key)
	if err != nil {
		if err == ds.ErrNotFound {
			if asJSON {
				fmt.Println(`{"found": false}`)
			} else {
				fmt.Printf("%s: not found\n", key)
			}
			return nil
		}
		return fmt.Errorf("get: %w", err)
	}

	if asJSON {
		out, _ := json.MarshalIndent(map[string]any{"found": true, "key": key.String(), "value": string(value)}, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	fmt.Printf("%s: %s\n", key, value)
	return nil
}

func deleteAction(c *cli.Context) error {
	ctx := context.Background()
	key := ds.NewKey(c.String("key"))

	exists, err := store.Has(ctx, key)
	if err != nil {
		return fmt.Errorf("has: %w", err)
	}
	if !exists {
		fmt.Printf("%s: not found\n", key)
		return nil
	}
	if err := store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	fmt.Printf("deleted %s\n", key)
	return nil
}

func hasAction(c *cli.Context) error {
	ctx := context.Background()
	key := ds.NewKey(c.String("key"))

	exists, err := store.Has(ctx, key)
	if err != nil {
		return fmt.Errorf("has: %w", err)
	}
	fmt.Println(exists)
	return nil
}

func listAction(c *cli.Context) error {
	ctx := context.Background()
	prefix := ds.NewKey(c.String("prefix"))
	showValues := c.Bool("values")
	asJSON := c.Bool("json")
	limit := c.Int("limit")

	type row struct {
		Key   string `json:"key"`
		Value string `json:"value,omitempty"`
	}
	var rows []row
	count := 0

	if showValues {
		kvChan, errChan, err := store.Iterator(ctx, prefix, false)
		if err != nil {
			return fmt.Errorf("iterator: %w", err)
		}
		go logErrors(errChan)
		for kv := range kvChan {
			if count >= limit {
				break
			}
			if asJSON {
				rows = append(rows, row{Key: kv.Key.String(), Value: string(kv.Value)})
			} else {
				fmt.Printf("%-50s | %s\n", kv.Key.String(), kv.Value)
			}
			count++
		}
	} else {
		keysChan, errChan, err := store.Keys(ctx, prefix)
		if err != nil {
			return fmt.Errorf("keys: %w", err)
		}
		go logErrors(errChan)
		for key := range keysChan {
			if count >= limit {
				break
			}
			if asJSON {
				rows = append(rows, row{Key: key.String()})
			} else {
				fmt.Println(key.String())
			}
			count++
		}
	}

	if asJSON {
		out, _ := json.MarshalIndent(map[string]any{"prefix": prefix.String(), "count": count, "items": rows}, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Printf("\n%d entries under %s\n", count, prefix)
	}
	return nil
}

func logErrors(errChan <-chan error) {
	for err := range errChan {
		log.Printf("iteration error: %v", err)
	}
}

func clearAction(c *cli.Context) error {
	ctx := context.Background()
	if !c.Bool("force") {
		fmt.Print("delete every key in this store? (yes/no): ")
		var response string
		fmt.Scanln(&response)
		if strings.ToLower(response) != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	fmt.Println("store cleared")
	return nil
}

func setTTLAction(c *cli.Context) error {
	ctx := context.Background()
	key := ds.NewKey(c.String("key"))
	duration := c.Duration("duration")

	if err := store.SetTTL(ctx, key, duration); err != nil {
		return fmt.Errorf("set ttl: %w", err)
	}
	fmt.Printf("ttl %v set on %s\n", duration, key)
	return nil
}

func getTTLAction(c *cli.Context) error {
	ctx := context.Background()
	key := ds.NewKey(c.String("key"))

	expiration, err := store.GetExpiration(ctx, key)
	if err != nil {
		return fmt.Errorf("get ttl: %w", err)
	}
	if expiration.IsZero() {
		fmt.Printf("%s has no ttl\n", key)
		return nil
	}
	now := time.Now()
	if now.After(expiration) {
		fmt.Printf("%s expired %v ago (%s)\n", key, now.Sub(expiration), expiration.Format(time.RFC3339))
	} else {
		fmt.Printf("%s expires in %v (%s)\n", key, expiration.Sub(now), expiration.Format(time.RFC3339))
	}
	return nil
}

func infoAction(c *cli.Context) error {
	ctx := context.Background()
	dbPath := c.String("db")

	keysChan, errChan, err := store.Keys(ctx, ds.NewKey("/"))
	if err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	go logErrors(errChan)

	keyCount := 0
	for range keysChan {
		keyCount++
	}

	var dirSize int64
	_ = filepath.Walk(dbPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			dirSize += info.Size()
		}
		return nil
	})

	fmt.Printf("path:  %s\n", dbPath)
	fmt.Printf("keys:  %d\n", keyCount)
	fmt.Printf("size:  %s\n", formatBytes(dirSize))
	fmt.Printf("kind:  badger v4\n")
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
