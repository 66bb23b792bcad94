// Package metastore adapts a badger-backed key-value store to the ordered
// hash-store interface the coordinator's metadata model is specified
// against: hset/hget/hdel/hkeys/hexists over named namespaces.
package metastore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	ds "github.com/ipfs/go-datastore"
	badger4 "github.com/ipfs/go-ds-badger4"

	"shardfs/datastore"
)

// Store is the external ordered hash store the coordinator persists
// directories and files through.
type Store interface {
	HSet(ctx context.Context, ns, field, value string) error
	HGet(ctx context.Context, ns, field string) (string, bool, error)
	HDel(ctx context.Context, ns, field string) error
	HExists(ctx context.Context, ns, field string) (bool, error)
	HKeys(ctx context.Context, ns string) ([]string, error)
	Close() error
}

type badgerStore struct {
	ds datastore.Datastore
}

// Open opens (or creates) a badger-backed datastore at path and wraps it as
// a Store, reusing the batching/TTL-capable datastore wrapper rather than
// talking to badger4 directly.
func Open(path string, opts *badger4.Options) (Store, error) {
	bds, err := datastore.NewDatastorage(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open metastore at %s: %w", path, err)
	}
	return &badgerStore{ds: bds}, nil
}

// compositeKey places every field under its namespace as a single,
// percent-escaped path component. go-datastore keys always start with "/"
// (ds.RawKey panics otherwise) and prefix queries match on "/"-delimited
// path boundaries, so escaping field into one opaque component — rather
// than splicing it in behind a custom separator — keeps both a namespace
// prefix scan and a direct point lookup correct regardless of what
// characters (including "/") the field itself contains.
func compositeKey(ns, field string) ds.Key {
	return ds.NewKey("/" + ns + "/" + url.QueryEscape(field))
}

func (s *badgerStore) HSet(ctx context.Context, ns, field, value string) error {
	if err := s.ds.Put(ctx, compositeKey(ns, field), []byte(value)); err != nil {
		return fmt.Errorf("hset %s/%s: %w", ns, field, err)
	}
	return nil
}

func (s *badgerStore) HGet(ctx context.Context, ns, field string) (string, bool, error) {
	v, err := s.ds.Get(ctx, compositeKey(ns, field))
	if err != nil {
		if err == ds.ErrNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("hget %s/%s: %w", ns, field, err)
	}
	return string(v), true, nil
}

func (s *badgerStore) HDel(ctx context.Context, ns, field string) error {
	if err := s.ds.Delete(ctx, compositeKey(ns, field)); err != nil && err != ds.ErrNotFound {
		return fmt.Errorf("hdel %s/%s: %w", ns, field, err)
	}
	return nil
}

func (s *badgerStore) HExists(ctx context.Context, ns, field string) (bool, error) {
	ok, err := s.ds.Has(ctx, compositeKey(ns, field))
	if err != nil {
		return false, fmt.Errorf("hexists %s/%s: %w", ns, field, err)
	}
	return ok, nil
}

func (s *badgerStore) HKeys(ctx context.Context, ns string) ([]string, error) {
	nsKey := ds.NewKey("/" + ns)
	keys, errCh, err := s.ds.Keys(ctx, nsKey)
	if err != nil {
		return nil, fmt.Errorf("hkeys %s: %w", ns, err)
	}

	prefix := nsKey.String() + "/"
	var fields []string
	for key := range keys {
		escaped := strings.TrimPrefix(key.String(), prefix)
		field, err := url.QueryUnescape(escaped)
		if err != nil {
			return nil, fmt.Errorf("hkeys %s: decode field %q: %w", ns, escaped, err)
		}
		fields = append(fields, field)
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("hkeys %s: %w", ns, err)
	}
	return fields, nil
}

func (s *badgerStore) Close() error {
	return s.ds.Close()
}
