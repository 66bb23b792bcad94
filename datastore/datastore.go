// Package datastore adapts a badger4 datastore to the narrower interface
// the rest of shardfs actually needs: point reads/writes, a namespace-scoped
// key/key-value iterator, TTL, and a bulk clear for the ds inspection tool.
package datastore

import (
	"context"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	badger4 "github.com/ipfs/go-ds-badger4"
	bds "github.com/ipfs/go-ds-badger4"
)

// Datastore is the badger-backed store metastore and the ds inspection
// command talk to.
type Datastore interface {
	ds.Datastore
	ds.BatchingFeature
	ds.TTL

	// Iterator streams every key (and, unless keysOnly, its value) under
	// prefix. The error channel carries at most one error and is closed
	// once the key channel is drained or ctx is done.
	Iterator(ctx context.Context, prefix ds.Key, keysOnly bool) (<-chan KeyValue, <-chan error, error)

	// Clear deletes every key in the store in one batch.
	Clear(ctx context.Context) error

	// Keys streams every key under prefix without its value.
	Keys(ctx context.Context, prefix ds.Key) (<-chan ds.Key, <-chan error, error)
}

// KeyValue is one key/value pair yielded by Iterator.
type KeyValue struct {
	Key   ds.Key
	Value []byte
}

var _ ds.Datastore = (*datastorage)(nil)
var _ ds.Batching = (*datastorage)(nil)
var _ ds.TTL = (*datastorage)(nil)

type datastorage struct {
	*bds.Datastore
}

// NewDatastorage opens (or creates) a badger4 datastore at path.
func NewDatastorage(path string, opts *badger4.Options) (Datastore, error) {
	badgerDS, err := bds.NewDatastore(path, opts)
	if err != nil {
		return nil, err
	}
	return &datastorage{Datastore: badgerDS}, nil
}

// Iterator runs prefix as a query and streams results onto a channel pair
// so the caller can range over it with a select against ctx.Done().
func (s *datastorage) Iterator(ctx context.Context, prefix ds.Key, keysOnly bool) (<-chan KeyValue, <-chan error, error) {
	q := query.Query{
		Prefix:   prefix.String(),
		KeysOnly: keysOnly,
	}

	result, err := s.Datastore.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan KeyValue)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)
		defer result.Close()

		for {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case res, ok := <-result.Next():
				if !ok {
					return
				}
				if res.Error != nil {
					errc <- res.Error
					return
				}
				out <- KeyValue{Key: ds.NewKey(res.Key), Value: res.Value}
			}
		}
	}()

	return out, errc, nil
}

// Clear deletes every key in the store, used by the ds command's "clear"
// subcommand.
func (s *datastorage) Clear(ctx context.Context) error {
	q, err := s.Query(ctx, query.Query{KeysOnly: true})
	if err != nil {
		return err
	}
	defer q.Close()

	b, err := s.Batch(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-q.Next():
			if !ok {
				return b.Commit(ctx)
			}
			if res.Error != nil {
				return res.Error
			}
			if err := b.Delete(ctx, ds.NewKey(res.Key)); err != nil {
				return err
			}
		}
	}
}

// Keys runs prefix as a keys-only query and streams results onto a channel
// pair, mirroring Iterator without paying for values.
func (s *datastorage) Keys(ctx context.Context, prefix ds.Key) (<-chan ds.Key, <-chan error, error) {
	q := query.Query{
		Prefix:   prefix.String(),
		KeysOnly: true,
	}

	result, err := s.Datastore.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan ds.Key)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)
		defer result.Close()

		for {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case res, ok := <-result.Next():
				if !ok {
					return
				}
				if res.Error != nil {
					errc <- res.Error
					return
				}
				out <- ds.NewKey(res.Key)
			}
		}
	}()

	return out, errc, nil
}

func (s *datastorage) Close() error {
	return s.Datastore.Close()
}
