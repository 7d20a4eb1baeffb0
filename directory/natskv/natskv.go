// Package natskv implements the variable directory on NATS JetStream
// key-value buckets.
//
// Values and metadata live in separate buckets so that watching the value
// bucket reports only value changes. Keys are the base64url encoded variable
// name followed by "." and the instance id.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/natsclient"
	"github.com/c360/varmsg/pkg/retry"
)

// Default bucket names
const (
	DefaultValuesBucket = "VARMSG_VARS"
	DefaultMetaBucket   = "VARMSG_META"
)

// Config selects the buckets backing the directory
type Config struct {
	ValuesBucket string
	MetaBucket   string
}

// Directory is a directory.Directory backed by JetStream KV
type Directory struct {
	values *natsclient.KVStore
	meta   *natsclient.KVStore
	logger *slog.Logger
}

var _ directory.Directory = (*Directory)(nil)

// New opens (creating when absent) the configured buckets
func New(ctx context.Context, client *natsclient.Client, cfg Config, logger *slog.Logger) (*Directory, error) {
	if cfg.ValuesBucket == "" {
		cfg.ValuesBucket = DefaultValuesBucket
	}
	if cfg.MetaBucket == "" {
		cfg.MetaBucket = DefaultMetaBucket
	}
	if logger == nil {
		logger = slog.Default()
	}

	open := func(name string) (*natsclient.KVStore, error) {
		bucket, err := retry.DoWithResult(ctx, retry.Quick(), func() (jetstream.KeyValue, error) {
			return client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
				Bucket:      name,
				Description: "varmsg variable directory",
				History:     1,
			})
		})
		if err != nil {
			return nil, errors.WrapFatal(err, "natskv", "New", "open bucket "+name)
		}
		return natsclient.NewKVStore(bucket), nil
	}

	values, err := open(cfg.ValuesBucket)
	if err != nil {
		return nil, err
	}
	meta, err := open(cfg.MetaBucket)
	if err != nil {
		return nil, err
	}

	return &Directory{
		values: values,
		meta:   meta,
		logger: logger.With("component", "directory", "backend", "nats"),
	}, nil
}

// EncodeKey returns the bucket key for a variable
func EncodeKey(name string, instanceID uint32) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name)) + "." + strconv.FormatUint(uint64(instanceID), 10)
}

// DecodeKey reverses EncodeKey
func DecodeKey(key string) (string, uint32, error) {
	i := strings.LastIndexByte(key, '.')
	if i < 0 {
		return "", 0, fmt.Errorf("%w: key %q has no instance part", errors.ErrInvalidArgument, key)
	}
	name, err := base64.RawURLEncoding.DecodeString(key[:i])
	if err != nil {
		return "", 0, fmt.Errorf("%w: key %q: %v", errors.ErrInvalidArgument, key, err)
	}
	id, err := strconv.ParseUint(key[i+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("%w: key %q: %v", errors.ErrInvalidArgument, key, err)
	}
	return string(name), uint32(id), nil
}

// Define stores the metadata of v and its initial value
func (d *Directory) Define(ctx context.Context, v directory.Var, value string) error {
	if v.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "natskv", "Define", "empty variable name")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapInvalid(err, "natskv", "Define", "encode metadata")
	}

	key := EncodeKey(v.Name, v.InstanceID)
	if _, err := d.meta.Put(ctx, key, data); err != nil {
		return errors.WrapTransient(err, "natskv", "Define", "store metadata")
	}
	if _, err := d.values.Put(ctx, key, []byte(value)); err != nil {
		return errors.WrapTransient(err, "natskv", "Define", "store value")
	}
	return nil
}

// Lookup implements directory.Directory
func (d *Directory) Lookup(ctx context.Context, name string) (directory.Var, error) {
	keys, err := d.meta.Keys(ctx)
	if err != nil {
		return directory.Var{}, errors.WrapTransient(err, "natskv", "Lookup", "list keys")
	}

	prefix := base64.RawURLEncoding.EncodeToString([]byte(name)) + "."
	best := ""
	var bestID uint32
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		_, id, err := DecodeKey(k)
		if err != nil {
			continue
		}
		if best == "" || id < bestID {
			best, bestID = k, id
		}
	}
	if best == "" {
		return directory.Var{}, fmt.Errorf("%w: %s", errors.ErrNotFound, name)
	}
	return d.loadMeta(ctx, best)
}

// Search implements directory.Directory. Results are ordered by name,
// then instance id.
func (d *Directory) Search(ctx context.Context, m directory.Matcher) ([]directory.Var, error) {
	keys, err := d.meta.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "natskv", "Search", "list keys")
	}

	out := []directory.Var{}
	for _, k := range keys {
		v, err := d.loadMeta(ctx, k)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if m.Match(v) {
			out = append(out, v)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out, nil
}

func (d *Directory) loadMeta(ctx context.Context, key string) (directory.Var, error) {
	entry, err := d.meta.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return directory.Var{}, fmt.Errorf("%w: %s", errors.ErrNotFound, key)
		}
		return directory.Var{}, errors.WrapTransient(err, "natskv", "loadMeta", "get metadata")
	}

	var v directory.Var
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		return directory.Var{}, errors.WrapInvalid(err, "natskv", "loadMeta", "decode metadata "+key)
	}
	return v, nil
}

// Read implements directory.Directory
func (d *Directory) Read(ctx context.Context, v directory.Var) (string, error) {
	entry, err := d.values.Get(ctx, EncodeKey(v.Name, v.InstanceID))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return "", fmt.Errorf("%w: %s", errors.ErrNotFound, v.Key())
		}
		return "", errors.WrapTransient(err, "natskv", "Read", "get value")
	}
	return string(entry.Value), nil
}

// Write implements directory.Directory
func (d *Directory) Write(ctx context.Context, name, value string) error {
	key := EncodeKey(name, 0)

	data, err := json.Marshal(directory.Var{Name: name})
	if err != nil {
		return errors.WrapInvalid(err, "natskv", "Write", "encode metadata")
	}
	if _, err := d.meta.Create(ctx, key, data); err != nil && !natsclient.IsKVConflictError(err) {
		return errors.WrapTransient(err, "natskv", "Write", "create metadata")
	}

	if _, err := d.values.Put(ctx, key, []byte(value)); err != nil {
		return errors.WrapTransient(err, "natskv", "Write", "store value")
	}
	return nil
}

// Watch implements directory.Directory
func (d *Directory) Watch(ctx context.Context) (<-chan directory.Change, error) {
	watcher, err := d.values.Watch(ctx, ">", jetstream.UpdatesOnly())
	if err != nil {
		return nil, errors.WrapTransient(err, "natskv", "Watch", "watch values")
	}

	out := make(chan directory.Change, 64)
	go func() {
		defer close(out)
		defer func() { _ = watcher.Stop() }()

		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if upd == nil || upd.Operation() != jetstream.KeyValuePut {
					continue
				}
				name, id, err := DecodeKey(upd.Key())
				if err != nil {
					d.logger.Warn("ignoring foreign key", "key", upd.Key(), "error", err)
					continue
				}
				change := directory.Change{
					Var:   directory.Var{Name: name, InstanceID: id},
					Value: string(upd.Value()),
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close implements directory.Directory. The NATS connection belongs to the
// caller and is left open.
func (d *Directory) Close() error {
	return nil
}
