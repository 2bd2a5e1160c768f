package priority

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// Badger is a Store backed by BadgerDB v4. Records are msgpack encoded.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB in memory-only mode (no disk persistence).
	InMemory bool

	// Logger sets the badger logger. If nil, only warnings and errors are
	// logged through slog.
	Logger badger.Logger
}

// NewBadger opens a BadgerDB-backed Store.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("priority: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(quietLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("priority: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, device hfp.Address) (Record, error) {
	var rec Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(device))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("priority: get %v: %w", device, err)
	}
	return rec, nil
}

func (b *Badger) Set(_ context.Context, device hfp.Address, p hfp.Priority) error {
	data, err := msgpack.Marshal(Record{Device: device, Priority: p, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("priority: marshal: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(device), data)
	})
}

func (b *Badger) Delete(_ context.Context, device hfp.Address) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(encodeKey(device))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) List(_ context.Context) iter.Seq2[Record, error] {
	prefix := []byte(keyPrefix)
	return func(yield func(Record, error) bool) {
		err := b.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = prefix
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				if _, err := decodeKey(item.Key()); err != nil {
					if !yield(Record{}, err) {
						return nil
					}
					continue
				}
				var rec Record
				err := item.Value(func(val []byte) error {
					return msgpack.Unmarshal(val, &rec)
				})
				if err != nil {
					if !yield(Record{}, fmt.Errorf("priority: decode %s: %w", item.Key(), err)) {
						return nil
					}
					continue
				}
				if !yield(rec, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(Record{}, err)
		}
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// quietLogger forwards badger warnings and errors to slog and drops the rest.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{}) {
	slog.Error("priority: badger: " + fmt.Sprintf(f, v...))
}
func (quietLogger) Warningf(f string, v ...interface{}) {
	slog.Warn("priority: badger: " + fmt.Sprintf(f, v...))
}
func (quietLogger) Infof(string, ...interface{})  {}
func (quietLogger) Debugf(string, ...interface{}) {}
