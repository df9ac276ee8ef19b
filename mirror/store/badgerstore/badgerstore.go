// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package badgerstore provides a mirror store persisting records in a BadgerDB database.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/mirror/store"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

const (
	keySeparator     = "\x00"
	versionKey       = "!resource-version"
	versionBandwidth = 1000
	maxTxnRetries    = 5
	deleteChunkSize  = 500
	gcDiscardRatio   = 0.5
)

// Options configures a Store.
type Options struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps the database in memory only.
	InMemory bool
	// SyncWrites makes every write durable before it returns.
	SyncWrites bool
	// GCInterval is the period of value log garbage collection. Zero disables garbage collection.
	GCInterval time.Duration
}

var _ mirror.Store = (*Store)(nil)

// Store is a mirror.Store backed by BadgerDB. Records are stored as JSON under "<kind>\x00<cloudContext>\x00<recordKey>".
type Store struct {
	db        *badger.DB
	seq       *badger.Sequence
	clock     clock.PassiveClock
	gcStop    context.CancelFunc
	gcDone    chan struct{}
	closeOnce sync.Once
}

// Open opens the database described by opts and starts value log garbage collection if configured.
func Open(ctx context.Context, clk clock.PassiveClock, opts Options) (s *Store, err error) {
	log := logr.FromContextOrDiscard(ctx).WithName("badger")
	if !opts.InMemory && opts.Path == "" {
		return nil, fmt.Errorf("%w: path is required for persistent store", mirror.ErrInitFailed)
	}
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err = os.MkdirAll(opts.Path, 0750); err != nil {
			return nil, fmt.Errorf("%w: cannot create store directory %q: %w", mirror.ErrInitFailed, opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1).WithLogger(&badgerLogger{log: log})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open badger store: %w", mirror.ErrInitFailed, err)
	}
	seq, err := db.GetSequence([]byte(versionKey), versionBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: cannot obtain version sequence: %w", mirror.ErrInitFailed, err)
	}
	s = &Store{db: db, seq: seq, clock: clk}
	if opts.GCInterval > 0 && !opts.InMemory {
		gcCtx, cancel := context.WithCancel(logr.NewContext(context.Background(), log))
		s.gcStop = cancel
		s.gcDone = make(chan struct{})
		go s.runGC(gcCtx, opts.GCInterval)
	}
	return s, nil
}

func (s *Store) runGC(ctx context.Context, interval time.Duration) {
	defer close(s.gcDone)
	log := logr.FromContextOrDiscard(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing to collect.
			if err := s.db.RunValueLogGC(gcDiscardRatio); err == nil {
				log.V(3).Info("value log garbage collection completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				log.Error(err, "value log garbage collection failed")
			}
		}
	}
}

func tablePrefix(kind mirror.Kind, cloudContext string) []byte {
	return []byte(string(kind) + keySeparator + cloudContext + keySeparator)
}

func recordKey(kind mirror.Kind, cloudContext, name, namespace string) []byte {
	return append(tablePrefix(kind, cloudContext), mirror.RecordKey(name, namespace)...)
}

func decode(item *badger.Item) (rec *mirror.Record, err error) {
	err = item.Value(func(val []byte) error {
		rec = &mirror.Record{}
		return json.Unmarshal(val, rec)
	})
	return
}

func loadTxn(txn *badger.Txn, key []byte) (*mirror.Record, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := decode(item)
	return rec, err == nil, err
}

// Load returns the record identified by its natural key.
func (s *Store) Load(_ context.Context, kind mirror.Kind, cloudContext, name, namespace string) (rec *mirror.Record, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		rec, found, err = loadTxn(txn, recordKey(kind, cloudContext, name, namespace))
		return err
	})
	if err != nil {
		err = fmt.Errorf("%w: %s %q: %w", mirror.ErrLoadRecord, kind, mirror.StoreKey(cloudContext, name, namespace), err)
	}
	return
}

// LoadAll returns all records of kind belonging to cloudContext in key order.
func (s *Store) LoadAll(ctx context.Context, kind mirror.Kind, cloudContext string) (recs []*mirror.Record, err error) {
	prefix := tablePrefix(kind, cloudContext)
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := decode(it.Item())
			if err != nil {
				return fmt.Errorf("key %q: %w", bytes.TrimPrefix(it.Item().Key(), prefix), err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("%w: %s in %q: %w", mirror.ErrLoadRecord, kind, cloudContext, err)
	}
	return
}

// Save creates or updates the given record. Conflicting concurrent transactions are retried.
func (s *Store) Save(ctx context.Context, rec *mirror.Record) (out *mirror.Record, err error) {
	log := logr.FromContextOrDiscard(ctx)
	key := recordKey(rec.Kind, rec.CloudContext, rec.Name, rec.Namespace)
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w: %s %q: %w", mirror.ErrSaveRecord, rec.Kind, rec.StoreKey(), err)
		}
	}()
	version, err := s.seq.Next()
	if err != nil {
		return
	}
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			prev, _, err := loadTxn(txn, key)
			if err != nil {
				return err
			}
			// sequences start at zero, resource versions at one
			out = store.Prepare(prev, rec, s.clock.Now().UTC(), int64(version)+1)
			data, err := json.Marshal(out)
			if err != nil {
				return err
			}
			return txn.Set(key, data)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		log.V(4).Info("retrying conflicting save", "kind", rec.Kind, "key", rec.StoreKey(), "attempt", attempt+1)
	}
	return
}

// DeleteMany deletes the given records in chunked transactions and returns the number of records deleted.
func (s *Store) DeleteMany(ctx context.Context, recs []*mirror.Record) (delCount int, err error) {
	log := logr.FromContextOrDiscard(ctx)
	for start := 0; start < len(recs); start += deleteChunkSize {
		if err = ctx.Err(); err != nil {
			return
		}
		chunk := recs[start:min(start+deleteChunkSize, len(recs))]
		var deleted int
		err = s.db.Update(func(txn *badger.Txn) error {
			deleted = 0
			for _, rec := range chunk {
				key := recordKey(rec.Kind, rec.CloudContext, rec.Name, rec.Namespace)
				if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
					continue
				} else if err != nil {
					return err
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
				deleted++
			}
			return nil
		})
		if err != nil {
			err = fmt.Errorf("%w: %w", mirror.ErrDeleteRecords, err)
			return
		}
		delCount += deleted
	}
	log.V(4).Info("deleted records", "requested", len(recs), "deleted", delCount)
	return
}

// Close stops garbage collection, releases the version sequence and closes the database.
func (s *Store) Close() (err error) {
	s.closeOnce.Do(func() {
		if s.gcStop != nil {
			s.gcStop()
			<-s.gcDone
		}
		err = errors.Join(s.seq.Release(), s.db.Close())
	})
	return
}

// badgerLogger adapts logr.Logger to the badger.Logger interface.
type badgerLogger struct {
	log logr.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(nil, msg(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Info(msg(format, args...), "severity", "warning")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.V(3).Info(msg(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.V(5).Info(msg(format, args...))
}

func msg(format string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
