// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package inmem provides a mirror store keeping records in memory.
package inmem

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/mirror/store"

	"github.com/go-logr/logr"
	"k8s.io/client-go/tools/cache"
	"k8s.io/utils/clock"
)

const cloudContextIndex = "cloudContext"

var _ mirror.Store = (*Store)(nil)

// Store is an in-memory mirror.Store. Each kind is held in its own backing cache.Indexer keyed by mirror.StoreKey
// and indexed by cloud context.
type Store struct {
	clock  clock.PassiveClock
	mu     sync.Mutex
	tables map[mirror.Kind]cache.Indexer
	// versionCounter is the atomic counter for generating monotonically increasing resource versions
	versionCounter atomic.Int64
}

// New returns an empty in-memory store.
func New(clk clock.PassiveClock) *Store {
	return &Store{
		clock:  clk,
		tables: make(map[mirror.Kind]cache.Indexer),
	}
}

func recordKeyFunc(obj any) (string, error) {
	rec, ok := obj.(*mirror.Record)
	if !ok {
		return "", fmt.Errorf("unexpected object of type %T in record store", obj)
	}
	return rec.StoreKey(), nil
}

func cloudContextIndexFunc(obj any) ([]string, error) {
	rec, ok := obj.(*mirror.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected object of type %T in record store", obj)
	}
	return []string{rec.CloudContext}, nil
}

func (s *Store) table(kind mirror.Kind) cache.Indexer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[kind]
	if !ok {
		t = cache.NewIndexer(recordKeyFunc, cache.Indexers{cloudContextIndex: cloudContextIndexFunc})
		s.tables[kind] = t
	}
	return t
}

func (s *Store) get(t cache.Indexer, key string) (*mirror.Record, bool, error) {
	obj, exists, err := t.GetByKey(key)
	if err != nil || !exists {
		return nil, false, err
	}
	rec, ok := obj.(*mirror.Record)
	if !ok {
		return nil, false, fmt.Errorf("unexpected object of type %T at key %q", obj, key)
	}
	return rec, true, nil
}

// Load returns a copy of the record identified by its natural key.
func (s *Store) Load(_ context.Context, kind mirror.Kind, cloudContext, name, namespace string) (*mirror.Record, bool, error) {
	key := mirror.StoreKey(cloudContext, name, namespace)
	rec, found, err := s.get(s.table(kind), key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s %q: %w", mirror.ErrLoadRecord, kind, key, err)
	}
	return rec.DeepCopy(), found, nil
}

// LoadAll returns copies of all records of kind belonging to cloudContext, ordered by key.
func (s *Store) LoadAll(ctx context.Context, kind mirror.Kind, cloudContext string) ([]*mirror.Record, error) {
	objs, err := s.table(kind).ByIndex(cloudContextIndex, cloudContext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %q: %w", mirror.ErrLoadRecord, kind, cloudContext, err)
	}
	recs := make([]*mirror.Record, 0, len(objs))
	for _, obj := range objs {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		rec, ok := obj.(*mirror.Record)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected object of type %T", mirror.ErrLoadRecord, obj)
		}
		recs = append(recs, rec.DeepCopy())
	}
	slices.SortFunc(recs, func(a, b *mirror.Record) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return recs, nil
}

// Save creates or updates the given record, assigning the next resource version.
func (s *Store) Save(ctx context.Context, rec *mirror.Record) (*mirror.Record, error) {
	log := logr.FromContextOrDiscard(ctx)
	t := s.table(rec.Kind)
	key := rec.StoreKey()

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, _, err := s.get(t, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", mirror.ErrSaveRecord, rec.Kind, key, err)
	}
	out := store.Prepare(prev, rec, s.clock.Now().UTC(), s.versionCounter.Add(1))
	if err = t.Add(out); err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", mirror.ErrSaveRecord, rec.Kind, key, err)
	}
	log.V(5).Info("saved record", "kind", rec.Kind, "key", key, "resourceVersion", out.ResourceVersion)
	return out.DeepCopy(), nil
}

// DeleteMany deletes the given records and returns the number of records actually deleted.
func (s *Store) DeleteMany(ctx context.Context, recs []*mirror.Record) (delCount int, err error) {
	log := logr.FromContextOrDiscard(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if err = ctx.Err(); err != nil {
			return
		}
		t, ok := s.tables[rec.Kind]
		if !ok {
			continue
		}
		key := rec.StoreKey()
		existing, found, getErr := s.get(t, key)
		if getErr != nil {
			err = fmt.Errorf("%w: %s %q: %w", mirror.ErrDeleteRecords, rec.Kind, key, getErr)
			return
		}
		if !found {
			continue
		}
		if err = t.Delete(existing); err != nil {
			err = fmt.Errorf("%w: %s %q: %w", mirror.ErrDeleteRecords, rec.Kind, key, err)
			return
		}
		log.V(4).Info("deleted record", "kind", rec.Kind, "key", key)
		delCount++
	}
	return
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
