// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package lock provides non-blocking named locks guarding reconciliation passes.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/gardener/cloud-mirror/api/mirror"

	"github.com/go-logr/logr"
)

// Name returns the lock name guarding reconciliation of kind within cloudContext.
func Name(cloudContext string, kind mirror.Kind) string {
	return fmt.Sprintf("%s-%s-%s", mirror.LockNamePrefix, cloudContext, kind)
}

var _ mirror.LockService = (*Local)(nil)

// Local keeps locks in process memory.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal returns a Local lock service holding no locks.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryAcquire acquires the named lock if it is free.
func (l *Local) TryAcquire(ctx context.Context, name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		logr.FromContextOrDiscard(ctx).V(4).Info("lock is held", "lock", name)
		return false
	}
	l.held[name] = struct{}{}
	return true
}

// Release releases the named lock. Releasing a free lock is a no-op.
func (l *Local) Release(_ context.Context, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
}
