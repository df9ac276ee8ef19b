// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package mapper translates raw remote objects into mirror records using declarative per-kind field tables.
package mapper

import (
	"context"
	"fmt"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/common/objutil"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Hook computes fields of a kind which cannot be expressed as a FieldRule.
type Hook func(ctx context.Context, rec *mirror.Record, raw map[string]any, extra mirror.ExtraData) error

// Table describes how raw objects of one kind become records.
type Table struct {
	// Kind is the kind the table maps.
	Kind mirror.Kind
	// Namespaced tells whether records of the kind are keyed by name and namespace.
	Namespaced bool
	// Rules are applied in order.
	Rules []FieldRule
	// Hooks run after all Rules.
	Hooks []Hook
	// DetailFilter, if set, returns the form of the raw object that is dumped into Record.Detail.
	DetailFilter func(raw map[string]any) map[string]any
}

// ObjectMeta returns the name and, for namespaced kinds, the namespace of the raw object.
// Absent values default to "".
func ObjectMeta(raw map[string]any, namespaced bool) (name, namespace string) {
	name = LookupString(raw, "metadata.name")
	if namespaced {
		namespace = LookupString(raw, "metadata.namespace")
	}
	return
}

// ObjectKey returns the mirror.RecordKey of the raw object.
func ObjectKey(raw map[string]any, namespaced bool) string {
	return mirror.RecordKey(ObjectMeta(raw, namespaced))
}

// Outcome tells what a Map call did to the stored record.
type Outcome int

const (
	// Unchanged means the record content was left as it was. Only Refreshed moved.
	Unchanged Outcome = iota
	// Created means a new record was stored.
	Created
	// Updated means the content of an existing record changed.
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Mapper maps raw objects of one kind onto records of the mirror store.
type Mapper struct {
	store mirror.Store
	clock clock.PassiveClock
	table Table
}

// New creates a Mapper for the given table.
func New(store mirror.Store, clk clock.PassiveClock, table Table) *Mapper {
	return &Mapper{store: store, clock: clk, table: table}
}

// Kind returns the kind handled by the mapper.
func (m *Mapper) Kind() mirror.Kind {
	return m.table.Kind
}

// Namespaced tells whether records of the mapped kind carry a namespace.
func (m *Mapper) Namespaced() bool {
	return m.table.Namespaced
}

// Map loads or creates the record of the given raw object, sets all mapped fields and saves it.
func (m *Mapper) Map(ctx context.Context, cloudContext string, raw map[string]any, extra mirror.ExtraData) (outcome Outcome, err error) {
	name, namespace := ObjectMeta(raw, m.table.Namespaced)
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w: %s %q in %q: %w", mirror.ErrMapRecord, m.table.Kind, mirror.RecordKey(name, namespace), cloudContext, err)
		}
	}()
	log := logr.FromContextOrDiscard(ctx)

	rec, found, err := m.store.Load(ctx, m.table.Kind, cloudContext, name, namespace)
	if err != nil {
		return
	}
	now := m.clock.Now().UTC()
	var prevChanged time.Time
	if found {
		prevChanged = rec.Changed
	} else {
		rec = mirror.NewRecord(m.table.Kind, cloudContext, name, namespace)
		created, ok := ParseTimestamp(LookupMap(raw, "metadata")["creationTimestamp"])
		if !ok {
			created = now
		}
		rec.Created = created
		rec.Changed = created
	}

	rec.Labels = NormalizeKeyValues(LookupMap(raw, "metadata.labels"))
	rec.Annotations = NormalizeKeyValues(LookupMap(raw, "metadata.annotations"))
	rec.Fields = mirror.Fields{}
	if err = m.apply(ctx, rec, raw, extra); err != nil {
		return
	}
	detail := raw
	if m.table.DetailFilter != nil {
		detail = m.table.DetailFilter(raw)
	}
	if rec.Detail, err = objutil.ToYAML(detail); err != nil {
		return
	}
	rec.Refreshed = now

	saved, err := m.store.Save(ctx, rec)
	if err != nil {
		return
	}
	switch {
	case !found:
		outcome = Created
	case !saved.Changed.Equal(prevChanged):
		outcome = Updated
	}
	log.V(4).Info("mapped record", "kind", m.table.Kind, "cloudContext", cloudContext, "key", saved.Key(), "outcome", outcome, "resourceVersion", saved.ResourceVersion)
	return
}

func (m *Mapper) apply(ctx context.Context, rec *mirror.Record, raw map[string]any, extra mirror.ExtraData) error {
	for _, rule := range m.table.Rules {
		v, found := Lookup(raw, rule.Path)
		if err := rule.Transform(rec, rule.Name, v, found); err != nil {
			return fmt.Errorf("field %q: %w", rule.Name, err)
		}
	}
	for _, hook := range m.table.Hooks {
		if err := hook(ctx, rec, raw, extra); err != nil {
			return err
		}
	}
	return nil
}
