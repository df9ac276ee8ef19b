// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package store holds the bookkeeping shared by the mirror store backends.
package store

import (
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"

	"k8s.io/apimachinery/pkg/conversion"
)

var recordEquality = conversion.EqualitiesOrDie(
	func(a, b time.Time) bool {
		return a.Equal(b)
	},
)

// ContentEqual tells whether two records hold the same content. Refreshed, Changed and ResourceVersion are bookkeeping
// and are not compared. Nil and empty collections are considered equal.
func ContentEqual(a, b *mirror.Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	x, y := *a, *b
	x.Refreshed, y.Refreshed = time.Time{}, time.Time{}
	x.Changed, y.Changed = time.Time{}, time.Time{}
	x.ResourceVersion, y.ResourceVersion = 0, 0
	return recordEquality.DeepEqual(x, y)
}

// Prepare returns the form of rec to persist given the currently stored record prev, which is nil if rec is new.
// Changed is kept when the content is unchanged and moves to now otherwise.
// A new record keeps a Changed it already carries.
func Prepare(prev, rec *mirror.Record, now time.Time, version int64) *mirror.Record {
	out := rec.DeepCopy()
	out.ResourceVersion = version
	switch {
	case prev == nil:
		if out.Changed.IsZero() {
			out.Changed = now
		}
		if out.Created.IsZero() {
			out.Created = out.Changed
		}
	case ContentEqual(prev, out):
		out.Changed = prev.Changed
	default:
		out.Changed = now
	}
	return out
}
