// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package timescheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"
)

const minutesPerDay = 24 * 60

// ParseClock parses a clock time of the form "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", mirror.ErrInvalidScheduleTime, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ValidateScheduledTime reports whether the clock time of now lies within [start, stop] at minute precision.
// A window whose stop lies before its start crosses midnight. Unparsable bounds yield false.
func ValidateScheduledTime(start, stop string, now time.Time) bool {
	from, err := ParseClock(start)
	if err != nil {
		return false
	}
	to, err := ParseClock(stop)
	if err != nil {
		return false
	}
	at := now.Hour()*60 + now.Minute()
	// Shift both the window end and the instant onto the day after start when the window wraps.
	if to < from {
		to += minutesPerDay
		if at < from {
			at += minutesPerDay
		}
	}
	return from <= at && at <= to
}
