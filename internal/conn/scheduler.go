// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import "time"

// Timer is a cancellable scheduled task.
type Timer interface {
	// Stop cancels the task. It reports whether the call stopped it.
	Stop() bool
}

// Scheduler runs a function once after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules with time.AfterFunc.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
