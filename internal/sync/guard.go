// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package sync

import (
	"runtime/debug"
	"time"

	"github.com/servicefield/evoapi/internal/logging"
)

// panicCooldown is the pause after a recovered panic before a runner
// loop continues.
const panicCooldown = 10 * time.Second

// runGuarded invokes fn and converts a panic into a logged event so
// one bad iteration cannot take the process down.
func runGuarded(name string, fn func()) (panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			logging.Error().
				Str("runner", name).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Recovered panic in background loop")
		}
	}()
	fn()
	return false
}
