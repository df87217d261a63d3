// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time so that simulation and networking code
// can be tested deterministically. [Real] wraps the standard time
// package for production use. [Fake] provides a manually advanced
// clock: tests call [FakeClock.Advance] to fire pending tickers and
// After channels in deadline order, which makes tick-loop behavior
// (such as the engine's fixed advance/broadcast cadence) reproducible
// without sleeping.
package clock
