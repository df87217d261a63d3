// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. [UniqueID] generates
// monotonically increasing identifiers for test disambiguation.
package testutil
