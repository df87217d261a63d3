// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package game

import "github.com/zeebo/blake3"

// palette is the fixed set of player display colors. Eight entries is
// comfortably more than the practical player count of a session.
var palette = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f39c12",
	"#9b59b6", "#1abc9c", "#e67e22", "#95a5a6",
}

// PlayerColor derives a display color from a player identifier. The
// mapping is a pure function of the id, so every participant computes
// the same color for the same player without any coordination.
func PlayerColor(playerID string) string {
	digest := blake3.Sum256([]byte(playerID))
	return palette[int(digest[0])%len(palette)]
}
