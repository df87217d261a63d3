// Copyright 2026 The Skirmish Authors
// SPDX-License-Identifier: Apache-2.0

package game

import (
	"fmt"
	"math"
)

// UnitDTO is the wire form of a unit inside a snapshot. Positions and
// targets are rounded to integers to bound payload size; health and
// ownership travel as-is. Selection state never does.
type UnitDTO struct {
	ID    int    `json:"id"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	TX    int    `json:"tx"`
	TY    int    `json:"ty"`
	HP    int    `json:"hp"`
	Owner string `json:"owner"`
}

// Snapshot is a complete, self-contained serialization of the unit set
// at one tick. Snapshots are not diffs: appliers replace their whole
// unit collection with the snapshot's contents.
type Snapshot struct {
	Tick  int
	Units []UnitDTO
}

// serialize converts a live unit to its wire form.
func serialize(u *Unit) UnitDTO {
	return UnitDTO{
		ID:    u.ID,
		X:     int(math.Round(u.X)),
		Y:     int(math.Round(u.Y)),
		TX:    int(math.Round(u.TargetX)),
		TY:    int(math.Round(u.TargetY)),
		HP:    u.HP,
		Owner: u.Owner,
	}
}

// materialize converts a wire unit back to a live one. Float positions
// start at the rounded integers; the target and shared UnitSpeed let
// the follower keep stepping the unit locally between snapshots.
func materialize(dto UnitDTO) *Unit {
	return &Unit{
		ID:      dto.ID,
		X:       float64(dto.X),
		Y:       float64(dto.Y),
		TargetX: float64(dto.TX),
		TargetY: float64(dto.TY),
		HP:      dto.HP,
		MaxHP:   UnitMaxHP,
		Owner:   dto.Owner,
	}
}

// Validate rejects snapshots that no correct host can produce. The
// peer channels carry attacker-shaped bytes in the worst case, so the
// follower checks shape before replacing its world with one.
func (s Snapshot) Validate() error {
	if s.Tick < 0 {
		return fmt.Errorf("snapshot tick %d is negative", s.Tick)
	}
	seen := make(map[int]bool, len(s.Units))
	for _, unit := range s.Units {
		if unit.ID <= 0 {
			return fmt.Errorf("snapshot unit id %d is not positive", unit.ID)
		}
		if seen[unit.ID] {
			return fmt.Errorf("snapshot contains unit id %d twice", unit.ID)
		}
		seen[unit.ID] = true
		if unit.Owner == "" {
			return fmt.Errorf("snapshot unit %d has no owner", unit.ID)
		}
		if unit.HP < 0 {
			return fmt.Errorf("snapshot unit %d has negative hp %d", unit.ID, unit.HP)
		}
	}
	return nil
}
